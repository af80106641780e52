package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/OptimadeHarvester/internal/infra/optimade/mockprovider"
)

func main() {
	addr := flag.String("addr", ":8081", "listen address")
	count := flag.Int("records", 25, "number of silicon records served")
	flag.Parse()

	records := make([]json.RawMessage, 0, *count)
	for i := 0; i < *count; i++ {
		records = append(records, mockprovider.Silicon(fmt.Sprintf("mock-%d", i)))
	}

	server := mockprovider.New(mockprovider.Options{
		Versions:  []string{"1"},
		APIPrefix: "/v1",
		Records:   records,
	})

	slog.Info("Mock OPTIMADE provider running", "address", *addr, "records", *count)
	if err := http.ListenAndServe(*addr, server); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
