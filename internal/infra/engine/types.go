// Package engine is a small local stand-in for a workflow-engine profile: it
// stores computers, codes, pseudopotential families and structures as JSON
// documents under an explicit storage root.
package engine

import (
	"fmt"
	"time"

	"github.com/OptimadeHarvester/internal/domain"
)

// Upsert is the result of a get-or-create operation.
type Upsert[T any] struct {
	Handle  T
	Created bool
}

// Found reports whether the handle already existed.
func (u Upsert[T]) Found() bool { return !u.Created }

// Computer is a machine calculations run on.
type Computer struct {
	UUID               string  `json:"uuid"`
	Label              string  `json:"label"`
	Description        string  `json:"description"`
	Hostname           string  `json:"hostname"`
	WorkDir            string  `json:"workdir"`
	TransportType      string  `json:"transport_type"`
	SchedulerType      string  `json:"scheduler_type"`
	MPIProcsPerMachine int     `json:"mpiprocs_per_machine"`
	MinJobPollInterval float64 `json:"min_job_poll_interval"`
}

// Code is an executable installed on a computer.
type Code struct {
	UUID        string `json:"uuid"`
	Label       string `json:"label"`
	Description string `json:"description"`
	InputPlugin string `json:"input_plugin"`
	Computer    string `json:"computer"`
	ExecPath    string `json:"exec_path"`
	PrependText string `json:"prepend_text,omitempty"`
}

// FullLabel is the "label@computer" form codes are looked up by.
func (c Code) FullLabel() string {
	return c.Label + "@" + c.Computer
}

// SsspConfiguration selects one SSSP pseudopotential library.
type SsspConfiguration struct {
	Version    string `json:"version"`
	Functional string `json:"functional"`
	Protocol   string `json:"protocol"`
}

// DefaultSssp is the configuration the bootstrap installs.
var DefaultSssp = SsspConfiguration{Version: "1.1", Functional: "PBE", Protocol: "efficiency"}

// Label formats the family label, e.g. "SSSP/1.1/PBE/efficiency".
func (c SsspConfiguration) Label() string {
	return fmt.Sprintf("SSSP/%s/%s/%s", c.Version, c.Functional, c.Protocol)
}

// Cutoff holds the recommended plane-wave cutoffs of one element, in Ry.
type Cutoff struct {
	Wavefunction  float64 `json:"cutoff_wfc"`
	ChargeDensity float64 `json:"cutoff_rho"`
}

// PseudoFamily is a stored pseudopotential family with its cutoffs.
type PseudoFamily struct {
	UUID          string            `json:"uuid"`
	Label         string            `json:"label"`
	Configuration SsspConfiguration `json:"configuration"`
	Stringency    string            `json:"stringency"`
	Unit          string            `json:"unit"`
	Cutoffs       map[string]Cutoff `json:"cutoffs"`
}

// StoredStructure is a structure node.
type StoredStructure struct {
	UUID      string           `json:"uuid"`
	StoredAt  time.Time        `json:"stored_at"`
	Structure domain.Structure `json:"structure"`
}
