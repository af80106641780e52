package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs []kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) Close() error { return nil }

func TestKafkaProducer_PublishBatchKeysByID(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w}

	err := p.PublishBatch(context.Background(), []domain.Structure{
		{ID: "mp/1", Provider: "mp"},
		{ID: "mp/2", Provider: "mp"},
	})
	require.NoError(t, err)

	require.Len(t, w.written, 2)
	assert.Equal(t, "mp/1", string(w.written[0].Key))
	assert.Equal(t, "mp/2", string(w.written[1].Key))

	var decoded domain.Structure
	require.NoError(t, json.Unmarshal(w.written[1].Value, &decoded))
	assert.Equal(t, "mp", decoded.Provider)

	assert.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Len(t, w.written, 2)
}

func TestKafkaProducer_PublishError(t *testing.T) {
	p := &KafkaProducer{writer: &fakeWriter{err: errors.New("broker down")}}
	assert.EqualError(t, p.Publish(context.Background(), &domain.Structure{ID: "x"}), "broker down")
}

func TestKafkaConsumer_FailedEventsGoToDLQ(t *testing.T) {
	ok, _ := json.Marshal(domain.Structure{ID: "cod/1", Provider: "cod"})
	bad, _ := json.Marshal(domain.Structure{ID: "cod/2", Provider: "cod"})

	dlqWriter := &fakeWriter{}
	consumer := &KafkaConsumer{
		reader: &fakeReader{msgs: []kafka.Message{
			{Key: []byte("cod/1"), Value: ok},
			{Key: []byte("junk"), Value: []byte("not json")},
			{Key: []byte("cod/2"), Value: bad},
		}},
		dlqProducer: &KafkaProducer{writer: dlqWriter},
	}

	var handled []string
	consumer.Start(context.Background(), func(_ context.Context, s *domain.Structure) error {
		handled = append(handled, s.ID)
		if s.ID == "cod/2" {
			return errors.New("engine unavailable")
		}
		return nil
	})

	assert.Equal(t, []string{"cod/1", "cod/2"}, handled)
	require.Len(t, dlqWriter.written, 1)
	assert.Equal(t, "cod/2", string(dlqWriter.written[0].Key))
}
