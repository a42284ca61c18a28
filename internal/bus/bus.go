// Package bus defines the transport-neutral records that move between the
// gateway, processor and notifier stages.
package bus

import (
	"context"
	"time"
)

// Message is an outgoing payload handed to a Publisher.
type Message struct {
	// Partition key; readings and alerts are keyed by sensor ID
	Key string

	// Human-readable subject carried as a header
	Subject string

	// JSON-encoded SensorReading or Alert
	Payload []byte
}

// Publisher hands messages to the asynchronous channel and returns the
// channel-assigned message ID.
type Publisher interface {
	Publish(ctx context.Context, msg Message) (string, error)
}

// Record is one delivered message inside a batch.
type Record struct {
	ID        string
	Subject   string
	Payload   []byte
	Topic     string
	Partition int
	Offset    int64
	Time      time.Time
}

// Outcome is the result of handling a single record.
type Outcome struct {
	Index    int
	RecordID string
	Err      error
}

// BatchResult summarises one batch. A batch is always acknowledged as a
// whole; per-record failures are reported here and nowhere else.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}

// Record appends the outcome of record i.
func (r *BatchResult) Record(i int, id string, err error) {
	r.Total++
	if err != nil {
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Outcomes = append(r.Outcomes, Outcome{Index: i, RecordID: id, Err: err})
}

// BatchHandler processes a batch of records independently of one another.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []Record) BatchResult
}

// BatchHandlerFunc adapts a function to BatchHandler.
type BatchHandlerFunc func(ctx context.Context, records []Record) BatchResult

func (f BatchHandlerFunc) HandleBatch(ctx context.Context, records []Record) BatchResult {
	return f(ctx, records)
}
