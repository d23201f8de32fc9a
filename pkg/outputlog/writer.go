package outputlog

import (
	"io"
	"log/slog"
)

type OutputLogWriter interface {
	// Channel returns a channel to write Records
	Channel() chan<- Record

	// Close closes the writer and waits for all pending writes to complete
	Close()
}

type OutputLogIoWriter struct {
	records chan Record
	done    chan struct{}
}

var _ OutputLogWriter = &OutputLogIoWriter{}

// Channel returns a channel for writing Records.
// Do not close the returned channel. Call Close() on the writer instead.
func (o *OutputLogIoWriter) Channel() chan<- Record {
	return o.records
}

// Write queues one record.
func (o *OutputLogIoWriter) Write(rec Record) {
	o.records <- rec
}

// Close closes the writer and waits for all pending writes to complete
func (o *OutputLogIoWriter) Close() {
	close(o.records)
	<-o.done
}

// NewOutputLogWriter creates a new OutputLogWriter that writes to the given io.Writer
// The internal goroutine will run until Close() is called
func NewOutputLogWriter(writer io.Writer) *OutputLogIoWriter {
	records := make(chan Record, 100)
	done := make(chan struct{})

	// Single goroutine that owns the io.Writer
	go func() {
		failed := false
		for rec := range records {
			if failed {
				continue
			}
			if _, err := writer.Write(FormatRecord(rec)); err != nil {
				slog.Error("Failed to write record", "error", err)
				failed = true
			}
		}
		close(done)
	}()

	return &OutputLogIoWriter{
		records: records,
		done:    done,
	}
}
