package outputlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

type OutputLogReader interface {
	// Next returns the next record. It returns io.EOF after the last one.
	Next() (Record, error)

	// Channel returns a channel which emits Records. A record carrying an Error is the
	// last one sent.
	Channel() <-chan Record

	// All returns all remaining records.
	All() ([]Record, error)
}

type OutputLogIoReader struct {
	reader *bufio.Reader
}

var _ OutputLogReader = &OutputLogIoReader{}

func NewOutputLogReader(reader io.Reader) *OutputLogIoReader {
	return &OutputLogIoReader{
		reader: bufio.NewReader(reader),
	}
}

func (o *OutputLogIoReader) Next() (Record, error) {
	rec, eof := readToRecord(o.reader)
	if eof {
		if rec.Error != nil {
			return rec, rec.Error
		}
		return rec, io.EOF
	}
	return rec, nil
}

func (o *OutputLogIoReader) Channel() <-chan Record {
	channel := make(chan Record)
	go func() {
		defer close(channel)
		for {
			rec, eof := readToRecord(o.reader)
			if eof {
				if rec.Error != nil {
					channel <- rec
				}
				return
			}
			channel <- rec
		}
	}()
	return channel
}

func (o *OutputLogIoReader) All() ([]Record, error) {
	var records []Record
	for {
		rec, err := o.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}

// readToRecord reads one record. The bool is true when no record was produced, either
// at a clean end of input (Error is nil) or on malformed input.
func readToRecord(reader *bufio.Reader) (Record, bool) {
	var rec Record

	header, err := reader.ReadString(':')
	if err != nil {
		if errors.Is(err, io.EOF) && header == "" {
			return rec, true
		}
		rec.Error = fmt.Errorf("reading header: %w", err)
		return rec, true
	}

	// The process name may itself contain ':'; keep reading until the header has all
	// four fields.
	for countSpaces(header) < 3 {
		more, err := reader.ReadString(':')
		if err != nil {
			rec.Error = fmt.Errorf("reading header: %w", err)
			return rec, true
		}
		header += more
	}

	length, err := parseHeader(header, &rec)
	if err != nil {
		rec.Error = err
		return rec, true
	}

	b, err := reader.ReadByte()
	if err != nil {
		rec.Error = fmt.Errorf("reading space after colon: %w", err)
		return rec, true
	}
	if b != ' ' {
		rec.Error = fmt.Errorf("expected space after colon, got %q", b)
		return rec, true
	}

	rec.Message = make([]byte, length)
	if _, err := io.ReadFull(reader, rec.Message); err != nil {
		rec.Error = fmt.Errorf("reading content (%d bytes): %w", length, err)
		return rec, true
	}

	b, err = reader.ReadByte()
	if err != nil {
		rec.Error = fmt.Errorf("reading final newline: %w", err)
		return rec, true
	}
	if b != '\n' {
		rec.Error = fmt.Errorf("expected newline separator, got %q", b)
		return rec, true
	}

	return rec, false
}

func countSpaces(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			n++
		}
	}
	return n
}
