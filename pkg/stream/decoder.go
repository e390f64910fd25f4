// Package stream turns an incrementally-arriving byte stream into discrete
// JSON event records. The wire framing is the server-sent-events
// convention of one newline-terminated `data: <json>` line per record,
// parsed by hand because both backend streams are POST responses, not
// EventSource subscriptions.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/alterecho/alterecho/pkg/utils"
)

const dataMarker = "data: "

// Record is one parsed event. The raw JSON is kept so callers can decode
// into their own event shapes after inspecting the discriminator.
type Record struct {
	Raw json.RawMessage
}

// discriminator is the subset of fields used for routing.
type discriminator struct {
	Type string `json:"type"`
	Step string `json:"step"`
}

// Type returns the `type` discriminator (voice-call streams), or "".
func (r Record) Type() string {
	var d discriminator
	_ = json.Unmarshal(r.Raw, &d)
	return d.Type
}

// Step returns the `step` discriminator (memory-refresh streams), or "".
func (r Record) Step() string {
	var d discriminator
	_ = json.Unmarshal(r.Raw, &d)
	return d.Step
}

// Decoder accumulates chunks and yields complete records. Feeding the same
// byte stream in different fragmentations yields the same record sequence.
type Decoder struct {
	tail   string
	logger *slog.Logger
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{logger: utils.GetLogger()}
}

// Feed appends a chunk and returns every record completed by it. A line
// that fails to parse as JSON is logged and skipped; it never aborts the
// stream. Lines without the data marker are ignored.
func (d *Decoder) Feed(chunk []byte) []Record {
	text := d.tail + string(chunk)
	lines := strings.Split(text, "\n")
	// The final fragment may be an incomplete line; hold it back.
	d.tail = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var records []Record
	for _, line := range lines {
		rec, ok := d.parseLine(line)
		if ok {
			records = append(records, rec)
		}
	}
	return records
}

// Close discards any unterminated trailing fragment. The backend always
// terminates records with a newline, so a non-empty tail here is lost by
// contract, not by accident.
func (d *Decoder) Close() {
	if rest := strings.TrimSpace(d.tail); rest != "" {
		d.logger.Debug("discarding unterminated stream tail", "bytes", len(rest))
	}
	d.tail = ""
}

func (d *Decoder) parseLine(line string) (Record, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, dataMarker) {
		return Record{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataMarker))
	if payload == "" {
		return Record{}, false
	}
	if !json.Valid([]byte(payload)) {
		d.logger.Warn("skipping malformed stream event", "line", truncate(payload, 120))
		return Record{}, false
	}
	return Record{Raw: json.RawMessage(payload)}, true
}

// Pump reads body to completion, feeding chunks to the decoder and invoking
// fn for each complete record. It returns when the transport signals EOF,
// the context is cancelled, a read fails, or fn returns an error.
func Pump(ctx context.Context, body io.Reader, fn func(Record) error) error {
	d := NewDecoder()
	defer d.Close()

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, rec := range d.Feed(buf[:n]) {
				if err := fn(rec); err != nil {
					return err
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
