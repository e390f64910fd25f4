package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func collectTypes(records []Record) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.Type())
	}
	return out
}

func TestFeed_WholeStream(t *testing.T) {
	d := NewDecoder()
	input := "data: {\"type\":\"text\",\"content\":\"hi\"}\n" +
		"data: {\"type\":\"audio\",\"content\":\"YQ==\",\"index\":0}\n" +
		"data: {\"type\":\"done\",\"full_text\":\"hi\"}\n"

	records := d.Feed([]byte(input))
	got := collectTypes(records)
	want := []string{"text", "audio", "done"}
	if len(got) != len(want) {
		t.Fatalf("records = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("records[%d] type = %q, want %q", i, got[i], want[i])
		}
	}
}

// Splitting the encoded stream at arbitrary byte boundaries must yield the
// same record sequence as feeding it whole.
func TestFeed_FragmentationInvariance(t *testing.T) {
	input := "data: {\"step\":\"progress\",\"progress\":10}\n" +
		"data: {\"step\":\"progress\",\"progress\":70}\n" +
		"data: {\"step\":\"complete\",\"message\":\"done\"}\n"

	whole := NewDecoder().Feed([]byte(input))

	for _, size := range []int{1, 2, 3, 5, 7, 11, 13, len(input) - 1} {
		d := NewDecoder()
		var records []Record
		for start := 0; start < len(input); start += size {
			end := start + size
			if end > len(input) {
				end = len(input)
			}
			records = append(records, d.Feed([]byte(input[start:end]))...)
		}
		d.Close()

		if len(records) != len(whole) {
			t.Fatalf("fragment size %d: got %d records, want %d", size, len(records), len(whole))
		}
		for i := range whole {
			if string(records[i].Raw) != string(whole[i].Raw) {
				t.Fatalf("fragment size %d: records[%d] = %s, want %s", size, i, records[i].Raw, whole[i].Raw)
			}
		}
	}
}

func TestFeed_MalformedLineTolerance(t *testing.T) {
	d := NewDecoder()
	input := "data: {\"type\":\"text\",\"content\":\"before\"}\n" +
		"data: {not valid json\n" +
		"data: {\"type\":\"text\",\"content\":\"after\"}\n"

	records := d.Feed([]byte(input))
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (malformed line skipped)", len(records))
	}
	if records[0].Type() != "text" || records[1].Type() != "text" {
		t.Fatalf("unexpected record types: %v", collectTypes(records))
	}
}

func TestFeed_IgnoresNonDataLines(t *testing.T) {
	d := NewDecoder()
	input := ": comment\n\nretry: 500\ndata: {\"type\":\"status\",\"content\":\"processing\"}\n"

	records := d.Feed([]byte(input))
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Type() != "status" {
		t.Fatalf("record type = %q, want status", records[0].Type())
	}
}

func TestFeed_HoldsTailAcrossCalls(t *testing.T) {
	d := NewDecoder()

	if records := d.Feed([]byte("data: {\"type\":\"te")); len(records) != 0 {
		t.Fatalf("incomplete line yielded %d records, want 0", len(records))
	}
	records := d.Feed([]byte("xt\",\"content\":\"joined\"}\n"))
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 after completion", len(records))
	}
	if records[0].Type() != "text" {
		t.Fatalf("record type = %q, want text", records[0].Type())
	}
}

func TestRecord_StepDiscriminator(t *testing.T) {
	d := NewDecoder()
	records := d.Feed([]byte("data: {\"step\":\"complete\",\"style_summary\":\"s\"}\n"))
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if got := records[0].Step(); got != "complete" {
		t.Fatalf("Step() = %q, want complete", got)
	}
	if got := records[0].Type(); got != "" {
		t.Fatalf("Type() = %q, want empty", got)
	}
}

func TestPump_ReadsToEOF(t *testing.T) {
	input := "data: {\"type\":\"text\",\"content\":\"a\"}\ndata: {\"type\":\"done\"}\n"
	var got []string
	err := Pump(context.Background(), strings.NewReader(input), func(r Record) error {
		got = append(got, r.Type())
		return nil
	})
	if err != nil {
		t.Fatalf("Pump() error = %v", err)
	}
	if len(got) != 2 || got[0] != "text" || got[1] != "done" {
		t.Fatalf("Pump() records = %v", got)
	}
}

func TestPump_StopsOnCallbackError(t *testing.T) {
	input := "data: {\"type\":\"text\"}\ndata: {\"type\":\"done\"}\n"
	wantErr := errors.New("stop")
	calls := 0
	err := Pump(context.Background(), strings.NewReader(input), func(Record) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Pump() error = %v, want %v", err, wantErr)
	}
	if calls != 1 {
		t.Fatalf("callback calls = %d, want 1", calls)
	}
}

func TestPump_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Pump(ctx, strings.NewReader("data: {\"type\":\"text\"}\n"), func(Record) error { return nil })
	if err == nil {
		t.Fatalf("Pump() error = nil, want context error")
	}
}
