package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeDecoder lets tests control when each chunk's decode completes.
type fakeDecoder struct {
	mu       sync.Mutex
	releases map[string]chan struct{}
	failures map[string]bool
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		releases: make(map[string]chan struct{}),
		failures: make(map[string]bool),
	}
}

func (d *fakeDecoder) gate(name string) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.releases[name]
	if !ok {
		ch = make(chan struct{})
		d.releases[name] = ch
	}
	return ch
}

func (d *fakeDecoder) release(name string) {
	close(d.gate(name))
}

func (d *fakeDecoder) failNext(name string) {
	d.mu.Lock()
	d.failures[name] = true
	d.mu.Unlock()
}

func (d *fakeDecoder) Decode(_ context.Context, encoded []byte) (Clip, error) {
	name := string(encoded)
	<-d.gate(name)
	d.mu.Lock()
	fail := d.failures[name]
	d.mu.Unlock()
	if fail {
		return nil, errors.New("bad chunk")
	}
	return name, nil
}

// fakePlayer records playback order.
type fakePlayer struct {
	mu     sync.Mutex
	played []string
}

func (p *fakePlayer) Play(_ context.Context, clip Clip) error {
	time.Sleep(2 * time.Millisecond) // playback is bounded by clip duration
	p.mu.Lock()
	p.played = append(p.played, clip.(string))
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) playedOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.played))
	copy(out, p.played)
	return out
}

func waitFinished(t *testing.T, seq *Sequencer, ctx context.Context) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	seq.NotifyFinished(ctx, func() { close(done) })
	return done
}

func TestPlaybackOrder_MatchesArrivalOrder(t *testing.T) {
	ctx := context.Background()
	dec := newFakeDecoder()
	player := &fakePlayer{}
	seq := NewSequencer(dec, player)

	names := []string{"c1", "c2", "c3", "c4"}
	for _, n := range names {
		seq.Enqueue(ctx, []byte(n))
	}

	// Decodes complete in reverse order; playback must not reorder.
	for i := len(names) - 1; i >= 0; i-- {
		dec.release(names[i])
	}

	done := waitFinished(t, seq, ctx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("finished callback never fired; played so far: %v", player.playedOrder())
	}

	got := player.playedOrder()
	if len(got) != len(names) {
		t.Fatalf("played %d chunks, want %d: %v", len(got), len(names), got)
	}
	for i, n := range names {
		if got[i] != n {
			t.Fatalf("playback order = %v, want %v", got, names)
		}
	}
}

func TestFinished_ExactlyOnce_LateRegistration(t *testing.T) {
	ctx := context.Background()
	dec := newFakeDecoder()
	player := &fakePlayer{}
	seq := NewSequencer(dec, player)

	seq.Enqueue(ctx, []byte("only"))
	dec.release("only")

	// Let the chunk decode and play fully before registering.
	deadline := time.Now().Add(2 * time.Second)
	for len(player.playedOrder()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("chunk never played")
		}
		time.Sleep(time.Millisecond)
	}

	var mu sync.Mutex
	calls := 0
	seq.NotifyFinished(ctx, func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("finished callback ran %d times, want exactly 1", calls)
	}
}

func TestDecodeFailure_DropsChunkOnly(t *testing.T) {
	ctx := context.Background()
	dec := newFakeDecoder()
	player := &fakePlayer{}
	seq := NewSequencer(dec, player)

	seq.Enqueue(ctx, []byte("good1"))
	seq.Enqueue(ctx, []byte("bad"))
	seq.Enqueue(ctx, []byte("good2"))

	dec.failNext("bad")
	dec.release("good1")
	dec.release("bad")
	dec.release("good2")

	done := waitFinished(t, seq, ctx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("finished callback never fired; played: %v", player.playedOrder())
	}

	got := player.playedOrder()
	if len(got) != 2 || got[0] != "good1" || got[1] != "good2" {
		t.Fatalf("played = %v, want [good1 good2]", got)
	}
}

func TestStop_CancelsCallbackAndIgnoresLateChunks(t *testing.T) {
	ctx := context.Background()
	dec := newFakeDecoder()
	player := &fakePlayer{}
	seq := NewSequencer(dec, player)

	seq.Enqueue(ctx, []byte("inflight"))

	fired := false
	seq.NotifyFinished(ctx, func() { fired = true })

	seq.Stop()

	// The in-flight decode lands in a cleared queue and is ignored.
	dec.release("inflight")
	// Enqueues after hangup are dropped.
	seq.Enqueue(ctx, []byte("late"))
	dec.release("late")

	time.Sleep(100 * time.Millisecond)
	if fired {
		t.Fatalf("finished callback fired after Stop()")
	}
	if got := player.playedOrder(); len(got) != 0 {
		t.Fatalf("played = %v after Stop(), want nothing", got)
	}
}

func TestEnqueueBase64_RejectsBadEncoding(t *testing.T) {
	seq := NewSequencer(newFakeDecoder(), &fakePlayer{})
	if err := seq.EnqueueBase64(context.Background(), "!!not-base64!!"); err == nil {
		t.Fatalf("EnqueueBase64() error = nil, want decode error")
	}
}

func TestPlaybackOrder_ManyInterleavings(t *testing.T) {
	// Release decodes in several scrambled orders; playback must always
	// come out 1..N.
	orders := [][]int{
		{0, 1, 2, 3, 4},
		{4, 3, 2, 1, 0},
		{2, 0, 4, 1, 3},
		{1, 4, 0, 3, 2},
	}
	for _, order := range orders {
		ctx := context.Background()
		dec := newFakeDecoder()
		player := &fakePlayer{}
		seq := NewSequencer(dec, player)

		names := make([]string, 5)
		for i := range names {
			names[i] = fmt.Sprintf("chunk-%d", i)
			seq.Enqueue(ctx, []byte(names[i]))
		}
		for _, idx := range order {
			dec.release(names[idx])
			time.Sleep(time.Millisecond)
		}

		done := waitFinished(t, seq, ctx)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("order %v: finished never fired; played %v", order, player.playedOrder())
		}

		got := player.playedOrder()
		for i, n := range names {
			if got[i] != n {
				t.Fatalf("release order %v: playback = %v, want %v", order, got, names)
			}
		}
	}
}
