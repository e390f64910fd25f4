// Package audio plays independently-arriving, independently-decoded audio
// chunks back-to-back in strict arrival order, and reports "all finished"
// exactly once when every chunk has both decoded and played.
package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alterecho/alterecho/pkg/utils"
)

// Clip is a decoded audio buffer, opaque to the sequencer.
type Clip interface{}

// Decoder turns an encoded chunk into a playable clip. Implementations wrap
// the platform's audio-decode capability.
type Decoder interface {
	Decode(ctx context.Context, encoded []byte) (Clip, error)
}

// Player plays one clip and returns when playback has finished.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// retryDelay is the deferred re-check used when a finished callback is
// registered after everything already drained.
const retryDelay = 15 * time.Millisecond

type slotState int

const (
	slotPending slotState = iota // decode in flight
	slotReady                    // decoded, waiting to play
)

type slot struct {
	state slotState
	clip  Clip
}

// Sequencer owns the per-call playback pipeline. A chunk's queue position
// is claimed at submit time, so decodes completing out of order can never
// reorder playback; an undecoded head simply stalls the queue until its
// decode lands.
type Sequencer struct {
	decoder Decoder
	player  Player
	logger  *slog.Logger

	mu       sync.Mutex
	queue    []*slot
	decoding int
	playing  bool
	finished func()
	stopped  bool
}

// NewSequencer creates a sequencer for one voice call.
func NewSequencer(decoder Decoder, player Player) *Sequencer {
	return &Sequencer{
		decoder: decoder,
		player:  player,
		logger:  utils.GetLogger(),
	}
}

// EnqueueBase64 decodes the transport encoding and enqueues the chunk.
func (s *Sequencer) EnqueueBase64(ctx context.Context, encoded string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decode audio chunk base64: %w", err)
	}
	s.Enqueue(ctx, data)
	return nil
}

// Enqueue claims the next queue position and starts an asynchronous decode.
// A decode failure is logged and the chunk dropped; one bad chunk never
// aborts the call.
func (s *Sequencer) Enqueue(ctx context.Context, encoded []byte) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	sl := &slot{state: slotPending}
	s.queue = append(s.queue, sl)
	s.decoding++
	s.mu.Unlock()

	go func() {
		clip, err := s.decoder.Decode(ctx, encoded)

		s.mu.Lock()
		if s.decoding > 0 {
			s.decoding--
		}
		if err != nil {
			s.logger.Warn("dropping undecodable audio chunk", "error", err)
			s.removeLocked(sl)
		} else {
			sl.state = slotReady
			sl.clip = clip
		}
		s.mu.Unlock()

		s.advance(ctx)
	}()
}

// NotifyFinished arms fn to run once everything enqueued so far has decoded
// and played. If the pipeline is already idle the check is re-triggered via
// a short deferred retry, so the callback cannot strand.
func (s *Sequencer) NotifyFinished(ctx context.Context, fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.finished = fn
	s.mu.Unlock()

	time.AfterFunc(retryDelay, func() { s.advance(ctx) })
}

// Stop clears pending audio and cancels any armed finished callback without
// invoking it. Chunks still mid-decode land in a cleared queue and are
// ignored; subsequent enqueues are dropped.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	s.queue = nil
	s.finished = nil
	s.decoding = 0
	s.stopped = true
	s.mu.Unlock()
}

// advance is the single playback driver. It is a no-op while a clip is
// playing; that flag is the sole reentrancy guard.
func (s *Sequencer) advance(ctx context.Context) {
	s.mu.Lock()
	if s.playing || s.stopped {
		s.mu.Unlock()
		return
	}

	if len(s.queue) > 0 {
		head := s.queue[0]
		if head.state != slotReady {
			// Head still decoding; it stalls the queue to keep order.
			s.mu.Unlock()
			return
		}
		s.queue = s.queue[1:]
		s.playing = true
		clip := head.clip
		s.mu.Unlock()

		go func() {
			if err := s.player.Play(ctx, clip); err != nil {
				s.logger.Warn("audio playback failed", "error", err)
			}
			s.mu.Lock()
			s.playing = false
			s.mu.Unlock()
			s.advance(ctx)
		}()
		return
	}

	// Queue drained: fire the finished callback exactly once, only when no
	// decode is still in flight.
	if s.decoding == 0 && s.finished != nil {
		fn := s.finished
		s.finished = nil
		s.mu.Unlock()
		fn()
		return
	}
	s.mu.Unlock()
}

// removeLocked drops sl from the queue if it is still there. Callers hold mu.
func (s *Sequencer) removeLocked(sl *slot) {
	for i, q := range s.queue {
		if q == sl {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}
