// Package voice runs the hands-free call loop: listen for one utterance,
// stream the reply, play its audio, listen again.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alterecho/alterecho/pkg/audio"
	"github.com/alterecho/alterecho/pkg/client"
	"github.com/alterecho/alterecho/pkg/utils"
)

// ErrRecognitionUnavailable means no speech recognition backend exists on
// this platform. It is terminal: the loop cannot run without one.
var ErrRecognitionUnavailable = errors.New("speech recognition unavailable")

// restartDelay spaces out retries after a failed listen so a flaky
// microphone cannot spin the loop hot.
const restartDelay = 500 * time.Millisecond

// Recognizer captures one utterance per call. Listen blocks until speech
// is transcribed, the context is cancelled, or recognition fails.
type Recognizer interface {
	Listen(ctx context.Context) (string, error)
}

// Turn runs one conversational exchange for an utterance and streams back
// its events. Implementations typically wrap Client.StreamVoiceCall.
type Turn func(ctx context.Context, utterance string) <-chan client.CallEvent

// Loop alternates between listening and speaking. Replies play through the
// sequencer; listening resumes only after the last audio chunk finishes.
type Loop struct {
	recognizer Recognizer
	turn       Turn
	sequencer  *audio.Sequencer
	logger     *slog.Logger

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc

	// OnText, when set, receives the reply's text deltas for display.
	OnText func(delta string)
	// OnError, when set, receives non-fatal turn errors.
	OnError func(err error)
}

// NewLoop wires a recognizer and a turn runner to an audio sequencer.
func NewLoop(rec Recognizer, turn Turn, seq *audio.Sequencer) *Loop {
	return &Loop{
		recognizer: rec,
		turn:       turn,
		sequencer:  seq,
		logger:     utils.GetLogger(),
	}
}

// Run drives the loop until Stop is called, the context is cancelled, or
// recognition turns out to be unavailable.
func (l *Loop) Run(ctx context.Context) error {
	if l.recognizer == nil {
		return ErrRecognitionUnavailable
	}

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		cancel()
		return nil
	}
	l.cancel = cancel
	l.mu.Unlock()
	defer cancel()

	for {
		if err := ctx.Err(); err != nil {
			return l.exitErr(err)
		}

		utterance, err := l.recognizer.Listen(ctx)
		if err != nil {
			if errors.Is(err, ErrRecognitionUnavailable) {
				return err
			}
			if ctx.Err() != nil {
				return l.exitErr(ctx.Err())
			}
			l.logger.Warn("recognition failed, retrying", "error", err)
			select {
			case <-time.After(restartDelay):
			case <-ctx.Done():
				return l.exitErr(ctx.Err())
			}
			continue
		}
		if utterance == "" {
			continue
		}

		l.speak(ctx, utterance)

		// Block until playback drains, then loop back to listening.
		select {
		case <-l.playbackDone(ctx):
		case <-ctx.Done():
			return l.exitErr(ctx.Err())
		}
	}
}

// speak runs one turn and routes its events to the sequencer and the
// display callbacks. Turn errors end the utterance, not the loop.
func (l *Loop) speak(ctx context.Context, utterance string) {
	for ev := range l.turn(ctx, utterance) {
		switch ev.Kind {
		case client.CallText:
			if l.OnText != nil {
				l.OnText(ev.Text)
			}
		case client.CallAudio:
			if err := l.sequencer.EnqueueBase64(ctx, ev.AudioB64); err != nil {
				l.logger.Warn("dropping undecodable audio chunk", "index", ev.Index, "error", err)
			}
		case client.CallError:
			l.logger.Warn("turn failed", "error", ev.Err)
			if l.OnError != nil {
				l.OnError(ev.Err)
			}
		}
	}
}

// playbackDone returns a channel that closes once all queued audio has
// played. An utterance with no audio resolves immediately via the
// sequencer's idle detection.
func (l *Loop) playbackDone(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	l.sequencer.NotifyFinished(ctx, func() { close(done) })
	return done
}

// Stop ends the loop for good: pending audio is dropped, the recognizer's
// current Listen is cancelled, and Run returns nil.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	cancel := l.cancel
	l.mu.Unlock()

	l.sequencer.Stop()
	if cancel != nil {
		cancel()
	}
}

// exitErr maps cancellation after Stop to a clean exit; an outside
// cancellation propagates to the caller.
func (l *Loop) exitErr(err error) error {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		return nil
	}
	return err
}
