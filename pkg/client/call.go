package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alterecho/alterecho/pkg/models"
	"github.com/alterecho/alterecho/pkg/stream"
)

// StreamVoiceCall sends one call turn and streams back interleaved text
// deltas and audio chunks. Like RefreshMemory it reports everything through
// the returned channel, which always closes when the stream ends.
func (c *Client) StreamVoiceCall(ctx context.Context, sessionID, content string) <-chan CallEvent {
	events := make(chan CallEvent, 16)
	go func() {
		defer close(events)
		if err := c.runCall(ctx, sessionID, content, events); err != nil {
			events <- CallEvent{Kind: CallError, Err: err}
		}
	}()
	return events
}

func (c *Client) runCall(ctx context.Context, sessionID, content string, events chan<- CallEvent) error {
	reqBody, err := c.buildContext(ctx, sessionID)
	if err != nil {
		return err
	}
	reqBody.Content = content

	resp, err := c.postStream(ctx, "/api/call/stream", reqBody)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var done, failed bool
	err = stream.Pump(ctx, resp.Body, func(rec stream.Record) error {
		var cr models.CallStreamRecord
		if err := json.Unmarshal(rec.Raw, &cr); err != nil {
			c.logger.Warn("skipping undecodable call record", "error", err)
			return nil
		}
		switch cr.Type {
		case "text":
			events <- CallEvent{Kind: CallText, Text: cr.Content}
		case "audio":
			events <- CallEvent{Kind: CallAudio, AudioB64: cr.Content, Index: cr.Index}
		case "status":
			events <- CallEvent{Kind: CallState, Text: cr.Content}
		case "done":
			done = true
			events <- CallEvent{Kind: CallDone, FullText: cr.FullText}
		case "error":
			failed = true
			events <- CallEvent{Kind: CallError, Err: &ServerError{Status: http.StatusOK, Message: cr.Content}}
		default:
			c.logger.Debug("ignoring unknown call record", "type", cr.Type)
		}
		return nil
	})
	if err != nil {
		return &NetworkError{Err: err}
	}
	if failed {
		return nil
	}
	if !done {
		return &MalformedResponseError{Err: fmt.Errorf("stream ended without a terminal record")}
	}
	// Only a successful round trip proves the backend cached the
	// embeddings payload; a turn that errored may never have seen it.
	c.markContextCached(sessionID)
	return nil
}
