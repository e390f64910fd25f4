package client

// The streaming operations deliver their results as tagged events on a
// single channel. The channel is always closed when the stream ends,
// whether it finished, failed, or was cancelled.

// Refresh event kinds.
const (
	RefreshProgress = "progress"
	RefreshComplete = "complete"
	RefreshError    = "error"
)

// RefreshEvent is one step of a memory refresh.
type RefreshEvent struct {
	Kind     string // RefreshProgress, RefreshComplete or RefreshError
	Stage    string // backend pipeline stage: cleaning, processing, summary, embeddings, voice
	Progress int    // 0..100
	Message  string
	Err      error // set only for RefreshError
}

// Call event kinds mirror the wire discriminator.
const (
	CallText  = "text"
	CallAudio = "audio"
	CallState = "status"
	CallDone  = "done"
	CallError = "error"
)

// CallEvent is one record of a voice call stream.
type CallEvent struct {
	Kind     string
	Text     string // CallText delta or CallState description
	AudioB64 string // CallAudio payload, base64 PCM
	Index    int    // CallAudio ordinal within the stream
	FullText string // CallDone: the assistant's complete reply
	Err      error  // set only for CallError
}
