package stream

// Handler observes one chat turn as it streams.
type Handler interface {
	// OnChunk receives each answer-text delta in arrival order. Source data
	// and sentinel markers never reach it. Returning an error fails the turn.
	OnChunk(chunk []byte) error

	// OnComplete is called once with the committed answer text.
	OnComplete(finalContent string) error

	// OnError receives user-visible failures. Cancelled turns never call it.
	OnError(err error)
}

// HandlerFunc is a function adapter for Handler interface
type HandlerFunc struct {
	ChunkFunc    func(chunk []byte) error
	CompleteFunc func(finalContent string) error
	ErrorFunc    func(err error)
}

// OnChunk implements Handler
func (h HandlerFunc) OnChunk(chunk []byte) error {
	if h.ChunkFunc != nil {
		return h.ChunkFunc(chunk)
	}
	return nil
}

// OnComplete implements Handler
func (h HandlerFunc) OnComplete(finalContent string) error {
	if h.CompleteFunc != nil {
		return h.CompleteFunc(finalContent)
	}
	return nil
}

// OnError implements Handler
func (h HandlerFunc) OnError(err error) {
	if h.ErrorFunc != nil {
		h.ErrorFunc(err)
	}
}

// MultiHandler fans every event out to several handlers. The first error
// from OnChunk or OnComplete stops the fan-out and is returned.
type MultiHandler []Handler

func (m MultiHandler) OnChunk(chunk []byte) error {
	for _, h := range m {
		if err := h.OnChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiHandler) OnComplete(finalContent string) error {
	for _, h := range m {
		if err := h.OnComplete(finalContent); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiHandler) OnError(err error) {
	for _, h := range m {
		h.OnError(err)
	}
}

// Ensure implementations satisfy the interface
var (
	_ Handler = HandlerFunc{}
	_ Handler = MultiHandler{}
)
