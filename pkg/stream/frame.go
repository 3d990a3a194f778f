package stream

import "strings"

// Sentinel markers delimiting the in-band sources block.
const (
	StartSourcesMarker = "START_SOURCES_STRING"
	EndSourcesMarker   = "END_SOURCES_STRING"
)

// FrameState is the position of the parser relative to a sources block.
type FrameState int

const (
	StateAnswer FrameState = iota
	StateInSource
)

func (s FrameState) String() string {
	switch s {
	case StateAnswer:
		return "answer"
	case StateInSource:
		return "in_source"
	default:
		return "unknown"
	}
}

// SegmentKind tags a Segment as answer text or source data.
type SegmentKind int

const (
	SegmentAnswer SegmentKind = iota
	SegmentSource
)

// Segment is a marker-free slice of decoded text.
type Segment struct {
	Kind SegmentKind
	Text string
}

func (s Segment) IsAnswer() bool { return s.Kind == SegmentAnswer }
func (s Segment) IsSource() bool { return s.Kind == SegmentSource }

// FramingMode selects how chunks inside an unterminated sources block are
// handled.
type FramingMode int

const (
	// FramingAccumulate keeps every chunk seen while in a sources block.
	FramingAccumulate FramingMode = iota
	// FramingLegacy drops a chunk that arrives inside a sources block but
	// carries no end marker.
	FramingLegacy
)

// Transition applies one decoded chunk to state. It has no side effects.
//
// Text that precedes a start marker in the same chunk is discarded.
func Transition(state FrameState, chunk string, mode FramingMode) (FrameState, []Segment) {
	var segments []Segment
	emit := func(kind SegmentKind, text string) {
		if text != "" {
			segments = append(segments, Segment{Kind: kind, Text: text})
		}
	}

	switch state {
	case StateInSource:
		end := strings.Index(chunk, EndSourcesMarker)
		if end == -1 {
			if mode == FramingAccumulate {
				emit(SegmentSource, chunk)
			}
			return StateInSource, segments
		}
		emit(SegmentSource, chunk[:end])
		emit(SegmentAnswer, chunk[end+len(EndSourcesMarker):])
		return StateAnswer, segments

	default:
		start := strings.Index(chunk, StartSourcesMarker)
		if start == -1 {
			emit(SegmentAnswer, chunk)
			return StateAnswer, segments
		}
		rest := chunk[start+len(StartSourcesMarker):]
		end := strings.Index(rest, EndSourcesMarker)
		if end == -1 {
			emit(SegmentSource, rest)
			return StateInSource, segments
		}
		emit(SegmentSource, rest[:end])
		emit(SegmentAnswer, rest[end+len(EndSourcesMarker):])
		return StateAnswer, segments
	}
}

// FrameParser carries Transition state across the chunks of one stream.
type FrameParser struct {
	state FrameState
	mode  FramingMode
}

func NewFrameParser(mode FramingMode) *FrameParser {
	return &FrameParser{state: StateAnswer, mode: mode}
}

// Feed parses the next chunk and returns the segments it produced.
func (p *FrameParser) Feed(chunk string) []Segment {
	var segments []Segment
	p.state, segments = Transition(p.state, chunk, p.mode)
	return segments
}

func (p *FrameParser) State() FrameState {
	return p.state
}

func (p *FrameParser) Reset() {
	p.state = StateAnswer
}
