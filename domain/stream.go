package domain

import (
	"errors"
	"strconv"
)

var ErrEventAfterTerminal = errors.New("extraction event after terminal state")

type EventKind int

const (
	EventPage EventKind = iota + 1
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPage:
		return "page"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ExtractionEvent is one signal from an extraction engine.
type ExtractionEvent struct {
	Kind EventKind
	Page PageResult
	Err  error
}

func PageEvent(index int, text string) ExtractionEvent {
	return ExtractionEvent{Kind: EventPage, Page: PageResult{Index: index, Text: text}}
}

func CompleteEvent() ExtractionEvent {
	return ExtractionEvent{Kind: EventComplete}
}

func ErrorEvent(err error) ExtractionEvent {
	return ExtractionEvent{Kind: EventError, Err: err}
}

type StreamState int

const (
	StreamRunning StreamState = iota
	StreamCompleted
	StreamFailed
)

func (s StreamState) String() string {
	switch s {
	case StreamRunning:
		return "running"
	case StreamCompleted:
		return "completed"
	case StreamFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stream tracks a consumer's view of one extraction run.
// Running accepts pages and moves to Completed or Failed exactly once.
type Stream struct {
	state StreamState
	pages int
	err   error
}

func NewStream() *Stream {
	return &Stream{state: StreamRunning}
}

// Apply advances the state machine. Any event after a terminal one is rejected.
func (s *Stream) Apply(ev ExtractionEvent) error {
	if s.state != StreamRunning {
		return ErrEventAfterTerminal
	}
	switch ev.Kind {
	case EventPage:
		s.pages++
	case EventComplete:
		s.state = StreamCompleted
	case EventError:
		s.state = StreamFailed
		s.err = ev.Err
		if s.err == nil {
			s.err = errors.New("extraction failed")
		}
	default:
		return errors.New("unknown extraction event kind " + strconv.Itoa(int(ev.Kind)))
	}
	return nil
}

// Close is called once the event channel is drained. A stream still running has been truncated.
func (s *Stream) Close() {
	if s.state == StreamRunning {
		s.state = StreamFailed
		s.err = ErrStreamTruncated
	}
}

func (s *Stream) State() StreamState { return s.state }
func (s *Stream) Terminal() bool     { return s.state != StreamRunning }
func (s *Stream) Pages() int         { return s.pages }
func (s *Stream) Err() error         { return s.err }
