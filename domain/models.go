package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Event is the envelope published on the books exchange.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventData is the payload a txt job expects. Pointers distinguish absent from empty.
type EventData struct {
	PDFPath *string `json:"PDFPath"`
	TXTPath *string `json:"TXTPath"`
}

// Job is one validated conversion request. It lives for the duration of one extraction run.
type Job struct {
	ID         string
	Type       string
	SourcePath string
	OutputDir  string
	ReceivedAt time.Time
}

// PageResult is one recognized page. Index is zero-based.
type PageResult struct {
	Index int
	Text  string
}

// FileName is the 1-indexed output name for the page.
func (p PageResult) FileName() string {
	return strconv.Itoa(p.Index+1) + ".txt"
}

// JobResult summarises a finished job for status stores and notifications.
type JobResult struct {
	JobID        string
	Status       string
	PagesWritten int
	PageErrors   int
	Err          error
	CompletedAt  time.Time
}

// Notification is sent downstream once a job reaches a terminal state.
type Notification struct {
	Type string           `json:"type"`
	Data NotificationData `json:"data"`
}

type NotificationData struct {
	JobID   string `json:"jobId"`
	PDFPath string `json:"PDFPath"`
	TXTPath string `json:"TXTPath"`
	Pages   int    `json:"pages"`
	Error   string `json:"error,omitempty"`
}

// ParseEvent decodes body and validates it into a Job. The returned Event carries
// whatever type could be read, even when validation fails, so callers can log it.
func ParseEvent(body []byte) (Event, Job, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, Job{}, &MalformedEventError{Reason: "invalid JSON", Err: err}
	}

	raw := bytes.TrimSpace(ev.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ev, Job{}, &MalformedEventError{Reason: "missing data"}
	}
	if raw[0] != '{' {
		return ev, Job{}, &MalformedEventError{Reason: "data is not an object"}
	}

	var data EventData
	if err := json.Unmarshal(raw, &data); err != nil {
		return ev, Job{}, &MalformedEventError{Reason: "invalid data", Err: err}
	}
	if data.PDFPath == nil || strings.TrimSpace(*data.PDFPath) == "" {
		return ev, Job{}, &MalformedEventError{Reason: "data.PDFPath is required"}
	}
	if data.TXTPath == nil || strings.TrimSpace(*data.TXTPath) == "" {
		return ev, Job{}, &MalformedEventError{Reason: "data.TXTPath is required"}
	}

	return ev, Job{
		Type:       ev.Type,
		SourcePath: *data.PDFPath,
		OutputDir:  *data.TXTPath,
	}, nil
}
