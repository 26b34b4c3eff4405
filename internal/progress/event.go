package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageSegmentStart Stage = "SEGMENT_START"
	StageSegmentDone  Stage = "SEGMENT_DONE"
	StageFetched      Stage = "FETCHED"
	StageSaved        Stage = "SAVED"
	StageFailed       Stage = "FAILED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetches.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures one step of a sync run.
type Event struct {
	// RunID groups every event of one driver invocation.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Source and Segment scope the event; both are empty for run-level stages.
	Source  string
	Segment string
	// Index is the traversal index (page number or card number).
	Index int
	URL   string
	// Bytes and StatusClass describe a fetch.
	Bytes       int64
	StatusClass StatusClass
	// Written is the number of records committed for a SAVED event, or the
	// segment total for SEGMENT_DONE.
	Written int
	// Reason is the terminal condition for SEGMENT_DONE.
	Reason string
	Dur    time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageSegmentStart:
		if e.Segment == "" {
			return errors.New("segment start requires segment")
		}
	case StageSegmentDone:
		if e.Segment == "" {
			return errors.New("segment done requires segment")
		}
		if e.Reason == "" {
			return errors.New("segment done requires reason")
		}
	case StageFetched, StageSaved, StageFailed:
		if e.Segment == "" || e.Index <= 0 {
			return fmt.Errorf("%s requires segment and index", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
