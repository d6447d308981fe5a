package model

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a crawl session.
type State int

const (
	// StateReady is a configured session that has not started.
	StateReady State = iota
	// StateRunning is a session processing its frontier.
	StateRunning
	// StateCompleted means the frontier emptied before the page limit.
	StateCompleted
	// StatePageLimitReached means max_pages pages were fetched.
	StatePageLimitReached
	// StateAborted means the session was canceled or the sink kept failing.
	StateAborted
)

// String returns the state name in upper snake case.
func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	case StatePageLimitReached:
		return "PAGE_LIMIT_REACHED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StatePageLimitReached || s == StateAborted
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseState is the inverse of State.String.
func ParseState(name string) (State, error) {
	for st := StateReady; st <= StateAborted; st++ {
		if st.String() == name {
			return st, nil
		}
	}
	return StateReady, fmt.Errorf("unknown crawl state %q", name)
}

// PageStatus is the outcome of processing one frontier target.
type PageStatus string

const (
	// PageSaved means the page was fetched, extracted and persisted.
	PageSaved PageStatus = "saved"
	// PageFailed means fetching or extraction failed.
	PageFailed PageStatus = "failed"
	// PageSinkError means the page was extracted but could not be written.
	PageSinkError PageStatus = "sink_error"
)

// PageOutcome records what happened to one target.
type PageOutcome struct {
	Target     CrawlTarget   `json:"target"`
	Status     PageStatus    `json:"status"`
	StatusCode int           `json:"status_code,omitempty"`
	Class      ErrorClass    `json:"error_class,omitempty"`
	Error      string        `json:"error,omitempty"`
	Title      string        `json:"title,omitempty"`
	File       string        `json:"file,omitempty"`
	Hash       string        `json:"content_hash,omitempty"`
	Links      int           `json:"links"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
}

// Summary is the result of one crawl invocation.
type Summary struct {
	SessionID    string             `json:"session_id,omitempty"`
	StartURL     string             `json:"start_url"`
	OutputDir    string             `json:"output_dir"`
	State        State              `json:"state"`
	PagesFetched int                `json:"pages_fetched"`
	MaxPages     int                `json:"max_pages"`
	MaxDepth     int                `json:"max_depth"`
	Saved        int                `json:"saved"`
	Failed       int                `json:"failed"`
	SinkFailures int                `json:"sink_failures"`
	Discarded    int                `json:"discarded"`
	Errors       map[ErrorClass]int `json:"errors,omitempty"`
	AbortReason  string             `json:"abort_reason,omitempty"`
	StartedAt    time.Time          `json:"started_at"`
	FinishedAt   time.Time          `json:"finished_at"`
	Pages        []PageOutcome      `json:"pages,omitempty"`
}

// FailedOrSkipped is the count reported next to Saved at the end of a run:
// failed fetches, pages that could not be written, and discarded targets.
func (s Summary) FailedOrSkipped() int {
	return s.Failed + s.SinkFailures + s.Discarded
}

// Duration is the wall time of the session.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
