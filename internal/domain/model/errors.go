package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds shared across layers. These allow errors.Is/As from callers.
var (
	// ErrFetch marks a transient upstream failure: unavailable or malformed response.
	ErrFetch = errors.New("fetch failed")
	// ErrStateCorrupt marks a persisted state that cannot be read back.
	ErrStateCorrupt = errors.New("state corrupt")
	// ErrEmptyRoster marks a roster fetch that returned no members. A club
	// always has at least its president, so this is never a real roster.
	ErrEmptyRoster = errors.New("empty club roster")
)

// FetchError describes a failed upstream fetch.
type FetchError struct {
	Target string // what was fetched, e.g. "roster", "player #ABC"
	Status int    // HTTP status when known, 0 otherwise
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Target, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Target, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is reports every FetchError as ErrFetch.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// PartialBatchError reports members skipped in an otherwise committed stats cycle.
type PartialBatchError struct {
	Failed []string
	Total  int
}

func (e *PartialBatchError) Error() string {
	return fmt.Sprintf("%d of %d members failed to fetch: %s", len(e.Failed), e.Total, strings.Join(e.Failed, ", "))
}
