package retrieval

import (
	"errors"
	"fmt"
)

// ErrAllSourcesUnavailable is returned when every candidate source failed
// and no results are possible.
var ErrAllSourcesUnavailable = errors.New("all candidate sources unavailable")

// SourceUnavailableError wraps a single source failure. The pipeline
// recovers from it by degrading to single-source mode; it surfaces only
// inside ErrAllSourcesUnavailable handling and logs.
type SourceUnavailableError struct {
	Source Source
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("%s source unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// DataInconsistencyError reports a violated source contract: a duplicate
// document id within one source's list, or conflicting immutable metadata
// for the same id across sources. It is fatal for the request; silently
// patching it could hide index corruption.
type DataInconsistencyError struct {
	DocumentID string
	Source     Source
	Reason     string
}

func (e *DataInconsistencyError) Error() string {
	return fmt.Sprintf("data inconsistency for document %q (source %s): %s", e.DocumentID, e.Source, e.Reason)
}

// TenantIsolationError reports a candidate whose metadata does not match
// the requested partition. Always fatal: filtering it out and continuing
// would mask a cross-tenant leak.
type TenantIsolationError struct {
	DocumentID string
	Source     Source
	Field      string
	Want       string
	Got        string
}

func (e *TenantIsolationError) Error() string {
	return fmt.Sprintf("tenant isolation violation: document %q from %s source has %s %q, partition requires %q",
		e.DocumentID, e.Source, e.Field, e.Got, e.Want)
}

// InsufficientResultsError is returned only when the caller set a minimum
// result count and fewer were available. Zero results without a minimum is
// an empty list, not an error.
type InsufficientResultsError struct {
	Required  int
	Available int
}

func (e *InsufficientResultsError) Error() string {
	return fmt.Sprintf("insufficient results: required %d, got %d", e.Required, e.Available)
}
