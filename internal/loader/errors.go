package loader

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrFetchFailed covers unreachable files, hosts and databases and unknown identifiers.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrParseFailed is returned when the payload is not valid JSON.
	ErrParseFailed = errors.New("parse failed")
	// ErrInvalidFormat is returned for valid JSON that is not a FeatureCollection.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrAggregateLoadFailed is returned by LoadMultiple when every source failed.
	ErrAggregateLoadFailed = errors.New("all sources failed to load")
	// ErrUnknownSource is returned when an identifier is not in the source table.
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidInput is returned for malformed identifier lists.
	ErrInvalidInput = errors.New("invalid input")
)

// Error describes the failure of a single source.
// errors.Is matches both Kind and the underlying cause.
type Error struct {
	Source string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source %s: %v: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// AggregateError is returned when no requested source could be loaded.
type AggregateError struct {
	Failures map[string]error
}

func (e *AggregateError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, e.Failures[id].Error())
	}
	return fmt.Sprintf("%v: %s", ErrAggregateLoadFailed, strings.Join(parts, "; "))
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrAggregateLoadFailed)
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}
