package intel

import (
	"context"
	"fmt"

	"github.com/ugurrates/threat-intel-web/internal/entity"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	ErrTimeout        ErrorKind = "TIMEOUT"
	ErrUpstream       ErrorKind = "UPSTREAM_ERROR"
	ErrQuotaExhausted ErrorKind = "QUOTA_EXHAUSTED"
	ErrParse          ErrorKind = "PARSE_ERROR"
)

// SourceError is a typed, tolerated per-provider failure. The aggregator
// folds these into the result instead of failing the request.
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Provider is the capability every intelligence source implements.
type Provider interface {
	Name() string
	// Supports reports whether this provider can answer for the given kind.
	Supports(kind entity.Kind) bool
	// IsConfigured reports whether the provider is usable (e.g. has an API key).
	IsConfigured() bool
	// Query returns a normalized partial result or an error the aggregator
	// classifies into a SourceError.
	Query(ctx context.Context, ind entity.Indicator) (*entity.PartialResult, error)
}

// ProviderStatus describes a provider for the status endpoint.
type ProviderStatus struct {
	Name        string `json:"name"`
	Configured  bool   `json:"configured"`
	Description string `json:"description"`
}
