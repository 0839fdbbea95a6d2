// Package apperr defines the error taxonomy shared by the analysis stages.
package apperr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrSchema        = errors.New("schema error")
	ErrDuplicateURL  = errors.New("duplicate url")
	ErrProvider      = errors.New("provider error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

// SchemaError reports a required column that no header of Source resolves to.
type SchemaError struct {
	Source  string
	Field   string
	Headers []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required column %q (headers: %s)",
		e.Source, e.Field, strings.Join(e.Headers, ", "))
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// DuplicateURLError reports two crawl rows that normalize to the same page.
type DuplicateURLError struct {
	Source string
	URL    string   // normalized form
	Raw    []string // URLs as they appear in the export
	Rows   []int
}

func (e *DuplicateURLError) Error() string {
	return fmt.Sprintf("%s: duplicate url %q at rows %v (%s)",
		e.Source, e.URL, e.Rows, strings.Join(e.Raw, " / "))
}

func (e *DuplicateURLError) Is(target error) bool { return target == ErrDuplicateURL }

// ConfigurationError reports an invalid setting or threshold combination.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ProviderKind classifies an enrichment failure.
type ProviderKind string

const (
	KindAuth        ProviderKind = "auth"
	KindRateLimit   ProviderKind = "rate_limit"
	KindTimeout     ProviderKind = "timeout"
	KindUnavailable ProviderKind = "unavailable"
	KindResponse    ProviderKind = "response"
	KindCanceled    ProviderKind = "canceled"
)

// ProviderError wraps a failed call to the keyword metrics provider.
type ProviderError struct {
	Kind       ProviderKind
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString("provider ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// Retryable reports whether the same request may succeed if sent again.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}
