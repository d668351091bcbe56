// Package atlaserr defines the typed error kinds the crawl engine uses to
// classify failures for the error budget, error records, and exit codes.
package atlaserr

import "fmt"

// Kind is one of the error kinds enumerated in the error handling design.
type Kind string

const (
	KindFetchTimeout      Kind = "fetch_timeout"
	KindFetchNetwork      Kind = "fetch_network"
	KindFetchHTTPError    Kind = "fetch_http_error"
	KindRenderTimeout     Kind = "render_timeout"
	KindRenderCrash       Kind = "render_crash"
	KindExtractValidation Kind = "extract_validation"
	KindWriteIO           Kind = "write_io"
	KindRobotsFetch       Kind = "robots_fetch"
	KindPolicyDenied      Kind = "policy_denied"
	KindSchemaViolation   Kind = "schema_violation"
	KindCheckpointIO      Kind = "checkpoint_io"
	KindFatalUnknown      Kind = "fatal_unknown"
)

// CountsAgainstBudget reports whether an error of this kind is charged to the
// scheduler's error budget. Policy denials and robots disallows are
// informational, never counted (spec §4.9 Error budget).
func (k Kind) CountsAgainstBudget() bool {
	return k != KindPolicyDenied
}

// CrawlError wraps an underlying error with a classification kind, a phase,
// and the URL it occurred on. It is the type recorded into the errors
// dataset (§3 Error record) and surfaced to the scheduler's budget counter.
type CrawlError struct {
	Kind    Kind
	Phase   string // fetch, render, extract, write
	URL     string
	Message string
	Cause   error
}

func New(kind Kind, phase, url, message string, cause error) *CrawlError {
	return &CrawlError{Kind: kind, Phase: phase, URL: url, Message: message, Cause: cause}
}

func (e *CrawlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s] %s: %v", e.Phase, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s] %s", e.Phase, e.Kind, e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// ExitCode maps a fatal condition to the process exit status from §6.4.
type ExitCode int

const (
	ExitSuccess           ExitCode = 0
	ExitErrorBudget       ExitCode = 2
	ExitRendererFatal     ExitCode = 3
	ExitWriterFatal       ExitCode = 4
	ExitValidationFailed  ExitCode = 5
	ExitUnknownFatal      ExitCode = 10
)

// ExitCodeForKind maps an error kind that escalated to a fatal condition to
// its exit code. Kinds with no dedicated code map to ExitUnknownFatal (caller
// must already know the condition was fatal before calling this).
func ExitCodeForKind(k Kind) ExitCode {
	switch k {
	case KindRenderCrash, KindRenderTimeout:
		return ExitRendererFatal
	case KindWriteIO, KindCheckpointIO:
		return ExitWriterFatal
	case KindSchemaViolation:
		return ExitValidationFailed
	case KindFatalUnknown:
		return ExitUnknownFatal
	default:
		return ExitUnknownFatal
	}
}
