// Package failure defines the closed set of failure kinds a download task can end in.
package failure

import (
	"github.com/pkg/errors"
)

// Kind classifies an extractor or pipeline failure
type Kind int

const (
	// Unclassified covers everything not matched below; retried like a transient failure
	Unclassified Kind = iota
	// TransientAccessBlocked is a 403 / forbidden / blocked response; retried
	TransientAccessBlocked
	// NotFoundOrRestricted is private or removed content; never retried
	NotFoundOrRestricted
	// GeoRestricted content is not available in the host's region; never retried
	GeoRestricted
	// OutputMissing means the extractor reported success but no file exists
	OutputMissing
	// ConversionFailed is a soft failure of the transcoder
	ConversionFailed
	// ServiceBlocked is the budget-exhausted failure when upstream refused the player response
	ServiceBlocked
)

var kindNames = map[Kind]string{
	Unclassified:           "unclassified",
	TransientAccessBlocked: "transient_access_blocked",
	NotFoundOrRestricted:   "not_found_or_restricted",
	GeoRestricted:          "geo_restricted",
	OutputMissing:          "output_missing",
	ConversionFailed:       "conversion_failed",
	ServiceBlocked:         "service_blocked",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Retryable reports whether another attempt may be made after a failure of this kind
func (k Kind) Retryable() bool {
	return k == Unclassified || k == TransientAccessBlocked
}

// Terminal reports whether a failure of this kind aborts the attempt loop immediately
func (k Kind) Terminal() bool {
	return k == NotFoundOrRestricted || k == GeoRestricted || k == OutputMissing
}

// Error carries a Kind together with a user-facing message and the underlying cause
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil && e.Message == "" {
		return e.cause.Error()
	}
	return e.Message
}

// Cause implements the pkg/errors causer interface
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is / errors.As from the standard library
func (e *Error) Unwrap() error { return e.cause }

// New creates a classified error with message
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind and message to err. A nil err yields nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, cause: err}
}

// KindOf returns the kind of the first classified error in err's chain, or
// Unclassified.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unclassified
}

// IsClassified reports whether err already carries a Kind
func IsClassified(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}
