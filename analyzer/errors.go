package analyzer

import "fmt"

// ErrorKind classifies engine failures
type ErrorKind string

const (
	// KindEmptyContent means no usable text was extracted. Fatal.
	KindEmptyContent ErrorKind = "EMPTY_CONTENT"
	// KindInvalidInput means the URL or content was rejected before extraction. Fatal.
	KindInvalidInput ErrorKind = "INVALID_INPUT"
	// KindExtractionPartial means a block failed to parse and was skipped.
	KindExtractionPartial ErrorKind = "EXTRACTION_PARTIAL"
	// KindQualitativeUnavailable means the model stage was skipped.
	KindQualitativeUnavailable ErrorKind = "QUALITATIVE_UNAVAILABLE"
)

// AnalysisError is the error type returned by the engine
type AnalysisError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is matches any AnalysisError of the same kind, so errors.Is(err, ErrEmptyContent) works
// regardless of message.
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	return ok && t.Kind == e.Kind
}

// Fatal reports whether the kind aborts the analysis
func (k ErrorKind) Fatal() bool {
	return k == KindEmptyContent || k == KindInvalidInput
}

var (
	ErrEmptyContent           = &AnalysisError{Kind: KindEmptyContent}
	ErrInvalidInput           = &AnalysisError{Kind: KindInvalidInput}
	ErrExtractionPartial      = &AnalysisError{Kind: KindExtractionPartial}
	ErrQualitativeUnavailable = &AnalysisError{Kind: KindQualitativeUnavailable}
)

func newError(kind ErrorKind, err error, format string, args ...interface{}) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *AnalysisError) notice() Notice {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return Notice{Kind: e.Kind, Message: msg}
}
