package splitter

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a splitter error.
type ErrorKind string

const (
	KindMissingDiscriminator ErrorKind = "missing_discriminator"
	KindOrphanRow            ErrorKind = "orphan_row"
	KindFormatMismatch       ErrorKind = "format_mismatch"
	KindUnmatchedGroup       ErrorKind = "unmatched_group"
	KindInvalidConfig        ErrorKind = "invalid_config"
	KindCancelled            ErrorKind = "cancelled"
)

// Sentinel errors, one per kind. A *StageError matches the sentinel of its
// kind under errors.Is.
var (
	ErrMissingDiscriminator = errors.New("discriminator column not found")
	ErrOrphanRow            = errors.New("row precedes the first key row")
	ErrFormatMismatch       = errors.New("value does not carry the expected prefix")
	ErrUnmatchedGroup       = errors.New("group present on one side of the join only")
	ErrInvalidConfig        = errors.New("invalid splitter configuration")
	ErrCancelled            = errors.New("run cancelled")
)

var kindSentinels = map[ErrorKind]error{
	KindMissingDiscriminator: ErrMissingDiscriminator,
	KindOrphanRow:            ErrOrphanRow,
	KindFormatMismatch:       ErrFormatMismatch,
	KindUnmatchedGroup:       ErrUnmatchedGroup,
	KindInvalidConfig:        ErrInvalidConfig,
	KindCancelled:            ErrCancelled,
}

// NoRow marks a StageError that is not tied to a particular row.
const NoRow = -1

// StageError describes a failure inside a pipeline stage. Row is the 0-based
// index into the loaded table, or NoRow.
type StageError struct {
	Kind    ErrorKind              `json:"kind"`
	Stage   Stage                  `json:"stage,omitempty"`
	Row     int                    `json:"row"`
	Group   int                    `json:"group,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Value   string                 `json:"value,omitempty"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e == nil {
		return "unknown splitter error"
	}
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.Stage != "" {
		msg += " " + string(e.Stage) + ":"
	}
	msg += " " + e.Message
	if e.Row != NoRow {
		msg += fmt.Sprintf(" (row %d", e.Row)
		if e.Group > 0 {
			msg += fmt.Sprintf(", group %d", e.Group)
		}
		if e.Field != "" {
			msg += fmt.Sprintf(", field %q", e.Field)
		}
		msg += fmt.Sprintf(", value %q)", e.Value)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches the sentinel error of the same kind.
func (e *StageError) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// NewMissingDiscriminatorError reports that the discriminator column is absent.
func NewMissingDiscriminatorError(column string, available []string) *StageError {
	return &StageError{
		Kind:    KindMissingDiscriminator,
		Stage:   StageDetect,
		Row:     NoRow,
		Field:   column,
		Message: fmt.Sprintf("discriminator column %q not found", column),
		Context: map[string]interface{}{
			"available_columns": available,
		},
	}
}

// NewFormatMismatchError reports a key field value without its expected prefix.
func NewFormatMismatchError(row, group int, field, value, prefix string) *StageError {
	return &StageError{
		Kind:    KindFormatMismatch,
		Stage:   StageNormalize,
		Row:     row,
		Group:   group,
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("expected prefix %q", prefix),
		Context: map[string]interface{}{
			"prefix": prefix,
		},
	}
}

// NewInvalidConfigError reports a configuration problem.
func NewInvalidConfigError(message string, cause error) *StageError {
	return &StageError{
		Kind:    KindInvalidConfig,
		Row:     NoRow,
		Message: message,
		Cause:   cause,
	}
}

// NewOrphanRowError reports an orphan row. Used for aggregates and for the
// fail_on_orphans policy.
func NewOrphanRowError(row int, value string) *StageError {
	return &StageError{
		Kind:    KindOrphanRow,
		Stage:   StageClassify,
		Row:     row,
		Value:   value,
		Message: "row appears before the first key row",
	}
}

// NewUnmatchedGroupError reports a group present on only one side of the join.
func NewUnmatchedGroupError(u UnmatchedGroup) *StageError {
	return &StageError{
		Kind:    KindUnmatchedGroup,
		Stage:   StageMerge,
		Row:     NoRow,
		Group:   u.GroupID,
		Message: fmt.Sprintf("group %d has no %s rows", u.GroupID, u.Side.missing()),
		Context: map[string]interface{}{
			"side": string(u.Side),
		},
	}
}

// NewCancelledError reports a run cancelled before the given stage.
func NewCancelledError(stage Stage, cause error) *StageError {
	return &StageError{
		Kind:    KindCancelled,
		Stage:   stage,
		Row:     NoRow,
		Message: "run cancelled",
		Cause:   cause,
	}
}

// KindOf returns the kind of a splitter error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	var list *ErrorList
	if errors.As(err, &list) && len(list.Errors) > 0 {
		return list.Errors[0].Kind
	}
	return ""
}

// ErrorList collects several stage errors, typically the aggregates of a run.
type ErrorList struct {
	Errors []*StageError `json:"errors"`
}

// Error implements the error interface
func (e *ErrorList) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred, first: %s", len(e.Errors), e.Errors[0].Error())
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e *ErrorList) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// Add adds an error to the list
func (e *ErrorList) Add(err *StageError) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (e *ErrorList) HasErrors() bool {
	return len(e.Errors) > 0
}

// ByKind returns the errors of one kind.
func (e *ErrorList) ByKind(kind ErrorKind) []*StageError {
	var out []*StageError
	for _, err := range e.Errors {
		if err.Kind == kind {
			out = append(out, err)
		}
	}
	return out
}
