// Package failure defines the pipeline's error taxonomy.
//
// Only PAGE_IO and MALFORMED_INPUT are hard failures. Everything else is a
// Conflict: recorded, routed to the review queue, and the run continues.
package failure

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	LayoutDetectionFailure   Code = "LAYOUT_DETECTION_FAILURE"
	SplitConstraintViolation Code = "SPLIT_CONSTRAINT_VIOLATION"
	CropRefinementExhausted  Code = "CROP_REFINEMENT_EXHAUSTED"
	AlignmentConflict        Code = "ALIGNMENT_CONFLICT"
	OverrideApplyError       Code = "OVERRIDE_APPLY_ERROR"
	PageIO                   Code = "PAGE_IO"
	MalformedInput           Code = "MALFORMED_INPUT"
)

// Fatal reports whether errors of this code stop the unit of work they occur in.
func (c Code) Fatal() bool {
	return c == PageIO || c == MalformedInput
}

// Error is a structured pipeline error.
type Error struct {
	Code    Code
	Message string
	Page    string
	File    string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	where := ""
	switch {
	case e.File != "":
		where = " [" + e.File + "]"
	case e.Page != "":
		where = " [" + e.Page + "]"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s%s: %s (caused by: %v)", e.Code, where, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s%s: %s", e.Code, where, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the error is a hard failure.
func (e *Error) Fatal() bool {
	return e.Code.Fatal()
}

// NewPageIOError wraps an error reading or decoding a page image.
func NewPageIOError(page string, cause error) *Error {
	return &Error{
		Code:    PageIO,
		Message: "cannot read page image",
		Page:    page,
		Cause:   cause,
	}
}

// NewMalformedInputError reports an unreadable override, index, or config file.
func NewMalformedInputError(path string, cause error) *Error {
	return &Error{
		Code:    MalformedInput,
		Message: "malformed input file",
		File:    path,
		Cause:   cause,
	}
}

// NewOverrideApplyError reports an override entry that could not be applied.
func NewOverrideApplyError(file, reason string) *Error {
	return &Error{
		Code:    OverrideApplyError,
		Message: reason,
		File:    file,
	}
}

// IsCode reports whether err (or anything it wraps) is an *Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Conflict is a non-fatal condition surfaced to human review.
type Conflict struct {
	Code     Code   `json:"code"`
	Page     string `json:"page,omitempty"`
	Lane     int    `json:"lane"`
	Position int    `json:"position"`
	File     string `json:"file,omitempty"`
	Message  string `json:"message"`
}

// NewConflict builds a conflict not yet tied to a grid position.
func NewConflict(code Code, page, msg string) Conflict {
	return Conflict{Code: code, Page: page, Lane: -1, Position: -1, Message: msg}
}

// At returns a copy tied to a grid position.
func (c Conflict) At(lane, position int) Conflict {
	c.Lane = lane
	c.Position = position
	return c
}

// WithFile returns a copy naming the affected output file.
func (c Conflict) WithFile(file string) Conflict {
	c.File = file
	return c
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s page=%s lane=%d pos=%d: %s", c.Code, c.Page, c.Lane, c.Position, c.Message)
}
