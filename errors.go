package framemonitor

import (
	"errors"
	"strings"
)

var (
	// ErrFieldUnreadable matches every *FieldError via errors.Is.
	ErrFieldUnreadable = errors.New("frame-monitor: field unreadable")

	// ErrAnomalousTiming describes a non-positive interval between two
	// consecutive frames (clock stepped back or duplicate timestamp).
	ErrAnomalousTiming = errors.New("frame-monitor: non-positive frame interval")
)

// Field identifies a frame attribute. Values combine as a bitmask.
type Field uint8

const (
	FieldID Field = 1 << iota
	FieldStatus
	FieldWidth
	FieldHeight
	FieldFormat
)

// Has reports whether every bit of f is set in m.
func (m Field) Has(f Field) bool {
	return f != 0 && m&f == f
}

func (m Field) String() string {
	if m == 0 {
		return "none"
	}
	var names []string
	for _, f := range []struct {
		bit  Field
		name string
	}{
		{FieldID, "id"},
		{FieldStatus, "status"},
		{FieldWidth, "width"},
		{FieldHeight, "height"},
		{FieldFormat, "format"},
	} {
		if m.Has(f.bit) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

// FieldError reports that one attribute of a frame could not be read.
type FieldError struct {
	Field Field
	// Err is the acquisition layer's own error, if any
	Err error
}

func (e *FieldError) Error() string {
	msg := "frame-monitor: frame " + e.Field.String() + " unreadable"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrFieldUnreadable) hold for any FieldError.
func (e *FieldError) Is(target error) bool {
	return target == ErrFieldUnreadable
}

func unreadable(f Field) error {
	return &FieldError{Field: f}
}
