package sqlbridge

import (
	"fmt"
	"strings"
)

// ClassificationError reports a parameter that cannot be turned into a Value:
// a type without a conversion rule, a heterogeneous array, an enum whose
// declared value is neither textual nor numeric, or an array bound for a
// dialect without array columns.
//
// Field is the named parameter the value was bound to. It is empty until the
// caller that knows the key attaches it.
type ClassificationError struct {
	Field   string
	From    string
	To      string
	Details string
}

func (e *ClassificationError) Error() string {
	var b strings.Builder
	b.WriteString("sqlbridge: invalid parameter")
	if e.Field != "" {
		fmt.Fprintf(&b, " %q", e.Field)
	}
	fmt.Fprintf(&b, ": cannot convert %s to %s", e.From, e.To)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrInvalidParam) hold for every ClassificationError.
func (e *ClassificationError) Is(target error) bool {
	return target == ErrInvalidParam
}

// withField returns a copy of e addressed to the given parameter key.
func (e *ClassificationError) withField(field string) *ClassificationError {
	c := *e
	c.Field = field
	return &c
}

// ConversionError reports a driver value that has no lossless Value
// representation for its declared column type.
type ConversionError struct {
	Column  string
	From    string
	To      string
	Details string
}

func (e *ConversionError) Error() string {
	var b strings.Builder
	b.WriteString("sqlbridge: conversion failed")
	if e.Column != "" {
		fmt.Fprintf(&b, " for column %q", e.Column)
	}
	fmt.Fprintf(&b, ": cannot convert %s to %s", e.From, e.To)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrConversion) hold for every ConversionError.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

func conversionErr(src any, to ColumnKind, details string) *ConversionError {
	return &ConversionError{From: fmt.Sprintf("%T", src), To: to.String(), Details: details}
}
