// Package cmn holds the ambient pieces shared by every TAMS core component:
// the canonical error taxonomy, field validators, and process-wide config.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is one of the eight canonical TAMS error kinds.
type Code string

const (
	CodeNotFound           Code = "NotFound"
	CodeConflict           Code = "Conflict"
	CodeForbidden          Code = "Forbidden"
	CodeValidationError    Code = "ValidationError"
	CodeBadRequest         Code = "BadRequest"
	CodeStorageUnavailable Code = "StorageUnavailable"
	CodeStorageError       Code = "StorageError"
	CodeInternal           Code = "Internal"
)

// Severity is carried alongside Code for logging and compliance-audit purposes.
type Severity string

const (
	SevLow      Severity = "low"
	SevMedium   Severity = "medium"
	SevHigh     Severity = "high"
	SevCritical Severity = "critical"
)

// httpStatus is the default HTTP mapping for each Code.
var httpStatus = map[Code]int{
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeForbidden:          http.StatusForbidden,
	CodeValidationError:    http.StatusUnprocessableEntity,
	CodeBadRequest:         http.StatusBadRequest,
	CodeStorageUnavailable: http.StatusServiceUnavailable,
	CodeStorageError:       http.StatusInternalServerError,
	CodeInternal:           http.StatusInternalServerError,
}

// auditable reports whether errors of this severity must be persisted as
// audit records.
func auditable(sev Severity) bool { return sev == SevHigh || sev == SevCritical }

// TError is the single error type every TAMS core component returns.
// The HTTP layer is the only place that translates it to a status code and
// JSON body; every other layer only ever constructs or forwards one.
type TError struct {
	Code      Code
	Severity  Severity
	FieldPath string
	Message   string
	Audit     bool
	cause     error
}

func (e *TError) Error() string {
	if e.FieldPath != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.FieldPath)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TError) Unwrap() error { return e.cause }

// HTTPStatus returns the default status for this error's Code.
func (e *TError) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newErr(code Code, sev Severity, field, msg string, cause error) *TError {
	return &TError{Code: code, Severity: sev, FieldPath: field, Message: msg, Audit: auditable(sev), cause: cause}
}

func NewNotFound(entity, id string) *TError {
	return newErr(CodeNotFound, SevLow, "", fmt.Sprintf("%s %q not found", entity, id), nil)
}

// NewConflict reports a referential-integrity block (cascade=false with
// dependents, or an Object still referenced). dependents lists the first N
// blocking entity IDs.
func NewConflict(msg string, dependents ...string) *TError {
	e := newErr(CodeConflict, SevMedium, "", msg, nil)
	if len(dependents) > 0 {
		e.Message = fmt.Sprintf("%s: %v", msg, dependents)
	}
	return e
}

func NewForbidden(msg string) *TError {
	return newErr(CodeForbidden, SevMedium, "", msg, nil)
}

func NewValidationErr(field, msg string) *TError {
	return newErr(CodeValidationError, SevMedium, field, msg, nil)
}

func NewBadRequest(msg string) *TError {
	return newErr(CodeBadRequest, SevMedium, "", msg, nil)
}

func NewStorageUnavailable(op string, cause error) *TError {
	return newErr(CodeStorageUnavailable, SevHigh, "", fmt.Sprintf("storage unavailable during %s", op), cause)
}

func NewStorageErr(op string, cause error) *TError {
	return newErr(CodeStorageError, SevHigh, "", fmt.Sprintf("storage operation %q failed", op), cause)
}

func NewInternal(msg string, cause error) *TError {
	return newErr(CodeInternal, SevCritical, "", msg, cause)
}

// AsTError unwraps err looking for a *TError, defaulting to Internal when
// the error originates below the taxonomy boundary (adapter errors that a
// repository failed to translate).
func AsTError(err error) *TError {
	if err == nil {
		return nil
	}
	var te *TError
	if errors.As(err, &te) {
		return te
	}
	return NewInternal("unclassified error", err)
}
