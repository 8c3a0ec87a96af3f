package domain

import (
	"fmt"
)

// Code is a stable, client-visible error code. Codes are part of the API
// contract and must never be renamed.
type Code string

const (
	CodeNotAuthenticated    Code = "NOT_AUTHENTICATED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotAuthorized       Code = "NOT_AUTHORIZED"
	CodeInsufficientOrgRole Code = "INSUFFICIENT_ORG_ROLE"
	CodeNotOrgMember        Code = "NOT_ORG_MEMBER"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeAlreadyExists       Code = "ALREADY_EXISTS"
	CodeValidation          Code = "VALIDATION"
)

// Error is a coded error with optional structured data for the client.
// Two Errors match under errors.Is when their codes are equal, so the
// sentinel values below work as targets regardless of message or data.
type Error struct {
	Code    Code
	Message string
	Data    map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on code equality.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinel errors used across all layers. Prefer the constructors when a
// message or payload is available.
var (
	ErrNotAuthenticated    = &Error{Code: CodeNotAuthenticated, Message: "caller is not authenticated"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "stale update token"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "caller may not modify this document"}
	ErrNotAuthorized       = &Error{Code: CodeNotAuthorized, Message: "caller is not authorized for the parent"}
	ErrInsufficientOrgRole = &Error{Code: CodeInsufficientOrgRole, Message: "organization admin role required"}
	ErrNotOrgMember        = &Error{Code: CodeNotOrgMember, Message: "user is not a member of the organization"}
	ErrRateLimited         = &Error{Code: CodeRateLimited, Message: "write rate limit exceeded"}
	ErrAlreadyExists       = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation error"}
)

// NotFound returns a NOT_FOUND error naming the missing entity.
func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: entity + " not found"}
}

// Conflict returns a CONFLICT error carrying both the current server
// document and the caller's attempted values, so a client can offer
// merge / overwrite / reload instead of a bare failure.
func Conflict(current *Document, incoming map[string]any) *Error {
	return &Error{
		Code:    CodeConflict,
		Message: "document was modified by another writer",
		Data: map[string]any{
			"current":  current,
			"incoming": incoming,
		},
	}
}

// Validation returns a VALIDATION error for a single field.
func Validation(field, message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: fmt.Sprintf("%s: %s", field, message),
		Data:    map[string]any{"field": field},
	}
}
