/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// ErrorKind classifies failures for both the wire protocol and the HTTP
// surface. Errors are reported to the originating socket only, unless they
// describe a state change visible to the whole room.
type ErrorKind string

const (
	ErrTransport  ErrorKind = "transport_error"
	ErrAuth       ErrorKind = "auth_error"
	ErrState      ErrorKind = "state_error"
	ErrNotFound   ErrorKind = "not_found"
	ErrConflict   ErrorKind = "conflict"
	ErrValidation ErrorKind = "validation_error"
	ErrInternal   ErrorKind = "internal_error"
)

type GameError struct {
	Kind    ErrorKind
	Message string
}

func (e *GameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func gameErr(kind ErrorKind, format string, args ...any) *GameError {
	return &GameError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// errKind extracts the taxonomy kind from any error, defaulting to
// internal_error for unclassified failures.
func errKind(err error) ErrorKind {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	if errors.Is(err, ErrStoreNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrStoreConflict) {
		return ErrConflict
	}
	return ErrInternal
}

// httpStatus maps an error kind onto an HTTP status code.
func httpStatus(kind ErrorKind) int {
	switch kind {
	case ErrAuth:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrValidation, ErrTransport:
		return http.StatusBadRequest
	case ErrState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errPayload builds the wire payload for an error; internal details are
// masked before leaving the server.
func errPayload(err error) ErrorData {
	kind := errKind(err)
	msg := err.Error()

	var ge *GameError
	if errors.As(err, &ge) {
		msg = ge.Message
	}
	if kind == ErrInternal {
		msg = "internal server error"
	}

	return ErrorData{Code: string(kind), Message: msg}
}
