package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ptt/forumsync/fetch"
	"github.com/ptt/forumsync/gate"
	"github.com/ptt/forumsync/store"
)

type NotFoundError struct {
	UnderlyingErr error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %v", e.UnderlyingErr)
}

func (e *NotFoundError) Unwrap() error { return e.UnderlyingErr }

func NewNotFoundError(err error) *NotFoundError {
	return &NotFoundError{
		UnderlyingErr: err,
	}
}

type BadRequestError struct {
	UnderlyingErr error
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %v", e.UnderlyingErr)
}

func (e *BadRequestError) Unwrap() error { return e.UnderlyingErr }

func NewBadRequestError(err error) *BadRequestError {
	return &BadRequestError{
		UnderlyingErr: err,
	}
}

// clarifyRemoteError maps errors from the store and the forum onto the
// errors the API reports.
func clarifyRemoteError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError(err)
	}
	var se *fetch.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusNotFound, http.StatusForbidden:
			return NewNotFoundError(err)
		}
	}
	return err
}

// statusOf returns the HTTP status an error is reported with.
func statusOf(err error) int {
	var nf *NotFoundError
	var br *BadRequestError
	var se *fetch.StatusError
	switch {
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, gate.ErrTooBusy):
		return http.StatusServiceUnavailable
	case errors.As(err, &se), errors.Is(err, fetch.ErrBodyTooLarge):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
