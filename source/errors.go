package source

import "errors"

var (
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrInvalidDocument    = errors.New("invalid json document")
)
