package schema

import "errors"

var (
	ErrInvalidSchemaContent = errors.New("invalid schema content")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
