package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidFileName = errors.New("invalid file name")
)
