package application

import (
	"errors"

	"cms-service/internal/domain"
)

var ErrNotFound = domain.ErrNotFound
var ErrConflict = errors.New("conflict")
var ErrBadRequest = errors.New("bad request")
var ErrUnauthorized = errors.New("unauthorized")
var ErrInvalidCredentials = errors.New("invalid credentials")
