package storage

import "errors"

var (
	ErrNotFound      = errors.New("storage: not found")
	ErrAlreadyExists = errors.New("storage: already exists")
	ErrCorrupt       = errors.New("storage: corrupt registry data")
	ErrUnavailable   = errors.New("storage: backend unavailable")
	ErrInvalidRecord = errors.New("storage: invalid record")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
