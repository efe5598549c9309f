package blockstore

import "errors"

var (
	ErrNotFound    = errors.New("blockstore: not found")
	ErrInvalidCID  = errors.New("blockstore: invalid cid")
	ErrCIDMismatch = errors.New("blockstore: cid mismatch")
	ErrImmutable   = errors.New("blockstore: immutable block mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
