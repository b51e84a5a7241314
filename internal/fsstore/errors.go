package fsstore

import "errors"

// Sentinel errors for the store helpers. Callers branch with
// errors.Is; the wrapping site carries the offending path.
var (
	// ErrInvalidPath rejects empty store paths and malformed lock keys.
	ErrInvalidPath = errors.New("fsstore: invalid path")
	// ErrLockTimeout reports a lock wait cut short by its context.
	ErrLockTimeout     = errors.New("fsstore: lock timeout")
	ErrLockUnavailable = errors.New("fsstore: lock unavailable")
	ErrEncodeFailed    = errors.New("fsstore: encode failed")
	ErrDecodeFailed    = errors.New("fsstore: decode failed")
	// ErrAtomicWriteFailed covers every step of the temp+rename write.
	ErrAtomicWriteFailed = errors.New("fsstore: atomic write failed")
)
