package errors

import (
	"errors"
)

var (
	ErrFinished        = errors.New("No file transfer needed")
	ErrInvalidBody     = errors.New("Invalid body")
	ErrInvalidPIN      = errors.New("Invalid PIN")
	ErrRejected        = errors.New("Rejected")
	ErrBadToken        = errors.New("Bad token")
	ErrFileNotAccepted = errors.New("File not accepted")
	ErrIPMismatch      = errors.New("IP mismatch")
	ErrNotFound        = errors.New("Session or file not found")
	ErrBlockedByOthers = errors.New("Blocked by another session")
	ErrTooLarge        = errors.New("Body too large")
	ErrTooManyReq      = errors.New("Too many requests")
	ErrFileIO          = errors.New("File IO")
	ErrChecksum        = errors.New("sha256 mismatch")
	ErrFingerprint     = errors.New("Fingerprint mismatch")
	ErrUnknown         = errors.New("Unknown error")
)

// ParseError maps a peer's HTTP status onto the taxonomy.
func ParseError(status int) error {
	switch {
	case status >= 200 && status < 300 && status != 204:
		return nil
	}

	switch status {
	case 204:
		return ErrFinished
	case 400:
		return ErrInvalidBody
	case 401:
		return ErrInvalidPIN
	case 403:
		return ErrRejected
	case 404:
		return ErrNotFound
	case 409:
		return ErrBlockedByOthers
	case 413:
		return ErrTooLarge
	case 429:
		return ErrTooManyReq
	default:
		return ErrUnknown
	}
}

// Status maps a taxonomy error onto the HTTP status the server answers.
func Status(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrFinished):
		return 204
	case errors.Is(err, ErrInvalidBody):
		return 400
	case errors.Is(err, ErrInvalidPIN):
		return 401
	case errors.Is(err, ErrRejected),
		errors.Is(err, ErrBadToken),
		errors.Is(err, ErrFileNotAccepted),
		errors.Is(err, ErrIPMismatch):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrBlockedByOthers):
		return 409
	case errors.Is(err, ErrTooLarge):
		return 413
	case errors.Is(err, ErrTooManyReq):
		return 429
	default:
		return 500
	}
}
