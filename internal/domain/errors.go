package domain

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrNoTableAvailable       = errors.New("no table available")
	ErrConflict               = errors.New("conflict")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInvalidState           = errors.New("invalid booking state")
	ErrRateNotConfigured      = errors.New("rate not configured")
	ErrClubInactive           = errors.New("club is inactive")
	ErrInsufficientFunds      = errors.New("insufficient funds")
)

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindPermission   Kind = "permission"
	KindConflict     Kind = "conflict"
	KindState        Kind = "state"
	KindPrecondition Kind = "precondition"
	KindInternal     Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindPermission
	case errors.Is(err, ErrNoTableAvailable),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrConcurrentModification):
		return KindConflict
	case errors.Is(err, ErrInvalidState):
		return KindState
	case errors.Is(err, ErrRateNotConfigured),
		errors.Is(err, ErrClubInactive),
		errors.Is(err, ErrInsufficientFunds):
		return KindPrecondition
	default:
		return KindInternal
	}
}
