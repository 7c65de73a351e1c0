package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
	ErrDataUnavailable     = errors.New("price data unavailable")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrNonReverting        = errors.New("pair is not mean-reverting")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrMisalignedSeries    = errors.New("misaligned price series")
	ErrDegenerateSpread    = errors.New("degenerate spread")
	ErrRiskGateUnavailable = errors.New("risk gate unavailable")
	ErrInvalidState        = errors.New("invalid position state")
)
