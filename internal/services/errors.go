package services

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidPreset      = errors.New("invalid preset")
	ErrInvalidOption      = errors.New("invalid option")
	ErrAlreadyRunning     = errors.New("a run is already in progress")
	ErrNotRunning         = errors.New("no run in progress")
	ErrRequirementMissing = errors.New("required program missing")
	ErrAdapterFailure     = errors.New("adapter failure")
	ErrInvalidSample      = errors.New("invalid sample")
)
