package clinic

import "errors"

var (
	ErrNotFound       = errors.New("clinic: not found")
	ErrAlreadyExists  = errors.New("clinic: already exists")
	ErrInvalidInput   = errors.New("clinic: invalid input")
	ErrSlotTaken      = errors.New("clinic: time slot unavailable")
	ErrBadTransition  = errors.New("clinic: unsupported role transition")
	ErrNotBookable    = errors.New("clinic: outside working hours")
	ErrNotDoctor      = errors.New("clinic: target user is not a doctor")
	ErrAlreadySettled = errors.New("clinic: appointment already completed or cancelled")
)
