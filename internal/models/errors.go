package models

import "errors"

var (
	// ErrUserNotFound — пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrSignalNotFound — подходящий сигнал не найден.
	ErrSignalNotFound = errors.New("signal not found or not accessible")
	// ErrInsufficientEnergy — у пользователя не осталось энергии.
	ErrInsufficientEnergy = errors.New("insufficient energy")
	// ErrSignalExists — у пользователя уже есть незавершённый сигнал.
	ErrSignalExists = errors.New("user already has an open signal")
)
