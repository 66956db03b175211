// Package models содержит доменные структуры сигнала и вспомогательные типы
// для ответов API и фильтрации.
package models

import "time"

// SignalStatus — состояние жизненного цикла сигнала.
type SignalStatus string

const (
	// SignalStatusPending — сигнал выдан, но ещё не активирован.
	SignalStatusPending SignalStatus = "pending"
	// SignalStatusActive — сигнал активирован и ждёт подтверждения.
	SignalStatusActive SignalStatus = "active"
	// SignalStatusCompleted — сигнал подтверждён пользователем.
	SignalStatusCompleted SignalStatus = "completed"
)

// Signal представляет выданный пользователю сигнал.
// Multiplier имеет смысл только после активации.
type Signal struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	Multiplier  float64      `json:"multiplier"`
	Amount      int          `json:"amount"`
	Status      SignalStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ActivatedAt *time.Time   `json:"activated_at,omitempty"`
}

// SignalRequestStatus — ответ на запрос состояния сигнала пользователя.
// Время передаётся в миллисекундах Unix, ConfirmTimeout — в миллисекундах.
type SignalRequestStatus struct {
	CanRequest      bool   `json:"canRequest"`
	CooldownSeconds *int64 `json:"cooldownSeconds,omitempty"`
	IsPending       *bool  `json:"isPending,omitempty"`
	RequestTime     *int64 `json:"requestTime,omitempty"`
	ActivatedAt     *int64 `json:"activatedAt,omitempty"`
	ConfirmTimeout  *int64 `json:"confirmTimeout,omitempty"`
	SignalID        *int64 `json:"signalId,omitempty"`
}

// SignalFilter описывает параметры выборки истории сигналов.
// UserID == nil означает выборку по всем пользователям.
// Username ищется как подстрока имени пользователя.
type SignalFilter struct {
	ID         *int64
	UserID     *int64
	Multiplier *float64
	Amount     *int
	Username   string `validate:"max=64"`
	Status     string `validate:"omitempty,oneof=active completed"`
	Limit      int    `validate:"min=1,max=100"`
	Offset     int    `validate:"min=0"`
}
