// Package models содержит доменную модель пользователя системы,
// включающую баланс энергии, признак доступа и отметку последней выдачи сигнала.
// Структура используется в бизнес‑логике и при работе с хранилищем.
package models

import "time"

// User представляет пользователя мини-приложения.
type User struct {
	ID                  int64      `json:"id"`                               // Уникальный идентификатор пользователя
	ChatID              string     `json:"chat_id"`                          // Идентификатор чата в Telegram
	Username            string     `json:"username"`                         // Имя пользователя
	Role                string     `json:"role"`                             // Роль пользователя, admin или user
	Energy              int        `json:"energy"`                           // Остаток энергии, расходуется при получении сигнала
	IsAccessAllowed     bool       `json:"is_access_allowed"`                // Разрешён ли пользователю доступ к сигналам
	HasCredential       bool       `json:"has_credential"`                   // Выдан ли пользователю пароль
	LastSignalRequestAt *time.Time `json:"last_signal_request_at,omitempty"` // Время последней выдачи сигнала
}

// RoleAdmin — роль администратора.
const RoleAdmin = "admin"
