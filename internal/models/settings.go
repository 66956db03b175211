package models

// TimeRange — интервал времени суток в формате "HH:MM".
// Если Start > End, интервал переходит через полночь.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Notification — сообщение пользователю, передаваемое через очередь.
type Notification struct {
	ID     string `json:"id"`
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}
