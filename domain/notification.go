package domain

import "time"

// Notification is the only durable artifact of the realtime pipeline.
// Owned by its recipient; mutated only by the read toggle or bulk clear.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	TaskID    string    `json:"taskId,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}
