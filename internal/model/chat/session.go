package chat

import "time"

// Session captures an anonymous conversation. Its ID is the join key for every
// turn and may be replaced by the one issued by the retrieval service.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
