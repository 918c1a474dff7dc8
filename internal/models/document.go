package models

import "time"

// Document is the minimal document record the coordinator needs for
// existence and edit-capability checks. Content lives elsewhere.
type Document struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"` // OwnerID владелец всегда имеет право редактирования
	Title     string    `json:"title"`
}
