package model

import (
	"time"

	"github.com/avilenka/devmatch/internal/domain/enums"
)

// Message is immutable after delivery except for the read and soft-delete
// flags. Edited/OriginalContent are modeled in storage but no edit operation
// is exposed yet.
type Message struct {
	ID              int64             `json:"id"`
	SenderID        int64             `json:"sender_id"`
	ReceiverID      int64             `json:"receiver_id"`
	Content         string            `json:"content"`
	Kind            enums.MessageKind `json:"kind"`
	FileRef         string            `json:"file_ref,omitempty"`
	FileName        string            `json:"file_name,omitempty"`
	IsRead          bool              `json:"is_read"`
	ReadAt          *time.Time        `json:"read_at"`
	IsDeleted       bool              `json:"is_deleted"`
	DeletedAt       *time.Time        `json:"deleted_at"`
	Edited          bool              `json:"edited"`
	EditedAt        *time.Time        `json:"edited_at"`
	OriginalContent string            `json:"original_content,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
