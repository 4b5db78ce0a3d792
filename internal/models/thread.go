package models

import (
	"time"

	"gorm.io/datatypes"
)

// Reasons recorded when a thread is closed.
const (
	ThreadClosedRejected = "claim_rejected"
	ThreadClosedExpired  = "claim_expired"
	ThreadClosedInactive = "inactive"
)

// ChatThread is the masked channel paired 1:1 with a claim. Handles maps the
// two real participant ids to their masked handles and is fixed at creation.
type ChatThread struct {
	ID               string                                `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ClaimID          string                                `json:"claim_id" gorm:"size:36;not null;uniqueIndex"`
	FinderID         string                                `json:"-" gorm:"size:36;not null;index"`
	ClaimantID       string                                `json:"-" gorm:"size:36;not null;index"`
	Handles          datatypes.JSONType[map[string]string] `json:"-"`
	AllowLinks       bool                                  `json:"allow_links" gorm:"not null;default:false"`
	AllowAttachments bool                                  `json:"allow_attachments" gorm:"not null;default:false"`
	IsClosed         bool                                  `json:"is_closed" gorm:"not null;default:false;index"`
	ClosedReason     string                                `json:"closed_reason,omitempty" gorm:"size:32"`
	AutoCloseAt      time.Time                             `json:"auto_close_at" gorm:"not null;index"`
	CreatedAt        time.Time                             `json:"created_at"`
	UpdatedAt        time.Time                             `json:"updated_at"`
}

func (t *ChatThread) IsParticipant(userID string) bool {
	return userID != "" && (userID == t.FinderID || userID == t.ClaimantID)
}

func (t *ChatThread) HandleFor(userID string) string {
	return t.Handles.Data()[userID]
}

// PeerOf returns the other participant's id.
func (t *ChatThread) PeerOf(userID string) string {
	if userID == t.FinderID {
		return t.ClaimantID
	}
	return t.FinderID
}

// Message ids are ULIDs, so ordering by id is creation order.
type Message struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(26);index:idx_message_thread_order,priority:2"`
	ThreadID      string    `json:"thread_id" gorm:"size:36;not null;index:idx_message_thread_order,priority:1"`
	SenderID      string    `json:"-" gorm:"size:36;not null"`
	Content       string    `json:"content" gorm:"type:text"`
	AttachmentURL string    `json:"attachment_url,omitempty" gorm:"size:512"`
	CreatedAt     time.Time `json:"created_at"`
}

type SendMessageRequest struct {
	Content       string `json:"content" validate:"required_without=AttachmentURL,max=2000"`
	AttachmentURL string `json:"attachment_url,omitempty" validate:"omitempty,url,max=512"`
}
