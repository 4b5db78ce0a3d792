package models

import "time"

const (
	NotifyClaimCreated     = "claim_created"
	NotifyClaimDecided     = "claim_decided"
	NotifyProofSubmitted   = "proof_submitted"
	NotifyHandoffCompleted = "handoff_completed"
)

// Notification represents an in-app notification (PostgreSQL)
type Notification struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Type        string    `json:"type" gorm:"size:30;index"`
	RecipientID string    `json:"recipient_id" gorm:"size:36;index"`
	ClaimID     string    `json:"claim_id" gorm:"size:36;index"`
	PostID      string    `json:"post_id"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}
