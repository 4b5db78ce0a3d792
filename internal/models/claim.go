package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ClaimStatus is the lifecycle state of a claim. Moves between states are
// decided by claims.Transition, never by comparing strings at call sites.
type ClaimStatus string

const (
	ClaimPending              ClaimStatus = "pending"
	ClaimAwaitingVerification ClaimStatus = "awaiting_verification"
	ClaimApproved             ClaimStatus = "approved"
	ClaimRejected             ClaimStatus = "rejected"
	ClaimCompleted            ClaimStatus = "completed"
	ClaimExpired              ClaimStatus = "expired"
)

type VerificationStatus string

const (
	Unverified    VerificationStatus = "unverified"
	EmailVerified VerificationStatus = "email_verified"
	FullyVerified VerificationStatus = "fully_verified"
)

// Decision values accepted from finders.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

type ProofRecord struct {
	ImageRef    string     `json:"image_ref,omitempty"`
	Note        string     `json:"note,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type VerificationRecord struct {
	ReviewerID string     `json:"-" gorm:"size:36"`
	Decision   string     `json:"decision,omitempty" gorm:"size:16"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Claim is one user's assertion of ownership over a found-item post.
// FinderID is the post owner at claim time and is what finder-only
// operations authorize against. Participant ids never leave the server;
// responses carry the caller's role instead.
type Claim struct {
	ID                 string                      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PostID             string                      `json:"post_id" gorm:"size:64;not null;uniqueIndex:idx_claim_post_claimant"`
	ClaimantID         string                      `json:"-" gorm:"size:36;not null;uniqueIndex:idx_claim_post_claimant;index"`
	FinderID           string                      `json:"-" gorm:"size:36;not null;index"`
	Status             ClaimStatus                 `json:"status" gorm:"size:32;not null;index"`
	VerificationStatus VerificationStatus          `json:"verification_status" gorm:"size:32;not null"`
	TrustScore         int                         `json:"trust_score"`
	TrustBand          string                      `json:"trust_band" gorm:"size:16"`
	Answers            datatypes.JSONType[Answers] `json:"answers"`
	EvidenceImage      string                      `json:"evidence_image,omitempty"`
	HandoffCodeHash    string                      `json:"-" gorm:"not null;default:''"`
	HandoffIssued      bool                        `json:"handoff_issued" gorm:"-"`
	Fingerprint        string                      `json:"-" gorm:"size:128"`
	Proof              ProofRecord                 `json:"proof" gorm:"embedded;embeddedPrefix:proof_"`
	Verification       VerificationRecord          `json:"verification" gorm:"embedded;embeddedPrefix:verification_"`
	ExpiresAt          time.Time                   `json:"expires_at" gorm:"not null;index"`
	DecidedAt          *time.Time                  `json:"decided_at,omitempty"`
	CompletedAt        *time.Time                  `json:"completed_at,omitempty"`
	CreatedAt          time.Time                   `json:"created_at" gorm:"index"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

func (c *Claim) AfterFind(tx *gorm.DB) error {
	c.HandoffIssued = c.HandoffCodeHash != ""
	return nil
}

type CreateClaimRequest struct {
	Answers       Answers `json:"answers" validate:"required,min=1"`
	EvidenceImage string  `json:"evidence_image,omitempty" validate:"omitempty,max=512"`
}

type DecisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
}

type SubmitProofRequest struct {
	ImageRef string `json:"image_ref" validate:"required,max=512"`
	Note     string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type VerificationRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approved rejected"`
	Reason   string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type ConfirmHandoffRequest struct {
	Code string `json:"code" validate:"required,max=12"`
}

type ProofUploadRequest struct {
	ContentType string `json:"content_type" validate:"required,oneof=image/jpeg image/png image/webp"`
}
