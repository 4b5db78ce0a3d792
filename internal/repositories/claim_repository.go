package repositories

import (
	"context"
	"time"

	"github.com/anonto42/lost-found/backend/internal/models"
	"gorm.io/gorm"
)

// StatusChange is a conditional status move for one claim. The claim row is
// only updated while its status is one of From; ThreadFields are applied to
// the paired thread in the same transaction.
type StatusChange struct {
	ClaimID      string
	From         []models.ClaimStatus
	To           models.ClaimStatus
	ClaimFields  map[string]any
	ThreadFields map[string]any
}

// ClaimRepository defines the interface for claim data operations
type ClaimRepository interface {
	CreateWithThread(ctx context.Context, claim *models.Claim, thread *models.ChatThread) error
	GetByID(ctx context.Context, id string) (*models.Claim, error)
	ListByClaimant(ctx context.Context, claimantID string, limit int) ([]models.Claim, error)
	ListByFinder(ctx context.Context, finderID string, limit int) ([]models.Claim, error)
	CountRecentByClaimant(ctx context.Context, claimantID string, since time.Time) (int64, error)
	ApplyStatusChange(ctx context.Context, change StatusChange) (bool, error)
	SetHandoffHash(ctx context.Context, claimID, hash string) (bool, error)
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// PostgresClaimRepository implements ClaimRepository with gorm
type PostgresClaimRepository struct {
	db *gorm.DB
}

// NewPostgresClaimRepository creates a new PostgresClaimRepository
func NewPostgresClaimRepository(db *gorm.DB) *PostgresClaimRepository {
	return &PostgresClaimRepository{db: db}
}

// CreateWithThread inserts a claim and its chat thread atomically. An
// existing claim for the same (post, claimant) pair yields ErrConflict.
func (r *PostgresClaimRepository) CreateWithThread(ctx context.Context, claim *models.Claim, thread *models.ChatThread) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Claim{}).
			Where("post_id = ? AND claimant_id = ?", claim.PostID, claim.ClaimantID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		if err := tx.Create(claim).Error; err != nil {
			return err
		}
		thread.ClaimID = claim.ID
		return tx.Create(thread).Error
	})
	return translate(err)
}

// GetByID retrieves a claim by ID
func (r *PostgresClaimRepository) GetByID(ctx context.Context, id string) (*models.Claim, error) {
	var claim models.Claim
	if err := r.db.WithContext(ctx).First(&claim, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &claim, nil
}

func (r *PostgresClaimRepository) ListByClaimant(ctx context.Context, claimantID string, limit int) ([]models.Claim, error) {
	var claims []models.Claim
	err := r.db.WithContext(ctx).Where("claimant_id = ?", claimantID).
		Order("created_at DESC").Limit(limit).Find(&claims).Error
	return claims, err
}

func (r *PostgresClaimRepository) ListByFinder(ctx context.Context, finderID string, limit int) ([]models.Claim, error) {
	var claims []models.Claim
	err := r.db.WithContext(ctx).Where("finder_id = ?", finderID).
		Order("created_at DESC").Limit(limit).Find(&claims).Error
	return claims, err
}

// CountRecentByClaimant counts claims the user filed at or after since.
func (r *PostgresClaimRepository) CountRecentByClaimant(ctx context.Context, claimantID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Claim{}).
		Where("claimant_id = ? AND created_at >= ?", claimantID, since).
		Count(&count).Error
	return count, err
}

// ApplyStatusChange reports false, with no error, when the claim was no
// longer in one of the expected states.
func (r *PostgresClaimRepository) ApplyStatusChange(ctx context.Context, change StatusChange) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{"status": change.To}
		for k, v := range change.ClaimFields {
			fields[k] = v
		}
		res := tx.Model(&models.Claim{}).
			Where("id = ? AND status IN ?", change.ClaimID, change.From).
			Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		if len(change.ThreadFields) == 0 {
			return nil
		}
		return tx.Model(&models.ChatThread{}).
			Where("claim_id = ?", change.ClaimID).
			Updates(change.ThreadFields).Error
	})
	return applied, translate(err)
}

// SetHandoffHash stores the hash only if the claim is approved and has no
// hash yet, so two concurrent generators cannot both succeed.
func (r *PostgresClaimRepository) SetHandoffHash(ctx context.Context, claimID, hash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Claim{}).
		Where("id = ? AND status = ? AND handoff_code_hash = ?", claimID, models.ClaimApproved, "").
		Update("handoff_code_hash", hash)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpirePending moves every overdue pending claim to expired and closes the
// threads paired with the claims it moved.
func (r *PostgresClaimRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	var expired int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.Claim{}).
			Where("status = ? AND expires_at < ?", models.ClaimPending, now).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		res := tx.Model(&models.Claim{}).
			Where("id IN ? AND status = ?", ids, models.ClaimPending).
			Update("status", models.ClaimExpired)
		if res.Error != nil {
			return res.Error
		}
		expired = res.RowsAffected

		// A claim decided between the two statements keeps its thread.
		var moved []string
		if err := tx.Model(&models.Claim{}).
			Where("id IN ? AND status = ?", ids, models.ClaimExpired).
			Pluck("id", &moved).Error; err != nil {
			return err
		}
		if len(moved) == 0 {
			return nil
		}
		return tx.Model(&models.ChatThread{}).
			Where("claim_id IN ? AND is_closed = ?", moved, false).
			Updates(map[string]any{"is_closed": true, "closed_reason": models.ThreadClosedExpired}).Error
	})
	return expired, translate(err)
}
