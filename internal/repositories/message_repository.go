package repositories

import (
	"context"
	"slices"

	"github.com/anonto42/lost-found/backend/internal/models"
	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListByThread(ctx context.Context, threadID, afterID string, limit int) ([]models.Message, error)
}

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewPostgresMessageRepository(db *gorm.DB) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Create(ctx context.Context, msg *models.Message) error {
	return translate(r.db.WithContext(ctx).Create(msg).Error)
}

// ListByThread returns up to limit messages oldest first. With an empty
// afterID it returns the most recent window, otherwise the messages that
// follow afterID.
func (r *PostgresMessageRepository) ListByThread(ctx context.Context, threadID, afterID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	q := r.db.WithContext(ctx).Where("thread_id = ?", threadID)
	if afterID != "" {
		err := q.Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&msgs).Error
		return msgs, err
	}
	if err := q.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}
