// Package testutil provides an in-memory SQLite database with the service's
// schema and an in-memory post store for tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/repositories"
)

// NewDB opens a private in-memory database migrated with every model. A
// single connection keeps the database alive and serializes writers.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repositories.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// PostStore is a goroutine-safe in-memory repositories.PostRepository.
type PostStore struct {
	mu    sync.Mutex
	posts map[string]models.Post
}

func NewPostStore() *PostStore {
	return &PostStore{posts: map[string]models.Post{}}
}

// Add stores p, assigning an id when it has none, and returns the hex id.
func (s *PostStore) Add(p models.Post) string {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.Status == "" {
		p.Status = models.PostOpen
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID.Hex()] = p
	return p.ID.Hex()
}

func (s *PostStore) CreatePost(_ context.Context, post *models.Post) error {
	post.ID = primitive.NewObjectID()
	s.Add(*post)
	return nil
}

func (s *PostStore) GetPostByID(_ context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

func (s *PostStore) GetPostsByUserID(_ context.Context, userID string, skip, limit int64) ([]models.Post, error) {
	return s.list(func(p models.Post) bool { return p.UserID == userID }, skip, limit), nil
}

func (s *PostStore) GetAllPosts(_ context.Context, skip, limit int64) ([]models.Post, error) {
	return s.list(func(p models.Post) bool { return p.Status != models.PostReturned }, skip, limit), nil
}

func (s *PostStore) list(keep func(models.Post) bool, skip, limit int64) []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Post{}
	for _, p := range s.posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if skip >= int64(len(out)) {
		return []models.Post{}
	}
	out = out[skip:]
	if limit > 0 && limit < int64(len(out)) {
		out = out[:limit]
	}
	return out
}

func (s *PostStore) UpdateStatus(_ context.Context, id string, status models.PostStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	p.Status = status
	s.posts[id] = p
	return nil
}

func (s *PostStore) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.posts, id)
	return nil
}
