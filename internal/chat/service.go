// Package chat is the masked two-party channel attached to each claim.
// Participants only ever see each other's handle; what they may send is
// gated by the thread's flags, which the claim lifecycle sets.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/anonto42/lost-found/backend/internal/metrics"
	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/repositories"
)

const (
	MaxWindow = 100

	liveBuffer = 64
)

var (
	ErrUnauthenticated     = errors.New("authentication required")
	ErrNotFound            = errors.New("thread not found")
	ErrForbidden           = errors.New("not a participant of this thread")
	ErrThreadClosed        = errors.New("thread is closed")
	ErrAttachmentsDisabled = errors.New("attachments are not allowed in this thread yet")
	ErrEmptyMessage        = errors.New("message is empty")
)

// MessageView is a message as one participant sees it.
type MessageView struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	Sender        string    `json:"sender"`
	Mine          bool      `json:"mine"`
	Content       string    `json:"content"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type ThreadView struct {
	ID               string    `json:"id"`
	ClaimID          string    `json:"claim_id"`
	Me               string    `json:"me"`
	Peer             string    `json:"peer"`
	AllowLinks       bool      `json:"allow_links"`
	AllowAttachments bool      `json:"allow_attachments"`
	IsClosed         bool      `json:"is_closed"`
	ClosedReason     string    `json:"closed_reason,omitempty"`
	AutoCloseAt      time.Time `json:"auto_close_at"`
}

type Service struct {
	threads  repositories.ThreadRepository
	messages repositories.MessageRepository
	hub      *Hub
	locks    *threadLocks
	idleTTL  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewService(threads repositories.ThreadRepository, messages repositories.MessageRepository, hub *Hub, idleTTL time.Duration, log *slog.Logger) *Service {
	if hub == nil {
		hub = NewHub()
	}
	return &Service{
		threads:  threads,
		messages: messages,
		hub:      hub,
		locks:    newThreadLocks(),
		idleTTL:  idleTTL,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

func (s *Service) Thread(ctx context.Context, userID, threadID string) (*ThreadView, error) {
	thread, err := s.participantThread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	return &ThreadView{
		ID:               thread.ID,
		ClaimID:          thread.ClaimID,
		Me:               thread.HandleFor(userID),
		Peer:             thread.HandleFor(thread.PeerOf(userID)),
		AllowLinks:       thread.AllowLinks,
		AllowAttachments: thread.AllowAttachments,
		IsClosed:         s.closed(thread),
		ClosedReason:     thread.ClosedReason,
		AutoCloseAt:      thread.AutoCloseAt,
	}, nil
}

// Append stores a message from userID. While links are locked the content
// is stored with links replaced; the original text is not kept.
func (s *Service) Append(ctx context.Context, userID, threadID string, req models.SendMessageRequest) (*MessageView, error) {
	thread, err := s.participantThread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	if s.closed(thread) {
		return nil, ErrThreadClosed
	}
	if req.AttachmentURL != "" && !thread.AllowAttachments {
		return nil, ErrAttachmentsDisabled
	}

	content := strings.TrimSpace(req.Content)
	if content == "" && req.AttachmentURL == "" {
		return nil, ErrEmptyMessage
	}
	filtered := false
	if !thread.AllowLinks {
		content, filtered = StripLinks(content)
	}

	// Ids are assigned, stored and published in one order per thread, so a
	// reader at cursor c never later finds a message with an id below c.
	unlock := s.locks.Lock(thread.ID)
	now := s.now()
	msg := &models.Message{
		ID:            ulid.Make().String(),
		ThreadID:      thread.ID,
		SenderID:      userID,
		Content:       content,
		AttachmentURL: req.AttachmentURL,
		CreatedAt:     now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		unlock()
		return nil, fmt.Errorf("store message: %w", err)
	}
	s.hub.Publish(*msg)
	unlock()

	if err := s.threads.Touch(ctx, thread.ID, now.Add(s.idleTTL)); err != nil {
		s.log.Warn("thread deadline not extended", "thread_id", thread.ID, "error", err)
	}
	metrics.MessagesAppended.WithLabelValues(strconv.FormatBool(filtered)).Inc()
	v := view(thread, userID, *msg)
	return &v, nil
}

// Read returns messages oldest first: the latest window when after is
// empty, otherwise the messages following the one with id after.
func (s *Service) Read(ctx context.Context, userID, threadID, after string, limit int) ([]MessageView, error) {
	thread, err := s.participantThread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxWindow {
		limit = MaxWindow
	}
	msgs, err := s.messages.ListByThread(ctx, thread.ID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, view(thread, userID, m))
	}
	return out, nil
}

// Subscribe streams the thread to userID until ctx ends. It first replays
// what the store holds after the cursor, then forwards live messages. A
// message may be delivered twice around the switch-over; receivers dedupe by
// id.
func (s *Service) Subscribe(ctx context.Context, userID, threadID, after string) (<-chan MessageView, error) {
	thread, err := s.participantThread(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}

	// Register before reading the backlog so nothing falls in between.
	live, cancel := s.hub.Subscribe(thread.ID, liveBuffer)
	out := make(chan MessageView, liveBuffer)

	go func() {
		defer close(out)
		defer cancel()

		send := func(m models.Message) bool {
			select {
			case out <- view(thread, userID, m):
				return true
			case <-ctx.Done():
				return false
			}
		}

		cursor := after
		for {
			msgs, err := s.messages.ListByThread(ctx, thread.ID, cursor, MaxWindow)
			if err != nil {
				if ctx.Err() == nil {
					s.log.Warn("backlog replay failed", "thread_id", thread.ID, "error", err)
				}
				return
			}
			for _, m := range msgs {
				if !send(m) {
					return
				}
				cursor = m.ID
			}
			if len(msgs) < MaxWindow {
				break
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-live:
				if !ok {
					return
				}
				if m.ID <= cursor {
					continue
				}
				if !send(m) {
					return
				}
				cursor = m.ID
			}
		}
	}()
	return out, nil
}

func (s *Service) participantThread(ctx context.Context, userID, threadID string) (*models.ChatThread, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	thread, err := s.threads.GetByID(ctx, threadID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	if !thread.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	return thread, nil
}

// closed also covers a thread whose deadline passed before the sweep ran.
func (s *Service) closed(t *models.ChatThread) bool {
	return t.IsClosed || s.now().After(t.AutoCloseAt)
}

func view(t *models.ChatThread, userID string, m models.Message) MessageView {
	return MessageView{
		ID:            m.ID,
		ThreadID:      m.ThreadID,
		Sender:        t.HandleFor(m.SenderID),
		Mine:          m.SenderID == userID,
		Content:       m.Content,
		AttachmentURL: m.AttachmentURL,
		CreatedAt:     m.CreatedAt,
	}
}
