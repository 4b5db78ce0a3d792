// Package claims runs the claim lifecycle: creation with its chat thread,
// finder decisions, proof and verification, and the one-time handoff.
package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/anonto42/lost-found/backend/internal/handoff"
	"github.com/anonto42/lost-found/backend/internal/mask"
	"github.com/anonto42/lost-found/backend/internal/metrics"
	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/ratelimit"
	"github.com/anonto42/lost-found/backend/internal/repositories"
	"github.com/anonto42/lost-found/backend/internal/trust"
)

const (
	DefaultClaimTTL      = 7 * 24 * time.Hour
	DefaultThreadIdleTTL = 72 * time.Hour

	listLimit = 50
)

type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

type Deps struct {
	Claims  repositories.ClaimRepository
	Threads repositories.ThreadRepository
	Posts   repositories.PostRepository
	Users   repositories.UserRepository

	Limiter  ratelimit.Limiter
	Notifier Notifier
	Hasher   handoff.Hasher
	Log      *slog.Logger

	ClaimTTL      time.Duration
	ThreadIdleTTL time.Duration

	// Optional; tests pin these.
	CodeGen func() (string, error)
	Now     func() time.Time
}

type Service struct {
	claims  repositories.ClaimRepository
	threads repositories.ThreadRepository
	posts   repositories.PostRepository
	users   repositories.UserRepository

	limiter  ratelimit.Limiter
	notifier Notifier
	hasher   handoff.Hasher
	codeGen  func() (string, error)
	now      func() time.Time
	log      *slog.Logger

	claimTTL      time.Duration
	threadIdleTTL time.Duration
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Notification) {}

func NewService(d Deps) *Service {
	s := &Service{
		claims:        d.Claims,
		threads:       d.Threads,
		posts:         d.Posts,
		users:         d.Users,
		limiter:       d.Limiter,
		notifier:      d.Notifier,
		hasher:        d.Hasher,
		codeGen:       d.CodeGen,
		now:           d.Now,
		log:           d.Log,
		claimTTL:      d.ClaimTTL,
		threadIdleTTL: d.ThreadIdleTTL,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Noop{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.hasher.Cost == 0 {
		s.hasher = handoff.NewHasher(handoff.DefaultCost)
	}
	if s.codeGen == nil {
		s.codeGen = handoff.GenerateCode
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.claimTTL <= 0 {
		s.claimTTL = DefaultClaimTTL
	}
	if s.threadIdleTTL <= 0 {
		s.threadIdleTTL = DefaultThreadIdleTTL
	}
	return s
}

// Create files a claim by userID against postID and opens its chat thread.
// Both rows are written in one transaction.
func (s *Service) Create(ctx context.Context, userID, postID string, req models.CreateClaimRequest, fingerprint string) (*models.Claim, *models.ChatThread, error) {
	if userID == "" {
		return nil, nil, ErrUnauthenticated
	}
	if len(req.Answers) == 0 {
		return nil, nil, fmt.Errorf("%w: answers are required", ErrValidation)
	}

	ok, err := s.limiter.Allow(ctx, "claims:create:"+userID)
	if err != nil {
		s.log.Warn("rate limiter error, allowing claim", "user_id", userID, "error", err)
		ok = true
	}
	if !ok {
		metrics.ClaimsRateLimited.Inc()
		return nil, nil, ErrRateLimited
	}

	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		return nil, nil, notFound(err, "load post")
	}
	if post.UserID == userID {
		return nil, nil, ErrSelfClaim
	}

	user, err := s.users.GetUserByID(userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load claimant: %w", err)
	}

	now := s.now()
	recent, err := s.claims.CountRecentByClaimant(ctx, userID, now.Add(-RecentClaimsWindow))
	if err != nil {
		return nil, nil, fmt.Errorf("count recent claims: %w", err)
	}

	score := trust.Score(Extract(post, user, req.Answers, recent))
	band := trust.BandFor(score)

	verification := models.Unverified
	if user.EmailVerified {
		verification = models.EmailVerified
	}

	claim := &models.Claim{
		ID:                 uuid.NewString(),
		PostID:             postID,
		ClaimantID:         userID,
		FinderID:           post.UserID,
		Status:             models.ClaimPending,
		VerificationStatus: verification,
		TrustScore:         score,
		TrustBand:          string(band),
		Answers:            datatypes.NewJSONType(req.Answers),
		EvidenceImage:      req.EvidenceImage,
		Fingerprint:        fingerprint,
		ExpiresAt:          now.Add(s.claimTTL),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	finderHandle, claimantHandle := mask.Pair(post.UserID, userID)
	thread := &models.ChatThread{
		ID:         uuid.NewString(),
		FinderID:   post.UserID,
		ClaimantID: userID,
		Handles: datatypes.NewJSONType(map[string]string{
			post.UserID: finderHandle,
			userID:      claimantHandle,
		}),
		AutoCloseAt: now.Add(s.threadIdleTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.claims.CreateWithThread(ctx, claim, thread); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, nil, ErrDuplicateClaim
		}
		return nil, nil, fmt.Errorf("create claim: %w", err)
	}

	metrics.ClaimsCreated.WithLabelValues(string(band)).Inc()
	s.log.Info("claim created", "claim_id", claim.ID, "post_id", postID, "trust_score", score, "trust_band", band)
	s.notifier.Notify(ctx, models.Notification{
		Type:        models.NotifyClaimCreated,
		RecipientID: post.UserID,
		ClaimID:     claim.ID,
		PostID:      postID,
		Message:     "Someone has claimed your found item.",
	})
	return claim, thread, nil
}

// Get returns a claim to either of its two participants.
func (s *Service) Get(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	claim, err := s.load(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if userID != claim.FinderID && userID != claim.ClaimantID {
		return nil, ErrForbidden
	}
	return claim, nil
}

// List returns the caller's most recent claims, either those they filed
// (role "claimant") or those filed against their posts (role "finder").
func (s *Service) List(ctx context.Context, userID, role string) ([]models.Claim, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	switch role {
	case "", "claimant":
		return s.claims.ListByClaimant(ctx, userID, listLimit)
	case "finder":
		return s.claims.ListByFinder(ctx, userID, listLimit)
	}
	return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
}

// Decide applies the finder's approve or reject decision.
func (s *Service) Decide(ctx context.Context, userID, claimID, decision string) (*models.Claim, error) {
	return s.decide(ctx, userID, claimID, decision, nil)
}

// Verify records the finder's verification decision with an optional reason
// and applies the matching approve or reject move.
func (s *Service) Verify(ctx context.Context, userID, claimID string, req models.VerificationRequest) (*models.Claim, error) {
	fields := map[string]any{
		"verification_reviewer_id": userID,
		"verification_decision":    req.Decision,
		"verification_decided_at":  s.now(),
		"verification_reason":      req.Reason,
	}
	if req.Decision == models.DecisionApproved {
		fields["verification_status"] = models.FullyVerified
	}
	return s.decide(ctx, userID, claimID, req.Decision, fields)
}

func (s *Service) decide(ctx context.Context, userID, claimID, decision string, extra map[string]any) (*models.Claim, error) {
	ev, target, err := decisionEvent(decision)
	if err != nil {
		return nil, err
	}
	claim, err := s.loadAsFinder(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfDue(ctx, claim); err != nil {
		return nil, err
	}

	// Repeating the decision a claim already carries changes nothing but
	// the verification record, if one was supplied.
	if claim.Status == target {
		if len(extra) == 0 {
			return claim, nil
		}
		ok, err := s.claims.ApplyStatusChange(ctx, repositories.StatusChange{
			ClaimID:     claim.ID,
			From:        []models.ClaimStatus{target},
			To:          target,
			ClaimFields: extra,
		})
		if err != nil {
			return nil, fmt.Errorf("record verification: %w", err)
		}
		if !ok {
			return nil, ErrInvalidTransition
		}
		return s.claims.GetByID(ctx, claim.ID)
	}

	fields := map[string]any{"decided_at": s.now()}
	for k, v := range extra {
		fields[k] = v
	}
	threadFields := map[string]any{"allow_links": true, "allow_attachments": true}
	if ev == EventReject {
		threadFields = map[string]any{"is_closed": true, "closed_reason": models.ThreadClosedRejected}
	}

	updated, err := s.move(ctx, claim, ev, fields, threadFields, ErrInvalidTransition)
	if err != nil {
		return nil, err
	}

	if ev == EventApprove {
		s.setPostStatus(ctx, claim.PostID, models.PostClaimed)
	}
	s.notifier.Notify(ctx, models.Notification{
		Type:        models.NotifyClaimDecided,
		RecipientID: claim.ClaimantID,
		ClaimID:     claim.ID,
		PostID:      claim.PostID,
		Message:     "Your claim was " + string(target) + ".",
	})
	return updated, nil
}

// SubmitProof stores the claimant's proof of ownership and moves the claim
// to awaiting_verification.
func (s *Service) SubmitProof(ctx context.Context, userID, claimID string, req models.SubmitProofRequest) (*models.Claim, error) {
	claim, err := s.loadAsClaimant(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if err := s.expireIfDue(ctx, claim); err != nil {
		return nil, err
	}
	updated, err := s.move(ctx, claim, EventSubmitProof, map[string]any{
		"proof_image_ref":    req.ImageRef,
		"proof_note":         req.Note,
		"proof_submitted_at": s.now(),
	}, nil, ErrInvalidTransition)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, models.Notification{
		Type:        models.NotifyProofSubmitted,
		RecipientID: claim.FinderID,
		ClaimID:     claim.ID,
		PostID:      claim.PostID,
		Message:     "A claimant submitted proof of ownership.",
	})
	return updated, nil
}

// GenerateHandoff issues the claim's one-time handoff code. Only the hash is
// stored; the returned plaintext cannot be retrieved again.
func (s *Service) GenerateHandoff(ctx context.Context, userID, claimID string) (string, error) {
	claim, err := s.loadAsFinder(ctx, userID, claimID)
	if err != nil {
		return "", err
	}
	if claim.HandoffCodeHash != "" {
		return "", ErrHandoffAlreadyGenerated
	}
	if claim.Status != models.ClaimApproved {
		return "", ErrClaimNotApproved
	}

	code, err := s.codeGen()
	if err != nil {
		return "", err
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return "", err
	}
	ok, err := s.claims.SetHandoffHash(ctx, claim.ID, hash)
	if err != nil {
		return "", fmt.Errorf("store handoff hash: %w", err)
	}
	if !ok {
		fresh, err := s.claims.GetByID(ctx, claim.ID)
		if err != nil {
			return "", notFound(err, "reload claim")
		}
		if fresh.HandoffCodeHash != "" {
			return "", ErrHandoffAlreadyGenerated
		}
		return "", ErrClaimNotApproved
	}

	metrics.HandoffCodesIssued.Inc()
	s.log.Info("handoff code issued", "claim_id", claim.ID)
	return code, nil
}

// ConfirmHandoff completes an approved claim when the claimant presents the
// code the finder generated.
func (s *Service) ConfirmHandoff(ctx context.Context, userID, claimID, code string) (*models.Claim, error) {
	claim, err := s.loadAsClaimant(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != models.ClaimApproved {
		return nil, ErrClaimNotApproved
	}
	if !s.hasher.Verify(code, claim.HandoffCodeHash) {
		metrics.HandoffConfirmFailures.Inc()
		return nil, ErrInvalidHandoffCode
	}

	updated, err := s.move(ctx, claim, EventConfirmHandoff,
		map[string]any{"completed_at": s.now()},
		map[string]any{"allow_links": false, "allow_attachments": false},
		ErrClaimNotApproved)
	if err != nil {
		return nil, err
	}

	s.setPostStatus(ctx, claim.PostID, models.PostReturned)
	s.notifier.Notify(ctx, models.Notification{
		Type:        models.NotifyHandoffCompleted,
		RecipientID: claim.FinderID,
		ClaimID:     claim.ID,
		PostID:      claim.PostID,
		Message:     "The item handoff was confirmed.",
	})
	return updated, nil
}

// move checks ev against the transition table and applies it conditionally
// on the claim still being in a status that accepts ev. When it is not,
// stale is returned.
func (s *Service) move(ctx context.Context, claim *models.Claim, ev Event, fields, threadFields map[string]any, stale error) (*models.Claim, error) {
	to, err := Transition(claim.Status, ev)
	if err != nil {
		return nil, err
	}
	ok, err := s.claims.ApplyStatusChange(ctx, repositories.StatusChange{
		ClaimID:      claim.ID,
		From:         Sources(ev),
		To:           to,
		ClaimFields:  fields,
		ThreadFields: threadFields,
	})
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", ev, err)
	}
	if !ok {
		fresh, err := s.claims.GetByID(ctx, claim.ID)
		if err != nil {
			return nil, notFound(err, "reload claim")
		}
		s.log.Info("claim moved concurrently", "claim_id", claim.ID, "event", ev, "status", fresh.Status)
		return nil, stale
	}

	metrics.ClaimTransitions.WithLabelValues(string(to)).Inc()
	s.log.Info("claim status changed", "claim_id", claim.ID, "from", claim.Status, "to", to)
	updated, err := s.claims.GetByID(ctx, claim.ID)
	if err != nil {
		return nil, notFound(err, "reload claim")
	}
	return updated, nil
}

// expireIfDue expires a pending claim whose deadline passed before the
// sweep reached it, and reports the move as invalid.
func (s *Service) expireIfDue(ctx context.Context, claim *models.Claim) error {
	if claim.Status != models.ClaimPending || !s.now().After(claim.ExpiresAt) {
		return nil
	}
	if _, err := s.claims.ApplyStatusChange(ctx, repositories.StatusChange{
		ClaimID:      claim.ID,
		From:         []models.ClaimStatus{models.ClaimPending},
		To:           models.ClaimExpired,
		ThreadFields: map[string]any{"is_closed": true, "closed_reason": models.ThreadClosedExpired},
	}); err != nil {
		return fmt.Errorf("expire claim: %w", err)
	}
	claim.Status = models.ClaimExpired
	return fmt.Errorf("%w: claim expired", ErrInvalidTransition)
}

func (s *Service) setPostStatus(ctx context.Context, postID string, status models.PostStatus) {
	if err := s.posts.UpdateStatus(ctx, postID, status); err != nil {
		s.log.Warn("post status not updated", "post_id", postID, "status", status, "error", err)
	}
}

func (s *Service) load(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, notFound(err, "load claim")
	}
	return claim, nil
}

func (s *Service) loadAsFinder(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	claim, err := s.load(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.FinderID != userID {
		return nil, ErrForbidden
	}
	return claim, nil
}

func (s *Service) loadAsClaimant(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	claim, err := s.load(ctx, userID, claimID)
	if err != nil {
		return nil, err
	}
	if claim.ClaimantID != userID {
		return nil, ErrForbidden
	}
	return claim, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
