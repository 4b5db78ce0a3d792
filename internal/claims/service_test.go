package claims

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/anonto42/lost-found/backend/internal/handoff"
	"github.com/anonto42/lost-found/backend/internal/mask"
	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/ratelimit"
	"github.com/anonto42/lost-found/backend/internal/repositories"
	"github.com/anonto42/lost-found/backend/internal/testutil"
	"github.com/anonto42/lost-found/backend/internal/trust"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

type fixture struct {
	svc      *Service
	claims   *repositories.PostgresClaimRepository
	threads  *repositories.PostgresThreadRepository
	posts    *testutil.PostStore
	notes    *recordingNotifier
	finder   *models.User
	claimant *models.User
	postID   string
	clock    time.Time
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	users := repositories.NewPostgresUserRepository(db)

	f := &fixture{
		claims:   repositories.NewPostgresClaimRepository(db),
		threads:  repositories.NewPostgresThreadRepository(db),
		posts:    testutil.NewPostStore(),
		notes:    &recordingNotifier{},
		finder:   &models.User{Name: "Finder", Email: "finder@example.com"},
		claimant: &models.User{Name: "Claimant", Email: "claimant@example.com"},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, users.CreateUser(f.finder))
	require.NoError(t, users.CreateUser(f.claimant))

	f.postID = f.posts.Add(models.Post{
		UserID:   f.finder.ID,
		Title:    "Brown wallet",
		Keywords: []string{"brown", "wallet"},
		Serial:   "SN-1",
		FoundAt:  f.clock.Add(-2 * time.Hour),
	})

	f.svc = NewService(Deps{
		Claims:        f.claims,
		Threads:       f.threads,
		Posts:         f.posts,
		Users:         users,
		Limiter:       limiter,
		Notifier:      f.notes,
		Hasher:        handoff.NewHasher(bcrypt.MinCost),
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		ClaimTTL:      24 * time.Hour,
		ThreadIdleTTL: 48 * time.Hour,
		CodeGen:       func() (string, error) { return "482913", nil },
		Now:           func() time.Time { return f.clock },
	})
	return f
}

func answers() models.CreateClaimRequest {
	return models.CreateClaimRequest{Answers: models.Answers{
		AnswerDescription: models.StringAnswer("brown wallet with a train ticket"),
	}}
}

func (f *fixture) create(t *testing.T) (*models.Claim, *models.ChatThread) {
	t.Helper()
	claim, thread, err := f.svc.Create(context.Background(), f.claimant.ID, f.postID, answers(), "fp")
	require.NoError(t, err)
	return claim, thread
}

func (f *fixture) thread(t *testing.T, claimID string) *models.ChatThread {
	t.Helper()
	th, err := f.threads.GetByClaimID(context.Background(), claimID)
	require.NoError(t, err)
	return th
}

func TestCreateStartsPendingWithGatesClosed(t *testing.T) {
	f := newFixture(t, nil)
	claim, thread := f.create(t)

	assert.Equal(t, models.ClaimPending, claim.Status)
	assert.Equal(t, models.Unverified, claim.VerificationStatus)
	assert.Equal(t, f.finder.ID, claim.FinderID)
	assert.Equal(t, f.clock.Add(24*time.Hour), claim.ExpiresAt)
	assert.Equal(t, 20, claim.TrustScore, "two keyword matches")
	assert.Equal(t, string(trust.ManualReview), claim.TrustBand)

	stored := f.thread(t, claim.ID)
	assert.Equal(t, thread.ID, stored.ID)
	assert.False(t, stored.AllowLinks)
	assert.False(t, stored.AllowAttachments)
	assert.False(t, stored.IsClosed)

	handles := stored.Handles.Data()
	require.Len(t, handles, 2)
	assert.Equal(t, mask.Handle(f.finder.ID), handles[f.finder.ID])
	assert.NotEqual(t, handles[f.finder.ID], handles[f.claimant.ID])

	assert.Equal(t, []string{models.NotifyClaimCreated}, f.notes.types())
}

func TestCreateHighScoreStillWaitsForFinder(t *testing.T) {
	f := newFixture(t, nil)
	req := answers()
	req.Answers[AnswerSerial] = models.StringAnswer("sn-1")

	claim, _, err := f.svc.Create(context.Background(), f.claimant.ID, f.postID, req, "")
	require.NoError(t, err)
	assert.Equal(t, 80, claim.TrustScore)
	assert.Equal(t, string(trust.AutoApprove), claim.TrustBand)
	assert.Equal(t, models.ClaimPending, claim.Status)
}

func TestCreateErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, "", f.postID, answers(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, _, err = f.svc.Create(ctx, f.finder.ID, f.postID, answers(), "")
	assert.ErrorIs(t, err, ErrSelfClaim)

	_, _, err = f.svc.Create(ctx, f.claimant.ID, "0123456789abcdef01234567", answers(), "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = f.svc.Create(ctx, f.claimant.ID, f.postID, models.CreateClaimRequest{}, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateDuplicateLeavesOriginal(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)

	req := answers()
	req.Answers[AnswerSerial] = models.StringAnswer("SN-1")
	_, _, err := f.svc.Create(context.Background(), f.claimant.ID, f.postID, req, "other")
	assert.ErrorIs(t, err, ErrDuplicateClaim)

	stored, err := f.claims.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.TrustScore, stored.TrustScore)
	assert.Equal(t, models.ClaimPending, stored.Status)
}

func TestCreateRateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.NewMemory(1, time.Hour))
	f.create(t)

	other := f.posts.Add(models.Post{UserID: f.finder.ID, Title: "Keys"})
	_, _, err := f.svc.Create(context.Background(), f.claimant.ID, other, answers(), "")
	assert.ErrorIs(t, err, ErrRateLimited)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestCreateAllowsWhenLimiterFails(t *testing.T) {
	f := newFixture(t, failingLimiter{})
	claim, _ := f.create(t)
	assert.Equal(t, models.ClaimPending, claim.Status)
}

func TestDecideApproveUnlocksLinks(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)

	got, err := f.svc.Decide(context.Background(), f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, got.Status)
	assert.NotNil(t, got.DecidedAt)

	th := f.thread(t, claim.ID)
	assert.True(t, th.AllowLinks)
	assert.False(t, th.IsClosed)

	post, err := f.posts.GetPostByID(context.Background(), f.postID)
	require.NoError(t, err)
	assert.Equal(t, models.PostClaimed, post.Status)
}

func TestDecideRejectClosesThread(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)

	got, err := f.svc.Decide(context.Background(), f.finder.ID, claim.ID, models.DecisionRejected)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimRejected, got.Status)

	th := f.thread(t, claim.ID)
	assert.True(t, th.IsClosed)
	assert.False(t, th.AllowLinks)
	assert.Equal(t, "claim_rejected", th.ClosedReason)
}

func TestDecideAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, f.claimant.ID, claim.ID, models.DecisionApproved)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Decide(ctx, "", claim.ID, models.DecisionApproved)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.Decide(ctx, f.finder.ID, "missing", models.DecisionApproved)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Decide(ctx, f.finder.ID, claim.ID, "maybe")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRepeatedDecision(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()

	first, err := f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Minute)
	again, err := f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, again.Status)
	assert.True(t, first.DecidedAt.Equal(*again.DecidedAt), "repeat does not overwrite the decision time")

	_, err = f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionRejected)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDecideExpiredPending(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)

	f.clock = f.clock.Add(25 * time.Hour)
	_, err := f.svc.Decide(context.Background(), f.finder.ID, claim.ID, models.DecisionApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stored, err := f.claims.GetByID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimExpired, stored.Status)

	th := f.thread(t, claim.ID)
	assert.True(t, th.IsClosed)
	assert.Equal(t, models.ThreadClosedExpired, th.ClosedReason)
}

func TestHandoffEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	claim, thread := f.create(t)
	assert.Equal(t, models.ClaimPending, claim.Status)
	assert.False(t, thread.AllowLinks)
	assert.False(t, thread.AllowAttachments)

	_, err := f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)
	assert.True(t, f.thread(t, claim.ID).AllowLinks)

	code, err := f.svc.GenerateHandoff(ctx, f.finder.ID, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, "482913", code)

	stored, err := f.claims.GetByID(ctx, claim.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.HandoffCodeHash)
	assert.NotEqual(t, code, stored.HandoffCodeHash)
	assert.True(t, stored.HandoffIssued)

	done, err := f.svc.ConfirmHandoff(ctx, f.claimant.ID, claim.ID, "482913")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	th := f.thread(t, claim.ID)
	assert.False(t, th.AllowLinks)
	assert.False(t, th.AllowAttachments)

	post, err := f.posts.GetPostByID(ctx, f.postID)
	require.NoError(t, err)
	assert.Equal(t, models.PostReturned, post.Status)

	_, err = f.svc.GenerateHandoff(ctx, f.finder.ID, claim.ID)
	assert.ErrorIs(t, err, ErrHandoffAlreadyGenerated)
	_, err = f.svc.ConfirmHandoff(ctx, f.claimant.ID, claim.ID, "482913")
	assert.ErrorIs(t, err, ErrClaimNotApproved)

	assert.Equal(t, []string{
		models.NotifyClaimCreated,
		models.NotifyClaimDecided,
		models.NotifyHandoffCompleted,
	}, f.notes.types())
}

func TestGenerateHandoffPreconditions(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()

	_, err := f.svc.GenerateHandoff(ctx, f.finder.ID, claim.ID)
	assert.ErrorIs(t, err, ErrClaimNotApproved)

	_, err = f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)

	_, err = f.svc.GenerateHandoff(ctx, f.claimant.ID, claim.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRegenerateKeepsHash(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)
	_, err = f.svc.GenerateHandoff(ctx, f.finder.ID, claim.ID)
	require.NoError(t, err)
	before, err := f.claims.GetByID(ctx, claim.ID)
	require.NoError(t, err)

	f.svc.codeGen = func() (string, error) { return "000111", nil }
	_, err = f.svc.GenerateHandoff(ctx, f.finder.ID, claim.ID)
	assert.ErrorIs(t, err, ErrHandoffAlreadyGenerated)

	after, err := f.claims.GetByID(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, before.HandoffCodeHash, after.HandoffCodeHash)
}

func TestConcurrentGenerateIssuesOneCode(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()
	_, err := f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.GenerateHandoff(ctx, f.finder.ID, claim.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrHandoffAlreadyGenerated)
	}
	assert.Equal(t, 1, ok)
}

func TestConfirmHandoffFailures(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()

	_, err := f.svc.ConfirmHandoff(ctx, f.claimant.ID, claim.ID, "482913")
	assert.ErrorIs(t, err, ErrClaimNotApproved)

	_, err = f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)

	_, err = f.svc.ConfirmHandoff(ctx, f.claimant.ID, claim.ID, "482913")
	assert.ErrorIs(t, err, ErrInvalidHandoffCode, "no code generated yet")

	_, err = f.svc.GenerateHandoff(ctx, f.finder.ID, claim.ID)
	require.NoError(t, err)

	_, err = f.svc.ConfirmHandoff(ctx, f.finder.ID, claim.ID, "482913")
	assert.ErrorIs(t, err, ErrForbidden)

	for i := 0; i < 3; i++ {
		_, err = f.svc.ConfirmHandoff(ctx, f.claimant.ID, claim.ID, "000000")
		assert.ErrorIs(t, err, ErrInvalidHandoffCode)
	}

	stored, err := f.claims.GetByID(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, stored.Status)

	_, err = f.svc.ConfirmHandoff(ctx, f.claimant.ID, claim.ID, "482913")
	assert.NoError(t, err, "wrong attempts do not lock the claim")
}

func TestProofThenRejectWithReason(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()

	got, err := f.svc.SubmitProof(ctx, f.claimant.ID, claim.ID, models.SubmitProofRequest{
		ImageRef: "claims/x/proof/receipt.jpg",
		Note:     "receipt from the shop",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ClaimAwaitingVerification, got.Status)
	assert.Equal(t, "claims/x/proof/receipt.jpg", got.Proof.ImageRef)
	require.NotNil(t, got.Proof.SubmittedAt)

	_, err = f.svc.SubmitProof(ctx, f.claimant.ID, claim.ID, models.SubmitProofRequest{ImageRef: "again"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err = f.svc.Verify(ctx, f.finder.ID, claim.ID, models.VerificationRequest{
		Decision: models.DecisionRejected,
		Reason:   "receipt is for a different wallet",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ClaimRejected, got.Status)
	assert.Equal(t, f.finder.ID, got.Verification.ReviewerID)
	assert.Equal(t, models.DecisionRejected, got.Verification.Decision)
	assert.Equal(t, "receipt is for a different wallet", got.Verification.Reason)
	assert.NotNil(t, got.Verification.DecidedAt)

	assert.True(t, f.thread(t, claim.ID).IsClosed)
}

func TestSubmitProofByFinderForbidden(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)

	_, err := f.svc.SubmitProof(context.Background(), f.finder.ID, claim.ID, models.SubmitProofRequest{ImageRef: "x"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyApproveMarksFullyVerified(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Decide(ctx, f.finder.ID, claim.ID, models.DecisionApproved)
	require.NoError(t, err)

	got, err := f.svc.Verify(ctx, f.finder.ID, claim.ID, models.VerificationRequest{Decision: models.DecisionApproved, Reason: "matched"})
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, got.Status)
	assert.Equal(t, models.FullyVerified, got.VerificationStatus)
	assert.Equal(t, "matched", got.Verification.Reason)
}

func TestGetAndList(t *testing.T) {
	f := newFixture(t, nil)
	claim, _ := f.create(t)
	ctx := context.Background()

	got, err := f.svc.Get(ctx, f.finder.ID, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.ID, got.ID)

	_, err = f.svc.Get(ctx, "stranger", claim.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	mine, err := f.svc.List(ctx, f.claimant.ID, "claimant")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.List(ctx, f.finder.ID, "finder")
	require.NoError(t, err)
	assert.Len(t, theirs, 1)

	_, err = f.svc.List(ctx, f.finder.ID, "admin")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSweep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	stale, _ := f.create(t)

	other := f.posts.Add(models.Post{UserID: f.finder.ID, Title: "Umbrella"})
	approved, _, err := f.svc.Create(ctx, f.claimant.ID, other, answers(), "")
	require.NoError(t, err)
	_, err = f.svc.Decide(ctx, f.finder.ID, approved.ID, models.DecisionApproved)
	require.NoError(t, err)

	sw := NewSweeper(f.claims, f.threads, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sw.now = func() time.Time { return f.clock.Add(30 * time.Hour) }

	res, err := sw.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{ExpiredClaims: 1, ClosedThreads: 0}, res)

	got, err := f.claims.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimExpired, got.Status)
	th := f.thread(t, stale.ID)
	assert.True(t, th.IsClosed, "expiry closes the claim's thread")
	assert.Equal(t, models.ThreadClosedExpired, th.ClosedReason)
	assert.False(t, f.thread(t, approved.ID).IsClosed)
	got, err = f.claims.GetByID(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, got.Status, "only pending claims expire")

	sw.now = func() time.Time { return f.clock.Add(49 * time.Hour) }
	res, err = sw.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{ExpiredClaims: 0, ClosedThreads: 1}, res)
	assert.Equal(t, models.ThreadClosedInactive, f.thread(t, approved.ID).ClosedReason)
	assert.Equal(t, models.ThreadClosedExpired, f.thread(t, stale.ID).ClosedReason)

	res, err = sw.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)
}

type pruningLimiter struct {
	ratelimit.Noop
	idle []time.Duration
}

func (p *pruningLimiter) Prune(idle time.Duration) int {
	p.idle = append(p.idle, idle)
	return 3
}

func TestSweepPrunesLocalLimiter(t *testing.T) {
	f := newFixture(t, nil)
	sw := NewSweeper(f.claims, f.threads, slog.New(slog.NewTextHandler(io.Discard, nil)))

	lim := &pruningLimiter{}
	sw.PruneLimiter(lim, time.Hour)
	res, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.PrunedKeys)
	assert.Equal(t, []time.Duration{time.Hour}, lim.idle)

	plain := NewSweeper(f.claims, f.threads, slog.New(slog.NewTextHandler(io.Discard, nil)))
	plain.PruneLimiter(ratelimit.Noop{}, time.Hour)
	res, err = plain.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.PrunedKeys)
}
