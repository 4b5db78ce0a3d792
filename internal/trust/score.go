// Package trust scores claim evidence and derives a coarse routing band.
//
// The band is descriptive. Nothing in the claim workflow acts on it: every
// claim waits for the finder's decision whatever its band says.
package trust

type Band string

const (
	AutoApprove  Band = "auto_approve"
	ManualReview Band = "manual_review"
	AutoReject   Band = "auto_reject"
)

const (
	serialMatchPoints   = 60
	keywordPoints       = 10
	keywordCap          = 30
	lastSeenPoints      = 10
	emailVerifiedPoints = 10
	challengePoints     = 15
	nearbyPoints        = 20
	nearbyKm            = 1.0
	abusePenalty        = -60
	abuseThreshold      = 5

	approveAt = 80
	rejectAt  = -20
)

// Factors are the independently optional evidence signals for a claim.
// DistanceKm is nil when the claimant gave no usable loss location.
type Factors struct {
	SerialMatch        bool
	KeywordMatchCount  int
	LastSeenWithinHour bool
	EmailVerified      bool
	ChallengeCorrect   bool
	DistanceKm         *float64
	RecentClaimsCount  int
}

// Score is an unclamped additive sum; it may be negative or exceed 100.
func Score(f Factors) int {
	score := 0
	if f.SerialMatch {
		score += serialMatchPoints
	}
	if f.KeywordMatchCount > 0 {
		score += min(f.KeywordMatchCount*keywordPoints, keywordCap)
	}
	if f.LastSeenWithinHour {
		score += lastSeenPoints
	}
	if f.EmailVerified {
		score += emailVerifiedPoints
	}
	if f.ChallengeCorrect {
		score += challengePoints
	}
	if f.DistanceKm != nil && *f.DistanceKm >= 0 && *f.DistanceKm < nearbyKm {
		score += nearbyPoints
	}
	if f.RecentClaimsCount > abuseThreshold {
		score += abusePenalty
	}
	return score
}

func BandFor(score int) Band {
	switch {
	case score >= approveAt:
		return AutoApprove
	case score <= rejectAt:
		return AutoReject
	default:
		return ManualReview
	}
}
