package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func km(v float64) *float64 { return &v }

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		factors  Factors
		expected int
	}{
		{name: "no evidence", factors: Factors{}, expected: 0},
		{name: "serial only", factors: Factors{SerialMatch: true}, expected: 60},
		{name: "two keywords", factors: Factors{KeywordMatchCount: 2}, expected: 20},
		{name: "keywords capped", factors: Factors{KeywordMatchCount: 9}, expected: 30},
		{name: "negative keyword count ignored", factors: Factors{KeywordMatchCount: -3}, expected: 0},
		{name: "last seen", factors: Factors{LastSeenWithinHour: true}, expected: 10},
		{name: "email verified", factors: Factors{EmailVerified: true}, expected: 10},
		{name: "challenge", factors: Factors{ChallengeCorrect: true}, expected: 15},
		{name: "zero distance is nearby", factors: Factors{DistanceKm: km(0)}, expected: 20},
		{name: "just under a km", factors: Factors{DistanceKm: km(0.999)}, expected: 20},
		{name: "exactly a km gets nothing", factors: Factors{DistanceKm: km(1)}, expected: 0},
		{name: "far away", factors: Factors{DistanceKm: km(42)}, expected: 0},
		{name: "five recent claims no penalty", factors: Factors{RecentClaimsCount: 5}, expected: 0},
		{name: "six recent claims penalised", factors: Factors{RecentClaimsCount: 6}, expected: -60},
		{name: "penalty is flat", factors: Factors{RecentClaimsCount: 600}, expected: -60},
		{
			name: "everything",
			factors: Factors{
				SerialMatch: true, KeywordMatchCount: 4, LastSeenWithinHour: true,
				EmailVerified: true, ChallengeCorrect: true, DistanceKm: km(0.2),
			},
			expected: 145,
		},
		{
			name:     "abuser with serial",
			factors:  Factors{SerialMatch: true, RecentClaimsCount: 7},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Score(tt.factors))
		})
	}
}

func TestScoreSerialFloor(t *testing.T) {
	// Serial match dominates every combination that carries no abuse penalty.
	for mask := 0; mask < 1<<5; mask++ {
		f := Factors{
			SerialMatch:        true,
			LastSeenWithinHour: mask&1 != 0,
			EmailVerified:      mask&2 != 0,
			ChallengeCorrect:   mask&4 != 0,
		}
		if mask&8 != 0 {
			f.KeywordMatchCount = mask
		}
		if mask&16 != 0 {
			f.DistanceKm = km(float64(mask) / 10)
		}
		assert.GreaterOrEqual(t, Score(f), 60, "mask %b", mask)
	}
}

func TestKeywordsBeyondThreeNeverIncrease(t *testing.T) {
	base := Score(Factors{KeywordMatchCount: 3})
	for n := 4; n < 50; n++ {
		assert.Equal(t, base, Score(Factors{KeywordMatchCount: n}))
	}
}

func TestScoreDeterministic(t *testing.T) {
	f := Factors{SerialMatch: true, KeywordMatchCount: 2, DistanceKm: km(0.5)}
	first := Score(f)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(f))
	}
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, AutoApprove, BandFor(80))
	assert.Equal(t, AutoApprove, BandFor(145))
	assert.Equal(t, ManualReview, BandFor(79))
	assert.Equal(t, ManualReview, BandFor(0))
	assert.Equal(t, ManualReview, BandFor(-19))
	assert.Equal(t, AutoReject, BandFor(-20))
	assert.Equal(t, AutoReject, BandFor(-60))

	for s := -200; s <= 200; s++ {
		b := BandFor(s)
		switch {
		case s >= 80:
			assert.Equal(t, AutoApprove, b, s)
		case s <= -20:
			assert.Equal(t, AutoReject, b, s)
		default:
			assert.Equal(t, ManualReview, b, s)
		}
	}
}
