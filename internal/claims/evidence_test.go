package claims

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/lost-found/backend/internal/models"
)

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0, haversineKm(23.8103, 90.4125, 23.8103, 90.4125), 1e-9)
	// one degree of latitude is about 111.2 km
	assert.InDelta(t, 111.2, haversineKm(0, 0, 1, 0), 0.1)
}

func TestExtract(t *testing.T) {
	found := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	post := &models.Post{
		Serial:          "SN-4471",
		Keywords:        []string{"Blue", "leather", "wallet", "blue"},
		FoundAt:         found,
		ChallengeAnswer: "Cat sticker",
		Location:        models.NewGeoPoint(23.8103, 90.4125),
	}
	user := &models.User{EmailVerified: true}
	answers := models.Answers{
		AnswerSerial:          models.StringAnswer(" sn-4471 "),
		AnswerDescription:     models.StringAnswer("A blue leather wallet with cards"),
		AnswerLastSeenAt:      models.DateAnswer(found.Add(-40 * time.Minute)),
		AnswerChallengeAnswer: models.StringAnswer("cat sticker"),
		AnswerLostLat:         models.NumberAnswer(23.8110),
		AnswerLostLng:         models.StringAnswer("90.4130"),
	}

	f := Extract(post, user, answers, 2)
	assert.True(t, f.SerialMatch)
	assert.Equal(t, 3, f.KeywordMatchCount)
	assert.True(t, f.LastSeenWithinHour)
	assert.True(t, f.EmailVerified)
	assert.True(t, f.ChallengeCorrect)
	require.NotNil(t, f.DistanceKm)
	assert.Less(t, *f.DistanceKm, 1.0)
	assert.Equal(t, 2, f.RecentClaimsCount)
}

func TestExtractMissingEvidence(t *testing.T) {
	post := &models.Post{Keywords: []string{"phone"}}
	f := Extract(post, nil, models.Answers{
		AnswerSerial:     models.StringAnswer("anything"),
		AnswerLastSeenAt: models.StringAnswer("yesterday"),
		AnswerLostLat:    models.NumberAnswer(1),
	}, 0)

	assert.False(t, f.SerialMatch, "post without a serial never matches")
	assert.Zero(t, f.KeywordMatchCount)
	assert.False(t, f.LastSeenWithinHour)
	assert.False(t, f.EmailVerified)
	assert.Nil(t, f.DistanceKm, "distance is unknown without both points")
}
