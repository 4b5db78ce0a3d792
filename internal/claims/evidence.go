package claims

import (
	"math"
	"strings"
	"time"

	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/trust"
)

// Answer keys read from a claim's evidence bag. Any other key is kept on the
// claim for the finder to read but does not feed the score.
const (
	AnswerSerial          = "serial"
	AnswerDescription     = "description"
	AnswerLastSeenAt      = "last_seen_at"
	AnswerChallengeAnswer = "challenge_answer"
	AnswerLostLat         = "lost_lat"
	AnswerLostLng         = "lost_lng"
)

// RecentClaimsWindow is how far back claim volume is counted.
const RecentClaimsWindow = 24 * time.Hour

const earthRadiusKm = 6371.0

// Extract derives trust factors by comparing the claimant's answers against
// the post's private details.
func Extract(post *models.Post, user *models.User, answers models.Answers, recentClaims int64) trust.Factors {
	f := trust.Factors{RecentClaimsCount: int(recentClaims)}

	if serial, ok := answers.String(AnswerSerial); ok && post.Serial != "" {
		f.SerialMatch = strings.EqualFold(serial, strings.TrimSpace(post.Serial))
	}

	if desc, ok := answers.String(AnswerDescription); ok {
		f.KeywordMatchCount = countKeywords(desc, post.Keywords)
	}

	if seen, ok := answers.Time(AnswerLastSeenAt); ok && !post.FoundAt.IsZero() {
		d := post.FoundAt.Sub(seen)
		f.LastSeenWithinHour = d >= -time.Hour && d <= time.Hour
	}

	if user != nil {
		f.EmailVerified = user.EmailVerified
	}

	if ans, ok := answers.String(AnswerChallengeAnswer); ok && post.ChallengeAnswer != "" {
		f.ChallengeCorrect = strings.EqualFold(ans, strings.TrimSpace(post.ChallengeAnswer))
	}

	lat, okLat := answers.Number(AnswerLostLat)
	lng, okLng := answers.Number(AnswerLostLng)
	if pLat, pLng, ok := post.Location.LatLng(); ok && okLat && okLng {
		d := haversineKm(lat, lng, pLat, pLng)
		f.DistanceKm = &d
	}
	return f
}

// countKeywords counts distinct post keywords that occur in text.
func countKeywords(text string, keywords []string) int {
	text = strings.ToLower(text)
	seen := make(map[string]bool, len(keywords))
	n := 0
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
