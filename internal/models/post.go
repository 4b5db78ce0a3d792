package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PostStatus string

const (
	PostOpen     PostStatus = "open"
	PostClaimed  PostStatus = "claimed"
	PostReturned PostStatus = "returned"
)

// GeoPoint is a GeoJSON point; Coordinates are [lng, lat].
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

func NewGeoPoint(lat, lng float64) *GeoPoint {
	return &GeoPoint{Type: "Point", Coordinates: []float64{lng, lat}}
}

func (p *GeoPoint) LatLng() (lat, lng float64, ok bool) {
	if p == nil || len(p.Coordinates) != 2 {
		return 0, 0, false
	}
	return p.Coordinates[1], p.Coordinates[0], true
}

// Post is a found-item listing stored in MongoDB. Serial and ChallengeAnswer
// are only ever compared against claim evidence, never returned to clients.
type Post struct {
	ID                primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID            string             `json:"user_id" bson:"user_id"`
	Title             string             `json:"title" bson:"title"`
	Description       string             `json:"description" bson:"description"`
	Category          string             `json:"category" bson:"category"`
	Keywords          []string           `json:"keywords,omitempty" bson:"keywords,omitempty"`
	ImageURLs         []string           `json:"image_urls,omitempty" bson:"image_urls,omitempty"`
	Location          *GeoPoint          `json:"location,omitempty" bson:"location,omitempty"`
	FoundAt           time.Time          `json:"found_at" bson:"found_at"`
	Status            PostStatus         `json:"status" bson:"status"`
	ChallengeQuestion string             `json:"challenge_question,omitempty" bson:"challenge_question,omitempty"`
	ChallengeAnswer   string             `json:"-" bson:"challenge_answer,omitempty"`
	Serial            string             `json:"-" bson:"serial,omitempty"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}

// CreatePostRequest defines the request body for creating a found-item post
type CreatePostRequest struct {
	Title             string    `json:"title" validate:"required,min=3,max=120"`
	Description       string    `json:"description" validate:"required,min=1,max=2000"`
	Category          string    `json:"category" validate:"required,max=40"`
	Keywords          []string  `json:"keywords,omitempty" validate:"omitempty,max=20,dive,min=2,max=40"`
	ImageURLs         []string  `json:"image_urls,omitempty" validate:"omitempty,dive,url"`
	Lat               *float64  `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng               *float64  `json:"lng,omitempty" validate:"omitempty,longitude"`
	FoundAt           time.Time `json:"found_at" validate:"required"`
	ChallengeQuestion string    `json:"challenge_question,omitempty" validate:"omitempty,max=200"`
	ChallengeAnswer   string    `json:"challenge_answer,omitempty" validate:"required_with=ChallengeQuestion,max=200"`
	Serial            string    `json:"serial,omitempty" validate:"omitempty,max=80"`
}
