package models

import (
	"crypto/rand"
	"time"
)

// Job statuses as reported by the generation provider and stored in the KV record.
const (
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// Error kinds attached to failed jobs after classifying the provider's error text.
const (
	ErrKindNoFace     = "no_face_detected"
	ErrKindSafety     = "safety_filter"
	ErrKindProcessing = "processing_error"
)

// DefaultName is used when a submission carries no display name.
const DefaultName = "Friend"

// Job is the transient KV record tracked per submission. Field names match
// the JSON surface consumed by the polling client and the view page.
type Job struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
	Email          string    `json:"email,omitempty"`
	Name           string    `json:"name,omitempty"`
	ShortID        string    `json:"shortId,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	ProcessingTime float64   `json:"processingTime,omitempty"`
	Error          string    `json:"error,omitempty"`
	ErrorType      string    `json:"errorType,omitempty"`
	ErrorDetails   string    `json:"errorDetails,omitempty"`
}

// FeedEntry is one item of the public social-proof feed.
type FeedEntry struct {
	ImageURL  string    `json:"imageUrl"`
	Timestamp time.Time `json:"timestamp"`
}

// User is a durable row keyed by email, upserted on every submission
// that captures an address.
type User struct {
	Email          string    `json:"email"`
	Name           string    `json:"name,omitempty"`
	FirstSeen      time.Time `json:"firstSeen"`
	LastSeen       time.Time `json:"lastSeen"`
	TransformCount int       `json:"transformCount"`
}

// Transformation is the permanent relational record of a completed job,
// pointing at the durable copy of the result image.
type Transformation struct {
	JobID     string    `json:"jobId"`
	ShortID   string    `json:"shortId"`
	ImageURL  string    `json:"imageUrl"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewShortID returns a 6-character shareable token. Tokens are random and
// are not checked for collisions against live entries.
func NewShortID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = shortIDAlphabet[int(b)%len(shortIDAlphabet)]
	}
	return string(buf)
}
