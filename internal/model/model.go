package model

import "time"

// User is a registered account. HashedPassword never leaves the store
// layer: it is excluded from JSON.
type User struct {
	ID             string    `json:"id" dynamodbav:"user_id"`
	Email          string    `json:"email" dynamodbav:"email"`
	HashedPassword string    `json:"-" dynamodbav:"hashed_password"`
	CreatedAt      time.Time `json:"created_at" dynamodbav:"created_at"`
	IsActive       bool      `json:"is_active" dynamodbav:"is_active"`
}

// Public returns a copy of u without the password hash.
func (u User) Public() User {
	u.HashedPassword = ""
	return u
}

// Note is a persisted transcription document.
type Note struct {
	ID          string    `json:"id" dynamodbav:"id"`
	Rev         string    `json:"rev" dynamodbav:"rev"`
	UserID      string    `json:"user_id" dynamodbav:"user_id"`
	Title       string    `json:"titulo" dynamodbav:"title"`
	Text        string    `json:"texto" dynamodbav:"text"`
	CreatedAt   time.Time `json:"fecha" dynamodbav:"created_at"`
	AudioFormat string    `json:"audio_format,omitempty" dynamodbav:"audio_format,omitempty"`
	AudioSize   int64     `json:"audio_size,omitempty" dynamodbav:"audio_size,omitempty"`
}

// Identity is the subject carried by a verified bearer token.
type Identity struct {
	SubjectID string
	Email     string
}
