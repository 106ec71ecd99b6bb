// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered dashboard account.
//
// Email is the login key. It is stored trimmed and lowercased, and the
// database enforces uniqueness. IsAdmin is decided once, at signup: only the
// very first account gets it. Nothing in this service changes it afterwards.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	PasswordHash string    `json:"-"` // never serialized, never logged
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}
