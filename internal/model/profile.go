package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProfileID is the unique identifier of a profile.
type ProfileID string

// NewProfileID returns a new random profile ID.
func NewProfileID() ProfileID { return ProfileID(uuid.NewString()) }

// ProfilePreferences are the user preferences of a profile.
type ProfilePreferences struct {
	DateOfBirth          *time.Time
	ShowTestingLibraries bool
}

// Profile is a local user of the application, it owns accounts.
type Profile struct {
	ID                ProfileID
	DisplayName       string
	Preferences       ProfilePreferences
	MostRecentAccount AccountID
	CreatedAt         time.Time
}

// Validate validates the profile.
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		return fmt.Errorf("display name is required: %w", ErrNotValid)
	}
	return nil
}
