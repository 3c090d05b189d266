package records

import "time"

// CalendarConfig is the OAuth credential persisted on the user profile.
// ExpiryDate is epoch milliseconds; zero means unknown.
type CalendarConfig struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiryDate   int64  `json:"expiryDate,omitempty"`
}

// Expiry converts ExpiryDate to a time, returning the zero time when unknown.
func (c CalendarConfig) Expiry() time.Time {
	if c.ExpiryDate == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpiryDate).UTC()
}

// ExpiryMillis converts an expiry time into the stored representation.
func ExpiryMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// UserProfile holds the calendar connection state of one user.
type UserProfile struct {
	ID                string          `json:"id"`
	CalendarConfig    *CalendarConfig `json:"calendarConfig,omitempty"`
	CalendarConnected bool            `json:"calendarConnected"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}
