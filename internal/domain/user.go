package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// BirthdayLayout is the wire and storage format of a birth date.
const BirthdayLayout = "2006-01-02"

// User is a person who receives a yearly birthday notification.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Birthday  time.Time
	Timezone  string
	UpdatedAt time.Time
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) Validate() error {
	if strings.TrimSpace(u.FirstName) == "" {
		return fmt.Errorf("%w: firstName is required", ErrValidation)
	}
	if strings.TrimSpace(u.LastName) == "" {
		return fmt.Errorf("%w: lastName is required", ErrValidation)
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, u.Email)
	}
	if u.Birthday.IsZero() {
		return fmt.Errorf("%w: birthday is required", ErrValidation)
	}
	if _, err := LoadTimezone(u.Timezone); err != nil {
		return err
	}
	return nil
}

// ParseBirthday accepts a calendar date (2006-01-02) or an RFC3339 timestamp
// and returns the date part at UTC midnight.
func ParseBirthday(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: birthday is required", ErrValidation)
	}

	if d, err := time.Parse(BirthdayLayout, trimmed); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	return time.Time{}, fmt.Errorf("%w: birthday must be an ISO-8601 date, got %q", ErrValidation, s)
}

// UserPatch holds the fields of a partial user update. Nil means unchanged.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Birthday  *time.Time
	Timezone  *string
}

func (p UserPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Email == nil && p.Birthday == nil && p.Timezone == nil
}

// Apply returns a copy of u with the patch applied.
func (p UserPatch) Apply(u User) User {
	if p.FirstName != nil {
		u.FirstName = strings.TrimSpace(*p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = strings.TrimSpace(*p.LastName)
	}
	if p.Email != nil {
		u.Email = strings.TrimSpace(*p.Email)
	}
	if p.Birthday != nil {
		u.Birthday = *p.Birthday
	}
	if p.Timezone != nil {
		u.Timezone = strings.TrimSpace(*p.Timezone)
	}
	return u
}
