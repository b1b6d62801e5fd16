package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsActive reports whether a notification in this status still awaits delivery.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Type is the kind of recurring reminder.
type Type string

const (
	TypeBirthday Type = "birthday"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	return t == TypeBirthday
}

func ParseTypeFromString(s string) (Type, error) {
	tp := Type(strings.ToLower(strings.TrimSpace(s)))
	if !tp.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return tp, nil
}

// Notification is one scheduled delivery of a recurring reminder.
type Notification struct {
	ID          int64
	UserID      int64
	Type        Type
	Status      Status
	ScheduledAt time.Time
	CreatedAt   time.Time
}

func (n *Notification) Validate() error {
	if n.UserID <= 0 {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	if n.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduledAt is required", ErrValidation)
	}
	return nil
}

// NewBirthdayNotification returns a pending birthday notification for userID.
func NewBirthdayNotification(userID int64, scheduledAt time.Time) *Notification {
	return &Notification{
		UserID:      userID,
		Type:        TypeBirthday,
		Status:      StatusPending,
		ScheduledAt: scheduledAt.UTC(),
	}
}

// BirthdayMessage is the email text sent to u on their birthday.
func BirthdayMessage(u *User) string {
	return fmt.Sprintf("Hey %s, it's your birthday!", u.FullName())
}
