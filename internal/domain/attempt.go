package domain

import "time"

// DeliveryAttempt records a single email transport call for a notification.
type DeliveryAttempt struct {
	ID             string
	NotificationID int64
	AttemptNumber  int
	StatusCode     *int
	Error          *string
	CreatedAt      time.Time
}
