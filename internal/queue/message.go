package queue

import (
	"fmt"
	"strings"
)

// DispatchMessage is the broker payload for one delivery attempt.
type DispatchMessage struct {
	Name           string `json:"name"`
	JobID          string `json:"jobId"`
	NotificationID int64  `json:"notificationId"`
	Attempt        int    `json:"attempt"`
}

func (m DispatchMessage) Validate() error {
	if m.Name != JobNameSendNotification {
		return fmt.Errorf("unsupported job name %q", m.Name)
	}
	if strings.TrimSpace(m.JobID) == "" {
		return fmt.Errorf("jobId is required")
	}
	if m.NotificationID <= 0 {
		return fmt.Errorf("notificationId must be positive")
	}
	if m.Attempt < 1 {
		return fmt.Errorf("attempt must be at least 1")
	}
	return nil
}
