package domain

import (
	"fmt"
	"time"
)

// DefaultPresenceWindow is how long after its last activity a session counts as online.
const DefaultPresenceWindow = 5 * time.Minute

type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	Location   string    `json:"location,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (s Session) IsActive(now time.Time, window time.Duration) bool {
	return now.Sub(s.LastSeenAt) < window
}

// FormatLastSeen renders how stale lastSeen is relative to now.
func FormatLastSeen(now, lastSeen time.Time) string {
	minutes := int(now.Sub(lastSeen) / time.Minute)
	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return fmt.Sprintf("%d min ago", minutes)
	default:
		return fmt.Sprintf("%dh ago", minutes/60)
	}
}

type DashboardStats struct {
	OnlineUsers         int `json:"online_users"`
	TotalDocuments      int `json:"total_documents"`
	ProcessingDocuments int `json:"processing_documents"`
	ActiveDoctors       int `json:"active_doctors"`
}
