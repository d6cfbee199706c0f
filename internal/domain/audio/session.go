package audio

import "time"

// SessionSnapshot records which host owns the shared session and the sources it
// coordinates, so a restarted host or an external controller can rebuild ownership.
type SessionSnapshot struct {
	HostID         string          `json:"host_id"`
	NotificationID string          `json:"notification_id"`
	Sources        []SnapshotEntry `json:"sources"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SnapshotEntry is one source in a SessionSnapshot.
type SnapshotEntry struct {
	ID                 string `json:"id"`
	Locator            string `json:"locator"`
	UseForNotification bool   `json:"use_for_notification"`
	IsBackgroundMusic  bool   `json:"is_background_music"`
	Loop               bool   `json:"loop"`
}
