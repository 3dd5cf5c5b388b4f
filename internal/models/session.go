package models

import "time"

// DefaultSessionRetention is how long an unused session survives before pruning.
const DefaultSessionRetention = 15 * 24 * time.Hour

// Session is one authenticated device of an identity.
type Session struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"-"`
	RefreshTokenHash string    `db:"refresh_token_hash" json:"-"`
	IP               string    `db:"ip_address" json:"ip"`
	UserAgent        string    `db:"user_agent" json:"user_agent"`
	Browser          string    `db:"browser" json:"browser"`
	OS               string    `db:"os" json:"os"`
	DeviceClass      string    `db:"device_class" json:"device_class"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	LastUsed         time.Time `db:"last_used" json:"last_used"`
}

// Device returns the fingerprint captured when the session was created.
func (s Session) Device() DeviceFingerprint {
	return DeviceFingerprint{
		IP:          s.IP,
		UserAgent:   s.UserAgent,
		Browser:     s.Browser,
		OS:          s.OS,
		DeviceClass: s.DeviceClass,
	}
}

// DeviceFingerprint describes the client that issued a request.
type DeviceFingerprint struct {
	IP          string `json:"ip"`
	UserAgent   string `json:"user_agent"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
	DeviceClass string `json:"device_class"`
}

// SameDevice compares the binding tuple (ip, user agent).
func (d DeviceFingerprint) SameDevice(other DeviceFingerprint) bool {
	return d.IP == other.IP && d.UserAgent == other.UserAgent
}

// SessionView is a session as shown to its owner.
type SessionView struct {
	Session
	Current bool `json:"current"`
}
