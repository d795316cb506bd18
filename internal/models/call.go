package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// CallType is the media kind of a call
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// Valid reports whether t is audio or video
func (t CallType) Valid() bool {
	return t == CallAudio || t == CallVideo
}

// CallStatus is the lifecycle state of a call
type CallStatus string

const (
	CallRinging   CallStatus = "ringing"
	CallConnected CallStatus = "connected"
	CallEnded     CallStatus = "ended"
	CallDeclined  CallStatus = "declined"
	CallMissed    CallStatus = "missed"
)

// Terminal reports whether no further transitions are possible
func (s CallStatus) Terminal() bool {
	return s == CallEnded || s == CallDeclined || s == CallMissed
}

// LiveCallStatuses are the states in which a profile counts as busy
var LiveCallStatuses = []CallStatus{CallRinging, CallConnected}

// CallerInfo is the caller snapshot shown on the receiver's ringing screen
type CallerInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Photo    string `json:"photo"`
	Username string `json:"username"`
}

// Scan implements the sql.Scanner interface
func (ci *CallerInfo) Scan(value interface{}) error {
	return scanJSON(value, ci)
}

// Value implements the driver.Valuer interface
func (ci CallerInfo) Value() (driver.Value, error) {
	b, err := json.Marshal(ci)
	return string(b), err
}

// GormDBDataType picks the column type per dialect
func (CallerInfo) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnType(db)
}

// Call is one audio or video call attempt between two profiles
type Call struct {
	ID              string     `gorm:"primaryKey;size:128" json:"id"`
	CallerID        string     `gorm:"size:36;not null;index" json:"caller_id"`
	ReceiverID      string     `gorm:"size:36;not null;index" json:"receiver_id"`
	CallType        CallType   `gorm:"size:8;not null" json:"call_type"`
	Status          CallStatus `gorm:"size:16;not null;index" json:"status"`
	CallerInfo      CallerInfo `json:"caller_info"`
	StartedAt       time.Time  `json:"started_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `gorm:"default:0" json:"duration_seconds"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Involves reports whether profileID is the caller or the receiver
func (c *Call) Involves(profileID string) bool {
	return c.CallerID == profileID || c.ReceiverID == profileID
}

// PeerOf returns the other participant
func (c *Call) PeerOf(profileID string) string {
	if c.CallerID == profileID {
		return c.ReceiverID
	}
	return c.CallerID
}
