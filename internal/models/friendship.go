package models

import (
	"time"

	"gorm.io/gorm"
)

// FriendshipStatus is the state of a friend request
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

// Friendship links a requester to an addressee. PairKey holds both ids in
// sorted order so a pair can only ever have one row.
type Friendship struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	RequesterID string           `gorm:"size:36;not null;index" json:"requester_id"`
	AddresseeID string           `gorm:"size:36;not null;index" json:"addressee_id"`
	PairKey     string           `gorm:"size:80;not null;uniqueIndex" json:"-"`
	Status      FriendshipStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	Requester *Profile `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	Addressee *Profile `gorm:"foreignKey:AddresseeID" json:"addressee,omitempty"`
}

func (f *Friendship) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateUUID()
	}
	f.PairKey = FriendshipPairKey(f.RequesterID, f.AddresseeID)
	return nil
}

// FriendshipPairKey is the order independent key of two profiles
func FriendshipPairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// CanTransition reports whether a request may move to the target status.
// Only pending requests can be answered.
func (f *Friendship) CanTransition(to FriendshipStatus) bool {
	if f.Status != FriendshipPending {
		return false
	}
	return to == FriendshipAccepted || to == FriendshipBlocked
}

// OtherID returns the id of the side that is not profileID
func (f *Friendship) OtherID(profileID string) string {
	if f.RequesterID == profileID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// Involves reports whether profileID is either side of the friendship
func (f *Friendship) Involves(profileID string) bool {
	return f.RequesterID == profileID || f.AddresseeID == profileID
}
