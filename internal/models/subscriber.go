package models

// SubscriberStatus is the lifecycle state of a subscriber.
type SubscriberStatus string

const (
	// SubscriberPending means the confirmation link has not been visited yet.
	SubscriberPending SubscriberStatus = "pending"
	// SubscriberConfirmed is terminal: once confirmed, a subscriber never
	// reverts to pending.
	SubscriberConfirmed SubscriberStatus = "confirmed"
)

// SubscriberModel is a newsletter subscriber. Email is unique across all
// statuses; the unique index is the only place uniqueness is enforced.
type SubscriberModel struct {
	Base
	Email  string           `json:"email"  gorm:"uniqueIndex;not null"`
	Name   string           `json:"name"   gorm:"not null"`
	Status SubscriberStatus `json:"status" gorm:"type:varchar(16);default:pending;index"`
}

func (SubscriberModel) TableName() string { return "subscribers" }
