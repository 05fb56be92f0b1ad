package models

import (
	"time"
)

type RequestKind string

const (
	KindLeave    RequestKind = "leave"
	KindOvertime RequestKind = "overtime"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// Request is a leave or overtime request moving through its approval chain.
// CurrentLevel and CurrentApproverID are set only while Status is pending.
type Request struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	RequesterID       uint          `gorm:"not null;index" json:"requester_id"`
	Kind              RequestKind   `gorm:"not null;size:20" json:"kind"`
	Category          string        `gorm:"size:30" json:"category,omitempty"`
	Start             time.Time     `gorm:"column:start_at;not null" json:"start"`
	End               time.Time     `gorm:"column:end_at;not null" json:"end"`
	QuantityHours     float64       `gorm:"not null" json:"quantity_hours"`
	Reason            string        `gorm:"size:500" json:"reason"`
	AttachmentRef     string        `gorm:"size:255" json:"attachment_ref,omitempty"`
	Status            RequestStatus `gorm:"not null;size:20;index" json:"status"`
	CurrentLevel      *int          `json:"current_level,omitempty"`
	CurrentApproverID *uint         `gorm:"index" json:"current_approver_id,omitempty"`
	RejectionReason   *string       `gorm:"size:500" json:"rejection_reason,omitempty"`
	DecidedByID       *uint         `json:"decided_by_id,omitempty"`
	DecidedByName     string        `gorm:"size:200" json:"decided_by_name,omitempty"`
	DecidedBySystem   bool          `gorm:"default:false" json:"decided_by_system"`
	DecidedAt         *time.Time    `json:"decided_at,omitempty"`
	Version           int           `gorm:"not null;default:1" json:"version"`
}

// Type is the policy tag of the request: the kind, qualified by the
// category for leave.
func (r *Request) Type() string {
	if r.Kind == KindLeave && r.Category != "" {
		return string(r.Kind) + ":" + r.Category
	}
	return string(r.Kind)
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.CurrentLevel != nil {
		level := *r.CurrentLevel
		c.CurrentLevel = &level
	}
	if r.CurrentApproverID != nil {
		id := *r.CurrentApproverID
		c.CurrentApproverID = &id
	}
	if r.RejectionReason != nil {
		reason := *r.RejectionReason
		c.RejectionReason = &reason
	}
	if r.DecidedByID != nil {
		id := *r.DecidedByID
		c.DecidedByID = &id
	}
	if r.DecidedAt != nil {
		at := *r.DecidedAt
		c.DecidedAt = &at
	}
	return &c
}
