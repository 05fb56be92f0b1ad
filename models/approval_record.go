package models

import (
	"time"
)

type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordApproved RecordStatus = "approved"
	RecordRejected RecordStatus = "rejected"
	// RecordCancelled closes the current level of a request withdrawn by
	// its requester.
	RecordCancelled RecordStatus = "cancelled"
)

// ApprovalRecord is one level of a request's approval chain.
type ApprovalRecord struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	RequestID    uint         `gorm:"not null;uniqueIndex:idx_record_request_level" json:"request_id"`
	Level        int          `gorm:"not null;uniqueIndex:idx_record_request_level" json:"level"`
	ApproverID   *uint        `gorm:"index" json:"approver_id,omitempty"`
	ApproverName string       `gorm:"size:200" json:"approver_name"`
	Status       RecordStatus `gorm:"not null;size:20" json:"status"`
	DecidedAt    *time.Time   `json:"decided_at,omitempty"`
	Comment      *string      `gorm:"size:500" json:"comment,omitempty"`
}

func (a *ApprovalRecord) AssignedTo(userID uint) bool {
	return a.ApproverID != nil && *a.ApproverID == userID
}

func (a *ApprovalRecord) Clone() *ApprovalRecord {
	if a == nil {
		return nil
	}
	c := *a
	if a.ApproverID != nil {
		id := *a.ApproverID
		c.ApproverID = &id
	}
	if a.DecidedAt != nil {
		at := *a.DecidedAt
		c.DecidedAt = &at
	}
	if a.Comment != nil {
		comment := *a.Comment
		c.Comment = &comment
	}
	return &c
}
