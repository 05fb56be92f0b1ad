package workflow

import (
	"strings"
	"time"

	"leaveflow/apperr"
	"leaveflow/models"
)

// Payload is the kind-specific part of a submitted request. It is
// implemented by LeavePayload and OvertimePayload only.
type Payload interface {
	Kind() models.RequestKind
	build(requesterID uint) (*models.Request, error)
}

type LeavePayload struct {
	Category   string
	Start      time.Time
	End        time.Time
	Hours      float64
	Reason     string
	Attachment string
}

func (p LeavePayload) Kind() models.RequestKind { return models.KindLeave }

func (p LeavePayload) build(requesterID uint) (*models.Request, error) {
	if strings.TrimSpace(p.Category) == "" {
		return nil, apperr.Validation("category", "is required")
	}
	if p.Start.IsZero() {
		return nil, apperr.Validation("start", "is required")
	}
	if p.End.IsZero() {
		return nil, apperr.Validation("end", "is required")
	}
	if p.End.Before(p.Start) {
		return nil, apperr.Validation("end", "must not be before start")
	}
	if p.Hours <= 0 {
		return nil, apperr.Validation("hours", "must be positive")
	}
	return &models.Request{
		RequesterID:   requesterID,
		Kind:          models.KindLeave,
		Category:      strings.ToLower(strings.TrimSpace(p.Category)),
		Start:         p.Start,
		End:           p.End,
		QuantityHours: p.Hours,
		Reason:        strings.TrimSpace(p.Reason),
		AttachmentRef: p.Attachment,
	}, nil
}

// OvertimePayload covers a time range within a single day.
type OvertimePayload struct {
	Start      time.Time
	End        time.Time
	Hours      float64
	Reason     string
	Attachment string
}

func (p OvertimePayload) Kind() models.RequestKind { return models.KindOvertime }

func (p OvertimePayload) build(requesterID uint) (*models.Request, error) {
	if p.Start.IsZero() {
		return nil, apperr.Validation("start", "is required")
	}
	if !p.End.After(p.Start) {
		return nil, apperr.Validation("end", "must be after start")
	}
	sy, sm, sd := p.Start.Date()
	ey, em, ed := p.End.Date()
	if sy != ey || sm != em || sd != ed {
		return nil, apperr.Validation("end", "must be on the same day as start")
	}
	if p.Hours <= 0 || p.Hours > 24 {
		return nil, apperr.Validation("hours", "must be between 0 and 24")
	}
	return &models.Request{
		RequesterID:   requesterID,
		Kind:          models.KindOvertime,
		Start:         p.Start,
		End:           p.End,
		QuantityHours: p.Hours,
		Reason:        strings.TrimSpace(p.Reason),
		AttachmentRef: p.Attachment,
	}, nil
}
