package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"leaveflow/apperr"
	"leaveflow/models"
	"leaveflow/workflow"
)

// RequestRepository persists requests and their approval records.
// Commit is a compare-and-set on the request's version.
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *models.Request, records []*models.ApprovalRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		for _, record := range records {
			record.RequestID = req.ID
		}
		return tx.Create(&records).Error
	})
}

func (r *RequestRepository) Load(ctx context.Context, id uint) (*models.Request, []*models.ApprovalRecord, error) {
	db := r.db.WithContext(ctx)
	var req models.Request
	if err := db.First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperr.NotFound("request", id)
		}
		return nil, nil, err
	}
	var records []*models.ApprovalRecord
	if err := db.Where("request_id = ?", id).Order("level asc").Find(&records).Error; err != nil {
		return nil, nil, err
	}
	return &req, records, nil
}

func (r *RequestRepository) Commit(ctx context.Context, t *workflow.Transition) error {
	next := t.Request
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Request{}).
			Where("id = ? AND version = ? AND status = ?", next.ID, t.ExpectedVersion, models.StatusPending).
			Updates(map[string]any{
				"status":              next.Status,
				"current_level":       orNull(next.CurrentLevel),
				"current_approver_id": orNull(next.CurrentApproverID),
				"rejection_reason":    orNull(next.RejectionReason),
				"decided_by_id":       orNull(next.DecidedByID),
				"decided_by_name":     next.DecidedByName,
				"decided_by_system":   next.DecidedBySystem,
				"decided_at":          orNull(next.DecidedAt),
				"version":             next.Version,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return workflow.ErrStale
		}
		if t.Record == nil {
			return nil
		}
		record := t.Record
		result = tx.Model(&models.ApprovalRecord{}).
			Where("request_id = ? AND level = ? AND status = ?", next.ID, record.Level, models.RecordPending).
			Updates(map[string]any{
				"status":        record.Status,
				"decided_at":    orNull(record.DecidedAt),
				"comment":       orNull(record.Comment),
				"approver_id":   orNull(record.ApproverID),
				"approver_name": record.ApproverName,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return workflow.ErrStale
		}
		return nil
	})
}

func (r *RequestRepository) ListByRequester(ctx context.Context, requesterID uint) ([]models.Request, error) {
	var requests []models.Request
	err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("created_at desc").
		Limit(100).
		Find(&requests).Error
	if err != nil {
		return nil, apperr.Dependency(err, "list requests")
	}
	return requests, nil
}

// PendingForApprover returns the pending requests currently waiting on
// approverID.
func (r *RequestRepository) PendingForApprover(ctx context.Context, approverID uint) ([]models.Request, error) {
	var requests []models.Request
	err := r.db.WithContext(ctx).
		Where("status = ? AND current_approver_id = ?", models.StatusPending, approverID).
		Order("created_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, apperr.Dependency(err, "list pending approvals")
	}
	return requests, nil
}

// ListUnsettled returns approved leave requests of the given categories
// that have no balance entry yet.
func (r *RequestRepository) ListUnsettled(ctx context.Context, categories []string, limit int) ([]models.Request, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	var requests []models.Request
	err := r.db.WithContext(ctx).
		Where("status = ? AND kind = ? AND category IN ?", models.StatusApproved, models.KindLeave, categories).
		Where("NOT EXISTS (SELECT 1 FROM balance_entries WHERE balance_entries.request_id = requests.id)").
		Order("id asc").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, apperr.Dependency(err, "list unsettled requests")
	}
	return requests, nil
}

func orNull[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
