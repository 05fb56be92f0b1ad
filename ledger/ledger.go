// Package ledger charges approved leave against the requester's balance.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"leaveflow/apperr"
	"leaveflow/models"
)

type Ledger struct {
	db  *gorm.DB
	log zerolog.Logger
}

func New(db *gorm.DB, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, log: log}
}

// ApplyApprovalEffect charges days to the owner's balance for category.
// It is idempotent on requestID: a second call for the same request leaves
// the balance untouched and reports applied=false.
func (l *Ledger) ApplyApprovalEffect(ctx context.Context, requestID, ownerID uint, category string, days float64) (*models.Balance, bool, error) {
	if days <= 0 {
		return nil, false, apperr.Validation("days", "must be positive")
	}
	var balance models.Balance
	applied := false
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := models.BalanceEntry{
			RequestID: requestID,
			OwnerID:   ownerID,
			Category:  category,
			Amount:    days,
		}
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoNothing: true,
		}).Create(&entry)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 1 {
			update := tx.Model(&models.Balance{}).
				Where("owner_id = ? AND category = ?", ownerID, category).
				Update("used", gorm.Expr("used + ?", days))
			if update.Error != nil {
				return update.Error
			}
			if update.RowsAffected == 0 {
				return apperr.NotFound("balance", fmt.Sprintf("%d/%s", ownerID, category))
			}
			applied = true
		}
		return tx.Where("owner_id = ? AND category = ?", ownerID, category).First(&balance).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperr.NotFound("balance", fmt.Sprintf("%d/%s", ownerID, category))
		}
		if apperr.KindOf(err) != "" {
			return nil, false, err
		}
		return nil, false, apperr.Dependency(err, "apply balance change")
	}
	if applied {
		l.log.Info().
			Uint("request_id", requestID).
			Uint("owner_id", ownerID).
			Str("category", category).
			Float64("days", days).
			Float64("used", balance.Used).
			Msg("balance charged")
	} else {
		l.log.Debug().Uint("request_id", requestID).Msg("balance already charged for request")
	}
	return &balance, applied, nil
}

func (l *Ledger) Balance(ctx context.Context, ownerID uint, category string) (*models.Balance, error) {
	var balance models.Balance
	err := l.db.WithContext(ctx).Where("owner_id = ? AND category = ?", ownerID, category).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("balance", fmt.Sprintf("%d/%s", ownerID, category))
	}
	if err != nil {
		return nil, apperr.Dependency(err, "load balance")
	}
	return &balance, nil
}

func (l *Ledger) Balances(ctx context.Context, ownerID uint) ([]models.Balance, error) {
	var balances []models.Balance
	if err := l.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("category").Find(&balances).Error; err != nil {
		return nil, apperr.Dependency(err, "list balances")
	}
	return balances, nil
}

// SetEntitlement sets the total quota for owner and category, creating the
// balance when missing. Used is left untouched.
func (l *Ledger) SetEntitlement(ctx context.Context, ownerID uint, category string, total float64) (*models.Balance, error) {
	if total < 0 {
		return nil, apperr.Validation("total", "must not be negative")
	}
	if category == "" {
		return nil, apperr.Validation("category", "is required")
	}
	balance := models.Balance{OwnerID: ownerID, Category: category, Total: total}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"total", "updated_at"}),
	}).Create(&balance).Error
	if err != nil {
		return nil, apperr.Dependency(err, "set entitlement")
	}
	return l.Balance(ctx, ownerID, category)
}

// Applied reports whether requestID has already been charged.
func (l *Ledger) Applied(ctx context.Context, requestID uint) (bool, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.BalanceEntry{}).Where("request_id = ?", requestID).Count(&count).Error; err != nil {
		return false, apperr.Dependency(err, "check balance entry")
	}
	return count > 0, nil
}
