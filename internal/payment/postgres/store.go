package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frahmantamala/credit-payments/internal/core/datamodel/account"
	"github.com/frahmantamala/credit-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/credit-payments/internal/payment"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

var (
	_ paymentpkg.Store       = (*Store)(nil)
	_ paymentpkg.ReviewStore = (*Store)(nil)
)

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db: db,
	}
}

func (s *Store) FindByTxnID(ctx context.Context, txnID string) (*payment.Transaction, error) {
	var txn payment.Transaction
	err := s.db.WithContext(ctx).Where("txn_id = ?", txnID).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, paymentpkg.ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// CreatePending inserts a checkout transaction and makes sure its owner has an account row.
func (s *Store) CreatePending(ctx context.Context, txn *payment.Transaction) error {
	if txn.Status != payment.StatusPending {
		return fmt.Errorf("transaction %s must be created pending, got %s", txn.TxnID, txn.Status)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return ensureAccount(tx, txn.UserID, txn.CreatedAt)
	})
}

// ApplyTransition is a compare-and-swap on status: the row is updated only while it is
// still pending, and the grant commits in the same transaction as the status change.
func (s *Store) ApplyTransition(ctx context.Context, t paymentpkg.Transition) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":              t.Status,
			"raw_gateway_payload": t.Payload,
			"processed_at":        t.ProcessedAt,
			"updated_at":          t.ProcessedAt,
		}
		if t.GatewayReference != "" {
			updates["gateway_reference"] = t.GatewayReference
		}

		res := tx.Model(&payment.Transaction{}).
			Where("txn_id = ? AND status = ?", t.TxnID, payment.StatusPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update transaction status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if t.Grant != nil {
			if err := grantCredits(tx, t.TxnID, *t.Grant, t.ProcessedAt); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func grantCredits(tx *gorm.DB, txnID string, g paymentpkg.Grant, now time.Time) error {
	if err := ensureAccount(tx, g.UserID, now); err != nil {
		return err
	}

	res := tx.Model(&account.Account{}).
		Where("user_id = ?", g.UserID).
		Updates(map[string]interface{}{
			"credits":    gorm.Expr("credits + ?", g.Credits),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("add credits: %w", res.Error)
	}

	grant := &account.CreditGrant{
		TxnID:     txnID,
		UserID:    g.UserID,
		PlanName:  g.PlanName,
		Credits:   g.Credits,
		CreatedAt: now,
	}
	if err := tx.Create(grant).Error; err != nil {
		return fmt.Errorf("record credit grant: %w", err)
	}
	return nil
}

func ensureAccount(tx *gorm.DB, userID string, now time.Time) error {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	acc := &account.Account{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(acc).Error
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}
	return nil
}

// FlagForReview records a contradiction once; repeats of the same one are absorbed.
func (s *Store) FlagForReview(ctx context.Context, review *payment.ReconciliationReview) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(review).Error
}

// ListPending returns transactions still waiting for a gateway confirmation, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]payment.Transaction, error) {
	var txns []payment.Transaction
	err := s.db.WithContext(ctx).
		Where("status = ?", payment.StatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (s *Store) ListOpenReviews(ctx context.Context, limit int) ([]payment.ReconciliationReview, error) {
	var reviews []payment.ReconciliationReview
	err := s.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&reviews).Error
	return reviews, err
}

func (s *Store) ResolveReview(ctx context.Context, id int64, resolvedBy, resolution string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&payment.ReconciliationReview{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{
			"resolved_at": at,
			"resolved_by": resolvedBy,
			"resolution":  resolution,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return paymentpkg.ErrReviewNotFound
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	var acc account.Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&acc).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Store) CountGrants(ctx context.Context, txnID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&account.CreditGrant{}).Where("txn_id = ?", txnID).Count(&n).Error
	return n, err
}
