package negotiation

import (
	"context"
	"fmt"

	"dealroom/internal/common"
	"dealroom/internal/dbmysql"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Filter struct {
	ProfileID string
	Type      common.NegotiationType
	Status    common.NegotiationStatus
	Page      int
	Limit     int
}

type Repository interface {
	// Create persists the negotiation and, when opening is non-nil, its
	// first message in one transaction. Returns gorm.ErrDuplicatedKey
	// when another ongoing negotiation already holds the same
	// (sender, receiver, type, order) tuple.
	Create(ctx context.Context, n *dbmysql.Negotiation, opening *dbmysql.Message) error
	ByID(ctx context.Context, id string) (*dbmysql.Negotiation, error)
	ExistsOngoing(ctx context.Context, senderID, receiverID string, t common.NegotiationType, orderID string) (bool, error)
	// UpdateStatusIf performs the conditional transition that keeps the
	// state machine safe under concurrency: the update applies only when
	// the stored status still matches from. Zero rows affected means the
	// precondition no longer holds.
	UpdateStatusIf(ctx context.Context, id string, from, to common.NegotiationStatus) (int64, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]*dbmysql.Negotiation, int64, error)
	// CascadeCancel atomically cancels every other ongoing negotiation
	// referencing the truck and records a system message on each.
	CascadeCancel(ctx context.Context, truckID, excludeID, announcement string) ([]*dbmysql.Negotiation, error)
}

type negotiationRepo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &negotiationRepo{db: db}
}

func (r *negotiationRepo) Create(ctx context.Context, n *dbmysql.Negotiation, opening *dbmysql.Message) error {
	if n.Status == common.NegotiationOngoing {
		key := activeKey(n)
		n.ActiveKey = &key
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(n).Error; err != nil {
			return err
		}
		if opening != nil {
			return tx.Create(opening).Error
		}
		return nil
	})
}

func activeKey(n *dbmysql.Negotiation) string {
	return fmt.Sprintf("%s|%s|%s|%s", n.SenderID, n.ReceiverID, n.Type, n.OrderID)
}

func (r *negotiationRepo) ByID(ctx context.Context, id string) (*dbmysql.Negotiation, error) {
	var n dbmysql.Negotiation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *negotiationRepo) ExistsOngoing(ctx context.Context, senderID, receiverID string, t common.NegotiationType, orderID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&dbmysql.Negotiation{}).
		Where("sender_id = ? AND receiver_id = ? AND type = ? AND order_id = ? AND status = ?",
			senderID, receiverID, t, orderID, common.NegotiationOngoing).
		Count(&count).Error
	return count > 0, err
}

func (r *negotiationRepo) UpdateStatusIf(ctx context.Context, id string, from, to common.NegotiationStatus) (int64, error) {
	updates := map[string]interface{}{"status": to}
	if to.Terminal() {
		// Release the uniqueness slot so the tuple can negotiate again.
		updates["active_key"] = nil
	}
	res := r.db.WithContext(ctx).Model(&dbmysql.Negotiation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *negotiationRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&dbmysql.Negotiation{}).Error
}

func (r *negotiationRepo) List(ctx context.Context, f Filter) ([]*dbmysql.Negotiation, int64, error) {
	q := r.db.WithContext(ctx).Model(&dbmysql.Negotiation{})
	if f.ProfileID != "" {
		q = q.Where("sender_id = ? OR receiver_id = ?", f.ProfileID, f.ProfileID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}

	var items []*dbmysql.Negotiation
	err := q.Order("updated_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&items).Error
	return items, total, err
}

func (r *negotiationRepo) CascadeCancel(ctx context.Context, truckID, excludeID, announcement string) ([]*dbmysql.Negotiation, error) {
	var losers []*dbmysql.Negotiation

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("truck_id = ? AND id <> ? AND status = ?",
				truckID, excludeID, common.NegotiationOngoing).
			Find(&losers).Error; err != nil {
			return err
		}

		for _, n := range losers {
			if err := tx.Model(&dbmysql.Negotiation{}).
				Where("id = ?", n.ID).
				Updates(map[string]interface{}{
					"status":     common.NegotiationCancelled,
					"active_key": nil,
				}).Error; err != nil {
				return err
			}
			n.Status = common.NegotiationCancelled
			n.ActiveKey = nil

			msg := &dbmysql.Message{
				ID:            ulid.Make().String(),
				NegotiationID: n.ID,
				UserID:        common.SystemUserID,
				ReceiverID:    n.SenderID,
				OrderID:       n.OrderID,
				Content:       announcement,
				MessageType:   common.MessageSystem,
				Status:        common.MessageDelivered,
			}
			if err := tx.Create(msg).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return losers, nil
}
