package message

import (
	"context"
	"errors"

	"dealroom/internal/common"
	"dealroom/internal/dbmysql"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, msg *dbmysql.Message) error
	ByID(ctx context.Context, id string) (*dbmysql.Message, error)
	ByNegotiation(ctx context.Context, negotiationID string) ([]*dbmysql.Message, error)
	Last(ctx context.Context, negotiationID string) (*dbmysql.Message, error)
	UnreadCount(ctx context.Context, negotiationID, userID string) (int64, error)
	// UpdateStatusIf advances the delivery state only when the stored
	// status still matches from; returns the number of rows changed.
	UpdateStatusIf(ctx context.Context, id string, from, to common.MessageStatus) (int64, error)
	Delete(ctx context.Context, id string) error
}

type messageRepo struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, msg *dbmysql.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepo) ByID(ctx context.Context, id string) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) ByNegotiation(ctx context.Context, negotiationID string) ([]*dbmysql.Message, error) {
	var messages []*dbmysql.Message
	err := r.db.WithContext(ctx).
		Where("negotiation_id = ?", negotiationID).
		Order("created_at ASC, seq ASC").
		Find(&messages).Error
	return messages, err
}

func (r *messageRepo) Last(ctx context.Context, negotiationID string) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	err := r.db.WithContext(ctx).
		Where("negotiation_id = ?", negotiationID).
		Order("created_at DESC, seq DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) UnreadCount(ctx context.Context, negotiationID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&dbmysql.Message{}).
		Where("negotiation_id = ? AND user_id <> ? AND status IN ?",
			negotiationID, userID,
			[]common.MessageStatus{common.MessageSent, common.MessageDelivered}).
		Count(&count).Error
	return count, err
}

func (r *messageRepo) UpdateStatusIf(ctx context.Context, id string, from, to common.MessageStatus) (int64, error) {
	res := r.db.WithContext(ctx).Model(&dbmysql.Message{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected, res.Error
}

func (r *messageRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&dbmysql.Message{}).Error
}
