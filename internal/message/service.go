package message

import (
	"context"
	"errors"
	"log/slog"

	"dealroom/internal/common"
	"dealroom/internal/dbmysql"
	"dealroom/internal/notif"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// NegotiationFinder is the slice of the negotiation store this
// sub-engine needs: ownership and state checks on the parent record.
type NegotiationFinder interface {
	ByID(ctx context.Context, id string) (*dbmysql.Negotiation, error)
}

type SendDTO struct {
	NegotiationID string   `json:"negotiationId" validate:"required"`
	Content       string   `json:"content" validate:"required"`
	OfferPrice    *float64 `json:"offerPrice,omitempty" validate:"omitempty,gt=0"`
}

// Service owns the message delivery-state machine. Statuses move only
// forward along sent -> delivered -> read.
type Service interface {
	Send(ctx context.Context, dto SendDTO, principal common.Principal) (*dbmysql.Message, error)
	CreateUser(ctx context.Context, n *dbmysql.Negotiation, content string, offerPrice *float64, authorID string) (*dbmysql.Message, error)
	MarkDelivered(ctx context.Context, id string) (*dbmysql.Message, error)
	MarkRead(ctx context.Context, id string, principal common.Principal) (*dbmysql.Message, error)
	UnreadCount(ctx context.Context, negotiationID, userID string) (int64, error)
	SystemMessage(ctx context.Context, n *dbmysql.Negotiation, content, receiverID string) (*dbmysql.Message, error)
	History(ctx context.Context, negotiationID string) ([]*dbmysql.Message, error)
	Last(ctx context.Context, negotiationID string) (*dbmysql.Message, error)
	Delete(ctx context.Context, id string, principal common.Principal) error
}

type service struct {
	repo         Repository
	negotiations NegotiationFinder
	hub          common.Hub
	notifier     common.Notifier
	directory    common.Directory
	validate     *validator.Validate
	log          *slog.Logger
}

func NewService(
	repo Repository,
	negotiations NegotiationFinder,
	hub common.Hub,
	notifier common.Notifier,
	directory common.Directory,
	log *slog.Logger,
) Service {
	return &service{
		repo:         repo,
		negotiations: negotiations,
		hub:          hub,
		notifier:     notifier,
		directory:    directory,
		validate:     validator.New(),
		log:          log,
	}
}

func (s *service) Send(ctx context.Context, dto SendDTO, principal common.Principal) (*dbmysql.Message, error) {
	if err := s.validate.Struct(dto); err != nil {
		return nil, common.Validation("invalid message: %v", err)
	}

	nego, err := s.findNegotiation(ctx, dto.NegotiationID)
	if err != nil {
		return nil, err
	}
	if !nego.IsParticipant(principal.ID) {
		return nil, common.Authorization("user %s is not a participant of negotiation %s", principal.ID, nego.ID)
	}
	if nego.Status != common.NegotiationOngoing {
		return nil, common.Conflict("negotiation %s is %s", nego.ID, nego.Status)
	}

	msg, err := s.CreateUser(ctx, nego, dto.Content, dto.OfferPrice, principal.ID)
	if err != nil {
		return nil, err
	}
	s.emailNewMessage(ctx, msg)

	return msg, nil
}

// CreateUser records a bargaining or chat turn and publishes it to the
// negotiation and personal rooms. Callers that want the new-message
// email go through Send; the engine's own turns (opening offer,
// counter-offer) carry their own domain emails.
func (s *service) CreateUser(ctx context.Context, n *dbmysql.Negotiation, content string, offerPrice *float64, authorID string) (*dbmysql.Message, error) {
	msg := &dbmysql.Message{
		ID:            ulid.Make().String(),
		NegotiationID: n.ID,
		UserID:        authorID,
		ReceiverID:    n.Counterpart(authorID),
		OrderID:       n.OrderID,
		Content:       content,
		OfferPrice:    offerPrice,
		MessageType:   common.MessageUser,
		Status:        common.MessageSent,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.hub.Publish(common.NegotiationRoom(n.ID), common.EventMessageSent, msg)
	s.hub.Publish(common.UserRoom(msg.ReceiverID), common.EventMessageSent, msg)

	return msg, nil
}

// MarkDelivered advances sent -> delivered. Calling it on a delivered
// or read message is a no-op returning the stored record.
func (s *service) MarkDelivered(ctx context.Context, id string) (*dbmysql.Message, error) {
	msg, err := s.findMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.Status != common.MessageSent {
		return msg, nil
	}

	if _, err := s.repo.UpdateStatusIf(ctx, id, common.MessageSent, common.MessageDelivered); err != nil {
		return nil, err
	}
	msg, err = s.findMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	s.hub.Publish(common.NegotiationRoom(msg.NegotiationID), common.EventMessageStatusUpdated, msg)
	return msg, nil
}

// MarkRead advances to read. Authorization runs against the owning
// negotiation's participants, so either party may read a system
// message. The author of a message may never mark it read; reading an
// already-read message returns it unchanged.
func (s *service) MarkRead(ctx context.Context, id string, principal common.Principal) (*dbmysql.Message, error) {
	msg, err := s.findMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	nego, err := s.findNegotiation(ctx, msg.NegotiationID)
	if err != nil {
		return nil, err
	}
	if !nego.IsParticipant(principal.ID) {
		return nil, common.Authorization("user %s is not a participant of negotiation %s", principal.ID, nego.ID)
	}
	if msg.UserID == principal.ID {
		return nil, common.InvalidOperation("cannot mark own message as read")
	}
	if msg.Status == common.MessageRead {
		return msg, nil
	}

	if _, err := s.repo.UpdateStatusIf(ctx, id, msg.Status, common.MessageRead); err != nil {
		return nil, err
	}
	msg, err = s.findMessage(ctx, id)
	if err != nil {
		return nil, err
	}

	s.hub.Publish(common.NegotiationRoom(msg.NegotiationID), common.EventMessageStatusUpdated, msg)
	return msg, nil
}

func (s *service) UnreadCount(ctx context.Context, negotiationID, userID string) (int64, error) {
	return s.repo.UnreadCount(ctx, negotiationID, userID)
}

// SystemMessage records an engine announcement. System messages are
// considered instantly delivered.
func (s *service) SystemMessage(ctx context.Context, n *dbmysql.Negotiation, content, receiverID string) (*dbmysql.Message, error) {
	msg := &dbmysql.Message{
		ID:            ulid.Make().String(),
		NegotiationID: n.ID,
		UserID:        common.SystemUserID,
		ReceiverID:    receiverID,
		OrderID:       n.OrderID,
		Content:       content,
		MessageType:   common.MessageSystem,
		Status:        common.MessageSent,
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateStatusIf(ctx, msg.ID, common.MessageSent, common.MessageDelivered); err != nil {
		return nil, err
	}
	msg.Status = common.MessageDelivered

	s.hub.Publish(common.NegotiationRoom(n.ID), common.EventSystemMessage, msg)
	return msg, nil
}

func (s *service) History(ctx context.Context, negotiationID string) ([]*dbmysql.Message, error) {
	return s.repo.ByNegotiation(ctx, negotiationID)
}

func (s *service) Last(ctx context.Context, negotiationID string) (*dbmysql.Message, error) {
	return s.repo.Last(ctx, negotiationID)
}

// Delete hard-removes one message. Administrative use only.
func (s *service) Delete(ctx context.Context, id string, principal common.Principal) error {
	msg, err := s.findMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.UserID != principal.ID && msg.ReceiverID != principal.ID {
		return common.Authorization("user %s is not a participant of message %s", principal.ID, id)
	}
	return s.repo.Delete(ctx, id)
}

func (s *service) findMessage(ctx context.Context, id string) (*dbmysql.Message, error) {
	msg, err := s.repo.ByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("message %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *service) findNegotiation(ctx context.Context, id string) (*dbmysql.Negotiation, error) {
	nego, err := s.negotiations.ByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("negotiation %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return nego, nil
}

// emailNewMessage is best effort: a missing recipient or mail outage
// never fails the send.
func (s *service) emailNewMessage(ctx context.Context, msg *dbmysql.Message) {
	receiver, err := s.directory.FindUser(ctx, msg.ReceiverID)
	if err != nil {
		s.log.Warn("skipping message email, recipient lookup failed",
			"receiver", msg.ReceiverID, "error", err)
		return
	}
	sender, err := s.directory.FindUser(ctx, msg.UserID)
	if err != nil {
		s.log.Warn("skipping message email, sender lookup failed",
			"sender", msg.UserID, "error", err)
		return
	}

	preview := msg.Content
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}

	s.notifier.NotifyAsync(common.EmailEvent{
		To:       receiver.Email,
		Subject:  "New message from " + sender.Name,
		Template: notif.TemplateNewMessage,
		Context: map[string]interface{}{
			"Name":        receiver.Name,
			"Counterpart": sender.Name,
			"Preview":     preview,
		},
	})
}
