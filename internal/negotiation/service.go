package negotiation

import (
	"context"
	"errors"
	"log/slog"

	"dealroom/internal/common"
	"dealroom/internal/dbmysql"
	"dealroom/internal/message"
	"dealroom/internal/notif"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// CascadeAnnouncement is the system message recorded on every
// negotiation the truck-contention cascade cancels.
const CascadeAnnouncement = "This negotiation was automatically cancelled because another offer was accepted."

type CreateDTO struct {
	ReceiverID string                 `json:"receiverId" validate:"required"`
	Type       common.NegotiationType `json:"type" validate:"required,oneof=product truck"`
	OrderID    string                 `json:"orderId" validate:"required"`
	OfferPrice *float64               `json:"offerPrice,omitempty" validate:"omitempty,gt=0"`
	Content    string                 `json:"content,omitempty"`
}

type Detail struct {
	Negotiation *dbmysql.Negotiation `json:"negotiation"`
	Messages    []*dbmysql.Message   `json:"messages"`
	LastMessage *dbmysql.Message     `json:"lastMessage,omitempty"`
}

type ListItem struct {
	Negotiation *dbmysql.Negotiation `json:"negotiation"`
	LastMessage *dbmysql.Message     `json:"lastMessage,omitempty"`
	UnreadCount int64                `json:"unreadCount"`
}

type ListResult struct {
	Items []ListItem `json:"items"`
	Total int64      `json:"total"`
}

// CloseResult pairs the negotiation with its order after accept/cancel.
type CloseResult struct {
	Negotiation *dbmysql.Negotiation `json:"negotiation"`
	Order       *common.Order        `json:"order,omitempty"`
}

// Service owns the negotiation state machine:
//
//	create -> ongoing -> accept  -> completed (terminal)
//	          ongoing -> reject  -> ongoing   (counter-offer, self loop)
//	          ongoing -> cancel  -> cancelled (terminal)
//	          ongoing -> cascade -> cancelled (terminal, system)
type Service interface {
	Create(ctx context.Context, dto CreateDTO, principal common.Principal) (*dbmysql.Negotiation, error)
	Accept(ctx context.Context, id string, principal common.Principal) (*CloseResult, error)
	Reject(ctx context.Context, id string, offerPrice float64, principal common.Principal) (*dbmysql.Message, error)
	Cancel(ctx context.Context, id string, principal common.Principal) (*CloseResult, error)
	Delete(ctx context.Context, id string, principal common.Principal) error
	GetDetail(ctx context.Context, id string, principal common.Principal) (*Detail, error)
	List(ctx context.Context, f Filter) (*ListResult, error)
}

type service struct {
	repo      Repository
	messages  message.Service
	directory common.Directory
	hub       common.Hub
	notifier  common.Notifier
	validate  *validator.Validate
	log       *slog.Logger
}

func NewService(
	repo Repository,
	messages message.Service,
	directory common.Directory,
	hub common.Hub,
	notifier common.Notifier,
	log *slog.Logger,
) Service {
	return &service{
		repo:      repo,
		messages:  messages,
		directory: directory,
		hub:       hub,
		notifier:  notifier,
		validate:  validator.New(),
		log:       log,
	}
}

// Create opens a negotiation. Only buyers may initiate one, and at most
// one ongoing negotiation may exist per (sender, receiver, type, order)
// tuple.
func (s *service) Create(ctx context.Context, dto CreateDTO, principal common.Principal) (*dbmysql.Negotiation, error) {
	if principal.Role != common.RoleBuyer {
		return nil, common.Authorization("only buyers may open a negotiation")
	}
	if err := s.validate.Struct(dto); err != nil {
		return nil, common.Validation("invalid negotiation: %v", err)
	}
	if dto.ReceiverID == principal.ID {
		return nil, common.Validation("cannot negotiate with yourself")
	}

	exists, err := s.repo.ExistsOngoing(ctx, principal.ID, dto.ReceiverID, dto.Type, dto.OrderID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, common.Conflict("an ongoing negotiation already exists for order %s", dto.OrderID)
	}

	order, err := s.directory.FindOrder(ctx, dto.OrderID)
	if err != nil {
		return nil, err
	}

	// Truck id is captured once here so the cascade never needs the
	// Order join again.
	truckID := ""
	if dto.Type == common.NegotiationTruck {
		if order.TruckID == "" {
			return nil, common.Validation("order %s does not reference a truck", dto.OrderID)
		}
		truckID = order.TruckID
	}

	nego := &dbmysql.Negotiation{
		ID:         uuid.NewString(),
		SenderID:   principal.ID,
		ReceiverID: dto.ReceiverID,
		Type:       dto.Type,
		OrderID:    dto.OrderID,
		TruckID:    truckID,
		Status:     common.NegotiationOngoing,
	}
	// The opening offer commits with the negotiation or not at all; a
	// failed first message must not leave an ongoing row behind.
	var opening *dbmysql.Message
	if dto.OfferPrice != nil {
		content := dto.Content
		if content == "" {
			content = "Opening offer"
		}
		opening = &dbmysql.Message{
			ID:            ulid.Make().String(),
			NegotiationID: nego.ID,
			UserID:        principal.ID,
			ReceiverID:    dto.ReceiverID,
			OrderID:       dto.OrderID,
			Content:       content,
			OfferPrice:    dto.OfferPrice,
			MessageType:   common.MessageUser,
			Status:        common.MessageSent,
		}
	}

	if err := s.repo.Create(ctx, nego, opening); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, common.Conflict("an ongoing negotiation already exists for order %s", dto.OrderID)
		}
		return nil, err
	}

	if opening != nil {
		s.hub.Publish(common.NegotiationRoom(nego.ID), common.EventMessageSent, opening)
		s.hub.Publish(common.UserRoom(opening.ReceiverID), common.EventMessageSent, opening)
	}

	s.email(ctx, dto.ReceiverID, principal.ID, "New negotiation on your order",
		notif.TemplateNegotiationCreated, map[string]interface{}{
			"OrderID":    nego.OrderID,
			"OfferPrice": dto.OfferPrice,
		})

	return nego, nil
}

// Accept completes the negotiation. For truck negotiations the
// contention cascade runs synchronously before returning.
func (s *service) Accept(ctx context.Context, id string, principal common.Principal) (*CloseResult, error) {
	nego, err := s.authorize(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	if nego.Status != common.NegotiationOngoing {
		return nil, common.Conflict("negotiation %s is already %s", id, nego.Status)
	}

	rows, err := s.repo.UpdateStatusIf(ctx, id, common.NegotiationOngoing, common.NegotiationCompleted)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Lost the race to another transition.
		return nil, common.Conflict("negotiation %s is no longer ongoing", id)
	}
	nego.Status = common.NegotiationCompleted

	if nego.Type == common.NegotiationTruck {
		s.cascade(ctx, nego)
	}

	if _, err := s.messages.SystemMessage(ctx, nego,
		"Negotiation accepted. The deal is now binding.",
		nego.Counterpart(principal.ID)); err != nil {
		s.log.Error("failed to record acceptance message", "negotiation", id, "error", err)
	}

	s.hub.Publish(common.NegotiationRoom(id), common.EventNegotiationAccepted, nego)

	for _, participant := range []string{nego.SenderID, nego.ReceiverID} {
		s.email(ctx, participant, nego.Counterpart(participant), "Negotiation accepted",
			notif.TemplateNegotiationAccepted, map[string]interface{}{
				"OrderID": nego.OrderID,
			})
	}

	order := s.findOrderQuiet(ctx, nego.OrderID)
	return &CloseResult{Negotiation: nego, Order: order}, nil
}

// Reject is a counter-offer, not a terminal rejection: the negotiation
// stays ongoing and a new priced message goes to the other participant.
func (s *service) Reject(ctx context.Context, id string, offerPrice float64, principal common.Principal) (*dbmysql.Message, error) {
	if offerPrice <= 0 {
		return nil, common.Validation("counter offer price must be positive")
	}

	nego, err := s.authorize(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	if nego.Status != common.NegotiationOngoing {
		return nil, common.Conflict("negotiation %s is already %s", id, nego.Status)
	}

	msg, err := s.messages.CreateUser(ctx, nego, "Counter offer", &offerPrice, principal.ID)
	if err != nil {
		return nil, err
	}

	s.hub.Publish(common.NegotiationRoom(id), common.EventNegotiationRejected, msg)

	s.email(ctx, nego.Counterpart(principal.ID), principal.ID, "Counter offer received",
		notif.TemplateCounterOffer, map[string]interface{}{
			"OrderID":    nego.OrderID,
			"OfferPrice": offerPrice,
		})

	return msg, nil
}

// Cancel terminates the negotiation with no commercial consequence for
// the counterpart's other deals.
func (s *service) Cancel(ctx context.Context, id string, principal common.Principal) (*CloseResult, error) {
	nego, err := s.authorize(ctx, id, principal)
	if err != nil {
		return nil, err
	}
	if nego.Status != common.NegotiationOngoing {
		return nil, common.Conflict("negotiation %s is already %s", id, nego.Status)
	}

	rows, err := s.repo.UpdateStatusIf(ctx, id, common.NegotiationOngoing, common.NegotiationCancelled)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, common.Conflict("negotiation %s is no longer ongoing", id)
	}
	nego.Status = common.NegotiationCancelled

	if _, err := s.messages.SystemMessage(ctx, nego,
		"Negotiation cancelled.", nego.Counterpart(principal.ID)); err != nil {
		s.log.Error("failed to record cancellation message", "negotiation", id, "error", err)
	}

	s.hub.Publish(common.NegotiationRoom(id), common.EventNegotiationCancelled, nego)

	s.email(ctx, nego.Counterpart(principal.ID), principal.ID, "Negotiation cancelled",
		notif.TemplateNegotiationCancelled, map[string]interface{}{
			"OrderID": nego.OrderID,
		})

	order := s.findOrderQuiet(ctx, nego.OrderID)
	return &CloseResult{Negotiation: nego, Order: order}, nil
}

// Delete hard-removes an abandoned negotiation. Allowed only to a
// participant and only while ongoing; message history is kept.
func (s *service) Delete(ctx context.Context, id string, principal common.Principal) error {
	nego, err := s.authorize(ctx, id, principal)
	if err != nil {
		return err
	}
	if nego.Status != common.NegotiationOngoing {
		return common.Conflict("negotiation %s is already %s", id, nego.Status)
	}
	return s.repo.Delete(ctx, id)
}

func (s *service) GetDetail(ctx context.Context, id string, principal common.Principal) (*Detail, error) {
	nego, err := s.authorize(ctx, id, principal)
	if err != nil {
		return nil, err
	}

	history, err := s.messages.History(ctx, id)
	if err != nil {
		return nil, err
	}

	var last *dbmysql.Message
	if len(history) > 0 {
		last = history[len(history)-1]
	}

	return &Detail{Negotiation: nego, Messages: history, LastMessage: last}, nil
}

func (s *service) List(ctx context.Context, f Filter) (*ListResult, error) {
	negotiations, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}

	items := lo.Map(negotiations, func(n *dbmysql.Negotiation, _ int) ListItem {
		item := ListItem{Negotiation: n}

		last, err := s.messages.Last(ctx, n.ID)
		if err != nil {
			s.log.Warn("failed to load last message", "negotiation", n.ID, "error", err)
		} else {
			item.LastMessage = last
		}

		if f.ProfileID != "" {
			unread, err := s.messages.UnreadCount(ctx, n.ID, f.ProfileID)
			if err != nil {
				s.log.Warn("failed to count unread", "negotiation", n.ID, "error", err)
			} else {
				item.UnreadCount = unread
			}
		}
		return item
	})

	return &ListResult{Items: items, Total: total}, nil
}

// cascade cancels every other ongoing negotiation contending for the
// truck. Status flips and system messages commit in one transaction;
// per-item catalog writes, emails and publishes are best effort and one
// item's failure never stops the rest.
func (s *service) cascade(ctx context.Context, winner *dbmysql.Negotiation) {
	truckID := winner.TruckID
	if truckID == "" {
		order, err := s.directory.FindOrder(ctx, winner.OrderID)
		if err != nil {
			s.log.Error("cascade aborted, cannot resolve truck",
				"negotiation", winner.ID, "order", winner.OrderID, "error", err)
			return
		}
		truckID = order.TruckID
	}

	// Secondary barrier against further acceptance on this truck.
	if err := s.directory.LockTruck(ctx, truckID); err != nil {
		s.log.Error("failed to lock truck", "truck", truckID, "error", err)
	}

	losers, err := s.repo.CascadeCancel(ctx, truckID, winner.ID, CascadeAnnouncement)
	if err != nil {
		s.log.Error("cascade cancel failed", "truck", truckID, "error", err)
		return
	}

	for _, loser := range losers {
		if err := s.directory.CancelOrder(ctx, loser.OrderID); err != nil {
			s.log.Error("failed to cancel order", "order", loser.OrderID, "error", err)
		}

		s.hub.Publish(common.NegotiationRoom(loser.ID), common.EventNegotiationCancelled, loser)
		s.hub.Publish(common.UserRoom(loser.SenderID), common.EventNegotiationCancelled, loser)

		s.email(ctx, loser.SenderID, loser.ReceiverID, "Negotiation automatically cancelled",
			notif.TemplateCascadeCancelled, map[string]interface{}{
				"OrderID": loser.OrderID,
			})
	}

	s.log.Info("cascade complete", "truck", truckID, "winner", winner.ID, "cancelled", len(losers))
}

// authorize loads the negotiation and verifies the caller is one of its
// two participants.
func (s *service) authorize(ctx context.Context, id string, principal common.Principal) (*dbmysql.Negotiation, error) {
	nego, err := s.repo.ByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFound("negotiation %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if !nego.IsParticipant(principal.ID) {
		return nil, common.Authorization("user %s is not a participant of negotiation %s", principal.ID, id)
	}
	return nego, nil
}

func (s *service) findOrderQuiet(ctx context.Context, orderID string) *common.Order {
	order, err := s.directory.FindOrder(ctx, orderID)
	if err != nil {
		s.log.Warn("failed to load order", "order", orderID, "error", err)
		return nil
	}
	return order
}

// email resolves the recipient and counterpart through the directory
// and queues the notification. Best effort all the way down.
func (s *service) email(ctx context.Context, toID, counterpartID, subject, tmpl string, tmplCtx map[string]interface{}) {
	recipient, err := s.directory.FindUser(ctx, toID)
	if err != nil {
		s.log.Warn("skipping email, recipient lookup failed", "user", toID, "error", err)
		return
	}

	tmplCtx["Name"] = recipient.Name
	if counterpart, err := s.directory.FindUser(ctx, counterpartID); err == nil {
		tmplCtx["Counterpart"] = counterpart.Name
	}

	s.notifier.NotifyAsync(common.EmailEvent{
		To:       recipient.Email,
		Subject:  subject,
		Template: tmpl,
		Context:  tmplCtx,
	})
}
