package negotiation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"dealroom/internal/common"
	"dealroom/internal/dbmysql"
	"dealroom/internal/message"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type serviceMocks struct {
	repo      *MockRepository
	messages  *message.MockService
	directory *common.MockDirectory
	hub       *common.MockHub
	notifier  *common.MockNotifier
}

func newTestService(t *testing.T) (Service, serviceMocks, *gomock.Controller) {
	ctrl := gomock.NewController(t)

	m := serviceMocks{
		repo:      NewMockRepository(ctrl),
		messages:  message.NewMockService(ctrl),
		directory: common.NewMockDirectory(ctrl),
		hub:       common.NewMockHub(ctrl),
		notifier:  common.NewMockNotifier(ctrl),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(m.repo, m.messages, m.directory, m.hub, m.notifier, logger)
	return svc, m, ctrl
}

// allowSideEffects relaxes expectations for fire-and-forget work the
// tests are not asserting on.
func (m serviceMocks) allowSideEffects() {
	m.hub.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	m.notifier.EXPECT().NotifyAsync(gomock.Any()).AnyTimes()
	m.directory.EXPECT().FindUser(gomock.Any(), gomock.Any()).
		Return(&common.User{ID: "u", Name: "U", Email: "u@example.com"}, nil).AnyTimes()
}

func ongoingNegotiation(id string) *dbmysql.Negotiation {
	return &dbmysql.Negotiation{
		ID:         id,
		SenderID:   "buyer-1",
		ReceiverID: "seller-1",
		Type:       common.NegotiationProduct,
		OrderID:    "order-1",
		Status:     common.NegotiationOngoing,
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	buyer := common.Principal{ID: "buyer-1", Role: common.RoleBuyer}
	offer := 500.0

	tests := []struct {
		name      string
		dto       CreateDTO
		principal common.Principal
		setup     func(m serviceMocks)
		wantKind  common.ErrorKind
	}{
		{
			name:      "success with opening offer",
			dto:       CreateDTO{ReceiverID: "seller-1", Type: common.NegotiationProduct, OrderID: "order-1", OfferPrice: &offer},
			principal: buyer,
			setup: func(m serviceMocks) {
				m.repo.EXPECT().ExistsOngoing(ctx, "buyer-1", "seller-1", common.NegotiationProduct, "order-1").Return(false, nil)
				m.directory.EXPECT().FindOrder(ctx, "order-1").Return(&common.Order{ID: "order-1"}, nil)
				m.repo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, n *dbmysql.Negotiation, opening *dbmysql.Message) error {
						require.Equal(t, common.NegotiationOngoing, n.Status)
						require.Equal(t, "buyer-1", n.SenderID)
						require.NotEmpty(t, n.ID)
						require.NotNil(t, opening)
						require.Equal(t, n.ID, opening.NegotiationID)
						require.Equal(t, "Opening offer", opening.Content)
						require.Equal(t, offer, *opening.OfferPrice)
						require.Equal(t, common.MessageSent, opening.Status)
						return nil
					})
				m.allowSideEffects()
			},
		},
		{
			name:      "only buyers may create",
			dto:       CreateDTO{ReceiverID: "buyer-2", Type: common.NegotiationProduct, OrderID: "order-1"},
			principal: common.Principal{ID: "seller-1", Role: common.RoleSeller},
			setup:     func(serviceMocks) {},
			wantKind:  common.KindAuthorization,
		},
		{
			name:      "duplicate ongoing tuple",
			dto:       CreateDTO{ReceiverID: "seller-1", Type: common.NegotiationProduct, OrderID: "order-1"},
			principal: buyer,
			setup: func(m serviceMocks) {
				m.repo.EXPECT().ExistsOngoing(ctx, "buyer-1", "seller-1", common.NegotiationProduct, "order-1").Return(true, nil)
			},
			wantKind: common.KindConflict,
		},
		{
			name:      "missing order id",
			dto:       CreateDTO{ReceiverID: "seller-1", Type: common.NegotiationProduct},
			principal: buyer,
			setup:     func(serviceMocks) {},
			wantKind:  common.KindValidation,
		},
		{
			name:      "truck negotiation requires truck on order",
			dto:       CreateDTO{ReceiverID: "trans-1", Type: common.NegotiationTruck, OrderID: "order-2"},
			principal: buyer,
			setup: func(m serviceMocks) {
				m.repo.EXPECT().ExistsOngoing(ctx, "buyer-1", "trans-1", common.NegotiationTruck, "order-2").Return(false, nil)
				m.directory.EXPECT().FindOrder(ctx, "order-2").Return(&common.Order{ID: "order-2"}, nil)
			},
			wantKind: common.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m, ctrl := newTestService(t)
			defer ctrl.Finish()
			tt.setup(m)

			nego, err := svc.Create(ctx, tt.dto, tt.principal)
			if tt.wantKind != "" {
				require.Error(t, err)
				require.True(t, common.IsKind(err, tt.wantKind), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, common.NegotiationOngoing, nego.Status)
		})
	}
}

func TestService_Create_CapturesTruckID(t *testing.T) {
	ctx := context.Background()
	svc, m, ctrl := newTestService(t)
	defer ctrl.Finish()

	m.repo.EXPECT().ExistsOngoing(ctx, "buyer-1", "trans-1", common.NegotiationTruck, "order-9").Return(false, nil)
	m.directory.EXPECT().FindOrder(ctx, "order-9").Return(&common.Order{ID: "order-9", TruckID: "truck-7"}, nil)

	var created *dbmysql.Negotiation
	m.repo.EXPECT().Create(ctx, gomock.Any(), gomock.Nil()).DoAndReturn(
		func(_ context.Context, n *dbmysql.Negotiation, _ *dbmysql.Message) error {
			created = n
			return nil
		})
	m.allowSideEffects()

	_, err := svc.Create(ctx, CreateDTO{ReceiverID: "trans-1", Type: common.NegotiationTruck, OrderID: "order-9"},
		common.Principal{ID: "buyer-1", Role: common.RoleBuyer})
	require.NoError(t, err)
	require.Equal(t, "truck-7", created.TruckID)
}

func TestService_Create_OpeningOfferCommitsWithNegotiation(t *testing.T) {
	ctx := context.Background()
	svc, m, ctrl := newTestService(t)
	defer ctrl.Finish()

	offer := 500.0
	m.repo.EXPECT().ExistsOngoing(ctx, "buyer-1", "seller-1", common.NegotiationProduct, "order-1").Return(false, nil)
	m.directory.EXPECT().FindOrder(ctx, "order-1").Return(&common.Order{ID: "order-1"}, nil)
	// Negotiation and opening message are one store write; when it fails
	// the command fails with nothing persisted and no events published.
	m.repo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(errors.New("insert failed"))

	_, err := svc.Create(ctx, CreateDTO{ReceiverID: "seller-1", Type: common.NegotiationProduct, OrderID: "order-1", OfferPrice: &offer},
		common.Principal{ID: "buyer-1", Role: common.RoleBuyer})
	require.EqualError(t, err, "insert failed")
}

func TestService_Create_DuplicateKeyMapsToConflict(t *testing.T) {
	ctx := context.Background()
	svc, m, ctrl := newTestService(t)
	defer ctrl.Finish()

	// The pre-check missed a concurrent create; the unique active-key
	// index catches it at insert time.
	m.repo.EXPECT().ExistsOngoing(ctx, "buyer-1", "seller-1", common.NegotiationProduct, "order-1").Return(false, nil)
	m.directory.EXPECT().FindOrder(ctx, "order-1").Return(&common.Order{ID: "order-1"}, nil)
	m.repo.EXPECT().Create(ctx, gomock.Any(), gomock.Nil()).Return(gorm.ErrDuplicatedKey)

	_, err := svc.Create(ctx, CreateDTO{ReceiverID: "seller-1", Type: common.NegotiationProduct, OrderID: "order-1"},
		common.Principal{ID: "buyer-1", Role: common.RoleBuyer})
	require.True(t, common.IsKind(err, common.KindConflict))
}

func TestService_Accept(t *testing.T) {
	ctx := context.Background()
	participant := common.Principal{ID: "buyer-1", Role: common.RoleBuyer}

	t.Run("not found", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()
		m.repo.EXPECT().ByID(ctx, "missing").Return(nil, gorm.ErrRecordNotFound)

		_, err := svc.Accept(ctx, "missing", participant)
		require.True(t, common.IsKind(err, common.KindNotFound))
	})

	t.Run("non-participant", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()
		m.repo.EXPECT().ByID(ctx, "n1").Return(ongoingNegotiation("n1"), nil)

		_, err := svc.Accept(ctx, "n1", common.Principal{ID: "stranger", Role: common.RoleBuyer})
		require.True(t, common.IsKind(err, common.KindAuthorization))
	})

	t.Run("already terminal", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()
		nego := ongoingNegotiation("n1")
		nego.Status = common.NegotiationCompleted
		m.repo.EXPECT().ByID(ctx, "n1").Return(nego, nil)

		_, err := svc.Accept(ctx, "n1", participant)
		require.True(t, common.IsKind(err, common.KindConflict))
	})

	t.Run("lost the transition race", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()
		m.repo.EXPECT().ByID(ctx, "n1").Return(ongoingNegotiation("n1"), nil)
		m.repo.EXPECT().UpdateStatusIf(ctx, "n1", common.NegotiationOngoing, common.NegotiationCompleted).Return(int64(0), nil)

		_, err := svc.Accept(ctx, "n1", participant)
		require.True(t, common.IsKind(err, common.KindConflict))
	})

	t.Run("product accept completes without cascade", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()
		m.repo.EXPECT().ByID(ctx, "n1").Return(ongoingNegotiation("n1"), nil)
		m.repo.EXPECT().UpdateStatusIf(ctx, "n1", common.NegotiationOngoing, common.NegotiationCompleted).Return(int64(1), nil)
		m.messages.EXPECT().SystemMessage(ctx, gomock.Any(), gomock.Any(), "seller-1").
			Return(&dbmysql.Message{ID: "sys1"}, nil)
		m.directory.EXPECT().FindOrder(ctx, "order-1").Return(&common.Order{ID: "order-1"}, nil)
		m.allowSideEffects()

		result, err := svc.Accept(ctx, "n1", participant)
		require.NoError(t, err)
		require.Equal(t, common.NegotiationCompleted, result.Negotiation.Status)
		require.Equal(t, "order-1", result.Order.ID)
	})

	t.Run("truck accept cancels all competitors", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		winner := ongoingNegotiation("n1")
		winner.Type = common.NegotiationTruck
		winner.ReceiverID = "trans-1"
		winner.TruckID = "truck-7"

		losers := []*dbmysql.Negotiation{
			{ID: "n2", SenderID: "buyer-2", ReceiverID: "trans-1", Type: common.NegotiationTruck, OrderID: "order-2", TruckID: "truck-7", Status: common.NegotiationCancelled},
			{ID: "n3", SenderID: "buyer-3", ReceiverID: "trans-1", Type: common.NegotiationTruck, OrderID: "order-3", TruckID: "truck-7", Status: common.NegotiationCancelled},
		}

		m.repo.EXPECT().ByID(ctx, "n1").Return(winner, nil)
		m.repo.EXPECT().UpdateStatusIf(ctx, "n1", common.NegotiationOngoing, common.NegotiationCompleted).Return(int64(1), nil)
		m.directory.EXPECT().LockTruck(ctx, "truck-7").Return(nil)
		m.repo.EXPECT().CascadeCancel(ctx, "truck-7", "n1", CascadeAnnouncement).Return(losers, nil)
		m.directory.EXPECT().CancelOrder(ctx, "order-2").Return(nil)
		m.directory.EXPECT().CancelOrder(ctx, "order-3").Return(nil)
		m.messages.EXPECT().SystemMessage(ctx, gomock.Any(), gomock.Any(), "trans-1").
			Return(&dbmysql.Message{ID: "sys1"}, nil)
		m.directory.EXPECT().FindOrder(ctx, "order-1").Return(&common.Order{ID: "order-1", TruckID: "truck-7"}, nil)
		m.allowSideEffects()

		result, err := svc.Accept(ctx, "n1", participant)
		require.NoError(t, err)
		require.Equal(t, common.NegotiationCompleted, result.Negotiation.Status)
	})

	t.Run("one failing cascade item does not stop the rest", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		winner := ongoingNegotiation("n1")
		winner.Type = common.NegotiationTruck
		winner.TruckID = "truck-7"

		losers := []*dbmysql.Negotiation{
			{ID: "n2", SenderID: "buyer-2", OrderID: "order-2", TruckID: "truck-7", Status: common.NegotiationCancelled},
			{ID: "n3", SenderID: "buyer-3", OrderID: "order-3", TruckID: "truck-7", Status: common.NegotiationCancelled},
		}

		m.repo.EXPECT().ByID(ctx, "n1").Return(winner, nil)
		m.repo.EXPECT().UpdateStatusIf(ctx, "n1", common.NegotiationOngoing, common.NegotiationCompleted).Return(int64(1), nil)
		m.directory.EXPECT().LockTruck(ctx, "truck-7").Return(nil)
		m.repo.EXPECT().CascadeCancel(ctx, "truck-7", "n1", CascadeAnnouncement).Return(losers, nil)
		m.directory.EXPECT().CancelOrder(ctx, "order-2").Return(context.DeadlineExceeded)
		m.directory.EXPECT().CancelOrder(ctx, "order-3").Return(nil)
		m.messages.EXPECT().SystemMessage(ctx, gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&dbmysql.Message{ID: "sys1"}, nil)
		m.directory.EXPECT().FindOrder(ctx, "order-1").Return(&common.Order{ID: "order-1"}, nil)
		m.allowSideEffects()

		_, err := svc.Accept(ctx, "n1", participant)
		require.NoError(t, err)
	})
}

func TestService_Reject(t *testing.T) {
	ctx := context.Background()
	seller := common.Principal{ID: "seller-1", Role: common.RoleSeller}

	t.Run("counter offer keeps negotiation ongoing", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		nego := ongoingNegotiation("n1")
		m.repo.EXPECT().ByID(ctx, "n1").Return(nego, nil)
		m.messages.EXPECT().CreateUser(ctx, nego, "Counter offer", gomock.Any(), "seller-1").DoAndReturn(
			func(_ context.Context, n *dbmysql.Negotiation, content string, price *float64, author string) (*dbmysql.Message, error) {
				require.Equal(t, 550.0, *price)
				return &dbmysql.Message{ID: "m2", NegotiationID: n.ID, OfferPrice: price, UserID: author}, nil
			})
		m.allowSideEffects()

		msg, err := svc.Reject(ctx, "n1", 550, seller)
		require.NoError(t, err)
		require.Equal(t, 550.0, *msg.OfferPrice)
		// No status transition was requested on the repository.
		require.Equal(t, common.NegotiationOngoing, nego.Status)
	})

	t.Run("terminal negotiation rejects the counter", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		nego := ongoingNegotiation("n1")
		nego.Status = common.NegotiationCancelled
		m.repo.EXPECT().ByID(ctx, "n1").Return(nego, nil)

		_, err := svc.Reject(ctx, "n1", 550, seller)
		require.True(t, common.IsKind(err, common.KindConflict))
	})

	t.Run("non-positive price", func(t *testing.T) {
		svc, _, ctrl := newTestService(t)
		defer ctrl.Finish()

		_, err := svc.Reject(ctx, "n1", 0, seller)
		require.True(t, common.IsKind(err, common.KindValidation))
	})
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("participant cancels", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		m.repo.EXPECT().ByID(ctx, "n1").Return(ongoingNegotiation("n1"), nil)
		m.repo.EXPECT().UpdateStatusIf(ctx, "n1", common.NegotiationOngoing, common.NegotiationCancelled).Return(int64(1), nil)
		m.messages.EXPECT().SystemMessage(ctx, gomock.Any(), gomock.Any(), "buyer-1").
			Return(&dbmysql.Message{ID: "sys1"}, nil)
		m.directory.EXPECT().FindOrder(ctx, "order-1").Return(&common.Order{ID: "order-1"}, nil)
		m.allowSideEffects()

		result, err := svc.Cancel(ctx, "n1", common.Principal{ID: "seller-1", Role: common.RoleSeller})
		require.NoError(t, err)
		require.Equal(t, common.NegotiationCancelled, result.Negotiation.Status)
	})

	t.Run("non-participant leaves status untouched", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		nego := ongoingNegotiation("n1")
		m.repo.EXPECT().ByID(ctx, "n1").Return(nego, nil)

		_, err := svc.Cancel(ctx, "n1", common.Principal{ID: "stranger", Role: common.RoleBuyer})
		require.True(t, common.IsKind(err, common.KindAuthorization))
		require.Equal(t, common.NegotiationOngoing, nego.Status)
	})

	t.Run("cancel after completion conflicts", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		nego := ongoingNegotiation("n1")
		nego.Status = common.NegotiationCompleted
		m.repo.EXPECT().ByID(ctx, "n1").Return(nego, nil)

		_, err := svc.Cancel(ctx, "n1", common.Principal{ID: "buyer-1", Role: common.RoleBuyer})
		require.True(t, common.IsKind(err, common.KindConflict))
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("participant deletes ongoing", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		m.repo.EXPECT().ByID(ctx, "n1").Return(ongoingNegotiation("n1"), nil)
		m.repo.EXPECT().Delete(ctx, "n1").Return(nil)

		err := svc.Delete(ctx, "n1", common.Principal{ID: "buyer-1", Role: common.RoleBuyer})
		require.NoError(t, err)
	})

	t.Run("terminal negotiation cannot be deleted", func(t *testing.T) {
		svc, m, ctrl := newTestService(t)
		defer ctrl.Finish()

		nego := ongoingNegotiation("n1")
		nego.Status = common.NegotiationCancelled
		m.repo.EXPECT().ByID(ctx, "n1").Return(nego, nil)

		err := svc.Delete(ctx, "n1", common.Principal{ID: "buyer-1", Role: common.RoleBuyer})
		require.True(t, common.IsKind(err, common.KindConflict))
	})
}

func TestService_GetDetail(t *testing.T) {
	ctx := context.Background()
	svc, m, ctrl := newTestService(t)
	defer ctrl.Finish()

	price := 550.0
	history := []*dbmysql.Message{
		{ID: "m1", Content: "Opening offer"},
		{ID: "m2", Content: "Counter offer", OfferPrice: &price},
	}
	m.repo.EXPECT().ByID(ctx, "n1").Return(ongoingNegotiation("n1"), nil)
	m.messages.EXPECT().History(ctx, "n1").Return(history, nil)

	detail, err := svc.GetDetail(ctx, "n1", common.Principal{ID: "buyer-1", Role: common.RoleBuyer})
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	require.Equal(t, "m2", detail.LastMessage.ID)
	require.Equal(t, 550.0, *detail.LastMessage.OfferPrice)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, m, ctrl := newTestService(t)
	defer ctrl.Finish()

	f := Filter{ProfileID: "buyer-1", Status: common.NegotiationOngoing}
	negotiations := []*dbmysql.Negotiation{ongoingNegotiation("n1"), ongoingNegotiation("n2")}

	m.repo.EXPECT().List(ctx, f).Return(negotiations, int64(2), nil)
	m.messages.EXPECT().Last(ctx, "n1").Return(&dbmysql.Message{ID: "m9"}, nil)
	m.messages.EXPECT().Last(ctx, "n2").Return(nil, nil)
	m.messages.EXPECT().UnreadCount(ctx, "n1", "buyer-1").Return(int64(3), nil)
	m.messages.EXPECT().UnreadCount(ctx, "n2", "buyer-1").Return(int64(0), nil)

	result, err := svc.List(ctx, f)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Total)
	require.Equal(t, "m9", result.Items[0].LastMessage.ID)
	require.Equal(t, int64(3), result.Items[0].UnreadCount)
	require.Nil(t, result.Items[1].LastMessage)
}
