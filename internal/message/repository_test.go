package message

import (
	"context"
	"os"
	"testing"

	"dealroom/internal/common"
	"dealroom/internal/dbmysql"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupRepo(t *testing.T) Repository {
	t.Helper()

	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set, skipping MySQL integration test")
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&dbmysql.Message{}))

	t.Cleanup(func() {
		db.Where("1 = 1").Delete(&dbmysql.Message{})
	})

	return NewRepository(db)
}

func seedMessage(t *testing.T, repo Repository, negotiationID, userID string, status common.MessageStatus) *dbmysql.Message {
	t.Helper()

	msg := &dbmysql.Message{
		ID:            ulid.Make().String(),
		NegotiationID: negotiationID,
		UserID:        userID,
		ReceiverID:    "receiver-1",
		OrderID:       "order-1",
		Content:       "hello",
		MessageType:   common.MessageUser,
		Status:        status,
	}
	require.NoError(t, repo.Create(context.Background(), msg))
	return msg
}

func TestRepository_OrderingAndLast(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	m1 := seedMessage(t, repo, "n1", "buyer-1", common.MessageSent)
	m2 := seedMessage(t, repo, "n1", "seller-1", common.MessageSent)
	m3 := seedMessage(t, repo, "n1", "buyer-1", common.MessageSent)
	seedMessage(t, repo, "n2", "buyer-1", common.MessageSent)

	history, err := repo.ByNegotiation(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, m1.ID, history[0].ID)
	require.Equal(t, m2.ID, history[1].ID)
	require.Equal(t, m3.ID, history[2].ID)

	last, err := repo.Last(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, m3.ID, last.ID)
}

func TestRepository_LastOnEmptyNegotiation(t *testing.T) {
	repo := setupRepo(t)

	last, err := repo.Last(context.Background(), "no-such-negotiation")
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestRepository_UnreadCount(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seedMessage(t, repo, "n1", "seller-1", common.MessageSent)
	seedMessage(t, repo, "n1", "seller-1", common.MessageDelivered)
	seedMessage(t, repo, "n1", "seller-1", common.MessageRead)
	seedMessage(t, repo, "n1", "buyer-1", common.MessageSent)

	count, err := repo.UnreadCount(ctx, "n1", "buyer-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestRepository_UpdateStatusIf(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	msg := seedMessage(t, repo, "n1", "buyer-1", common.MessageSent)

	rows, err := repo.UpdateStatusIf(ctx, msg.ID, common.MessageSent, common.MessageDelivered)
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	rows, err = repo.UpdateStatusIf(ctx, msg.ID, common.MessageSent, common.MessageRead)
	require.NoError(t, err)
	require.EqualValues(t, 0, rows)

	got, err := repo.ByID(ctx, msg.ID)
	require.NoError(t, err)
	require.Equal(t, common.MessageDelivered, got.Status)
}
