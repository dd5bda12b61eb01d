package dbmongo

import (
	"context"
	"errors"
	"fmt"

	"dealroom/internal/common"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Directory reads the user/order/truck catalog owned by the listing
// service. Lookups are read-only apart from the two narrow writes the
// truck-contention cascade performs: cancelling a losing order and
// locking the winning truck.
type Directory struct {
	users  *mongo.Collection
	orders *mongo.Collection
	trucks *mongo.Collection
}

func NewDirectory(mc *MongoClient) *Directory {
	return &Directory{
		users:  mc.Database.Collection("users"),
		orders: mc.Database.Collection("orders"),
		trucks: mc.Database.Collection("trucks"),
	}
}

func (d *Directory) FindUser(ctx context.Context, id string) (*common.User, error) {
	var user common.User
	err := d.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (d *Directory) FindOrder(ctx context.Context, id string) (*common.Order, error) {
	var order common.Order
	err := d.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	return &order, nil
}

func (d *Directory) CancelOrder(ctx context.Context, orderID string) error {
	_, err := d.orders.UpdateOne(ctx,
		bson.M{"_id": orderID},
		bson.M{"$set": bson.M{"status": common.OrderCancelled}},
	)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// LockTruck is idempotent: locking an already locked truck succeeds.
func (d *Directory) LockTruck(ctx context.Context, truckID string) error {
	_, err := d.trucks.UpdateOne(ctx,
		bson.M{"_id": truckID},
		bson.M{"$set": bson.M{"status": common.TruckLocked}},
	)
	if err != nil {
		return fmt.Errorf("failed to lock truck %s: %w", truckID, err)
	}
	return nil
}
