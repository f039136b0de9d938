package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/d60-Lab/market-chat/internal/model"
)

const messageCollection = "messages"

var historySort = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}

// mongoMessageRepository 文档库实现，字段名与 bson tag 一致
type mongoMessageRepository struct{ coll *mongo.Collection }

func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{coll: db.Collection(messageCollection)}
}

// EnsureMessageIndexes 创建与 SQL 实现相同的两组索引
func EnsureMessageIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(messageCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "product_id", Value: 1}}},
	})
	return err
}

func (r *mongoMessageRepository) Append(ctx context.Context, m *model.Message) error {
	if err := PrepareMessage(m); err != nil {
		return err
	}
	_, err := r.coll.InsertOne(ctx, m)
	return err
}

func (r *mongoMessageRepository) History(ctx context.Context, userA, userB, productID string) ([]*model.Message, error) {
	filter := bson.M{
		"product_id": productID,
		"$or": bson.A{
			bson.M{"sender_id": userA, "receiver_id": userB},
			bson.M{"sender_id": userB, "receiver_id": userA},
		},
	}
	return r.find(ctx, filter)
}

func (r *mongoMessageRepository) HistoryByProduct(ctx context.Context, productID string) ([]*model.Message, error) {
	return r.find(ctx, bson.M{"product_id": productID})
}

func (r *mongoMessageRepository) MarkRead(ctx context.Context, receiverID, senderID, productID string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"receiver_id": receiverID, "sender_id": senderID, "product_id": productID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *mongoMessageRepository) ListReceived(ctx context.Context, receiverID string) ([]*model.Message, error) {
	return r.find(ctx, bson.M{"receiver_id": receiverID})
}

func (r *mongoMessageRepository) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}

func (r *mongoMessageRepository) find(ctx context.Context, filter bson.M) ([]*model.Message, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetSort(historySort))
	if err != nil {
		return nil, err
	}
	res := make([]*model.Message, 0)
	if err := cur.All(ctx, &res); err != nil {
		return nil, err
	}
	return res, nil
}
