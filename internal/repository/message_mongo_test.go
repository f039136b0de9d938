package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

// 使用驱动自带的 mock 部署：响应由测试预置，发出的命令通过监听器取回
func newMockMongo(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func messageDoc(id, sender, receiver, product, body string, at time.Time, read bool) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "sender_id", Value: sender},
		{Key: "receiver_id", Value: receiver},
		{Key: "product_id", Value: product},
		{Key: "body", Value: body},
		{Key: "is_read", Value: read},
		{Key: "created_at", Value: at},
	}
}

func sortKeys(mt *mtest.T, cmd bson.Raw) []string {
	mt.Helper()
	elems, err := cmd.Lookup("sort").Document().Elements()
	require.NoError(mt, err)
	keys := make([]string, 0, len(elems))
	for _, e := range elems {
		keys = append(keys, e.Key())
	}
	return keys
}

func TestMongoMessageRepository_Append(t *testing.T) {
	mt := newMockMongo(t)
	mt.Run("assigns id and inserts", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		m := newMsg("a", "b", "p", "hi")
		require.NoError(mt, repo.Append(context.Background(), m))
		assert.NotEmpty(mt, m.ID)
		assert.False(mt, m.CreatedAt.IsZero())

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "insert", evt.CommandName)
		assert.Equal(mt, messageCollection, evt.Command.Lookup("insert").StringValue())
		docs, err := evt.Command.Lookup("documents").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, docs, 1)
		doc := docs[0].Document()
		assert.Equal(mt, m.ID, doc.Lookup("_id").StringValue())
		assert.Equal(mt, "hi", doc.Lookup("body").StringValue())
		assert.False(mt, doc.Lookup("is_read").Boolean())
	})
}

func TestMongoMessageRepository_HistoryFilterAndOrder(t *testing.T) {
	mt := newMockMongo(t)
	mt.Run("both directions sorted by created_at then id", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.DB)
		base := time.UnixMilli(1_700_000_000_000).UTC()
		ns := mt.DB.Name() + "." + messageCollection
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			messageDoc("m1", "a", "b", "p", "hello", base, true),
			messageDoc("m2", "b", "a", "p", "hi back", base.Add(time.Second), false),
		))

		got, err := repo.History(context.Background(), "a", "b", "p")
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		assert.Equal(mt, "m1", got[0].ID)
		assert.Equal(mt, "b", got[1].SenderID)
		assert.True(mt, got[0].IsRead)
		assert.True(mt, got[1].CreatedAt.Equal(base.Add(time.Second)))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "find", evt.CommandName)
		filter := evt.Command.Lookup("filter").Document()
		assert.Equal(mt, "p", filter.Lookup("product_id").StringValue())
		branches, err := filter.Lookup("$or").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, branches, 2)
		first, second := branches[0].Document(), branches[1].Document()
		assert.Equal(mt, "a", first.Lookup("sender_id").StringValue())
		assert.Equal(mt, "b", first.Lookup("receiver_id").StringValue())
		assert.Equal(mt, "b", second.Lookup("sender_id").StringValue())
		assert.Equal(mt, "a", second.Lookup("receiver_id").StringValue())
		assert.Equal(mt, []string{"created_at", "_id"}, sortKeys(mt, evt.Command))
	})

	mt.Run("empty result is an empty slice", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+messageCollection, mtest.FirstBatch))

		got, err := repo.History(context.Background(), "a", "b", "p")
		require.NoError(mt, err)
		assert.NotNil(mt, got)
		assert.Empty(mt, got)
	})

	mt.Run("server error is returned", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad query", Name: "BadValue"}))

		_, err := repo.History(context.Background(), "a", "b", "p")
		assert.Error(mt, err)
	})
}

func TestMongoMessageRepository_ProductAndReceiverScans(t *testing.T) {
	mt := newMockMongo(t)
	mt.Run("history by product", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+messageCollection, mtest.FirstBatch,
			messageDoc("m1", "a", "s", "p", "x", time.UnixMilli(1000).UTC(), false),
		))

		got, err := repo.HistoryByProduct(context.Background(), "p")
		require.NoError(mt, err)
		require.Len(mt, got, 1)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		filter := evt.Command.Lookup("filter").Document()
		assert.Equal(mt, "p", filter.Lookup("product_id").StringValue())
		_, err = filter.LookupErr("$or")
		assert.Error(mt, err)
		assert.Equal(mt, []string{"created_at", "_id"}, sortKeys(mt, evt.Command))
	})

	mt.Run("list received", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+messageCollection, mtest.FirstBatch))

		got, err := repo.ListReceived(context.Background(), "s")
		require.NoError(mt, err)
		assert.Empty(mt, got)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "s", evt.Command.Lookup("filter").Document().Lookup("receiver_id").StringValue())
	})
}

func TestMongoMessageRepository_MarkRead(t *testing.T) {
	mt := newMockMongo(t)
	mt.Run("only unread rows of the conversation, idempotent", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}, bson.E{Key: "nModified", Value: 2}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		n, err := repo.MarkRead(context.Background(), "s", "b", "p")
		require.NoError(mt, err)
		assert.EqualValues(mt, 2, n)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "update", evt.CommandName)
		updates, err := evt.Command.Lookup("updates").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, updates, 1)
		stmt := updates[0].Document()
		q := stmt.Lookup("q").Document()
		assert.Equal(mt, "s", q.Lookup("receiver_id").StringValue())
		assert.Equal(mt, "b", q.Lookup("sender_id").StringValue())
		assert.Equal(mt, "p", q.Lookup("product_id").StringValue())
		assert.False(mt, q.Lookup("is_read").Boolean())
		assert.True(mt, stmt.Lookup("multi").Boolean())
		assert.True(mt, stmt.Lookup("u", "$set", "is_read").Boolean())

		// 第二次没有未读消息，返回 0 且不报错
		n, err = repo.MarkRead(context.Background(), "s", "b", "p")
		require.NoError(mt, err)
		assert.EqualValues(mt, 0, n)
	})
}

func TestMongoMessageRepository_Count(t *testing.T) {
	mt := newMockMongo(t)
	mt.Run("counts all documents", func(mt *mtest.T) {
		repo := NewMongoMessageRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+messageCollection, mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(3)}},
		))

		n, err := repo.Count(context.Background())
		require.NoError(mt, err)
		assert.EqualValues(mt, 3, n)
	})
}
