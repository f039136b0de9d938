package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/market-chat/internal/model"
)

func newMsg(sender, receiver, product, body string) *model.Message {
	return &model.Message{SenderID: sender, ReceiverID: receiver, ProductID: product, Body: body}
}

func TestMessageRepository_AppendAssignsIDAndTime(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	m := newMsg("a", "b", "p", "hi")
	require.NoError(t, repo.Append(ctx, m))
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.CreatedAt.IsZero())
	assert.False(t, m.IsRead)

	// 相同内容不去重
	dup := newMsg("a", "b", "p", "hi")
	require.NoError(t, repo.Append(ctx, dup))
	assert.NotEqual(t, m.ID, dup.ID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestMessageRepository_HistoryBothDirectionsOrdered(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()
	p, q := uuid.NewString(), uuid.NewString()

	require.NoError(t, repo.Append(ctx, newMsg(a, b, p, "1")))
	require.NoError(t, repo.Append(ctx, newMsg(b, a, p, "2")))
	require.NoError(t, repo.Append(ctx, newMsg(a, b, q, "other product")))
	require.NoError(t, repo.Append(ctx, newMsg(c, b, p, "other buyer")))
	require.NoError(t, repo.Append(ctx, newMsg(a, b, p, "3")))

	hist, err := repo.History(ctx, b, a, p)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	bodies := []string{hist[0].Body, hist[1].Body, hist[2].Body}
	assert.Equal(t, []string{"1", "2", "3"}, bodies)
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].CreatedAt.Before(hist[i-1].CreatedAt))
	}

	byProduct, err := repo.HistoryByProduct(ctx, p)
	require.NoError(t, err)
	assert.Len(t, byProduct, 4)
}

func TestMessageRepository_EqualTimestampsTiebreakByID(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	second := newMsg("a", "b", "p", "second")
	second.ID, second.CreatedAt = "00000000-0000-7000-8000-000000000002", at
	first := newMsg("b", "a", "p", "first")
	first.ID, first.CreatedAt = "00000000-0000-7000-8000-000000000001", at
	require.NoError(t, repo.Append(ctx, second))
	require.NoError(t, repo.Append(ctx, first))

	hist, err := repo.History(ctx, "a", "b", "p")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "first", hist[0].Body)
	assert.Equal(t, "second", hist[1].Body)
}

func TestMessageRepository_MarkReadScopedAndIdempotent(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, newMsg("s", "u", "p", "target 1")))
	require.NoError(t, repo.Append(ctx, newMsg("s", "u", "p", "target 2")))
	require.NoError(t, repo.Append(ctx, newMsg("u", "s", "p", "reverse direction")))
	require.NoError(t, repo.Append(ctx, newMsg("s", "u", "q", "other product")))
	require.NoError(t, repo.Append(ctx, newMsg("x", "u", "p", "other sender")))

	n, err := repo.MarkRead(ctx, "u", "s", "p")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	all, err := repo.ListReceived(ctx, "u")
	require.NoError(t, err)
	for _, m := range all {
		if m.SenderID == "s" && m.ProductID == "p" {
			assert.True(t, m.IsRead, m.Body)
		} else {
			assert.False(t, m.IsRead, m.Body)
		}
	}
	rev, err := repo.ListReceived(ctx, "s")
	require.NoError(t, err)
	require.Len(t, rev, 1)
	assert.False(t, rev[0].IsRead)

	n, err = repo.MarkRead(ctx, "u", "s", "p")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = repo.MarkRead(ctx, "nobody", "s", "p")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func BenchmarkMessageAppend(b *testing.B) {
	repo := NewMessageRepository(openTestDB(b))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = repo.Append(ctx, newMsg("buyer", "seller", "p", "hello"))
	}
}

func BenchmarkMessageHistory(b *testing.B) {
	repo := NewMessageRepository(openTestDB(b))
	ctx := context.Background()
	for i := 0; i < 2000; i++ {
		_ = repo.Append(ctx, newMsg("buyer", "seller", "p", "hello"))
		_ = repo.Append(ctx, newMsg("seller", "buyer", "p", "hi"))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = repo.History(ctx, "buyer", "seller", "p")
	}
}
