package realtime

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/market-chat/internal/model"
)

func TestBroadcaster_PerRoomOrderMatchesPersistOrder(t *testing.T) {
	hub := NewHub()
	b := NewBroadcaster(hub, nil, 8)
	const roomID = "a_b_p"
	const senders, perSender = 8, 50

	a := fakeClient(t, hub, "a", senders*perSender)
	bb := fakeClient(t, hub, "b", senders*perSender)
	_, _ = hub.Join(a, roomID)
	_, _ = hub.Join(bb, roomID)

	var storeMu sync.Mutex
	var store []string
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := b.Sequence(roomID, func() (*model.Message, error) {
					storeMu.Lock()
					defer storeMu.Unlock()
					id := fmt.Sprintf("s%d-%d", s, i)
					store = append(store, id)
					return &model.Message{ID: id}, nil
				})
				assert.NoError(t, err)
			}
		}(s)
	}
	wg.Wait()

	ids := func(c *Client) []string {
		var out []string
		for _, f := range drain(c) {
			out = append(out, decode(t, f).Message.ID)
		}
		return out
	}
	gotA, gotB := ids(a), ids(bb)
	require.Len(t, gotA, senders*perSender)
	assert.Equal(t, store, gotA)
	assert.Equal(t, store, gotB)
}

func TestBroadcaster_PersistFailurePublishesNothing(t *testing.T) {
	hub := NewHub()
	b := NewBroadcaster(hub, nil, 0)
	c := fakeClient(t, hub, "a", 4)
	_, _ = hub.Join(c, "a_b_p")

	_, err := b.Sequence("a_b_p", func() (*model.Message, error) { return nil, errors.New("db down") })
	require.Error(t, err)
	assert.Empty(t, drain(c))
}

func TestBroadcaster_FrameCarriesRoomAndMessage(t *testing.T) {
	hub := NewHub()
	b := NewBroadcaster(hub, nil, 4)
	c := fakeClient(t, hub, "a", 4)
	_, _ = hub.Join(c, "a_b_p")

	m, err := b.Sequence("a_b_p", func() (*model.Message, error) {
		return &model.Message{ID: "m1", SenderID: "a", ReceiverID: "b", ProductID: "p", Body: "hi"}, nil
	})
	require.NoError(t, err)
	frames := drain(c)
	require.Len(t, frames, 1)
	out := decode(t, frames[0])
	assert.Equal(t, TypeMessage, out.Type)
	assert.Equal(t, "a_b_p", out.Room)
	assert.Equal(t, m.ID, out.Message.ID)
	assert.Equal(t, "hi", out.Message.Body)
}
