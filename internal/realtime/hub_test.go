package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/market-chat/internal/model"
	"github.com/d60-Lab/market-chat/pkg/metrics"
)

func fakeClient(t *testing.T, hub *Hub, user string, queue int) *Client {
	t.Helper()
	c := NewClient(&model.Principal{ID: user}, queue)
	require.NoError(t, hub.Register(c))
	return c
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case f := <-c.Frames():
			out = append(out, f)
		default:
			return out
		}
	}
}

func decode(t *testing.T, frame []byte) Outbound {
	t.Helper()
	var o Outbound
	require.NoError(t, json.Unmarshal(frame, &o))
	return o
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	hub := NewHub()
	c := fakeClient(t, hub, "a", 8)

	first, err := hub.Join(c, "a_b_p")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := hub.Join(c, "a_b_p")
	require.NoError(t, err)
	assert.False(t, again)
	assert.Equal(t, 1, hub.Members("a_b_p"))

	assert.Equal(t, 1, hub.Publish("a_b_p", []byte(`{}`)))
	assert.Len(t, drain(c), 1)
}

func TestHub_RoomIsolation(t *testing.T) {
	hub := NewHub()
	inR := fakeClient(t, hub, "a", 8)
	inOther := fakeClient(t, hub, "a", 8)
	_, _ = hub.Join(inR, "a_b_p")
	_, _ = hub.Join(inOther, "a_b_q")

	hub.Publish("a_b_p", []byte(`{"n":1}`))
	assert.Len(t, drain(inR), 1)
	assert.Empty(t, drain(inOther))
}

func TestHub_UnregisterLeavesAllRooms(t *testing.T) {
	hub := NewHub()
	c := fakeClient(t, hub, "a", 8)
	other := fakeClient(t, hub, "b", 8)
	_, _ = hub.Join(c, "a_b_p")
	_, _ = hub.Join(c, "a_c_p")
	_, _ = hub.Join(other, "a_b_p")
	assert.Equal(t, 2, hub.Rooms())

	hub.Unregister(c)
	hub.Unregister(c)
	assert.Equal(t, 1, hub.Rooms())
	assert.Equal(t, 1, hub.Members("a_b_p"))
	assert.Equal(t, 1, hub.Connections())

	hub.Leave(other, "a_b_p")
	assert.Equal(t, 0, hub.Rooms())
}

func TestHub_SlowClientIsDroppedWithoutStallingOthers(t *testing.T) {
	hub := NewHub()
	slow := fakeClient(t, hub, "a", 1)
	fast := fakeClient(t, hub, "b", 16)
	_, _ = hub.Join(slow, "a_b_p")
	_, _ = hub.Join(fast, "a_b_p")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish("a_b_p", []byte(`{}`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow connection")
	}

	assert.Len(t, drain(fast), 10)
	select {
	case <-slow.Done():
	default:
		t.Fatal("slow connection was not closed")
	}
	assert.Equal(t, 1, hub.Members("a_b_p"))
}

func TestHub_ClosedMemberIsNotCountedOrDropped(t *testing.T) {
	hub := NewHub()
	gone := fakeClient(t, hub, "a", 8)
	live := fakeClient(t, hub, "b", 8)
	_, _ = hub.Join(gone, "a_b_p")
	_, _ = hub.Join(live, "a_b_p")
	gone.Close()

	dropped := testutil.ToFloat64(metrics.FramesDropped)
	assert.Equal(t, 1, hub.Publish("a_b_p", []byte(`{}`)))
	assert.Equal(t, dropped, testutil.ToFloat64(metrics.FramesDropped))
	assert.Empty(t, drain(gone))
	assert.Len(t, drain(live), 1)
	// 顺带把关闭的连接移出房间
	assert.Equal(t, 1, hub.Members("a_b_p"))

	live.Close()
	assert.Equal(t, 0, hub.Publish("a_b_p", []byte(`{}`)))
	assert.Equal(t, dropped, testutil.ToFloat64(metrics.FramesDropped))
	assert.Equal(t, 0, hub.Members("a_b_p"))
}

func TestHub_CloseRejectsNewConnections(t *testing.T) {
	hub := NewHub()
	c := fakeClient(t, hub, "a", 4)
	_, _ = hub.Join(c, "a_b_p")

	hub.Close()
	<-c.Done()
	assert.Equal(t, 0, hub.Connections())
	assert.Equal(t, 0, hub.Rooms())
	assert.ErrorIs(t, hub.Register(NewClient(&model.Principal{ID: "x"}, 1)), ErrHubClosed)

	// 已关闭的连接不再入队
	assert.False(t, c.enqueue([]byte(`{}`)))
	assert.Empty(t, drain(c))
}
