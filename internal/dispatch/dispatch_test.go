package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/groupctl/internal/testutil/testlog"
	"github.com/danmuck/groupctl/internal/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type collector struct {
	got []transport.Message
}

func (c *collector) Deliver(msg transport.Message) {
	c.got = append(c.got, msg)
}

func TestRoutesByGroupName(t *testing.T) {
	testlog.Start(t)
	d := New(zerolog.Nop())
	lobby, ops, other := &collector{}, &collector{}, &collector{}
	d.Subscribe("lobby", lobby)
	d.Subscribe("ops", ops)
	d.SetFallback(other)

	in := make(chan transport.Message, 4)
	in <- transport.Message{Group: "lobby", Payload: []byte("1")}
	in <- transport.Message{Group: "ops", Payload: []byte("2")}
	in <- transport.Message{Group: "lobby", Payload: []byte("3")}
	in <- transport.Message{Group: "#alice#daemon", Payload: []byte("4")}
	close(in)

	require.NoError(t, d.Run(context.Background(), in))
	require.Len(t, lobby.got, 2)
	require.Equal(t, "1", string(lobby.got[0].Payload))
	require.Equal(t, "3", string(lobby.got[1].Payload))
	require.Len(t, ops.got, 1)
	require.Len(t, other.got, 1)
	require.Equal(t, []string{"lobby", "ops"}, d.Groups())
}

func TestUnsubscribeDropsWithoutFallback(t *testing.T) {
	testlog.Start(t)
	d := New(zerolog.Nop())
	var n int
	d.Subscribe("lobby", SubscriberFunc(func(transport.Message) { n++ }))
	require.True(t, d.Subscribed("lobby"))

	d.Dispatch(transport.Message{Group: "lobby"})
	d.Unsubscribe("lobby")
	require.False(t, d.Subscribed("lobby"))
	d.Dispatch(transport.Message{Group: "lobby"})
	require.Equal(t, 1, n)
}

func TestRunStopsOnContext(t *testing.T) {
	testlog.Start(t)
	d := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, make(chan transport.Message)) }()
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}
