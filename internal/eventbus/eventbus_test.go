package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ S string }

func TestPublishDispatchesByType(t *testing.T) {
	b := New()
	var pings []int
	var pongs []string
	Subscribe(b, func(_ context.Context, e ping) { pings = append(pings, e.N) })
	Subscribe(b, func(_ context.Context, e pong) { pongs = append(pongs, e.S) })

	Publish(b, context.Background(), ping{N: 1})
	Publish(b, context.Background(), pong{S: "a"})
	Publish(b, context.Background(), ping{N: 2})

	require.Equal(t, []int{1, 2}, pings)
	require.Equal(t, []string{"a"}, pongs)
}

func TestUnsubscribeRemovesOnlyThatHandler(t *testing.T) {
	b := New()
	var got []string
	unsubA := Subscribe(b, func(_ context.Context, e ping) { got = append(got, "a") })
	Subscribe(b, func(_ context.Context, e ping) { got = append(got, "b") })

	unsubA()
	unsubA()
	Publish(b, context.Background(), ping{})

	require.Equal(t, []string{"b"}, got)
}

func TestNilBusIsNoop(t *testing.T) {
	var b *Bus
	unsub := Subscribe(b, func(context.Context, ping) { t.Fatal("handler called on nil bus") })
	Publish(b, context.Background(), ping{})
	unsub()
}
