package gameserver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/arena/internal/gameserver"
	"github.com/cory-johannsen/arena/internal/notify"
)

func TestEventHub_FansOutAndForwards(t *testing.T) {
	next := &recordingNotifier{}
	hub := gameserver.NewEventHub(next, 4, nil)

	first, cancelFirst := hub.Subscribe("a")
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe("a")
	defer cancelSecond()
	other, cancelOther := hub.Subscribe("b")
	defer cancelOther()
	assert.Equal(t, 2, hub.Subscribers("a"))

	params, err := structpb.NewStruct(map[string]any{"turn": 3})
	require.NoError(t, err)
	require.NoError(t, hub.Notify(context.Background(), "a", "turn_results", params))

	for _, ch := range []<-chan *structpb.Struct{first, second} {
		env := <-ch
		assert.Equal(t, "turn_results", env.GetFields()[notify.FieldKey].GetStringValue())
		assert.Equal(t, float64(3), env.GetFields()[notify.FieldParams].GetStructValue().GetFields()["turn"].GetNumberValue())
	}
	assert.Empty(t, other)
	assert.Equal(t, []string{"turn_results"}, next.keys("a"))
}

func TestEventHub_FullStreamDropsWithoutBlocking(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	hub := gameserver.NewEventHub(nil, 1, zap.New(core))
	ch, cancel := hub.Subscribe("a")
	defer cancel()

	require.NoError(t, hub.Notify(context.Background(), "a", "one", nil))
	require.NoError(t, hub.Notify(context.Background(), "a", "two", nil))
	assert.Equal(t, 1, logs.FilterMessage("event stream full, dropping event").Len())
	env := <-ch
	assert.Equal(t, "one", env.GetFields()[notify.FieldKey].GetStringValue())
}

func TestEventHub_CancelUnsubscribesOnce(t *testing.T) {
	hub := gameserver.NewEventHub(nil, 0, nil)
	ch, cancel := hub.Subscribe("a")
	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers("a"))
	assert.NoError(t, hub.Notify(context.Background(), "a", "late", nil), "no stream, no next notifier")
}

func TestEventHub_ReturnsDownstreamError(t *testing.T) {
	next := &recordingNotifier{fail: true}
	hub := gameserver.NewEventHub(next, 1, nil)
	ch, cancel := hub.Subscribe("a")
	defer cancel()

	assert.Error(t, hub.Notify(context.Background(), "a", "started", nil))
	assert.Len(t, ch, 1, "streams are fed before the downstream notifier")
}
