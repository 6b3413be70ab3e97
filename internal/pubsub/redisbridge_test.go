package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T) (*RedisBridge, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	b, err := NewRedisBridge(mr.Addr(), "")
	require.NoError(t, err)

	return b, mr
}

func TestRedisBridgePublishReachesRawSubscriber(t *testing.T) {
	b, mr := newTestBridge(t)
	defer mr.Close()
	defer func() { _ = b.Close() }()

	ctx := context.Background()
	rawSub := b.client.Subscribe(ctx, channelFor(RoomTopic("ABCD")))
	defer func() { _ = rawSub.Close() }()
	time.Sleep(50 * time.Millisecond)

	err := b.Publish(ctx, Message{Topic: RoomTopic("ABCD"), Event: "room_update", Seq: 3, Payload: map[string]string{"status": "playing"}})
	require.NoError(t, err)

	msg, err := rawSub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, "room:ABCD", env.Topic)
	assert.Equal(t, "room_update", env.Event)
	assert.EqualValues(t, 3, env.Seq)
}

func TestRedisBridgeMirrorForwardsFabricMessages(t *testing.T) {
	b, mr := newTestBridge(t)
	defer mr.Close()
	defer func() { _ = b.Close() }()

	fab := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go b.Mirror(ctx, fab, GameTopic("ABCD"))
	time.Sleep(50 * time.Millisecond)

	rawSub := b.client.Subscribe(context.Background(), channelFor(GameTopic("ABCD")))
	defer func() { _ = rawSub.Close() }()
	time.Sleep(50 * time.Millisecond)

	fab.Publish(Message{Topic: GameTopic("ABCD"), Event: "state_update", Seq: 1})

	msg, err := rawSub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, "state_update", env.Event)
}

func TestRedisBridgePublishGracefulOnDownRedis(t *testing.T) {
	b, mr := newTestBridge(t)
	mr.Close() // kill redis before any publish

	err := b.Publish(context.Background(), Message{Topic: LobbyUpdates, Event: "lobby_update"})
	// A single failure surfaces as an error; the circuit breaker only
	// swallows once it's open. Either way this must never panic.
	_ = err
}

func TestRedisBridgeCircuitOpensAndDegradesGracefully(t *testing.T) {
	b, mr := newTestBridge(t)
	mr.Close()

	for i := 0; i < 10; i++ {
		_ = b.Publish(context.Background(), Message{Topic: LobbyUpdates, Event: "lobby_update"})
	}

	// Once open, Publish must return nil (graceful degradation) rather than
	// propagating further errors to the caller.
	err := b.Publish(context.Background(), Message{Topic: LobbyUpdates, Event: "lobby_update"})
	assert.NoError(t, err)
}

func TestNilBridgeIsANoop(t *testing.T) {
	var b *RedisBridge
	assert.NoError(t, b.Publish(context.Background(), Message{Topic: LobbyUpdates}))
	assert.NoError(t, b.Ping(context.Background()))
	assert.NoError(t, b.Close())
}
