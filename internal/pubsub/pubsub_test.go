package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedMessage(t *testing.T) {
	f := New()
	sub := f.Subscribe(RoomTopic("ABCD"))
	defer sub.Close()

	f.Publish(Message{Topic: RoomTopic("ABCD"), Event: "room_update", Payload: "x"})

	select {
	case msg := <-sub.C:
		assert.Equal(t, "room_update", msg.Event)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestPerTopicOrderingPreserved(t *testing.T) {
	f := New()
	sub := f.Subscribe(GameTopic("ABCD"))
	defer sub.Close()

	for i := 0; i < 10; i++ {
		f.Publish(Message{Topic: GameTopic("ABCD"), Event: "state_update", Seq: uint64(i)})
	}

	for i := 0; i < 10; i++ {
		msg := <-sub.C
		require.Equal(t, uint64(i), msg.Seq)
	}
}

func TestDifferentTopicsAreIndependent(t *testing.T) {
	f := New()
	roomSub := f.Subscribe(RoomTopic("ABCD"))
	gameSub := f.Subscribe(GameTopic("ABCD"))
	defer roomSub.Close()
	defer gameSub.Close()

	f.Publish(Message{Topic: RoomTopic("ABCD"), Event: "room_update"})

	select {
	case <-gameSub.C:
		t.Fatal("game subscriber should not have received a room:<code> message")
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case msg := <-roomSub.C:
		assert.Equal(t, "room_update", msg.Event)
	default:
		t.Fatal("room subscriber did not receive its own topic's message")
	}
}

func TestSlowSubscriberDropsInsteadOfBlockingPublisher(t *testing.T) {
	f := New()
	sub := f.Subscribe(LobbyUpdates)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			f.Publish(Message{Topic: LobbyUpdates, Event: "lobby_update", Seq: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer instead of dropping")
	}
}

func TestCloseUnsubscribesAndStopsDelivery(t *testing.T) {
	f := New()
	sub := f.Subscribe(LobbyUpdates)
	require.Equal(t, 1, f.SubscriberCount(LobbyUpdates))

	sub.Close()
	assert.Equal(t, 0, f.SubscriberCount(LobbyUpdates))

	// Closing the channel lets a ranging/selecting reader observe EOF rather
	// than hang forever.
	_, open := <-sub.C
	assert.False(t, open)
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	f := New()
	a := f.Subscribe(RoomTopic("ZZZZ"))
	b := f.Subscribe(RoomTopic("ZZZZ"))
	defer a.Close()
	defer b.Close()

	f.Publish(Message{Topic: RoomTopic("ZZZZ"), Event: "room_update"})

	for _, sub := range []*Subscription{a, b} {
		select {
		case msg := <-sub.C:
			assert.Equal(t, "room_update", msg.Event)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed broadcast message")
		}
	}
}
