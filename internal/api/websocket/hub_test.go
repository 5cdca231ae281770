package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHubStopIsIdempotent(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	hub.Stop()
	hub.Stop()

	assert.Eventually(t, hub.IsStopped, time.Second, 10*time.Millisecond)
}

func TestBroadcastAfterStop(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	hub.Stop()
	assert.Eventually(t, hub.IsStopped, time.Second, 10*time.Millisecond)

	ok := hub.BroadcastEvent(Event{Type: EventUpdateProgress, Data: map[string]int{"done": 1}})
	assert.False(t, ok)
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	ok := hub.BroadcastEvent(Event{Type: EventUpdateStarted})
	assert.True(t, ok)
	assert.Equal(t, 0, hub.ClientCount())
}
