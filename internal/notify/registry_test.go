package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConn(r *Registry, userID int64) *Conn {
	// writePump is not started: frames stay queued, which is exactly what
	// the queue tests need.
	return newConn(userID, nil, r, zap.NewNop())
}

func drain(c *Conn) []string {
	var frames []string
	for {
		select {
		case f := <-c.send:
			frames = append(frames, string(f))
		default:
			return frames
		}
	}
}

func TestRegistry_PushReachesEveryChannel(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c1 := testConn(r, 7)
	c2 := testConn(r, 7)
	r.Add(7, c1)
	r.Add(7, c2)

	delivered := r.Push(7, []byte("frame"))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []string{"frame"}, drain(c1))
	assert.Equal(t, []string{"frame"}, drain(c2))
}

func TestRegistry_PushToOfflineUser(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	assert.Equal(t, 0, r.Push(99, []byte("frame")))
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c := testConn(r, 7)
	r.Add(7, c)

	r.Remove(7, c)
	r.Remove(7, c)

	assert.Equal(t, 0, r.Push(7, []byte("frame")))
	assert.Equal(t, 0, r.ConnectionCount())
}

func TestRegistry_CountsAcrossUsers(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	for i := int64(1); i <= 10; i++ {
		r.Add(i, testConn(r, i))
	}
	assert.Equal(t, 10, r.ConnectionCount())
}

func TestEnqueue_DropsOldestWhenFull(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	c := testConn(r, 7)

	for i := 0; i < sendQueueSize+3; i++ {
		c.Enqueue([]byte(fmt.Sprintf("frame-%d", i)))
	}

	frames := drain(c)
	require.Len(t, frames, sendQueueSize)
	// The three oldest frames were dropped; the newest survived.
	assert.Equal(t, "frame-3", frames[0])
	assert.Equal(t, fmt.Sprintf("frame-%d", sendQueueSize+2), frames[len(frames)-1])
}
