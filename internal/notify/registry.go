package notify

import (
	"sync"

	"go.uber.org/zap"

	"taskpulse/pkg/metrics"
)

const (
	registryShards = 64
	// Per-connection queue depth. When a client can't keep up the oldest
	// pending frame is dropped rather than blocking the consumer loop.
	sendQueueSize = 16
)

// Registry tracks live delivery channels per user. It is sharded by
// user_id so one user's connect/disconnect never contends with pushes to
// another user.
type Registry struct {
	shards [registryShards]*shard
	logger *zap.Logger
}

type shard struct {
	mu    sync.RWMutex
	conns map[int64]map[*Conn]struct{}
}

func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{logger: logger}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[int64]map[*Conn]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID int64) *shard {
	return r.shards[uint64(userID)%registryShards]
}

// Add registers a live channel for a user.
func (r *Registry) Add(userID int64, c *Conn) {
	s := r.shardFor(userID)
	s.mu.Lock()
	set, ok := s.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		s.conns[userID] = set
	}
	set[c] = struct{}{}
	total := len(set)
	s.mu.Unlock()

	metrics.LiveConnections.Inc()
	r.logger.Info("Live channel connected",
		zap.Int64("user_id", userID),
		zap.Int("user_connections", total),
	)
}

// Remove unregisters a live channel. Safe to call more than once for the
// same connection.
func (r *Registry) Remove(userID int64, c *Conn) {
	s := r.shardFor(userID)
	s.mu.Lock()
	set, ok := s.conns[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if _, present := set[c]; !present {
		s.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.conns, userID)
	}
	s.mu.Unlock()

	metrics.LiveConnections.Dec()
	r.logger.Info("Live channel disconnected",
		zap.Int64("user_id", userID),
	)
}

// Push enqueues a frame on every live channel of the user and returns how
// many channels accepted it. Zero means the user is offline and the
// caller should fall back to durable delivery. A slow channel never
// blocks: the enqueue drops its oldest pending frame instead.
func (r *Registry) Push(userID int64, frame []byte) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	set := s.conns[userID]
	conns := make([]*Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		c.Enqueue(frame)
		delivered++
	}
	return delivered
}

// ConnectionCount returns the total number of live channels, for the
// health endpoint.
func (r *Registry) ConnectionCount() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.conns {
			total += len(set)
		}
		s.mu.RUnlock()
	}
	return total
}
