package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"incident-console/internal/config"
)

// Manager assigns partition buckets for the append-only operator_logs
// table so one hot operator cannot pile a day's activity into a single
// Scylla partition.
type Manager struct {
	logBuckets int
	hasherPool sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	logBuckets := cfg.Bucketing.LogBuckets
	if logBuckets < 1 {
		// LogBucket divides by the bucket count; a misconfigured zero
		// degrades to a single bucket instead of panicking.
		logBuckets = 1
	}

	m := &Manager{
		logBuckets: logBuckets,
	}

	// Pool of hash functions to avoid allocation overhead
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// LogBucket returns the consistent bucket for an operator id
// (0 to logBuckets-1).
func (m *Manager) LogBucket(operatorID string) int {
	return int(m.hash(operatorID) % uint64(m.logBuckets))
}

// DayBucket returns the UTC date component of the operator_logs
// partition key.
func (m *Manager) DayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// LogBuckets returns the configured bucket count.
func (m *Manager) LogBuckets() int {
	return m.logBuckets
}

func (m *Manager) hash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
