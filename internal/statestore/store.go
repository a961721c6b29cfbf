// Package statestore 请求状态缓存
//
// 为进行中/近期请求保存只读快照，带 TTL 自动过期。
// 缺失不是错误，表示"未知或已过期"。
package statestore

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Snapshot 请求状态只读投影
//
// Status 存的是管线状态的字符串形式，避免反向依赖管线包。
type Snapshot struct {
	RequestID  string    `json:"request_id"`
	UserID     int64     `json:"user_id"`
	Status     string    `json:"status"`
	QueuePos   int       `json:"queue_pos,omitempty"`
	BytesDone  int64     `json:"bytes_done"`
	BytesTotal int64     `json:"bytes_total"`
	FailKind   string    `json:"fail_kind,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store 状态缓存
type Store struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// New 创建状态缓存
func New(ttl time.Duration) *Store {
	return &Store{
		cache: gocache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Put 写入快照（覆盖旧值，last-write-wins）
func (s *Store) Put(requestID string, snap Snapshot) {
	snap.UpdatedAt = time.Now()
	s.cache.Set(requestID, snap, s.ttl)
}

// Get 读取快照，缺失返回 false
func (s *Store) Get(requestID string) (Snapshot, bool) {
	v, ok := s.cache.Get(requestID)
	if !ok {
		return Snapshot{}, false
	}
	snap, ok := v.(Snapshot)
	return snap, ok
}

// Delete 删除快照
func (s *Store) Delete(requestID string) {
	s.cache.Delete(requestID)
}

// ActiveCount 当前缓存的快照数量
func (s *Store) ActiveCount() int {
	return s.cache.ItemCount()
}
