// Package pipeline 下载槽位池（准入控制）
//
// 全局与每用户并发上限的唯一裁决点。等待者按
// 每用户 FIFO、用户间轮转的两级队列出队，保证单个
// 用户刷请求不会饿死其他人。
package pipeline

import (
	"context"
	"sync"
)

// slotWaiter 等待槽位的请求
type slotWaiter struct {
	requestID string
	userID    int64
	ready     chan struct{}
}

// SlotPool 槽位池
//
// 不变式：持有数 ≤ global，单用户持有数 ≤ perUser。
// Release 幂等，重复释放是空操作。
type SlotPool struct {
	mu          sync.Mutex
	global      int
	perUser     int
	held        map[string]int64 // requestID -> userID
	heldPerUser map[int64]int
	waitq       map[int64][]*slotWaiter // 每用户 FIFO
	userRing    []int64                 // 有等待者的用户，轮转顺序
	ringIdx     int
	onQueue     func(requestID string, pos int)
}

// NewSlotPool 创建槽位池
func NewSlotPool(global, perUser int) *SlotPool {
	if global < 1 {
		global = 1
	}
	if perUser < 1 {
		perUser = 1
	}
	return &SlotPool{
		global:      global,
		perUser:     perUser,
		held:        make(map[string]int64),
		heldPerUser: make(map[int64]int),
		waitq:       make(map[int64][]*slotWaiter),
	}
}

// OnQueueUpdate 注册排队位置回调（异步触发）
func (p *SlotPool) OnQueueUpdate(fn func(requestID string, pos int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onQueue = fn
}

// Acquire 获取槽位，容量不足时按 FIFO 排队直到 ctx 超时/取消
func (p *SlotPool) Acquire(ctx context.Context, userID int64, requestID string) error {
	p.mu.Lock()

	if _, dup := p.held[requestID]; dup {
		p.mu.Unlock()
		return nil
	}

	// 同用户已有排队者时不允许插队
	if len(p.waitq[userID]) == 0 && p.canGrant(userID) {
		p.grant(requestID, userID)
		p.mu.Unlock()
		return nil
	}

	w := &slotWaiter{requestID: requestID, userID: userID, ready: make(chan struct{})}
	p.enqueue(w)
	p.notifyPositions()
	p.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		select {
		case <-w.ready:
			// 超时瞬间恰好被授予，退还槽位
			p.releaseLocked(requestID)
		default:
			p.removeWaiter(w)
			p.notifyPositions()
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Release 释放槽位，重复释放是空操作
func (p *SlotPool) Release(requestID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(requestID)
}

// Held 当前持有的槽位总数
func (p *SlotPool) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

// HeldBy 指定用户持有的槽位数
func (p *SlotPool) HeldBy(userID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heldPerUser[userID]
}

// Holds 请求是否持有槽位
func (p *SlotPool) Holds(requestID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.held[requestID]
	return ok
}

// QueueLen 排队中的请求数
func (p *SlotPool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, q := range p.waitq {
		n += len(q)
	}
	return n
}

// canGrant 容量检查，调用方必须持锁
func (p *SlotPool) canGrant(userID int64) bool {
	return len(p.held) < p.global && p.heldPerUser[userID] < p.perUser
}

// grant 授予槽位，调用方必须持锁
func (p *SlotPool) grant(requestID string, userID int64) {
	p.held[requestID] = userID
	p.heldPerUser[userID]++
}

// releaseLocked 释放并唤醒等待者，调用方必须持锁
func (p *SlotPool) releaseLocked(requestID string) {
	userID, ok := p.held[requestID]
	if !ok {
		return
	}
	delete(p.held, requestID)
	if p.heldPerUser[userID] <= 1 {
		delete(p.heldPerUser, userID)
	} else {
		p.heldPerUser[userID]--
	}
	p.dispatch()
	p.notifyPositions()
}

// enqueue 入队，调用方必须持锁
func (p *SlotPool) enqueue(w *slotWaiter) {
	if len(p.waitq[w.userID]) == 0 {
		p.userRing = append(p.userRing, w.userID)
	}
	p.waitq[w.userID] = append(p.waitq[w.userID], w)
}

// removeWaiter 从队列移除等待者，调用方必须持锁
func (p *SlotPool) removeWaiter(w *slotWaiter) {
	q := p.waitq[w.userID]
	for i, x := range q {
		if x == w {
			q = append(q[:i], q[i+1:]...)
			break
		}
	}
	if len(q) == 0 {
		delete(p.waitq, w.userID)
		p.removeFromRing(w.userID)
	} else {
		p.waitq[w.userID] = q
	}
}

// removeFromRing 把用户移出轮转环，调用方必须持锁
func (p *SlotPool) removeFromRing(userID int64) {
	for i, uid := range p.userRing {
		if uid == userID {
			p.userRing = append(p.userRing[:i], p.userRing[i+1:]...)
			if p.ringIdx > i {
				p.ringIdx--
			}
			break
		}
	}
	if len(p.userRing) > 0 {
		p.ringIdx %= len(p.userRing)
	} else {
		p.ringIdx = 0
	}
}

// dispatch 按轮转顺序唤醒符合容量的等待者，调用方必须持锁
func (p *SlotPool) dispatch() {
	for len(p.held) < p.global && len(p.userRing) > 0 {
		granted := false
		n := len(p.userRing)
		for i := 0; i < n; i++ {
			idx := (p.ringIdx + i) % len(p.userRing)
			userID := p.userRing[idx]
			if p.heldPerUser[userID] >= p.perUser {
				continue
			}

			q := p.waitq[userID]
			w := q[0]
			if len(q) == 1 {
				delete(p.waitq, userID)
				p.userRing = append(p.userRing[:idx], p.userRing[idx+1:]...)
				if len(p.userRing) > 0 {
					p.ringIdx = idx % len(p.userRing)
				} else {
					p.ringIdx = 0
				}
			} else {
				p.waitq[userID] = q[1:]
				p.ringIdx = (idx + 1) % len(p.userRing)
			}

			p.grant(w.requestID, userID)
			close(w.ready)
			granted = true
			break
		}
		if !granted {
			return
		}
	}
}

// notifyPositions 异步回报排队位置，调用方必须持锁
func (p *SlotPool) notifyPositions() {
	if p.onQueue == nil || len(p.userRing) == 0 {
		return
	}

	// 按轮转出队顺序推算每个等待者的位置
	type posEntry struct {
		requestID string
		pos       int
	}
	var entries []posEntry

	indexes := make(map[int64]int, len(p.waitq))
	pos := 0
	for remaining := true; remaining; {
		remaining = false
		for i := 0; i < len(p.userRing); i++ {
			userID := p.userRing[(p.ringIdx+i)%len(p.userRing)]
			q := p.waitq[userID]
			if indexes[userID] < len(q) {
				pos++
				entries = append(entries, posEntry{q[indexes[userID]].requestID, pos})
				indexes[userID]++
				if indexes[userID] < len(q) {
					remaining = true
				}
			}
		}
	}

	fn := p.onQueue
	go func() {
		for _, e := range entries {
			fn(e.requestID, e.pos)
		}
	}()
}
