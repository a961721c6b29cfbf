// Package pipeline 进度事件
//
// 下载回调只往有界通道投递事件，由独立消费协程按节流间隔
// 刷进状态缓存和聊天消息，避免写放大拖慢下载循环。
package pipeline

import (
	"time"
)

// progressEvent 一次进度上报
type progressEvent struct {
	requestID string
	done      int64
	total     int64
}

// pushProgress 非阻塞投递，通道满时丢弃（进度是咨询性的，last-write-wins）
func (m *Manager) pushProgress(requestID string, done, total int64) {
	select {
	case m.progressCh <- progressEvent{requestID: requestID, done: done, total: total}:
	default:
	}
}

// consumeProgress 进度消费协程
func (m *Manager) consumeProgress() {
	lastFlush := make(map[string]time.Time)

	for ev := range m.progressCh {
		m.mu.Lock()
		a, ok := m.active[ev.requestID]
		m.mu.Unlock()
		if !ok {
			delete(lastFlush, ev.requestID)
			continue
		}

		// 节流：同一请求两次刷新之间至少间隔 interval
		if t, seen := lastFlush[ev.requestID]; seen && time.Since(t) < m.interval {
			continue
		}
		lastFlush[ev.requestID] = time.Now()

		m.storeSnapshot(a.req, ev.done, ev.total)
		m.notify.Progress(a.req, ev.done, ev.total)
	}
}
