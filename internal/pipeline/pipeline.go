// Package pipeline 下载管线
//
// 驱动单个请求走完 解析 → 选择 → 排队 → 下载 → 后处理 → 送达
// 的状态机。槽位只在下载开始前获取，等待用户选择期间不占用，
// 避免无响应用户饿死队列。
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/internal/errkind"
	"github.com/smysle/sakura-dlbot-go/internal/extractor"
	"github.com/smysle/sakura-dlbot-go/internal/statestore"
	"github.com/smysle/sakura-dlbot-go/pkg/logger"
)

// Extractor 媒体解析能力
type Extractor interface {
	Probe(ctx context.Context, url string) (*extractor.MediaInfo, error)
	Fetch(ctx context.Context, spec extractor.FetchSpec, sink extractor.ProgressSink) (string, error)
	Cleanup(requestID string)
}

// PostProcessor 下载后处理能力
type PostProcessor interface {
	Process(ctx context.Context, path string, opts extractor.PostOptions) (string, error)
}

// Deliverer 成品投递能力
type Deliverer interface {
	Deliver(ctx context.Context, req *Request, path string) error
}

// Ledger 终态落库能力
type Ledger interface {
	RecordTerminal(req *Request) error
}

// Notifier 用户侧消息能力
type Notifier interface {
	FormatOptions(req *Request, info *extractor.MediaInfo)
	QueuePosition(req *Request, pos int)
	Progress(req *Request, done, total int64)
	Delivered(req *Request)
	Failed(req *Request, kind errkind.Kind)
}

// selection 用户的格式选择
type selection struct {
	formatID  string
	audioOnly bool
}

// active 进行中请求的运行时状态
type active struct {
	req       *Request
	info      *extractor.MediaInfo
	selectCh  chan selection
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Manager 下载管线管理器
type Manager struct {
	cfg      *config.DownloadConfig
	slots    *SlotPool
	ex       Extractor
	post     PostProcessor
	store    *statestore.Store
	ledger   Ledger
	deliver  Deliverer
	notify   Notifier
	interval time.Duration
	backoff  time.Duration

	progressCh chan progressEvent

	mu     sync.Mutex
	active map[string]*active
}

// NewManager 创建管线管理器
func NewManager(
	cfg *config.DownloadConfig,
	slots *SlotPool,
	ex Extractor,
	post PostProcessor,
	store *statestore.Store,
	ledger Ledger,
	deliver Deliverer,
	notify Notifier,
) *Manager {
	m := &Manager{
		cfg:        cfg,
		slots:      slots,
		ex:         ex,
		post:       post,
		store:      store,
		ledger:     ledger,
		deliver:    deliver,
		notify:     notify,
		interval:   time.Duration(cfg.ProgressInterval) * time.Second,
		backoff:    2 * time.Second,
		progressCh: make(chan progressEvent, 256),
		active:     make(map[string]*active),
	}

	// 排队位置变化 → 状态缓存 + 聊天提示
	slots.OnQueueUpdate(func(requestID string, pos int) {
		m.mu.Lock()
		a, ok := m.active[requestID]
		if !ok {
			m.mu.Unlock()
			return
		}
		snap := m.snapshotOf(a.req)
		snap.QueuePos = pos
		m.mu.Unlock()

		m.store.Put(requestID, snap)
		m.notify.QueuePosition(a.req, pos)
	})

	go m.consumeProgress()
	return m
}

// Submit 受理新请求并启动状态机
func (m *Manager) Submit(userID, chatID int64, messageID int, url string) *Request {
	req := NewRequest(uuid.NewString(), userID, chatID, url)
	req.MessageID = messageID

	ctx, cancel := context.WithCancel(context.Background())
	a := &active{
		req:      req,
		selectCh: make(chan selection, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	m.mu.Lock()
	m.active[req.ID] = a
	m.mu.Unlock()

	m.store.Put(req.ID, m.snapshotOf(req))
	logger.Info().
		Str("request_id", req.ID).
		Int64("user_id", userID).
		Str("url", url).
		Msg("受理下载请求")

	go m.run(a)
	return req
}

// Select 提交用户的格式选择
func (m *Manager) Select(requestID, formatID string, audioOnly bool) error {
	m.mu.Lock()
	a, ok := m.active[requestID]
	if ok && a.req.Status != StatusFormatSelectionPending {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("请求 %s 不存在或不在等待选择", requestID)
	}

	select {
	case a.selectCh <- selection{formatID: formatID, audioOnly: audioOnly}:
		return nil
	default:
		return fmt.Errorf("请求 %s 已收到过选择", requestID)
	}
}

// Cancel 取消请求，可在任意非终态调用
func (m *Manager) Cancel(requestID string) error {
	m.mu.Lock()
	a, ok := m.active[requestID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("请求不存在或已结束: %s", requestID)
	}

	a.cancelled.Store(true)
	a.cancel()
	logger.Info().Str("request_id", requestID).Msg("请求被取消")
	return nil
}

// CancelUser 取消某用户的全部进行中请求，返回取消数量
func (m *Manager) CancelUser(userID int64) int {
	m.mu.Lock()
	var targets []*active
	for _, a := range m.active {
		if a.req.UserID == userID {
			targets = append(targets, a)
		}
	}
	m.mu.Unlock()

	for _, a := range targets {
		a.cancelled.Store(true)
		a.cancel()
	}
	if len(targets) > 0 {
		logger.Info().Int64("user_id", userID).Int("count", len(targets)).Msg("用户批量取消")
	}
	return len(targets)
}

// Info 取进行中请求的 probe 结果（供选择键盘渲染）
func (m *Manager) Info(requestID string) (*Request, *extractor.MediaInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.active[requestID]
	if !ok {
		return nil, nil, false
	}
	return a.req, a.info, true
}

// ActiveCount 进行中的请求数
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Slots 槽位池（只读访问，供状态接口）
func (m *Manager) Slots() *SlotPool {
	return m.slots
}

// run 驱动一个请求的完整生命周期
func (m *Manager) run(a *active) {
	req := a.req

	defer func() {
		// 无论成败：释放槽位、清理临时文件、移出活动表
		m.slots.Release(req.ID)
		m.ex.Cleanup(req.ID)
		a.cancel()
		m.mu.Lock()
		delete(m.active, req.ID)
		m.mu.Unlock()
	}()

	// 阶段一：解析元数据
	m.transition(req, StatusMetadataResolving)
	info, err := m.ex.Probe(a.ctx, req.URL)
	if err != nil {
		m.fail(a, err)
		return
	}
	if len(info.Formats) == 0 {
		m.fail(a, errkind.Newf(errkind.UnsupportedURL, "没有可下载的格式"))
		return
	}
	a.info = info
	req.Title = info.Title
	req.Thumbnail = info.Thumbnail
	req.Duration = info.Duration

	// 阶段二：等待用户选择格式（不占槽位）
	m.transition(req, StatusFormatSelectionPending)
	m.notify.FormatOptions(req, info)

	select {
	case sel := <-a.selectCh:
		req.FormatID = sel.formatID
		req.AudioOnly = sel.audioOnly
	case <-time.After(m.cfg.SelectionWait()):
		m.fail(a, errkind.Newf(errkind.SelectionTimeout, "等待选择超过 %s", m.cfg.SelectionWait()))
		return
	case <-a.ctx.Done():
		m.fail(a, errkind.New(errkind.Cancelled, a.ctx.Err()))
		return
	}

	// 阶段三：获取下载槽位
	queueCtx, cancelQueue := context.WithTimeout(a.ctx, m.cfg.QueueWait())
	err = m.slots.Acquire(queueCtx, req.UserID, req.ID)
	cancelQueue()
	if err != nil {
		if a.cancelled.Load() {
			m.fail(a, errkind.New(errkind.Cancelled, err))
		} else {
			m.fail(a, errkind.New(errkind.FetchTimeout, err))
		}
		return
	}

	// 阶段四：下载（瞬时网络错误带退避重试）
	m.transition(req, StatusFetching)
	path, err := m.fetchWithRetry(a)
	if err != nil {
		m.fail(a, err)
		return
	}

	// 阶段五：可选后处理，失败回退发送原始文件
	if req.AudioOnly || (m.cfg.EmbedThumbnail && req.Thumbnail != "") {
		m.transition(req, StatusPostProcessing)
		ppCtx, cancelPP := context.WithTimeout(a.ctx, 2*time.Minute)
		out, ppErr := m.post.Process(ppCtx, path, extractor.PostOptions{
			AudioOnly:    req.AudioOnly,
			ThumbnailURL: req.Thumbnail,
		})
		cancelPP()
		if a.ctx.Err() != nil {
			m.fail(a, errkind.New(errkind.Cancelled, a.ctx.Err()))
			return
		}
		if ppErr != nil {
			logger.Warn().Err(ppErr).Str("request_id", req.ID).Msg("后处理失败，回退发送原始文件")
		} else {
			path = out
		}
	}

	// 阶段六：收尾并投递
	m.transition(req, StatusFinalizing)
	if fi, statErr := os.Stat(path); statErr == nil {
		req.Bytes = fi.Size()
	}

	deliverCtx, cancelDeliver := context.WithTimeout(a.ctx, 15*time.Minute)
	err = m.deliver.Deliver(deliverCtx, req, path)
	cancelDeliver()
	if err != nil {
		m.fail(a, err)
		return
	}

	m.transition(req, StatusDelivered)
	m.recordTerminal(req)
	m.notify.Delivered(req)

	logger.Info().
		Str("request_id", req.ID).
		Int64("bytes", req.Bytes).
		Dur("took", time.Since(req.CreatedAt)).
		Msg("下载送达")
}

// fetchWithRetry 下载，瞬时网络错误重试到上限
func (m *Manager) fetchWithRetry(a *active) (string, error) {
	req := a.req
	spec := extractor.FetchSpec{
		RequestID: req.ID,
		URL:       req.URL,
		FormatID:  req.FormatID,
		AudioOnly: req.AudioOnly,
	}
	sink := func(done, total int64) {
		m.pushProgress(req.ID, done, total)
	}

	var lastErr error
	for attempt := 0; attempt <= m.cfg.RetryBound; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * m.backoff):
			case <-a.ctx.Done():
				return "", errkind.New(errkind.Cancelled, a.ctx.Err())
			}
			logger.Warn().
				Str("request_id", req.ID).
				Int("attempt", attempt+1).
				Msg("瞬时网络错误，重试下载")
		}

		fetchCtx, cancel := context.WithTimeout(a.ctx, m.cfg.FetchWait())
		path, err := m.ex.Fetch(fetchCtx, spec, sink)
		cancel()
		if err == nil {
			return path, nil
		}
		lastErr = err
		if !errkind.IsTransient(err) {
			return "", err
		}
	}

	return "", errkind.New(errkind.NetworkExhausted, lastErr)
}

// fail 进入终态失败：一次落库、一次用户提示
func (m *Manager) fail(a *active, err error) {
	req := a.req
	if req.Status.IsTerminal() {
		return
	}

	kind := errkind.KindOf(err)
	// 用户主动取消优先于其他归类
	if a.cancelled.Load() {
		kind = errkind.Cancelled
	}

	m.mu.Lock()
	req.Status = StatusFailed
	req.FailKind = kind
	req.UpdatedAt = time.Now()
	snap := m.snapshotOf(req)
	m.mu.Unlock()
	m.store.Put(req.ID, snap)

	m.recordTerminal(req)
	m.notify.Failed(req, kind)

	evt := logger.Warn()
	if kind == errkind.Internal {
		// 内部错误带原始错误细节进日志，但不外露给用户
		evt = logger.Error()
	}
	evt.Err(err).
		Str("request_id", req.ID).
		Str("kind", string(kind)).
		Msg("下载失败")
}

// recordTerminal 终态写流水，幂等失败只记日志
func (m *Manager) recordTerminal(req *Request) {
	if err := m.ledger.RecordTerminal(req); err != nil {
		logger.Error().Err(err).Str("request_id", req.ID).Msg("终态落库失败")
	}
}

// transition 状态流转并刷新快照
func (m *Manager) transition(req *Request, next Status) {
	if !req.Status.CanTransitionTo(next) {
		logger.Error().
			Str("request_id", req.ID).
			Str("from", string(req.Status)).
			Str("to", string(next)).
			Msg("非法状态流转，忽略")
		return
	}
	m.mu.Lock()
	req.Status = next
	req.UpdatedAt = time.Now()
	snap := m.snapshotOf(req)
	m.mu.Unlock()
	m.store.Put(req.ID, snap)

	logger.Debug().
		Str("request_id", req.ID).
		Str("status", string(next)).
		Msg("状态流转")
}

// snapshotOf 构造只读快照，并发访问时调用方需持有 m.mu
func (m *Manager) snapshotOf(req *Request) statestore.Snapshot {
	return statestore.Snapshot{
		RequestID:  req.ID,
		UserID:     req.UserID,
		Status:     string(req.Status),
		BytesTotal: req.Bytes,
		FailKind:   string(req.FailKind),
	}
}

// storeSnapshot 带进度的快照写入
func (m *Manager) storeSnapshot(req *Request, done, total int64) {
	m.mu.Lock()
	snap := m.snapshotOf(req)
	m.mu.Unlock()

	snap.BytesDone = done
	snap.BytesTotal = total
	m.store.Put(req.ID, snap)
}
