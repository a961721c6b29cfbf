package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smysle/sakura-dlbot-go/internal/config"
	"github.com/smysle/sakura-dlbot-go/internal/errkind"
	"github.com/smysle/sakura-dlbot-go/internal/extractor"
	"github.com/smysle/sakura-dlbot-go/internal/statestore"
)

type fakeExtractor struct {
	formats    []extractor.FormatOption
	probeErr   error
	fetchErr   error
	transients int32 // 前 N 次 Fetch 返回瞬时错误
	fetchCalls int32
	path       string
}

func (f *fakeExtractor) Probe(ctx context.Context, url string) (*extractor.MediaInfo, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &extractor.MediaInfo{
		Title:   "测试视频",
		Formats: f.formats,
	}, nil
}

func (f *fakeExtractor) Fetch(ctx context.Context, spec extractor.FetchSpec, sink extractor.ProgressSink) (string, error) {
	n := atomic.AddInt32(&f.fetchCalls, 1)
	if n <= f.transients {
		return "", errkind.Newf(errkind.NetworkTransient, "HTTP Error 503")
	}
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	if sink != nil {
		sink(1024, 2048)
		sink(2048, 2048)
	}
	return f.path, nil
}

func (f *fakeExtractor) Cleanup(requestID string) {}

type fakePost struct {
	out   string
	err   error
	calls int32
}

func (f *fakePost) Process(ctx context.Context, path string, opts extractor.PostOptions) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	if f.out != "" {
		return f.out, nil
	}
	return path, nil
}

type fakeDeliver struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeDeliver) Deliver(ctx context.Context, req *Request, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	return nil
}

func (f *fakeDeliver) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type fakeLedger struct {
	mu      sync.Mutex
	records []Request
}

func (f *fakeLedger) RecordTerminal(req *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, *req)
	return nil
}

func (f *fakeLedger) terminal() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.records...)
}

type fakeNotifier struct {
	formatReady chan string
	delivered   chan string
	failed      chan errkind.Kind
	progressed  int32
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		formatReady: make(chan string, 8),
		delivered:   make(chan string, 8),
		failed:      make(chan errkind.Kind, 8),
	}
}

func (f *fakeNotifier) FormatOptions(req *Request, info *extractor.MediaInfo) {
	f.formatReady <- req.ID
}
func (f *fakeNotifier) QueuePosition(req *Request, pos int)      {}
func (f *fakeNotifier) Progress(req *Request, done, total int64) { atomic.AddInt32(&f.progressed, 1) }
func (f *fakeNotifier) Delivered(req *Request)                   { f.delivered <- req.ID }
func (f *fakeNotifier) Failed(req *Request, kind errkind.Kind)   { f.failed <- kind }

func testConfig() *config.DownloadConfig {
	return &config.DownloadConfig{
		GlobalSlots:      2,
		PerUserSlots:     2,
		SelectionTimeout: 60,
		FetchTimeout:     10,
		QueueTimeout:     10,
		RetryBound:       3,
		ProgressInterval: 1,
		StateTTLMinutes:  1,
	}
}

func newTestManager(cfg *config.DownloadConfig, ex Extractor, post PostProcessor) (*Manager, *fakeLedger, *fakeDeliver, *fakeNotifier) {
	ledger := &fakeLedger{}
	deliver := &fakeDeliver{}
	notify := newFakeNotifier()
	store := statestore.New(cfg.StateTTL())
	slots := NewSlotPool(cfg.GlobalSlots, cfg.PerUserSlots)
	m := NewManager(cfg, slots, ex, post, store, ledger, deliver, notify)
	m.backoff = time.Millisecond
	return m, ledger, deliver, notify
}

func waitChan[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("等待%s超时", what)
		panic("unreachable")
	}
}

func tempMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "video.mp4")
	if err := os.WriteFile(path, []byte("fake media payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestManagerHappyPath(t *testing.T) {
	ex := &fakeExtractor{
		formats: []extractor.FormatOption{{ID: "22", Ext: "mp4", Height: 720}},
		path:    tempMedia(t),
	}
	m, ledger, deliver, notify := newTestManager(testConfig(), ex, &fakePost{})

	req := m.Submit(1001, 1001, 1, "https://example.com/watch?v=abc")
	id := waitChan(t, notify.formatReady, "格式选项")
	if id != req.ID {
		t.Fatalf("格式选项请求不匹配: %s != %s", id, req.ID)
	}

	if err := m.Select(req.ID, "22", false); err != nil {
		t.Fatalf("提交选择失败: %v", err)
	}
	waitChan(t, notify.delivered, "送达通知")

	records := ledger.terminal()
	if len(records) != 1 {
		t.Fatalf("终态流水应恰好一条, 实际 %d", len(records))
	}
	if records[0].Status != StatusDelivered {
		t.Errorf("流水状态 = %s, 期望 delivered", records[0].Status)
	}
	if records[0].Bytes == 0 {
		t.Error("送达流水应记录文件大小")
	}
	if got := deliver.delivered(); len(got) != 1 || got[0] != ex.path {
		t.Errorf("投递路径 = %v, 期望 [%s]", got, ex.path)
	}
	if m.Slots().Held() != 0 {
		t.Errorf("结束后仍持有 %d 个槽位", m.Slots().Held())
	}
}

func TestManagerNoFormats(t *testing.T) {
	// 解析成功但没有任何可下载格式：直接失败，绝不进入下载阶段
	ex := &fakeExtractor{formats: nil}
	m, ledger, _, notify := newTestManager(testConfig(), ex, &fakePost{})

	m.Submit(1001, 1001, 1, "https://example.com/photo-gallery")
	kind := waitChan(t, notify.failed, "失败通知")

	if kind != errkind.UnsupportedURL {
		t.Errorf("失败归类 = %s, 期望 unsupported_url", kind)
	}
	if n := atomic.LoadInt32(&ex.fetchCalls); n != 0 {
		t.Errorf("不应调用下载, 实际调用 %d 次", n)
	}
	records := ledger.terminal()
	if len(records) != 1 || records[0].Status != StatusFailed {
		t.Fatalf("应恰好一条失败流水, 实际 %+v", records)
	}
}

func TestManagerRetryWithinBound(t *testing.T) {
	// 三次瞬时网络错误, 上限为三: 第四次尝试成功送达
	ex := &fakeExtractor{
		formats:    []extractor.FormatOption{{ID: "22", Ext: "mp4", Height: 720}},
		transients: 3,
		path:       tempMedia(t),
	}
	m, _, _, notify := newTestManager(testConfig(), ex, &fakePost{})

	req := m.Submit(1001, 1001, 1, "https://example.com/watch?v=flaky")
	waitChan(t, notify.formatReady, "格式选项")
	if err := m.Select(req.ID, "22", false); err != nil {
		t.Fatal(err)
	}
	waitChan(t, notify.delivered, "送达通知")

	if n := atomic.LoadInt32(&ex.fetchCalls); n != 4 {
		t.Errorf("下载尝试次数 = %d, 期望 4", n)
	}
}

func TestManagerRetryExhausted(t *testing.T) {
	// 上限为二, 瞬时错误持续不退: 归类为 network_exhausted
	cfg := testConfig()
	cfg.RetryBound = 2
	ex := &fakeExtractor{
		formats:    []extractor.FormatOption{{ID: "22", Ext: "mp4", Height: 720}},
		transients: 99,
	}
	m, ledger, _, notify := newTestManager(cfg, ex, &fakePost{})

	req := m.Submit(1001, 1001, 1, "https://example.com/watch?v=down")
	waitChan(t, notify.formatReady, "格式选项")
	if err := m.Select(req.ID, "22", false); err != nil {
		t.Fatal(err)
	}
	kind := waitChan(t, notify.failed, "失败通知")

	if kind != errkind.NetworkExhausted {
		t.Errorf("失败归类 = %s, 期望 network_exhausted", kind)
	}
	if n := atomic.LoadInt32(&ex.fetchCalls); n != 3 {
		t.Errorf("下载尝试次数 = %d, 期望 3", n)
	}
	records := ledger.terminal()
	if len(records) != 1 {
		t.Fatalf("终态流水应恰好一条, 实际 %d", len(records))
	}
	if kindStr := records[0].FailKind; kindStr != errkind.NetworkExhausted {
		t.Errorf("流水失败归类 = %s", kindStr)
	}
}

func TestManagerNonTransientNoRetry(t *testing.T) {
	ex := &fakeExtractor{
		formats:  []extractor.FormatOption{{ID: "22", Ext: "mp4", Height: 720}},
		fetchErr: errkind.Newf(errkind.AuthRequired, "Sign in to confirm your age"),
	}
	m, _, _, notify := newTestManager(testConfig(), ex, &fakePost{})

	req := m.Submit(1001, 1001, 1, "https://example.com/watch?v=gated")
	waitChan(t, notify.formatReady, "格式选项")
	if err := m.Select(req.ID, "22", false); err != nil {
		t.Fatal(err)
	}
	kind := waitChan(t, notify.failed, "失败通知")

	if kind != errkind.AuthRequired {
		t.Errorf("失败归类 = %s, 期望 auth_required", kind)
	}
	if n := atomic.LoadInt32(&ex.fetchCalls); n != 1 {
		t.Errorf("非瞬时错误不应重试, 实际调用 %d 次", n)
	}
}

func TestManagerPostProcessFallback(t *testing.T) {
	// 后处理失败不终结请求, 回退投递原始文件
	ex := &fakeExtractor{
		formats: []extractor.FormatOption{{ID: "140", Ext: "m4a", AudioOnly: true}},
		path:    tempMedia(t),
	}
	post := &fakePost{err: errkind.Newf(errkind.Internal, "ffmpeg exit 1")}
	m, ledger, deliver, notify := newTestManager(testConfig(), ex, post)

	req := m.Submit(1001, 1001, 1, "https://example.com/watch?v=song")
	waitChan(t, notify.formatReady, "格式选项")
	if err := m.Select(req.ID, "140", true); err != nil {
		t.Fatal(err)
	}
	waitChan(t, notify.delivered, "送达通知")

	if n := atomic.LoadInt32(&post.calls); n != 1 {
		t.Errorf("后处理调用次数 = %d", n)
	}
	if got := deliver.delivered(); len(got) != 1 || got[0] != ex.path {
		t.Errorf("应回退投递原始文件, 实际 %v", got)
	}
	records := ledger.terminal()
	if len(records) != 1 || records[0].Status != StatusDelivered {
		t.Fatalf("回退后应正常送达, 实际 %+v", records)
	}
}

func TestManagerSelectionHoldsNoSlot(t *testing.T) {
	ex := &fakeExtractor{
		formats: []extractor.FormatOption{{ID: "22", Ext: "mp4", Height: 720}},
		path:    tempMedia(t),
	}
	m, _, _, notify := newTestManager(testConfig(), ex, &fakePost{})

	m.Submit(1001, 1001, 1, "https://example.com/watch?v=idle")
	waitChan(t, notify.formatReady, "格式选项")

	// 等待选择阶段不占任何槽位
	if held := m.Slots().Held(); held != 0 {
		t.Errorf("等待选择期间持有 %d 个槽位, 期望 0", held)
	}
}

func TestManagerSelectionTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.SelectionTimeout = 1
	ex := &fakeExtractor{
		formats: []extractor.FormatOption{{ID: "22", Ext: "mp4", Height: 720}},
	}
	m, ledger, _, notify := newTestManager(cfg, ex, &fakePost{})

	m.Submit(1001, 1001, 1, "https://example.com/watch?v=ignored")
	waitChan(t, notify.formatReady, "格式选项")
	kind := waitChan(t, notify.failed, "失败通知")

	if kind != errkind.SelectionTimeout {
		t.Errorf("失败归类 = %s, 期望 selection_timeout", kind)
	}
	if held := m.Slots().Held(); held != 0 {
		t.Errorf("超时后持有 %d 个槽位", held)
	}
	if len(ledger.terminal()) != 1 {
		t.Error("选择超时应写一条失败流水")
	}
}

func TestManagerCancelDuringSelection(t *testing.T) {
	ex := &fakeExtractor{
		formats: []extractor.FormatOption{{ID: "22", Ext: "mp4", Height: 720}},
	}
	m, _, _, notify := newTestManager(testConfig(), ex, &fakePost{})

	req := m.Submit(1001, 1001, 1, "https://example.com/watch?v=nvm")
	waitChan(t, notify.formatReady, "格式选项")

	if err := m.Cancel(req.ID); err != nil {
		t.Fatalf("取消失败: %v", err)
	}
	kind := waitChan(t, notify.failed, "失败通知")
	if kind != errkind.Cancelled {
		t.Errorf("失败归类 = %s, 期望 cancelled", kind)
	}

	// 请求结束后不再接受选择
	if err := m.Select(req.ID, "22", false); err == nil {
		t.Error("结束后的 Select 应返回错误")
	}
}

func TestManagerSelectUnknownRequest(t *testing.T) {
	ex := &fakeExtractor{}
	m, _, _, _ := newTestManager(testConfig(), ex, &fakePost{})

	if err := m.Select("no-such-id", "22", false); err == nil {
		t.Error("未知请求的 Select 应返回错误")
	}
	if err := m.Cancel("no-such-id"); err == nil {
		t.Error("未知请求的 Cancel 应返回错误")
	}
}

func TestManagerDeliverFailure(t *testing.T) {
	ex := &fakeExtractor{
		formats: []extractor.FormatOption{{ID: "22", Ext: "mp4", Height: 720}},
		path:    tempMedia(t),
	}
	m, ledger, deliver, notify := newTestManager(testConfig(), ex, &fakePost{})
	deliver.err = errkind.Newf(errkind.RelayUnavailable, "中转频道上传失败")

	req := m.Submit(1001, 1001, 1, "https://example.com/watch?v=big")
	waitChan(t, notify.formatReady, "格式选项")
	if err := m.Select(req.ID, "22", false); err != nil {
		t.Fatal(err)
	}
	kind := waitChan(t, notify.failed, "失败通知")

	if kind != errkind.RelayUnavailable {
		t.Errorf("失败归类 = %s, 期望 relay_unavailable", kind)
	}
	records := ledger.terminal()
	if len(records) != 1 || records[0].Status != StatusFailed {
		t.Fatalf("投递失败应写失败流水, 实际 %+v", records)
	}
}
