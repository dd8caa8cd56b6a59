package trigger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/nao1215/chatsync/pkg/docstore"
	"github.com/nao1215/chatsync/pkg/event"
	"github.com/nao1215/chatsync/pkg/metrics"
)

var (
	// ErrUnknownSchedule は登録されていないスケジュール名であることを表す。
	ErrUnknownSchedule = errors.New("スケジュールが登録されていません")
	// ErrUnknownCallable は登録されていない呼び出し名であることを表す。
	ErrUnknownCallable = errors.New("呼び出しが登録されていません")
	// ErrInternal は直接呼び出しのハンドラが内部で失敗したことを表す。
	ErrInternal = errors.New("internal")
)

// 実行結果のメトリクスラベル。
const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomePanic    = "panic"
	outcomeRejected = "rejected"
)

// route はパスパターンとハンドラの組。
type route[E any] struct {
	pattern string
	handler EventHandler[E]
}

// Adapter はイベントを登録済みのハンドラに配送する。
// 各イベントは独立した呼び出しとして扱い、呼び出し間で状態を共有しない。
type Adapter struct {
	mu        sync.RWMutex
	created   []route[event.DocumentCreated]
	written   []route[event.DocumentWritten]
	timers    map[string]EventHandler[event.TimerFired]
	callables map[string]CallableHandler

	metrics *metrics.Metrics
	// inflight は変更通知から非同期に起動した呼び出しの完了を待つ。
	inflight sync.WaitGroup
}

var _ docstore.Observer = (*Adapter)(nil)

// Option は Adapter の生成オプション。
type Option func(*Adapter)

// WithMetrics は呼び出し結果を記録するメトリクスを設定する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// NewAdapter は新しい Adapter を生成する。
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		timers:    make(map[string]EventHandler[event.TimerFired]),
		callables: make(map[string]CallableHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnDocumentCreated はパターンに一致するドキュメントの作成時に呼ばれるハンドラを登録する。
func (a *Adapter) OnDocumentCreated(pattern string, h EventHandler[event.DocumentCreated]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, route[event.DocumentCreated]{pattern: pattern, handler: h})
}

// OnDocumentWritten はパターンに一致するドキュメントの作成・更新・削除時に呼ばれるハンドラを登録する。
func (a *Adapter) OnDocumentWritten(pattern string, h EventHandler[event.DocumentWritten]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.written = append(a.written, route[event.DocumentWritten]{pattern: pattern, handler: h})
}

// OnSchedule はスケジュール名に対するハンドラを登録する。
func (a *Adapter) OnSchedule(name string, h EventHandler[event.TimerFired]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timers[name] = h
}

// OnCall は直接呼び出し名に対するハンドラを登録する。
func (a *Adapter) OnCall(name string, h CallableHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callables[name] = h
}

// DeliverCreated は作成イベントを一致する全ハンドラに順に配送し、配送したハンドラ数を返す。
// ハンドラの失敗は記録するだけで返さない。
func (a *Adapter) DeliverCreated(ctx context.Context, ev event.DocumentCreated) int {
	a.mu.RLock()
	routes := append([]route[event.DocumentCreated](nil), a.created...)
	a.mu.RUnlock()

	n := 0
	for _, r := range routes {
		params, ok := event.MatchPath(r.pattern, ev.Path)
		if !ok {
			continue
		}
		ev := ev
		ev.Params = params
		invoke(ctx, a.metrics, event.KindDocumentCreated, ev.Path, r.handler, ev)
		n++
	}
	return n
}

// DeliverWritten は書き込みイベントを一致する全ハンドラに順に配送し、配送したハンドラ数を返す。
// ハンドラの失敗は記録するだけで返さない。
func (a *Adapter) DeliverWritten(ctx context.Context, ev event.DocumentWritten) int {
	a.mu.RLock()
	routes := append([]route[event.DocumentWritten](nil), a.written...)
	a.mu.RUnlock()

	n := 0
	for _, r := range routes {
		params, ok := event.MatchPath(r.pattern, ev.Path)
		if !ok {
			continue
		}
		ev := ev
		ev.Params = params
		invoke(ctx, a.metrics, event.KindDocumentWritten, ev.Path, r.handler, ev)
		n++
	}
	return n
}

// Fire はスケジュール名に対応するハンドラを実行する。
// 未登録の名前の場合のみ ErrUnknownSchedule を返し、ハンドラの失敗は返さない。
func (a *Adapter) Fire(ctx context.Context, name string, ev event.TimerFired) error {
	a.mu.RLock()
	h, ok := a.timers[name]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	invoke(ctx, a.metrics, event.KindTimerFired, name, h, ev)
	return nil
}

// Call は直接呼び出しを実行し、結果または拒否理由を返す。
// ハンドラのパニックと分類できない失敗は ErrInternal として返す。
func (a *Adapter) Call(ctx context.Context, req event.CallableRequest) (result any, err error) {
	a.mu.RLock()
	h, ok := a.callables[req.Name]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCallable, req.Name)
	}

	kind := string(event.KindCallable)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Trigger] %s %s でパニックが発生: %v", kind, req.Name, r)
			a.metrics.Invocation(kind, outcomePanic)
			result, err = nil, ErrInternal
		}
	}()

	result, err = h.Call(ctx, req)
	switch {
	case err == nil:
		a.metrics.Invocation(kind, outcomeOK)
		return result, nil
	case errors.Is(err, event.ErrInvalidArgument), errors.Is(err, event.ErrUnauthenticated):
		log.Printf("[Trigger] %s %s を拒否しました: %v", kind, req.Name, err)
		a.metrics.Invocation(kind, outcomeRejected)
		return nil, err
	default:
		log.Printf("[Trigger] %s %s の実行に失敗: %v", kind, req.Name, err)
		a.metrics.Invocation(kind, outcomeError)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
}

// Observe はドキュメントストアの変更通知を受け取り、ハンドラを非同期に起動する。
// 作成時は作成イベントと書き込みイベントの両方を配送する。
func (a *Adapter) Observe(ctx context.Context, ch docstore.Change) {
	// コミットした書き込み元のコンテキストが終了しても処理を続ける。
	ctx = context.WithoutCancel(ctx)
	path := ch.Ref.Path()

	wantCreated, wantWritten := a.subscribed(path)
	if wantCreated && ch.Created() {
		created := event.DocumentCreated{Path: path, Value: ch.After}
		a.inflight.Go(func() { a.DeliverCreated(ctx, created) })
	}
	if wantWritten {
		written := event.DocumentWritten{Path: path, Before: ch.Before, After: ch.After}
		a.inflight.Go(func() { a.DeliverWritten(ctx, written) })
	}
}

// subscribed はパスに一致する作成・書き込みハンドラがあるかを返す。
func (a *Adapter) subscribed(path string) (created, written bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, r := range a.created {
		if _, ok := event.MatchPath(r.pattern, path); ok {
			created = true
			break
		}
	}
	for _, r := range a.written {
		if _, ok := event.MatchPath(r.pattern, path); ok {
			written = true
			break
		}
	}
	return created, written
}

// Wait は変更通知から起動した全ての呼び出しの完了を待つ。
func (a *Adapter) Wait() {
	a.inflight.Wait()
}

// invoke はハンドラを1回実行し、失敗とパニックを記録する。
func invoke[E any](ctx context.Context, m *metrics.Metrics, kind event.Kind, source string, h EventHandler[E], ev E) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Trigger] %s %s でパニックが発生: %v", kind, source, r)
			m.Invocation(string(kind), outcomePanic)
		}
	}()

	if err := h.Handle(ctx, ev); err != nil {
		log.Printf("[Trigger] %s %s の処理に失敗: %v", kind, source, err)
		m.Invocation(string(kind), outcomeError)
		return
	}
	m.Invocation(string(kind), outcomeOK)
}
