// Package synchronizer はページ単位のデータ同期を提供する。
//
// Synchronizerは名前付きクエリの集合を保持し、初回ロード時と、購読中のテーブルに
// 変更通知が届くたびに全クエリを再実行する（粗粒度の全件無効化）。
// カテゴリ絞り込みはストアへ再問い合わせし、テキスト検索は取得済みデータに対して
// 表示側で適用する。
package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/semesterswap/internal/metrics"
	"github.com/hitoshi/semesterswap/internal/realtime"
)

// Filter はユーザーが操作する絞り込み条件。
type Filter struct {
	Category string // ストア側で絞り込む
	Search   string // 取得済みデータに対して絞り込む
}

// QueryFunc は1つの名前付きクエリ。Filterを受け取り結果セットを返す。
type QueryFunc func(ctx context.Context, f Filter) (any, error)

// Snapshot はある時点のワーキングセット。読み取り専用として扱う。
type Snapshot struct {
	Version  uint64
	Data     map[string]any
	Filter   Filter
	LoadedAt time.Time
}

// Subscriber は変更通知の購読に必要なインターフェース。
type Subscriber interface {
	Subscribe(tables []string, ops ...realtime.Op) *realtime.Subscription
}

// Options はSynchronizerの構成。
type Options struct {
	Page    string
	Queries map[string]QueryFunc
	Tables  []string
	Hub     Subscriber
	Metrics metrics.MetricsCollector
}

// Synchronizer は1ページ分のデータ同期を行う。
type Synchronizer struct {
	page    string
	queries map[string]QueryFunc
	names   []string
	tables  []string
	hub     Subscriber
	metrics metrics.MetricsCollector

	mu      sync.Mutex
	filter  Filter
	gen     uint64 // SetCategoryのたびに増える
	snap    Snapshot
	updates chan Snapshot
}

// New はSynchronizerを生成する。
func New(opts Options) *Synchronizer {
	names := make([]string, 0, len(opts.Queries))
	for name := range opts.Queries {
		names = append(names, name)
	}
	sort.Strings(names)

	m := opts.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	return &Synchronizer{
		page:    opts.Page,
		queries: opts.Queries,
		names:   names,
		tables:  opts.Tables,
		hub:     opts.Hub,
		metrics: m,
		snap:    Snapshot{Data: map[string]any{}},
		updates: make(chan Snapshot, 1),
	}
}

// Load は全クエリを実行し、結果をワーキングセットとして保存する。
// 失敗したクエリは直前の値を保持し、エラーはまとめて返す。
// 実行中にカテゴリが変わった場合は結果を捨て、現在のスナップショットを返す。
func (s *Synchronizer) Load(ctx context.Context) (Snapshot, error) {
	start := time.Now()

	s.mu.Lock()
	f := s.filter
	gen := s.gen
	prev := s.snap.Data
	s.mu.Unlock()

	data := make(map[string]any, len(s.names))
	var errs []error
	for _, name := range s.names {
		v, err := s.queries[name](ctx, f)
		if err != nil {
			errs = append(errs, fmt.Errorf("query %s: %w", name, err))
			if old, ok := prev[name]; ok {
				data[name] = old
			}
			continue
		}
		data[name] = v
	}

	s.metrics.RecordSyncReload(s.page, time.Since(start))

	s.mu.Lock()
	if s.gen != gen {
		snap := s.snap
		s.mu.Unlock()
		slog.Debug("discarded stale reload",
			slog.String("page", s.page),
			slog.String("category", f.Category),
		)
		return snap, nil
	}
	s.snap = Snapshot{
		Version:  s.snap.Version + 1,
		Data:     data,
		Filter:   Filter{Category: f.Category, Search: s.filter.Search},
		LoadedAt: time.Now(),
	}
	snap := s.snap
	s.publishLocked(snap)
	s.mu.Unlock()

	return snap, errors.Join(errs...)
}

// Run は変更通知を購読し、通知のたびに全クエリを再実行する。
// ctxのキャンセル（ページ離脱）で購読を解除して終了する。実行中の取得は中断しない。
func (s *Synchronizer) Run(ctx context.Context) error {
	return s.Watch()(ctx)
}

// Watch は呼び出した時点で購読を成立させ、通知ループを返す。
// 初回Loadより前にWatchしておけば、その間にコミットされた変更も再取得の契機になる。
// 返されたループは必ず実行すること。ループの終了時に購読が解除される。
func (s *Synchronizer) Watch() func(ctx context.Context) error {
	if s.hub == nil || len(s.tables) == 0 {
		return func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}
	}

	sub := s.hub.Subscribe(s.tables, realtime.OpAny)
	return func(ctx context.Context) error {
		defer sub.Close()
		return s.watchLoop(ctx, sub)
	}
}

func (s *Synchronizer) watchLoop(ctx context.Context, sub *realtime.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.C:
			if !ok {
				return nil
			}
			if _, err := s.Load(ctx); err != nil {
				slog.Warn("resync failed",
					slog.String("page", s.page),
					slog.String("table", e.Table),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// SetCategory はカテゴリ絞り込みを変更し、ストアへ再問い合わせする。
func (s *Synchronizer) SetCategory(ctx context.Context, category string) (Snapshot, error) {
	s.mu.Lock()
	s.filter.Category = category
	s.gen++
	s.mu.Unlock()
	return s.Load(ctx)
}

// SetSearch はテキスト検索を変更する。ストアには問い合わせず、
// 取得済みのデータに新しい条件を付けたスナップショットを発行する。
func (s *Synchronizer) SetSearch(q string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filter.Search = q
	s.snap.Version++
	s.snap.Filter = s.filter
	snap := s.snap
	s.publishLocked(snap)
	return snap
}

// Snapshot は現在のワーキングセットを返す。
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Updates は再取得のたびに新しいスナップショットを受け取るチャネルを返す。
// 読み手が遅い場合は最新のスナップショットだけが残る。
func (s *Synchronizer) Updates() <-chan Snapshot {
	return s.updates
}

func (s *Synchronizer) publishLocked(snap Snapshot) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- snap:
	default:
	}
}
