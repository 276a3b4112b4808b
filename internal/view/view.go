// Package view はページごとのビューモデルを提供する。
// 各ページは1つのSynchronizerと、そのスナップショットをJSON表現に変換する関数からなる。
package view

import (
	"context"
	"fmt"

	"github.com/hitoshi/semesterswap/internal/guard"
	"github.com/hitoshi/semesterswap/internal/metrics"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/repository"
	"github.com/hitoshi/semesterswap/internal/synchronizer"
)

// クエリ名
const (
	QueryItems           = "items"
	QuerySavedIDs        = "saved_ids"
	QuerySoldHistory     = "sold_history"
	QueryPurchaseHistory = "purchase_history"
	QueryStats           = "stats"
	QueryUsers           = "users"
	QueryLiveItems       = "live_items"
	QueryHistory         = "history"
	QueryReports         = "reports"
	QueryProfile         = "profile"
)

// Deps はビューモデルが参照するリポジトリ群。
type Deps struct {
	Profiles repository.ProfileRepository
	Items    repository.ItemRepository
	Saved    repository.SavedItemRepository
	Reports  repository.ReportRepository
	Sales    repository.SalesRepository
}

// View は1ページ分のビューモデル。
type View struct {
	Page    guard.Page
	Sync    *synchronizer.Synchronizer
	present func(synchronizer.Snapshot) any
}

// Present はスナップショットをページのJSON表現に変換する。
func (v *View) Present(snap synchronizer.Snapshot) any {
	return v.present(snap)
}

// Builder はセッションとページからViewを組み立てる。
type Builder struct {
	deps    Deps
	hub     synchronizer.Subscriber
	metrics metrics.MetricsCollector
}

// NewBuilder はBuilderを生成する。
func NewBuilder(deps Deps, hub synchronizer.Subscriber, m metrics.MetricsCollector) *Builder {
	return &Builder{deps: deps, hub: hub, metrics: m}
}

// Build は指定ページのViewを生成する。セッションはガードを通過済みであること。
func (b *Builder) Build(page guard.Page, s *guard.Session) (*View, error) {
	if s == nil {
		return nil, fmt.Errorf("session is required to build %s view", page)
	}

	var (
		queries map[string]synchronizer.QueryFunc
		tables  []string
		present func(synchronizer.Snapshot) any
	)

	switch page {
	case guard.PageMarketplace:
		queries, tables, present = b.marketplace(s)
	case guard.PageInventory:
		queries, tables, present = b.inventory(s)
	case guard.PageCheckout:
		queries, tables, present = b.checkout(s)
	case guard.PageListItem:
		queries, tables, present = b.listItem(s)
	case guard.PageAdmin:
		queries, tables, present = b.admin()
	default:
		return nil, fmt.Errorf("unknown page: %s", page)
	}

	return &View{
		Page: page,
		Sync: synchronizer.New(synchronizer.Options{
			Page:    string(page),
			Queries: queries,
			Tables:  tables,
			Hub:     b.hub,
			Metrics: b.metrics,
		}),
		present: present,
	}, nil
}

// activeSavedItems はユーザーの保存のうち有効なもの（出品が存在し未売却）を返す。
// マーケットプレイスの保存済みIDとcheckoutの両方がこの関数を通る。
func (b *Builder) activeSavedItems(ctx context.Context, userID string) ([]*model.Item, error) {
	saved, err := b.deps.Saved.ListWithItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]*model.Item, 0, len(saved))
	for _, sv := range saved {
		if model.IsActiveSave(sv.Item) {
			items = append(items, sv.Item)
		}
	}
	return items, nil
}

func dataOf[T any](snap synchronizer.Snapshot, name string) T {
	v, _ := snap.Data[name].(T)
	return v
}
