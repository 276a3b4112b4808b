package view

import (
	"context"

	"github.com/hitoshi/semesterswap/internal/guard"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/realtime"
	"github.com/hitoshi/semesterswap/internal/synchronizer"
)

// MarketplaceView はマーケットプレイスのJSON表現。
type MarketplaceView struct {
	Version    uint64         `json:"version"`
	Category   string         `json:"category"`
	Search     string         `json:"search"`
	Categories []string       `json:"categories"`
	Items      []ItemResponse `json:"items"`
	SavedIDs   []string       `json:"saved_ids"`
}

// InventoryView は出品者の在庫ページのJSON表現。
type InventoryView struct {
	Version     uint64          `json:"version"`
	Items       []ItemResponse  `json:"items"`
	SoldHistory []SalesResponse `json:"sold_history"`
}

// CheckoutView はcheckoutリストのJSON表現。
type CheckoutView struct {
	Version         uint64          `json:"version"`
	Items           []ItemResponse  `json:"items"`
	Total           float64         `json:"total"`
	PurchaseHistory []SalesResponse `json:"purchase_history"`
}

// AdminView は管理ページのJSON表現。
type AdminView struct {
	Version   uint64            `json:"version"`
	Stats     StatsResponse     `json:"stats"`
	Users     []ProfileResponse `json:"users"`
	LiveItems []ItemResponse    `json:"live_items"`
	History   []SalesResponse   `json:"history"`
	Reports   []ReportResponse  `json:"reports"`
}

// ListItemView は出品フォームの初期値。
type ListItemView struct {
	Version    uint64   `json:"version"`
	FullName   string   `json:"full_name"`
	Phone      string   `json:"phone"`
	Categories []string `json:"categories"`
	Conditions []string `json:"conditions"`
	MaxImages  int      `json:"max_images"`
}

func (b *Builder) marketplace(s *guard.Session) (map[string]synchronizer.QueryFunc, []string, func(synchronizer.Snapshot) any) {
	queries := map[string]synchronizer.QueryFunc{
		QueryItems: func(ctx context.Context, f synchronizer.Filter) (any, error) {
			return b.deps.Items.ListActive(ctx, s.UserID, f.Category)
		},
		QuerySavedIDs: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			items, err := b.activeSavedItems(ctx, s.UserID)
			if err != nil {
				return nil, err
			}
			ids := make([]string, 0, len(items))
			for _, item := range items {
				ids = append(ids, item.ID)
			}
			return ids, nil
		},
	}

	present := func(snap synchronizer.Snapshot) any {
		items := dataOf[[]*model.Item](snap, QueryItems)
		filtered := make([]ItemResponse, 0, len(items))
		for _, item := range items {
			if item.MatchesSearch(snap.Filter.Search) {
				filtered = append(filtered, NewItemResponse(item))
			}
		}
		savedIDs := dataOf[[]string](snap, QuerySavedIDs)
		if savedIDs == nil {
			savedIDs = []string{}
		}
		category := snap.Filter.Category
		if category == "" {
			category = model.CategoryAll
		}
		return MarketplaceView{
			Version:    snap.Version,
			Category:   category,
			Search:     snap.Filter.Search,
			Categories: append([]string{model.CategoryAll}, model.Categories...),
			Items:      filtered,
			SavedIDs:   savedIDs,
		}
	}

	return queries, []string{realtime.TableItems, realtime.TableSavedItems}, present
}

func (b *Builder) inventory(s *guard.Session) (map[string]synchronizer.QueryFunc, []string, func(synchronizer.Snapshot) any) {
	queries := map[string]synchronizer.QueryFunc{
		QueryItems: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.deps.Items.ListActiveBySeller(ctx, s.UserID)
		},
		QuerySoldHistory: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.deps.Sales.ListBySeller(ctx, s.UserID)
		},
	}

	present := func(snap synchronizer.Snapshot) any {
		return InventoryView{
			Version:     snap.Version,
			Items:       newItemResponses(dataOf[[]*model.Item](snap, QueryItems)),
			SoldHistory: newSalesResponses(dataOf[[]*model.SalesRecord](snap, QuerySoldHistory)),
		}
	}

	return queries, []string{realtime.TableItems, realtime.TableSalesHistory}, present
}

func (b *Builder) checkout(s *guard.Session) (map[string]synchronizer.QueryFunc, []string, func(synchronizer.Snapshot) any) {
	queries := map[string]synchronizer.QueryFunc{
		QueryItems: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.activeSavedItems(ctx, s.UserID)
		},
		QueryPurchaseHistory: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.deps.Sales.ListByBuyer(ctx, s.UserID)
		},
	}

	present := func(snap synchronizer.Snapshot) any {
		items := dataOf[[]*model.Item](snap, QueryItems)
		var total float64
		for _, item := range items {
			total += item.Price
		}
		return CheckoutView{
			Version:         snap.Version,
			Items:           newItemResponses(items),
			Total:           total,
			PurchaseHistory: newSalesResponses(dataOf[[]*model.SalesRecord](snap, QueryPurchaseHistory)),
		}
	}

	return queries, []string{realtime.TableSavedItems, realtime.TableItems, realtime.TableSalesHistory}, present
}

func (b *Builder) listItem(s *guard.Session) (map[string]synchronizer.QueryFunc, []string, func(synchronizer.Snapshot) any) {
	queries := map[string]synchronizer.QueryFunc{
		QueryProfile: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.deps.Profiles.FindByID(ctx, s.UserID)
		},
	}

	present := func(snap synchronizer.Snapshot) any {
		v := ListItemView{
			Version:    snap.Version,
			Categories: model.Categories,
			Conditions: model.Conditions,
			MaxImages:  model.MaxItemImages,
		}
		if p := dataOf[*model.Profile](snap, QueryProfile); p != nil {
			v.FullName = p.FullName
			v.Phone = p.Phone
		}
		return v
	}

	return queries, []string{realtime.TableProfiles}, present
}

func (b *Builder) admin() (map[string]synchronizer.QueryFunc, []string, func(synchronizer.Snapshot) any) {
	queries := map[string]synchronizer.QueryFunc{
		QueryStats: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			active, err := b.deps.Items.CountActive(ctx)
			if err != nil {
				return nil, err
			}
			sold, err := b.deps.Sales.Count(ctx)
			if err != nil {
				return nil, err
			}
			users, err := b.deps.Profiles.Count(ctx)
			if err != nil {
				return nil, err
			}
			return model.AdminStats{Total: active + sold, Sold: sold, Active: active, Users: users}, nil
		},
		QueryUsers: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.deps.Profiles.List(ctx)
		},
		QueryLiveItems: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.deps.Items.ListActive(ctx, "", "")
		},
		QueryHistory: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.deps.Sales.ListAll(ctx)
		},
		QueryReports: func(ctx context.Context, _ synchronizer.Filter) (any, error) {
			return b.deps.Reports.ListWithDetails(ctx)
		},
	}

	present := func(snap synchronizer.Snapshot) any {
		stats := dataOf[model.AdminStats](snap, QueryStats)
		return AdminView{
			Version:   snap.Version,
			Stats:     StatsResponse{Total: stats.Total, Sold: stats.Sold, Active: stats.Active, Users: stats.Users},
			Users:     newProfileResponses(dataOf[[]*model.Profile](snap, QueryUsers)),
			LiveItems: newItemResponses(dataOf[[]*model.Item](snap, QueryLiveItems)),
			History:   newSalesResponses(dataOf[[]*model.SalesRecord](snap, QueryHistory)),
			Reports:   newReportResponses(dataOf[[]*model.Report](snap, QueryReports)),
		}
	}

	tables := []string{realtime.TableItems, realtime.TableProfiles, realtime.TableReports, realtime.TableSalesHistory}
	return queries, tables, present
}
