// Package dispatcher はユーザー操作をストアへの書き込みに変換する（ミューテーションディスパッチャ）。
//
// 書き込みは楽観的更新を行わず、ストアの応答を待ってから結果を返す。
// 画面の再描画は変更通知を受けたSynchronizerの全件再取得に任せる。
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/semesterswap/internal/metrics"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/realtime"
	"github.com/hitoshi/semesterswap/internal/repository"
	"github.com/hitoshi/semesterswap/internal/security"
	"github.com/hitoshi/semesterswap/internal/storage"
)

// 操作名（メトリクスのactionラベル）
const (
	ActionCreateListing = "create_listing"
	ActionMarkSold      = "mark_sold"
	ActionDeleteListing = "delete_listing"
	ActionAdminDelete   = "admin_delete_listing"
	ActionSave          = "save"
	ActionUnsave        = "unsave"
	ActionReport        = "report"
	ActionDismissReport = "dismiss_report"
)

// 操作結果（メトリクスのoutcomeラベル）
const (
	outcomeOK    = "ok"
	outcomeNoop  = "noop"
	outcomeError = "error"
)

// Notifier は書き込み後の変更通知の発行先。
type Notifier interface {
	Publish(e realtime.Event)
}

// ListingInput は出品フォームの入力。
type ListingInput struct {
	FullName    string
	Phone       string
	Title       string
	Description string
	Price       float64
	Category    string
	Condition   string
	Images      []storage.Image
}

// Deps はDispatcherの依存。
type Deps struct {
	Profiles  repository.ProfileRepository
	Items     repository.ItemRepository
	Saved     repository.SavedItemRepository
	Reports   repository.ReportRepository
	Store     storage.ObjectStore
	Sanitizer security.TextSanitizer
	Notifier  Notifier
	Metrics   metrics.MetricsCollector
}

// Dispatcher はユーザー操作を実行する。
type Dispatcher struct {
	profiles  repository.ProfileRepository
	items     repository.ItemRepository
	saved     repository.SavedItemRepository
	reports   repository.ReportRepository
	store     storage.ObjectStore
	sanitizer security.TextSanitizer
	notifier  Notifier
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// New はDispatcherを生成する。
func New(deps Deps) *Dispatcher {
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	san := deps.Sanitizer
	if san == nil {
		san = security.NewTextSanitizer()
	}
	return &Dispatcher{
		profiles:  deps.Profiles,
		items:     deps.Items,
		saved:     deps.Saved,
		reports:   deps.Reports,
		store:     deps.Store,
		sanitizer: san,
		notifier:  deps.Notifier,
		metrics:   m,
		now:       time.Now,
	}
}

// CreateListing は出品者の連絡先を更新し、画像をアップロードしてから出品を作成する。
// 途中のステップが失敗した場合は以降を実行せずにエラーを返す。
// それまでに完了した連絡先更新・アップロード済み画像は取り消さない。
func (d *Dispatcher) CreateListing(ctx context.Context, sellerID string, in ListingInput) (*model.Item, error) {
	item, err := d.validateListing(sellerID, in)
	if err != nil {
		d.metrics.RecordMutation(ActionCreateListing, outcomeError)
		return nil, err
	}

	fullName := d.sanitizer.Sanitize(in.FullName)
	phone := strings.TrimSpace(in.Phone)
	if err := d.profiles.UpdateContact(ctx, sellerID, fullName, phone); err != nil {
		d.metrics.RecordMutation(ActionCreateListing, outcomeError)
		return nil, err
	}
	d.publish(realtime.TableProfiles, realtime.OpUpdate)

	urls := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		url, err := d.store.Upload(ctx, sellerID, img)
		if err != nil {
			if len(urls) > 0 {
				slog.Warn("listing aborted after partial image upload",
					slog.String("seller_id", sellerID),
					slog.Int("uploaded", len(urls)),
				)
			}
			d.metrics.RecordImagesUploaded(len(urls))
			d.metrics.RecordMutation(ActionCreateListing, outcomeError)
			if errors.Is(err, storage.ErrUnsupportedImage) {
				return nil, model.NewInvalidImageError(img.Filename)
			}
			return nil, err
		}
		urls = append(urls, url)
	}
	d.metrics.RecordImagesUploaded(len(urls))

	item.Images = urls
	if err := d.items.Create(ctx, item); err != nil {
		d.metrics.RecordMutation(ActionCreateListing, outcomeError)
		return nil, err
	}

	d.publish(realtime.TableItems, realtime.OpInsert)
	d.metrics.RecordMutation(ActionCreateListing, outcomeOK)
	slog.Info("listing created",
		slog.String("item_id", item.ID),
		slog.String("seller_id", sellerID),
		slog.Int("images", len(urls)),
	)
	return item, nil
}

// validateListing は副作用の前に入力を検証し、保存する出品を組み立てる。
// 画像形式もここでマジックバイトから判定する。
func (d *Dispatcher) validateListing(sellerID string, in ListingInput) (*model.Item, error) {
	if strings.TrimSpace(in.FullName) == "" || strings.TrimSpace(in.Phone) == "" {
		return nil, model.NewProfileIncompleteError()
	}

	title := d.sanitizer.Sanitize(in.Title)
	if title == "" {
		return nil, model.NewInvalidListingError("title is required")
	}
	if in.Price < 0 {
		return nil, model.NewInvalidListingError("price must not be negative")
	}
	if !model.IsValidCategory(in.Category) {
		return nil, model.NewInvalidCategoryError(in.Category)
	}
	if !model.IsValidCondition(in.Condition) {
		return nil, model.NewInvalidListingError("unknown condition: " + in.Condition)
	}
	if len(in.Images) > model.MaxItemImages {
		return nil, model.NewTooManyImagesError(len(in.Images))
	}
	for _, img := range in.Images {
		if _, err := storage.DetectImage(img.Data); err != nil {
			return nil, model.NewInvalidImageError(img.Filename)
		}
	}

	return &model.Item{
		ID:          uuid.New().String(),
		SellerID:    sellerID,
		Title:       title,
		Description: d.sanitizer.Sanitize(in.Description),
		Price:       in.Price,
		Category:    in.Category,
		Condition:   in.Condition,
		CreatedAt:   d.now(),
	}, nil
}

// MarkSold は出品を売却済みにする。buyerIDは任意。
// 失敗は呼び出し元に返さずWARNログのみ残す。
func (d *Dispatcher) MarkSold(ctx context.Context, sellerID, itemID, buyerID string) {
	if !isID(itemID) {
		d.metrics.RecordMutation(ActionMarkSold, outcomeNoop)
		return
	}
	if buyerID != "" && !isID(buyerID) {
		slog.Warn("mark sold ignoring malformed buyer id",
			slog.String("item_id", itemID),
			slog.String("buyer_id", buyerID),
		)
		buyerID = ""
	}
	ok, err := d.items.MarkSold(ctx, itemID, sellerID, buyerID)
	if err != nil {
		d.metrics.RecordMutation(ActionMarkSold, outcomeError)
		slog.Warn("mark sold failed",
			slog.String("item_id", itemID),
			slog.String("seller_id", sellerID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		d.metrics.RecordMutation(ActionMarkSold, outcomeNoop)
		return
	}

	d.publish(realtime.TableItems, realtime.OpUpdate)
	d.publish(realtime.TableSalesHistory, realtime.OpInsert)
	d.metrics.RecordMutation(ActionMarkSold, outcomeOK)
}

// DeleteListing は出品者本人の出品を削除する。
// 対象が無い場合（他人の出品・削除済み）は何もしない。
func (d *Dispatcher) DeleteListing(ctx context.Context, sellerID, itemID string) error {
	if !isID(itemID) {
		d.metrics.RecordMutation(ActionDeleteListing, outcomeNoop)
		return nil
	}
	n, err := d.items.Delete(ctx, itemID, sellerID)
	if err != nil {
		d.metrics.RecordMutation(ActionDeleteListing, outcomeError)
		return err
	}
	if n == 0 {
		d.metrics.RecordMutation(ActionDeleteListing, outcomeNoop)
		return nil
	}

	d.publish(realtime.TableItems, realtime.OpDelete)
	d.metrics.RecordMutation(ActionDeleteListing, outcomeOK)
	return nil
}

// AdminDeleteListing は管理者として任意の出品を削除する。
// 削除行数が0の場合はストア障害と区別してPERMISSION_DENIEDを返す。
func (d *Dispatcher) AdminDeleteListing(ctx context.Context, itemID string) error {
	if !isID(itemID) {
		d.metrics.RecordMutation(ActionAdminDelete, outcomeNoop)
		return model.NewPermissionDeniedError()
	}
	n, err := d.items.Delete(ctx, itemID, "")
	if err != nil {
		d.metrics.RecordMutation(ActionAdminDelete, outcomeError)
		return err
	}
	if n == 0 {
		d.metrics.RecordMutation(ActionAdminDelete, outcomeNoop)
		return model.NewPermissionDeniedError()
	}

	d.publish(realtime.TableItems, realtime.OpDelete)
	d.publish(realtime.TableReports, realtime.OpDelete)
	d.metrics.RecordMutation(ActionAdminDelete, outcomeOK)
	slog.Info("listing removed by admin", slog.String("item_id", itemID))
	return nil
}

// Save は出品をcheckoutリストに保存する。既に保存済みなら何もしない。
func (d *Dispatcher) Save(ctx context.Context, userID, itemID string) error {
	if !isID(itemID) {
		d.metrics.RecordMutation(ActionSave, outcomeError)
		return model.NewItemNotFoundError(itemID)
	}
	item, err := d.items.FindByID(ctx, itemID)
	if err != nil {
		d.metrics.RecordMutation(ActionSave, outcomeError)
		return err
	}
	if item == nil {
		d.metrics.RecordMutation(ActionSave, outcomeError)
		return model.NewItemNotFoundError(itemID)
	}

	if err := d.saved.Save(ctx, userID, itemID); err != nil {
		d.metrics.RecordMutation(ActionSave, outcomeError)
		return err
	}

	d.publish(realtime.TableSavedItems, realtime.OpInsert)
	d.metrics.RecordMutation(ActionSave, outcomeOK)
	return nil
}

// Unsave は出品をcheckoutリストから外す。
func (d *Dispatcher) Unsave(ctx context.Context, userID, itemID string) error {
	if !isID(itemID) {
		d.metrics.RecordMutation(ActionUnsave, outcomeNoop)
		return nil
	}
	if err := d.saved.Unsave(ctx, userID, itemID); err != nil {
		d.metrics.RecordMutation(ActionUnsave, outcomeError)
		return err
	}

	d.publish(realtime.TableSavedItems, realtime.OpDelete)
	d.metrics.RecordMutation(ActionUnsave, outcomeOK)
	return nil
}

// ReportItem は出品を通報する。理由が空（空白のみを含む）の場合は何もしない。
func (d *Dispatcher) ReportItem(ctx context.Context, reporterID, itemID, reason string) error {
	reason = d.sanitizer.Sanitize(reason)
	if reason == "" {
		d.metrics.RecordMutation(ActionReport, outcomeNoop)
		return nil
	}
	if !isID(itemID) {
		d.metrics.RecordMutation(ActionReport, outcomeError)
		return model.NewItemNotFoundError(itemID)
	}

	report := &model.Report{
		ID:         uuid.New().String(),
		ItemID:     itemID,
		ReporterID: reporterID,
		Reason:     reason,
		CreatedAt:  d.now(),
	}
	if err := d.reports.Create(ctx, report); err != nil {
		d.metrics.RecordMutation(ActionReport, outcomeError)
		return err
	}

	d.publish(realtime.TableReports, realtime.OpInsert)
	d.metrics.RecordMutation(ActionReport, outcomeOK)
	return nil
}

// DismissReport は通報を取り下げる。出品には触れない。
func (d *Dispatcher) DismissReport(ctx context.Context, reportID string) error {
	if !isID(reportID) {
		d.metrics.RecordMutation(ActionDismissReport, outcomeNoop)
		return model.NewReportNotFoundError(reportID)
	}
	n, err := d.reports.Delete(ctx, reportID)
	if err != nil {
		d.metrics.RecordMutation(ActionDismissReport, outcomeError)
		return err
	}
	if n == 0 {
		d.metrics.RecordMutation(ActionDismissReport, outcomeNoop)
		return model.NewReportNotFoundError(reportID)
	}

	d.publish(realtime.TableReports, realtime.OpDelete)
	d.metrics.RecordMutation(ActionDismissReport, outcomeOK)
	return nil
}

// isID はidがUUID形式かを返す。主キーはすべてuuid型のため、
// 形式外の値は「該当行なし」と同じ扱いにしてストアには渡さない。
func isID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func (d *Dispatcher) publish(table string, op realtime.Op) {
	if d.notifier == nil {
		return
	}
	d.notifier.Publish(realtime.Event{Table: table, Op: op})
}
