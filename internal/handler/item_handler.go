package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/semesterswap/internal/dispatcher"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/storage"
	"github.com/hitoshi/semesterswap/internal/view"
)

// multipartMemory はParseMultipartFormがメモリに保持する上限。超過分は一時ファイルになる。
const multipartMemory = 8 << 20

// MutationService は出品・保存・通報の書き込みを行うサービスインターフェース。
// dispatcher.Dispatcherが実装する。
type MutationService interface {
	CreateListing(ctx context.Context, sellerID string, in dispatcher.ListingInput) (*model.Item, error)
	MarkSold(ctx context.Context, sellerID, itemID, buyerID string)
	DeleteListing(ctx context.Context, sellerID, itemID string) error
	AdminDeleteListing(ctx context.Context, itemID string) error
	Save(ctx context.Context, userID, itemID string) error
	Unsave(ctx context.Context, userID, itemID string) error
	ReportItem(ctx context.Context, reporterID, itemID, reason string) error
	DismissReport(ctx context.Context, reportID string) error
}

// ItemHandlerConfig は出品ハンドラーの設定。
type ItemHandlerConfig struct {
	MaxUploadSize int64 // 画像1枚あたりの上限バイト数
}

// ItemHandler は出品に対するユーザー操作のHTTPハンドラー。
type ItemHandler struct {
	service  MutationService
	config   ItemHandlerConfig
	validate *validator.Validate
}

// NewItemHandler はItemHandlerを生成する。
func NewItemHandler(service MutationService, config ItemHandlerConfig) *ItemHandler {
	return &ItemHandler{
		service:  service,
		config:   config,
		validate: validator.New(),
	}
}

// createListingRequest は出品フォームのテキスト項目。
// 必須項目とカテゴリ・状態の判定はdispatcherが行う。
type createListingRequest struct {
	FullName    string  `validate:"max=100"`
	Phone       string  `validate:"max=30"`
	Title       string  `validate:"max=120"`
	Description string  `validate:"max=2000"`
	Price       float64 `validate:"gte=0"`
	Category    string
	Condition   string
}

// markSoldRequest は売却済み登録リクエストのボディ。ボディは省略できる。
type markSoldRequest struct {
	BuyerID string `json:"buyer_id"`
}

// reportRequest は通報リクエストのボディ。
type reportRequest struct {
	Reason string `json:"reason"`
}

// CreateListing は出品を作成する。
// POST /api/items (multipart/form-data: full_name, phone, title, description, price, category, condition, images[])
func (h *ItemHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize*model.MaxItemImages+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		handleServiceError(w, newInvalidRequestError("フォームの解析に失敗しました。"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
	if err != nil {
		handleServiceError(w, model.NewInvalidListingError("price must be a number"))
		return
	}

	req := createListingRequest{
		FullName:    r.FormValue("full_name"),
		Phone:       r.FormValue("phone"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Price:       price,
		Category:    r.FormValue("category"),
		Condition:   r.FormValue("condition"),
	}
	if err := h.validate.Struct(req); err != nil {
		handleServiceError(w, newValidationError(err))
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) > model.MaxItemImages {
		handleServiceError(w, model.NewTooManyImagesError(len(files)))
		return
	}

	images := make([]storage.Image, 0, len(files))
	for _, fh := range files {
		img, err := h.readImage(fh)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		images = append(images, img)
	}

	item, err := h.service.CreateListing(r.Context(), userID, dispatcher.ListingInput{
		FullName:    req.FullName,
		Phone:       req.Phone,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Condition:   req.Condition,
		Images:      images,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view.NewItemResponse(item))
}

// readImage はアップロードされた画像を上限サイズまで読み込む。
func (h *ItemHandler) readImage(fh *multipart.FileHeader) (storage.Image, error) {
	if fh.Size > h.config.MaxUploadSize {
		return storage.Image{}, model.NewInvalidImageError(fmt.Sprintf("%s exceeds %d bytes", fh.Filename, h.config.MaxUploadSize))
	}

	f, err := fh.Open()
	if err != nil {
		return storage.Image{}, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.config.MaxUploadSize))
	if err != nil {
		return storage.Image{}, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	return storage.Image{Filename: fh.Filename, Data: data}, nil
}

// MarkSold は出品を売却済みにする。失敗してもクライアントには成功として応答する。
// POST /api/items/{id}/sold
func (h *ItemHandler) MarkSold(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	var req markSoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		handleServiceError(w, newInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	h.service.MarkSold(r.Context(), userID, chi.URLParam(r, "id"), req.BuyerID)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteListing は出品者本人の出品を削除する。
// DELETE /api/items/{id}
func (h *ItemHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteListing(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Save は出品をcheckoutリストに保存する。
// POST /api/items/{id}/save
func (h *ItemHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Save(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unsave は出品をcheckoutリストから外す。
// DELETE /api/items/{id}/save
func (h *ItemHandler) Unsave(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Unsave(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report は出品を通報する。理由が空の場合は何もせず成功を返す。
// POST /api/items/{id}/reports
func (h *ItemHandler) Report(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUserID(w, r)
	if !ok {
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		handleServiceError(w, newInvalidRequestError("リクエストボディの解析に失敗しました。"))
		return
	}

	if err := h.service.ReportItem(r.Context(), userID, chi.URLParam(r, "id"), req.Reason); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminDeleteListing は管理者として出品を削除する。
// DELETE /api/admin/items/{id}
func (h *ItemHandler) AdminDeleteListing(w http.ResponseWriter, r *http.Request) {
	if err := h.service.AdminDeleteListing(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DismissReport は通報を取り下げる。
// DELETE /api/admin/reports/{id}
func (h *ItemHandler) DismissReport(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DismissReport(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// compile-time interface check
var _ MutationService = (*dispatcher.Dispatcher)(nil)
