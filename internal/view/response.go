package view

import (
	"time"

	"github.com/hitoshi/semesterswap/internal/model"
)

// ItemResponse は出品のJSON表現。
type ItemResponse struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       float64         `json:"price"`
	Category    string          `json:"category"`
	Condition   string          `json:"condition"`
	Images      []string        `json:"images"`
	CoverImage  string          `json:"cover_image"`
	IsSold      bool            `json:"is_sold"`
	SoldAt      *time.Time      `json:"sold_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Seller      *SellerResponse `json:"seller,omitempty"`
}

// SellerResponse は出品者の連絡先のJSON表現。
type SellerResponse struct {
	FullName   string `json:"full_name"`
	Department string `json:"department"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// SalesResponse は販売履歴のJSON表現。
type SalesResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	SellerName  string    `json:"seller_name"`
	SellerEmail string    `json:"seller_email"`
	BuyerName   *string   `json:"buyer_name"`
	BuyerEmail  *string   `json:"buyer_email"`
	SoldAt      time.Time `json:"sold_at"`
}

// ProfileResponse はプロフィールのJSON表現。
type ProfileResponse struct {
	ID         string    `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Department string    `json:"department"`
	IsAdmin    bool      `json:"is_admin"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportResponse は通報のJSON表現。出品削除済みの場合ItemTitleは "Deleted Item"。
type ReportResponse struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id,omitempty"`
	ItemTitle     string    `json:"item_title"`
	ItemImage     string    `json:"item_image"`
	ItemDeleted   bool      `json:"item_deleted"`
	Reason        string    `json:"reason"`
	ReporterName  string    `json:"reporter_name"`
	ReporterEmail string    `json:"reporter_email"`
	CreatedAt     time.Time `json:"created_at"`
}

// StatsResponse は管理画面の集計値のJSON表現。
type StatsResponse struct {
	Total  int `json:"total"`
	Sold   int `json:"sold"`
	Active int `json:"active"`
	Users  int `json:"users"`
}

// NewItemResponse はmodel.ItemをItemResponseに変換する。
func NewItemResponse(item *model.Item) ItemResponse {
	images := item.Images
	if images == nil {
		images = []string{}
	}
	resp := ItemResponse{
		ID:          item.ID,
		SellerID:    item.SellerID,
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
		Category:    item.Category,
		Condition:   item.Condition,
		Images:      images,
		CoverImage:  item.CoverImage(),
		IsSold:      item.IsSold,
		SoldAt:      item.SoldAt,
		CreatedAt:   item.CreatedAt,
	}
	if item.Seller != nil {
		resp.Seller = &SellerResponse{
			FullName:   item.Seller.FullName,
			Department: item.Seller.Department,
			Email:      item.Seller.Email,
			Phone:      item.Seller.Phone,
		}
	}
	return resp
}

func newItemResponses(items []*model.Item) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewItemResponse(item))
	}
	return out
}

func newSalesResponses(records []*model.SalesRecord) []SalesResponse {
	out := make([]SalesResponse, 0, len(records))
	for _, r := range records {
		out = append(out, SalesResponse{
			ID:          r.ID,
			Title:       r.Title,
			Category:    r.Category,
			Price:       r.Price,
			SellerName:  r.SellerName,
			SellerEmail: r.SellerEmail,
			BuyerName:   r.BuyerName,
			BuyerEmail:  r.BuyerEmail,
			SoldAt:      r.SoldAt,
		})
	}
	return out
}

// NewProfileResponse はプロフィールをJSON表現に変換する。パスワードハッシュは含めない。
func NewProfileResponse(p *model.Profile) ProfileResponse {
	return ProfileResponse{
		ID:         p.ID,
		FullName:   p.FullName,
		Email:      p.Email,
		Phone:      p.Phone,
		Department: p.Department,
		IsAdmin:    p.IsAdmin,
		CreatedAt:  p.CreatedAt,
	}
}

func newProfileResponses(profiles []*model.Profile) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, NewProfileResponse(p))
	}
	return out
}

func newReportResponses(reports []*model.Report) []ReportResponse {
	out := make([]ReportResponse, 0, len(reports))
	for _, r := range reports {
		resp := ReportResponse{
			ID:          r.ID,
			ItemID:      r.ItemID,
			ItemTitle:   r.ItemTitle(),
			ItemImage:   model.PlaceholderImageURL,
			ItemDeleted: r.Item == nil,
			Reason:      r.Reason,
			CreatedAt:   r.CreatedAt,
		}
		if r.Item != nil {
			resp.ItemImage = (&model.Item{Images: r.Item.Images}).CoverImage()
		}
		if r.Reporter != nil {
			resp.ReporterName = r.Reporter.FullName
			resp.ReporterEmail = r.Reporter.Email
		}
		out = append(out, resp)
	}
	return out
}
