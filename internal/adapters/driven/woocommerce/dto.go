package woocommerce

import (
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// The API reports *_gmt timestamps without a zone suffix.
type gmtTime struct {
	time.Time
}

func (t *gmtTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// flexInt accepts both numbers and numeric strings; quantities on refunds
// come back negative.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

type productDTO struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	SKU             string  `json:"sku"`
	Type            string  `json:"type"`
	Status          string  `json:"status"`
	MenuOrder       int     `json:"menu_order"`
	Price           string  `json:"price"`
	StockStatus     string  `json:"stock_status"`
	DateModifiedGMT gmtTime `json:"date_modified_gmt"`
}

func (d productDTO) toDomain() domain.Product {
	return domain.Product{
		ID:           d.ID,
		Name:         d.Name,
		SKU:          d.SKU,
		Type:         d.Type,
		Status:       d.Status,
		MenuOrder:    d.MenuOrder,
		Price:        d.Price,
		StockStatus:  d.StockStatus,
		DateModified: d.DateModifiedGMT.Time,
	}
}

type billingDTO struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
}

func (b billingDTO) displayName() string {
	name := strings.TrimSpace(b.FirstName + " " + b.LastName)
	if name == "" {
		return b.Company
	}
	return name
}

type lineItemDTO struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  flexInt `json:"quantity"`
	Total     string  `json:"total"`
}

type orderDTO struct {
	ID              int64         `json:"id"`
	Number          string        `json:"number"`
	Status          string        `json:"status"`
	Currency        string        `json:"currency"`
	Total           string        `json:"total"`
	Billing         billingDTO    `json:"billing"`
	DateCreatedGMT  gmtTime       `json:"date_created_gmt"`
	DateModifiedGMT gmtTime       `json:"date_modified_gmt"`
	LineItems       []lineItemDTO `json:"line_items"`
}

func (d orderDTO) toDomain() domain.Order {
	items := make([]domain.OrderItem, len(d.LineItems))
	for i, li := range d.LineItems {
		items[i] = domain.OrderItem{
			ID:        li.ID,
			ProductID: li.ProductID,
			Name:      li.Name,
			Quantity:  int(li.Quantity),
			Total:     li.Total,
		}
	}
	return domain.Order{
		ID:           d.ID,
		Number:       d.Number,
		Status:       d.Status,
		Currency:     d.Currency,
		Total:        d.Total,
		CustomerName: d.Billing.displayName(),
		DateCreated:  d.DateCreatedGMT.Time,
		DateModified: d.DateModifiedGMT.Time,
		LineItems:    items,
	}
}

type refundDTO struct {
	ID             int64         `json:"id"`
	ParentID       int64         `json:"parent_id"`
	Amount         string        `json:"amount"`
	Reason         string        `json:"reason"`
	DateCreatedGMT gmtTime       `json:"date_created_gmt"`
	LineItems      []lineItemDTO `json:"line_items"`
}

func (d refundDTO) toDomain() domain.Refund {
	items := make([]domain.RefundItem, len(d.LineItems))
	for i, li := range d.LineItems {
		qty := int(li.Quantity)
		if qty < 0 {
			qty = -qty
		}
		items[i] = domain.RefundItem{
			ID:        li.ID,
			ProductID: li.ProductID,
			Quantity:  qty,
			Total:     strings.TrimPrefix(li.Total, "-"),
		}
	}
	return domain.Refund{
		ID:          d.ID,
		OrderID:     d.ParentID,
		Amount:      d.Amount,
		Reason:      d.Reason,
		DateCreated: d.DateCreatedGMT.Time,
		Items:       items,
	}
}
