package domain

import "time"

// Product statuses and types used by list filters
const (
	ProductStatusPublish = "publish"
	ProductStatusPrivate = "private"
	ProductStatusDraft   = "draft"

	ProductTypeSimple   = "simple"
	ProductTypeVariable = "variable"
	ProductTypeGrouped  = "grouped"
	ProductTypeExternal = "external"
)

// Product is a catalog entry of a store
type Product struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SKU          string    `json:"sku"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	MenuOrder    int       `json:"menu_order"`
	Price        string    `json:"price"`
	StockStatus  string    `json:"stock_status"`
	DateModified time.Time `json:"date_modified"`
}

// ToRecord maps the product into its cached form
func (p *Product) ToRecord(siteID int64) *Record {
	return &Record{
		Kind:   EntityKindProduct,
		SiteID: siteID,
		ID:     p.ID,
		Fields: map[string]any{
			"name":          p.Name,
			"sku":           p.SKU,
			"product_type":  p.Type,
			"status":        p.Status,
			"menu_order":    float64(p.MenuOrder),
			"price":         p.Price,
			"stock_status":  p.StockStatus,
			"date_modified": formatTime(p.DateModified),
		},
	}
}

// Order is a customer order with its line items
type Order struct {
	ID           int64       `json:"id"`
	Number       string      `json:"number"`
	Status       string      `json:"status"`
	Currency     string      `json:"currency"`
	Total        string      `json:"total"`
	CustomerName string      `json:"customer_name"`
	DateCreated  time.Time   `json:"date_created"`
	DateModified time.Time   `json:"date_modified"`
	LineItems    []OrderItem `json:"line_items"`
}

// OrderItem is a line item of an order
type OrderItem struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
}

// ToRecord maps the order and its line items into cached form
func (o *Order) ToRecord(siteID int64) *Record {
	children := make([]ChildRecord, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		children = append(children, ChildRecord{
			ID: item.ID,
			Fields: map[string]any{
				"product_id": float64(item.ProductID),
				"name":       item.Name,
				"quantity":   float64(item.Quantity),
				"total":      item.Total,
			},
		})
	}
	return &Record{
		Kind:   EntityKindOrder,
		SiteID: siteID,
		ID:     o.ID,
		Fields: map[string]any{
			"number":        o.Number,
			"status":        o.Status,
			"currency":      o.Currency,
			"total":         o.Total,
			"customer_name": o.CustomerName,
			"date_created":  formatTime(o.DateCreated),
			"date_modified": formatTime(o.DateModified),
		},
		Children: children,
	}
}

// Refund is a full or partial refund of an order
type Refund struct {
	ID          int64        `json:"id"`
	OrderID     int64        `json:"order_id"`
	Amount      string       `json:"amount"`
	Reason      string       `json:"reason"`
	DateCreated time.Time    `json:"date_created"`
	Items       []RefundItem `json:"items"`
}

// RefundItem is one refunded line
type RefundItem struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
}

// ToRecord maps the refund and its items into cached form
func (r *Refund) ToRecord(siteID int64) *Record {
	children := make([]ChildRecord, 0, len(r.Items))
	for _, item := range r.Items {
		children = append(children, ChildRecord{
			ID: item.ID,
			Fields: map[string]any{
				"product_id": float64(item.ProductID),
				"quantity":   float64(item.Quantity),
				"total":      item.Total,
			},
		})
	}
	return &Record{
		Kind:   EntityKindRefund,
		SiteID: siteID,
		ID:     r.ID,
		Fields: map[string]any{
			"order_id":     float64(r.OrderID),
			"amount":       r.Amount,
			"reason":       r.Reason,
			"date_created": formatTime(r.DateCreated),
		},
		Children: children,
	}
}

// RFC3339 strings sort chronologically, so date fields stay sortable
// in every store.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
