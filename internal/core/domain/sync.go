package domain

import "time"

// SyncStatus represents what a paginated list should present
type SyncStatus string

const (
	// SyncStatusNone is the initial state, before any fetch was attempted
	SyncStatusNone SyncStatus = "none"
	// SyncStatusFirstPageSync means a first page fetch is outstanding and nothing is cached
	SyncStatusFirstPageSync SyncStatus = "first_page_sync"
	// SyncStatusResults means the projection has rows
	SyncStatusResults SyncStatus = "results"
	// SyncStatusEmpty means a fetch completed and the projection has no rows
	SyncStatusEmpty SyncStatus = "empty"
)

// SyncReason tells the delegate why a page is being fetched
type SyncReason string

const (
	SyncReasonInitial       SyncReason = "initial"
	SyncReasonPullToRefresh SyncReason = "pull_to_refresh"
	SyncReasonNextPage      SyncReason = "next_page"
	SyncReasonRetry         SyncReason = "retry"
)

// PageRequest asks a delegate to fetch one remote page.
// Generation identifies the sync cycle; it changes on every first page sync.
type PageRequest struct {
	PageNumber int        `json:"page_number"`
	PageSize   int        `json:"page_size"`
	Reason     SyncReason `json:"reason"`
	Generation uint64     `json:"generation"`
}

// PageResult is what a delegate reports once a page has been persisted.
// ItemCount is the number of remote items returned for the page.
type PageResult struct {
	ItemCount int         `json:"item_count"`
	Stats     UpsertStats `json:"stats"`
}

// ListEvent is published by a paginated list whenever its state changes
type ListEvent struct {
	List         ListName   `json:"list"`
	SiteID       int64      `json:"site_id"`
	Status       SyncStatus `json:"status"`
	Rows         []*Record  `json:"rows,omitempty"`
	HasMoreItems bool       `json:"has_more_items"`
	Syncing      bool       `json:"syncing"`
	Page         int        `json:"page,omitempty"`
	Error        string     `json:"error,omitempty"`
	At           time.Time  `json:"at"`
}

// ListName identifies a paginated list of a site
type ListName string

const (
	ListProducts ListName = "products"
	ListOrders   ListName = "orders"
	ListRefunds  ListName = "refunds"
)

// IsValid returns true if this is a known list
func (n ListName) IsValid() bool {
	switch n {
	case ListProducts, ListOrders, ListRefunds:
		return true
	default:
		return false
	}
}

// Kind returns the entity kind listed by n
func (n ListName) Kind() EntityKind {
	switch n {
	case ListProducts:
		return EntityKindProduct
	case ListOrders:
		return EntityKindOrder
	case ListRefunds:
		return EntityKindRefund
	}
	return ""
}

// ListNames returns every known list
func ListNames() []ListName {
	return []ListName{ListProducts, ListOrders, ListRefunds}
}
