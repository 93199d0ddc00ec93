package services

import (
	"fmt"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// listDefinition is everything needed to build one paginated list
type listDefinition struct {
	predicate domain.Predicate
	sort      []domain.SortDescriptor
	pageSize  int
	filters   map[string]string

	// resetOnFirstPage drops the cached records matched by the predicate
	// before page 1 is saved
	resetOnFirstPage bool
}

// defineList derives the filtering and ordering policy of a list from the
// site settings.
func defineList(name domain.ListName, siteID int64, settings *domain.Settings) (listDefinition, error) {
	base := domain.Predicate{Kind: name.Kind(), SiteID: siteID}

	switch name {
	case domain.ListProducts:
		pred := base.Where("status", domain.OpIn, domain.ProductStatusPublish, domain.ProductStatusPrivate)
		if len(settings.ExcludedProductTypes) > 0 {
			pred = pred.Where("product_type", domain.OpNotIn, toAny(settings.ExcludedProductTypes)...)
		}
		return listDefinition{
			predicate: pred,
			sort:      []domain.SortDescriptor{domain.Asc("menu_order")},
			pageSize:  settings.ProductsPageSize,
		}, nil

	case domain.ListOrders:
		def := listDefinition{
			predicate:        base,
			sort:             []domain.SortDescriptor{domain.Desc("date_created")},
			pageSize:         settings.OrdersPageSize,
			resetOnFirstPage: true,
		}
		if settings.OrderStatusFilter != "" {
			def.predicate = base.Where("status", domain.OpEq, settings.OrderStatusFilter)
			def.filters = map[string]string{"status": settings.OrderStatusFilter}
		}
		return def, nil

	case domain.ListRefunds:
		return listDefinition{
			predicate: base,
			sort:      []domain.SortDescriptor{domain.Desc("date_created")},
			pageSize:  settings.OrdersPageSize,
		}, nil
	}

	return listDefinition{}, fmt.Errorf("%w: %s", domain.ErrListNotFound, name)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
