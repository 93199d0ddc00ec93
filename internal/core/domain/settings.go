package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SettingKey names a per-site setting
type SettingKey string

const (
	SettingProductsPageSize     SettingKey = "products_page_size"
	SettingOrdersPageSize       SettingKey = "orders_page_size"
	SettingPrefetchThreshold    SettingKey = "prefetch_threshold"
	SettingOrderStatusFilter    SettingKey = "order_status_filter"
	SettingExcludedProductTypes SettingKey = "excluded_product_types"
	SettingCurrencyCode         SettingKey = "currency_code"
)

// SettingType describes the value type of a setting
type SettingType string

const (
	SettingTypeInt        SettingType = "int"
	SettingTypeString     SettingType = "string"
	SettingTypeStringList SettingType = "string_list"
)

// Settings holds the per-site configuration consumed by the sync layer
type Settings struct {
	SiteID int64 `json:"site_id"`

	// Pagination
	ProductsPageSize  int `json:"products_page_size"`
	OrdersPageSize    int `json:"orders_page_size"`
	PrefetchThreshold int `json:"prefetch_threshold"`

	// List filters
	OrderStatusFilter    string   `json:"order_status_filter,omitempty"`
	ExcludedProductTypes []string `json:"excluded_product_types"`

	// Store
	CurrencyCode string `json:"currency_code"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultSettings returns sensible defaults for a new site
func DefaultSettings(siteID int64) *Settings {
	return &Settings{
		SiteID:               siteID,
		ProductsPageSize:     25,
		OrdersPageSize:       25,
		PrefetchThreshold:    5,
		ExcludedProductTypes: []string{"grouped"},
		CurrencyCode:         "USD",
		UpdatedAt:            time.Now(),
	}
}

// SettingAccessor is a typed getter/setter pair for one setting.
// Values cross the key-value boundary as strings.
type SettingAccessor struct {
	Key  SettingKey
	Type SettingType
	Get  func(s *Settings) string
	Set  func(s *Settings, value string) error
}

var settingAccessors = map[SettingKey]SettingAccessor{
	SettingProductsPageSize: intAccessor(SettingProductsPageSize, 1, 100,
		func(s *Settings) *int { return &s.ProductsPageSize }),
	SettingOrdersPageSize: intAccessor(SettingOrdersPageSize, 1, 100,
		func(s *Settings) *int { return &s.OrdersPageSize }),
	SettingPrefetchThreshold: intAccessor(SettingPrefetchThreshold, 0, 100,
		func(s *Settings) *int { return &s.PrefetchThreshold }),
	SettingOrderStatusFilter: {
		Key:  SettingOrderStatusFilter,
		Type: SettingTypeString,
		Get:  func(s *Settings) string { return s.OrderStatusFilter },
		Set: func(s *Settings, v string) error {
			s.OrderStatusFilter = strings.TrimSpace(v)
			return nil
		},
	},
	SettingExcludedProductTypes: {
		Key:  SettingExcludedProductTypes,
		Type: SettingTypeStringList,
		Get:  func(s *Settings) string { return strings.Join(s.ExcludedProductTypes, ",") },
		Set: func(s *Settings, v string) error {
			s.ExcludedProductTypes = splitList(v)
			return nil
		},
	},
	SettingCurrencyCode: {
		Key:  SettingCurrencyCode,
		Type: SettingTypeString,
		Get:  func(s *Settings) string { return s.CurrencyCode },
		Set: func(s *Settings, v string) error {
			v = strings.ToUpper(strings.TrimSpace(v))
			if len(v) != 3 {
				return fmt.Errorf("%w: currency code must have 3 letters", ErrInvalidInput)
			}
			s.CurrencyCode = v
			return nil
		},
	},
}

func intAccessor(key SettingKey, lo, hi int, field func(*Settings) *int) SettingAccessor {
	return SettingAccessor{
		Key:  key,
		Type: SettingTypeInt,
		Get:  func(s *Settings) string { return strconv.Itoa(*field(s)) },
		Set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%w: %s must be an integer", ErrInvalidInput, key)
			}
			if n < lo || n > hi {
				return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidInput, key, lo, hi)
			}
			*field(s) = n
			return nil
		},
	}
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LookupSetting returns the accessor registered for key
func LookupSetting(key SettingKey) (SettingAccessor, error) {
	a, ok := settingAccessors[key]
	if !ok {
		return SettingAccessor{}, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return a, nil
}

// SettingKeys returns every known setting key in stable order
func SettingKeys() []SettingKey {
	keys := make([]SettingKey, 0, len(settingAccessors))
	for k := range settingAccessors {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ToValues flattens settings into the key-value form used by SettingsStore
func (s *Settings) ToValues() map[SettingKey]string {
	values := make(map[SettingKey]string, len(settingAccessors))
	for k, a := range settingAccessors {
		values[k] = a.Get(s)
	}
	return values
}

// ApplyValues sets every known key present in values. Unknown keys are
// returned as an error after the known ones have been applied.
func (s *Settings) ApplyValues(values map[SettingKey]string) error {
	var unknown []string
	for k, v := range values {
		a, ok := settingAccessors[k]
		if !ok {
			unknown = append(unknown, string(k))
			continue
		}
		if err := a.Set(s, v); err != nil {
			return err
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", ErrUnknownSetting, strings.Join(unknown, ", "))
	}
	return nil
}
