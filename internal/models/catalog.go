package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Station represents a physical print destination class for a menu item.
type Station string

const (
	StationKitchen  Station = "kitchen"
	StationBeverage Station = "beverage"
	StationBoth     Station = "both"
)

// RoutesTo reports whether an item with this destination belongs on the
// given station's ticket. An item marked "both" appears on both tickets.
func (s Station) RoutesTo(target Station) bool {
	return s == target || s == StationBoth
}

// Category groups menu items for browsing.
type Category struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	SortOrder int        `json:"sort_order"`
	IsActive  bool       `json:"is_active"`
	Items     []MenuItem `json:"items,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MenuItem represents a purchasable item. Orders snapshot its name and
// price at order time, so later catalog edits never alter placed orders.
type MenuItem struct {
	ID             int64           `json:"id"`
	CategoryID     int64           `json:"category_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Price          decimal.Decimal `json:"price"`
	IsAvailable    bool            `json:"is_available"`
	PrepMinutes    int             `json:"preparation_minutes"`
	Station        Station         `json:"station"`
	ModifierGroups []ModifierGroup `json:"modifier_groups,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ModifierGroup is a named set of options attached to one menu item, with
// selection-count constraints. MaxSelections nil means unlimited.
type ModifierGroup struct {
	ID            int64      `json:"id"`
	MenuItemID    int64      `json:"menu_item_id"`
	Name          string     `json:"name"`
	IsRequired    bool       `json:"is_required"`
	MinSelections int        `json:"min_selections"`
	MaxSelections *int       `json:"max_selections,omitempty"`
	SortOrder     int        `json:"sort_order"`
	Modifiers     []Modifier `json:"modifiers,omitempty"`
}

// Modifier is a single selectable option within a group. IsDefault is
// informational only; the pipeline never auto-applies defaults.
type Modifier struct {
	ID              int64           `json:"id"`
	GroupID         int64           `json:"group_id"`
	Name            string          `json:"name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
	IsAvailable     bool            `json:"is_available"`
	IsDefault       bool            `json:"is_default"`
}
