package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

// CatalogReader is the catalog snapshot dependency of the pricing engine.
type CatalogReader interface {
	ItemForOrder(ctx context.Context, itemID int64) (*models.MenuItem, error)
	ModifierWithGroup(ctx context.Context, modifierID int64) (*models.Modifier, *models.ModifierGroup, error)
}

// Engine validates carts against live menu and modifier rules and computes
// money-exact totals. All monetary arithmetic uses fixed-point decimals
// rounded to 2 places at every accumulation step; the rounding mode is
// half away from zero throughout.
type Engine struct {
	catalog CatalogReader
	taxRate decimal.Decimal
}

// NewEngine creates a pricing engine with the configured tax rate.
func NewEngine(catalog CatalogReader, taxRate decimal.Decimal) *Engine {
	return &Engine{
		catalog: catalog,
		taxRate: taxRate,
	}
}

// ValidateCart resolves every cart line against the catalog and returns
// priced item snapshots. The first rule violation aborts validation; no
// side effects occur on failure.
func (e *Engine) ValidateCart(ctx context.Context, items []models.CartItemInput) ([]models.ValidatedOrderItem, error) {
	if len(items) == 0 {
		return nil, domain.Validation("items", "cart must contain at least one item")
	}

	validated := make([]models.ValidatedOrderItem, 0, len(items))
	for i, line := range items {
		v, err := e.validateLine(ctx, i, line)
		if err != nil {
			return nil, err
		}
		validated = append(validated, *v)
	}
	return validated, nil
}

func (e *Engine) validateLine(ctx context.Context, index int, line models.CartItemInput) (*models.ValidatedOrderItem, error) {
	field := func(name string) string {
		return fmt.Sprintf("items[%d].%s", index, name)
	}

	if line.Quantity < 1 {
		return nil, domain.Validation(field("quantity"), "quantity must be at least 1")
	}

	item, err := e.catalog.ItemForOrder(ctx, line.MenuItemID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.Validationf(field("menu_item_id"), "menu item %d not found", line.MenuItemID)
		}
		return nil, err
	}
	if !item.IsAvailable {
		return nil, domain.Validationf(field("menu_item_id"), "%s is currently unavailable", item.Name)
	}

	// Resolve each selected modifier and tally selections per group.
	selectedByGroup := make(map[int64]int)
	modifiers := make([]models.ValidatedModifier, 0, len(line.ModifierIDs))
	for _, modID := range line.ModifierIDs {
		mod, group, err := e.catalog.ModifierWithGroup(ctx, modID)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				return nil, domain.Validationf(field("modifier_ids"), "modifier %d not found", modID)
			}
			return nil, err
		}
		if group.MenuItemID != item.ID {
			return nil, domain.Validationf(field("modifier_ids"),
				"modifier %s does not belong to %s", mod.Name, item.Name)
		}
		if !mod.IsAvailable {
			return nil, domain.Validationf(field("modifier_ids"), "modifier %s is currently unavailable", mod.Name)
		}
		selectedByGroup[group.ID]++
		modifiers = append(modifiers, models.ValidatedModifier{
			ModifierID:      mod.ID,
			Name:            mod.Name,
			PriceAdjustment: mod.PriceAdjustment,
		})
	}

	// Enforce selection-count rules for every group on the item, not just
	// the groups the cart touched.
	for _, group := range item.ModifierGroups {
		count := selectedByGroup[group.ID]
		if group.IsRequired && group.MinSelections > 0 && count < group.MinSelections {
			return nil, domain.Validationf(field("modifier_ids"),
				"%s requires at least %d selection(s) from %s", item.Name, group.MinSelections, group.Name)
		}
		if group.MaxSelections != nil && count > *group.MaxSelections {
			return nil, domain.Validationf(field("modifier_ids"),
				"%s allows at most %d selection(s) from %s", item.Name, *group.MaxSelections, group.Name)
		}
	}

	unitPrice := item.Price
	for _, mod := range modifiers {
		unitPrice = unitPrice.Add(mod.PriceAdjustment)
	}
	unitPrice = unitPrice.Round(2)
	lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)

	return &models.ValidatedOrderItem{
		MenuItemID:          item.ID,
		Name:                item.Name,
		BasePrice:           item.Price,
		UnitPrice:           unitPrice,
		LineTotal:           lineTotal,
		Quantity:            line.Quantity,
		PrepMinutes:         item.PrepMinutes,
		Station:             item.Station,
		SpecialInstructions: line.SpecialInstructions,
		Modifiers:           modifiers,
	}, nil
}

// OrderTotals computes subtotal, tax and total from validated items.
// Every intermediate value is already rounded to 2 decimals, so the
// subtotal is independent of summation order.
func (e *Engine) OrderTotals(items []models.ValidatedOrderItem) models.OrderTotals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	subtotal = subtotal.Round(2)

	taxAmount := subtotal.Mul(e.taxRate).Round(2)
	totalAmount := subtotal.Add(taxAmount).Round(2)

	return models.OrderTotals{
		Subtotal:    subtotal,
		TaxAmount:   taxAmount,
		TotalAmount: totalAmount,
	}
}
