package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Merlin1A/cafe-backend/internal/cache"
	"github.com/Merlin1A/cafe-backend/internal/database"
	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

const menuCacheKey = "catalog:menu"

// Reader provides the catalog snapshots the order pipeline validates and
// prices against. Money-affecting reads go straight to the database;
// only the public browse path is cached.
type Reader struct {
	db        *database.DB
	menuCache *cache.Cache
	logger    *logger.Logger
}

// NewReader creates a catalog reader.
func NewReader(db *database.DB, menuCache *cache.Cache, log *logger.Logger) *Reader {
	return &Reader{
		db:        db,
		menuCache: menuCache,
		logger:    log,
	}
}

// ItemForOrder returns the menu item with all of its modifier groups and
// modifiers, availability flags included, for cart validation. Uncached.
func (r *Reader) ItemForOrder(ctx context.Context, itemID int64) (*models.MenuItem, error) {
	var item models.MenuItem
	err := r.db.QueryRow(ctx, database.GetMenuItemSQL, itemID).Scan(
		&item.ID, &item.CategoryID, &item.Name, &item.Description, &item.Price,
		&item.IsAvailable, &item.PrepMinutes, &item.Station, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("menu item")
		}
		return nil, fmt.Errorf("failed to load menu item %d: %w", itemID, err)
	}

	groups, err := r.groupsForItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	item.ModifierGroups = groups

	return &item, nil
}

// ModifierWithGroup returns a modifier together with its owning group.
func (r *Reader) ModifierWithGroup(ctx context.Context, modifierID int64) (*models.Modifier, *models.ModifierGroup, error) {
	var mod models.Modifier
	err := r.db.QueryRow(ctx, database.GetModifierSQL, modifierID).Scan(
		&mod.ID, &mod.GroupID, &mod.Name, &mod.PriceAdjustment, &mod.IsAvailable, &mod.IsDefault,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.NotFound("modifier")
		}
		return nil, nil, fmt.Errorf("failed to load modifier %d: %w", modifierID, err)
	}

	var group models.ModifierGroup
	err = r.db.QueryRow(ctx, database.GetModifierGroupSQL, mod.GroupID).Scan(
		&group.ID, &group.MenuItemID, &group.Name, &group.IsRequired,
		&group.MinSelections, &group.MaxSelections, &group.SortOrder,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load modifier group %d: %w", mod.GroupID, err)
	}

	return &mod, &group, nil
}

// Menu returns the browsable menu: active categories with their available
// items. Served from the injected cache when warm.
func (r *Reader) Menu(ctx context.Context) ([]models.Category, error) {
	if cached, ok := r.menuCache.Get(menuCacheKey); ok {
		return cached.([]models.Category), nil
	}

	categories, err := r.loadMenu(ctx)
	if err != nil {
		return nil, err
	}

	r.menuCache.Set(menuCacheKey, categories)
	return categories, nil
}

// InvalidateMenu drops the cached menu. Called by the admin catalog
// mutation path after any category, item or modifier write.
func (r *Reader) InvalidateMenu() {
	r.menuCache.Delete(menuCacheKey)
}

func (r *Reader) loadMenu(ctx context.Context) ([]models.Category, error) {
	rows, err := r.db.Query(ctx, database.GetActiveCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	byID := make(map[int64]int)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		byID[c.ID] = len(categories)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := r.db.Query(ctx, database.GetAvailableItemsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item models.MenuItem
		err := itemRows.Scan(
			&item.ID, &item.CategoryID, &item.Name, &item.Description, &item.Price,
			&item.IsAvailable, &item.PrepMinutes, &item.Station, &item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan menu item: %w", err)
		}
		if idx, ok := byID[item.CategoryID]; ok {
			categories[idx].Items = append(categories[idx].Items, item)
		}
	}
	return categories, itemRows.Err()
}

func (r *Reader) groupsForItem(ctx context.Context, itemID int64) ([]models.ModifierGroup, error) {
	rows, err := r.db.Query(ctx, database.GetModifierGroupsForItemSQL, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load modifier groups: %w", err)
	}
	defer rows.Close()

	var groups []models.ModifierGroup
	groupIdx := make(map[int64]int)
	for rows.Next() {
		var g models.ModifierGroup
		err := rows.Scan(&g.ID, &g.MenuItemID, &g.Name, &g.IsRequired, &g.MinSelections, &g.MaxSelections, &g.SortOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to scan modifier group: %w", err)
		}
		groupIdx[g.ID] = len(groups)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}

	modRows, err := r.db.Query(ctx, database.GetModifiersForItemSQL, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load modifiers: %w", err)
	}
	defer modRows.Close()

	for modRows.Next() {
		var m models.Modifier
		err := modRows.Scan(&m.ID, &m.GroupID, &m.Name, &m.PriceAdjustment, &m.IsAvailable, &m.IsDefault)
		if err != nil {
			return nil, fmt.Errorf("failed to scan modifier: %w", err)
		}
		if idx, ok := groupIdx[m.GroupID]; ok {
			groups[idx].Modifiers = append(groups[idx].Modifiers, m)
		}
	}
	return groups, modRows.Err()
}
