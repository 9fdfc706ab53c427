package printing

import (
	"time"

	"github.com/Merlin1A/cafe-backend/internal/models"
)

// printStations is the set of physical printers jobs are routed to.
// Items marked for both stations fan out to a job on each.
var printStations = []models.Station{models.StationKitchen, models.StationBeverage}

// BuildReceipts partitions an order's items by station and produces one
// receipt per station that has at least one item. An order whose items
// all route to a single station yields exactly one receipt.
func BuildReceipts(order *models.Order, items []models.ValidatedOrderItem, customerName string) []models.ReceiptData {
	receipts := make([]models.ReceiptData, 0, len(printStations))

	var instructions string
	if order.SpecialInstructions != nil {
		instructions = *order.SpecialInstructions
	}

	for _, station := range printStations {
		var lines []models.ReceiptItem
		for _, item := range items {
			if !item.Station.RoutesTo(station) {
				continue
			}
			lines = append(lines, receiptLine(item))
		}
		if len(lines) == 0 {
			continue
		}
		receipts = append(receipts, models.ReceiptData{
			OrderNumber:         order.Number,
			PlacedAt:            order.CreatedAt.UTC().Format(time.RFC3339),
			CustomerName:        customerName,
			Station:             station,
			Items:               lines,
			SpecialInstructions: instructions,
		})
	}

	return receipts
}

func receiptLine(item models.ValidatedOrderItem) models.ReceiptItem {
	modifiers := make([]string, 0, len(item.Modifiers))
	for _, mod := range item.Modifiers {
		modifiers = append(modifiers, mod.Name)
	}
	return models.ReceiptItem{
		Name:                item.Name,
		Quantity:            item.Quantity,
		Modifiers:           modifiers,
		SpecialInstructions: item.SpecialInstructions,
	}
}
