package models

import "time"

// PrintJobStatus represents the delivery state of a print job.
type PrintJobStatus string

const (
	PrintJobPending PrintJobStatus = "pending"
	PrintJobSent    PrintJobStatus = "sent"
	PrintJobPrinted PrintJobStatus = "printed"
	PrintJobFailed  PrintJobStatus = "failed"
)

// ReceiptItem is one line on a station ticket.
type ReceiptItem struct {
	Name                string   `json:"name"`
	Quantity            int      `json:"quantity"`
	Modifiers           []string `json:"modifiers,omitempty"`
	SpecialInstructions string   `json:"special_instructions,omitempty"`
}

// ReceiptData is the station-scoped payload rendered by the print agent.
type ReceiptData struct {
	OrderNumber         string        `json:"order_number"`
	PlacedAt            string        `json:"placed_at"`
	CustomerName        string        `json:"customer_name"`
	Station             Station       `json:"station"`
	Items               []ReceiptItem `json:"items"`
	SpecialInstructions string        `json:"special_instructions,omitempty"`
}

// PrintJob is one station's receipt for one order, pulled and acknowledged
// by the external print agent.
type PrintJob struct {
	ID        int64          `json:"id"`
	OrderID   int64          `json:"order_id"`
	Station   Station        `json:"printer_type"`
	Status    PrintJobStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError *string        `json:"last_error,omitempty"`
	Receipt   ReceiptData    `json:"receipt_data"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	PrintedAt *time.Time     `json:"printed_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// PrintJobAck is the agent's status report for a delivered job.
type PrintJobAck struct {
	Status PrintJobStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
}
