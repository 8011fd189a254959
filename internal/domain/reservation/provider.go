package reservation

import (
	"context"
	"time"
)

// ProbeRequest is one inventory query: a venue, party size and reservation
// type searched from a point in time.
type ProbeRequest struct {
	MerchantID string
	PartySize  int
	TypeID     int
	SearchAt   time.Time
	Limit      int
}

// TimeEntry is one raw slot as returned by the inventory endpoint. Every
// field is optional upstream.
type TimeEntry struct {
	ISO        string
	Label      string
	BookingURL string
}

// InventoryBlock groups the time entries for one reservation type.
type InventoryBlock struct {
	TypeID   int
	TypeName string
	Times    []TimeEntry
}

type Inventory struct {
	Blocks []InventoryBlock
}

// Block returns the block for typeID, if the response carries one.
func (inv Inventory) Block(typeID int) (InventoryBlock, bool) {
	for _, b := range inv.Blocks {
		if b.TypeID == typeID {
			return b, true
		}
	}
	return InventoryBlock{}, false
}

// Prober queries the reservation inventory endpoint.
type Prober interface {
	Inventory(ctx context.Context, req ProbeRequest) (Inventory, error)
}
