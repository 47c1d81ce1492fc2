package escrow

import (
	"encoding/hex"
	"strconv"

	"realchain/events"
)

const (
	EventTypeDealListed    = "escrow.deal.listed"
	EventTypeDealOffered   = "escrow.deal.offered"
	EventTypeDealCompleted = "escrow.deal.completed"
	EventTypeDealCancelled = "escrow.deal.cancelled"
	EventTypeDealPruned    = "escrow.deal.pruned"
)

// NewListedEvent returns the canonical event payload for a newly created
// listing.
func NewListedEvent(d *Deal) events.Event { return newDealEvent(EventTypeDealListed, d) }

// NewOfferedEvent returns the canonical event payload emitted when a buyer's
// deposit moves the deal to pending.
func NewOfferedEvent(d *Deal) events.Event { return newDealEvent(EventTypeDealOffered, d) }

// NewCompletedEvent returns the canonical event payload for a settled sale.
func NewCompletedEvent(d *Deal) events.Event { return newDealEvent(EventTypeDealCompleted, d) }

// NewCancelledEvent returns the canonical event payload for a cancelled deal.
func NewCancelledEvent(d *Deal) events.Event { return newDealEvent(EventTypeDealCancelled, d) }

// NewPrunedEvent returns the canonical event payload emitted when a terminal
// deal's record is deleted by the seller.
func NewPrunedEvent(d *Deal) events.Event { return newDealEvent(EventTypeDealPruned, d) }

func newDealEvent(eventType string, d *Deal) events.Event {
	attrs := make(map[string]string)
	if d == nil {
		return events.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(d.ID[:])
	attrs["seller"] = hex.EncodeToString(d.Seller[:])
	attrs["price"] = strconv.FormatUint(d.Price, 10)
	attrs["deadline"] = strconv.FormatInt(d.Deadline, 10)
	attrs["status"] = d.Status.String()
	if d.HasBuyer() {
		attrs["buyer"] = hex.EncodeToString(d.Buyer[:])
	}
	return events.Event{Type: eventType, Attributes: attrs}
}
