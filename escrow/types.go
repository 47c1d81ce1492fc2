package escrow

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DealStatus represents the lifecycle states supported by the escrow engine.
type DealStatus uint8

const (
	DealActive DealStatus = iota
	DealPending
	DealCompleted
	DealCancelled
)

// DefaultListingWindow is the fixed listing lifetime applied at creation when
// no override is configured: thirty days, in seconds.
const DefaultListingWindow int64 = 30 * 24 * 60 * 60

// Deal captures the immutable metadata and runtime status of a single property
// sale governed by the engine. The identifier is the keccak256 hash of the
// seller, the property document hash and a caller-supplied nonce, ensuring
// deterministic IDs without storing the nonce itself.
type Deal struct {
	ID           [32]byte
	Seller       [20]byte
	Buyer        [20]byte // zero until an offer is accepted
	Price        uint64   // micro-units, fixed at creation
	PropertyHash [32]byte
	CreatedAt    int64
	Deadline     int64
	Status       DealStatus
}

// HasBuyer reports whether a buyer has been recorded on the deal.
func (d *Deal) HasBuyer() bool {
	return d != nil && d.Buyer != ([20]byte{})
}

// Terminal reports whether the deal has reached a state that admits no further
// mutation.
func (d *Deal) Terminal() bool {
	return d != nil && (d.Status == DealCompleted || d.Status == DealCancelled)
}

// Clone returns a copy of the deal so callers can safely mutate the copy
// without affecting the stored instance.
func (d *Deal) Clone() *Deal {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// Valid reports whether the status value is within the supported range.
func (s DealStatus) Valid() bool {
	switch s {
	case DealActive, DealPending, DealCompleted, DealCancelled:
		return true
	default:
		return false
	}
}

// String returns the canonical lowercase name of the status.
func (s DealStatus) String() string {
	switch s {
	case DealActive:
		return "active"
	case DealPending:
		return "pending"
	case DealCompleted:
		return "completed"
	case DealCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DealID derives the deterministic identifier for a listing created by the
// given seller over the given property documents.
func DealID(seller [20]byte, propertyHash [32]byte, nonce uint64) [32]byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(nonce >> (56 - 8*i))
	}
	return ethcrypto.Keccak256Hash(seller[:], propertyHash[:], buf)
}

// SanitizeDeal validates the supplied deal definition and returns a cloned
// instance. The function does not mutate the original value.
func SanitizeDeal(d *Deal) (*Deal, error) {
	if d == nil {
		return nil, fmt.Errorf("nil deal")
	}
	clone := d.Clone()
	if clone.Seller == ([20]byte{}) {
		return nil, fmt.Errorf("deal seller required")
	}
	if clone.Price == 0 {
		return nil, fmt.Errorf("deal price must be positive")
	}
	if clone.Deadline <= clone.CreatedAt {
		return nil, fmt.Errorf("deal deadline must follow creation time")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid deal status: %d", clone.Status)
	}
	if clone.Status == DealPending && !clone.HasBuyer() {
		return nil, fmt.Errorf("pending deal requires a buyer")
	}
	return clone, nil
}
