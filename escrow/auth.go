package escrow

import "fmt"

// Role names the authorization level a transition requires.
type Role uint8

const (
	RoleSeller Role = iota
	RoleBuyer
	RoleSellerOrBuyer
	RoleAnyone
)

// String returns the canonical lowercase name of the role.
func (r Role) String() string {
	switch r {
	case RoleSeller:
		return "seller"
	case RoleBuyer:
		return "buyer"
	case RoleSellerOrBuyer:
		return "seller-or-buyer"
	case RoleAnyone:
		return "anyone"
	default:
		return "unknown"
	}
}

// AuthGuard resolves a caller against the seller and buyer identities recorded
// in the deal store. The buyer role is only satisfiable once a buyer has been
// recorded.
type AuthGuard struct {
	store *DealStore
}

// NewAuthGuard constructs a guard reading identities from the store.
func NewAuthGuard(store *DealStore) *AuthGuard {
	return &AuthGuard{store: store}
}

// Authorize checks the caller against the required role, returning
// ErrUnauthorized when the caller does not hold it.
func (g *AuthGuard) Authorize(id [32]byte, caller [20]byte, role Role) error {
	if role == RoleAnyone {
		return nil
	}
	seller, err := g.store.getBytes(id, FieldSeller, 20)
	if err != nil {
		return err
	}
	isSeller := string(seller) == string(caller[:])
	isBuyer := false
	hasBuyer, err := g.store.Exists(id, FieldBuyer)
	if err != nil {
		return err
	}
	if hasBuyer {
		buyer, err := g.store.getBytes(id, FieldBuyer, 20)
		if err != nil {
			return err
		}
		isBuyer = string(buyer) == string(caller[:])
	}
	switch role {
	case RoleSeller:
		if isSeller {
			return nil
		}
	case RoleBuyer:
		if isBuyer {
			return nil
		}
	case RoleSellerOrBuyer:
		if isSeller || isBuyer {
			return nil
		}
	default:
		return fmt.Errorf("unknown role %d", role)
	}
	return fmt.Errorf("%w: caller lacks role %s", ErrUnauthorized, role)
}

// CancelRole resolves the role cancellation requires at the given time.
// Past the deadline anyone may cancel, so a pending deal can never deadlock
// when a counterparty disappears.
func (g *AuthGuard) CancelRole(deal *Deal, now int64) Role {
	if deal != nil && now >= deal.Deadline {
		return RoleAnyone
	}
	return RoleSellerOrBuyer
}
