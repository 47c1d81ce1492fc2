package escrow

import (
	"errors"
	"testing"
)

func TestAuthorizeRoles(t *testing.T) {
	store := newTestStore(t)
	guard := NewAuthGuard(store)
	seller := newTestAddress(0x41)
	buyer := newTestAddress(0x42)
	stranger := newTestAddress(0x43)
	deal := testDeal(seller, 1)
	if err := store.PutDeal(deal); err != nil {
		t.Fatalf("put deal: %v", err)
	}

	if err := guard.Authorize(deal.ID, seller, RoleSeller); err != nil {
		t.Fatalf("seller must satisfy RoleSeller: %v", err)
	}
	if err := guard.Authorize(deal.ID, stranger, RoleSeller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := guard.Authorize(deal.ID, stranger, RoleAnyone); err != nil {
		t.Fatalf("RoleAnyone must always pass: %v", err)
	}

	// No buyer recorded yet: RoleBuyer is unsatisfiable.
	if err := guard.Authorize(deal.ID, buyer, RoleBuyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before a buyer exists, got %v", err)
	}
	if err := store.SetBuyer(deal.ID, buyer); err != nil {
		t.Fatalf("set buyer: %v", err)
	}
	if err := guard.Authorize(deal.ID, buyer, RoleBuyer); err != nil {
		t.Fatalf("buyer must satisfy RoleBuyer: %v", err)
	}
	if err := guard.Authorize(deal.ID, seller, RoleSellerOrBuyer); err != nil {
		t.Fatalf("seller must satisfy RoleSellerOrBuyer: %v", err)
	}
	if err := guard.Authorize(deal.ID, buyer, RoleSellerOrBuyer); err != nil {
		t.Fatalf("buyer must satisfy RoleSellerOrBuyer: %v", err)
	}
	if err := guard.Authorize(deal.ID, stranger, RoleSellerOrBuyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for stranger, got %v", err)
	}
}

func TestCancelRoleWidensAtDeadline(t *testing.T) {
	store := newTestStore(t)
	guard := NewAuthGuard(store)
	deal := testDeal(newTestAddress(0x44), 2)

	if role := guard.CancelRole(deal, deal.Deadline-1); role != RoleSellerOrBuyer {
		t.Fatalf("expected RoleSellerOrBuyer before the deadline, got %s", role)
	}
	if role := guard.CancelRole(deal, deal.Deadline); role != RoleAnyone {
		t.Fatalf("expected RoleAnyone at the deadline, got %s", role)
	}
	if role := guard.CancelRole(deal, deal.Deadline+100); role != RoleAnyone {
		t.Fatalf("expected RoleAnyone past the deadline, got %s", role)
	}
}
