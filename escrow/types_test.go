package escrow

import "testing"

func TestDealIDDerivation(t *testing.T) {
	seller := newTestAddress(0x51)
	hash := testPropertyHash(0x52)

	if DealID(seller, hash, 1) != DealID(seller, hash, 1) {
		t.Fatalf("identifier derivation must be deterministic")
	}
	if DealID(seller, hash, 1) == DealID(seller, hash, 2) {
		t.Fatalf("nonce must separate identifiers")
	}
	if DealID(seller, hash, 1) == DealID(newTestAddress(0x53), hash, 1) {
		t.Fatalf("seller must separate identifiers")
	}
}

func TestStatusStrings(t *testing.T) {
	cases := map[DealStatus]string{
		DealActive:    "active",
		DealPending:   "pending",
		DealCompleted: "completed",
		DealCancelled: "cancelled",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
		if !status.Valid() {
			t.Fatalf("%s must be valid", want)
		}
	}
	if DealStatus(99).Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}

func TestTerminal(t *testing.T) {
	deal := testDeal(newTestAddress(0x54), 1)
	for _, status := range []DealStatus{DealActive, DealPending} {
		deal.Status = status
		if deal.Terminal() {
			t.Fatalf("%s must not be terminal", status)
		}
	}
	for _, status := range []DealStatus{DealCompleted, DealCancelled} {
		deal.Status = status
		if !deal.Terminal() {
			t.Fatalf("%s must be terminal", status)
		}
	}
}

func TestSanitizeDeal(t *testing.T) {
	valid := testDeal(newTestAddress(0x55), 1)
	if _, err := SanitizeDeal(valid); err != nil {
		t.Fatalf("valid deal rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Deal)
	}{
		{"zero seller", func(d *Deal) { d.Seller = [20]byte{} }},
		{"zero price", func(d *Deal) { d.Price = 0 }},
		{"deadline before creation", func(d *Deal) { d.Deadline = d.CreatedAt }},
		{"pending without buyer", func(d *Deal) { d.Status = DealPending }},
		{"invalid status", func(d *Deal) { d.Status = DealStatus(99) }},
	}
	for _, tc := range cases {
		deal := testDeal(newTestAddress(0x55), 1)
		tc.mutate(deal)
		if _, err := SanitizeDeal(deal); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	deal := testDeal(newTestAddress(0x56), 1)
	clone := deal.Clone()
	clone.Price = 42
	if deal.Price == 42 {
		t.Fatalf("clone must not alias the original")
	}
}
