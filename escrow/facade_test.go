package escrow

import (
	"errors"
	"testing"
)

func newTestFacade(t *testing.T) (*Facade, *DealStore) {
	t.Helper()
	store := newTestStore(t)
	return NewFacade(newTestEngine(store), store), store
}

func TestDispatchDrivesFullLifecycle(t *testing.T) {
	facade, store := newTestFacade(t)
	seller := newTestAddress(0x61)
	buyerKey, buyer := newTestKey(t)
	hash := testPropertyHash(0x62)

	deal, err := facade.Dispatch(ActionCreateListing, Args{Price: 1_000, PropertyHash: hash, Nonce: 1}, nil, seller, testNow)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if deal.ID != DealID(seller, hash, 1) {
		t.Fatalf("dispatch must derive the deal identifier from the caller")
	}

	if err := store.Credit(buyer, 1_000); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	deal, err = facade.Dispatch(ActionMakeOffer, Args{DealID: deal.ID}, depositBundle(t, deal, buyerKey, 1_000), buyer, testNow+10)
	if err != nil {
		t.Fatalf("make offer: %v", err)
	}
	if deal.Status != DealPending {
		t.Fatalf("expected pending, got %s", deal.Status)
	}

	deal, err = facade.Dispatch(ActionConfirmTransfer, Args{DealID: deal.ID, ConfirmHash: &hash}, payoutBundle(deal), seller, testNow+20)
	if err != nil {
		t.Fatalf("confirm transfer: %v", err)
	}
	if deal.Status != DealCompleted {
		t.Fatalf("expected completed, got %s", deal.Status)
	}

	snapshot, err := facade.Dispatch(ActionReadState, Args{DealID: deal.ID}, nil, [20]byte{}, testNow+30)
	if err != nil {
		t.Fatalf("read state: %v", err)
	}
	if snapshot.Status != DealCompleted {
		t.Fatalf("expected completed snapshot, got %s", snapshot.Status)
	}

	pruned, err := facade.Dispatch(ActionPruneDeal, Args{DealID: deal.ID}, nil, seller, testNow+40)
	if err != nil {
		t.Fatalf("prune deal: %v", err)
	}
	if pruned != nil {
		t.Fatalf("prune must return no snapshot")
	}
	if _, err := facade.ReadState(deal.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after prune, got %v", err)
	}
}

func TestPruneReleasesDealLock(t *testing.T) {
	facade, store := newTestFacade(t)
	seller := newTestAddress(0x66)
	hash := testPropertyHash(0x67)

	deal, err := facade.Dispatch(ActionCreateListing, Args{Price: 1_000, PropertyHash: hash, Nonce: 1}, nil, seller, testNow)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if _, err := facade.Dispatch(ActionCancelDeal, Args{DealID: deal.ID}, nil, seller, testNow+10); err != nil {
		t.Fatalf("cancel deal: %v", err)
	}
	if _, ok := facade.locks[deal.ID]; !ok {
		t.Fatalf("expected a lock entry for the live deal")
	}
	if _, err := facade.Dispatch(ActionPruneDeal, Args{DealID: deal.ID}, nil, seller, testNow+20); err != nil {
		t.Fatalf("prune deal: %v", err)
	}
	if _, ok := facade.locks[deal.ID]; ok {
		t.Fatalf("pruned deal must not retain a lock entry")
	}
	if _, err := store.GetDeal(deal.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after prune, got %v", err)
	}
}

func TestDispatchRejectsUnknownAction(t *testing.T) {
	facade, _ := newTestFacade(t)
	if _, err := facade.Dispatch("escrow_everything", Args{}, nil, newTestAddress(0x63), testNow); err == nil {
		t.Fatalf("expected rejection of unknown action")
	}
}

func TestListDealsReturnsSnapshots(t *testing.T) {
	facade, _ := newTestFacade(t)
	seller := newTestAddress(0x64)
	for nonce := uint64(1); nonce <= 3; nonce++ {
		if _, err := facade.Dispatch(ActionCreateListing, Args{Price: 500, PropertyHash: testPropertyHash(byte(nonce)), Nonce: nonce}, nil, seller, testNow); err != nil {
			t.Fatalf("create listing %d: %v", nonce, err)
		}
	}
	deals, err := facade.ListDeals()
	if err != nil {
		t.Fatalf("list deals: %v", err)
	}
	if len(deals) != 3 {
		t.Fatalf("expected 3 deals, got %d", len(deals))
	}
}

func TestFacadeBalanceAndReserve(t *testing.T) {
	facade, store := newTestFacade(t)
	addr := newTestAddress(0x65)
	if err := store.Credit(addr, 250); err != nil {
		t.Fatalf("credit: %v", err)
	}
	balance, err := facade.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 250 {
		t.Fatalf("expected 250, got %d", balance)
	}
	if facade.Reserve() != testReserve {
		t.Fatalf("expected reserve %d, got %d", testReserve, facade.Reserve())
	}
}
