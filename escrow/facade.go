package escrow

import (
	"fmt"
	"sync"
)

// Action names accepted by the facade dispatcher.
const (
	ActionCreateListing   = "create_listing"
	ActionMakeOffer       = "make_offer"
	ActionConfirmTransfer = "confirm_transfer"
	ActionCancelDeal      = "cancel_deal"
	ActionPruneDeal       = "prune_deal"
	ActionReadState       = "read_state"
)

// Args carries the per-action parameters accompanying a dispatch. Unused
// fields are ignored by actions that do not consume them.
type Args struct {
	DealID       [32]byte
	Price        uint64
	PropertyHash [32]byte
	Nonce        uint64
	ConfirmHash  *[32]byte
}

// Facade is the single externally exposed surface of the escrow engine. It
// serializes mutating operations per deal, so concurrent calls against the
// same deal commit one at a time and the loser of a racing offer observes
// the pending state on retry. Operations on distinct deals are independent.
type Facade struct {
	engine *Engine
	store  *DealStore

	mu    sync.Mutex
	locks map[[32]byte]*sync.Mutex
}

// NewFacade composes the facade over an engine and its store.
func NewFacade(engine *Engine, store *DealStore) *Facade {
	return &Facade{
		engine: engine,
		store:  store,
		locks:  make(map[[32]byte]*sync.Mutex),
	}
}

func (f *Facade) lockFor(id [32]byte) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[id] = lock
	}
	return lock
}

// releaseLock drops the lock entry for a deal whose record no longer exists,
// so the map stays bounded by the set of live deals.
func (f *Facade) releaseLock(id [32]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, id)
}

// Dispatch routes the action to the state machine and returns the new deal
// snapshot, or a typed failure surfaced unmodified from the engine. Pruning a
// deal returns a nil snapshot because the record no longer exists.
func (f *Facade) Dispatch(action string, args Args, bundle *Bundle, caller [20]byte, now int64) (*Deal, error) {
	if f == nil || f.engine == nil {
		return nil, errNilStore
	}
	id := args.DealID
	if action == ActionCreateListing {
		id = DealID(caller, args.PropertyHash, args.Nonce)
	}
	switch action {
	case ActionReadState:
		return f.ReadState(id)
	case ActionCreateListing, ActionMakeOffer, ActionConfirmTransfer, ActionCancelDeal, ActionPruneDeal:
	default:
		return nil, fmt.Errorf("unknown escrow action %q", action)
	}
	lock := f.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	switch action {
	case ActionCreateListing:
		return f.engine.CreateListing(caller, args.Price, args.PropertyHash, args.Nonce, now)
	case ActionMakeOffer:
		return f.engine.MakeOffer(id, caller, bundle, now)
	case ActionConfirmTransfer:
		return f.engine.ConfirmTransfer(id, caller, bundle, args.ConfirmHash, now)
	case ActionCancelDeal:
		return f.engine.CancelDeal(id, caller, bundle, now)
	case ActionPruneDeal:
		if err := f.engine.PruneDeal(id, caller); err != nil {
			return nil, err
		}
		f.releaseLock(id)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown escrow action %q", action)
}

// ReadState returns the current deal snapshot. It is side-effect-free,
// callable by anyone, and fails only with ErrNotFound.
func (f *Facade) ReadState(id [32]byte) (*Deal, error) {
	if f == nil || f.store == nil {
		return nil, errNilStore
	}
	return f.store.GetDeal(id)
}

// ListDeals returns snapshots of every stored deal in creation order.
func (f *Facade) ListDeals() ([]*Deal, error) {
	if f == nil || f.store == nil {
		return nil, errNilStore
	}
	ids, err := f.store.ListDealIDs()
	if err != nil {
		return nil, err
	}
	deals := make([]*Deal, 0, len(ids))
	for _, id := range ids {
		deal, err := f.store.GetDeal(id)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	return deals, nil
}

// Balance returns the ledger balance recorded for the address.
func (f *Facade) Balance(addr [20]byte) (uint64, error) {
	if f == nil || f.store == nil {
		return 0, errNilStore
	}
	return f.store.Balance(addr)
}

// Reserve returns the custodian reserve withheld from payouts.
func (f *Facade) Reserve() uint64 {
	if f == nil || f.engine == nil {
		return 0
	}
	return f.engine.Reserve()
}
