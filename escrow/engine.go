package escrow

import (
	"errors"
	"fmt"

	"realchain/events"
)

var errNilStore = errors.New("escrow engine: store not configured")

// Engine orchestrates deal lifecycle transitions: it gates every operation on
// the authorization guard and the bundle validator, evaluates deadlines
// against the caller-supplied clock, and applies the bundled transfer together
// with the status write. Every guard runs before any mutation, so a failed
// call leaves the stored deal byte-for-byte unchanged.
type Engine struct {
	store   *DealStore
	auth    *AuthGuard
	bundles *BundleValidator
	emitter events.Emitter
	window  int64
}

// NewEngine creates a deal engine over the given store with a no-op emitter,
// the default thirty-day listing window and the given custodian reserve.
func NewEngine(store *DealStore, reserve uint64) *Engine {
	return &Engine{
		store:   store,
		auth:    NewAuthGuard(store),
		bundles: NewBundleValidator(reserve),
		emitter: events.NoopEmitter{},
		window:  DefaultListingWindow,
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetListingWindow overrides the listing lifetime, in seconds. Values of zero
// or below restore the default window.
func (e *Engine) SetListingWindow(seconds int64) {
	if seconds <= 0 {
		e.window = DefaultListingWindow
		return
	}
	e.window = seconds
}

// Reserve returns the custodian reserve withheld from payouts.
func (e *Engine) Reserve() uint64 { return e.bundles.Reserve() }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) loadDeal(id [32]byte) (*Deal, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	return e.store.GetDeal(id)
}

// CreateListing initialises and persists a new deal. The caller becomes the
// seller, the price and property hash are fixed for the deal's lifetime and
// the deadline is pinned to now plus the listing window. Re-creating an
// identical listing is idempotent; colliding identifiers with a different
// definition are rejected.
func (e *Engine) CreateListing(caller [20]byte, price uint64, propertyHash [32]byte, nonce uint64, now int64) (*Deal, error) {
	if e == nil || e.store == nil {
		return nil, errNilStore
	}
	if caller == ([20]byte{}) {
		return nil, fmt.Errorf("escrow: seller address required")
	}
	if price == 0 {
		return nil, fmt.Errorf("escrow: price must be positive")
	}
	if price <= e.bundles.Reserve() {
		return nil, fmt.Errorf("escrow: price %d must exceed custodian reserve %d", price, e.bundles.Reserve())
	}
	id := DealID(caller, propertyHash, nonce)
	if exists, err := e.store.HasDeal(id); err != nil {
		return nil, err
	} else if exists {
		existing, err := e.store.GetDeal(id)
		if err != nil {
			return nil, err
		}
		if existing.Seller != caller || existing.Price != price || existing.PropertyHash != propertyHash {
			return nil, fmt.Errorf("escrow: identifier already exists with different definition")
		}
		return existing, nil
	}
	deal := &Deal{
		ID:           id,
		Seller:       caller,
		Price:        price,
		PropertyHash: propertyHash,
		CreatedAt:    now,
		Deadline:     now + e.window,
		Status:       DealActive,
	}
	if err := e.store.PutDeal(deal); err != nil {
		return nil, err
	}
	e.emit(NewListedEvent(deal))
	return deal.Clone(), nil
}

// MakeOffer records the caller as buyer and moves the deal to pending. The
// bundle must deposit exactly the listing price from the caller into the
// deal's custodian account.
func (e *Engine) MakeOffer(id [32]byte, caller [20]byte, bundle *Bundle, now int64) (*Deal, error) {
	deal, err := e.loadDeal(id)
	if err != nil {
		return nil, err
	}
	if deal.Status != DealActive {
		return nil, fmt.Errorf("%w: status %s", ErrDealNotActive, deal.Status)
	}
	if now >= deal.Deadline {
		return nil, fmt.Errorf("%w: deadline %d reached at %d", ErrDealExpired, deal.Deadline, now)
	}
	if caller == deal.Seller {
		return nil, fmt.Errorf("%w: seller cannot offer on own listing", ErrUnauthorized)
	}
	transfer, err := e.bundles.ValidateOffer(deal, caller, bundle)
	if err != nil {
		return nil, err
	}
	balance, err := e.store.Balance(transfer.From)
	if err != nil {
		return nil, err
	}
	if balance < transfer.Amount {
		return nil, fmt.Errorf("%w: deposit exceeds available balance %d", ErrBundleMismatch, balance)
	}
	if err := e.applyTransfer(transfer); err != nil {
		return nil, err
	}
	if err := e.store.SetBuyer(id, caller); err != nil {
		return nil, err
	}
	if err := e.store.SetStatus(id, DealPending); err != nil {
		return nil, err
	}
	deal.Buyer = caller
	deal.Status = DealPending
	e.emit(NewOfferedEvent(deal))
	return deal.Clone(), nil
}

// ConfirmTransfer settles the sale in the seller's favour. The bundle must
// pay the custodian balance, less the reserve, to the seller. When the
// optional property hash argument is supplied it must match the stored
// fingerprint.
func (e *Engine) ConfirmTransfer(id [32]byte, caller [20]byte, bundle *Bundle, confirmHash *[32]byte, now int64) (*Deal, error) {
	deal, err := e.loadDeal(id)
	if err != nil {
		return nil, err
	}
	if err := e.auth.Authorize(id, caller, RoleSeller); err != nil {
		return nil, err
	}
	if deal.Status != DealPending {
		return nil, fmt.Errorf("%w: status %s", ErrDealNotPending, deal.Status)
	}
	if now >= deal.Deadline {
		return nil, fmt.Errorf("%w: only cancellation is permitted past the deadline", ErrDealExpired)
	}
	if confirmHash != nil && *confirmHash != deal.PropertyHash {
		return nil, fmt.Errorf("%w: property hash does not match listing", ErrBundleMismatch)
	}
	transfer, err := e.bundles.ValidatePayout(deal, bundle)
	if err != nil {
		return nil, err
	}
	balance, err := e.store.Balance(transfer.From)
	if err != nil {
		return nil, err
	}
	if balance < transfer.Amount {
		return nil, fmt.Errorf("%w: custodian balance %d cannot cover payout", ErrBundleMismatch, balance)
	}
	if err := e.applyTransfer(transfer); err != nil {
		return nil, err
	}
	if err := e.store.SetStatus(id, DealCompleted); err != nil {
		return nil, err
	}
	deal.Status = DealCompleted
	e.emit(NewCompletedEvent(deal))
	return deal.Clone(), nil
}

// CancelDeal moves a live deal to cancelled. Before any offer the bundle is
// the bare call; once a buyer is recorded it must refund the deposit, less
// the reserve, from the custodian to the buyer. The seller and buyer may
// cancel at any time; past the deadline anyone may.
func (e *Engine) CancelDeal(id [32]byte, caller [20]byte, bundle *Bundle, now int64) (*Deal, error) {
	deal, err := e.loadDeal(id)
	if err != nil {
		return nil, err
	}
	if deal.Terminal() {
		return nil, fmt.Errorf("%w: status %s", ErrDealNotCancellable, deal.Status)
	}
	if err := e.auth.Authorize(id, caller, e.auth.CancelRole(deal, now)); err != nil {
		return nil, err
	}
	transfer, hasTransfer, err := e.bundles.ValidateRefund(deal, bundle)
	if err != nil {
		return nil, err
	}
	if hasTransfer {
		balance, err := e.store.Balance(transfer.From)
		if err != nil {
			return nil, err
		}
		if balance < transfer.Amount {
			return nil, fmt.Errorf("%w: custodian balance %d cannot cover refund", ErrBundleMismatch, balance)
		}
		if err := e.applyTransfer(transfer); err != nil {
			return nil, err
		}
	}
	if err := e.store.SetStatus(id, DealCancelled); err != nil {
		return nil, err
	}
	deal.Status = DealCancelled
	e.emit(NewCancelledEvent(deal))
	return deal.Clone(), nil
}

// PruneDeal deletes the record of a terminal deal. Only the seller may prune,
// and only once the deal has completed or been cancelled; the record is
// otherwise retained read-only for audit.
func (e *Engine) PruneDeal(id [32]byte, caller [20]byte) error {
	deal, err := e.loadDeal(id)
	if err != nil {
		return err
	}
	if err := e.auth.Authorize(id, caller, RoleSeller); err != nil {
		return err
	}
	if !deal.Terminal() {
		return fmt.Errorf("%w: status %s", ErrDealNotTerminal, deal.Status)
	}
	if err := e.store.DeleteDeal(id); err != nil {
		return err
	}
	e.emit(NewPrunedEvent(deal))
	return nil
}

func (e *Engine) applyTransfer(t Transfer) error {
	if t.Amount == 0 {
		return nil
	}
	if err := e.store.Debit(t.From, t.Amount); err != nil {
		return err
	}
	return e.store.Credit(t.To, t.Amount)
}
