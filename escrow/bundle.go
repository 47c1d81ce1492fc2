package escrow

import (
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"realchain/crypto"
)

// Transfer is a single fund movement inside a bundle. Caller-origin transfers
// carry a recoverable signature over TransferDigest; custodian-origin
// transfers carry none, because the custodian holds no key and its outgoing
// payments are authorized solely by the validator's own guard evaluation.
type Transfer struct {
	From   [20]byte
	To     [20]byte
	Amount uint64
	Sig    []byte
}

// Bundle is an atomic set of ledger actions: the state-transition call plus
// any transfers that must land with it. Either the whole bundle applies or
// none of it does.
type Bundle struct {
	Transfers []Transfer
}

// Size counts the actions in the bundle, the implicit state-transition call
// included.
func (b *Bundle) Size() int {
	if b == nil {
		return 1
	}
	return 1 + len(b.Transfers)
}

// CustodianAddress derives the escrow custodian account for a deal. The
// address is program-derived: no private key maps to it, so funds held there
// can only move through a validated bundle.
func CustodianAddress(id [32]byte) [20]byte {
	hash := ethcrypto.Keccak256([]byte("realchain/custodian"), id[:])
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// TransferDigest computes the signing digest binding a transfer to its deal.
func TransferDigest(id [32]byte, t Transfer) []byte {
	amount := make([]byte, 8)
	binary.BigEndian.PutUint64(amount, t.Amount)
	return ethcrypto.Keccak256([]byte("realchain/transfer"), id[:], t.From[:], t.To[:], amount)
}

// SignTransfer attaches a signature binding the transfer to the deal on
// behalf of the originating account.
func SignTransfer(id [32]byte, t *Transfer, key *crypto.PrivateKey) error {
	if t == nil {
		return fmt.Errorf("nil transfer")
	}
	sig, err := key.Sign(TransferDigest(id, *t))
	if err != nil {
		return err
	}
	t.Sig = sig
	return nil
}

// BundleValidator checks that a fund transfer and its state transition arrive
// as one indivisible unit with the correct counterparties and amounts. It is
// the sole authority permitted to admit custodian-origin transfers.
type BundleValidator struct {
	reserve uint64
}

// NewBundleValidator constructs a validator withholding the given reserve
// from custodian payouts.
func NewBundleValidator(reserve uint64) *BundleValidator {
	return &BundleValidator{reserve: reserve}
}

// Reserve returns the minimum-balance buffer withheld from custodian payouts.
func (v *BundleValidator) Reserve() uint64 { return v.reserve }

func (v *BundleValidator) verifySignature(id [32]byte, t Transfer) error {
	if len(t.Sig) == 0 {
		return fmt.Errorf("%w: transfer missing signature", ErrBundleMismatch)
	}
	signer, err := crypto.RecoverAddress(TransferDigest(id, t), t.Sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBundleMismatch, err)
	}
	var from [20]byte
	copy(from[:], signer.Bytes())
	if from != t.From {
		return fmt.Errorf("%w: transfer signer does not match sender", ErrBundleMismatch)
	}
	return nil
}

// ValidateOffer admits the deposit bundle for make_offer: exactly one
// transfer, caller to custodian, amount equal to the listing price, signed by
// the caller.
func (v *BundleValidator) ValidateOffer(deal *Deal, caller [20]byte, b *Bundle) (Transfer, error) {
	if b == nil || b.Size() != 2 {
		return Transfer{}, fmt.Errorf("%w: offer bundle must contain exactly one transfer", ErrBundleMismatch)
	}
	t := b.Transfers[0]
	if t.From != caller {
		return Transfer{}, fmt.Errorf("%w: deposit sender must be the caller", ErrBundleMismatch)
	}
	if t.To != CustodianAddress(deal.ID) {
		return Transfer{}, fmt.Errorf("%w: deposit receiver must be the escrow custodian", ErrBundleMismatch)
	}
	if t.Amount != deal.Price {
		return Transfer{}, fmt.Errorf("%w: deposit amount %d does not match price %d", ErrBundleMismatch, t.Amount, deal.Price)
	}
	if err := v.verifySignature(deal.ID, t); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

// ValidatePayout admits the settlement bundle for confirm_transfer: exactly
// one transfer from the custodian to the seller for price minus the reserve.
func (v *BundleValidator) ValidatePayout(deal *Deal, b *Bundle) (Transfer, error) {
	return v.validateCustodianOut(deal, b, deal.Seller, "payout")
}

// ValidateRefund admits the cancellation bundle for cancel_deal. When a buyer
// is recorded the bundle must refund the custodian balance to the buyer; a
// buyerless cancellation carries no transfer at all.
func (v *BundleValidator) ValidateRefund(deal *Deal, b *Bundle) (Transfer, bool, error) {
	if !deal.HasBuyer() {
		if b.Size() != 1 {
			return Transfer{}, false, fmt.Errorf("%w: cancellation before any offer carries no transfer", ErrBundleMismatch)
		}
		return Transfer{}, false, nil
	}
	t, err := v.validateCustodianOut(deal, b, deal.Buyer, "refund")
	if err != nil {
		return Transfer{}, false, err
	}
	return t, true, nil
}

func (v *BundleValidator) validateCustodianOut(deal *Deal, b *Bundle, to [20]byte, kind string) (Transfer, error) {
	if b == nil || b.Size() != 2 {
		return Transfer{}, fmt.Errorf("%w: %s bundle must contain exactly one transfer", ErrBundleMismatch, kind)
	}
	if deal.Price <= v.reserve {
		return Transfer{}, fmt.Errorf("%w: price %d does not cover custodian reserve %d", ErrBundleMismatch, deal.Price, v.reserve)
	}
	t := b.Transfers[0]
	if t.From != CustodianAddress(deal.ID) {
		return Transfer{}, fmt.Errorf("%w: %s sender must be the escrow custodian", ErrBundleMismatch, kind)
	}
	if t.To != to {
		return Transfer{}, fmt.Errorf("%w: %s receiver mismatch", ErrBundleMismatch, kind)
	}
	if want := deal.Price - v.reserve; t.Amount != want {
		return Transfer{}, fmt.Errorf("%w: %s amount %d does not match %d", ErrBundleMismatch, kind, t.Amount, want)
	}
	if len(t.Sig) != 0 {
		return Transfer{}, fmt.Errorf("%w: custodian transfers carry no external signature", ErrBundleMismatch)
	}
	return t, nil
}
