package escrow

import (
	"errors"
	"fmt"
	"math"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"realchain/storage"
)

// Field names under which a deal's state is persisted. Each field is an
// independent key so the store can distinguish an unset field from one holding
// a zero value.
const (
	FieldSeller       = "seller"
	FieldBuyer        = "buyer"
	FieldPrice        = "price"
	FieldPropertyHash = "prop_hash"
	FieldCreated      = "created"
	FieldDeadline     = "deadline"
	FieldStatus       = "status"
)

var (
	dealPrefix    = []byte("deal:")
	balancePrefix = []byte("balance:")
	dealListKey   = ethcrypto.Keccak256([]byte("deal-list"))
)

// DealStore persists deal state as per-field key/value entries over a generic
// database, decoding a typed Deal snapshot once at the store boundary rather
// than re-interpreting raw fields at each read site.
type DealStore struct {
	db storage.Database
}

// NewDealStore creates a store operating on the provided database.
func NewDealStore(db storage.Database) *DealStore {
	return &DealStore{db: db}
}

func dealFieldKey(id [32]byte, field string) []byte {
	buf := make([]byte, 0, len(dealPrefix)+len(id)+1+len(field))
	buf = append(buf, dealPrefix...)
	buf = append(buf, id[:]...)
	buf = append(buf, ':')
	buf = append(buf, field...)
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr [20]byte) []byte {
	buf := make([]byte, 0, len(balancePrefix)+len(addr))
	buf = append(buf, balancePrefix...)
	buf = append(buf, addr[:]...)
	return ethcrypto.Keccak256(buf)
}

// Get returns the raw encoded value stored under the deal field. Reading an
// unset field fails with ErrNotFound.
func (s *DealStore) Get(id [32]byte, field string) ([]byte, error) {
	value, err := s.db.Get(dealFieldKey(id, field))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: field %s", ErrNotFound, field)
	}
	return value, err
}

// Put stores the raw encoded value under the deal field.
func (s *DealStore) Put(id [32]byte, field string, value []byte) error {
	return s.db.Put(dealFieldKey(id, field), value)
}

// Exists reports whether the deal field has been written, distinguishing
// absence from a stored zero value.
func (s *DealStore) Exists(id [32]byte, field string) (bool, error) {
	return s.db.Has(dealFieldKey(id, field))
}

func (s *DealStore) putUint64(id [32]byte, field string, v uint64) error {
	encoded, err := rlp.EncodeToBytes(v)
	if err != nil {
		return err
	}
	return s.Put(id, field, encoded)
}

func (s *DealStore) getUint64(id [32]byte, field string) (uint64, error) {
	raw, err := s.Get(id, field)
	if err != nil {
		return 0, err
	}
	var v uint64
	if err := rlp.DecodeBytes(raw, &v); err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return v, nil
}

func (s *DealStore) putBytes(id [32]byte, field string, v []byte) error {
	encoded, err := rlp.EncodeToBytes(v)
	if err != nil {
		return err
	}
	return s.Put(id, field, encoded)
}

func (s *DealStore) getBytes(id [32]byte, field string, want int) ([]byte, error) {
	raw, err := s.Get(id, field)
	if err != nil {
		return nil, err
	}
	var v []byte
	if err := rlp.DecodeBytes(raw, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	if len(v) != want {
		return nil, fmt.Errorf("decode %s: expected %d bytes, got %d", field, want, len(v))
	}
	return v, nil
}

// PutDeal persists every field of the deal. The buyer field is only written
// once a buyer has been recorded so its absence stays observable.
func (s *DealStore) PutDeal(d *Deal) error {
	sanitized, err := SanitizeDeal(d)
	if err != nil {
		return err
	}
	id := sanitized.ID
	if err := s.putBytes(id, FieldSeller, sanitized.Seller[:]); err != nil {
		return err
	}
	if err := s.putUint64(id, FieldPrice, sanitized.Price); err != nil {
		return err
	}
	if err := s.putBytes(id, FieldPropertyHash, sanitized.PropertyHash[:]); err != nil {
		return err
	}
	if err := s.putUint64(id, FieldCreated, uint64(sanitized.CreatedAt)); err != nil {
		return err
	}
	if err := s.putUint64(id, FieldDeadline, uint64(sanitized.Deadline)); err != nil {
		return err
	}
	if sanitized.HasBuyer() {
		if err := s.putBytes(id, FieldBuyer, sanitized.Buyer[:]); err != nil {
			return err
		}
	}
	if err := s.putUint64(id, FieldStatus, uint64(sanitized.Status)); err != nil {
		return err
	}
	return s.indexAdd(id)
}

// GetDeal loads and decodes the full deal snapshot. It fails with ErrNotFound
// when no deal exists for the identifier.
func (s *DealStore) GetDeal(id [32]byte) (*Deal, error) {
	status, err := s.getUint64(id, FieldStatus)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %x", ErrNotFound, id)
		}
		return nil, err
	}
	deal := &Deal{ID: id, Status: DealStatus(status)}
	seller, err := s.getBytes(id, FieldSeller, 20)
	if err != nil {
		return nil, err
	}
	copy(deal.Seller[:], seller)
	if deal.Price, err = s.getUint64(id, FieldPrice); err != nil {
		return nil, err
	}
	propHash, err := s.getBytes(id, FieldPropertyHash, 32)
	if err != nil {
		return nil, err
	}
	copy(deal.PropertyHash[:], propHash)
	created, err := s.getUint64(id, FieldCreated)
	if err != nil {
		return nil, err
	}
	deal.CreatedAt = int64(created)
	deadline, err := s.getUint64(id, FieldDeadline)
	if err != nil {
		return nil, err
	}
	deal.Deadline = int64(deadline)
	hasBuyer, err := s.Exists(id, FieldBuyer)
	if err != nil {
		return nil, err
	}
	if hasBuyer {
		buyer, err := s.getBytes(id, FieldBuyer, 20)
		if err != nil {
			return nil, err
		}
		copy(deal.Buyer[:], buyer)
	}
	return deal, nil
}

// HasDeal reports whether a deal exists for the identifier.
func (s *DealStore) HasDeal(id [32]byte) (bool, error) {
	return s.Exists(id, FieldStatus)
}

// SetBuyer records the buyer identity. The field may only be written once.
func (s *DealStore) SetBuyer(id [32]byte, buyer [20]byte) error {
	if buyer == ([20]byte{}) {
		return fmt.Errorf("buyer address required")
	}
	exists, err := s.Exists(id, FieldBuyer)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("buyer already recorded for deal %x", id)
	}
	return s.putBytes(id, FieldBuyer, buyer[:])
}

// SetStatus updates the lifecycle status field.
func (s *DealStore) SetStatus(id [32]byte, status DealStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid deal status: %d", status)
	}
	return s.putUint64(id, FieldStatus, uint64(status))
}

// DeleteDeal removes every stored field of the deal and its index entry.
func (s *DealStore) DeleteDeal(id [32]byte) error {
	for _, field := range []string{FieldSeller, FieldBuyer, FieldPrice, FieldPropertyHash, FieldCreated, FieldDeadline, FieldStatus} {
		if err := s.db.Delete(dealFieldKey(id, field)); err != nil {
			return err
		}
	}
	return s.indexRemove(id)
}

func (s *DealStore) loadIndex() ([][]byte, error) {
	raw, err := s.db.Get(dealListKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids [][]byte
	if err := rlp.DecodeBytes(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode deal index: %w", err)
	}
	return ids, nil
}

func (s *DealStore) writeIndex(ids [][]byte) error {
	encoded, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return err
	}
	return s.db.Put(dealListKey, encoded)
}

func (s *DealStore) indexAdd(id [32]byte) error {
	ids, err := s.loadIndex()
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if len(existing) == len(id) && string(existing) == string(id[:]) {
			return nil
		}
	}
	return s.writeIndex(append(ids, id[:]))
}

func (s *DealStore) indexRemove(id [32]byte) error {
	ids, err := s.loadIndex()
	if err != nil {
		return err
	}
	filtered := ids[:0]
	for _, existing := range ids {
		if len(existing) == len(id) && string(existing) == string(id[:]) {
			continue
		}
		filtered = append(filtered, existing)
	}
	return s.writeIndex(filtered)
}

// ListDealIDs returns the identifiers of every stored deal in creation order.
func (s *DealStore) ListDealIDs() ([][32]byte, error) {
	ids, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(ids))
	for _, raw := range ids {
		if len(raw) != 32 {
			return nil, fmt.Errorf("decode deal index: expected 32-byte id, got %d", len(raw))
		}
		var id [32]byte
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, nil
}

// Balance returns the ledger balance recorded for the address. Accounts with
// no history hold zero.
func (s *DealStore) Balance(addr [20]byte) (uint64, error) {
	raw, err := s.db.Get(balanceKey(addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	if err := rlp.DecodeBytes(raw, &v); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return v, nil
}

func (s *DealStore) writeBalance(addr [20]byte, v uint64) error {
	encoded, err := rlp.EncodeToBytes(v)
	if err != nil {
		return err
	}
	return s.db.Put(balanceKey(addr), encoded)
}

// Credit adds the amount to the address balance.
func (s *DealStore) Credit(addr [20]byte, amount uint64) error {
	balance, err := s.Balance(addr)
	if err != nil {
		return err
	}
	if balance > math.MaxUint64-amount {
		return fmt.Errorf("balance overflow for %x", addr)
	}
	return s.writeBalance(addr, balance+amount)
}

// Debit subtracts the amount from the address balance, failing when the
// balance cannot cover it.
func (s *DealStore) Debit(addr [20]byte, amount uint64) error {
	balance, err := s.Balance(addr)
	if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("insufficient balance for %x: have %d, need %d", addr, balance, amount)
	}
	return s.writeBalance(addr, balance-amount)
}
