package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"realchain/crypto"
	"realchain/escrow"
	"realchain/observability"
)

type createListingParams struct {
	Seller       string `json:"seller"`
	Price        string `json:"price"`
	PropertyHash string `json:"propertyHash"`
	Nonce        uint64 `json:"nonce"`
}

type transferParam struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Sig    string `json:"sig,omitempty"`
}

type makeOfferParams struct {
	ID     string          `json:"id"`
	Caller string          `json:"caller"`
	Bundle []transferParam `json:"bundle"`
}

type confirmTransferParams struct {
	ID           string          `json:"id"`
	Caller       string          `json:"caller"`
	Bundle       []transferParam `json:"bundle"`
	PropertyHash string          `json:"propertyHash,omitempty"`
}

type cancelDealParams struct {
	ID     string          `json:"id"`
	Caller string          `json:"caller"`
	Bundle []transferParam `json:"bundle,omitempty"`
}

type actorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type dealIDParams struct {
	ID string `json:"id"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

type dealJSON struct {
	ID           string  `json:"id"`
	Seller       string  `json:"seller"`
	Buyer        *string `json:"buyer,omitempty"`
	Custodian    string  `json:"custodian"`
	Price        string  `json:"price"`
	PropertyHash string  `json:"propertyHash"`
	CreatedAt    int64   `json:"createdAt"`
	Deadline     int64   `json:"deadline"`
	Status       string  `json:"status"`
	Reserve      string  `json:"reserve"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type eventResult struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) formatDeal(d *escrow.Deal) *dealJSON {
	if d == nil {
		return nil
	}
	custodian := escrow.CustodianAddress(d.ID)
	out := &dealJSON{
		ID:           "0x" + hex.EncodeToString(d.ID[:]),
		Seller:       crypto.NewAddress(crypto.RCPrefix, d.Seller[:]).String(),
		Custodian:    crypto.NewAddress(crypto.RCPrefix, custodian[:]).String(),
		Price:        strconv.FormatUint(d.Price, 10),
		PropertyHash: "0x" + hex.EncodeToString(d.PropertyHash[:]),
		CreatedAt:    d.CreatedAt,
		Deadline:     d.Deadline,
		Status:       d.Status.String(),
		Reserve:      strconv.FormatUint(s.facade.Reserve(), 10),
	}
	if d.HasBuyer() {
		buyer := crypto.NewAddress(crypto.RCPrefix, d.Buyer[:]).String()
		out.Buyer = &buyer
	}
	return out
}

func parseBech32Address(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseHash32(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, fmt.Errorf("value required")
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 64 {
		return out, fmt.Errorf("value must be 32 bytes")
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded)
	return out, nil
}

func parseAmount(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("amount required")
	}
	amount, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	return amount, nil
}

func parseBundle(raw []transferParam) (*escrow.Bundle, error) {
	if len(raw) == 0 {
		return &escrow.Bundle{}, nil
	}
	bundle := &escrow.Bundle{Transfers: make([]escrow.Transfer, 0, len(raw))}
	for i, item := range raw {
		from, err := parseBech32Address(item.From)
		if err != nil {
			return nil, fmt.Errorf("transfer %d from: %w", i, err)
		}
		to, err := parseBech32Address(item.To)
		if err != nil {
			return nil, fmt.Errorf("transfer %d to: %w", i, err)
		}
		amount, err := parseAmount(item.Amount)
		if err != nil {
			return nil, fmt.Errorf("transfer %d: %w", i, err)
		}
		transfer := escrow.Transfer{From: from, To: to, Amount: amount}
		if sig := strings.TrimSpace(item.Sig); sig != "" {
			decoded, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
			if err != nil {
				return nil, fmt.Errorf("transfer %d sig: %w", i, err)
			}
			transfer.Sig = decoded
		}
		bundle.Transfers = append(bundle.Transfers, transfer)
	}
	return bundle, nil
}

func unmarshalSingleParam(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], target)
}

// escrowError classifies a typed engine failure into an HTTP status, an RPC
// code and a stable kind label for metrics.
func escrowError(err error) (int, int, string) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "not_found"
	case errors.Is(err, escrow.ErrUnauthorized):
		return http.StatusForbidden, codeForbidden, "unauthorized"
	case errors.Is(err, escrow.ErrBundleMismatch):
		return http.StatusConflict, codeConflict, "bundle_mismatch"
	case errors.Is(err, escrow.ErrDealNotActive):
		return http.StatusConflict, codeConflict, "not_active"
	case errors.Is(err, escrow.ErrDealNotPending):
		return http.StatusConflict, codeConflict, "not_pending"
	case errors.Is(err, escrow.ErrDealNotCancellable):
		return http.StatusConflict, codeConflict, "not_cancellable"
	case errors.Is(err, escrow.ErrDealNotTerminal):
		return http.StatusConflict, codeConflict, "not_terminal"
	case errors.Is(err, escrow.ErrDealExpired):
		return http.StatusConflict, codeConflict, "expired"
	default:
		return http.StatusInternalServerError, codeServerError, "internal"
	}
}

func (s *Server) dispatch(w http.ResponseWriter, req *RPCRequest, action string, args escrow.Args, bundle *escrow.Bundle, caller [20]byte) {
	start := time.Now()
	deal, err := s.facade.Dispatch(action, args, bundle, caller, s.now())
	if err != nil {
		status, code, kind := escrowError(err)
		observability.Escrow().Observe(action, start, kind)
		writeError(w, status, req.ID, code, kind, err.Error())
		return
	}
	observability.Escrow().Observe(action, start, "")
	if deal == nil {
		writeResult(w, req.ID, map[string]bool{"pruned": true})
		return
	}
	writeResult(w, req.ID, s.formatDeal(deal))
}

func (s *Server) handleCreateListing(w http.ResponseWriter, req *RPCRequest) {
	var params createListingParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseBech32Address(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	propertyHash, err := parseHash32(params.PropertyHash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	args := escrow.Args{Price: price, PropertyHash: propertyHash, Nonce: params.Nonce}
	s.dispatch(w, req, escrow.ActionCreateListing, args, nil, seller)
}

func (s *Server) handleMakeOffer(w http.ResponseWriter, req *RPCRequest) {
	var params makeOfferParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	bundle, err := parseBundle(params.Bundle)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.dispatch(w, req, escrow.ActionMakeOffer, escrow.Args{DealID: id}, bundle, caller)
}

func (s *Server) handleConfirmTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params confirmTransferParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	bundle, err := parseBundle(params.Bundle)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	args := escrow.Args{DealID: id}
	if strings.TrimSpace(params.PropertyHash) != "" {
		confirmHash, err := parseHash32(params.PropertyHash)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		args.ConfirmHash = &confirmHash
	}
	s.dispatch(w, req, escrow.ActionConfirmTransfer, args, bundle, caller)
}

func (s *Server) handleCancelDeal(w http.ResponseWriter, req *RPCRequest) {
	var params cancelDealParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	bundle, err := parseBundle(params.Bundle)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.dispatch(w, req, escrow.ActionCancelDeal, escrow.Args{DealID: id}, bundle, caller)
}

func (s *Server) handlePruneDeal(w http.ResponseWriter, req *RPCRequest) {
	var params actorParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.dispatch(w, req, escrow.ActionPruneDeal, escrow.Args{DealID: id}, nil, caller)
}

func (s *Server) handleGetDeal(w http.ResponseWriter, req *RPCRequest) {
	var params dealIDParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	deal, err := s.facade.ReadState(id)
	if err != nil {
		status, code, kind := escrowError(err)
		writeError(w, status, req.ID, code, kind, err.Error())
		return
	}
	writeResult(w, req.ID, s.formatDeal(deal))
}

func (s *Server) handleListDeals(w http.ResponseWriter, req *RPCRequest) {
	deals, err := s.facade.ListDeals()
	if err != nil {
		status, code, kind := escrowError(err)
		writeError(w, status, req.ID, code, kind, err.Error())
		return
	}
	results := make([]*dealJSON, 0, len(deals))
	for _, deal := range deals {
		results = append(results, s.formatDeal(deal))
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := unmarshalSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.facade.Balance(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal", err.Error())
		return
	}
	writeResult(w, req.ID, balanceResult{Address: params.Address, Balance: strconv.FormatUint(balance, 10)})
}

// handleListEvents returns recent escrow events. The optional prefix narrows
// results to a namespace such as "escrow.deal.".
func (s *Server) handleListEvents(w http.ResponseWriter, req *RPCRequest) {
	var params listEventsParams
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	if s.recorder == nil {
		writeResult(w, req.ID, []eventResult{})
		return
	}
	prefix := "escrow."
	if trimmed := strings.TrimSpace(params.Prefix); trimmed != "" {
		prefix = trimmed
	}
	normalizedPrefix := strings.ToLower(prefix)
	recorded := s.recorder.Events()
	results := make([]eventResult, 0, len(recorded))
	for _, evt := range recorded {
		if !strings.HasPrefix(strings.ToLower(evt.Type), normalizedPrefix) {
			continue
		}
		attrs := make(map[string]string, len(evt.Attributes))
		for k, v := range evt.Attributes {
			attrs[k] = v
		}
		results = append(results, eventResult{Type: evt.Type, Attributes: attrs})
	}
	if params.Limit != nil {
		limit := *params.Limit
		if limit < 0 {
			limit = 0
		}
		if limit < len(results) {
			results = results[:limit]
		}
	}
	for i := range results {
		results[i].Sequence = int64(i + 1)
	}
	writeResult(w, req.ID, results)
}
