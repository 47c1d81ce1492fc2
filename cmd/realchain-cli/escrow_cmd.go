package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"realchain/crypto"
	"realchain/escrow"
)

type dealInfo struct {
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

type transferArg struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Sig    string `json:"sig,omitempty"`
}

func fetchDeal(id string) (*dealInfo, error) {
	result, err := rpcCall("escrow_getDeal", map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	deal := &dealInfo{}
	if err := json.Unmarshal(result, deal); err != nil {
		return nil, fmt.Errorf("decode deal: %w", err)
	}
	return deal, nil
}

func parseDealID(raw string) ([32]byte, error) {
	var id [32]byte
	cleaned := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil || len(decoded) != 32 {
		return id, fmt.Errorf("deal id must be 32 hex-encoded bytes")
	}
	copy(id[:], decoded)
	return id, nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func createListing(args []string) {
	if len(args) < 4 {
		fatalf("Usage: create-listing <key-file> <price> <property-hash> <nonce>")
	}
	key, err := loadKey(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	if _, err := strconv.ParseUint(args[1], 10, 64); err != nil {
		fatalf("Invalid price: %v", err)
	}
	nonce, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		fatalf("Invalid nonce: %v", err)
	}
	result, err := rpcCall("escrow_createListing", map[string]interface{}{
		"seller":       key.PubKey().Address().String(),
		"price":        args[1],
		"propertyHash": args[2],
		"nonce":        nonce,
	})
	if err != nil {
		fatalf("create-listing failed: %v", err)
	}
	printJSON(result)
}

func makeOffer(args []string) {
	if len(args) < 2 {
		fatalf("Usage: make-offer <key-file> <deal-id>")
	}
	key, err := loadKey(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	deal, err := fetchDeal(args[1])
	if err != nil {
		fatalf("fetch deal: %v", err)
	}
	id, err := parseDealID(deal.ID)
	if err != nil {
		fatalf("%v", err)
	}
	price, err := strconv.ParseUint(deal.Price, 10, 64)
	if err != nil {
		fatalf("Invalid price in deal snapshot: %v", err)
	}
	caller := key.PubKey().Address()
	transfer := escrow.Transfer{Amount: price}
	copy(transfer.From[:], caller.Bytes())
	custodian, err := crypto.DecodeAddress(deal.Custodian)
	if err != nil {
		fatalf("Invalid custodian in deal snapshot: %v", err)
	}
	copy(transfer.To[:], custodian.Bytes())
	if err := escrow.SignTransfer(id, &transfer, key); err != nil {
		fatalf("sign deposit: %v", err)
	}
	result, err := rpcCall("escrow_makeOffer", map[string]interface{}{
		"id":     deal.ID,
		"caller": caller.String(),
		"bundle": []transferArg{{
			From:   caller.String(),
			To:     deal.Custodian,
			Amount: deal.Price,
			Sig:    hex.EncodeToString(transfer.Sig),
		}},
	})
	if err != nil {
		fatalf("make-offer failed: %v", err)
	}
	printJSON(result)
}

func custodianOutAmount(deal *dealInfo) (string, error) {
	price, err := strconv.ParseUint(deal.Price, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid price in deal snapshot: %w", err)
	}
	reserve, err := strconv.ParseUint(deal.Reserve, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid reserve in deal snapshot: %w", err)
	}
	if price <= reserve {
		return "", fmt.Errorf("price %d does not cover reserve %d", price, reserve)
	}
	return strconv.FormatUint(price-reserve, 10), nil
}

func confirmTransfer(args []string) {
	if len(args) < 2 {
		fatalf("Usage: confirm-transfer <key-file> <deal-id> [property-hash]")
	}
	key, err := loadKey(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	deal, err := fetchDeal(args[1])
	if err != nil {
		fatalf("fetch deal: %v", err)
	}
	amount, err := custodianOutAmount(deal)
	if err != nil {
		fatalf("%v", err)
	}
	params := map[string]interface{}{
		"id":     deal.ID,
		"caller": key.PubKey().Address().String(),
		"bundle": []transferArg{{
			From:   deal.Custodian,
			To:     deal.Seller,
			Amount: amount,
		}},
	}
	if len(args) > 2 {
		params["propertyHash"] = args[2]
	}
	result, err := rpcCall("escrow_confirmTransfer", params)
	if err != nil {
		fatalf("confirm-transfer failed: %v", err)
	}
	printJSON(result)
}

func cancelDeal(args []string) {
	if len(args) < 2 {
		fatalf("Usage: cancel-deal <key-file> <deal-id>")
	}
	key, err := loadKey(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	deal, err := fetchDeal(args[1])
	if err != nil {
		fatalf("fetch deal: %v", err)
	}
	params := map[string]interface{}{
		"id":     deal.ID,
		"caller": key.PubKey().Address().String(),
	}
	if deal.Buyer != nil {
		amount, err := custodianOutAmount(deal)
		if err != nil {
			fatalf("%v", err)
		}
		params["bundle"] = []transferArg{{
			From:   deal.Custodian,
			To:     *deal.Buyer,
			Amount: amount,
		}}
	}
	result, err := rpcCall("escrow_cancelDeal", params)
	if err != nil {
		fatalf("cancel-deal failed: %v", err)
	}
	printJSON(result)
}

func pruneDeal(args []string) {
	if len(args) < 2 {
		fatalf("Usage: prune-deal <key-file> <deal-id>")
	}
	key, err := loadKey(args[0])
	if err != nil {
		fatalf("%v", err)
	}
	result, err := rpcCall("escrow_pruneDeal", map[string]string{
		"id":     args[1],
		"caller": key.PubKey().Address().String(),
	})
	if err != nil {
		fatalf("prune-deal failed: %v", err)
	}
	printJSON(result)
}

func getDeal(args []string) {
	if len(args) < 1 {
		fatalf("Usage: get-deal <deal-id>")
	}
	result, err := rpcCall("escrow_getDeal", map[string]string{"id": args[0]})
	if err != nil {
		fatalf("get-deal failed: %v", err)
	}
	printJSON(result)
}

func listDeals() {
	result, err := rpcCall("escrow_listDeals")
	if err != nil {
		fatalf("list-deals failed: %v", err)
	}
	printJSON(result)
}

func listEvents(args []string) {
	params := map[string]string{}
	if len(args) > 0 {
		params["prefix"] = args[0]
	}
	result, err := rpcCall("escrow_listEvents", params)
	if err != nil {
		fatalf("list-events failed: %v", err)
	}
	printJSON(result)
}

func getBalance(args []string) {
	if len(args) < 1 {
		fatalf("Usage: balance <address>")
	}
	result, err := rpcCall("escrow_getBalance", map[string]string{"address": args[0]})
	if err != nil {
		fatalf("balance failed: %v", err)
	}
	printJSON(result)
}
