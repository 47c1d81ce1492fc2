package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"realchain/crypto"
	"realchain/escrow"
	"realchain/events"
	"realchain/storage"
)

const (
	testToken   = "testtoken"
	testNow     = int64(1_700_000_000)
	testReserve = uint64(25)
)

type testEnv struct {
	server *Server
	store  *escrow.DealStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store := escrow.NewDealStore(db)
	engine := escrow.NewEngine(store, testReserve)
	recorder := events.NewRecorder(0)
	engine.SetEmitter(recorder)
	facade := escrow.NewFacade(engine, store)
	server := NewServer(facade, recorder, slog.New(slog.NewTextHandler(io.Discard, nil)))
	server.authToken = testToken
	server.SetNowFunc(func() int64 { return testNow })
	return &testEnv{server: server, store: store}
}

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func (env *testEnv) call(t *testing.T, token, method string, params ...interface{}) (int, *testResponse) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)
	resp := &testResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp), "raw response: %s", rec.Body.String())
	return rec.Code, resp
}

func bech32Addr(b [20]byte) string {
	return crypto.NewAddress(crypto.RCPrefix, b[:]).String()
}

func newKeyedActor(t *testing.T) (*crypto.PrivateKey, [20]byte, string) {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	var addr [20]byte
	copy(addr[:], key.PubKey().Address().Bytes())
	return key, addr, bech32Addr(addr)
}

func testAddr(fill byte) ([20]byte, string) {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr, bech32Addr(addr)
}

func testHashHex(fill byte) string {
	raw := bytes.Repeat([]byte{fill}, 32)
	return "0x" + hex.EncodeToString(raw)
}

func createTestListing(t *testing.T, env *testEnv, sellerAddr string, price uint64) string {
	t.Helper()
	status, resp := env.call(t, testToken, "escrow_createListing", createListingParams{
		Seller:       sellerAddr,
		Price:        fmt.Sprintf("%d", price),
		PropertyHash: testHashHex(0xAB),
		Nonce:        1,
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var deal dealJSON
	require.NoError(t, json.Unmarshal(resp.Result, &deal))
	return deal.ID
}

func signedOfferBundle(t *testing.T, env *testEnv, dealID string, key *crypto.PrivateKey, from [20]byte, amount uint64) []transferParam {
	t.Helper()
	id, err := parseHash32(dealID)
	require.NoError(t, err)
	custodian := escrow.CustodianAddress(id)
	transfer := escrow.Transfer{From: from, To: custodian, Amount: amount}
	require.NoError(t, escrow.SignTransfer(id, &transfer, key))
	return []transferParam{{
		From:   bech32Addr(from),
		To:     bech32Addr(custodian),
		Amount: fmt.Sprintf("%d", amount),
		Sig:    "0x" + hex.EncodeToString(transfer.Sig),
	}}
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	env := newTestEnv(t)
	_, sellerAddr := testAddr(0x01)
	params := createListingParams{Seller: sellerAddr, Price: "1000", PropertyHash: testHashHex(0x01), Nonce: 1}

	status, resp := env.call(t, "", "escrow_createListing", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	status, resp = env.call(t, "wrong", "escrow_createListing", params)
	require.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, resp.Error)
}

func TestReadsAreOpen(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, "", "escrow_listDeals", struct{}{})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
}

func TestCreateListingValidatesParams(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, testToken, "escrow_createListing", createListingParams{
		Seller:       "not-bech32",
		Price:        "1000",
		PropertyHash: testHashHex(0x01),
		Nonce:        1,
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestLifecycleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	_, seller, sellerAddr := newKeyedActor(t)
	buyerKey, buyer, buyerAddr := newKeyedActor(t)

	dealID := createTestListing(t, env, sellerAddr, 1_000)
	require.NoError(t, env.store.Credit(buyer, 1_000))

	status, resp := env.call(t, testToken, "escrow_makeOffer", makeOfferParams{
		ID:     dealID,
		Caller: buyerAddr,
		Bundle: signedOfferBundle(t, env, dealID, buyerKey, buyer, 1_000),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var deal dealJSON
	require.NoError(t, json.Unmarshal(resp.Result, &deal))
	require.Equal(t, "pending", deal.Status)
	require.NotNil(t, deal.Buyer)
	require.Equal(t, buyerAddr, *deal.Buyer)

	id, err := parseHash32(dealID)
	require.NoError(t, err)
	custodian := escrow.CustodianAddress(id)
	status, resp = env.call(t, testToken, "escrow_confirmTransfer", confirmTransferParams{
		ID:     dealID,
		Caller: sellerAddr,
		Bundle: []transferParam{{
			From:   bech32Addr(custodian),
			To:     bech32Addr(seller),
			Amount: fmt.Sprintf("%d", 1_000-testReserve),
		}},
		PropertyHash: testHashHex(0xAB),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Result, &deal))
	require.Equal(t, "completed", deal.Status)

	status, resp = env.call(t, "", "escrow_getBalance", balanceParams{Address: sellerAddr})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var balance balanceResult
	require.NoError(t, json.Unmarshal(resp.Result, &balance))
	require.Equal(t, fmt.Sprintf("%d", 1_000-testReserve), balance.Balance)

	status, resp = env.call(t, "", "escrow_listEvents", listEventsParams{})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var recorded []eventResult
	require.NoError(t, json.Unmarshal(resp.Result, &recorded))
	require.Len(t, recorded, 3)
	require.Equal(t, "escrow.deal.completed", recorded[2].Type)
}

func TestConflictSurfacesAsTypedError(t *testing.T) {
	env := newTestEnv(t)
	_, sellerAddr := testAddr(0x02)
	buyerKey, buyer, buyerAddr := newKeyedActor(t)
	rivalKey, rival, rivalAddr := newKeyedActor(t)

	dealID := createTestListing(t, env, sellerAddr, 1_000)
	for _, addr := range [][20]byte{buyer, rival} {
		require.NoError(t, env.store.Credit(addr, 1_000))
	}

	status, resp := env.call(t, testToken, "escrow_makeOffer", makeOfferParams{
		ID:     dealID,
		Caller: buyerAddr,
		Bundle: signedOfferBundle(t, env, dealID, buyerKey, buyer, 1_000),
	})
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)

	status, resp = env.call(t, testToken, "escrow_makeOffer", makeOfferParams{
		ID:     dealID,
		Caller: rivalAddr,
		Bundle: signedOfferBundle(t, env, dealID, rivalKey, rival, 1_000),
	})
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeConflict, resp.Error.Code)
	require.Equal(t, "not_active", resp.Error.Message)
}

func TestGetDealNotFound(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, "", "escrow_getDeal", dealIDParams{ID: testHashHex(0x42)})
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	status, resp := env.call(t, "", "escrow_unknownMethod")
	require.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestUnsupportedVersionRejected(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"jsonrpc":"1.0","id":1,"method":"escrow_listDeals","params":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := &testResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), resp))
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
}
