package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalances(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000F0")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/balances", r.URL.Path)
		assert.Equal(t, addr.Hex(), r.URL.Query().Get("address"))
		assert.Equal(t, "8453", r.URL.Query().Get("chainId"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tokens":[
			{"address":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","balance":"12500000","decimals":6,"symbol":"USDC"},
			{"address":"0x0000000000000000000000000000000000001234","balance":"999","decimals":18,"symbol":"JUNK"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	balances, err := c.Balances(context.Background(), addr, 8453)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	assert.Equal(t, "USDC", balances[0].Symbol)
	assert.Equal(t, int64(12_500_000), balances[0].Balance.Int64())
	assert.Equal(t, uint8(6), balances[0].Decimals)
}

func TestBalancesMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tokens":[{"address":"0x0000000000000000000000000000000000001234","balance":"not-a-number","decimals":6}]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Balances(context.Background(), common.Address{}, 1)
	assert.ErrorContains(t, err, "malformed balance")
}

func TestHistory(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000F0")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/history", r.URL.Path)
		assert.Equal(t, addr.Hex(), r.URL.Query().Get("address"))

		_, _ = w.Write([]byte(`{"items":[
			{"timeMs":1700000000000,"details":{
				"txHash":"0x0000000000000000000000000000000000000000000000000000000000000101",
				"chainId":8453,"type":"Transfer","status":"completed",
				"tokenActions":[{"address":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","standard":"ERC20","amount":"5000000","direction":"Out"}]
			}}
		]}`))
	}))
	defer srv.Close()

	records, err := NewClient(srv.URL).History(context.Background(), addr)
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.Equal(t, int64(1700000000000), records[0].TimeMs)
	assert.Equal(t, uint64(8453), records[0].Details.ChainID)
	require.Len(t, records[0].Details.TokenActions, 1)
	assert.Equal(t, "Out", records[0].Details.TokenActions[0].Direction)
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).History(context.Background(), common.Address{})
	assert.ErrorContains(t, err, "502")
}
