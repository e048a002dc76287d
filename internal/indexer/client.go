// Package indexer is the HTTP client for the hosted index service that backs
// balance and history reads. The service proxies 1inch-style portfolio data;
// we keep its wire shapes here and nowhere else.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenBalance is one contract balance reported for an account on one chain.
// Balance is in raw token units.
type TokenBalance struct {
	Contract common.Address
	Balance  *big.Int
	Decimals uint8
	Symbol   string
}

// TokenAction is one token movement inside a history record.
type TokenAction struct {
	Contract  common.Address `json:"address"`
	Standard  string         `json:"standard"`
	From      common.Address `json:"fromAddress"`
	To        common.Address `json:"toAddress"`
	Amount    string         `json:"amount"`
	Direction string         `json:"direction"`
}

// HistoryRecord is one indexed transaction touching an account.
type HistoryRecord struct {
	TimeMs  int64 `json:"timeMs"`
	Details struct {
		TxHash       common.Hash   `json:"txHash"`
		ChainID      uint64        `json:"chainId"`
		Type         string        `json:"type"`
		Status       string        `json:"status"`
		TokenActions []TokenAction `json:"tokenActions"`
	} `json:"details"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type balanceEntry struct {
	Contract common.Address `json:"address"`
	Balance  string         `json:"balance"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol"`
}

// Balances returns every token balance the index knows for addr on chainID,
// unfiltered. Callers decide which contracts they care about.
func (c *Client) Balances(ctx context.Context, addr common.Address, chainID uint64) ([]TokenBalance, error) {
	q := url.Values{
		"address": {addr.Hex()},
		"chainId": {strconv.FormatUint(chainID, 10)},
	}

	var wrapper struct {
		Tokens []balanceEntry `json:"tokens"`
	}
	if err := c.get(ctx, "/balances", q, &wrapper); err != nil {
		return nil, fmt.Errorf("balances for %s on chain %d: %w", addr.Hex(), chainID, err)
	}

	out := make([]TokenBalance, 0, len(wrapper.Tokens))
	for _, e := range wrapper.Tokens {
		raw, ok := new(big.Int).SetString(e.Balance, 10)
		if !ok {
			return nil, fmt.Errorf("balances for %s on chain %d: malformed balance %q", addr.Hex(), chainID, e.Balance)
		}
		out = append(out, TokenBalance{
			Contract: e.Contract,
			Balance:  raw,
			Decimals: e.Decimals,
			Symbol:   e.Symbol,
		})
	}
	return out, nil
}

// History returns the indexed transactions for addr across all chains, in the
// service's native order.
func (c *Client) History(ctx context.Context, addr common.Address) ([]HistoryRecord, error) {
	q := url.Values{"address": {addr.Hex()}}

	var wrapper struct {
		Items []HistoryRecord `json:"items"`
	}
	if err := c.get(ctx, "/history", q, &wrapper); err != nil {
		return nil, fmt.Errorf("history for %s: %w", addr.Hex(), err)
	}
	return wrapper.Items, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("index service returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
