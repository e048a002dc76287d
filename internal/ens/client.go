// Package ens registers human-readable subnames for freshly created burner
// accounts through the hosted name service. Registration is best effort: a
// wallet works fine without its name.
package ens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

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

type registerRequest struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	Hash    string `json:"hash"`
	Error   string `json:"error"`
}

// Register claims name for addr and returns the registration transaction
// hash.
func (c *Client) Register(ctx context.Context, name string, addr common.Address) (string, error) {
	body, err := json.Marshal(registerRequest{Name: name, Address: addr})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ens/register", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("register %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("register %q: name service returned %s", name, resp.Status)
	}

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("register %q: %w", name, err)
	}
	if !out.Success {
		return "", fmt.Errorf("register %q: %s", name, out.Error)
	}
	return out.Hash, nil
}
