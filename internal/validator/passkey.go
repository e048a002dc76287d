package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Ceremony modes understood by the passkey service. Resolve-time flows are
// always login; register is reserved for wallet creation.
const (
	modeLogin    = "login"
	modeRegister = "register"
)

// PasskeyCredential is the device-bound credential the service returns after
// a ceremony. The public key is the P-256 key attested by the authenticator.
type PasskeyCredential struct {
	CredentialID string        `json:"credentialId"`
	PublicKeyX   hexutil.Bytes `json:"publicKeyX"`
	PublicKeyY   hexutil.Bytes `json:"publicKeyY"`
}

// PasskeyClient talks to the remote passkey service that brokers WebAuthn
// ceremonies with the user's device.
type PasskeyClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewPasskeyClient(baseURL string) *PasskeyClient {
	return &PasskeyClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type ceremonyRequest struct {
	Name       string `json:"name"`
	Mode       string `json:"mode"`
	CeremonyID string `json:"ceremonyId"`
}

// Register runs a fresh-registration ceremony for name. Called exactly once,
// from wallet creation.
func (c *PasskeyClient) Register(ctx context.Context, name string) (PasskeyCredential, error) {
	return c.ceremony(ctx, name, modeRegister)
}

// Login re-authenticates an existing credential for name.
func (c *PasskeyClient) Login(ctx context.Context, name string) (PasskeyCredential, error) {
	return c.ceremony(ctx, name, modeLogin)
}

func (c *PasskeyClient) ceremony(ctx context.Context, name, mode string) (PasskeyCredential, error) {
	req := ceremonyRequest{Name: name, Mode: mode, CeremonyID: uuid.NewString()}

	var cred PasskeyCredential
	if err := c.post(ctx, "/"+mode, req, &cred); err != nil {
		return PasskeyCredential{}, fmt.Errorf("%s ceremony for %q: %w: %v", mode, name, ErrPasskeyCeremonyFailed, err)
	}
	if cred.CredentialID == "" || len(cred.PublicKeyX) == 0 {
		return PasskeyCredential{}, fmt.Errorf("%s ceremony for %q returned no credential: %w", mode, name, ErrPasskeyCeremonyFailed)
	}
	return cred, nil
}

type signRequest struct {
	CredentialID string        `json:"credentialId"`
	Challenge    hexutil.Bytes `json:"challenge"`
}

type signResponse struct {
	Signature hexutil.Bytes `json:"signature"`
}

// Sign asks the device (via the service) to sign challenge with the
// credential. Cancellation on the device surfaces as a ceremony failure.
func (c *PasskeyClient) Sign(ctx context.Context, cred PasskeyCredential, challenge []byte) ([]byte, error) {
	var res signResponse
	err := c.post(ctx, "/sign", signRequest{CredentialID: cred.CredentialID, Challenge: challenge}, &res)
	if err != nil {
		return nil, fmt.Errorf("sign ceremony: %w: %v", ErrPasskeyCeremonyFailed, err)
	}
	if len(res.Signature) == 0 {
		return nil, fmt.Errorf("sign ceremony returned empty signature: %w", ErrPasskeyCeremonyFailed)
	}
	return res.Signature, nil
}

func (c *PasskeyClient) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("passkey service %s: status %d: %s", path, res.StatusCode, bytes.TrimSpace(body))
	}
	return json.Unmarshal(body, out)
}

// PasskeyHandle proves ownership through remote sign ceremonies.
type PasskeyHandle struct {
	client *PasskeyClient
	cred   PasskeyCredential
}

func NewPasskeyHandle(client *PasskeyClient, cred PasskeyCredential) *PasskeyHandle {
	return &PasskeyHandle{client: client, cred: cred}
}

func (h *PasskeyHandle) Kind() Kind { return KindPasskey }

// Identifier hashes the attested public key so the account address is stable
// across ceremonies for the same credential.
func (h *PasskeyHandle) Identifier() []byte {
	return crypto.Keccak256(h.cred.PublicKeyX, h.cred.PublicKeyY)
}

func (h *PasskeyHandle) Credential() PasskeyCredential { return h.cred }

func (h *PasskeyHandle) ProveOwnership(ctx context.Context, digest [32]byte) ([]byte, error) {
	return h.client.Sign(ctx, h.cred, digest[:])
}
