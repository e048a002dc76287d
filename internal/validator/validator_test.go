package validator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeys struct {
	material map[common.Address][]byte
}

func (f *fakeKeys) SigningMaterial(addr common.Address) ([]byte, bool, error) {
	b, ok := f.material[addr]
	return b, ok, nil
}

func TestLocalKeyHandle(t *testing.T) {
	raw, signer, err := GenerateKey()
	require.NoError(t, err)

	h, err := NewLocalKeyHandle(raw)
	require.NoError(t, err)

	assert.Equal(t, KindLocalKey, h.Kind())
	assert.Equal(t, signer, h.Signer())
	assert.Equal(t, signer.Bytes(), h.Identifier())

	// Same material, same identifier.
	h2, err := NewLocalKeyHandle(raw)
	require.NoError(t, err)
	assert.Equal(t, h.Identifier(), h2.Identifier())

	sig, err := h.ProveOwnership(context.Background(), [32]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, sig, 65)
}

func TestResolveLocalKey(t *testing.T) {
	raw, signer, err := GenerateKey()
	require.NoError(t, err)

	r := NewResolver(&fakeKeys{material: map[common.Address][]byte{signer: raw}}, nil)

	t.Run("material present", func(t *testing.T) {
		h, err := r.Resolve(context.Background(), Wallet{Address: signer, Kind: KindLocalKey})
		require.NoError(t, err)
		assert.Equal(t, KindLocalKey, h.Kind())
	})

	t.Run("material absent", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), Wallet{
			Address: common.HexToAddress("0xdead"),
			Kind:    KindLocalKey,
		})
		assert.ErrorIs(t, err, ErrMissingKeyMaterial)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), Wallet{Kind: "hardware"})
		assert.ErrorIs(t, err, ErrUnknownWalletKind)
	})
}

func passkeyTestServer(t *testing.T, registerCalls, loginCalls *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	serveCred := func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(PasskeyCredential{
			CredentialID: "cred-1",
			PublicKeyX:   hexutil.Bytes{0x01, 0x02},
			PublicKeyY:   hexutil.Bytes{0x03, 0x04},
		})
	}
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		*registerCalls++
		serveCred(w)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		*loginCalls++
		var req ceremonyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, modeLogin, req.Mode)
		assert.NotEmpty(t, req.CeremonyID)
		serveCred(w)
	})
	mux.HandleFunc("/sign", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(signResponse{Signature: hexutil.Bytes{0xAA}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolvePasskeyUsesLoginOnly(t *testing.T) {
	var registerCalls, loginCalls int
	srv := passkeyTestServer(t, &registerCalls, &loginCalls)

	r := NewResolver(&fakeKeys{}, NewPasskeyClient(srv.URL))

	h, err := r.Resolve(context.Background(), Wallet{Label: "Test", Kind: KindPasskey})
	require.NoError(t, err)
	assert.Equal(t, KindPasskey, h.Kind())
	assert.Equal(t, 1, loginCalls)
	assert.Zero(t, registerCalls, "resolve must never run a registration ceremony")

	// Identifier is stable across ceremonies for the same credential.
	h2, err := r.Resolve(context.Background(), Wallet{Label: "Test", Kind: KindPasskey})
	require.NoError(t, err)
	assert.Equal(t, h.Identifier(), h2.Identifier())

	sig, err := h.ProveOwnership(context.Background(), [32]byte{9})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, sig)
}

func TestPasskeyCeremonyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "user cancelled", http.StatusForbidden)
	}))
	defer srv.Close()

	r := NewResolver(&fakeKeys{}, NewPasskeyClient(srv.URL))
	_, err := r.Resolve(context.Background(), Wallet{Label: "Test", Kind: KindPasskey})
	assert.ErrorIs(t, err, ErrPasskeyCeremonyFailed)
}
