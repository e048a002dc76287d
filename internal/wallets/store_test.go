package wallets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/burnerhq/burnerd/internal/keystore"
	"github.com/burnerhq/burnerd/internal/registry"
	"github.com/burnerhq/burnerd/internal/session"
	"github.com/burnerhq/burnerd/internal/validator"
)

type fakeBalances struct {
	mu   sync.Mutex
	zero map[common.Address]bool
}

func (f *fakeBalances) AllZero(addr common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.zero[addr]
}

func (f *fakeBalances) set(addr common.Address, zero bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.zero == nil {
		f.zero = map[common.Address]bool{}
	}
	f.zero[addr] = zero
}

type fakeNames struct {
	mu    sync.Mutex
	names []string
	done  chan struct{}
}

func (f *fakeNames) Register(_ context.Context, name string, _ common.Address) (string, error) {
	f.mu.Lock()
	f.names = append(f.names, name)
	f.mu.Unlock()
	close(f.done)
	return "0xhash", nil
}

func testStore(t *testing.T, names NameRegistrar, balances BalanceChecker) *Store {
	t.Helper()
	builder := session.NewBuilder(registry.Default(), zap.NewNop().Sugar())
	s, err := Open(keystore.NewMemory(), builder, nil, names, balances, zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func TestCreateLocalKeyWallet(t *testing.T) {
	names := &fakeNames{done: make(chan struct{})}
	s := testStore(t, names, &fakeBalances{})

	w, err := s.Create(context.Background(), CreateRequest{
		Label:  "Pocket Money",
		Kind:   validator.KindLocalKey,
		Vendor: validator.VendorZeroDev,
	})
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, w.Address)
	assert.Equal(t, "Pocket Money", w.Label)

	// Signing material is persisted but never leaves sanitized views.
	raw, ok, err := s.SigningMaterial(w.Address)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, raw, 32)

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, w.Address, list[0].Address)

	select {
	case <-names.done:
		assert.Equal(t, []string{"pocket-money"}, names.names)
	case <-time.After(time.Second):
		t.Fatal("name registration never ran")
	}
}

func TestCreatePersistsAcrossReopen(t *testing.T) {
	ks := keystore.NewMemory()
	builder := session.NewBuilder(registry.Default(), zap.NewNop().Sugar())

	s, err := Open(ks, builder, nil, nil, &fakeBalances{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	w, err := s.Create(context.Background(), CreateRequest{Label: "a", Kind: validator.KindLocalKey})
	require.NoError(t, err)

	reopened, err := Open(ks, builder, nil, nil, &fakeBalances{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	got, err := reopened.Get(w.Address)
	require.NoError(t, err)
	assert.Equal(t, w, got)

	raw, ok, err := reopened.SigningMaterial(w.Address)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, raw)
}

func TestCreatePasskeyWallet(t *testing.T) {
	var registered []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register", r.URL.Path)
		var req struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		registered = append(registered, req.Name)
		_ = json.NewEncoder(w).Encode(validator.PasskeyCredential{
			CredentialID: "cred-1",
			PublicKeyX:   hexutil.Bytes{0x01},
			PublicKeyY:   hexutil.Bytes{0x02},
		})
	}))
	defer srv.Close()

	builder := session.NewBuilder(registry.Default(), zap.NewNop().Sugar())
	s, err := Open(keystore.NewMemory(), builder, validator.NewPasskeyClient(srv.URL), nil, &fakeBalances{}, zap.NewNop().Sugar())
	require.NoError(t, err)

	w, err := s.Create(context.Background(), CreateRequest{Label: "travel", Kind: validator.KindPasskey})
	require.NoError(t, err)
	assert.Equal(t, []string{"travel"}, registered)
	assert.Equal(t, "travel", w.Username)

	// No local material for passkey wallets.
	_, ok, err := s.SigningMaterial(w.Address)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenameKeepsCeremonyIdentity(t *testing.T) {
	s := testStore(t, nil, &fakeBalances{})
	w, err := s.Create(context.Background(), CreateRequest{Label: "original", Kind: validator.KindLocalKey})
	require.NoError(t, err)

	require.NoError(t, s.Rename(w.Address, "renamed"))

	got, err := s.Get(w.Address)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Label)
	assert.Equal(t, "original", got.Username, "ceremony identity must survive renames")

	assert.ErrorIs(t, s.Rename(common.HexToAddress("0x1"), "x"), ErrWalletNotFound)
	assert.ErrorIs(t, s.Rename(w.Address, "  "), ErrEmptyLabel)
}

func TestBurnRequiresProvablyZeroBalances(t *testing.T) {
	balances := &fakeBalances{}
	s := testStore(t, nil, balances)
	w, err := s.Create(context.Background(), CreateRequest{Label: "a", Kind: validator.KindLocalKey})
	require.NoError(t, err)

	// Unknown balances count as not-zero.
	assert.ErrorIs(t, s.Burn(w.Address), ErrWalletNotEmpty)

	balances.set(w.Address, false)
	assert.ErrorIs(t, s.Burn(w.Address), ErrWalletNotEmpty)

	balances.set(w.Address, true)
	require.NoError(t, s.Burn(w.Address))

	_, err = s.Get(w.Address)
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, ok, err := s.SigningMaterial(w.Address)
	require.NoError(t, err)
	assert.False(t, ok, "burning must destroy signing material")

	assert.ErrorIs(t, s.Burn(w.Address), ErrWalletNotFound)
}

func TestReceiveQR(t *testing.T) {
	s := testStore(t, nil, &fakeBalances{})
	w, err := s.Create(context.Background(), CreateRequest{Label: "a", Kind: validator.KindLocalKey})
	require.NoError(t, err)

	png, err := s.ReceiveQR(w.Address, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])

	_, err = s.ReceiveQR(common.HexToAddress("0x1"), 0)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "pocket-money", slug("Pocket Money"))
	assert.Equal(t, "caf", slug("Café!"))
	assert.Equal(t, "a-b", slug("  A  B  "))
}
