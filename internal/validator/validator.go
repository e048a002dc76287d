// Package validator turns a wallet record into a signing capability. The
// Handle it hands out is the only thing the engines ever see: something that
// can produce an ownership proof over arbitrary call data. New wallet kinds
// register here; the transfer and bridge engines never change for them.
package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrMissingKeyMaterial    = errors.New("signing material not found")
	ErrPasskeyCeremonyFailed = errors.New("passkey ceremony failed")
	ErrUnknownWalletKind     = errors.New("unknown wallet kind")
)

type Kind string

const (
	KindLocalKey Kind = "localKey"
	KindPasskey  Kind = "passkey"
)

// Vendor selects the smart-account stack the wallet was created with. It
// changes the deterministic account derivation, nothing else.
type Vendor string

const (
	VendorZeroDev  Vendor = "zerodev"
	VendorBiconomy Vendor = "biconomy"
)

// Wallet is the record shape the resolver works from. SigningMaterial is
// deliberately absent: it stays behind the KeyReader seam.
type Wallet struct {
	Address  common.Address `json:"address"`
	Label    string         `json:"label"`
	Username string         `json:"username"`
	Kind     Kind           `json:"walletKind"`
	Vendor   Vendor         `json:"vendor"`
}

// Handle proves ownership over arbitrary digests. Identifier is stable
// material the session builder derives the counterfactual account address
// from; the same handle must always return the same bytes.
type Handle interface {
	Kind() Kind
	Identifier() []byte
	ProveOwnership(ctx context.Context, digest [32]byte) ([]byte, error)
}

// KeyReader is the wallet store's boundary for local signing material.
type KeyReader interface {
	SigningMaterial(addr common.Address) ([]byte, bool, error)
}

type Resolver struct {
	keys     KeyReader
	passkeys *PasskeyClient
}

func NewResolver(keys KeyReader, passkeys *PasskeyClient) *Resolver {
	return &Resolver{keys: keys, passkeys: passkeys}
}

// Resolve produces the signing capability for w. Passkey wallets always go
// through a login-mode ceremony here; registration happens exactly once, at
// wallet creation, and never on this path.
func (r *Resolver) Resolve(ctx context.Context, w Wallet) (Handle, error) {
	switch w.Kind {
	case KindLocalKey:
		raw, ok, err := r.keys.SigningMaterial(w.Address)
		if err != nil {
			return nil, fmt.Errorf("read signing material for %s: %w", w.Address.Hex(), err)
		}
		if !ok || len(raw) == 0 {
			return nil, fmt.Errorf("wallet %s: %w", w.Address.Hex(), ErrMissingKeyMaterial)
		}
		return NewLocalKeyHandle(raw)

	case KindPasskey:
		// The ceremony identity is the name the credential was registered
		// under, not the display label, which the user can rename.
		name := w.Username
		if name == "" {
			name = w.Label
		}
		cred, err := r.passkeys.Login(ctx, name)
		if err != nil {
			return nil, err
		}
		return NewPasskeyHandle(r.passkeys, cred), nil

	default:
		return nil, fmt.Errorf("kind %q: %w", w.Kind, ErrUnknownWalletKind)
	}
}
