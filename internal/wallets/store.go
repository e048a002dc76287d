// Package wallets owns the wallet list: creation, labels, the burn flow, and
// custody of local signing material. It is the only package that ever sees
// raw key bytes besides the validator resolving them.
package wallets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/burnerhq/burnerd/internal/keystore"
	"github.com/burnerhq/burnerd/internal/validator"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletNotEmpty blocks burning a wallet that still holds tracked
	// funds, or whose balances were never confirmed zero.
	ErrWalletNotEmpty = errors.New("wallet still holds funds")
	ErrEmptyLabel     = errors.New("label is required")
)

// Record is the persisted wallet shape. SigningMaterial is set for localKey
// wallets only; passkey credentials live on the user's device and are
// re-attested per operation.
type Record struct {
	validator.Wallet
	SigningMaterial hexutil.Bytes `json:"signingMaterial,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// BalanceChecker answers whether an account provably holds nothing.
type BalanceChecker interface {
	AllZero(addr common.Address) bool
}

// AccountDeriver computes the deterministic account address for a validator;
// *session.Builder satisfies it.
type AccountDeriver interface {
	DeriveAccount(handle validator.Handle, vendor validator.Vendor) (common.Address, error)
}

// NameRegistrar claims a human-readable name for a new account;
// *ens.Client satisfies it. May be nil, names are optional.
type NameRegistrar interface {
	Register(ctx context.Context, name string, addr common.Address) (string, error)
}

type Store struct {
	mu       sync.Mutex
	ks       keystore.Store
	deriver  AccountDeriver
	passkeys *validator.PasskeyClient
	names    NameRegistrar
	balances BalanceChecker
	log      *zap.SugaredLogger

	records []Record
	labels  map[string]string // address hex -> display label override
}

// Open loads the wallet list from ks.
func Open(ks keystore.Store, deriver AccountDeriver, passkeys *validator.PasskeyClient, names NameRegistrar, balances BalanceChecker, log *zap.SugaredLogger) (*Store, error) {
	s := &Store{
		ks:       ks,
		deriver:  deriver,
		passkeys: passkeys,
		names:    names,
		balances: balances,
		log:      log,
		labels:   map[string]string{},
	}
	if _, err := keystore.GetJSON(ks, keystore.KeyWallets, &s.records); err != nil {
		return nil, err
	}
	if _, err := keystore.GetJSON(ks, keystore.KeyLabels, &s.labels); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateRequest describes a new wallet. Label doubles as the passkey ceremony
// name at creation time.
type CreateRequest struct {
	Label  string
	Kind   validator.Kind
	Vendor validator.Vendor
}

// Create provisions a new burner: generates or registers the validator,
// derives the deterministic account address, and persists the record. Name
// registration runs in the background; its failure never fails the create.
func (s *Store) Create(ctx context.Context, req CreateRequest) (validator.Wallet, error) {
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return validator.Wallet{}, ErrEmptyLabel
	}

	var (
		handle   validator.Handle
		material hexutil.Bytes
	)
	switch req.Kind {
	case validator.KindLocalKey:
		raw, _, err := validator.GenerateKey()
		if err != nil {
			return validator.Wallet{}, err
		}
		h, err := validator.NewLocalKeyHandle(raw)
		if err != nil {
			return validator.Wallet{}, err
		}
		handle, material = h, raw

	case validator.KindPasskey:
		cred, err := s.passkeys.Register(ctx, label)
		if err != nil {
			return validator.Wallet{}, err
		}
		handle = validator.NewPasskeyHandle(s.passkeys, cred)

	default:
		return validator.Wallet{}, fmt.Errorf("kind %q: %w", req.Kind, validator.ErrUnknownWalletKind)
	}

	addr, err := s.deriver.DeriveAccount(handle, req.Vendor)
	if err != nil {
		return validator.Wallet{}, err
	}

	rec := Record{
		Wallet: validator.Wallet{
			Address:  addr,
			Label:    label,
			Username: label,
			Kind:     req.Kind,
			Vendor:   req.Vendor,
		},
		SigningMaterial: material,
		CreatedAt:       time.Now().UTC(),
	}

	s.mu.Lock()
	s.records = append(s.records, rec)
	err = keystore.PutJSON(s.ks, keystore.KeyWallets, s.records)
	if err != nil {
		s.records = s.records[:len(s.records)-1]
	}
	s.mu.Unlock()
	if err != nil {
		return validator.Wallet{}, err
	}

	s.registerName(label, addr)

	s.log.Infow("wallet created",
		"address", addr.Hex(), "kind", req.Kind, "vendor", req.Vendor)
	return rec.Wallet, nil
}

func (s *Store) registerName(label string, addr common.Address) {
	if s.names == nil {
		return
	}
	name := slug(label)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		hash, err := s.names.Register(ctx, name, addr)
		if err != nil {
			s.log.Warnw("name registration failed", "name", name, "address", addr.Hex(), "error", err)
			return
		}
		s.log.Infow("name registered", "name", name, "address", addr.Hex(), "hash", hash)
	}()
}

// slug shapes a display label into a subname candidate: lowercase
// alphanumerics with single dashes between words, everything else dropped.
func slug(label string) string {
	out := make([]byte, 0, len(label))
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, byte(r))
		case r == ' ' || r == '-' || r == '_':
			if len(out) > 0 && out[len(out)-1] != '-' {
				out = append(out, '-')
			}
		}
	}
	return strings.TrimRight(string(out), "-")
}

// List returns every wallet, sanitized: no signing material, display labels
// applied.
func (s *Store) List() []validator.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]validator.Wallet, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, s.sanitizedLocked(rec))
	}
	return out
}

// Get returns the sanitized wallet at addr.
func (s *Store) Get(addr common.Address) (validator.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Address == addr {
			return s.sanitizedLocked(rec), nil
		}
	}
	return validator.Wallet{}, fmt.Errorf("wallet %s: %w", addr.Hex(), ErrWalletNotFound)
}

// Addresses returns every wallet address, for the aggregator refresh loops.
func (s *Store) Addresses() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Address, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Address)
	}
	return out
}

func (s *Store) sanitizedLocked(rec Record) validator.Wallet {
	w := rec.Wallet
	if label, ok := s.labels[w.Address.Hex()]; ok {
		w.Label = label
	}
	return w
}

// Rename changes the display label without touching the record itself: the
// original label stays behind as the passkey ceremony identity.
func (s *Store) Rename(addr common.Address, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrEmptyLabel
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.existsLocked(addr) {
		return fmt.Errorf("wallet %s: %w", addr.Hex(), ErrWalletNotFound)
	}
	prev, had := s.labels[addr.Hex()]
	s.labels[addr.Hex()] = label
	if err := keystore.PutJSON(s.ks, keystore.KeyLabels, s.labels); err != nil {
		if had {
			s.labels[addr.Hex()] = prev
		} else {
			delete(s.labels, addr.Hex())
		}
		return err
	}
	return nil
}

// Burn deletes the wallet and its signing material. It refuses unless the
// balance cache proves every tracked balance is zero; funds in a burned
// wallet would be gone for good.
func (s *Store) Burn(addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, rec := range s.records {
		if rec.Address == addr {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("wallet %s: %w", addr.Hex(), ErrWalletNotFound)
	}
	if !s.balances.AllZero(addr) {
		return fmt.Errorf("wallet %s: %w", addr.Hex(), ErrWalletNotEmpty)
	}

	removed := s.records[idx]
	s.records = append(s.records[:idx:idx], s.records[idx+1:]...)
	if err := keystore.PutJSON(s.ks, keystore.KeyWallets, s.records); err != nil {
		s.records = append(s.records[:idx:idx], append([]Record{removed}, s.records[idx:]...)...)
		return err
	}

	if _, ok := s.labels[addr.Hex()]; ok {
		delete(s.labels, addr.Hex())
		if err := keystore.PutJSON(s.ks, keystore.KeyLabels, s.labels); err != nil {
			s.log.Warnw("label cleanup failed", "address", addr.Hex(), "error", err)
		}
	}

	s.log.Infow("wallet burned", "address", addr.Hex())
	return nil
}

// SigningMaterial implements validator.KeyReader.
func (s *Store) SigningMaterial(addr common.Address) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Address == addr && len(rec.SigningMaterial) > 0 {
			return append([]byte(nil), rec.SigningMaterial...), true, nil
		}
	}
	return nil, false, nil
}

// ReceiveQR renders the address as a PNG QR code for receiving funds.
func (s *Store) ReceiveQR(addr common.Address, size int) ([]byte, error) {
	s.mu.Lock()
	exists := s.existsLocked(addr)
	s.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("wallet %s: %w", addr.Hex(), ErrWalletNotFound)
	}
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode("ethereum:"+addr.Hex(), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr for %s: %w", addr.Hex(), err)
	}
	return png, nil
}

func (s *Store) existsLocked(addr common.Address) bool {
	for _, rec := range s.records {
		if rec.Address == addr {
			return true
		}
	}
	return false
}
