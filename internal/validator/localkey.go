package validator

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalKeyHandle signs with a raw secp256k1 key held in memory for the
// duration of one operation.
type LocalKeyHandle struct {
	key    *ecdsa.PrivateKey
	signer common.Address
}

// NewLocalKeyHandle builds a handle from 32 raw key bytes.
func NewLocalKeyHandle(raw []byte) (*LocalKeyHandle, error) {
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse signing material: %w", err)
	}
	return &LocalKeyHandle{
		key:    key,
		signer: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (h *LocalKeyHandle) Kind() Kind { return KindLocalKey }

// Identifier is the signer address bytes; it is what makes the derived
// smart-account address deterministic per key.
func (h *LocalKeyHandle) Identifier() []byte {
	return h.signer.Bytes()
}

func (h *LocalKeyHandle) Signer() common.Address { return h.signer }

func (h *LocalKeyHandle) ProveOwnership(_ context.Context, digest [32]byte) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], h.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// GenerateKey creates fresh signing material for a new localKey wallet and
// returns the raw key bytes plus the signer address.
func GenerateKey() ([]byte, common.Address, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("generate key: %w", err)
	}
	return crypto.FromECDSA(key), crypto.PubkeyToAddress(key.PublicKey), nil
}
