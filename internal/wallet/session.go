package wallet

import (
	"context"
	"fmt"
)

// Signer signs transactions on behalf of the connected account.
type Signer interface {
	SignTransaction(ctx context.Context, tx []byte) ([]byte, error)
}

// Session is the result of a successful connection: an account address plus
// a signing-capable adapter. It is returned from Connect and threaded through
// subsequent calls by the caller; the Connector also retains it as the single
// active session until disconnect or a replacing reconnect.
type Session struct {
	Address string
	Wallet  string
	Kind    Kind

	signer Signer
}

// CanSign reports whether the session carries a usable signing adapter.
func (s *Session) CanSign() bool {
	return s != nil && s.signer != nil
}

// Sign signs a transaction with the session's adapter. Returns
// ErrSigningUnsupported when the wrapped wallet lacks the chain-sign
// capability.
func (s *Session) Sign(ctx context.Context, tx []byte) ([]byte, error) {
	if s == nil || s.signer == nil {
		return nil, ErrSigningUnsupported
	}
	return s.signer.SignTransaction(ctx, tx)
}

// standardSigner adapts a standard wallet's sign feature, always supplying
// the connected account and the wallet's first supported chain.
type standardSigner struct {
	wallet  StandardWallet
	address string
	chain   string
}

func (s *standardSigner) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	if !s.wallet.Features()[FeatureSign] {
		return nil, ErrSigningUnsupported
	}
	signed, err := s.wallet.SignTransaction(ctx, tx, s.address, s.chain)
	if err != nil {
		return nil, fmt.Errorf("standard wallet %s sign: %w", s.wallet.Name(), err)
	}
	return signed, nil
}

// providerSigner adapts a legacy/generic provider's sign method for the
// connected account.
type providerSigner struct {
	provider Provider
	address  string
}

func (s *providerSigner) SignTransaction(ctx context.Context, tx []byte) ([]byte, error) {
	if !s.provider.Capabilities().Sign {
		return nil, ErrSigningUnsupported
	}
	signed, err := s.provider.SignTransaction(ctx, tx, s.address)
	if err != nil {
		return nil, fmt.Errorf("provider %s sign: %w", s.provider.Name(), err)
	}
	return signed, nil
}
