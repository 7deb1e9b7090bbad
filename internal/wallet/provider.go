// Package wallet discovers and connects browser-injected cryptocurrency wallet
// providers. Extensions inject asynchronously and implement at least two
// generations of incompatible interfaces: legacy global objects, a standard
// registration protocol, and ad-hoc shapes found by scanning global names.
// The connector normalizes all of them behind a single Session with an
// account address and a signing adapter.
package wallet

import (
	"context"
	"errors"
)

// Capabilities is the typed capability descriptor for a provider variant.
// It is produced by explicit detection (JS method probing in the browser
// environment, feature maps for standard wallets) rather than assumed.
type Capabilities struct {
	Connect            bool
	RequestPermissions bool
	Accounts           bool
	Sign               bool
	Disconnect         bool
}

// usable reports whether any connection path exists for this descriptor.
func (c Capabilities) usable() bool {
	return c.Connect || c.RequestPermissions || c.Accounts
}

// Kind names the closed set of provider variants.
type Kind int

const (
	KindStandard Kind = iota // registration-protocol wallet
	KindLegacyA              // primary legacy global object
	KindLegacyB              // secondary legacy global object
	KindGeneric              // loose global shape, methods probed dynamically
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindLegacyA:
		return "legacy-a"
	case KindLegacyB:
		return "legacy-b"
	case KindGeneric:
		return "generic"
	}
	return "unknown"
}

// ErrUnsupported is returned by provider methods the underlying wallet object
// does not actually expose. Callers gate on Capabilities first; this is the
// backstop.
var ErrUnsupported = errors.New("wallet: operation not supported by provider")

// Provider is a wallet-like object discovered on the host environment.
// Methods outside the provider's Capabilities return ErrUnsupported.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	RequestPermissions(ctx context.Context) error
	Accounts(ctx context.Context) ([]string, error)
	Connect(ctx context.Context) ([]string, error)
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, tx []byte, account string) ([]byte, error)
}

// Standard wallet feature identifiers, keyed the way the registration
// protocol reports them.
const (
	FeatureConnect    = "standard:connect"
	FeatureDisconnect = "standard:disconnect"
	FeatureSign       = "sui:signAndExecuteTransactionBlock"
)

// Account is an account exposed by a standard wallet.
type Account struct {
	Address string
	Chains  []string
}

// StandardWallet is a wallet announced through the standard registration
// protocol. Features reports the capability map; calling a feature the map
// does not contain returns ErrUnsupported.
type StandardWallet interface {
	Name() string
	Features() map[string]bool
	Chains() []string
	Connect(ctx context.Context) ([]Account, error)
	Disconnect(ctx context.Context) error
	SignTransaction(ctx context.Context, tx []byte, account, chain string) ([]byte, error)
}

// DetectStandard derives a capability descriptor from a standard wallet's
// feature map.
func DetectStandard(w StandardWallet) Capabilities {
	f := w.Features()
	return Capabilities{
		Connect:    f[FeatureConnect],
		Sign:       f[FeatureSign],
		Disconnect: f[FeatureDisconnect],
	}
}

// Environment abstracts the ambient global surface where extensions inject
// providers. The browser environment implements it over a live page; tests
// use a scripted fake.
type Environment interface {
	// Lookup returns the named global provider object, or nil if absent.
	Lookup(name string) Provider

	// GlobalNames returns all global property names, for the dynamic scan.
	GlobalNames() []string

	// Wallets returns wallets currently registered through the standard
	// listing function. Returns nil when the listing function is absent.
	Wallets() []StandardWallet

	// Announcements delivers wallets that register after the initial
	// sample. May return nil when the environment cannot observe late
	// registration.
	Announcements() <-chan StandardWallet
}
