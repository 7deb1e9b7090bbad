package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"florafi/internal/logging"
)

// Sentinel errors for the connection taxonomy. Connect never coerces a
// failure into a default account.
var (
	// ErrNotFound means nothing compatible was detected after the full
	// bounded wait.
	ErrNotFound = errors.New("no compatible wallet found")

	// ErrRejected means a connect attempt returned no accounts or the user
	// denied a permission request.
	ErrRejected = errors.New("wallet connection rejected")

	// ErrSigningUnsupported means a sign was requested but the wrapped
	// wallet lacks the chain-sign capability.
	ErrSigningUnsupported = errors.New("wallet does not support signing")
)

// errNoCandidate is an internal marker: the strategy found nothing to try.
// It is swallowed so the fallback chain moves on.
var errNoCandidate = errors.New("no candidate for strategy")

// guidance is appended to the final not-found error so the failure is
// actionable rather than bare.
const guidance = "install or enable a wallet extension, unlock it, then reload the page and try again"

// Config controls discovery behavior.
type Config struct {
	// PollInterval is the presence-check period during the injection wait.
	PollInterval time.Duration
	// PollTimeout bounds the total injection wait.
	PollTimeout time.Duration

	// Global object names for the legacy and generic shapes.
	LegacyGlobal          string
	SecondaryLegacyGlobal string
	GenericGlobal         string

	// ScanSubstrings select global names worth probing in the dynamic scan.
	ScanSubstrings []string
}

// DefaultConfig returns discovery defaults matching the extension landscape.
func DefaultConfig() Config {
	return Config{
		PollInterval:          50 * time.Millisecond,
		PollTimeout:           3 * time.Second,
		LegacyGlobal:          "suiWallet",
		SecondaryLegacyGlobal: "__suiWallet",
		GenericGlobal:         "wallet",
		ScanSubstrings:        []string{"wallet", "sui"},
	}
}

// Connector produces a single active Session from whichever wallet-like
// object the environment happens to expose.
type Connector struct {
	env   Environment
	clock Clock
	cfg   Config

	mu        sync.Mutex
	active    *Session
	announced []StandardWallet
}

// NewConnector creates a connector over the given environment.
func NewConnector(env Environment, cfg Config) *Connector {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 3 * time.Second
	}
	return &Connector{env: env, clock: SystemClock{}, cfg: cfg}
}

// WithClock replaces the connector's clock. Used by tests to drive the
// injection wait without real timers.
func (c *Connector) WithClock(clock Clock) *Connector {
	c.clock = clock
	return c
}

// Detect is the non-blocking presence check: true if the legacy global, the
// generic global, or a non-empty standard listing is observed. Safe to call
// repeatedly.
func (c *Connector) Detect() bool {
	if len(c.wallets()) > 0 {
		return true
	}
	for _, name := range []string{c.cfg.LegacyGlobal, c.cfg.SecondaryLegacyGlobal, c.cfg.GenericGlobal} {
		if name == "" {
			continue
		}
		if c.env.Lookup(name) != nil {
			return true
		}
	}
	return false
}

// WaitForInjection polls Detect on the configured interval until presence is
// observed or the poll budget is exhausted. Extensions inject after the
// page's own script starts running, so an immediate miss is not conclusive.
// Late standard registrations arriving through the announcement channel
// count as presence and are accumulated into the candidate set.
//
// Returns true if presence was observed. A false return does not prevent a
// subsequent connect attempt: extensions may still respond even when the
// object scan missed them.
func (c *Connector) WaitForInjection(ctx context.Context) bool {
	if c.Detect() {
		return true
	}

	attempts := int(c.cfg.PollTimeout / c.cfg.PollInterval)
	if attempts < 1 {
		attempts = 1
	}
	announcements := c.env.Announcements()

	logging.WalletDebug("waiting for wallet injection: interval=%v budget=%v", c.cfg.PollInterval, c.cfg.PollTimeout)

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return false
		case w, ok := <-announcements:
			if ok && w != nil {
				c.addAnnounced(w)
				logging.Wallet("wallet announced during wait: %s", w.Name())
				return true
			}
			announcements = nil // channel closed; keep polling
		case <-c.clock.After(c.cfg.PollInterval):
		}
		if c.Detect() {
			logging.WalletDebug("wallet detected after %d polls", i+1)
			return true
		}
	}

	logging.WalletWarn("no wallet detected within %v", c.cfg.PollTimeout)
	return false
}

// Connect runs the full discovery chain and returns the new active session.
// Strategy order: standard protocol, primary legacy, secondary legacy,
// generic global, dynamic scan. Per-strategy errors are swallowed; only
// after the chain is exhausted does a failure surface.
//
// Reconnecting replaces any prior session: at most one connection is active
// at a time.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	// Attempted regardless of the wait outcome.
	c.WaitForInjection(ctx)

	var lastErr error

	if s, err := c.connectStandard(ctx); err == nil {
		return c.setActive(s), nil
	} else if !errors.Is(err, errNoCandidate) {
		lastErr = err
		logging.WalletWarn("standard connect failed: %v", err)
	}

	tried := map[string]bool{}
	legacy := []struct {
		name string
		kind Kind
	}{
		{c.cfg.LegacyGlobal, KindLegacyA},
		{c.cfg.SecondaryLegacyGlobal, KindLegacyB},
		{c.cfg.GenericGlobal, KindGeneric},
	}
	for _, cand := range legacy {
		if cand.name == "" {
			continue
		}
		tried[cand.name] = true
		if s, err := c.connectProvider(ctx, cand.name, cand.kind); err == nil {
			return c.setActive(s), nil
		} else if !errors.Is(err, errNoCandidate) {
			lastErr = err
			logging.WalletWarn("%s connect via %q failed: %v", cand.kind, cand.name, err)
		}
	}

	// Dynamic scan: any global whose name looks wallet-related and has not
	// been tried yet.
	for _, name := range c.env.GlobalNames() {
		if tried[name] || !c.scanMatch(name) {
			continue
		}
		tried[name] = true
		if s, err := c.connectProvider(ctx, name, KindGeneric); err == nil {
			logging.Wallet("dynamic scan connected via global %q", name)
			return c.setActive(s), nil
		} else if !errors.Is(err, errNoCandidate) {
			lastErr = err
			logging.WalletDebug("scan candidate %q failed: %v", name, err)
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w (last error: %v): %s", ErrNotFound, lastErr, guidance)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, guidance)
}

// connectStandard connects the first standard wallet exposing the connect
// feature, wrapping its sign feature (if present) in an adapter bound to the
// connected account and the wallet's first supported chain.
func (c *Connector) connectStandard(ctx context.Context) (*Session, error) {
	for _, w := range c.wallets() {
		caps := DetectStandard(w)
		if !caps.Connect {
			continue
		}

		accounts, err := w.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRejected, w.Name(), err)
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("%w: %s returned no accounts", ErrRejected, w.Name())
		}

		account := accounts[0]
		var signer Signer
		if caps.Sign {
			chain := firstChain(w, account)
			signer = &standardSigner{wallet: w, address: account.Address, chain: chain}
		}
		logging.Wallet("connected standard wallet %s account=%s", w.Name(), account.Address)
		return &Session{
			Address: account.Address,
			Wallet:  w.Name(),
			Kind:    KindStandard,
			signer:  signer,
		}, nil
	}
	return nil, errNoCandidate
}

// connectProvider runs the legacy/generic connect pattern against a named
// global: use existing accounts when already granted, otherwise request
// permissions first, then fetch accounts.
func (c *Connector) connectProvider(ctx context.Context, name string, kind Kind) (*Session, error) {
	p := c.env.Lookup(name)
	if p == nil {
		return nil, errNoCandidate
	}
	caps := p.Capabilities()
	if !caps.usable() {
		return nil, errNoCandidate
	}

	accounts := c.grantedAccounts(ctx, p, caps)

	if len(accounts) == 0 && caps.RequestPermissions {
		if err := p.RequestPermissions(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRejected, name, err)
		}
		accounts = c.grantedAccounts(ctx, p, caps)
	}

	if len(accounts) == 0 && caps.Connect {
		connected, err := p.Connect(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRejected, name, err)
		}
		accounts = connected
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: %s exposed no accounts", ErrRejected, name)
	}

	var signer Signer
	if caps.Sign {
		signer = &providerSigner{provider: p, address: accounts[0]}
	}
	logging.Wallet("connected %s wallet via %q account=%s", kind, name, accounts[0])
	return &Session{
		Address: accounts[0],
		Wallet:  p.Name(),
		Kind:    kind,
		signer:  signer,
	}, nil
}

// grantedAccounts fetches accounts without prompting. An error here is not
// fatal; it just means no prior grant exists.
func (c *Connector) grantedAccounts(ctx context.Context, p Provider, caps Capabilities) []string {
	if !caps.Accounts {
		return nil
	}
	accounts, err := p.Accounts(ctx)
	if err != nil {
		logging.WalletDebug("accounts probe on %s: %v", p.Name(), err)
		return nil
	}
	return accounts
}

// Disconnect is best effort: the standard disconnect feature first, then
// each legacy object's disconnect method. Failures are logged and swallowed
// so a misbehaving extension cannot block the caller. The active session is
// always cleared; calling without a prior connect is a no-op.
func (c *Connector) Disconnect(ctx context.Context) {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	for _, w := range c.wallets() {
		if active != nil && w.Name() != active.Wallet {
			continue
		}
		if !w.Features()[FeatureDisconnect] {
			continue
		}
		if err := w.Disconnect(ctx); err != nil {
			logging.WalletWarn("standard disconnect %s: %v", w.Name(), err)
		} else {
			logging.Wallet("disconnected standard wallet %s", w.Name())
			return
		}
	}

	for _, name := range []string{c.cfg.LegacyGlobal, c.cfg.SecondaryLegacyGlobal, c.cfg.GenericGlobal} {
		if name == "" {
			continue
		}
		p := c.env.Lookup(name)
		if p == nil || !p.Capabilities().Disconnect {
			continue
		}
		if err := p.Disconnect(ctx); err != nil {
			logging.WalletWarn("disconnect via %q: %v", name, err)
		} else {
			logging.Wallet("disconnected via %q", name)
			return
		}
	}
}

// Active returns the current session without touching the environment.
func (c *Connector) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Current returns the active session, re-deriving it from already-granted
// environment state when absent (e.g. state restored without replaying
// connection). Re-derivation never prompts: only existing grants count.
func (c *Connector) Current(ctx context.Context) (*Session, error) {
	if s := c.Active(); s != nil {
		return s, nil
	}

	for _, cand := range []struct {
		name string
		kind Kind
	}{
		{c.cfg.LegacyGlobal, KindLegacyA},
		{c.cfg.SecondaryLegacyGlobal, KindLegacyB},
		{c.cfg.GenericGlobal, KindGeneric},
	} {
		if cand.name == "" {
			continue
		}
		p := c.env.Lookup(cand.name)
		if p == nil {
			continue
		}
		caps := p.Capabilities()
		accounts := c.grantedAccounts(ctx, p, caps)
		if len(accounts) == 0 {
			continue
		}
		var signer Signer
		if caps.Sign {
			signer = &providerSigner{provider: p, address: accounts[0]}
		}
		s := &Session{Address: accounts[0], Wallet: p.Name(), Kind: cand.kind, signer: signer}
		logging.Wallet("re-derived session from %q account=%s", cand.name, accounts[0])
		return c.setActive(s), nil
	}

	return nil, fmt.Errorf("%w: no active session and no prior grant: %s", ErrNotFound, guidance)
}

func (c *Connector) setActive(s *Session) *Session {
	c.mu.Lock()
	c.active = s
	c.mu.Unlock()
	return s
}

func (c *Connector) addAnnounced(w StandardWallet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, have := range c.announced {
		if have.Name() == w.Name() {
			return
		}
	}
	c.announced = append(c.announced, w)
}

// wallets merges the environment's current standard listing with wallets
// announced late during the polling window, deduplicated by name.
func (c *Connector) wallets() []StandardWallet {
	listed := c.env.Wallets()

	c.mu.Lock()
	announced := make([]StandardWallet, len(c.announced))
	copy(announced, c.announced)
	c.mu.Unlock()

	if len(announced) == 0 {
		return listed
	}

	seen := make(map[string]bool, len(listed))
	out := make([]StandardWallet, 0, len(listed)+len(announced))
	for _, w := range listed {
		seen[w.Name()] = true
		out = append(out, w)
	}
	for _, w := range announced {
		if !seen[w.Name()] {
			out = append(out, w)
		}
	}
	return out
}

func (c *Connector) scanMatch(name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range c.cfg.ScanSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

func firstChain(w StandardWallet, account Account) string {
	if chains := w.Chains(); len(chains) > 0 {
		return chains[0]
	}
	if len(account.Chains) > 0 {
		return account.Chains[0]
	}
	return ""
}
