package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// collectorJS installs the standard registration listener on the page. Wallets
// built against the registration protocol either respond to the app-ready
// event or register later through the event listener; both paths land in the
// same window-level array so the Go side can enumerate and call them by index.
const collectorJS = `
() => {
	if (window.__florafiWallets) return;
	window.__florafiWallets = [];
	const register = (...wallets) => {
		for (const w of wallets) {
			if (w && !window.__florafiWallets.some(x => x.name === w.name)) {
				window.__florafiWallets.push(w);
			}
		}
	};
	window.addEventListener('wallet-standard:register-wallet', (ev) => {
		try { ev.detail({ register }); } catch (e) {}
	});
	window.dispatchEvent(new CustomEvent('wallet-standard:app-ready', { detail: { register } }));
}`

// BrowserEnvConfig controls how the environment reaches a page.
type BrowserEnvConfig struct {
	// DebuggerURL attaches to an already-running Chrome. When empty a
	// headless instance is launched.
	DebuggerURL string
	Headless    bool
	// PageURL is navigated to after connecting. Wallet extensions only
	// inject into real pages, so about:blank is a poor default for
	// anything beyond smoke testing.
	PageURL string
	// AnnouncePoll is how often the registration array is re-sampled for
	// late registrations. Zero disables the announcement goroutine.
	AnnouncePoll time.Duration
}

// BrowserEnv implements Environment over a live Chrome page. Globals are
// probed with evaluated JS; standard wallets are enumerated from the
// registration collector installed at navigation time.
type BrowserEnv struct {
	browser *rod.Browser
	page    *rod.Page
	log     *zap.SugaredLogger

	mu       sync.Mutex
	announce chan StandardWallet
	cancel   context.CancelFunc
	owned    bool // browser launched by us, closed on Close
}

// NewBrowserEnv connects (or launches) Chrome, opens the target page, and
// installs the wallet registration collector.
func NewBrowserEnv(ctx context.Context, cfg BrowserEnvConfig, log *zap.SugaredLogger) (*BrowserEnv, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	controlURL := cfg.DebuggerURL
	owned := false
	if controlURL == "" {
		url, err := launcher.New().Headless(cfg.Headless).Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
		owned = true
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	pageURL := cfg.PageURL
	if pageURL == "" {
		pageURL = "about:blank"
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("open page %s: %w", pageURL, err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		log.Warnw("page load wait failed", "url", pageURL, "err", err)
	}

	env := &BrowserEnv{browser: browser, page: page, log: log, owned: owned}

	if _, err := env.eval(ctx, collectorJS); err != nil {
		log.Warnw("wallet collector install failed", "err", err)
	}

	if cfg.AnnouncePoll > 0 {
		pollCtx, cancel := context.WithCancel(context.Background())
		env.cancel = cancel
		env.announce = make(chan StandardWallet, 8)
		go env.watchRegistrations(pollCtx, cfg.AnnouncePoll)
	}

	log.Infow("browser environment ready", "url", pageURL, "attached", !owned)
	return env, nil
}

// Close tears down the announcement watcher and, when the browser was
// launched here rather than attached, the browser itself.
func (e *BrowserEnv) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	if !e.owned {
		return e.page.Close()
	}
	return e.browser.Close()
}

// Lookup probes window[name] for the known wallet method shapes and returns
// a provider whose capabilities reflect exactly what the object exposes.
func (e *BrowserEnv) Lookup(name string) Provider {
	ctx, cancel := evalContext()
	defer cancel()

	raw, err := e.evalArgs(ctx, `(name) => {
		const o = window[name];
		if (!o || (typeof o !== 'object' && typeof o !== 'function')) return null;
		return {
			connect: typeof o.connect === 'function',
			requestPermissions: typeof o.requestPermissions === 'function',
			accounts: typeof o.getAccounts === 'function',
			sign: typeof o.signAndExecuteTransactionBlock === 'function',
			disconnect: typeof o.disconnect === 'function',
		};
	}`, name)
	if err != nil {
		e.log.Debugw("global probe failed", "name", name, "err", err)
		return nil
	}

	var probe struct {
		Connect            bool `json:"connect"`
		RequestPermissions bool `json:"requestPermissions"`
		Accounts           bool `json:"accounts"`
		Sign               bool `json:"sign"`
		Disconnect         bool `json:"disconnect"`
	}
	if raw == nil || json.Unmarshal(raw, &probe) != nil {
		return nil
	}

	caps := Capabilities{
		Connect:            probe.Connect,
		RequestPermissions: probe.RequestPermissions,
		Accounts:           probe.Accounts,
		Sign:               probe.Sign,
		Disconnect:         probe.Disconnect,
	}
	if caps == (Capabilities{}) {
		// Shapeless object: present but not wallet-like.
		return nil
	}
	return &jsProvider{env: e, global: name, caps: caps}
}

// GlobalNames returns every own property name of window.
func (e *BrowserEnv) GlobalNames() []string {
	ctx, cancel := evalContext()
	defer cancel()

	raw, err := e.eval(ctx, `() => Object.getOwnPropertyNames(window)`)
	if err != nil {
		e.log.Debugw("global name scan failed", "err", err)
		return nil
	}
	var names []string
	if json.Unmarshal(raw, &names) != nil {
		return nil
	}
	return names
}

// Wallets enumerates the wallets collected through the registration protocol.
func (e *BrowserEnv) Wallets() []StandardWallet {
	return e.sampleWallets(nil)
}

// Announcements returns the late-registration channel, or nil when polling
// was not enabled.
func (e *BrowserEnv) Announcements() <-chan StandardWallet {
	return e.announce
}

func (e *BrowserEnv) sampleWallets(seen map[string]bool) []StandardWallet {
	ctx, cancel := evalContext()
	defer cancel()

	raw, err := e.eval(ctx, `() => (window.__florafiWallets || []).map(w => ({
		name: w.name || '',
		chains: Array.isArray(w.chains) ? w.chains : [],
		features: Object.keys(w.features || {}),
	}))`)
	if err != nil {
		e.log.Debugw("wallet listing failed", "err", err)
		return nil
	}

	var listed []struct {
		Name     string   `json:"name"`
		Chains   []string `json:"chains"`
		Features []string `json:"features"`
	}
	if json.Unmarshal(raw, &listed) != nil {
		return nil
	}

	out := make([]StandardWallet, 0, len(listed))
	for _, w := range listed {
		if w.Name == "" || (seen != nil && seen[w.Name]) {
			continue
		}
		features := make(map[string]bool, len(w.Features))
		for _, f := range w.Features {
			features[f] = true
		}
		out = append(out, &jsStandardWallet{env: e, name: w.Name, chains: w.Chains, features: features})
	}
	return out
}

// watchRegistrations re-samples the collector array and forwards wallets not
// seen before. Extensions that register after the initial page scan show up
// here.
func (e *BrowserEnv) watchRegistrations(ctx context.Context, interval time.Duration) {
	seen := map[string]bool{}
	for _, w := range e.sampleWallets(nil) {
		seen[w.Name()] = true
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, w := range e.sampleWallets(seen) {
				seen[w.Name()] = true
				e.log.Infow("late wallet registration", "wallet", w.Name())
				select {
				case e.announce <- w:
				default:
					// Channel full; the next Wallets call still sees it.
				}
			}
		}
	}
}

// eval runs a JS function on the page, awaiting promises, and returns the
// result as raw JSON.
func (e *BrowserEnv) eval(ctx context.Context, js string, args ...interface{}) ([]byte, error) {
	return e.evalArgs(ctx, js, args...)
}

func (e *BrowserEnv) evalArgs(ctx context.Context, js string, args ...interface{}) ([]byte, error) {
	res, err := e.page.Context(ctx).Evaluate(&rod.EvalOptions{
		ByValue:      true,
		AwaitPromise: true,
		JS:           js,
		JSArgs:       args,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	return res.Value.MarshalJSON()
}

func evalContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// jsProvider is a legacy/generic wallet global reached through evaluated JS.
// Every call re-resolves the global by name so a page reload or re-injection
// does not leave a stale object handle behind.
type jsProvider struct {
	env    *BrowserEnv
	global string
	caps   Capabilities
}

func (p *jsProvider) Name() string               { return p.global }
func (p *jsProvider) Capabilities() Capabilities { return p.caps }

func (p *jsProvider) RequestPermissions(ctx context.Context) error {
	if !p.caps.RequestPermissions {
		return ErrUnsupported
	}
	raw, err := p.env.evalArgs(ctx, `async (name) => {
		const r = await window[name].requestPermissions();
		return r === undefined ? true : !!r;
	}`, p.global)
	if err != nil {
		return mapJSError("requestPermissions", p.global, err)
	}
	var granted bool
	if json.Unmarshal(raw, &granted) == nil && !granted {
		return fmt.Errorf("permission request on %q was denied", p.global)
	}
	return nil
}

func (p *jsProvider) Accounts(ctx context.Context) ([]string, error) {
	if !p.caps.Accounts {
		return nil, ErrUnsupported
	}
	raw, err := p.env.evalArgs(ctx, `async (name) => {
		const a = await window[name].getAccounts();
		return (a || []).map(x => typeof x === 'string' ? x : (x.address || ''));
	}`, p.global)
	if err != nil {
		return nil, mapJSError("getAccounts", p.global, err)
	}
	return decodeAddresses(raw)
}

func (p *jsProvider) Connect(ctx context.Context) ([]string, error) {
	if !p.caps.Connect {
		return nil, ErrUnsupported
	}
	raw, err := p.env.evalArgs(ctx, `async (name) => {
		const r = await window[name].connect();
		const a = (r && r.accounts) || r || [];
		return (Array.isArray(a) ? a : []).map(x => typeof x === 'string' ? x : (x.address || ''));
	}`, p.global)
	if err != nil {
		return nil, mapJSError("connect", p.global, err)
	}
	return decodeAddresses(raw)
}

func (p *jsProvider) Disconnect(ctx context.Context) error {
	if !p.caps.Disconnect {
		return ErrUnsupported
	}
	_, err := p.env.evalArgs(ctx, `async (name) => { await window[name].disconnect(); return true; }`, p.global)
	if err != nil {
		return mapJSError("disconnect", p.global, err)
	}
	return nil
}

func (p *jsProvider) SignTransaction(ctx context.Context, tx []byte, account string) ([]byte, error) {
	if !p.caps.Sign {
		return nil, ErrUnsupported
	}
	raw, err := p.env.evalArgs(ctx, `async (name, tx, addr) => {
		const r = await window[name].signAndExecuteTransactionBlock({
			transactionBlock: tx,
			account: addr,
		});
		if (r && typeof r.digest === 'string') return r.digest;
		return JSON.stringify(r);
	}`, p.global, string(tx), account)
	if err != nil {
		return nil, mapJSError("signAndExecuteTransactionBlock", p.global, err)
	}
	return decodeSignResult(raw)
}

// jsStandardWallet is a registration-protocol wallet addressed by name inside
// the collector array.
type jsStandardWallet struct {
	env      *BrowserEnv
	name     string
	chains   []string
	features map[string]bool
}

func (w *jsStandardWallet) Name() string              { return w.name }
func (w *jsStandardWallet) Chains() []string          { return w.chains }
func (w *jsStandardWallet) Features() map[string]bool { return w.features }

func (w *jsStandardWallet) Connect(ctx context.Context) ([]Account, error) {
	if !w.features[FeatureConnect] {
		return nil, ErrUnsupported
	}
	raw, err := w.env.evalArgs(ctx, `async (name) => {
		const w = (window.__florafiWallets || []).find(x => x.name === name);
		if (!w) throw new Error('wallet vanished: ' + name);
		const r = await w.features['standard:connect'].connect();
		return (r.accounts || []).map(a => ({ address: a.address, chains: a.chains || [] }));
	}`, w.name)
	if err != nil {
		return nil, mapJSError("standard:connect", w.name, err)
	}
	var accounts []Account
	if raw != nil {
		var decoded []struct {
			Address string   `json:"address"`
			Chains  []string `json:"chains"`
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode %s accounts: %w", w.name, err)
		}
		for _, a := range decoded {
			accounts = append(accounts, Account{Address: a.Address, Chains: a.Chains})
		}
	}
	return accounts, nil
}

func (w *jsStandardWallet) Disconnect(ctx context.Context) error {
	if !w.features[FeatureDisconnect] {
		return ErrUnsupported
	}
	_, err := w.env.evalArgs(ctx, `async (name) => {
		const w = (window.__florafiWallets || []).find(x => x.name === name);
		if (!w) throw new Error('wallet vanished: ' + name);
		await w.features['standard:disconnect'].disconnect();
		return true;
	}`, w.name)
	if err != nil {
		return mapJSError("standard:disconnect", w.name, err)
	}
	return nil
}

func (w *jsStandardWallet) SignTransaction(ctx context.Context, tx []byte, account, chain string) ([]byte, error) {
	if !w.features[FeatureSign] {
		return nil, ErrUnsupported
	}
	raw, err := w.env.evalArgs(ctx, `async (name, tx, addr, chain) => {
		const w = (window.__florafiWallets || []).find(x => x.name === name);
		if (!w) throw new Error('wallet vanished: ' + name);
		const account = (w.accounts || []).find(a => a.address === addr) || { address: addr };
		const r = await w.features['sui:signAndExecuteTransactionBlock'].signAndExecuteTransactionBlock({
			transactionBlock: tx,
			account,
			chain,
		});
		if (r && typeof r.digest === 'string') return r.digest;
		return JSON.stringify(r);
	}`, w.name, string(tx), account, chain)
	if err != nil {
		return nil, mapJSError(FeatureSign, w.name, err)
	}
	return decodeSignResult(raw)
}

func decodeAddresses(raw []byte) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var all []string
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	out := all[:0]
	for _, a := range all {
		if a != "" {
			out = append(out, a)
		}
	}
	return out, nil
}

func decodeSignResult(raw []byte) ([]byte, error) {
	if raw == nil {
		return nil, fmt.Errorf("wallet returned no signature")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw, nil
	}
	return []byte(s), nil
}

// mapJSError classifies an evaluated-JS failure. Rejection-looking messages
// are surfaced as ErrRejected so the connector's taxonomy holds across the
// page boundary.
func mapJSError(op, target string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "reject") || strings.Contains(msg, "denied") || strings.Contains(msg, "user cancel") {
		return fmt.Errorf("%w: %s on %s: %v", ErrRejected, op, target, err)
	}
	return fmt.Errorf("%s on %s: %w", op, target, err)
}
