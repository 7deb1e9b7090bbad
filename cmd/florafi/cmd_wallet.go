package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"florafi/internal/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Discover and connect browser-injected wallets",
}

var walletConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Run the full wallet discovery chain and connect",
	RunE:  walletConnect,
}

var walletStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report detected wallets and any already-granted session",
	RunE:  walletStatus,
}

var walletDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Best-effort disconnect of whatever wallet is reachable",
	RunE:  walletDisconnect,
}

func init() {
	walletCmd.AddCommand(walletConnectCmd)
	walletCmd.AddCommand(walletStatusCmd)
	walletCmd.AddCommand(walletDisconnectCmd)
}

// newConnector builds a rod-backed connector from config. The caller closes
// the returned env.
func newConnector() (*wallet.Connector, *wallet.BrowserEnv, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zlog, err := zcfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}

	// The env outlives this call; its context must not be cancelled here.
	env, err := wallet.NewBrowserEnv(context.Background(), wallet.BrowserEnvConfig{
		DebuggerURL:  cfg.Wallet.DebuggerURL,
		Headless:     cfg.Wallet.Headless,
		PageURL:      cfg.Wallet.DappURL,
		AnnouncePoll: cfg.GetWalletPollInterval(),
	}, zlog.Sugar())
	if err != nil {
		return nil, nil, err
	}

	connector := wallet.NewConnector(env, wallet.Config{
		PollInterval:          cfg.GetWalletPollInterval(),
		PollTimeout:           cfg.GetWalletPollTimeout(),
		LegacyGlobal:          "suiWallet",
		SecondaryLegacyGlobal: "__suiWallet",
		GenericGlobal:         "wallet",
		ScanSubstrings:        []string{"wallet", "sui"},
	})
	return connector, env, nil
}

func walletConnect(cmd *cobra.Command, args []string) error {
	connector, env, err := newConnector()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	session, err := connector.Connect(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Connected: %s\n", session.Wallet)
	fmt.Printf("  kind:    %s\n", session.Kind)
	fmt.Printf("  address: %s\n", session.Address)
	fmt.Printf("  signing: %v\n", session.CanSign())
	return nil
}

func walletStatus(cmd *cobra.Command, args []string) error {
	connector, env, err := newConnector()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if !connector.WaitForInjection(ctx) {
		fmt.Println("No wallet detected.")
		return nil
	}
	fmt.Println("Wallet presence detected.")

	if session, err := connector.Current(ctx); err == nil {
		fmt.Printf("Granted session: %s (%s) address=%s\n", session.Wallet, session.Kind, session.Address)
	} else {
		fmt.Println("No prior grant; run 'florafi wallet connect' to prompt.")
	}
	return nil
}

func walletDisconnect(cmd *cobra.Command, args []string) error {
	connector, env, err := newConnector()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	connector.Disconnect(ctx)
	fmt.Println("Disconnected.")
	return nil
}
