package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"florafi/internal/session"
	"florafi/internal/storage"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a file to the configured storage publishers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		client := storage.NewClient(storage.Config{
			Publishers: cfg.Storage.Publishers,
			Aggregator: cfg.Storage.Aggregator,
			Epochs:     cfg.Storage.Epochs,
			Timeout:    cfg.GetStorageTimeout(),
		})

		ctx, cancel := signalContext()
		defer cancel()

		result, err := client.Store(ctx, payload, 0)
		if err != nil {
			return err
		}
		if err := client.Certify(ctx, result.BlobID); err != nil {
			return err
		}
		fmt.Printf("Stored %d bytes\n", len(payload))
		fmt.Printf("  blob: %s\n", result.BlobID)
		fmt.Printf("  url:  %s\n", result.URL)
		return nil
	},
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export a stored session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore(cfg.Session.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		transcript, err := store.Load(args[0])
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOutput, err)
			}
			defer f.Close()
			out = f
		}
		return session.Export(out, transcript, time.Now())
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}
