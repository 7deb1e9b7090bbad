package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"florafi/internal/chat"
	"florafi/internal/market"
	"florafi/internal/session"
	"florafi/internal/storage"
)

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Browse and publish marketplace listings",
}

var marketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List marketplace listings",
	RunE:  marketList,
}

var marketPublishCmd = &cobra.Command{
	Use:   "publish [session-id]",
	Short: "Upload a finalized session and publish a listing for it",
	Args:  cobra.ExactArgs(1),
	RunE:  marketPublish,
}

var marketStatus string

func init() {
	marketListCmd.Flags().StringVar(&marketStatus, "status", "", "filter by status (draft, published, sold)")
	marketCmd.AddCommand(marketListCmd)
	marketCmd.AddCommand(marketPublishCmd)
}

func marketList(cmd *cobra.Command, args []string) error {
	store, err := market.NewStore(stateDir)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Seed(); err != nil {
		return err
	}

	listings, err := store.List(marketStatus)
	if err != nil {
		return err
	}
	if len(listings) == 0 {
		fmt.Println("No listings.")
		return nil
	}
	for _, l := range listings {
		fmt.Printf("%-36s  %-10s  %5.0f  %s\n", l.ID, l.Status, l.Price, l.Title)
		fmt.Printf("%-36s  blob=%s\n", "", l.BlobID)
	}
	return nil
}

func marketPublish(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	sessions, err := session.NewStore(cfg.Session.DatabasePath)
	if err != nil {
		return err
	}
	defer sessions.Close()

	transcript, err := sessions.Load(args[0])
	if err != nil {
		return err
	}
	if !transcript.Finalized() {
		return fmt.Errorf("session %s is not finalized", args[0])
	}

	body, err := session.ExportString(transcript, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Reuse a prior upload when one was recorded; the blob id is never
	// recomputed.
	client := storage.NewClient(storage.Config{
		Publishers: cfg.Storage.Publishers,
		Aggregator: cfg.Storage.Aggregator,
		Epochs:     cfg.Storage.Epochs,
		Timeout:    cfg.GetStorageTimeout(),
	})
	blobID, url, err := sessions.Upload(args[0])
	if err != nil {
		return err
	}
	if blobID == "" {
		result, err := client.Store(ctx, []byte(body), 0)
		if err != nil {
			return err
		}
		if err := sessions.RecordUpload(args[0], result.BlobID, result.URL); err != nil {
			return err
		}
		blobID, url = result.BlobID, result.URL
		fmt.Printf("Uploaded transcript: blob=%s\n", blobID)
	} else {
		fmt.Printf("Reusing prior upload: blob=%s\n", blobID)
	}

	companion, err := chat.New(chat.Config{
		Backend:     cfg.Chat.Backend,
		APIKey:      cfg.Chat.APIKey,
		Model:       cfg.Chat.Model,
		BaseURL:     cfg.Chat.BaseURL,
		Timeout:     cfg.GetChatTimeout(),
		Temperature: cfg.Chat.Temperature,
		MaxRetries:  cfg.Chat.MaxRetries,
		PlantName:   cfg.PlantName,
	})
	if err != nil {
		return err
	}
	analysis, err := companion.Analyze(ctx, body)
	if err != nil {
		return err
	}

	listings, err := market.NewStore(stateDir)
	if err != nil {
		return err
	}
	defer listings.Close()

	listing, err := listings.Create(analysis, &storage.UploadResult{BlobID: blobID, URL: url})
	if err != nil {
		return err
	}
	if err := listings.UpdateStatus(listing.ID, market.StatusPublished); err != nil {
		return err
	}
	fmt.Printf("Published listing %s: %q price=%.0f\n", listing.ID, listing.Title, listing.Price)
	return nil
}
