package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediarelay/internal/media"
	"mediarelay/internal/pkg/errors"
)

var (
	flagAudio    bool
	flagMaxItems int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Resolve a link and print its renditions as JSON",
	Long: `resolve runs the same extractor chain and credential handling the bot
uses and prints the normalized rendition list. Nothing is sent anywhere.`,
	Args: cobra.ExactArgs(1),
	RunE: resolveRun,
}

func init() {
	resolveCmd.Flags().BoolVar(&flagAudio, "audio", false, "Select the best audio-only format (YouTube only)")
	resolveCmd.Flags().IntVar(&flagMaxItems, "max-items", 0, "Cap carousel/playlist entries (default: resolver.max_items)")
}

func resolveRun(cmd *cobra.Command, args []string) error {
	log := newLogger(os.Stderr)
	ctx := context.Background()

	rawURL := args[0]
	provider := media.DetectProvider(rawURL)
	if provider == media.ProviderUnknown {
		return errors.Unsupported(rawURL)
	}
	if flagAudio && !provider.SupportsAudio() {
		return errors.ValidationField("audio", "audio mode is available for YouTube links only")
	}

	dir, err := openScratch(ctx, log)
	if err != nil {
		return err
	}

	r := newResolver(dir, log)
	list, err := r.Resolve(ctx, rawURL, media.Options{AudioOnly: flagAudio, MaxItems: flagMaxItems})
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errors.UserMessage(err, provider.DisplayName()))
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
