package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"skygent.dev/skygent/internal/bsky"
	"skygent.dev/skygent/internal/ratelimit"
	"skygent.dev/skygent/internal/sync"
)

var (
	syncStoreName string
	syncPDSURL    string
	syncSource    string
	syncParam     string
	syncLimit     int
	syncDryRun    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull or stream posts into a store",
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull one page range from a cursor-paged source",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncStoreName == "" {
			return fmt.Errorf("--store is required")
		}
		ctx := context.Background()
		st, err := openStore(ctx, syncStoreName)
		if err != nil {
			return err
		}
		defer st.Close()

		client := bsky.NewClient(syncPDSURL, nil)
		limiter := ratelimit.New(cfg.BskyRateLimit, cfg.BskyRetryBase, cfg.BskyRetryMax)
		engine := sync.NewPullEngine(client, st, limiter, log)

		return engine.Run(ctx, bsky.SourceKind(syncSource), syncParam, syncLimit, 0, syncDryRun, func(p sync.Progress) {
			fmt.Printf("page %d: +%d posts (cursor=%s)\n", p.PagesPulled, p.PostsPulled, p.Cursor)
		})
	},
}

var syncPushCmd = &cobra.Command{
	Use:   "push <jetstream-url>",
	Short: "Stream posts from a Jetstream websocket endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncStoreName == "" {
			return fmt.Errorf("--store is required")
		}
		ctx := context.Background()
		st, err := openStore(ctx, syncStoreName)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := sync.NewPushEngine(args[0], st, sync.BatchPolicy{}, log)
		return engine.Run(ctx)
	},
}

func init() {
	syncCmd.PersistentFlags().StringVar(&syncStoreName, "store", "", "store name")
	syncPullCmd.Flags().StringVar(&syncPDSURL, "pds", "https://bsky.social", "PDS/AppView base URL")
	syncPullCmd.Flags().StringVar(&syncSource, "source", "timeline", "source kind (timeline, feed, list, author, thread, notifications)")
	syncPullCmd.Flags().StringVar(&syncParam, "param", "", "source selector (feed/list URI, author handle, thread URI)")
	syncPullCmd.Flags().IntVar(&syncLimit, "limit", 50, "page size")
	syncPullCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "fetch without writing to the store")

	syncCmd.AddCommand(syncPullCmd, syncPushCmd)
}
