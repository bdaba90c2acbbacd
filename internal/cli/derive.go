package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"skygent.dev/skygent/internal/derive"
	"skygent.dev/skygent/internal/filter"
	"skygent.dev/skygent/internal/report"
	intstore "skygent.dev/skygent/internal/store"
)

var (
	deriveSourceName string
	deriveTargetName string
	deriveOutPath    string
	deriveEventTime  bool
	deriveReset      bool
)

var deriveCmd = &cobra.Command{
	Use:   "derive <dsl>",
	Short: "Replay a source store's event log through a filter into a target store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if deriveSourceName == "" || deriveTargetName == "" {
			return fmt.Errorf("--source and --target are required")
		}
		ctx := context.Background()

		locks, err := intstore.AcquireMany(ctx, cfg.StoreRoot, []string{deriveSourceName, deriveTargetName}, 10*time.Second)
		if err != nil {
			return err
		}
		defer intstore.ReleaseAll(locks)

		source, err := openStore(ctx, deriveSourceName)
		if err != nil {
			return err
		}
		defer source.Close()

		target, err := openStore(ctx, deriveTargetName)
		if err != nil {
			return err
		}
		defer target.Close()

		expr, err := filter.Parse(args[0], filter.WithNamedFilterResolver(target))
		if err != nil {
			return err
		}
		pred, err := filter.Compile(expr, filter.Collaborators{})
		if err != nil {
			return err
		}

		mode := derive.DeriveTime
		if deriveEventTime {
			mode = derive.EventTime
		}

		engine := derive.NewEngine()
		result, err := engine.Run(ctx, source, target, pred, mode, deriveReset)
		if err != nil {
			return err
		}

		summary := report.Summarize(deriveTargetName, result)
		fmt.Printf("target %q: %d matched, %d deleted / %d scanned (reset=%v)\n",
			summary.ViewName, summary.MatchedCount, len(result.DeletedURIs), summary.EventsScanned, summary.Reset)

		if deriveOutPath != "" {
			if err := report.Materialize(ctx, target, result, deriveOutPath); err != nil {
				return err
			}
			fmt.Printf("materialized to %s\n", deriveOutPath)
		}
		return nil
	},
}

func init() {
	deriveCmd.Flags().StringVar(&deriveSourceName, "source", "", "source store name")
	deriveCmd.Flags().StringVar(&deriveTargetName, "target", "", "target store name (holds the derived view)")
	deriveCmd.Flags().StringVar(&deriveOutPath, "out", "", "write matched posts as NDJSON to this path")
	deriveCmd.Flags().BoolVar(&deriveEventTime, "event-time", false, "evaluate in event_time mode (rejects effectful filters)")
	deriveCmd.Flags().BoolVar(&deriveReset, "reset", false, "replay from scratch even if a checkpoint exists")
}
