package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	intstore "skygent.dev/skygent/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage Skygent event stores",
}

var storeInitCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new store and initialize its schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		ctx := context.Background()

		lock, err := intstore.AcquireLock(ctx, cfg.StoreRoot, name, 10*time.Second)
		if err != nil {
			return err
		}
		defer lock.Release()

		path := intstore.FilePath(cfg.StoreRoot, name)
		st, err := intstore.Open(ctx, path)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetConfig(ctx, "name", name); err != nil {
			return err
		}
		if err := st.SetConfig(ctx, "created_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}

		fmt.Printf("initialized store %q at %s\n", name, path)
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeInitCmd)
}
