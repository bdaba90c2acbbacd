package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"skygent.dev/skygent/internal/filter"
	intstore "skygent.dev/skygent/internal/store"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Parse, validate, and manage filter expressions",
}

var filterStoreName string

var filterCheckCmd = &cobra.Command{
	Use:   "check <dsl>",
	Short: "Parse and compile a filter expression, reporting its signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, closeStore, err := openResolver(filterStoreName)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}

		var opts []filter.ParseOption
		opts = append(opts, filter.WithNow(time.Now().UTC()))
		if resolver != nil {
			opts = append(opts, filter.WithNamedFilterResolver(resolver))
		}

		expr, err := filter.Parse(args[0], opts...)
		if err != nil {
			return err
		}
		pred, err := filter.Compile(expr, filter.Collaborators{})
		if err != nil {
			return err
		}

		sig := filter.ComputeSignature(pred.Expr())
		encoded, err := json.MarshalIndent(pred.Expr(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("signature: %s\n%s\n", sig, encoded)
		return nil
	},
}

var filterPutCmd = &cobra.Command{
	Use:   "put <name> <dsl>",
	Short: "Save a named filter into the filter library",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if filterStoreName == "" {
			return fmt.Errorf("--store is required")
		}
		ctx := context.Background()
		st, err := openStore(ctx, filterStoreName)
		if err != nil {
			return err
		}
		defer st.Close()

		expr, err := filter.Parse(args[1], filter.WithNamedFilterResolver(st))
		if err != nil {
			return err
		}
		sig := filter.ComputeSignature(expr).String()
		if err := st.PutFilter(ctx, args[0], args[1], sig); err != nil {
			return err
		}
		fmt.Printf("saved filter %q (signature %s)\n", args[0], sig)
		return nil
	},
}

var filterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved named filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		if filterStoreName == "" {
			return fmt.Errorf("--store is required")
		}
		ctx := context.Background()
		st, err := openStore(ctx, filterStoreName)
		if err != nil {
			return err
		}
		defer st.Close()

		names, err := st.ListFilters(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

func init() {
	filterCmd.PersistentFlags().StringVar(&filterStoreName, "store", "", "store name (required for named-filter operations)")
	filterCmd.AddCommand(filterCheckCmd, filterPutCmd, filterListCmd)
}

func openStore(ctx context.Context, name string) (*intstore.Store, error) {
	path := intstore.FilePath(cfg.StoreRoot, name)
	return intstore.Open(ctx, path)
}

// openResolver opens the named store (for @name resolution) if a store name
// was given; otherwise it returns a nil resolver and a nil close func.
func openResolver(name string) (filter.NamedFilterResolver, func(), error) {
	if name == "" {
		return nil, nil, nil
	}
	st, err := openStore(context.Background(), name)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}
