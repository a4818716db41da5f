package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the hub download cache",
	}
	var repo string
	size := &cobra.Command{
		Use:   "size",
		Short: "Print the bytes held by the download cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := o.fetcher(false)
			n, err := f.CacheSize(repo)
			if err != nil {
				return err
			}
			dir, _ := f.CacheDir()
			fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", n, humanBytes(n), dir)
			return nil
		},
	}
	clean := &cobra.Command{
		Use:     "clean",
		Short:   "Remove cached artifacts",
		Example: "  nanochatd cache clean\n  nanochatd cache clean --repo sdobson/nanochat",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := o.fetcher(false).Clean(repo)
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "freed %s\n", humanBytes(n))
			return nil
		},
	}
	for _, c := range []*cobra.Command{size, clean} {
		c.Flags().StringVar(&repo, "repo", "", "Limit to one hub repository")
	}
	cmd.AddCommand(size, clean)
	return cmd
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
