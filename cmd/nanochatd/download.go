package main

import (
	"github.com/spf13/cobra"
)

func newDownloadCmd(o *options) *cobra.Command {
	var (
		verify bool
		sum    string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch the model artifact for the configured backend into the cache",
		Example: "  nanochatd download\n" +
			"  nanochatd download --verify\n" +
			"  nanochatd download --backend tensor --hf-revision main",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := o.fetcher(true)
			art, err := f.Resolve(cmd.Context(), o.source())
			if err != nil {
				return err
			}
			state := "cached"
			if art.Fetched {
				state = "downloaded"
			}
			fprintf(cmd.OutOrStdout(), "%s %s\n", state, art.Path)
			if !verify && sum == "" {
				return nil
			}
			v, err := f.Verify(cmd.Context(), art.Path, sum)
			if err != nil {
				return err
			}
			how := "sha256"
			if v.Expected == "" {
				how = "structure, sha256"
			}
			fprintf(cmd.OutOrStdout(), "verified %s (%s %s)\n", v.Path, how, v.SHA256)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Check the artifact against its cached digest and parse its header")
	cmd.Flags().StringVar(&sum, "sha256", "", "Expected sha256 of the artifact; implies --verify")
	return cmd
}
