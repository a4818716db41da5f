package main

import (
	"text/tabwriter"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"nanochatd/internal/registry"
	"nanochatd/pkg/types"
)

func newModelsCmd(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List GGUF files in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := registry.LoadDir(o.cfg.ModelsDir)
			if err != nil {
				return err
			}
			if list == nil {
				list = []types.Model{}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(types.ModelsResponse{Object: "list", Data: list})
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fprintf(tw, "ID\tQUANT\tFAMILY\tPATH\n")
			for _, m := range list {
				fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Quant, m.Family, m.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
