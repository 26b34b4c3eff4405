package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/source/cardrush"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/source/limitless"
)

type inspected struct {
	Record any                `json:"record"`
	Skip   catalog.SkipReason `json:"skip,omitempty"`
}

func newInspectCmd() *cobra.Command {
	var source, address string
	cmd := &cobra.Command{
		Use:   "inspect <file.html>",
		Short: "Run an extractor over a saved page and print what would be written",
		Long: `Reads a page archived by a previous run, extracts records with the chosen
source's rules, and prints each one with the reason it would be skipped, if
any. Nothing is fetched or stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := catalog.ParseSource(source)
			if err != nil {
				return err
			}
			markup, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read page: %w", err)
			}

			var out []inspected
			switch src {
			case catalog.SourceCardrush:
				for _, p := range cardrush.Extract(markup, address) {
					out = append(out, inspected{Record: p, Skip: catalog.ValidateProduct(p)})
				}
			case catalog.SourceLimitless:
				for _, c := range limitless.Extract(markup, address) {
					out = append(out, inspected{Record: c, Skip: catalog.ValidateCard(c)})
				}
			}
			if out == nil {
				out = []inspected{}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&source, "source", string(catalog.SourceCardrush), "extractor to use (cardrush or limitless)")
	cmd.Flags().StringVar(&address, "address", "", "address the page was fetched from, used to resolve links")
	return cmd
}
