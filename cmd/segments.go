package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

func newSegmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "Manage the segment registry",
	}
	cmd.AddCommand(newSegmentsAddCmd(), newSegmentsListCmd())
	return cmd
}

func newSegmentsAddCmd() *cobra.Command {
	var (
		source, id, address, group string
		maxPages                   int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register or update a segment",
		Example: `  catalogsync segments add --source cardrush --group 267 --max-pages 14
  catalogsync segments add --source limitless --id en/SSP --address en/SSP`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			src, err := catalog.ParseSource(source)
			if err != nil {
				return err
			}
			seg := catalog.Segment{Source: src, ID: id, BaseAddress: address, MaxPages: maxPages}
			if group != "" {
				if src != catalog.SourceCardrush {
					return errors.New("--group only applies to cardrush")
				}
				base := strings.TrimRight(appInstance.Config().Cardrush.BaseURL, "/")
				seg.BaseAddress = base + "/product-group/" + group
				if seg.ID == "" {
					seg.ID = group
				}
			}
			if src == catalog.SourceLimitless && seg.ID == "" {
				seg.ID = seg.BaseAddress
			}

			store, err := appInstance.Store(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			if err := store.UpsertSegment(cmd.Context(), seg); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered %s/%s -> %s\n", seg.Source, seg.ID, seg.BaseAddress)
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", string(catalog.SourceCardrush), "segment source")
	cmd.Flags().StringVar(&id, "id", "", "segment id (defaults to the group id or set path)")
	cmd.Flags().StringVar(&address, "address", "", "listing URL for cardrush or <lang>/<set> for limitless")
	cmd.Flags().StringVar(&group, "group", "", "cardrush product-group id, expanded against cardrush.base_url")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "traversal ceiling; 0 uses the source default")
	return cmd
}

func newSegmentsListCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered segments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			sources := []catalog.Source{catalog.SourceCardrush, catalog.SourceLimitless}
			if source != "" {
				src, err := catalog.ParseSource(source)
				if err != nil {
					return err
				}
				sources = []catalog.Source{src}
			}
			store, err := appInstance.Store(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tSEGMENT\tMAX_PAGES\tADDRESS")
			for _, src := range sources {
				segs, err := store.LoadSegments(cmd.Context(), src)
				if err != nil {
					return err
				}
				for _, seg := range segs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", seg.Source, seg.ID, seg.MaxPages, seg.BaseAddress)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "only list this source")
	return cmd
}
