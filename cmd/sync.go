package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	var source, segment string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass over every configured and registered segment",
		Long: `Plans segments from the config file and the series_urls registry, then
traverses each one in turn. A failing segment is reported in the summary and
does not stop the run, so the exit status is zero unless the run itself could
not start or was interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := syncer.Filter{Segment: segment}
			if source != "" {
				src, err := catalog.ParseSource(source)
				if err != nil {
					return err
				}
				filter.Source = src
			}
			return runSync(cmd, filter)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "only sync this source (cardrush or limitless)")
	cmd.Flags().StringVar(&segment, "segment", "", "only sync the segment with this id")
	return cmd
}

func runSync(cmd *cobra.Command, filter syncer.Filter) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := appInstance.Store(ctx)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s, err := appInstance.Syncer(ctx)
	if err != nil {
		return err
	}

	summary, err := s.Run(ctx, appInstance.Config().Segments, filter)
	if err != nil {
		return err
	}
	if err := summary.WriteTable(cmd.OutOrStdout()); err != nil {
		return err
	}
	appInstance.Logger().Info("sync command finished",
		zap.String("run_id", summary.RunID),
		zap.Int("written", summary.Written()),
		zap.Int("failed_segments", summary.Failed()),
	)
	return nil
}
