package cmd

import (
	"context"
	"errors"
	"fmt"

	"portfolio-persist/core/deadletter"
	"portfolio-persist/feature/persistence"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	deadLetterKind string
	replayAll      bool
	yesConfirm     bool
)

// deadLetterCmd is the parent command for dead-letter operations.
var deadLetterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect, replay and purge escalated records",
}

var deadLetterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived escalations",
	RunE:  runDeadLetterList,
}

var deadLetterReplayCmd = &cobra.Command{
	Use:   "replay [key...]",
	Short: "Resubmit archived records to the store",
	Long: `Resubmits archived records with their original action and removes them from the archive.
A record that escalates again is archived under a new key.

Examples:
  # Replay one entry
  deadletter replay deadletter/position/<id>-<ts>.json

  # Replay every archived position without prompting
  deadletter replay --all --kind position --yes`,
	RunE: runDeadLetterReplay,
}

var deadLetterPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete archived escalations",
	RunE:  runDeadLetterPurge,
}

func init() {
	deadLetterCmd.PersistentFlags().StringVar(&deadLetterKind, "kind", "", "Limit to one record kind")
	deadLetterReplayCmd.Flags().BoolVar(&replayAll, "all", false, "Replay every archived entry (respects --kind)")
	deadLetterReplayCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm (non-interactive)")
	deadLetterPurgeCmd.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm (non-interactive)")

	deadLetterCmd.AddCommand(deadLetterListCmd, deadLetterReplayCmd, deadLetterPurgeCmd)
	RootCmd.AddCommand(deadLetterCmd)
}

func runDeadLetterList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, l, err := loadRuntime()
	if err != nil {
		return err
	}
	defer l.Sync()

	archive, err := openArchive(ctx, cfg, l)
	if err != nil {
		return err
	}

	objs, err := archive.List(ctx, deadLetterKind)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		l.Info("Dead letter",
			zap.String("key", obj.Key),
			zap.Int64("size", obj.Size),
			zap.Time("last_modified", obj.LastModified),
		)
	}
	l.Info("Dead letters listed", zap.Int("count", len(objs)), zap.String("kind", deadLetterKind))
	return nil
}

func runDeadLetterReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, l, err := loadRuntime()
	if err != nil {
		return err
	}
	defer l.Sync()

	archive, err := openArchive(ctx, cfg, l)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	keys := args
	if replayAll {
		if keys, err = listKeys(ctx, archive); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		l.Info("Nothing to replay. Pass keys or use --all.")
		return nil
	}

	if !confirmAction(fmt.Sprintf("Replay %d dead letter(s) against the store?", len(keys)), yesConfirm) {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	reconciler, classify := newReconciler(cfg, store, archive, l)
	svc := persistence.NewService(reconciler, store, classify, archive, l)

	var errs []error
	replayed := 0
	for _, key := range keys {
		if err := svc.Replay(ctx, key); err != nil {
			l.Error("Replay failed", zap.String("key", key), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		replayed++
	}

	// Requeued records are finished here rather than left in memory.
	if err := reconciler.Drain(ctx); err != nil {
		errs = append(errs, err)
	}

	l.Info("Replay finished", zap.Int("replayed", replayed), zap.Int("failed", len(keys)-replayed))
	return errors.Join(errs...)
}

func runDeadLetterPurge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, l, err := loadRuntime()
	if err != nil {
		return err
	}
	defer l.Sync()

	archive, err := openArchive(ctx, cfg, l)
	if err != nil {
		return err
	}

	scope := "all kinds"
	if deadLetterKind != "" {
		scope = deadLetterKind
	}
	if !confirmAction(fmt.Sprintf("Delete every dead letter for %s?", scope), yesConfirm) {
		l.Warn("Operation cancelled by user. No changes were made.")
		return nil
	}

	removed, err := archive.Purge(ctx, deadLetterKind)
	l.Info("Dead letters purged", zap.Int("removed", removed))
	return err
}

func listKeys(ctx context.Context, archive *deadletter.Archive) ([]string, error) {
	objs, err := archive.List(ctx, deadLetterKind)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(objs))
	for _, obj := range objs {
		keys = append(keys, obj.Key)
	}
	return keys, nil
}
