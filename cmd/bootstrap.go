package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"portfolio-persist/core/config"
	"portfolio-persist/core/database"
	"portfolio-persist/core/deadletter"
	"portfolio-persist/core/logger"
	"portfolio-persist/core/persist"
	"portfolio-persist/core/persist/gormstore"
	"portfolio-persist/core/storage"

	"go.uber.org/zap"
)

// loadRuntime loads and validates the configuration and builds the logger.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, l, nil
}

// openStore connects to the database and wraps it in the record store.
func openStore(cfg *config.Config) (*gormstore.Store, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	return gormstore.New(db, cfg.Reconciler.TxTimeout()), nil
}

// openArchive connects to object storage and makes sure the dead-letter
// bucket exists.
func openArchive(ctx context.Context, cfg *config.Config, l *zap.Logger) (*deadletter.Archive, error) {
	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
		return nil, err
	}
	return deadletter.New(client, cfg.Storage.Bucket, cfg.Storage.DeadLetterPrefix, l), nil
}

// newReconciler wires the reconciler with the store's classification rules
// and, when available, the dead-letter archive.
func newReconciler(cfg *config.Config, store persist.Store, archive *deadletter.Archive, l *zap.Logger, opts ...persist.Option) (*persist.Reconciler, *persist.Classifier) {
	classify := persist.NewClassifier(gormstore.Rules()...)
	opts = append(opts, persist.WithClassifier(classify))
	if archive != nil {
		opts = append(opts, persist.WithEscalationSink(archive))
	}
	return persist.New(store, cfg.Reconciler, l, opts...), classify
}

// confirmAction asks for an explicit "yes" unless yes is already set.
func confirmAction(prompt string, yes bool) bool {
	if yes {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Printf("\n⚠️  %s Type 'yes' to confirm: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(response) == "yes"
}
