// Package storage wraps the MinIO client used for the dead-letter archive.
//
// The Client interface is the subset of minio.Client the service needs,
// which keeps object storage mockable in tests (see core/storage/mocks).
// It works against both AWS S3 and self-hosted MinIO.
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
//	    return err
//	}
package storage
