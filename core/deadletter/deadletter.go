package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"portfolio-persist/core/persist"
	"portfolio-persist/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Entry is one archived escalation.
type Entry struct {
	// Key is the object key the entry was loaded from.
	Key string `json:"-"`
	// Record is the escalated record with its retry state reset.
	Record *persist.Record `json:"record"`
	// Action is the write that failed.
	Action persist.Action `json:"action"`
	// Fault is the classification of the final error.
	Fault persist.FaultKind `json:"fault"`
	// Attempts is the attempt count reached before escalation.
	Attempts int `json:"attempts"`
	// Error is the final error message.
	Error string `json:"error"`
	// EscalatedAt is when the reconciler gave up.
	EscalatedAt time.Time `json:"escalated_at"`
}

// Object describes a stored entry without loading it.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Archive stores escalated records as JSON objects under
// <prefix>/<kind>/<id>-<unixnano>.json.
type Archive struct {
	client storage.Client
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// New creates an archive writing to bucket under prefix.
func New(client storage.Client, bucket, prefix string, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("deadletter"),
		now:    time.Now,
	}
}

// Archive implements persist.EscalationSink.
func (a *Archive) Archive(ctx context.Context, esc *persist.EscalationError) error {
	if esc == nil || esc.Record == nil {
		return errors.New("escalation without record")
	}

	entry := Entry{
		Record:      esc.Record,
		Action:      esc.Action,
		Fault:       esc.Kind,
		Attempts:    esc.Attempts,
		EscalatedAt: a.now().UTC(),
	}
	if esc.Err != nil {
		entry.Error = esc.Err.Error()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode dead letter: %w", err)
	}

	key := a.key(esc.Record, entry.EscalatedAt)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload dead letter %s: %w", key, err)
	}

	a.logger.Info("Record archived",
		zap.String("key", key),
		zap.String("kind", esc.Record.Kind),
		zap.String("id", esc.Record.ID.String()),
		zap.String("fault", string(esc.Kind)),
	)
	return nil
}

// List returns the archived objects, optionally limited to one record kind.
func (a *Archive) List(ctx context.Context, kind string) ([]Object, error) {
	prefix := a.prefix + "/"
	if kind != "" {
		prefix = path.Join(a.prefix, kind) + "/"
	}

	var out []Object
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list dead letters: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		out = append(out, Object{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}

// Load reads and decodes one entry.
func (a *Archive) Load(ctx context.Context, key string) (*Entry, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter %s: %w", key, err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letter %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode dead letter %s: %w", key, err)
	}
	if entry.Record == nil {
		return nil, fmt.Errorf("dead letter %s has no record", key)
	}
	entry.Key = key
	return &entry, nil
}

// Remove deletes one entry.
func (a *Archive) Remove(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove dead letter %s: %w", key, err)
	}
	return nil
}

// Purge deletes every entry of kind (all kinds if empty) and returns how
// many were removed.
func (a *Archive) Purge(ctx context.Context, kind string) (int, error) {
	objects, err := a.List(ctx, kind)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(objects))
	for _, obj := range objects {
		objectsCh <- minio.ObjectInfo{Key: obj.Key}
	}
	close(objectsCh)

	var errs []error
	for rerr := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("%s: %w", rerr.ObjectName, rerr.Err))
	}
	removed := len(objects) - len(errs)
	if len(errs) > 0 {
		return removed, fmt.Errorf("failed to purge dead letters: %w", errors.Join(errs...))
	}
	return removed, nil
}

func (a *Archive) key(rec *persist.Record, at time.Time) string {
	kind := rec.Kind
	if kind == "" {
		kind = "unknown"
	}
	return path.Join(a.prefix, kind, fmt.Sprintf("%s-%d.json", rec.ID, at.UnixNano()))
}

var _ persist.EscalationSink = (*Archive)(nil)
