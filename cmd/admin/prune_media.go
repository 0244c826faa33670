package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"infrasite/internal/database"
	"infrasite/internal/storage"
)

var (
	pruneDryRun bool
	pruneMinAge time.Duration
)

var pruneMediaCmd = &cobra.Command{
	Use:   "prune-media",
	Short: "Delete uploaded objects that no media row references",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, db, err := openDatabase()
		if err != nil {
			return err
		}
		storageClient, err := storage.NewClient(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		removed, err := pruneMedia(cmd.Context(), db, storageClient, time.Now().Add(-pruneMinAge), pruneDryRun, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		verb := "deleted"
		if pruneDryRun {
			verb = "would delete"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d orphaned objects\n", verb, removed)
		return nil
	},
}

func init() {
	pruneMediaCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "list orphans without deleting them")
	pruneMediaCmd.Flags().DurationVar(&pruneMinAge, "min-age", 24*time.Hour, "skip objects younger than this")
}

type objectStore interface {
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// pruneMedia removes objects under the media prefix that were modified before
// cutoff and have no matching media row.
func pruneMedia(ctx context.Context, db *gorm.DB, store objectStore, cutoff time.Time, dryRun bool, out io.Writer) (int, error) {
	objects, err := store.ListObjects(ctx, storage.MediaPrefix, 0)
	if err != nil {
		return 0, err
	}

	var keys []string
	if err := db.WithContext(ctx).Model(&database.Media{}).Pluck("object_key", &keys).Error; err != nil {
		return 0, fmt.Errorf("load media keys: %w", err)
	}
	referenced := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		referenced[k] = struct{}{}
	}

	removed := 0
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if !storage.ValidMediaObjectKey(obj.Key) || obj.LastModified.After(cutoff) {
			continue
		}
		fmt.Fprintln(out, obj.Key)
		if !dryRun {
			if err := store.DeleteObject(ctx, obj.Key); err != nil {
				return removed, err
			}
		}
		removed++
	}
	return removed, nil
}
