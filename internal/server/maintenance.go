package server

import (
	"context"
	"errors"
)

// BackfillSizes fills in the size of registry rows created before sizes were
// recorded, by measuring the stored blob. Rows whose blob has gone missing
// are skipped; the registry is never reconciled here, only annotated.
// Returns the number of rows updated.
func BackfillSizes(ctx context.Context, files FileRegistry, blobs BlobStore, log *Logger) (int, error) {
	entries, err := files.ListMissingSize(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, e := range entries {
		size, err := blobs.Stat(ctx, e.Filename)
		if err != nil {
			if errors.Is(err, ErrBlobMissing) {
				log.Warn("size backfill: blob missing, skipping", map[string]any{
					"filename": e.Filename,
				})
				continue
			}
			return updated, err
		}
		if err := files.UpdateSize(ctx, e.ID, size); err != nil {
			return updated, err
		}
		updated++
	}

	if updated > 0 {
		log.Info("size backfill complete", map[string]any{"updated": updated})
	}
	return updated, nil
}
