// Package migrate copies every sighting from one backend to another,
// preserving identifiers. It is a batch client of the storage contract,
// the one caller allowed to use the identifier-preserving create.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ananasregina/fnord/internal/storage"
)

// Stats summarizes a migration run.
type Stats struct {
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
}

// Run pages through src in id order and writes each record to dst under
// its original id. Records already present in dst (id conflict) and
// records that fail to copy are counted as skipped, not fatal; embeddings
// are regenerated by dst as needed.
func Run(ctx context.Context, src, dst storage.Store, batchSize int, log *logrus.Logger) (*Stats, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	stats := &Stats{}
	offset := 0
	for {
		batch, err := src.List(ctx, offset, batchSize)
		if err != nil {
			return stats, fmt.Errorf("listing source at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, rec := range batch {
			// Strip any source-side embedding: the destination decides
			// whether (and at what dimension) to embed.
			rec.Embedding = nil

			if _, err := dst.CreateWithID(ctx, rec); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					log.WithField("id", rec.ID).Debug("already present in destination, skipping")
				} else {
					log.WithField("id", rec.ID).WithError(err).Warn("failed to copy fnord")
				}
				stats.Skipped++
				continue
			}
			stats.Copied++
		}

		offset += len(batch)
		log.WithFields(logrus.Fields{"copied": stats.Copied, "skipped": stats.Skipped}).Info("migration progress")
	}

	return stats, nil
}
