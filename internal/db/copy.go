package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of rows sent per COPY when none is given.
const DefaultBatchSize = 10000

// CopyFrom bulk-inserts rows into a table using the COPY protocol, in
// batches of batchSize rows (0 means DefaultBatchSize). It returns the rows
// copied before any failure.
func CopyFrom(ctx context.Context, pool Pool, table pgx.Identifier, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	name := strings.Join(table, ".")
	log := zap.L().With(
		zap.String("component", "db.copy"),
		zap.String("table", name),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))

		n, err := pool.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows[i:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s (batch %d-%d)", name, i, end)
		}
		total += n

		log.Debug("batch copied",
			zap.Int("batch_start", i),
			zap.Int("batch_end", end),
			zap.Int64("batch_rows", n),
		)
	}
	return total, nil
}

// Truncate empties a table.
func Truncate(ctx context.Context, pool Pool, table pgx.Identifier) error {
	if _, err := pool.Exec(ctx, "TRUNCATE "+table.Sanitize()); err != nil {
		return eris.Wrapf(err, "db: truncate %s", strings.Join(table, "."))
	}
	return nil
}
