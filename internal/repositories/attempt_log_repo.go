package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AttemptLogRepository handles database operations for the append-only attempt log
type AttemptLogRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptLogRepository creates a new AttemptLogRepository
func NewAttemptLogRepository(db *database.DB) *AttemptLogRepository {
	return &AttemptLogRepository{pool: db.Pool}
}

// keyColumn maps an attempt key to the indexed column it is counted on
func keyColumn(key models.AttemptKey) (string, error) {
	switch key.Kind {
	case models.KeyKindIP:
		return "ip_address", nil
	case models.KeyKindEmail:
		return "email", nil
	default:
		return "", fmt.Errorf("%w: unknown attempt key kind %q", models.ErrBadRequest, key.Kind)
	}
}

// Append writes one attempt record and fills in its generated id
func (r *AttemptLogRepository) Append(ctx context.Context, rec *models.AttemptRecord) error {
	query := `
		INSERT INTO attempt_logs (ip_address, email, user_agent, attempted_at, success, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		rec.IPAddress,
		rec.Email,
		rec.UserAgent,
		rec.AttemptedAt,
		rec.Success,
		rec.Reason,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", database.MapPostgresError(err))
	}

	return nil
}

// CountFailedSince counts failed attempts for the key with attempted_at >= since.
// Served by the (ip_address, attempted_at) and (email, attempted_at) indexes.
func (r *AttemptLogRepository) CountFailedSince(ctx context.Context, key models.AttemptKey, since time.Time) (int64, error) {
	column, err := keyColumn(key)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM attempt_logs
		WHERE %s = $1 AND attempted_at >= $2 AND success = false
	`, column)

	var count int64
	if err := r.pool.QueryRow(ctx, query, key.Value, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count failed attempts: %w", database.MapPostgresError(err))
	}

	return count, nil
}

// LastSuccessAt returns the time of the most recent successful attempt for the key,
// or nil when there is none
func (r *AttemptLogRepository) LastSuccessAt(ctx context.Context, key models.AttemptKey) (*time.Time, error) {
	column, err := keyColumn(key)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT attempted_at FROM attempt_logs
		WHERE %s = $1 AND success = true
		ORDER BY attempted_at DESC
		LIMIT 1
	`, column)

	var at time.Time
	err = r.pool.QueryRow(ctx, query, key.Value).Scan(&at)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last success: %w", database.MapPostgresError(err))
	}

	return &at, nil
}

// DeleteOlderThan removes rows strictly older than cutoff and returns the number deleted
func (r *AttemptLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM attempt_logs WHERE attempted_at < $1`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge attempts: %w", database.MapPostgresError(err))
	}

	return tag.RowsAffected(), nil
}

// SummarizeSince aggregates every attempt with attempted_at >= since
func (r *AttemptLogRepository) SummarizeSince(ctx context.Context, since time.Time) (*models.AttemptSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success = false),
			COUNT(*) FILTER (WHERE success = true),
			COUNT(DISTINCT ip_address)
		FROM attempt_logs
		WHERE attempted_at >= $1
	`

	var summary models.AttemptSummary
	err := r.pool.QueryRow(ctx, query, since).Scan(
		&summary.TotalAttempts,
		&summary.FailedAttempts,
		&summary.SuccessfulAttempts,
		&summary.UniqueIPs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize attempts: %w", database.MapPostgresError(err))
	}

	return &summary, nil
}

// DistinctIPsSince lists every IP that made an attempt with attempted_at >= since
func (r *AttemptLogRepository) DistinctIPsSince(ctx context.Context, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT ip_address FROM attempt_logs
		WHERE attempted_at >= $1
		ORDER BY ip_address
	`

	rows, err := r.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct ips: %w", database.MapPostgresError(err))
	}

	ips, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ips, nil
}

// TopFailingIPs ranks IPs by failed attempts with attempted_at >= since
func (r *AttemptLogRepository) TopFailingIPs(ctx context.Context, since time.Time, limit int) ([]models.IPFailureCount, error) {
	query := `
		SELECT ip_address, COUNT(*) AS failed
		FROM attempt_logs
		WHERE attempted_at >= $1 AND success = false
		GROUP BY ip_address
		ORDER BY failed DESC, ip_address
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top failing ips: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	result := make([]models.IPFailureCount, 0, limit)
	for rows.Next() {
		var item models.IPFailureCount
		if err := rows.Scan(&item.IPAddress, &item.FailedAttempts); err != nil {
			return nil, fmt.Errorf("failed to scan ip ranking: %w", err)
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}
