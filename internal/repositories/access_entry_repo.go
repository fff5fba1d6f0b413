package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accessEntryColumns = `id, address_or_cidr, kind, status, description, created_by, expires_at, created_at, updated_at`

// AccessEntryRepository handles database operations for access list entries
type AccessEntryRepository struct {
	pool *pgxpool.Pool
}

// NewAccessEntryRepository creates a new AccessEntryRepository
func NewAccessEntryRepository(db *database.DB) *AccessEntryRepository {
	return &AccessEntryRepository{pool: db.Pool}
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccessEntryRow(scanner rowScanner) (*models.AccessEntry, error) {
	var e models.AccessEntry
	err := scanner.Scan(
		&e.ID, &e.AddressOrCIDR, &e.Kind, &e.Status,
		&e.Description, &e.CreatedBy, &e.ExpiresAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &e, nil
}

func scanAccessEntryRows(rows pgx.Rows) ([]*models.AccessEntry, error) {
	defer rows.Close()

	entries := make([]*models.AccessEntry, 0)
	for rows.Next() {
		e, err := scanAccessEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// Create inserts a new entry. The address must already be validated and normalized.
func (r *AccessEntryRepository) Create(ctx context.Context, entry *models.AccessEntry) (*models.AccessEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Status == "" {
		entry.Status = models.AccessStatusActive
	}

	query := `
		INSERT INTO access_entries (id, address_or_cidr, kind, status, description, created_by, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING ` + accessEntryColumns

	created, err := scanAccessEntryRow(r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.AddressOrCIDR,
		entry.Kind,
		entry.Status,
		entry.Description,
		entry.CreatedBy,
		entry.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create access entry: %w", err)
	}

	return created, nil
}

func (r *AccessEntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AccessEntry, error) {
	query := `SELECT ` + accessEntryColumns + ` FROM access_entries WHERE id = $1`

	return scanAccessEntryRow(r.pool.QueryRow(ctx, query, id))
}

// List returns entries matching the filter, newest first
func (r *AccessEntryRepository) List(ctx context.Context, filter models.AccessEntryFilter) ([]*models.AccessEntry, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + accessEntryColumns + ` FROM access_entries`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query access entries: %w", database.MapPostgresError(err))
	}

	return scanAccessEntryRows(rows)
}

// ListActive returns entries with status active that have not expired at now
func (r *AccessEntryRepository) ListActive(ctx context.Context, now time.Time) ([]*models.AccessEntry, error) {
	query := `
		SELECT ` + accessEntryColumns + `
		FROM access_entries
		WHERE status = 'active' AND (expires_at IS NULL OR expires_at > $1)
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active access entries: %w", database.MapPostgresError(err))
	}

	return scanAccessEntryRows(rows)
}

// Update persists the mutable fields of an entry: status, description and expiry
func (r *AccessEntryRepository) Update(ctx context.Context, entry *models.AccessEntry) (*models.AccessEntry, error) {
	query := `
		UPDATE access_entries
		SET status = $2, description = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accessEntryColumns

	updated, err := scanAccessEntryRow(r.pool.QueryRow(ctx, query,
		entry.ID,
		entry.Status,
		entry.Description,
		entry.ExpiresAt,
	))
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *AccessEntryRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete access entry: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteByAddress removes every entry stored with the given normalized address
func (r *AccessEntryRepository) DeleteByAddress(ctx context.Context, address string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_entries WHERE address_or_cidr = $1`, address)
	if err != nil {
		return 0, fmt.Errorf("failed to delete access entries: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}

// CountByKindAndStatus buckets entries by kind and effective status. Active
// entries whose expiry has passed at now are counted as expired.
func (r *AccessEntryRepository) CountByKindAndStatus(ctx context.Context, now time.Time) ([]models.AccessEntryCount, error) {
	query := `
		SELECT kind,
			CASE WHEN status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
				THEN 'expired' ELSE status END AS effective_status,
			COUNT(*)
		FROM access_entries
		GROUP BY kind, effective_status
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count access entries: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	counts := make([]models.AccessEntryCount, 0)
	for rows.Next() {
		var c models.AccessEntryCount
		if err := rows.Scan(&c.Kind, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan access entry count: %w", err)
		}
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}
