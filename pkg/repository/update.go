package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// UpdateRepository handles normalized-update database operations
type UpdateRepository struct {
	db *sqlx.DB
}

// NewUpdateRepository creates the updates repository
func NewUpdateRepository(db *sqlx.DB) *UpdateRepository {
	return &UpdateRepository{db: db}
}

// updateSQL represents a normalized update for SQL operations
type updateSQL struct {
	ID          string      `db:"id"`
	SourceID    string      `db:"source_id"`
	SourceName  string      `db:"source_name"`
	Region      string      `db:"region"`
	Authority   string      `db:"authority"`
	UpdateType  string      `db:"update_type"`
	Title       string      `db:"title"`
	Content     string      `db:"content"`
	Priority    string      `db:"priority"`
	Published   time.Time   `db:"published"`
	Fingerprint string      `db:"fingerprint"`
	Metadata    metadataSQL `db:"metadata"`
	CreatedAt   time.Time   `db:"created_at"`
}

// metadataSQL is a JSON object of string pairs for SQL operations
type metadataSQL map[string]string

// Value implements driver.Valuer for database storage
func (m metadataSQL) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *metadataSQL) Scan(value interface{}) error {
	if value == nil {
		*m = metadataSQL{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}

	if len(data) == 0 {
		*m = metadataSQL{}
		return nil
	}
	return json.Unmarshal(data, m)
}

func toSQL(u *domain.NormalizedUpdate) *updateSQL {
	return &updateSQL{
		ID:          u.ID,
		SourceID:    u.SourceID,
		SourceName:  u.SourceName,
		Region:      u.Region,
		Authority:   u.Authority,
		UpdateType:  u.UpdateType,
		Title:       u.Title,
		Content:     u.Content,
		Priority:    string(u.Priority),
		Published:   u.Published,
		Fingerprint: u.Fingerprint,
		Metadata:    u.Metadata,
	}
}

func (s *updateSQL) toDomain() domain.NormalizedUpdate {
	return domain.NormalizedUpdate{
		ID:          s.ID,
		SourceID:    s.SourceID,
		SourceName:  s.SourceName,
		Region:      s.Region,
		Authority:   s.Authority,
		UpdateType:  s.UpdateType,
		Title:       s.Title,
		Content:     s.Content,
		Priority:    domain.Priority(s.Priority),
		Published:   s.Published,
		Fingerprint: s.Fingerprint,
		Metadata:    s.Metadata,
		CreatedAt:   s.CreatedAt,
	}
}

// CreateUpdate persists a normalized update. The write is idempotent: the
// unique (source_id, fingerprint) index plus ON CONFLICT DO NOTHING makes
// concurrent duplicate writes safe without a prior read. Returns false when
// the record already existed.
func (r *UpdateRepository) CreateUpdate(ctx context.Context, update *domain.NormalizedUpdate) (created bool, err error) {
	query := `
		INSERT INTO updates (id, source_id, source_name, region, authority, update_type,
		                     title, content, priority, published, fingerprint, metadata)
		VALUES (:id, :source_id, :source_name, :region, :authority, :update_type,
		        :title, :content, :priority, :published, :fingerprint, :metadata)
		ON CONFLICT(source_id, fingerprint) DO NOTHING
	`

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	err = retrier.Do(ctx, func() error {
		result, execErr := r.db.NamedExecContext(ctx, query, toSQL(update))
		if execErr != nil {
			if isLockError(execErr) {
				return execErr // retry
			}
			return &criticalError{err: fmt.Errorf("insert update: %w", execErr)}
		}

		rows, raErr := result.RowsAffected()
		if raErr != nil {
			return &criticalError{err: fmt.Errorf("get rows affected: %w", raErr)}
		}
		created = rows > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// FingerprintExists checks the fingerprint index for a source
func (r *UpdateRepository) FingerprintExists(ctx context.Context, sourceID, fingerprint string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM updates WHERE source_id = ? AND fingerprint = ?)",
		sourceID, fingerprint)
	if err != nil {
		return false, fmt.Errorf("check fingerprint exists: %w", err)
	}
	return exists, nil
}

// ListUpdates retrieves updates with pagination, newest first
func (r *UpdateRepository) ListUpdates(ctx context.Context, limit, offset int) ([]domain.NormalizedUpdate, error) {
	query := `
		SELECT * FROM updates
		ORDER BY published DESC, created_at DESC
		LIMIT ? OFFSET ?
	`
	var rows []updateSQL
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}

	updates := make([]domain.NormalizedUpdate, len(rows))
	for i := range rows {
		updates[i] = rows[i].toDomain()
	}
	return updates, nil
}

// ListRecentUpdates returns the most recently created updates, used by the
// fallback containment dedup
func (r *UpdateRepository) ListRecentUpdates(ctx context.Context, limit int) ([]domain.NormalizedUpdate, error) {
	query := `
		SELECT * FROM updates
		ORDER BY created_at DESC
		LIMIT ?
	`
	var rows []updateSQL
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list recent updates: %w", err)
	}

	updates := make([]domain.NormalizedUpdate, len(rows))
	for i := range rows {
		updates[i] = rows[i].toDomain()
	}
	return updates, nil
}

// CountUpdates returns the total number of persisted updates
func (r *UpdateRepository) CountUpdates(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM updates"); err != nil {
		return 0, fmt.Errorf("count updates: %w", err)
	}
	return count, nil
}
