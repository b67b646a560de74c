// Package postgres implements courseware.Repository over PostgreSQL using
// pgx. See schema.sql for the expected tables. Atomicity requirements of
// the engine map onto database features: version allocation rides the
// unique (course_id, version_number) constraint, the enrollment-gated
// authoring primitives lock the course row, and the pointer commit is a
// compare-and-swap UPDATE inside a transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillstream/courseware/pkg/courseware"
)

// Repository implements courseware.Repository using PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewWithPool creates a new PostgreSQL repository with a connection pool
func NewWithPool(pool *pgxpool.Pool) courseware.Repository {
	return &Repository{pool: pool}
}

// mapError translates pgx errors into the package sentinels where a
// constraint carries domain meaning.
func mapError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "course_versions") {
				return courseware.ErrVersionExists
			}
			if strings.Contains(pgErr.ConstraintName, "entitlements") {
				return courseware.ErrEntitlementExists
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return courseware.ErrCourseNotFound
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Course operations

func (r *Repository) CreateCourse(ctx context.Context, course *courseware.Course) error {
	query := `
		INSERT INTO courses (
			id, title, description, category, price_cents, current_version,
			content_cache, enrollment_count, status, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		course.ID, course.Title, course.Description, course.Category,
		course.PriceCents, course.CurrentVersion, course.ContentCache,
		course.EnrollmentCount, course.Status, course.CreatedBy,
		course.CreatedAt, course.UpdatedAt)
	if err != nil {
		return mapError("create course", err)
	}
	return nil
}

func (r *Repository) GetCourse(ctx context.Context, id uuid.UUID) (*courseware.Course, error) {
	query := `
		SELECT id, title, description, category, price_cents, current_version,
		       content_cache, enrollment_count, status, created_by, created_at, updated_at
		FROM courses WHERE id = $1`

	var course courseware.Course
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&course.ID, &course.Title, &course.Description, &course.Category,
		&course.PriceCents, &course.CurrentVersion, &course.ContentCache,
		&course.EnrollmentCount, &course.Status, &course.CreatedBy,
		&course.CreatedAt, &course.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, courseware.ErrCourseNotFound
		}
		return nil, mapError("get course", err)
	}
	return &course, nil
}

func (r *Repository) UpdateCourseStatus(ctx context.Context, id uuid.UUID, status courseware.CourseStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE courses SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC())
	if err != nil {
		return mapError("update course status", err)
	}
	if tag.RowsAffected() == 0 {
		return courseware.ErrCourseNotFound
	}
	return nil
}

func (r *Repository) UpdateCourseContentCache(ctx context.Context, courseID uuid.UUID, versionNumber int, contentIDs []uuid.UUID) error {
	// Guarded by current_version so a stale refresh after a concurrent
	// pointer move is a no-op.
	_, err := r.pool.Exec(ctx, `
		UPDATE courses SET content_cache = $3, updated_at = $4
		WHERE id = $1 AND current_version = $2`,
		courseID, versionNumber, contentIDs, time.Now().UTC())
	if err != nil {
		return mapError("update course content cache", err)
	}
	return nil
}

// Version operations

func (r *Repository) CreateVersion(ctx context.Context, version *courseware.CourseVersion) error {
	query := `
		INSERT INTO course_versions (
			id, course_id, version_number, title, price_cents, category,
			content_ids, content_count, total_duration_sec, status,
			change_log, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		version.ID, version.CourseID, version.VersionNumber, version.Title,
		version.PriceCents, version.Category, version.ContentIDs,
		version.Stats.ContentCount, version.Stats.TotalDurationSec,
		version.Status, version.ChangeLog, version.CreatedBy,
		version.CreatedAt, version.UpdatedAt)
	if err != nil {
		return mapError("create version", err)
	}
	return nil
}

func (r *Repository) GetVersion(ctx context.Context, courseID uuid.UUID, versionNumber int) (*courseware.CourseVersion, error) {
	query := `
		SELECT id, course_id, version_number, title, price_cents, category,
		       content_ids, content_count, total_duration_sec, status,
		       change_log, created_by, created_at, updated_at
		FROM course_versions WHERE course_id = $1 AND version_number = $2`

	version, err := scanVersion(r.pool.QueryRow(ctx, query, courseID, versionNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, courseware.ErrVersionNotFound
		}
		return nil, mapError("get version", err)
	}
	return version, nil
}

func (r *Repository) ListVersions(ctx context.Context, courseID uuid.UUID) ([]*courseware.CourseVersion, error) {
	query := `
		SELECT id, course_id, version_number, title, price_cents, category,
		       content_ids, content_count, total_duration_sec, status,
		       change_log, created_by, created_at, updated_at
		FROM course_versions WHERE course_id = $1
		ORDER BY version_number ASC`

	rows, err := r.pool.Query(ctx, query, courseID)
	if err != nil {
		return nil, mapError("list versions", err)
	}
	defer rows.Close()

	var versions []*courseware.CourseVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, mapError("list versions", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (r *Repository) MaxVersionNumber(ctx context.Context, courseID uuid.UUID) (int, error) {
	var max int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM course_versions WHERE course_id = $1`,
		courseID).Scan(&max)
	if err != nil {
		return 0, mapError("max version number", err)
	}
	return max, nil
}

func (r *Repository) UpdateVersionContentList(ctx context.Context, versionID uuid.UUID, contentIDs []uuid.UUID, stats courseware.VersionStats) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE course_versions
		SET content_ids = $2, content_count = $3, total_duration_sec = $4, updated_at = $5
		WHERE id = $1`,
		versionID, contentIDs, stats.ContentCount, stats.TotalDurationSec, time.Now().UTC())
	if err != nil {
		return mapError("update version content list", err)
	}
	if tag.RowsAffected() == 0 {
		return courseware.ErrVersionNotFound
	}
	return nil
}

func (r *Repository) MarkVersionAbandoned(ctx context.Context, versionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE course_versions SET status = $2, updated_at = $3 WHERE id = $1`,
		versionID, courseware.VersionStatusAbandoned, time.Now().UTC())
	if err != nil {
		return mapError("mark version abandoned", err)
	}
	if tag.RowsAffected() == 0 {
		return courseware.ErrVersionNotFound
	}
	return nil
}

func (r *Repository) CommitVersion(ctx context.Context, courseID, versionID uuid.UUID, fromVersion, toVersion int, contentCache []uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()

		tag, err := tx.Exec(ctx, `
			UPDATE courses SET current_version = $3, content_cache = $4, updated_at = $5
			WHERE id = $1 AND current_version = $2`,
			courseID, fromVersion, toVersion, contentCache, now)
		if err != nil {
			return mapError("commit version", err)
		}
		if tag.RowsAffected() == 0 {
			return courseware.ErrNotCurrentVersion
		}

		tag, err = tx.Exec(ctx, `
			UPDATE course_versions SET status = $2, updated_at = $3 WHERE id = $1`,
			versionID, courseware.VersionStatusCommitted, now)
		if err != nil {
			return mapError("commit version", err)
		}
		if tag.RowsAffected() == 0 {
			return courseware.ErrVersionNotFound
		}
		return nil
	})
}

// Content item operations

func (r *Repository) CreateContentItem(ctx context.Context, item *courseware.ContentItem) error {
	_, err := r.pool.Exec(ctx, insertContentItemSQL, contentItemArgs(item)...)
	if err != nil {
		return mapError("create content item", err)
	}
	return nil
}

func (r *Repository) GetContentItem(ctx context.Context, id uuid.UUID) (*courseware.ContentItem, error) {
	query := selectContentItemSQL + ` WHERE id = $1`

	item, err := scanContentItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, courseware.ErrContentNotFound
		}
		return nil, mapError("get content item", err)
	}
	return item, nil
}

func (r *Repository) UpdateContentItemMeta(ctx context.Context, id uuid.UUID, title string, position int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_items SET title = $2, position = $3, updated_at = $4 WHERE id = $1`,
		id, title, position, time.Now().UTC())
	if err != nil {
		return mapError("update content item metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return courseware.ErrContentNotFound
	}
	return nil
}

func (r *Repository) ListActiveContent(ctx context.Context, courseID uuid.UUID, versionNumber int) ([]*courseware.ContentItem, error) {
	query := selectContentItemSQL + `
		WHERE course_id = $1 AND version_number = $2 AND status = 'active'
		ORDER BY position ASC, created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, courseID, versionNumber)
	if err != nil {
		return nil, mapError("list active content", err)
	}
	defer rows.Close()

	var items []*courseware.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, mapError("list active content", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *Repository) CountBlobRefs(ctx context.Context, backend, key string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM content_items
		WHERE storage_backend = $1 AND blob_key = $2 AND status = 'active'`,
		backend, key).Scan(&count)
	if err != nil {
		return 0, mapError("count blob refs", err)
	}
	return count, nil
}

// Authoring-window primitives

func (r *Repository) CreateContentItemIfUnenrolled(ctx context.Context, item *courseware.ContentItem) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		enrollments, err := lockCourseEnrollment(ctx, tx, item.CourseID)
		if err != nil {
			return err
		}
		if enrollments > 0 {
			return courseware.ErrForkRequired
		}
		if _, err := tx.Exec(ctx, insertContentItemSQL, contentItemArgs(item)...); err != nil {
			return mapError("create content item", err)
		}
		return nil
	})
}

func (r *Repository) SoftDeleteContentItemIfUnenrolled(ctx context.Context, id uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var courseID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT course_id FROM content_items WHERE id = $1`, id).Scan(&courseID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return courseware.ErrContentNotFound
			}
			return mapError("soft delete content item", err)
		}

		enrollments, err := lockCourseEnrollment(ctx, tx, courseID)
		if err != nil {
			return err
		}
		if enrollments > 0 {
			return courseware.ErrForkRequired
		}

		now := time.Now().UTC()
		_, err = tx.Exec(ctx, `
			UPDATE content_items SET status = $2, deleted_at = $3, updated_at = $3
			WHERE id = $1`,
			id, courseware.ContentStatusDeleted, now)
		if err != nil {
			return mapError("soft delete content item", err)
		}
		return nil
	})
}

// Entitlement operations

func (r *Repository) CreateEntitlement(ctx context.Context, ent *courseware.Entitlement) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO entitlements (learner_id, course_id, version_number, purchased_at)
			VALUES ($1, $2, $3, $4)`,
			ent.LearnerID, ent.CourseID, ent.VersionNumber, ent.PurchasedAt)
		if err != nil {
			return mapError("create entitlement", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE courses SET enrollment_count = enrollment_count + 1, updated_at = $2
			WHERE id = $1`,
			ent.CourseID, time.Now().UTC())
		if err != nil {
			return mapError("create entitlement", err)
		}
		if tag.RowsAffected() == 0 {
			return courseware.ErrCourseNotFound
		}
		return nil
	})
}

func (r *Repository) GetEntitlement(ctx context.Context, learnerID, courseID uuid.UUID) (*courseware.Entitlement, error) {
	var ent courseware.Entitlement
	err := r.pool.QueryRow(ctx, `
		SELECT learner_id, course_id, version_number, purchased_at
		FROM entitlements WHERE learner_id = $1 AND course_id = $2`,
		learnerID, courseID).Scan(
		&ent.LearnerID, &ent.CourseID, &ent.VersionNumber, &ent.PurchasedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, courseware.ErrNoEntitlement
		}
		return nil, mapError("get entitlement", err)
	}
	return &ent, nil
}

func (r *Repository) HasAnyEnrollment(ctx context.Context, courseID uuid.UUID) (bool, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT enrollment_count FROM courses WHERE id = $1`, courseID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, courseware.ErrCourseNotFound
		}
		return false, mapError("has any enrollment", err)
	}
	return count > 0, nil
}

// Helpers

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockCourseEnrollment takes a row lock on the course so the enrollment
// check and the dependent write commit atomically against a concurrent
// purchase.
func lockCourseEnrollment(ctx context.Context, tx pgx.Tx, courseID uuid.UUID) (int, error) {
	var enrollments int
	err := tx.QueryRow(ctx,
		`SELECT enrollment_count FROM courses WHERE id = $1 FOR UPDATE`,
		courseID).Scan(&enrollments)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, courseware.ErrCourseNotFound
		}
		return 0, mapError("lock course", err)
	}
	return enrollments, nil
}

const selectContentItemSQL = `
	SELECT id, course_id, version_number, kind, title, position,
	       storage_backend, blob_key, mime_type, size_bytes, duration_sec,
	       free_preview, status, copied_from, created_by,
	       created_at, updated_at, deleted_at
	FROM content_items`

const insertContentItemSQL = `
	INSERT INTO content_items (
		id, course_id, version_number, kind, title, position,
		storage_backend, blob_key, mime_type, size_bytes, duration_sec,
		free_preview, status, copied_from, created_by,
		created_at, updated_at, deleted_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

func contentItemArgs(item *courseware.ContentItem) []interface{} {
	return []interface{}{
		item.ID, item.CourseID, item.VersionNumber, item.Kind, item.Title,
		item.Position, item.StorageBackend, item.BlobKey, item.MimeType,
		item.SizeBytes, item.DurationSec, item.FreePreview, item.Status,
		item.CopiedFrom, item.CreatedBy, item.CreatedAt, item.UpdatedAt,
		item.DeletedAt,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVersion(row rowScanner) (*courseware.CourseVersion, error) {
	var version courseware.CourseVersion
	err := row.Scan(
		&version.ID, &version.CourseID, &version.VersionNumber, &version.Title,
		&version.PriceCents, &version.Category, &version.ContentIDs,
		&version.Stats.ContentCount, &version.Stats.TotalDurationSec,
		&version.Status, &version.ChangeLog, &version.CreatedBy,
		&version.CreatedAt, &version.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &version, nil
}

func scanContentItem(row rowScanner) (*courseware.ContentItem, error) {
	var item courseware.ContentItem
	err := row.Scan(
		&item.ID, &item.CourseID, &item.VersionNumber, &item.Kind,
		&item.Title, &item.Position, &item.StorageBackend, &item.BlobKey,
		&item.MimeType, &item.SizeBytes, &item.DurationSec, &item.FreePreview,
		&item.Status, &item.CopiedFrom, &item.CreatedBy,
		&item.CreatedAt, &item.UpdatedAt, &item.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}
