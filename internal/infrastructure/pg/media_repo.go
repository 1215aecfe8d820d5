package pg

import (
	"context"
	"time"

	"cms-service/internal/application"
	"cms-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ImageRepo struct{ db *DB }

func NewImageRepo(db *DB) *ImageRepo { return &ImageRepo{db: db} }

const imageSelect = `
        SELECT g.id::text, g.title, g.alt, g.url, g.path, g.url_expires_at,
               COALESCE(array_agg(pg.post_id::text) FILTER (WHERE pg.post_id IS NOT NULL), '{}')
        FROM gallery g
        LEFT JOIN posts_gallery pg ON pg.image_id = g.id`

func scanImage(row pgx.Row) (domain.Image, error) {
	var img domain.Image
	err := row.Scan(&img.ID, &img.Title, &img.Alt, &img.URL, &img.Path, &img.URLExpiresAt, &img.PostIDs)
	return img, err
}

func (r *ImageRepo) List(ctx context.Context) ([]domain.Image, error) {
	rows, err := r.db.q(ctx).Query(ctx, imageSelect+` GROUP BY g.id ORDER BY g.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (r *ImageRepo) Get(ctx context.Context, id string) (domain.Image, error) {
	img, err := scanImage(r.db.q(ctx).QueryRow(ctx, imageSelect+` WHERE g.id=$1 GROUP BY g.id`, id))
	return img, mapErr(err)
}

func (r *ImageRepo) Create(ctx context.Context, img domain.Image) (domain.Image, error) {
	img.ID = uuid.NewString()
	const q = `
        INSERT INTO gallery(id, title, alt, url, path, url_expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	log := sqlLog("image", "Create", q, zap.String("id", img.ID), zap.String("path", img.Path))
	if _, err := r.db.q(ctx).Exec(ctx, q, img.ID, img.Title, img.Alt, img.URL, img.Path, img.URLExpiresAt); err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return domain.Image{}, mapErr(err)
	}
	log.Info("sql.exec_success")
	img.PostIDs = []string{}
	return img, nil
}

func (r *ImageRepo) Update(ctx context.Context, id string, patch domain.MediaPatch) (domain.Image, error) {
	const q = `UPDATE gallery SET title=COALESCE($2, title), alt=COALESCE($3, alt) WHERE id=$1`
	tag, err := r.db.q(ctx).Exec(ctx, q, id, patch.Title, patch.Alt)
	if err != nil {
		return domain.Image{}, mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Image{}, application.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *ImageRepo) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.db, `DELETE FROM gallery WHERE id=$1`, id)
}

func (r *ImageRepo) ExpiringBefore(ctx context.Context, t time.Time, limit int) ([]domain.SignedObject, error) {
	return expiringBefore(ctx, r.db, `
        SELECT id::text, path, url_expires_at FROM gallery
        WHERE url_expires_at < $1 ORDER BY url_expires_at LIMIT $2`, t, limit)
}

func (r *ImageRepo) UpdateURL(ctx context.Context, id, url string, expiresAt time.Time) error {
	return updateURL(ctx, r.db, `UPDATE gallery SET url=$2, url_expires_at=$3 WHERE id=$1`, id, url, expiresAt)
}

type DocumentRepo struct{ db *DB }

func NewDocumentRepo(db *DB) *DocumentRepo { return &DocumentRepo{db: db} }

const documentSelect = `
        SELECT d.id::text, d.title, d.url, d.path, d.preview_image, d.url_expires_at,
               COALESCE(array_agg(pd.post_id::text) FILTER (WHERE pd.post_id IS NOT NULL), '{}')
        FROM documents d
        LEFT JOIN posts_documents pd ON pd.document_id = d.id`

func scanDocument(row pgx.Row) (domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.Title, &d.URL, &d.Path, &d.PreviewImage, &d.URLExpiresAt, &d.PostIDs)
	return d, err
}

func (r *DocumentRepo) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.q(ctx).Query(ctx, documentSelect+` GROUP BY d.id ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DocumentRepo) Get(ctx context.Context, id string) (domain.Document, error) {
	d, err := scanDocument(r.db.q(ctx).QueryRow(ctx, documentSelect+` WHERE d.id=$1 GROUP BY d.id`, id))
	return d, mapErr(err)
}

func (r *DocumentRepo) Create(ctx context.Context, d domain.Document) (domain.Document, error) {
	d.ID = uuid.NewString()
	const q = `
        INSERT INTO documents(id, title, url, path, preview_image, url_expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	log := sqlLog("document", "Create", q, zap.String("id", d.ID), zap.String("path", d.Path))
	if _, err := r.db.q(ctx).Exec(ctx, q, d.ID, d.Title, d.URL, d.Path, d.PreviewImage, d.URLExpiresAt); err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return domain.Document{}, mapErr(err)
	}
	log.Info("sql.exec_success")
	d.PostIDs = []string{}
	return d, nil
}

// Update changes the title; documents carry no alt text so patch.Alt is ignored.
func (r *DocumentRepo) Update(ctx context.Context, id string, patch domain.MediaPatch) (domain.Document, error) {
	const q = `UPDATE documents SET title=COALESCE($2, title) WHERE id=$1`
	tag, err := r.db.q(ctx).Exec(ctx, q, id, patch.Title)
	if err != nil {
		return domain.Document{}, mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Document{}, application.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	return deleteRow(ctx, r.db, `DELETE FROM documents WHERE id=$1`, id)
}

func (r *DocumentRepo) ExpiringBefore(ctx context.Context, t time.Time, limit int) ([]domain.SignedObject, error) {
	return expiringBefore(ctx, r.db, `
        SELECT id::text, path, url_expires_at FROM documents
        WHERE url_expires_at < $1 ORDER BY url_expires_at LIMIT $2`, t, limit)
}

func (r *DocumentRepo) UpdateURL(ctx context.Context, id, url string, expiresAt time.Time) error {
	return updateURL(ctx, r.db, `UPDATE documents SET url=$2, url_expires_at=$3 WHERE id=$1`, id, url, expiresAt)
}

func deleteRow(ctx context.Context, db *DB, q, id string) error {
	tag, err := db.q(ctx).Exec(ctx, q, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}

func expiringBefore(ctx context.Context, db *DB, q string, t time.Time, limit int) ([]domain.SignedObject, error) {
	rows, err := db.q(ctx).Query(ctx, q, t, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SignedObject
	for rows.Next() {
		var o domain.SignedObject
		if err := rows.Scan(&o.ID, &o.Path, &o.URLExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func updateURL(ctx context.Context, db *DB, q, id, url string, expiresAt time.Time) error {
	tag, err := db.q(ctx).Exec(ctx, q, id, url, expiresAt)
	if err != nil {
		sqlLog("media", "UpdateURL", q, zap.String("id", id)).Error("sql.exec_failed", zap.Error(err))
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}
