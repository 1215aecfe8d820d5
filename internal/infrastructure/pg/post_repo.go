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

type PostRepo struct{ db *DB }

func NewPostRepo(db *DB) *PostRepo { return &PostRepo{db: db} }

const postColumns = `
        id::text, title, description, author_username, main_image_id::text,
        slug, meta_title, meta_description, keywords, canonical_url,
        created_at, updated_at`

func scanPost(row pgx.Row) (domain.Post, error) {
	var p domain.Post
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.AuthorUsername, &p.MainImageID,
		&p.SEO.Slug, &p.SEO.MetaTitle, &p.SEO.MetaDescription, &p.SEO.Keywords, &p.SEO.CanonicalURL,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PostRepo) List(ctx context.Context) ([]domain.PostWithContent, error) {
	q := `SELECT` + postColumns + ` FROM posts ORDER BY created_at DESC`
	posts, err := r.query(ctx, q)
	if err != nil {
		return nil, err
	}
	return r.withContent(ctx, posts)
}

// Search matches titles case-insensitively.
func (r *PostRepo) Search(ctx context.Context, query string) ([]domain.Post, error) {
	q := `SELECT` + postColumns + ` FROM posts WHERE title ILIKE '%' || $1 || '%' ORDER BY created_at DESC`
	return r.query(ctx, q, query)
}

func (r *PostRepo) Get(ctx context.Context, id string) (domain.PostWithContent, error) {
	q := `SELECT` + postColumns + ` FROM posts WHERE id=$1`
	p, err := scanPost(r.db.q(ctx).QueryRow(ctx, q, id))
	if err != nil {
		return domain.PostWithContent{}, mapErr(err)
	}
	out, err := r.withContent(ctx, []domain.Post{p})
	if err != nil {
		return domain.PostWithContent{}, err
	}
	return out[0], nil
}

func (r *PostRepo) Create(ctx context.Context, np domain.NewPost) (domain.Post, error) {
	id := uuid.NewString()
	q := `
        INSERT INTO posts(id, title, description, author_username, main_image_id,
                          slug, meta_title, meta_description, keywords, canonical_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING` + postColumns
	log := sqlLog("post", "Create", q, zap.String("id", id), zap.String("author", np.AuthorUsername))
	log.Info("sql.exec_start")
	p, err := scanPost(r.db.q(ctx).QueryRow(ctx, q, id, np.Title, np.Description, np.AuthorUsername,
		emptyToNil(np.MainImageID), np.SEO.Slug, np.SEO.MetaTitle, np.SEO.MetaDescription,
		keywords(np.SEO.Keywords), np.SEO.CanonicalURL))
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return domain.Post{}, mapErr(err)
	}
	log.Info("sql.exec_success")
	return p, nil
}

func (r *PostRepo) Update(ctx context.Context, id string, np domain.NewPost) (domain.Post, error) {
	q := `
        UPDATE posts
        SET title=$2, description=$3, main_image_id=$4, slug=$5, meta_title=$6,
            meta_description=$7, keywords=$8, canonical_url=$9, updated_at=$10
        WHERE id=$1
        RETURNING` + postColumns
	p, err := scanPost(r.db.q(ctx).QueryRow(ctx, q, id, np.Title, np.Description, emptyToNil(np.MainImageID),
		np.SEO.Slug, np.SEO.MetaTitle, np.SEO.MetaDescription, keywords(np.SEO.Keywords),
		np.SEO.CanonicalURL, time.Now().UTC()))
	if err != nil {
		sqlLog("post", "Update", q, zap.String("id", id)).Error("sql.exec_failed", zap.Error(err))
		return domain.Post{}, mapErr(err)
	}
	return p, nil
}

func (r *PostRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM posts WHERE id=$1`
	tag, err := r.db.q(ctx).Exec(ctx, q, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}

func (r *PostRepo) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	const q = `DELETE FROM posts WHERE id::text = ANY($1::text[])`
	log := sqlLog("post", "DeleteMany", q, zap.Int("ids", len(ids)))
	log.Info("sql.exec_start")
	tag, err := r.db.q(ctx).Exec(ctx, q, ids)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return 0, err
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

func (r *PostRepo) query(ctx context.Context, q string, args ...any) ([]domain.Post, error) {
	rows, err := r.db.q(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// withContent resolves linked images and documents for posts in two queries.
func (r *PostRepo) withContent(ctx context.Context, posts []domain.Post) ([]domain.PostWithContent, error) {
	out := make([]domain.PostWithContent, len(posts))
	idx := make(map[string]int, len(posts))
	ids := make([]string, len(posts))
	for i, p := range posts {
		out[i] = domain.PostWithContent{Post: p, Images: []domain.Image{}, Documents: []domain.Document{}}
		idx[p.ID] = i
		ids[i] = p.ID
	}
	if len(posts) == 0 {
		return out, nil
	}

	const imgQ = `
        SELECT pg.post_id::text, g.id::text, g.title, g.alt, g.url, g.path, g.url_expires_at
        FROM posts_gallery pg
        JOIN gallery g ON g.id = pg.image_id
        WHERE pg.post_id::text = ANY($1::text[])
        ORDER BY g.created_at`
	rows, err := r.db.q(ctx).Query(ctx, imgQ, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var postID string
		var img domain.Image
		if err := rows.Scan(&postID, &img.ID, &img.Title, &img.Alt, &img.URL, &img.Path, &img.URLExpiresAt); err != nil {
			rows.Close()
			return nil, err
		}
		img.PostIDs = []string{postID}
		i := idx[postID]
		out[i].Images = append(out[i].Images, img)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const docQ = `
        SELECT pd.post_id::text, d.id::text, d.title, d.url, d.path, d.preview_image, d.url_expires_at
        FROM posts_documents pd
        JOIN documents d ON d.id = pd.document_id
        WHERE pd.post_id::text = ANY($1::text[])
        ORDER BY d.created_at`
	rows, err = r.db.q(ctx).Query(ctx, docQ, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var postID string
		var d domain.Document
		if err := rows.Scan(&postID, &d.ID, &d.Title, &d.URL, &d.Path, &d.PreviewImage, &d.URLExpiresAt); err != nil {
			return nil, err
		}
		d.PostIDs = []string{postID}
		i := idx[postID]
		out[i].Documents = append(out[i].Documents, d)
	}
	return out, rows.Err()
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func keywords(k []string) []string {
	if k == nil {
		return []string{}
	}
	return k
}
