package pg

import (
	"context"

	"cms-service/internal/application"

	"go.uber.org/zap"
)

// LinkRepo maintains the posts_gallery and posts_documents junctions.
type LinkRepo struct{ db *DB }

func NewLinkRepo(db *DB) *LinkRepo { return &LinkRepo{db: db} }

func (r *LinkRepo) LinkImage(ctx context.Context, postID, imageID string) error {
	return r.link(ctx, "LinkImage",
		`INSERT INTO posts_gallery(post_id, image_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, postID, imageID)
}

func (r *LinkRepo) UnlinkImage(ctx context.Context, postID, imageID string) error {
	return r.unlink(ctx, `DELETE FROM posts_gallery WHERE post_id=$1 AND image_id=$2`, postID, imageID)
}

func (r *LinkRepo) LinkDocument(ctx context.Context, postID, documentID string) error {
	return r.link(ctx, "LinkDocument",
		`INSERT INTO posts_documents(post_id, document_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, postID, documentID)
}

func (r *LinkRepo) UnlinkDocument(ctx context.Context, postID, documentID string) error {
	return r.unlink(ctx, `DELETE FROM posts_documents WHERE post_id=$1 AND document_id=$2`, postID, documentID)
}

func (r *LinkRepo) ClearLinks(ctx context.Context, postID string) error {
	q := r.db.q(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM posts_gallery WHERE post_id=$1`, postID); err != nil {
		return mapErr(err)
	}
	_, err := q.Exec(ctx, `DELETE FROM posts_documents WHERE post_id=$1`, postID)
	return mapErr(err)
}

func (r *LinkRepo) link(ctx context.Context, op, sql, postID, targetID string) error {
	if _, err := r.db.q(ctx).Exec(ctx, sql, postID, targetID); err != nil {
		sqlLog("link", op, sql, zap.String("post_id", postID), zap.String("target_id", targetID)).
			Warn("sql.exec_failed", zap.Error(err))
		return mapErr(err)
	}
	return nil
}

func (r *LinkRepo) unlink(ctx context.Context, sql, postID, targetID string) error {
	tag, err := r.db.q(ctx).Exec(ctx, sql, postID, targetID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}
