package pg

import (
	"context"

	"cms-service/internal/application"
	"cms-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type ProfileRepo struct{ db *DB }

func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileColumns = `id::text, username, email, password_hash, created_at`

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.PasswordHash, &p.CreatedAt)
	return p, err
}

func (r *ProfileRepo) Create(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	const q = `
        INSERT INTO profiles(id, username, email, password_hash)
        VALUES ($1, $2, $3, $4)
        RETURNING ` + profileColumns
	log := sqlLog("profile", "Create", q, zap.String("username", p.Username))
	log.Info("sql.exec_start")
	out, err := scanProfile(r.db.q(ctx).QueryRow(ctx, q, uuid.NewString(), p.Username, p.Email, p.PasswordHash))
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return domain.Profile{}, mapErr(err)
	}
	log.Info("sql.exec_success", zap.String("id", out.ID))
	return out, nil
}

func (r *ProfileRepo) GetByUsername(ctx context.Context, username string) (domain.Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE username=$1`
	p, err := scanProfile(r.db.q(ctx).QueryRow(ctx, q, username))
	return p, mapErr(err)
}

func (r *ProfileRepo) List(ctx context.Context) ([]domain.Profile, error) {
	return r.query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY username`)
}

func (r *ProfileRepo) Search(ctx context.Context, query string) ([]domain.Profile, error) {
	return r.query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username ILIKE '%' || $1 || '%' ORDER BY username`, query)
}

// Update sets the non-nil fields.
func (r *ProfileRepo) Update(ctx context.Context, username string, email, passwordHash *string) (domain.Profile, error) {
	const q = `
        UPDATE profiles
        SET email=COALESCE($2, email), password_hash=COALESCE($3, password_hash)
        WHERE username=$1
        RETURNING ` + profileColumns
	p, err := scanProfile(r.db.q(ctx).QueryRow(ctx, q, username, email, passwordHash))
	return p, mapErr(err)
}

func (r *ProfileRepo) Delete(ctx context.Context, username string) error {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM profiles WHERE username=$1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}

func (r *ProfileRepo) query(ctx context.Context, q string, args ...any) ([]domain.Profile, error) {
	rows, err := r.db.q(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
