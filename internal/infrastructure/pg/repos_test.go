package pg_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cms-service/internal/application"
	"cms-service/internal/domain"
	"cms-service/internal/infrastructure/pg"

	"github.com/stretchr/testify/require"
)

func TestPostRepo_CreateGetWithLinks(t *testing.T) {
	db, teardown := withPostgres(t)
	defer teardown()
	ctx := context.Background()

	images := pg.NewImageRepo(db)
	docs := pg.NewDocumentRepo(db)
	posts := pg.NewPostRepo(db)
	links := pg.NewLinkRepo(db)
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)

	main, err := images.Create(ctx, domain.Image{Title: "main", URL: "u1", Path: "1-main.png", URLExpiresAt: exp})
	require.NoError(t, err)
	other, err := images.Create(ctx, domain.Image{Title: "other", URL: "u2", Path: "2-other.png", URLExpiresAt: exp})
	require.NoError(t, err)
	doc, err := docs.Create(ctx, domain.Document{Title: "spec", URL: "u3", Path: "3-spec.pdf", URLExpiresAt: exp})
	require.NoError(t, err)

	uow := pg.NewUnitOfWork(db)
	var postID string
	err = uow.Do(ctx, func(ctx context.Context) error {
		p, err := posts.Create(ctx, domain.NewPost{
			Title: "Hello", AuthorUsername: "ana", MainImageID: &main.ID,
			SEO: domain.SEO{Slug: "hello", Keywords: []string{"go"}},
		})
		if err != nil {
			return err
		}
		postID = p.ID
		for _, id := range []string{main.ID, other.ID} {
			if err := links.LinkImage(ctx, p.ID, id); err != nil {
				return err
			}
		}
		return links.LinkDocument(ctx, p.ID, doc.ID)
	})
	require.NoError(t, err)

	got, err := posts.Get(ctx, postID)
	require.NoError(t, err)
	require.Equal(t, "Hello", got.Title)
	require.Equal(t, []string{"go"}, got.SEO.Keywords)
	require.Equal(t, main.ID, *got.MainImageID)
	require.Len(t, got.Images, 2)
	require.Len(t, got.Documents, 1)

	img, err := images.Get(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, []string{postID}, img.PostIDs)

	found, err := posts.Search(ctx, "hel")
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, links.UnlinkImage(ctx, postID, other.ID))
	require.ErrorIs(t, links.UnlinkImage(ctx, postID, other.ID), application.ErrNotFound)
	require.ErrorIs(t, links.LinkDocument(ctx, postID, "00000000-0000-0000-0000-000000000000"), application.ErrNotFound)

	n, err := posts.DeleteMany(ctx, []string{postID})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	_, err = posts.Get(ctx, postID)
	require.ErrorIs(t, err, application.ErrNotFound)
}

func TestUnitOfWork_RollsBack(t *testing.T) {
	db, teardown := withPostgres(t)
	defer teardown()
	ctx := context.Background()
	posts := pg.NewPostRepo(db)

	boom := errors.New("boom")
	var id string
	err := pg.NewUnitOfWork(db).Do(ctx, func(ctx context.Context) error {
		p, err := posts.Create(ctx, domain.NewPost{Title: "tmp", AuthorUsername: "ana"})
		require.NoError(t, err)
		id = p.ID
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = posts.Get(ctx, id)
	require.ErrorIs(t, err, application.ErrNotFound)
}

func TestMediaRepo_ExpiringAndUpdateURL(t *testing.T) {
	db, teardown := withPostgres(t)
	defer teardown()
	ctx := context.Background()
	images := pg.NewImageRepo(db)

	now := time.Now().UTC()
	soon, err := images.Create(ctx, domain.Image{URL: "a", Path: "a.png", URLExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = images.Create(ctx, domain.Image{URL: "b", Path: "b.png", URLExpiresAt: now.Add(72 * time.Hour)})
	require.NoError(t, err)

	due, err := images.ExpiringBefore(ctx, now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, soon.ID, due[0].ID)

	require.NoError(t, images.UpdateURL(ctx, soon.ID, "a2", now.Add(7*24*time.Hour)))
	due, err = images.ExpiringBefore(ctx, now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	alt := "new alt"
	img, err := images.Update(ctx, soon.ID, domain.MediaPatch{Alt: &alt})
	require.NoError(t, err)
	require.Equal(t, "new alt", img.Alt)
	require.Equal(t, "a2", img.URL)

	require.NoError(t, images.Delete(ctx, soon.ID))
	require.ErrorIs(t, images.Delete(ctx, soon.ID), application.ErrNotFound)
	_, err = images.Get(ctx, "not-a-uuid")
	require.ErrorIs(t, err, application.ErrNotFound)
}

func TestProfileRepo(t *testing.T) {
	db, teardown := withPostgres(t)
	defer teardown()
	ctx := context.Background()
	repo := pg.NewProfileRepo(db)

	p, err := repo.Create(ctx, domain.Profile{Username: "ana", Email: "a@x", PasswordHash: "h"})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	_, err = repo.Create(ctx, domain.Profile{Username: "ana", PasswordHash: "h"})
	require.ErrorIs(t, err, application.ErrConflict)

	email := "b@x"
	p, err = repo.Update(ctx, "ana", &email, nil)
	require.NoError(t, err)
	require.Equal(t, "b@x", p.Email)
	require.Equal(t, "h", p.PasswordHash)

	found, err := repo.Search(ctx, "AN")
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, repo.Delete(ctx, "ana"))
	_, err = repo.GetByUsername(ctx, "ana")
	require.ErrorIs(t, err, application.ErrNotFound)
}
