// Package apiclient is a typed client of the CMS HTTP API. Every call goes
// through a dispatcher, so a repeated call with the same method and path
// aborts the one still in flight.
package apiclient

import (
	"context"
	"net/url"

	"cms-service/internal/api"
	"cms-service/internal/infrastructure/dispatcher"
)

type Client struct {
	d *dispatcher.Dispatcher
}

func New(d *dispatcher.Dispatcher) *Client { return &Client{d: d} }

// Dispatcher exposes the underlying dispatcher for diagnostics.
func (c *Client) Dispatcher() *dispatcher.Dispatcher { return c.d }

func esc(s string) string { return url.PathEscape(s) }

// posts

func (c *Client) ListPosts(ctx context.Context) ([]api.PostWithContent, error) {
	return dispatcher.GetJSON[[]api.PostWithContent](ctx, c.d, "/posts")
}

// SearchPosts embeds the query in the path, so only identical searches supersede each other.
func (c *Client) SearchPosts(ctx context.Context, query string) ([]api.Post, error) {
	return dispatcher.GetJSON[[]api.Post](ctx, c.d, "/posts?search="+url.QueryEscape(query))
}

func (c *Client) GetPost(ctx context.Context, id string) (api.PostWithContent, error) {
	return dispatcher.GetJSON[api.PostWithContent](ctx, c.d, "/posts/"+esc(id))
}

// CreatePost sends idempotencyKey as X-Idempotency-Key when it is not empty.
func (c *Client) CreatePost(ctx context.Context, in api.PostInput, idempotencyKey string) (api.PostWithContent, error) {
	var opts []dispatcher.CallOption
	if idempotencyKey != "" {
		opts = append(opts, dispatcher.WithHeader("X-Idempotency-Key", idempotencyKey))
	}
	return dispatcher.PostJSON[api.PostWithContent](ctx, c.d, "/posts", in, opts...)
}

func (c *Client) UpdatePost(ctx context.Context, id string, in api.PostInput) (api.PostWithContent, error) {
	return dispatcher.PutJSON[api.PostWithContent](ctx, c.d, "/posts/"+esc(id), in)
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.d.Delete(ctx, "/posts/"+esc(id), nil, nil)
}

func (c *Client) DeletePosts(ctx context.Context, ids []string) (int64, error) {
	var out api.DeletedResponse
	err := c.d.Delete(ctx, "/posts", api.DeletePostsRequest{IDs: ids}, &out)
	return out.Deleted, err
}

// profiles

func (c *Client) ListProfiles(ctx context.Context) ([]api.Profile, error) {
	return dispatcher.GetJSON[[]api.Profile](ctx, c.d, "/profiles")
}

func (c *Client) SearchProfiles(ctx context.Context, query string) ([]api.Profile, error) {
	return dispatcher.GetJSON[[]api.Profile](ctx, c.d, "/profiles?search="+url.QueryEscape(query))
}

func (c *Client) GetProfile(ctx context.Context, username string) (api.Profile, error) {
	return dispatcher.GetJSON[api.Profile](ctx, c.d, "/profiles/"+esc(username))
}

func (c *Client) UpdateProfile(ctx context.Context, username string, in api.ProfileUpdate) (api.Profile, error) {
	return dispatcher.PutJSON[api.Profile](ctx, c.d, "/profiles/"+esc(username), in)
}

func (c *Client) DeleteProfile(ctx context.Context, username string) error {
	return c.d.Delete(ctx, "/profiles/"+esc(username), nil, nil)
}

// images

func (c *Client) ListImages(ctx context.Context) ([]api.Image, error) {
	return dispatcher.GetJSON[[]api.Image](ctx, c.d, "/images")
}

func (c *Client) UpdateImage(ctx context.Context, id string, in api.MediaUpdate) (api.Image, error) {
	return dispatcher.PatchJSON[api.Image](ctx, c.d, "/images/"+esc(id), in)
}

func (c *Client) DeleteImage(ctx context.Context, id string) error {
	return c.d.Delete(ctx, "/images/"+esc(id), nil, nil)
}

func (c *Client) LinkImage(ctx context.Context, postID, imageID string) error {
	return c.d.Put(ctx, "/posts/"+esc(postID)+"/images/"+esc(imageID), nil, nil)
}

func (c *Client) UnlinkImage(ctx context.Context, postID, imageID string) error {
	return c.d.Delete(ctx, "/posts/"+esc(postID)+"/images/"+esc(imageID), nil, nil)
}

// documents

func (c *Client) ListDocuments(ctx context.Context) ([]api.Document, error) {
	return dispatcher.GetJSON[[]api.Document](ctx, c.d, "/documents")
}

// AvailableDocuments lists documents not yet linked to postID.
func (c *Client) AvailableDocuments(ctx context.Context, postID string) ([]api.Document, error) {
	return dispatcher.GetJSON[[]api.Document](ctx, c.d, "/documents?available_for="+url.QueryEscape(postID))
}

func (c *Client) UpdateDocument(ctx context.Context, id string, in api.MediaUpdate) (api.Document, error) {
	return dispatcher.PatchJSON[api.Document](ctx, c.d, "/documents/"+esc(id), in)
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.d.Delete(ctx, "/documents/"+esc(id), nil, nil)
}

func (c *Client) LinkDocument(ctx context.Context, postID, documentID string) error {
	return c.d.Put(ctx, "/posts/"+esc(postID)+"/documents/"+esc(documentID), nil, nil)
}

func (c *Client) UnlinkDocument(ctx context.Context, postID, documentID string) error {
	return c.d.Delete(ctx, "/posts/"+esc(postID)+"/documents/"+esc(documentID), nil, nil)
}
