// Package api holds the JSON wire types of the CMS HTTP API, shared by the
// server handlers and the typed client.
package api

import (
	"time"

	"cms-service/internal/domain"
)

// Error is the envelope of every non-2xx response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Credentials struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type ProfileUpdate struct {
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=6,max=72"`
}

type Image struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Alt          string    `json:"alt"`
	URL          string    `json:"url"`
	Path         string    `json:"path"`
	URLExpiresAt time.Time `json:"url_expires_at"`
	PostIDs      []string  `json:"post_ids"`
}

type Document struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Path         string    `json:"path"`
	PreviewImage string    `json:"preview_image,omitempty"`
	URLExpiresAt time.Time `json:"url_expires_at"`
	PostIDs      []string  `json:"post_ids"`
}

type MediaUpdate struct {
	Title *string `json:"title,omitempty" validate:"omitempty,max=200"`
	Alt   *string `json:"alt,omitempty" validate:"omitempty,max=500"`
}

type SEO struct {
	Slug            string   `json:"slug,omitempty" validate:"omitempty,max=200"`
	MetaTitle       string   `json:"meta_title,omitempty" validate:"omitempty,max=200"`
	MetaDescription string   `json:"meta_description,omitempty" validate:"omitempty,max=500"`
	Keywords        []string `json:"keywords,omitempty"`
	CanonicalURL    string   `json:"canonical_url,omitempty" validate:"omitempty,url"`
}

type Post struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	AuthorUsername string    `json:"author_username"`
	MainImageID    *string   `json:"main_image_id,omitempty"`
	SEO            SEO       `json:"seo"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PostWithContent never lists the main image in Images.
type PostWithContent struct {
	Post
	MainImage *Image     `json:"main_image,omitempty"`
	Images    []Image    `json:"images"`
	Documents []Document `json:"documents"`
}

type PostInput struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description"`
	MainImageID *string  `json:"main_image_id,omitempty" validate:"omitempty,uuid"`
	ImageIDs    []string `json:"image_ids,omitempty" validate:"omitempty,dive,uuid"`
	DocumentIDs []string `json:"document_ids,omitempty" validate:"omitempty,dive,uuid"`
	SEO         SEO      `json:"seo"`
}

type DeletePostsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type DeletedResponse struct {
	Deleted int64 `json:"deleted"`
}

func FromProfile(p domain.Profile) Profile {
	return Profile{ID: p.ID, Username: p.Username, Email: p.Email, CreatedAt: p.CreatedAt}
}

func FromImage(img domain.Image) Image {
	return Image{
		ID:           img.ID,
		Title:        img.Title,
		Alt:          img.Alt,
		URL:          img.URL,
		Path:         img.Path,
		URLExpiresAt: img.URLExpiresAt,
		PostIDs:      nonNil(img.PostIDs),
	}
}

func FromDocument(d domain.Document) Document {
	return Document{
		ID:           d.ID,
		Title:        d.Title,
		URL:          d.URL,
		Path:         d.Path,
		PreviewImage: d.PreviewImage,
		URLExpiresAt: d.URLExpiresAt,
		PostIDs:      nonNil(d.PostIDs),
	}
}

func FromPost(p domain.Post) Post {
	return Post{
		ID:             p.ID,
		Title:          p.Title,
		Description:    p.Description,
		AuthorUsername: p.AuthorUsername,
		MainImageID:    p.MainImageID,
		SEO: SEO{
			Slug:            p.SEO.Slug,
			MetaTitle:       p.SEO.MetaTitle,
			MetaDescription: p.SEO.MetaDescription,
			Keywords:        p.SEO.Keywords,
			CanonicalURL:    p.SEO.CanonicalURL,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func FromPostWithContent(p domain.PostWithContent) PostWithContent {
	out := PostWithContent{
		Post:      FromPost(p.Post),
		Images:    make([]Image, 0, len(p.Images)),
		Documents: make([]Document, 0, len(p.Documents)),
	}
	if p.MainImage != nil {
		img := FromImage(*p.MainImage)
		out.MainImage = &img
	}
	for _, img := range p.Images {
		out.Images = append(out.Images, FromImage(img))
	}
	for _, d := range p.Documents {
		out.Documents = append(out.Documents, FromDocument(d))
	}
	return out
}

// NewPost converts the input into a domain post written by author.
func (in PostInput) NewPost(author string) domain.NewPost {
	return domain.NewPost{
		Title:          in.Title,
		Description:    in.Description,
		AuthorUsername: author,
		MainImageID:    in.MainImageID,
		ImageIDs:       in.ImageIDs,
		DocumentIDs:    in.DocumentIDs,
		SEO: domain.SEO{
			Slug:            in.SEO.Slug,
			MetaTitle:       in.SEO.MetaTitle,
			MetaDescription: in.SEO.MetaDescription,
			Keywords:        in.SEO.Keywords,
			CanonicalURL:    in.SEO.CanonicalURL,
		},
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
