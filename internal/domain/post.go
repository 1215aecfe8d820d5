package domain

import "time"

type SEO struct {
	Slug            string
	MetaTitle       string
	MetaDescription string
	Keywords        []string
	CanonicalURL    string
}

type Post struct {
	ID             string
	Title          string
	Description    string
	AuthorUsername string
	MainImageID    *string
	SEO            SEO
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PostWithContent is a post with its gallery and documents resolved.
// Images never contains the main image.
type PostWithContent struct {
	Post
	MainImage *Image
	Images    []Image
	Documents []Document
}

// NewPost is the input for creating or replacing a post together with its links.
type NewPost struct {
	Title          string
	Description    string
	AuthorUsername string
	MainImageID    *string
	ImageIDs       []string
	DocumentIDs    []string
	SEO            SEO
}

// SplitMainImage separates the main image from the rest of the gallery.
func SplitMainImage(mainID *string, images []Image) (*Image, []Image) {
	var main *Image
	rest := make([]Image, 0, len(images))
	for i := range images {
		if mainID != nil && images[i].ID == *mainID {
			img := images[i]
			main = &img
			continue
		}
		rest = append(rest, images[i])
	}
	return main, rest
}
