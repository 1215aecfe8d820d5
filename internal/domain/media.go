package domain

import (
	"path"
	"regexp"
	"strings"
	"time"
)

type Image struct {
	ID           string
	Title        string
	Alt          string
	URL          string
	Path         string
	URLExpiresAt time.Time
	PostIDs      []string
}

type Document struct {
	ID           string
	Title        string
	URL          string
	Path         string
	PreviewImage string
	URLExpiresAt time.Time
	PostIDs      []string
}

// MediaPatch holds optional metadata changes for an image or a document.
type MediaPatch struct {
	Title *string
	Alt   *string
}

// SignedObject is a stored file whose signed URL needs to be renewed.
type SignedObject struct {
	ID           string
	Path         string
	URLExpiresAt time.Time
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

var imageExt = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)

// SanitizeFileName replaces every character outside [a-zA-Z0-9._-] with an underscore.
func SanitizeFileName(name string) string {
	return unsafeFileChars.ReplaceAllString(name, "_")
}

// ImageTitle strips a known image extension from a file name.
func ImageTitle(name string) string {
	return imageExt.ReplaceAllString(name, "")
}

// DocumentTitle strips whatever extension a file name has.
func DocumentTitle(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// LinkedTo reports whether postID is among ids.
func LinkedTo(ids []string, postID string) bool {
	for _, id := range ids {
		if id == postID {
			return true
		}
	}
	return false
}
