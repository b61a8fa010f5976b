// Package post manages posts, their photos and the blobs behind them.
package post

import (
	"io"
	"time"
)

// Post is a user's post together with the photos it owns.
type Post struct {
	ID          string
	Title       string
	UserID      string
	Description string
	Photos      []Photo
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Photo is the metadata of one stored image. Name is the blob key; Link is the
// bucket-relative path used to build the public URL.
type Photo struct {
	ID        string
	PostID    string
	Name      string
	Link      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Keys returns the blob keys of all photos of the post.
func (p *Post) Keys() []string {
	keys := make([]string, 0, len(p.Photos))
	for _, ph := range p.Photos {
		keys = append(keys, ph.Name)
	}
	return keys
}

// Upload is one file received from a client.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Content     io.Reader
}

// CreatePostInput carries the fields of a new post.
type CreatePostInput struct {
	Title       string
	Description string
	UserID      string
}

// UpdatePostInput carries the fields replaced by an update.
type UpdatePostInput struct {
	Title       string
	Description string
}
