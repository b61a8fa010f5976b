package post

import (
	"strings"
	"time"
)

// PhotoResponse is the public shape of a photo.
type PhotoResponse struct {
	ID        string    `json:"id"        example:"3fa33f33-3333-3333-b2fc-3c333f33afa3"`
	PostID    string    `json:"postId"    example:"1fa11f11-1111-1111-b1fc-1c111f11afa1"`
	Name      string    `json:"name"      example:"2fa22f22-2222-2222-b2fc-2c222f22afa2_2026-02-27T14:48:34.000000000_photo.png"`
	Link      string    `json:"link"      example:"http://localhost:9000/posts/2fa22f22-2222-2222-b2fc-2c222f22afa2_2026-02-27T14:48:34.000000000_photo.png"`
	CreatedAt time.Time `json:"createdAt" example:"2026-02-27T14:48:34Z"`
}

// PostResponse is the public shape of a post.
type PostResponse struct {
	ID          string          `json:"id"          example:"1fa11f11-1111-1111-b1fc-1c111f11afa1"`
	Title       string          `json:"title"       example:"Weekend trip"`
	UserID      string          `json:"userId"      example:"2fa22f22-2222-2222-b2fc-2c222f22afa2"`
	Description string          `json:"description" example:"Photos from the lake"`
	Photos      []PhotoResponse `json:"photos"`
	CreatedAt   time.Time       `json:"createdAt"   example:"2026-02-27T14:48:34Z"`
	UpdatedAt   time.Time       `json:"updatedAt"   example:"2026-02-27T14:48:34Z"`
}

// Assembler maps posts and photos to their public shapes, turning short links
// into full URLs.
type Assembler struct {
	endpoint string
}

// NewAssembler creates an Assembler for the public storage endpoint.
func NewAssembler(endpoint string) *Assembler {
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &Assembler{endpoint: endpoint}
}

// Link resolves a bucket-relative short link.
func (a *Assembler) Link(shortLink string) string {
	return a.endpoint + shortLink
}

// Photo maps one photo.
func (a *Assembler) Photo(ph Photo) PhotoResponse {
	return PhotoResponse{
		ID:        ph.ID,
		PostID:    ph.PostID,
		Name:      ph.Name,
		Link:      a.Link(ph.Link),
		CreatedAt: ph.CreatedAt,
	}
}

// Photos maps a list of photos; the result is never nil.
func (a *Assembler) Photos(photos []Photo) []PhotoResponse {
	out := make([]PhotoResponse, 0, len(photos))
	for _, ph := range photos {
		out = append(out, a.Photo(ph))
	}
	return out
}

// Post maps a post with its photos.
func (a *Assembler) Post(p *Post) PostResponse {
	return PostResponse{
		ID:          p.ID,
		Title:       p.Title,
		UserID:      p.UserID,
		Description: p.Description,
		Photos:      a.Photos(p.Photos),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Posts maps a list of posts; the result is never nil.
func (a *Assembler) Posts(posts []Post) []PostResponse {
	out := make([]PostResponse, 0, len(posts))
	for i := range posts {
		out = append(out, a.Post(&posts[i]))
	}
	return out
}
