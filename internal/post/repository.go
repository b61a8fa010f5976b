package post

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skillbox/postservice/internal/db"
)

const (
	postColumns  = `id, title, user_id, description, created_at, updated_at`
	photoColumns = `id, post_id, name, link, created_at, updated_at`
)

// Repository handles post and photo persistence.
type Repository struct {
	pool db.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the post and all of its photos in one transaction, filling in
// generated ids and timestamps.
func (r *Repository) Create(ctx context.Context, p *Post) error {
	err := db.WithTx(ctx, r.pool, func(tx db.DBTX) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO posts (title, user_id, description)
			 VALUES ($1, $2, $3)
			 RETURNING id, created_at, updated_at`,
			p.Title, p.UserID, p.Description,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert post: %w", err)
		}

		for i := range p.Photos {
			p.Photos[i].PostID = p.ID
			if err := insertPhoto(ctx, tx, &p.Photos[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// Update overwrites title and description and appends added photos in one
// transaction. Existing photos are left untouched.
func (r *Repository) Update(ctx context.Context, p *Post, added []Photo) error {
	err := db.WithTx(ctx, r.pool, func(tx db.DBTX) error {
		err := tx.QueryRow(ctx,
			`UPDATE posts SET title = $2, description = $3, updated_at = NOW()
			 WHERE id = $1
			 RETURNING updated_at`,
			p.ID, p.Title, p.Description,
		).Scan(&p.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPostNotFound
		}
		if err != nil {
			return fmt.Errorf("update post: %w", err)
		}

		for i := range added {
			added[i].PostID = p.ID
			if err := insertPhoto(ctx, tx, &added[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.Photos = append(p.Photos, added...)
	return nil
}

// GetByID fetches a post with its photos.
func (r *Repository) GetByID(ctx context.Context, id string) (*Post, error) {
	p := &Post{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Title, &p.UserID, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post by id: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE post_id = $1 ORDER BY created_at, id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list post photos: %w", err)
	}
	p.Photos, err = scanPhotos(rows)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns every post with its photos, oldest first.
func (r *Repository) List(ctx context.Context) ([]Post, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []Post{}
	index := map[string]int{}
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Title, &p.UserID, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Photos = []Photo{}
		index[p.ID] = len(posts)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	if len(posts) == 0 {
		return posts, nil
	}

	photoRows, err := r.pool.Query(ctx, `SELECT `+photoColumns+` FROM photos ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	photos, err := scanPhotos(photoRows)
	if err != nil {
		return nil, err
	}
	for _, ph := range photos {
		if i, ok := index[ph.PostID]; ok {
			posts[i].Photos = append(posts[i].Photos, ph)
		}
	}
	return posts, nil
}

// Delete removes the post and its photo rows in one transaction.
func (r *Repository) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, r.pool, func(tx db.DBTX) error {
		if _, err := tx.Exec(ctx, `DELETE FROM photos WHERE post_id = $1`, id); err != nil {
			return fmt.Errorf("delete post photos: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrPostNotFound
		}
		return nil
	})
}

// AddPhotos inserts photos for an existing post in one transaction.
func (r *Repository) AddPhotos(ctx context.Context, postID string, photos []Photo) error {
	return db.WithTx(ctx, r.pool, func(tx db.DBTX) error {
		for i := range photos {
			photos[i].PostID = postID
			if err := insertPhoto(ctx, tx, &photos[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPhoto fetches a photo by id, scoped to its post.
func (r *Repository) GetPhoto(ctx context.Context, postID, photoID string) (*Photo, error) {
	ph := &Photo{}
	err := r.pool.QueryRow(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id = $1 AND post_id = $2`,
		photoID, postID,
	).Scan(&ph.ID, &ph.PostID, &ph.Name, &ph.Link, &ph.CreatedAt, &ph.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPhotoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return ph, nil
}

// DeletePhoto removes one photo row, scoped to its post.
func (r *Repository) DeletePhoto(ctx context.Context, postID, photoID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM photos WHERE id = $1 AND post_id = $2`,
		photoID, postID,
	)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPhotoNotFound
	}
	return nil
}

func insertPhoto(ctx context.Context, tx db.DBTX, ph *Photo) error {
	err := tx.QueryRow(ctx,
		`INSERT INTO photos (post_id, name, link)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		ph.PostID, ph.Name, ph.Link,
	).Scan(&ph.ID, &ph.CreatedAt, &ph.UpdatedAt)
	if isForeignKeyViolation(err) {
		return ErrPostNotFound
	}
	if err != nil {
		return fmt.Errorf("insert photo %q: %w", ph.Name, err)
	}
	return nil
}

func scanPhotos(rows pgx.Rows) ([]Photo, error) {
	defer rows.Close()

	photos := []Photo{}
	for rows.Next() {
		var ph Photo
		if err := rows.Scan(&ph.ID, &ph.PostID, &ph.Name, &ph.Link, &ph.CreatedAt, &ph.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, ph)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read photos: %w", err)
	}
	return photos, nil
}

// isForeignKeyViolation checks whether an error is a PostgreSQL foreign_key_violation (code 23503).
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
