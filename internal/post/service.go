package post

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/skillbox/postservice/internal/storage"
)

// keyTimeLayout is the timestamp part of blob keys: ISO-8601 local date-time
// with fixed nanosecond precision.
const keyTimeLayout = "2006-01-02T15:04:05.000000000"

// Store is the relational side of the service. Every mutating method runs in a
// single transaction.
type Store interface {
	Create(ctx context.Context, p *Post) error
	Update(ctx context.Context, p *Post, added []Photo) error
	GetByID(ctx context.Context, id string) (*Post, error)
	List(ctx context.Context) ([]Post, error)
	Delete(ctx context.Context, id string) error
	AddPhotos(ctx context.Context, postID string, photos []Photo) error
	GetPhoto(ctx context.Context, postID, photoID string) (*Photo, error)
	DeletePhoto(ctx context.Context, postID, photoID string) error
}

// Service coordinates posts and photos across the relational store and the
// blob store. The blob store has no transactions, so blobs written during a
// failed call are deleted again before the error is returned.
type Service struct {
	store  Store
	blobs  storage.Storage
	bucket string
	log    *slog.Logger
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the clock used to stamp blob keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new post Service storing blobs in bucket.
func NewService(store Store, blobs storage.Storage, bucket string, log *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, blobs: blobs, bucket: bucket, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePost uploads the files and saves the post with its photos.
func (s *Service) CreatePost(ctx context.Context, in CreatePostInput, uploads []Upload) (_ *Post, err error) {
	if IsNoAttachment(uploads) {
		uploads = nil
	}
	if err := ValidateUploads(uploads); err != nil {
		return nil, err
	}

	batch := s.newUploadBatch()
	defer func() {
		if err != nil {
			batch.rollback(ctx, err)
		}
	}()

	photos, err := s.uploadPhotos(ctx, batch, in.UserID, uploads)
	if err != nil {
		return nil, err
	}

	p := &Post{
		Title:       in.Title,
		UserID:      in.UserID,
		Description: in.Description,
		Photos:      photos,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "post created", "post_id", p.ID, "photos", len(p.Photos))
	return p, nil
}

// GetPost returns a post with its photos.
func (s *Service) GetPost(ctx context.Context, id string) (*Post, error) {
	return s.store.GetByID(ctx, id)
}

// ListPosts returns all posts.
func (s *Service) ListPosts(ctx context.Context) ([]Post, error) {
	return s.store.List(ctx)
}

// UpdatePost replaces title and description and appends the uploaded files as
// new photos. Existing photos are kept as they are.
func (s *Service) UpdatePost(ctx context.Context, id string, in UpdatePostInput, uploads []Upload) (_ *Post, err error) {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if IsNoAttachment(uploads) {
		uploads = nil
	}
	if err := ValidateUploads(uploads); err != nil {
		return nil, err
	}

	batch := s.newUploadBatch()
	defer func() {
		if err != nil {
			batch.rollback(ctx, err)
		}
	}()

	added, err := s.uploadPhotos(ctx, batch, p.UserID, uploads)
	if err != nil {
		return nil, err
	}

	p.Title = in.Title
	p.Description = in.Description
	if err := s.store.Update(ctx, p, added); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "post updated", "post_id", p.ID, "added_photos", len(added))
	return p, nil
}

// DeletePost removes the post and its photo rows, then cleans up their blobs.
// Blob cleanup failures are logged and never returned.
func (s *Service) DeletePost(ctx context.Context, id string) error {
	p, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	keys := p.Keys()
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "post deleted", "post_id", id, "photos", len(keys))
	s.removeBlobs(ctx, keys)
	return nil
}

// AddPhotos attaches new photos to an existing post. Unlike create and update,
// any empty file is rejected.
func (s *Service) AddPhotos(ctx context.Context, postID string, uploads []Upload) (_ []Photo, err error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}
	if HasEmptyFile(uploads) {
		return nil, ErrEmptyFile
	}

	p, err := s.store.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if err := ValidateUploads(uploads); err != nil {
		return nil, err
	}

	batch := s.newUploadBatch()
	defer func() {
		if err != nil {
			batch.rollback(ctx, err)
		}
	}()

	photos, err := s.uploadPhotos(ctx, batch, p.UserID, uploads)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddPhotos(ctx, p.ID, photos); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "photos added", "post_id", p.ID, "photos", len(photos))
	return photos, nil
}

// ListPhotos returns the photos of a post.
func (s *Service) ListPhotos(ctx context.Context, postID string) ([]Photo, error) {
	p, err := s.store.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	return p.Photos, nil
}

// GetPhoto returns a photo of the given post.
func (s *Service) GetPhoto(ctx context.Context, postID, photoID string) (*Photo, error) {
	return s.store.GetPhoto(ctx, postID, photoID)
}

// DeletePhoto removes the photo row, then its blob on a best-effort basis.
func (s *Service) DeletePhoto(ctx context.Context, postID, photoID string) error {
	ph, err := s.store.GetPhoto(ctx, postID, photoID)
	if err != nil {
		return err
	}
	if err := s.store.DeletePhoto(ctx, postID, photoID); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "photo deleted", "post_id", postID, "photo_id", photoID)
	s.removeBlob(ctx, ph.Name)
	return nil
}

// OpenPhoto streams the stored bytes of a photo. The caller closes the reader.
func (s *Service) OpenPhoto(ctx context.Context, postID, photoID string) (io.ReadCloser, *Photo, error) {
	ph, err := s.store.GetPhoto(ctx, postID, photoID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Download(ctx, ph.Name)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.log.WarnContext(ctx, "photo row without blob", "photo_id", ph.ID, "key", ph.Name)
		return nil, nil, fmt.Errorf("%w: content is missing", ErrPhotoNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("download photo: %w", err)
	}
	return rc, ph, nil
}

func (s *Service) uploadPhotos(ctx context.Context, batch *uploadBatch, userID string, uploads []Upload) ([]Photo, error) {
	photos := make([]Photo, 0, len(uploads))
	for _, u := range uploads {
		key := fmt.Sprintf("%s_%s_%s", userID, batch.stamp().Format(keyTimeLayout), u.Filename)
		if err := batch.put(ctx, key, u); err != nil {
			return nil, err
		}
		photos = append(photos, Photo{Name: key, Link: s.bucket + "/" + key})
	}
	return photos, nil
}

// removeBlobs deletes blobs whose rows are already gone. It is not cancelled
// with the request and its failures only leave orphaned blobs behind.
func (s *Service) removeBlobs(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := s.blobs.DeleteMany(context.WithoutCancel(ctx), keys); err != nil {
		s.log.WarnContext(ctx, "blob cleanup failed, orphaned blobs remain", "keys", keys, "error", err)
	}
}

// removeBlob is removeBlobs for a single key.
func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.WarnContext(ctx, "blob cleanup failed, orphaned blob remains", "key", key, "error", err)
	}
}

func (s *Service) newUploadBatch() *uploadBatch {
	return &uploadBatch{blobs: s.blobs, log: s.log, now: s.now}
}

// uploadBatch records the blobs written during one call so a later failure can
// remove them again.
type uploadBatch struct {
	blobs storage.Storage
	log   *slog.Logger
	now   func() time.Time
	last  time.Time
	keys  []string
}

// stamp returns a strictly increasing time so keys stay unique within a batch.
func (b *uploadBatch) stamp() time.Time {
	t := b.now()
	if !t.After(b.last) {
		t = b.last.Add(time.Nanosecond)
	}
	b.last = t
	return t
}

func (b *uploadBatch) put(ctx context.Context, key string, u Upload) error {
	if err := b.blobs.Upload(ctx, key, u.Content, u.Size, contentType(u)); err != nil {
		return fmt.Errorf("upload %q: %w", u.Filename, err)
	}
	b.keys = append(b.keys, key)
	return nil
}

// rollback deletes every recorded blob. A failure here is logged; the caller
// still returns cause.
func (b *uploadBatch) rollback(ctx context.Context, cause error) {
	if len(b.keys) == 0 {
		return
	}
	if err := b.blobs.DeleteMany(context.WithoutCancel(ctx), b.keys); err != nil {
		b.log.ErrorContext(ctx, "compensation failed, orphaned blobs remain", "keys", b.keys, "cause", cause, "error", err)
		return
	}
	b.log.WarnContext(ctx, "removed uploaded blobs after failure", "count", len(b.keys), "cause", cause)
}

func contentType(u Upload) string {
	if u.ContentType != "" {
		return u.ContentType
	}
	if ct := mime.TypeByExtension(filepath.Ext(u.Filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
