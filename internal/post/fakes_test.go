package post

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillbox/postservice/internal/storage"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory Store.
type memStore struct {
	mu    sync.Mutex
	posts map[string]*Post
	now   time.Time

	createErr error
	updateErr error
	addErr    error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{
		posts: map[string]*Post{},
		now:   time.Date(2026, 2, 27, 14, 48, 34, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func clonePost(p *Post) *Post {
	c := *p
	c.Photos = append([]Photo{}, p.Photos...)
	return &c
}

func (s *memStore) stampPhotos(postID string, photos []Photo) {
	for i := range photos {
		photos[i].ID = uuid.NewString()
		photos[i].PostID = postID
		photos[i].CreatedAt = s.tick()
		photos[i].UpdatedAt = photos[i].CreatedAt
	}
}

func (s *memStore) Create(_ context.Context, p *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	p.ID = uuid.NewString()
	p.CreatedAt = s.tick()
	p.UpdatedAt = p.CreatedAt
	s.stampPhotos(p.ID, p.Photos)
	s.posts[p.ID] = clonePost(p)
	return nil
}

func (s *memStore) Update(_ context.Context, p *Post, added []Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	stored, ok := s.posts[p.ID]
	if !ok {
		return ErrPostNotFound
	}
	s.stampPhotos(p.ID, added)
	stored.Title = p.Title
	stored.Description = p.Description
	stored.UpdatedAt = s.tick()
	stored.Photos = append(stored.Photos, added...)
	p.UpdatedAt = stored.UpdatedAt
	p.Photos = append(p.Photos, added...)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	return clonePost(p), nil
}

func (s *memStore) List(_ context.Context) ([]Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts := make([]Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, *clonePost(p))
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.Before(posts[j].CreatedAt) })
	return posts, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.posts[id]; !ok {
		return ErrPostNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *memStore) AddPhotos(_ context.Context, postID string, photos []Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	p, ok := s.posts[postID]
	if !ok {
		return ErrPostNotFound
	}
	s.stampPhotos(postID, photos)
	p.Photos = append(p.Photos, photos...)
	return nil
}

func (s *memStore) GetPhoto(_ context.Context, postID, photoID string) (*Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return nil, ErrPhotoNotFound
	}
	for _, ph := range p.Photos {
		if ph.ID == photoID {
			ph := ph
			return &ph, nil
		}
	}
	return nil, ErrPhotoNotFound
}

func (s *memStore) DeletePhoto(_ context.Context, postID, photoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return ErrPhotoNotFound
	}
	for i, ph := range p.Photos {
		if ph.ID == photoID {
			p.Photos = append(p.Photos[:i], p.Photos[i+1:]...)
			return nil
		}
	}
	return ErrPhotoNotFound
}

// memBlobs is an in-memory storage.Storage.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	uploads int

	// failUploadAt makes the n-th upload (1-based) fail.
	failUploadAt  int
	deleteErr     error
	deleteManyErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBlobs) Upload(_ context.Context, key string, reader io.Reader, _ int64, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads++
	if b.failUploadAt > 0 && b.uploads == b.failUploadAt {
		return errBoom
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memBlobs) Download(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, key)
	return nil
}

func (b *memBlobs) DeleteMany(_ context.Context, keys []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteManyErr != nil {
		return b.deleteManyErr
	}
	for _, k := range keys {
		delete(b.objects, k)
	}
	return nil
}

func (b *memBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
