package post

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skillbox/postservice/internal/middleware"
	"github.com/skillbox/postservice/internal/response"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling file parts to disk.
const multipartMemory = 8 << 20

// Handler holds HTTP handlers for post endpoints.
type Handler struct {
	svc            *Service
	asm            *Assembler
	maxUploadBytes int64
	log            *slog.Logger
}

// NewHandler creates a new post Handler.
func NewHandler(svc *Service, asm *Assembler, maxUploadBytes int64, log *slog.Logger) *Handler {
	return &Handler{svc: svc, asm: asm, maxUploadBytes: maxUploadBytes, log: log}
}

// RegisterRoutes mounts the post endpoints under /posts.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/posts", func(r chi.Router) {
		r.Get("/", h.ListPosts)
		r.Post("/", h.CreatePost)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetPost)
			r.Put("/", h.UpdatePost)
			r.Delete("/", h.DeletePost)
			r.Route("/photos", func(r chi.Router) {
				r.Get("/", h.ListPhotos)
				r.Post("/", h.AddPhotos)
				r.Get("/{photoId}", h.GetPhoto)
				r.Delete("/{photoId}", h.DeletePhoto)
				r.Get("/{photoId}/content", h.GetPhotoContent)
			})
		})
	})
}

// postRequest is the JSON carried in the "data" part of post forms.
type postRequest struct {
	Title       string `json:"title"       example:"Weekend trip"`
	Description string `json:"description" example:"Photos from the lake"`
	UserID      string `json:"userId"      example:"2fa22f22-2222-2222-b2fc-2c222f22afa2"`
}

// CreatePost godoc
//
//	@Summary		Create post
//	@Description	Create a post from the JSON "data" part and attach the uploaded "files" (PNG, JPEG, JPG). The owner is the bearer token subject when a token is sent, otherwise data.userId.
//	@Tags			posts
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			data	formData	string	true	"Post JSON: {title, description, userId}"
//	@Param			files	formData	file	false	"Photos to attach"
//	@Success		201		{object}	response.Envelope{data=PostResponse}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/posts [post]
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll() //nolint:errcheck

	req, err := decodePostRequest(form)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		userID = req.UserID
	}
	if _, err := uuid.Parse(userID); err != nil {
		response.BadRequest(w, "userId must be a valid UUID")
		return
	}

	uploads, closeAll, err := collectUploads(form)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeAll()

	p, err := h.svc.CreatePost(r.Context(), CreatePostInput{
		Title:       req.Title,
		Description: req.Description,
		UserID:      userID,
	}, uploads)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, h.asm.Post(p))
}

// GetPost godoc
//
//	@Summary		Get post
//	@Description	Returns a post with its photos.
//	@Tags			posts
//	@Produce		json
//	@Param			id	path		string	true	"Post ID"
//	@Success		200	{object}	response.Envelope{data=PostResponse}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/posts/{id} [get]
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", ErrPostNotFound)
	if !ok {
		return
	}

	p, err := h.svc.GetPost(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, h.asm.Post(p))
}

// ListPosts godoc
//
//	@Summary		List posts
//	@Description	Returns every post with its photos.
//	@Tags			posts
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=[]PostResponse}
//	@Failure		500	{object}	response.Envelope
//	@Router			/posts [get]
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.ListPosts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, h.asm.Posts(posts))
}

// UpdatePost godoc
//
//	@Summary		Update post
//	@Description	Replace title and description and append the uploaded files as new photos. Existing photos are kept.
//	@Tags			posts
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		string	true	"Post ID"
//	@Param			data	formData	string	true	"Post JSON: {title, description}"
//	@Param			files	formData	file	false	"Photos to append"
//	@Success		200		{object}	response.Envelope{data=PostResponse}
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/posts/{id} [put]
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", ErrPostNotFound)
	if !ok {
		return
	}

	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll() //nolint:errcheck

	req, err := decodePostRequest(form)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	uploads, closeAll, err := collectUploads(form)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeAll()

	p, err := h.svc.UpdatePost(r.Context(), id, UpdatePostInput{
		Title:       req.Title,
		Description: req.Description,
	}, uploads)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, h.asm.Post(p))
}

// DeletePost godoc
//
//	@Summary		Delete post
//	@Description	Delete a post and all of its photos.
//	@Tags			posts
//	@Param			id	path	string	true	"Post ID"
//	@Success		204
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/posts/{id} [delete]
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", ErrPostNotFound)
	if !ok {
		return
	}

	if err := h.svc.DeletePost(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.NoContent(w)
}

// AddPhotos godoc
//
//	@Summary		Add photos
//	@Description	Attach the uploaded "files" to a post. Every file must be non-empty.
//	@Tags			photos
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			id		path		string	true	"Post ID"
//	@Param			files	formData	file	true	"Photos to attach"
//	@Success		201		{object}	response.Envelope{data=[]PhotoResponse}
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/posts/{id}/photos [post]
func (h *Handler) AddPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", ErrPostNotFound)
	if !ok {
		return
	}

	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll() //nolint:errcheck

	uploads, closeAll, err := collectUploads(form)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeAll()

	photos, err := h.svc.AddPhotos(r.Context(), id, uploads)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, h.asm.Photos(photos))
}

// ListPhotos godoc
//
//	@Summary		List photos
//	@Description	Returns the photos of a post.
//	@Tags			photos
//	@Produce		json
//	@Param			id	path		string	true	"Post ID"
//	@Success		200	{object}	response.Envelope{data=[]PhotoResponse}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/posts/{id}/photos [get]
func (h *Handler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", ErrPostNotFound)
	if !ok {
		return
	}

	photos, err := h.svc.ListPhotos(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, h.asm.Photos(photos))
}

// GetPhoto godoc
//
//	@Summary		Get photo
//	@Description	Returns one photo of a post.
//	@Tags			photos
//	@Produce		json
//	@Param			id		path		string	true	"Post ID"
//	@Param			photoId	path		string	true	"Photo ID"
//	@Success		200		{object}	response.Envelope{data=PhotoResponse}
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/posts/{id}/photos/{photoId} [get]
func (h *Handler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	postID, photoID, ok := photoPath(w, r)
	if !ok {
		return
	}

	ph, err := h.svc.GetPhoto(r.Context(), postID, photoID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, h.asm.Photo(*ph))
}

// DeletePhoto godoc
//
//	@Summary		Delete photo
//	@Description	Delete one photo of a post.
//	@Tags			photos
//	@Param			id		path	string	true	"Post ID"
//	@Param			photoId	path	string	true	"Photo ID"
//	@Success		204
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/posts/{id}/photos/{photoId} [delete]
func (h *Handler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	postID, photoID, ok := photoPath(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeletePhoto(r.Context(), postID, photoID); err != nil {
		h.writeError(w, r, err)
		return
	}

	response.NoContent(w)
}

// GetPhotoContent godoc
//
//	@Summary		Download photo
//	@Description	Streams the stored image bytes of a photo.
//	@Tags			photos
//	@Produce		image/png,image/jpeg
//	@Param			id		path	string	true	"Post ID"
//	@Param			photoId	path	string	true	"Photo ID"
//	@Success		200		{file}	binary
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/posts/{id}/photos/{photoId}/content [get]
func (h *Handler) GetPhotoContent(w http.ResponseWriter, r *http.Request) {
	postID, photoID, ok := photoPath(w, r)
	if !ok {
		return
	}

	rc, ph, err := h.svc.OpenPhoto(r.Context(), postID, photoID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	ct := mime.TypeByExtension(filepath.Ext(ph.Name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.WarnContext(r.Context(), "photo stream interrupted", "photo_id", ph.ID, "error", err)
	}
}

// parseForm limits the body size and parses a multipart form, writing the
// error response itself when that fails.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		response.BadRequest(w, "invalid multipart form")
		return nil, false
	}
	return r.MultipartForm, true
}

// writeError maps service errors to HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrPostNotFound):
		response.NotFound(w, ErrPostNotFound.Error())
	case errors.Is(err, ErrPhotoNotFound):
		response.NotFound(w, ErrPhotoNotFound.Error())
	case errors.Is(err, ErrInvalidFormat),
		errors.Is(err, ErrEmptyFile),
		errors.Is(err, ErrNoFiles),
		errors.Is(err, ErrFileRead):
		response.BadRequest(w, err.Error())
	default:
		h.log.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.InternalError(w)
	}
}

// decodePostRequest reads the "data" part, sent either as a plain form value
// or as a JSON file part.
func decodePostRequest(form *multipart.Form) (postRequest, error) {
	var req postRequest

	var raw []byte
	if vals := form.Value["data"]; len(vals) > 0 {
		raw = []byte(vals[0])
	} else if fhs := form.File["data"]; len(fhs) > 0 {
		f, err := fhs[0].Open()
		if err != nil {
			return req, errors.New("cannot read data part")
		}
		raw, err = io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return req, errors.New("cannot read data part")
		}
	} else {
		return req, errors.New("data part is required")
	}

	if err := json.Unmarshal(raw, &req); err != nil {
		return req, errors.New("data part must be valid JSON")
	}
	if strings.TrimSpace(req.Title) == "" {
		return req, errors.New("title must not be blank")
	}
	if strings.TrimSpace(req.Description) == "" {
		return req, errors.New("description must not be blank")
	}
	return req, nil
}

// collectUploads opens every "files" part. A "files" part sent without a
// filename arrives as a form value and becomes an unnamed upload.
func collectUploads(form *multipart.Form) ([]Upload, func(), error) {
	var (
		uploads []Upload
		opened  []multipart.File
	)
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("%w %q: %v", ErrFileRead, fh.Filename, err)
		}
		opened = append(opened, f)
		uploads = append(uploads, Upload{
			Filename:    fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     f,
		})
	}
	for _, v := range form.Value["files"] {
		uploads = append(uploads, Upload{Size: int64(len(v)), Content: strings.NewReader(v)})
	}
	return uploads, closeAll, nil
}

// pathID reads a UUID path parameter. An id that is not a UUID cannot resolve,
// so it is answered with notFound.
func pathID(w http.ResponseWriter, r *http.Request, name string, notFound error) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.NotFound(w, notFound.Error())
		return "", false
	}
	return id.String(), true
}

func photoPath(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	postID, ok := pathID(w, r, "id", ErrPhotoNotFound)
	if !ok {
		return "", "", false
	}
	photoID, ok := pathID(w, r, "photoId", ErrPhotoNotFound)
	if !ok {
		return "", "", false
	}
	return postID, photoID, true
}
