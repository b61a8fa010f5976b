package post

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router http.Handler
	store  *memStore
	blobs  *memBlobs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, blobs := newMemStore(), newMemBlobs()
	svc := newTestService(store, blobs)
	h := NewHandler(svc, NewAssembler("http://localhost:9000"), 1<<20, discardLogger())

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &testEnv{router: r, store: store, blobs: blobs}
}

type part struct {
	field    string
	filename string
	content  []byte
	// asFile sends a filename attribute even when filename is empty.
	asFile bool
}

func fileField(name string, size int) part {
	return part{field: "files", filename: name, content: bytes.Repeat([]byte{0x89}, size)}
}

func dataField(v any) part {
	raw, _ := json.Marshal(v)
	return part{field: "data", content: raw}
}

func multipartRequest(t *testing.T, method, target string, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.filename == "" && !p.asFile {
			require.NoError(t, mw.WriteField(p.field, string(p.content)))
			continue
		}
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		hdr.Set("Content-Type", "application/octet-stream")
		w, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = w.Write(p.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (e *testEnv) createPost(t *testing.T, files ...part) PostResponse {
	t.Helper()
	parts := append([]part{dataField(map[string]string{
		"title": "Trip", "description": "Lake", "userId": testUserID,
	})}, files...)
	w, env := e.do(t, multipartRequest(t, http.MethodPost, "/posts", parts...))
	require.Equal(t, http.StatusCreated, w.Code, env.Error)

	var p PostResponse
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestHandler_CreatePost(t *testing.T) {
	e := newTestEnv(t)

	p := e.createPost(t, fileField("photo.png", 10*1024))

	assert.Equal(t, "Trip", p.Title)
	assert.Equal(t, testUserID, p.UserID)
	require.Len(t, p.Photos, 1)
	assert.True(t, strings.HasSuffix(p.Photos[0].Link, "photo.png"))
	assert.True(t, strings.HasPrefix(p.Photos[0].Link, "http://localhost:9000/posts/"+testUserID+"_"))
	assert.Len(t, e.blobs.keys(), 1)
}

func TestHandler_CreatePost_DataAsFilePart(t *testing.T) {
	e := newTestEnv(t)

	raw, _ := json.Marshal(map[string]string{"title": "Trip", "description": "Lake", "userId": testUserID})
	req := multipartRequest(t, http.MethodPost, "/posts",
		part{field: "data", filename: "blob", content: raw},
		fileField("photo.jpg", 10))

	w, env := e.do(t, req)
	require.Equal(t, http.StatusCreated, w.Code, env.Error)
}

func TestHandler_CreatePost_EmptyUnnamedFileMeansNoPhotos(t *testing.T) {
	e := newTestEnv(t)

	p := e.createPost(t, part{field: "files"})

	assert.Empty(t, p.Photos)
	assert.Equal(t, 0, e.blobs.uploads)
}

func TestHandler_CreatePost_BadRequests(t *testing.T) {
	valid := map[string]string{"title": "Trip", "description": "Lake", "userId": testUserID}
	tests := []struct {
		name  string
		parts []part
	}{
		{"invalid format", []part{dataField(valid), fileField("notes.txt", 10)}},
		{"missing data", []part{fileField("photo.png", 10)}},
		{"malformed data", []part{{field: "data", content: []byte("{")}}},
		{"blank title", []part{dataField(map[string]string{"title": " ", "description": "d", "userId": testUserID})}},
		{"bad user id", []part{dataField(map[string]string{"title": "t", "description": "d", "userId": "bob"})}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t)

			w, env := e.do(t, multipartRequest(t, http.MethodPost, "/posts", tc.parts...))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
			assert.Empty(t, e.store.posts)
			assert.Equal(t, 0, e.blobs.uploads)
		})
	}
}

func TestHandler_CreatePost_NotMultipart(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/posts", strings.NewReader(`{"title":"t"}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ := e.do(t, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_CreatePost_TooLarge(t *testing.T) {
	e := newTestEnv(t)

	req := multipartRequest(t, http.MethodPost, "/posts",
		dataField(map[string]string{"title": "t", "description": "d", "userId": testUserID}),
		fileField("big.png", 2<<20))
	w, _ := e.do(t, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 0, e.blobs.uploads)
}

func TestHandler_GetPost(t *testing.T) {
	e := newTestEnv(t)
	created := e.createPost(t, fileField("photo.png", 10))

	w, env := e.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+created.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got PostResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Photos, got.Photos)
}

func TestHandler_GetPost_NotFound(t *testing.T) {
	e := newTestEnv(t)

	for _, id := range []string{"1fa11f11-1111-1111-b1fc-1c111f11afa1", "not-a-uuid"} {
		w, env := e.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+id, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, id)
		assert.Equal(t, ErrPostNotFound.Error(), env.Error)
	}
}

func TestHandler_ListPosts(t *testing.T) {
	e := newTestEnv(t)

	w, env := e.do(t, httptest.NewRequest(http.MethodGet, "/posts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", string(env.Data))

	e.createPost(t)
	e.createPost(t, fileField("a.png", 3))

	_, env = e.do(t, httptest.NewRequest(http.MethodGet, "/posts", nil))
	var posts []PostResponse
	require.NoError(t, json.Unmarshal(env.Data, &posts))
	assert.Len(t, posts, 2)
}

func TestHandler_UpdatePost(t *testing.T) {
	e := newTestEnv(t)
	created := e.createPost(t, fileField("a.png", 3))

	req := multipartRequest(t, http.MethodPut, "/posts/"+created.ID,
		dataField(map[string]string{"title": "New", "description": "Desc"}),
		fileField("b.jpeg", 3))
	w, env := e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, env.Error)

	var got PostResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, testUserID, got.UserID)
	assert.Len(t, got.Photos, 2)
}

func TestHandler_UpdatePost_EmptyUnnamedFileKeepsPhotos(t *testing.T) {
	e := newTestEnv(t)
	created := e.createPost(t, fileField("a.png", 3))
	uploadsBefore := e.blobs.uploads

	req := multipartRequest(t, http.MethodPut, "/posts/"+created.ID,
		dataField(map[string]string{"title": "New", "description": "Desc"}),
		part{field: "files", asFile: true})
	w, env := e.do(t, req)
	require.Equal(t, http.StatusOK, w.Code, env.Error)

	var got PostResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, created.Photos, got.Photos)
	assert.Equal(t, uploadsBefore, e.blobs.uploads)
}

func TestHandler_UpdatePost_NotFound(t *testing.T) {
	e := newTestEnv(t)

	req := multipartRequest(t, http.MethodPut, "/posts/1fa11f11-1111-1111-b1fc-1c111f11afa1",
		dataField(map[string]string{"title": "New", "description": "Desc"}))
	w, _ := e.do(t, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_DeletePost(t *testing.T) {
	e := newTestEnv(t)
	created := e.createPost(t, fileField("a.png", 3))

	w, _ := e.do(t, httptest.NewRequest(http.MethodDelete, "/posts/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, e.blobs.keys())

	w, _ = e.do(t, httptest.NewRequest(http.MethodDelete, "/posts/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_AddPhotos(t *testing.T) {
	e := newTestEnv(t)
	created := e.createPost(t)

	w, env := e.do(t, multipartRequest(t, http.MethodPost, "/posts/"+created.ID+"/photos",
		fileField("a.png", 3), fileField("b.png", 3)))
	require.Equal(t, http.StatusCreated, w.Code, env.Error)

	var photos []PhotoResponse
	require.NoError(t, json.Unmarshal(env.Data, &photos))
	assert.Len(t, photos, 2)

	w, env = e.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+created.ID+"/photos", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listed []PhotoResponse
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Equal(t, photos, listed)
}

func TestHandler_AddPhotos_EmptyFile(t *testing.T) {
	e := newTestEnv(t)
	created := e.createPost(t)

	w, env := e.do(t, multipartRequest(t, http.MethodPost, "/posts/"+created.ID+"/photos",
		fileField("a.png", 3), fileField("b.png", 0)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Error, ErrEmptyFile.Error())
	assert.Equal(t, 0, e.blobs.uploads)
}

func TestHandler_AddPhotos_NoFiles(t *testing.T) {
	e := newTestEnv(t)
	created := e.createPost(t)

	w, _ := e.do(t, multipartRequest(t, http.MethodPost, "/posts/"+created.ID+"/photos",
		part{field: "other", content: []byte("x")}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Photo(t *testing.T) {
	e := newTestEnv(t)
	created := e.createPost(t, fileField("a.png", 7))
	other := e.createPost(t)
	photoID := created.Photos[0].ID

	w, env := e.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+created.ID+"/photos/"+photoID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var ph PhotoResponse
	require.NoError(t, json.Unmarshal(env.Data, &ph))
	assert.Equal(t, created.Photos[0], ph)

	w, env = e.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+other.ID+"/photos/"+photoID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrPhotoNotFound.Error(), env.Error)

	w, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/posts/"+created.ID+"/photos/"+photoID+"/content", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, 7, w.Body.Len())

	w, _ = e.do(t, httptest.NewRequest(http.MethodDelete, "/posts/"+other.ID+"/photos/"+photoID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(t, httptest.NewRequest(http.MethodDelete, "/posts/"+created.ID+"/photos/"+photoID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, e.blobs.keys())
}

func TestHandler_StoreFailureIsInternalError(t *testing.T) {
	e := newTestEnv(t)
	e.store.createErr = errBoom

	w, env := e.do(t, multipartRequest(t, http.MethodPost, "/posts",
		dataField(map[string]string{"title": "t", "description": "d", "userId": testUserID}),
		fileField("a.png", 3)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", env.Error)
	assert.Empty(t, e.blobs.keys())
}
