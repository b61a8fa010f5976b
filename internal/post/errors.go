package post

import "errors"

var (
	// ErrPostNotFound is returned when no post has the requested id.
	ErrPostNotFound = errors.New("post with the given id was not found")

	// ErrPhotoNotFound is returned when a photo id does not resolve under the given post.
	ErrPhotoNotFound = errors.New("photo was not found for the given post")

	// ErrEmptyFile is returned when a supplied file has no content.
	ErrEmptyFile = errors.New("empty files found in the file list")

	// ErrInvalidFormat is returned for files whose extension is not allowed.
	ErrInvalidFormat = errors.New("invalid file format")

	// ErrNoFiles is returned when an operation that needs files received none.
	ErrNoFiles = errors.New("no files supplied")

	// ErrFileRead is returned when an uploaded file cannot be read.
	ErrFileRead = errors.New("failed to read uploaded file")
)
