package post

import (
	"fmt"
	"strings"
)

// AllowedFormats lists the accepted photo extensions.
var AllowedFormats = []string{"PNG", "JPEG", "JPG"}

// ValidateFile accepts a non-empty file whose extension is in AllowedFormats.
func ValidateFile(u Upload) error {
	if u.Size == 0 {
		return fmt.Errorf("%w: %q", ErrEmptyFile, u.Filename)
	}
	if !isAllowedFormat(u.Filename) {
		return fmt.Errorf("%w %q, allowed formats: %s", ErrInvalidFormat, u.Filename, strings.Join(AllowedFormats, ", "))
	}
	return nil
}

// ValidateUploads validates every file, stopping at the first failure.
func ValidateUploads(uploads []Upload) error {
	for _, u := range uploads {
		if err := ValidateFile(u); err != nil {
			return err
		}
	}
	return nil
}

// IsNoAttachment reports whether uploads is the single empty, unnamed part a
// form sends when no file was chosen.
func IsNoAttachment(uploads []Upload) bool {
	return len(uploads) == 1 && uploads[0].Size == 0 && uploads[0].Filename == ""
}

// HasEmptyFile reports whether any of uploads is empty.
func HasEmptyFile(uploads []Upload) bool {
	for _, u := range uploads {
		if u.Size == 0 {
			return true
		}
	}
	return false
}

func isAllowedFormat(filename string) bool {
	// Without a dot the whole name is taken as the extension.
	ext := filename[strings.LastIndex(filename, ".")+1:]
	for _, format := range AllowedFormats {
		if strings.EqualFold(ext, format) {
			return true
		}
	}
	return false
}
