package chat

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// imageMimeTypes lists accepted image extensions.
var imageMimeTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"heic": "image/heic",
	"heif": "image/heif",
}

// UserImageURL returns a user message referencing an external image.
func UserImageURL(url string) (Message, error) {
	ext := imageExtension(url)
	if _, ok := imageMimeTypes[ext]; !ok {
		return Message{}, fmt.Errorf("unsupported image extension %q", ext)
	}
	return UserParts(ImagePart(url)), nil
}

// UserImageFile reads a local image and embeds it as a base64 data URL.
func UserImageFile(path string) (Message, error) {
	ext := imageExtension(filepath.Base(path))
	mime, ok := imageMimeTypes[ext]
	if !ok {
		return Message{}, fmt.Errorf("unsupported image extension %q", ext)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Message{}, fmt.Errorf("read image %s: %w", path, err)
	}
	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(b)
	return UserParts(ImagePart(url)), nil
}

// imageExtension returns the lower-case extension with any query string removed.
func imageExtension(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i < 0 {
		return ""
	}
	ext := strings.ToLower(p[i+1:])
	if q := strings.IndexByte(ext, '?'); q >= 0 {
		ext = ext[:q]
	}
	return ext
}
