package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

// sniffLen is how much of an upload is inspected to find its format
const sniffLen = 512

// DefaultContentType is served for stored objects that are not a known video format
const DefaultContentType = "application/octet-stream"

// ErrNotVideo is returned when an upload's content is not a supported video format
var ErrNotVideo = errors.New("content is not a supported video")

// videoExtensions maps accepted video formats to the extension stored in the key
var videoExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"video/avi":       ".avi",
}

// isoVideoBrands are ISO media major brands that http.DetectContentType does not report as video
var isoVideoBrands = map[string]string{
	"qt  ": "video/quicktime",
	"isom": "video/mp4",
	"iso2": "video/mp4",
	"avc1": "video/mp4",
	"M4V ": "video/mp4",
}

// DetectVideoType sniffs the first bytes of body and rewinds it. The declared
// type of an upload is never trusted.
func DetectVideoType(body io.ReadSeeker) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}
	head = head[:n]

	contentType, _, err := mime.ParseMediaType(http.DetectContentType(head))
	if err != nil {
		return "", ErrNotVideo
	}
	if _, ok := videoExtensions[contentType]; !ok && len(head) >= 12 && string(head[4:8]) == "ftyp" {
		if brand, ok := isoVideoBrands[string(head[8:12])]; ok {
			contentType = brand
		}
	}
	if _, ok := videoExtensions[contentType]; !ok {
		return "", ErrNotVideo
	}
	return contentType, nil
}

// ContentTypeForKey returns the video type of a stored key, or DefaultContentType
func ContentTypeForKey(key string) string {
	ext := strings.ToLower(path.Ext(key))
	for contentType, e := range videoExtensions {
		if e == ext {
			return contentType
		}
	}
	return DefaultContentType
}
