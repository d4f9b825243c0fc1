package storage

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// MIMEOctetStream is the content type of blobs whose type is unknown.
const MIMEOctetStream = "application/octet-stream"

// sniffBytes is the prefix length http.DetectContentType looks at.
const sniffBytes = 512

// Class groups content types that are served the same way.
type Class string

const (
	ClassImage    Class = "image"
	ClassDocument Class = "document"
	ClassVideo    Class = "video"
	ClassAudio    Class = "audio"
	ClassOther    Class = "other"
)

var documentTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/rtf":  {},
	"text/plain":       {},
	"text/csv":         {},
	"text/markdown":    {},
	"application/json": {},
}

// Extensions the mime package does not know on every platform.
var extensionTypes = map[string]string{
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".md":   "text/markdown",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// TypeByName returns the content type for a file name based on its extension,
// or an empty string when the extension is unknown.
func TypeByName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return normalizeMIME(mime.TypeByExtension(ext))
}

// Sniff detects the content type from the first bytes of a blob.
func Sniff(data []byte) string {
	if len(data) == 0 {
		return MIMEOctetStream
	}
	if len(data) > sniffBytes {
		data = data[:sniffBytes]
	}
	return normalizeMIME(http.DetectContentType(data))
}

// ClassOf returns the class of a content type.
func ClassOf(contentType string) Class {
	ct := normalizeMIME(contentType)
	if _, ok := documentTypes[ct]; ok {
		return ClassDocument
	}

	major, _, _ := strings.Cut(ct, "/")
	switch major {
	case "image":
		return ClassImage
	case "video":
		return ClassVideo
	case "audio":
		return ClassAudio
	}
	return ClassOther
}

// normalizeMIME strips parameters like charset and lowercases the type.
func normalizeMIME(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.TrimSpace(strings.ToLower(mimeType))
}
