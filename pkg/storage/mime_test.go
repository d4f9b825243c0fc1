package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/homecloud/pkg/storage"
)

func TestTypeByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"cat.jpg", "image/jpeg"},
		{"CAT.PNG", "image/png"},
		{"notes.md", "text/markdown"},
		{"clip.mkv", "video/x-matroska"},
		{"report.pdf", "application/pdf"},
		{"README", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, storage.TypeByName(tt.name))
		})
	}
}

func TestSniff(t *testing.T) {
	t.Parallel()

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	require.Equal(t, "image/png", storage.Sniff(png))
	require.Equal(t, "text/plain", storage.Sniff([]byte("hello world")))
	require.Equal(t, storage.MIMEOctetStream, storage.Sniff(nil))
}

func TestClassOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        storage.Class
	}{
		{"image/jpeg", storage.ClassImage},
		{"video/mp4", storage.ClassVideo},
		{"audio/mpeg", storage.ClassAudio},
		{"application/pdf", storage.ClassDocument},
		{"text/plain; charset=utf-8", storage.ClassDocument},
		{"application/zip", storage.ClassOther},
		{"", storage.ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, storage.ClassOf(tt.contentType))
		})
	}
}
