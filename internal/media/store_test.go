package media

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		kind     Kind
		filename string
		wantPref string
		wantExt  string
	}{
		{"image with extension", KindImage, "photo.JPG", "image/2024/03/09/", ".jpg"},
		{"audio", KindAudio, "note.webm", "audio/2024/03/09/", ".webm"},
		{"no extension", KindImage, "blob", "image/2024/03/09/", ""},
		{"path components are stripped", KindImage, "../../etc/passwd.png", "image/2024/03/09/", ".png"},
		{"windows path", KindImage, `C:\Users\me\pic.png`, "image/2024/03/09/", ".png"},
		{"absurd extension is dropped", KindImage, "x.aaaaaaaaaaaaaaa", "image/2024/03/09/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ObjectKey(tt.kind, tt.filename, now)

			require.True(t, strings.HasPrefix(key, tt.wantPref), key)
			name := strings.TrimPrefix(key, tt.wantPref)
			assert.True(t, strings.HasSuffix(name, tt.wantExt))
			_, err := uuid.Parse(strings.TrimSuffix(name, tt.wantExt))
			assert.NoError(t, err)
		})
	}
}

func TestObjectKey_Unique(t *testing.T) {
	now := time.Now()
	assert.NotEqual(t, ObjectKey(KindImage, "a.png", now), ObjectKey(KindImage, "a.png", now))
}

func TestDisabled_Put(t *testing.T) {
	url, err := Disabled{}.Put(context.Background(), Object{Kind: KindImage})

	assert.ErrorIs(t, err, ErrStorageDisabled)
	assert.Empty(t, url)
}

func TestPublicBaseURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit", Config{PublicBaseURL: "https://cdn.example.com/media/"}, "https://cdn.example.com/media"},
		{"derived http", Config{Endpoint: "minio:9000", Bucket: "b"}, "http://minio:9000/b"},
		{"derived https", Config{Endpoint: "s3.local", Bucket: "b", UseSSL: true}, "https://s3.local/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicBaseURL(tt.cfg))
		})
	}
}
