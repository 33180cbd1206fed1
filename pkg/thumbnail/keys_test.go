package thumbnail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveThumbnailKey(t *testing.T) {
	tests := []struct {
		video string
		want  string
	}{
		{"videos/trips/2024/beach.MOV", "thumbnails/trips/2024/beach.jpg"},
		{"videos/a.mp4", "thumbnails/a.jpg"},
		{"videos/nested/clip.tar.mp4", "thumbnails/nested/clip.tar.jpg"},
		{"videos/noext", "thumbnails/noext.jpg"},
		{"videos/dir/.mp4", "thumbnails/dir/.mp4.jpg"},
		{"/videos//x/../y.webm", "thumbnails/y.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.video, func(t *testing.T) {
			got := ResolveThumbnailKey(tt.video)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, ResolveThumbnailKey(tt.video), "must be deterministic")
		})
	}
}

func TestIsVideoKey(t *testing.T) {
	assert.True(t, IsVideoKey("videos/a.mp4"))
	assert.True(t, IsVideoKey("videos/x/y/z.mov"))
	assert.False(t, IsVideoKey("videos"))
	assert.False(t, IsVideoKey("videos/"))
	assert.False(t, IsVideoKey("thumbnails/a.jpg"))
	assert.False(t, IsVideoKey("videos/../etc/passwd"))
	assert.False(t, IsVideoKey("videosx/a.mp4"))
}

func TestFolderOf(t *testing.T) {
	assert.Equal(t, "videos/trip", FolderOf("videos/trip/a.mp4"))
	assert.Equal(t, "videos", FolderOf("videos/a.mp4"))
	assert.True(t, InFolder("videos/trip/a.mp4", "videos/trip/"))
	assert.False(t, InFolder("videos/trip/sub/a.mp4", "videos/trip"))
}

func TestPrefixLength(t *testing.T) {
	assert.Equal(t, int64(100), PrefixLength(100, 1000))
	assert.Equal(t, int64(1000), PrefixLength(3<<30, 1000))
	assert.Equal(t, int64(3<<30), PrefixLength(3<<30, 0))
	assert.Equal(t, int64(0), PrefixLength(0, 1000))
}
