package thumbnail

import (
	"path"
	"strings"
)

const (
	// VideosRoot is the top-level prefix of source videos
	VideosRoot = "videos"
	// ThumbnailsRoot is the top-level prefix of generated stills
	ThumbnailsRoot = "thumbnails"
	// ThumbnailExt is the extension of every generated still
	ThumbnailExt = ".jpg"
	// ThumbnailContentType is the MIME type of generated stills
	ThumbnailContentType = "image/jpeg"
)

// ResolveThumbnailKey maps a video key to its thumbnail key:
//
//	videos/trips/2024/beach.MOV -> thumbnails/trips/2024/beach.jpg
//
// The relative path is preserved and the extension is normalized.
func ResolveThumbnailKey(videoKey string) string {
	rel := relativeToVideos(videoKey)
	ext := path.Ext(rel)
	base := strings.TrimSuffix(rel, ext)
	if base == "" || strings.HasSuffix(base, "/") {
		// dotfile such as ".mp4"; keep the name rather than produce "thumbnails/.jpg"
		base = rel
	}
	return ThumbnailsRoot + "/" + base + ThumbnailExt
}

// ThumbnailRef returns the derived thumbnail reference for a video.
func ThumbnailRef(video VideoObjectRef) ThumbnailObjectRef {
	return ThumbnailObjectRef{Key: ResolveThumbnailKey(video.Key)}
}

// IsVideoKey reports whether key names an object under the videos root.
func IsVideoKey(key string) bool {
	clean := path.Clean("/" + key)
	return strings.HasPrefix(clean, "/"+VideosRoot+"/") && path.Base(clean) != VideosRoot
}

// FolderOf returns the folder that owns a video key.
func FolderOf(videoKey string) string {
	return path.Dir(path.Clean(videoKey))
}

// InFolder reports whether key sits directly inside folder.
func InFolder(key, folder string) bool {
	return FolderOf(key) == path.Clean(folder)
}

func relativeToVideos(key string) string {
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	return strings.TrimPrefix(clean, VideosRoot+"/")
}
