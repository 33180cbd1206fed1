package api

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/tendant/simple-thumbnail/pkg/thumbnail"
)

const (
	placeholderWidth  = thumbnail.DefaultFrameWidth
	placeholderHeight = placeholderWidth * 9 / 16
)

var placeholderJPEG = sync.OnceValues(renderPlaceholder)

// renderPlaceholder draws a neutral still with a play triangle
func renderPlaceholder() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	bg := color.RGBA{R: 0x2b, G: 0x2f, B: 0x36, A: 0xff}
	fg := color.RGBA{R: 0xc8, G: 0xcc, B: 0xd2, A: 0xff}

	cx, cy := placeholderWidth/2, placeholderHeight/2
	size := placeholderHeight / 4
	for y := 0; y < placeholderHeight; y++ {
		for x := 0; x < placeholderWidth; x++ {
			img.Set(x, y, bg)
			dx, dy := x-(cx-size/2), y-cy
			if dx >= 0 && dx <= size && abs(dy)*2 <= size-dx {
				img.Set(x, y, fg)
			}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// PlaceholderHandler serves the generic still handed out when generation is
// exhausted. It needs no credential so clients can fetch it like any
// signed thumbnail URL.
func PlaceholderHandler() http.Handler {
	start := time.Now()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data, err := placeholderJPEG()
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", thumbnail.ThumbnailContentType)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		http.ServeContent(w, r, "placeholder.jpg", start, bytes.NewReader(data))
	})
}
