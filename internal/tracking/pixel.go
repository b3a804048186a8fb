package tracking

import (
	"bytes"
	"image"
	"image/png"
)

// Pixel is the 1x1 transparent PNG served by the open-tracking endpoint.
// Encoded once at init so the handler never allocates per request.
var Pixel = func() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()
