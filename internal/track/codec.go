package track

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

// Mask raster palette. Road is gray, grass a visually distinct green, so
// editors and the display layer can use the encoded image directly.
var (
	roadColor  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xFF}
	grassColor = color.RGBA{R: 0x4C, G: 0xAF, B: 0x50, A: 0xFF}
)

// EncodeMask serializes a row-major grass mask to PNG bytes. The round trip
// through DecodeMask is lossless for any boolean mask.
func EncodeMask(mask []bool, width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if mask[y*width+x] {
				img.SetRGBA(x, y, grassColor)
			} else {
				img.SetRGBA(x, y, roadColor)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMask turns PNG bytes back into a grass mask of the requested size.
// A pixel closer to the grass reference color than to the road reference
// decodes as grass, which tolerates minor recompression noise. Corrupt or
// foreign data never fails: it degrades to an all-grass mask so an agent
// born onto a bad track dies immediately instead of the system crashing.
// If the image dimensions differ from the requested size, the overlapping
// region is used and the remainder is grass.
func DecodeMask(data []byte, width, height int) []bool {
	mask := make([]bool, width*height)
	for i := range mask {
		mask[i] = true
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return mask
	}

	bounds := img.Bounds()
	w := bounds.Dx()
	if w > width {
		w = width
	}
	h := bounds.Dy()
	if h > height {
		h = height
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			mask[y*width+x] = closerToGrass(c)
		}
	}
	return mask
}

func closerToGrass(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	// RGBA returns 16-bit channels; scale the 8-bit references to match.
	dg := colorDistSq(r, g, b, grassColor)
	dr := colorDistSq(r, g, b, roadColor)
	return dg < dr
}

func colorDistSq(r, g, b uint32, ref color.RGBA) int64 {
	dr := int64(r>>8) - int64(ref.R)
	dg := int64(g>>8) - int64(ref.G)
	db := int64(b>>8) - int64(ref.B)
	return dr*dr + dg*dg + db*db
}
