package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// DecodeImage decodes JPEG, PNG or GIF bytes. Anything else, including an
// image with an empty bounding box, is ErrDecode.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	return img, nil
}

// Normalization constants for the two models: (pixel - mean) / std.
var (
	detNorm   = norm{mean: 127.5, std: 128.0}
	embedNorm = norm{mean: 127.5, std: 127.5}
)

type norm struct{ mean, std float32 }

// toCHW resizes img to size x size (nearest neighbour) and lays it out
// planar RGB for the models.
func toCHW(img image.Image, size int, n norm) []float32 {
	src := toRGBA(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := size * size
	out := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		sy := b.Min.Y + y*h/size
		for x := 0; x < size; x++ {
			sx := b.Min.X + x*w/size
			off := src.PixOffset(sx, sy)
			i := y*size + x
			out[i] = (float32(src.Pix[off]) - n.mean) / n.std
			out[plane+i] = (float32(src.Pix[off+1]) - n.mean) / n.std
			out[2*plane+i] = (float32(src.Pix[off+2]) - n.mean) / n.std
		}
	}
	return out
}

// cropFace cuts the box out of img with 10% padding per side, clamped to
// the image. It returns nil for a degenerate box.
func cropFace(img image.Image, box Box) image.Image {
	b := img.Bounds()
	padX := int(box.Width() * 0.1)
	padY := int(box.Height() * 0.1)
	r := image.Rect(
		int(box.X1)-padX, int(box.Y1)-padY,
		int(box.X2)+padX, int(box.Y2)+padY,
	).Add(b.Min).Intersect(b)
	if box.area() == 0 || r.Empty() {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}
