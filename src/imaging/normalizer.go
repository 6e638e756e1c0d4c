package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

const jpegQuality = 90

type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Downscale shrinks the staged image in place to fit within maxW x maxH,
// keeping the aspect ratio and the original format. Images that already fit
// are left untouched.
func (n *Normalizer) Downscale(asset *Asset, maxW, maxH int) error {
	const op = "imaging.Downscale"

	src, err := decodeFile(asset.Path)
	if err != nil {
		return app.WrapError(app.KindImageProcessingFailure, op, "can not decode staged image", err)
	}
	w, h := FitWithin(src.Bounds().Dx(), src.Bounds().Dy(), maxW, maxH)
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	size, err := encodeFile(asset.Path, dst, asset.ContentType)
	if err != nil {
		return app.WrapError(app.KindImageProcessingFailure, op, "can not encode resized image", err)
	}
	asset.Size = size
	return nil
}

// FitWithin returns the largest size not exceeding maxW x maxH with the
// aspect ratio of w x h. It never enlarges.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))
	return min(nw, maxW), min(nh, maxH)
}

func decodeFile(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	return img, err
}

// encodeFile writes next to path and renames over it so a failed encode never
// leaves a half written image behind.
func encodeFile(path string, img image.Image, contentType string) (int64, error) {
	tmp := path + ".resized"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	switch contentType {
	case ContentTypePNG:
		err = png.Encode(file, img)
	case ContentTypeJPEG:
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality})
	default:
		err = fmt.Errorf("unsupported content type %q", contentType)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	info, err := os.Stat(tmp)
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return info.Size(), nil
}
