package imaging

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"mime"

	_ "image/jpeg"
	_ "image/png"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

var (
	// decoder format name registered by image/jpeg and image/png
	formatByContentType = map[string]string{
		ContentTypeJPEG: "jpeg",
		ContentTypePNG:  "png",
	}

	imageSignatures = map[string][]byte{
		ContentTypeJPEG: {0xFF, 0xD8, 0xFF},
		ContentTypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	}
)

// Validator accepts only structurally valid JPEG and PNG payloads whose bytes
// match the declared content type.
type Validator struct {
	maxBytes int64
}

func NewValidator(maxBytes int64) *Validator {
	return &Validator{maxBytes: maxBytes}
}

// NormalizeContentType lower-cases the media type, drops parameters and maps
// the image/jpg alias. The result is empty when the value does not parse.
func NormalizeContentType(declared string) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return ""
	}
	if mediaType == "image/jpg" || mediaType == "image/pjpeg" {
		return ContentTypeJPEG
	}
	return mediaType
}

// Validate decodes the whole payload and rewinds src so the next reader sees
// the same bytes. It returns the normalized content type.
func (v *Validator) Validate(src io.ReadSeeker, declared string) (string, error) {
	const op = "imaging.Validate"

	contentType := NormalizeContentType(declared)
	format, ok := formatByContentType[contentType]
	if !ok {
		return "", app.NewError(app.KindInvalidImage, op,
			fmt.Sprintf("unsupported content type %q, only image/jpeg and image/png are accepted", declared))
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", app.WrapError(app.KindInvalidImage, op, "can not read image", err)
	}
	reader := io.Reader(src)
	if v.maxBytes > 0 {
		reader = io.LimitReader(src, v.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", app.WrapError(app.KindInvalidImage, op, "can not read image", err)
	}
	if len(data) == 0 {
		return "", app.NewError(app.KindInvalidImage, op, "empty image payload")
	}
	if v.maxBytes > 0 && int64(len(data)) > v.maxBytes {
		return "", app.NewError(app.KindInvalidImage, op,
			fmt.Sprintf("image exceeds the %d byte limit", v.maxBytes))
	}
	if !bytes.HasPrefix(data, imageSignatures[contentType]) {
		return "", app.NewError(app.KindInvalidImage, op, "image content does not match its declared type")
	}

	_, decoded, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", app.WrapError(app.KindInvalidImage, op, "image is corrupt or truncated", err)
	}
	if decoded != format {
		return "", app.NewError(app.KindInvalidImage, op, "image content does not match its declared type")
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", app.WrapError(app.KindInvalidImage, op, "can not rewind image", err)
	}
	return contentType, nil
}

// Extension is the file extension used for staged files and object keys.
func Extension(contentType string) string {
	if contentType == ContentTypePNG {
		return "png"
	}
	return "jpg"
}
