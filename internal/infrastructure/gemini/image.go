package gemini

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/seo401b/new-Allert/internal/domain"
)

const (
	defaultMaxDimension = 1024
	defaultJPEGQuality  = 85
)

// ImageOptions controls how images are shrunk before they are sent to the model
type ImageOptions struct {
	MaxDimension int
	JPEGQuality  int
}

// ImagePreparer detects the media type of raw image bytes and downsizes large images
type ImagePreparer struct {
	maxDimension int
	jpegQuality  int
}

// NewImagePreparer creates an image preparer
func NewImagePreparer(opts ImageOptions) *ImagePreparer {
	p := &ImagePreparer{maxDimension: opts.MaxDimension, jpegQuality: opts.JPEGQuality}
	if p.maxDimension <= 0 {
		p.maxDimension = defaultMaxDimension
	}
	if p.jpegQuality <= 0 || p.jpegQuality > 100 {
		p.jpegQuality = defaultJPEGQuality
	}
	return p
}

// Prepare returns data as a SourceImage, re-encoded as JPEG when either side exceeds
// the maximum dimension. Formats the decoder does not understand pass through untouched.
func (p *ImagePreparer) Prepare(data []byte) (domain.SourceImage, error) {
	if len(data) == 0 {
		return domain.SourceImage{}, fmt.Errorf("%w: empty image", domain.ErrInvalidRequest)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return domain.SourceImage{}, fmt.Errorf("%w: unsupported media type %s", domain.ErrInvalidRequest, mtype.String())
	}
	original := domain.SourceImage{Data: data, MIMEType: mtype.String()}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return original, nil
	}
	if cfg.Width <= p.maxDimension && cfg.Height <= p.maxDimension {
		return original, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return original, nil
	}
	resized := imaging.Fit(img, p.maxDimension, p.maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(p.jpegQuality)); err != nil {
		return domain.SourceImage{}, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return domain.SourceImage{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}
