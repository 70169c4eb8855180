package covers

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
)

// coverScales shrinks the image progressively once the quality ladder alone
// cannot meet the budget.
var coverScales = []float64{0.75, 0.5, 0.25}

// Compress re-encodes an image as JPEG so its base64 form fits the note
// size budget. Images wider than the cover maximum are scaled down first,
// then the JPEG quality ladder is walked, then the image itself is shrunk.
func Compress(data []byte) ([]byte, string, error) {
	return compressTo(data, constants.MaxCoverB64Size, constants.MaxCoverWidth)
}

func compressTo(data []byte, maxB64, maxWidth int) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.WrapParse("image", "cover", err)
	}

	if img.Bounds().Dx() > maxWidth {
		img = resize.Resize(uint(maxWidth), 0, img, resize.Lanczos3)
	}

	var out []byte
	for quality := constants.CoverJPEGQuality; quality >= constants.MinCoverJPEGQuality; quality -= constants.CoverQualityStep {
		out, err = encodeJPEG(img, quality)
		if err != nil {
			return nil, "", err
		}
		if base64.StdEncoding.EncodedLen(len(out)) <= maxB64 {
			return out, "image/jpeg", nil
		}
	}

	for _, scale := range coverScales {
		width := uint(float64(img.Bounds().Dx()) * scale)
		scaled := resize.Resize(width, 0, img, resize.Lanczos3)
		out, err = encodeJPEG(scaled, constants.CoverScaleQuality)
		if err != nil {
			return nil, "", err
		}
		if base64.StdEncoding.EncodedLen(len(out)) <= maxB64 {
			return out, "image/jpeg", nil
		}
	}

	// Smallest rendition still misses the budget; hand it back anyway.
	return out, "image/jpeg", nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
