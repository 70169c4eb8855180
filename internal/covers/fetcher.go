package covers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quartoworks/shelfmark/pkg/constants"
	"github.com/quartoworks/shelfmark/pkg/errors"
)

// Image hosts reject clients without a browser-looking agent.
const browserUA = "Mozilla/5.0"

// Fetcher downloads and validates cover images.
type Fetcher struct {
	http *resty.Client
}

// NewFetcher creates an image fetcher. A non-positive timeout falls back to
// constants.ImageHTTPTimeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = constants.ImageHTTPTimeout
	}
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", browserUA)
	return &Fetcher{http: client}
}

// ValidateImageURL reports whether the URL actually serves an image. A
// cheap HEAD goes first; hosts that reject HEAD (403/405) or hide the
// content type get one GET, with a sniff of the leading bytes as the last
// word.
func (f *Fetcher) ValidateImageURL(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}

	res, err := f.http.R().SetContext(ctx).Head(url)
	if err != nil {
		return false
	}
	code := res.StatusCode()
	if code != http.StatusForbidden && code != http.StatusMethodNotAllowed {
		if res.IsError() {
			return false
		}
		if imageContentType(res.Header().Get("Content-Type")) {
			return true
		}
	}

	res, err = f.http.R().SetContext(ctx).Get(url)
	if err != nil || res.IsError() {
		return false
	}
	if imageContentType(res.Header().Get("Content-Type")) {
		return true
	}
	return sniffImage(res.Body())
}

// DownloadDataURI fetches an image and returns it as a data URI, compressed
// down to the note size budget when the raw bytes would blow it.
func (f *Fetcher) DownloadDataURI(ctx context.Context, url string) (string, error) {
	res, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", &errors.APIError{Service: "imagehost", Endpoint: url, Message: "cover download failed", Err: err}
	}
	if res.IsError() {
		return "", &errors.APIError{Service: "imagehost", Endpoint: url, StatusCode: res.StatusCode(), Message: res.Status()}
	}

	data := res.Body()
	contentType := res.Header().Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	if base64.StdEncoding.EncodedLen(len(data)) > constants.MaxCoverB64Size {
		data, contentType, err = Compress(data)
		if err != nil {
			return "", err
		}
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func imageContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "image")
}

// sniffImage checks the leading bytes for an image signature.
func sniffImage(body []byte) bool {
	if len(body) == 0 {
		return false
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.HasPrefix(http.DetectContentType(body), "image/")
}
