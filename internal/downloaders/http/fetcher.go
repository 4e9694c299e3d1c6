package pfhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tanq16/parafetch/internal/utils"
)

// Fetcher serves http and https URLs.
type Fetcher struct {
	client *utils.HTTPClient
}

func NewFetcher(cfg utils.HTTPClientConfig) *Fetcher {
	return &Fetcher{client: utils.NewHTTPClient(cfg)}
}

// Probe sends a HEAD request. A missing Content-Length gives size -1.
func (f *Fetcher) Probe(ctx context.Context, link string) (utils.ProbeResult, error) {
	log := utils.GetLogger("http")
	req, err := f.client.NewRequest(ctx, http.MethodHead, link)
	if err != nil {
		return utils.ProbeResult{}, fmt.Errorf("error creating HEAD request: %v", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return utils.ProbeResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return utils.ProbeResult{}, fmt.Errorf("URL not found (404)")
	}
	if resp.StatusCode >= 400 {
		return utils.ProbeResult{}, fmt.Errorf("server returned error: %d", resp.StatusCode)
	}
	result := utils.ProbeResult{
		Size:           contentLength(resp),
		RangeSupported: acceptsByteRanges(resp.Header.Get("Accept-Ranges")),
	}
	log.Debug().Str("url", link).Int64("size", result.Size).Bool("ranges", result.RangeSupported).Msg("HEAD response")
	return result, nil
}

func (f *Fetcher) Open(ctx context.Context, link string) (io.ReadCloser, error) {
	req, err := f.client.NewRequest(ctx, http.MethodGet, link)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// OpenRange fails unless the server answers 206 with a Content-Range.
func (f *Fetcher) OpenRange(ctx context.Context, link string, start, end int64) (io.ReadCloser, error) {
	req, err := f.client.NewRequest(ctx, http.MethodGet, link)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	req.Header.Set("Connection", "keep-alive")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		resp.Body.Close()
		return nil, utils.ErrRangeRequestsNotSupported
	}
	if resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Range") == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("missing Content-Range header")
	}
	return resp.Body, nil
}

func contentLength(resp *http.Response) int64 {
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	if size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil && size >= 0 {
		return size
	}
	return -1
}

func acceptsByteRanges(header string) bool {
	for _, unit := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(unit), "bytes") {
			return true
		}
	}
	return false
}
