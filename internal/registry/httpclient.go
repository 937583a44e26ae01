package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	urlpkg "net/url"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// httpClient is a thin convenience wrapper over http.Client consolidating
// the content-negotiation bookkeeping every registry call needs.
type httpClient struct {
	client http.Client
}

func newHTTPClient(transport http.RoundTripper) *httpClient {
	return &httpClient{client: http.Client{Transport: transport}}
}

// get returns the response body and the stripped media type of the
// Content-Type header. notFoundCode is returned, wrapped in an *apperr.Error,
// when the server answers 404.
func (h *httpClient) get(ctx context.Context, url string, header http.Header, notFoundCode apperr.Code) (io.ReadCloser, string, error) {
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.CodeRegNetworkError, err, "invalid registry URL")
	}

	hdr := http.Header{}
	if len(header) > 0 {
		hdr = header.Clone()
	}
	req := &http.Request{Method: http.MethodGet, URL: u, Header: hdr}
	res, err := h.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, "", apperr.Wrap(apperr.CodeRegNetworkError, err, "registry request failed")
	}

	if res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return nil, "", apperr.Newf(notFoundCode, "%s returned 404", url)
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, "", apperr.Newf(apperr.CodeRegNetworkError, "%s returned status %d", url, res.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(res.Header.Get("Content-Type"))
	return res.Body, mediaType, nil
}

func (h *httpClient) getJSON(ctx context.Context, url, accept string, notFoundCode apperr.Code, v interface{}) error {
	header := http.Header{}
	if accept != "" {
		header.Add("Accept", accept)
	}
	body, _, err := h.get(ctx, url, header, notFoundCode)
	if err != nil {
		return err
	}
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		return apperr.Wrap(apperr.CodeRegNetworkError, err, "failed reading registry response")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return apperr.Wrap(apperr.CodeRegNetworkError, err, fmt.Sprintf("failed unmarshalling response from %s", url))
	}
	return nil
}
