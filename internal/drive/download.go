package drive

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Download streams the content of a file. The caller must close the returned
// reader; the reported size is taken from Content-Length and may be -1 when
// the server does not send one.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, int64, error) {
	params := url.Values{
		"alt":               {"media"},
		"supportsAllDrives": {"true"},
	}

	resp, err := c.Do(ctx, http.MethodGet, "/files/"+fileID, params, nil, nil)
	if err != nil {
		return nil, 0, err
	}

	return resp.Body, resp.ContentLength, nil
}
