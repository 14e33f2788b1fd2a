package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Page size bounds enforced by the Drive API.
const (
	minPageSize       = 1
	maxFilesPageSize  = 1000
	maxDrivesPageSize = 100
)

// fileFields is the field projection requested on file metadata.
const fileFields = "id,name,mimeType,modifiedTime,ownedByMe,parents,size,webViewLink,iconLink,md5Checksum"

// ListFilesOptions narrows a files listing.
type ListFilesOptions struct {
	PageSize  int
	PageToken string
	Query     string
	Corpora   string
	DriveID   string
	// NoFolders excludes folders from the listing.
	NoFolders bool
}

// ListFiles fetches one page of files. Shared-drive items are included by
// default; passing a DriveID scopes the listing to that drive.
func (c *Client) ListFiles(ctx context.Context, opts ListFilesOptions) (*FileList, error) {
	params := url.Values{
		"pageSize": {strconv.Itoa(clampPageSize(opts.PageSize, maxFilesPageSize))},
		"fields":   {fmt.Sprintf("files(%s),nextPageToken", fileFields)},
	}

	if opts.PageToken != "" {
		params.Set("pageToken", opts.PageToken)
	}

	query := opts.Query
	if opts.NoFolders {
		query = "mimeType!='" + folderMimeType + "'"
		if opts.Query != "" {
			query += " and " + opts.Query
		}
	}

	if query != "" {
		params.Set("q", query)
	}

	corpora := opts.Corpora
	if opts.DriveID != "" && corpora == "" {
		corpora = "drive"
	}

	if corpora != "" {
		params.Set("corpora", corpora)
	}

	if opts.DriveID != "" {
		params.Set("driveId", opts.DriveID)
	}

	params.Set("supportsAllDrives", "true")
	params.Set("includeItemsFromAllDrives", "true")

	var list FileList
	if err := c.getJSON(ctx, "/files", params, &list); err != nil {
		return nil, err
	}

	c.logger.Debug("listed files",
		slog.Int("count", len(list.Files)),
		slog.Bool("has_more", list.HasMore()),
	)

	return &list, nil
}

// GetFile fetches metadata for one file.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	params := url.Values{
		"supportsAllDrives": {"true"},
		"fields":            {fileFields},
	}

	var f File
	if err := c.getJSON(ctx, "/files/"+fileID, params, &f); err != nil {
		return nil, err
	}

	return &f, nil
}

// CreateFolder creates a folder, optionally under the given parents.
func (c *Client) CreateFolder(ctx context.Context, name string, parents []string) (*File, error) {
	body := map[string]any{
		"name":     name,
		"mimeType": folderMimeType,
	}
	if len(parents) > 0 {
		body["parents"] = parents
	}

	var f File
	if err := c.sendJSON(ctx, http.MethodPost, "/files", nil, body, &f); err != nil {
		return nil, err
	}

	c.logger.Info("created folder",
		slog.String("name", name),
		slog.String("folder_id", f.ID),
	)

	return &f, nil
}

// UploadFile uploads file content with metadata in one multipart/related
// request. The whole payload is buffered; resumable uploads for very large
// files go through a different endpoint and are not implemented here.
func (c *Client) UploadFile(ctx context.Context, name, mimeType string, parents []string, media []byte) (*File, error) {
	metadata := map[string]any{"name": name}
	if len(parents) > 0 {
		metadata["parents"] = parents
	}

	body, contentType, err := buildMultipartRelated(metadata, mimeType, media)
	if err != nil {
		return nil, err
	}

	hdr := http.Header{"Content-Type": {contentType}}
	params := url.Values{"uploadType": {"multipart"}}

	resp, err := c.Do(ctx, http.MethodPost, c.uploadURL+"/files", params, body, hdr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var f File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("drive: decoding upload response: %w", err)
	}

	c.logger.Info("uploaded file",
		slog.String("name", name),
		slog.String("file_id", f.ID),
		slog.Int("bytes", len(media)),
	)

	return &f, nil
}

// buildMultipartRelated assembles the two-part body Drive expects for
// multipart uploads: a JSON metadata part followed by the media part.
func buildMultipartRelated(metadata map[string]any, mimeType string, media []byte) ([]byte, string, error) {
	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	metaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("drive: building upload metadata part: %w", err)
	}

	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return nil, "", fmt.Errorf("drive: encoding upload metadata: %w", err)
	}

	mediaPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeType},
	})
	if err != nil {
		return nil, "", fmt.Errorf("drive: building upload media part: %w", err)
	}

	if _, err := mediaPart.Write(media); err != nil {
		return nil, "", fmt.Errorf("drive: writing upload media: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("drive: finalizing upload body: %w", err)
	}

	contentType := "multipart/related; boundary=" + w.Boundary()

	return buf.Bytes(), contentType, nil
}

func clampPageSize(size, max int) int {
	if size < minPageSize {
		return minPageSize
	}

	if size > max {
		return max
	}

	return size
}
