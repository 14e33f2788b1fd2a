package drive

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ListSharedDrives fetches every shared drive visible to the account,
// following pagination to exhaustion.
func (c *Client) ListSharedDrives(ctx context.Context) ([]SharedDrive, error) {
	params := url.Values{
		"pageSize": {strconv.Itoa(maxDrivesPageSize)},
		"fields":   {"drives(id,name,createdTime),nextPageToken"},
	}

	var drives []SharedDrive

	for {
		var page struct {
			Drives        []SharedDrive `json:"drives"`
			NextPageToken string        `json:"nextPageToken"`
		}

		if err := c.getJSON(ctx, "/drives", params, &page); err != nil {
			return nil, err
		}

		drives = append(drives, page.Drives...)

		if page.NextPageToken == "" {
			return drives, nil
		}

		params.Set("pageToken", page.NextPageToken)
	}
}

// ResolveDriveByName finds a shared drive by its display name. Names are not
// unique on the server; the first match wins.
func (c *Client) ResolveDriveByName(ctx context.Context, name string) (*SharedDrive, error) {
	drives, err := c.ListSharedDrives(ctx)
	if err != nil {
		return nil, err
	}

	for i := range drives {
		if drives[i].Name == name {
			return &drives[i], nil
		}
	}

	return nil, fmt.Errorf("drive: shared drive %q: %w", name, ErrNotFound)
}
