package drive

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

const permissionFields = "id,role,type,emailAddress,domain,allowFileDiscovery,displayName"

// ListPermissions fetches all grants on a file or shared drive, following
// pagination to exhaustion.
func (c *Client) ListPermissions(ctx context.Context, fileID string) ([]Permission, error) {
	params := url.Values{
		"supportsAllDrives": {"true"},
		"fields":            {"permissions(" + permissionFields + "),nextPageToken"},
	}

	var perms []Permission

	for {
		var page struct {
			Permissions   []Permission `json:"permissions"`
			NextPageToken string       `json:"nextPageToken"`
		}

		if err := c.getJSON(ctx, "/files/"+fileID+"/permissions", params, &page); err != nil {
			return nil, err
		}

		perms = append(perms, page.Permissions...)

		if page.NextPageToken == "" {
			return perms, nil
		}

		params.Set("pageToken", page.NextPageToken)
	}
}

// CreatePermission grants access to a file. notify controls whether the
// grantee receives a notification email.
func (c *Client) CreatePermission(ctx context.Context, fileID string, perm Permission, notify bool) (*Permission, error) {
	params := url.Values{
		"supportsAllDrives":     {"true"},
		"sendNotificationEmail": {strconv.FormatBool(notify)},
	}

	var out Permission
	if err := c.sendJSON(ctx, http.MethodPost, "/files/"+fileID+"/permissions", params, perm, &out); err != nil {
		return nil, err
	}

	c.logger.Info("created permission",
		slog.String("file_id", fileID),
		slog.String("permission_id", out.ID),
		slog.String("role", out.Role),
	)

	return &out, nil
}

// UpdatePermission changes the role on an existing grant.
func (c *Client) UpdatePermission(ctx context.Context, fileID, permissionID, role string) (*Permission, error) {
	params := url.Values{"supportsAllDrives": {"true"}}
	body := map[string]string{"role": role}

	var out Permission
	if err := c.sendJSON(ctx, http.MethodPatch, "/files/"+fileID+"/permissions/"+permissionID, params, body, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// DeletePermission revokes a grant.
func (c *Client) DeletePermission(ctx context.Context, fileID, permissionID string) error {
	params := url.Values{"supportsAllDrives": {"true"}}

	if err := c.sendJSON(ctx, http.MethodDelete, "/files/"+fileID+"/permissions/"+permissionID, params, nil, nil); err != nil {
		return err
	}

	c.logger.Info("deleted permission",
		slog.String("file_id", fileID),
		slog.String("permission_id", permissionID),
	)

	return nil
}
