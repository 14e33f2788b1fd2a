package drive

import "time"

// File is one Drive file or folder. Fields are decoded straight from the
// Drive v3 JSON shapes; Size arrives as a decimal string on the wire.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	OwnedByMe    bool      `json:"ownedByMe"`
	Parents      []string  `json:"parents"`
	Size         int64     `json:"size,string"`
	WebViewLink  string    `json:"webViewLink"`
	IconLink     string    `json:"iconLink"`
	MD5Checksum  string    `json:"md5Checksum"`
}

// IsFolder reports whether the file is a Drive folder.
func (f *File) IsFolder() bool {
	return f.MimeType == folderMimeType
}

// FileList is one page of a files listing.
type FileList struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

// HasMore reports whether another page exists.
func (l *FileList) HasMore() bool {
	return l.NextPageToken != ""
}

// Change is one entry from the changes feed.
type Change struct {
	FileID     string    `json:"fileId"`
	Removed    bool      `json:"removed"`
	Time       time.Time `json:"time"`
	File       *File     `json:"file"`
	DriveID    string    `json:"driveId"`
	ChangeType string    `json:"changeType"`
}

// ChangeList is one page of the changes feed. Exactly one of
// NewStartPageToken (feed exhausted) or NextPageToken (more pages) is set
// on a well-formed response.
type ChangeList struct {
	Changes           []Change `json:"changes"`
	NextPageToken     string   `json:"nextPageToken"`
	NewStartPageToken string   `json:"newStartPageToken"`
}

// Permission is one grant on a file or shared drive.
type Permission struct {
	ID                 string `json:"id"`
	Role               string `json:"role"`
	Type               string `json:"type"`
	EmailAddress       string `json:"emailAddress,omitempty"`
	Domain             string `json:"domain,omitempty"`
	AllowFileDiscovery *bool  `json:"allowFileDiscovery,omitempty"`
	DisplayName        string `json:"displayName,omitempty"`
}

// SharedDrive is one shared drive from the drives collection.
type SharedDrive struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedTime time.Time `json:"createdTime"`
}

// WatchRequest is the body of a changes.watch registration.
type WatchRequest struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Address string            `json:"address"`
	Token   string            `json:"token,omitempty"`
	Params  map[string]string `json:"params,omitempty"`
}

// WatchInfo is the server's view of a registered channel. Expiration is the
// zero time when the response omitted it.
type WatchInfo struct {
	ChannelID   string
	ResourceID  string
	ResourceURI string
	Expiration  time.Time
}
