package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"camtrap/internal/models"
	"camtrap/internal/storage"
)

const defaultAPIURL = "https://api.dropboxapi.com"

// LinkLifetime is how long Dropbox keeps a temporary link valid.
const LinkLifetime = 4 * time.Hour

// maxErrorBody caps how much of an error response is read into messages.
const maxErrorBody = 4 << 10

type Client struct {
	token   string
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewClient(token, apiURL string, timeout time.Duration) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimSuffix(apiURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

var _ storage.Backend = (*Client)(nil)

type pathArg struct {
	Path string `json:"path"`
}

type cursorArg struct {
	Cursor string `json:"cursor"`
}

// metadata mirrors the subset of Dropbox file/folder metadata used here.
type metadata struct {
	Tag            string    `json:".tag"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	PathLower      string    `json:"path_lower"`
	PathDisplay    string    `json:"path_display"`
	ServerModified time.Time `json:"server_modified"`
	Size           int64     `json:"size"`
}

type listFolderResult struct {
	Entries []metadata `json:"entries"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

type temporaryLinkResult struct {
	Link string `json:"link"`
}

type apiError struct {
	ErrorSummary string `json:"error_summary"`
}

// ListFolder lists path and follows continuation cursors until the listing
// is complete. Folders and deleted entries are skipped.
func (c *Client) ListFolder(ctx context.Context, path string) ([]models.StorageEntry, error) {
	var page listFolderResult
	if err := c.call(ctx, "files/list_folder", path, pathArg{Path: apiPath(path)}, &page); err != nil {
		return nil, err
	}

	var entries []models.StorageEntry
	for {
		for _, m := range page.Entries {
			if m.Tag != "file" {
				continue
			}
			entries = append(entries, models.StorageEntry{
				ID:       m.ID,
				Name:     m.Name,
				Path:     m.PathLower,
				Modified: m.ServerModified,
				Size:     m.Size,
			})
		}
		if !page.HasMore {
			return entries, nil
		}

		cursor := page.Cursor
		page = listFolderResult{}
		if err := c.call(ctx, "files/list_folder/continue", path, cursorArg{Cursor: cursor}, &page); err != nil {
			return nil, err
		}
	}
}

func (c *Client) GetTemporaryLink(ctx context.Context, path string) (models.TemporaryLink, error) {
	issued := c.now()

	var res temporaryLinkResult
	if err := c.call(ctx, "files/get_temporary_link", path, pathArg{Path: apiPath(path)}, &res); err != nil {
		return models.TemporaryLink{}, err
	}
	if res.Link == "" {
		return models.TemporaryLink{}, &storage.BackendError{Op: "files/get_temporary_link", Path: path, Message: "empty link in response"}
	}

	return models.TemporaryLink{URL: res.Link, ExpiresAt: issued.Add(LinkLifetime)}, nil
}

func (c *Client) GetMetadata(ctx context.Context, path string) (models.Metadata, error) {
	// The root folder has no metadata in the Dropbox API.
	if apiPath(path) == "" {
		return models.Metadata{Kind: models.EntryKindFolder, Path: "/"}, nil
	}

	var m metadata
	if err := c.call(ctx, "files/get_metadata", path, pathArg{Path: apiPath(path)}, &m); err != nil {
		return models.Metadata{}, err
	}

	kind := models.EntryKindFile
	if m.Tag == "folder" {
		kind = models.EntryKindFolder
	}
	return models.Metadata{
		Kind:     kind,
		Name:     m.Name,
		Path:     m.PathLower,
		Modified: m.ServerModified,
		Size:     m.Size,
	}, nil
}

// call issues one RPC-style request against the API host.
func (c *Client) call(ctx context.Context, route, path string, arg, out any) error {
	payload, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", route, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/"+route, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create %s request: %w", route, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return &storage.BackendError{Op: route, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(route, path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &storage.BackendError{Op: route, Path: path, Message: "decode response", Err: err}
	}
	return nil
}

func decodeError(route, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr apiError
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorSummary != "" {
		message = apiErr.ErrorSummary
	}

	// Endpoint errors come back as 409 with a summary like
	// "path/not_found/.." or "path_lookup/not_found/..".
	if resp.StatusCode == http.StatusConflict && strings.Contains(message, "not_found") {
		return &storage.NotFoundError{Path: path}
	}

	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &storage.BackendError{Op: route, Path: path, StatusCode: resp.StatusCode, Message: message}
}

// apiPath converts a folder path to the form the API expects: the root is
// the empty string and everything else starts with a slash.
func apiPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}
