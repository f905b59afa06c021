package github

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Order is the sort direction of a code search
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Owner is the account owning a repository
type Owner struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Repository is the repository metadata nested in a search item
type Repository struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	FullName    string  `json:"full_name"`
	Description *string `json:"description"`
	HTMLURL     string  `json:"html_url"`
	Fork        bool    `json:"fork"`
	Owner       Owner   `json:"owner"`
}

// SearchItem is a single code search match
type SearchItem struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	SHA        string     `json:"sha"`
	URL        string     `json:"url"`
	Repository Repository `json:"repository"`
}

// SearchResponse is one page of code search results. NextPage carries
// the URL of the following page, taken from the Link response header;
// it is empty on the last page.
type SearchResponse struct {
	TotalCount        int          `json:"total_count"`
	IncompleteResults bool         `json:"incomplete_results"`
	Items             []SearchItem `json:"items"`

	NextPage string `json:"-"`
}

// FileContent is the full record returned by a file content fetch
type FileContent struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// Decode returns the decoded text content. The API delivers content
// base64-encoded with embedded newlines.
func (f *FileContent) Decode() ([]byte, error) {
	if f.Encoding != "base64" {
		return nil, fmt.Errorf("unsupported content encoding: %q", f.Encoding)
	}
	cleaned := strings.ReplaceAll(f.Content, "\n", "")
	data, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content: %w", err)
	}
	return data, nil
}
