package diskapi

import "time"

// Resource types reported by the API
const (
	ResourceTypeDir  = "dir"
	ResourceTypeFile = "file"
)

// Resource is a file or directory document. Fields absent from the requested
// field selection are left zero.
type Resource struct {
	Name     string        `json:"name,omitempty"`
	Path     string        `json:"path,omitempty"`
	Type     string        `json:"type,omitempty"`
	Size     *int64        `json:"size,omitempty"`
	Created  string        `json:"created,omitempty"`
	Modified string        `json:"modified,omitempty"`
	MimeType string        `json:"mime_type,omitempty"`
	MD5      string        `json:"md5,omitempty"`
	Embedded *ResourceList `json:"_embedded,omitempty"`
}

// IsDir reports whether the resource is a directory
func (r *Resource) IsDir() bool {
	return r.Type == ResourceTypeDir
}

// ModifiedTime parses the modification timestamp
func (r *Resource) ModifiedTime() (time.Time, bool) {
	if r.Modified == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, r.Modified)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Items returns the embedded directory entries, if any
func (r *Resource) Items() []Resource {
	if r.Embedded == nil {
		return nil
	}
	return r.Embedded.Items
}

// ResourceList is one page of directory entries
type ResourceList struct {
	Path   string     `json:"path,omitempty"`
	Items  []Resource `json:"items"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
	Total  int        `json:"total,omitempty"`
}

// Link is a URL returned for uploads, downloads and asynchronous operations
type Link struct {
	Href      string `json:"href"`
	Method    string `json:"method,omitempty"`
	Templated bool   `json:"templated,omitempty"`
}

// operationStatus is the body of an asynchronous operation status request
type operationStatus struct {
	Status string `json:"status"` // "success", "failed" or "in-progress"
}
