package media

import "context"

// Photo is a stored piece of evidence referenced by id from a component.
type Photo struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Store port for evidence photos (object storage).
type Store interface {
	// Put stores the photo bytes under a tenant-scoped key and returns
	// the stored photo metadata.
	Put(ctx context.Context, key string, data []byte, contentType string) (Photo, error)
	// URL returns a retrievable URL for a previously stored key.
	URL(key string) string
}
