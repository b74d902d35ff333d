package remotedoc

import "context"

// Client stores raw documents under string keys.
//
// This interface is implemented by *S3Client and *LocalClient.
type Client interface {
	// Put stores data under key, replacing any previous document.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the document stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the document stored under key. Deleting a missing
	// document is not an error.
	Delete(ctx context.Context, key string) error
}
