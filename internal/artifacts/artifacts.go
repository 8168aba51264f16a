package artifacts

import "context"

// Store persists rendered report artifacts. The rest of the system only
// handles the opaque reference returned by Save and never interprets the
// artifact's content.
type Store interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Load(ctx context.Context, ref string) ([]byte, error)
}
