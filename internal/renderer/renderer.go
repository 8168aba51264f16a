package renderer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ReportData is the input of a render. The worker assembles it during the
// fetch and transform phases.
type ReportData struct {
	ReportID    uuid.UUID
	GeneratedAt time.Time
	Title       string
	Sections    []Section
}

type Section struct {
	Heading string
	Body    string
}

// Renderer produces the report artifact bytes. Implementations must be free
// of side effects; a render failure propagates as a phase failure.
type Renderer interface {
	Render(ctx context.Context, data ReportData) ([]byte, error)
}
