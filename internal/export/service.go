package export

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"graphtrack/api/internal/store"
)

// SnapshotSource provides a consistent read of the whole graph.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (store.GraphSnapshot, error)
}

// Service provides graph export functionality
type Service struct {
	source   SnapshotSource
	uploader Uploader
}

// NewService creates an export service. uploader may be nil, in which case
// exports are only returned to the caller.
func NewService(source SnapshotSource, uploader Uploader) *Service {
	return &Service{source: source, uploader: uploader}
}

func (s *Service) Uploads() bool {
	return s.uploader != nil
}

// Export reads one snapshot and encodes it in every requested format. With
// an uploader configured, each encoding is uploaded concurrently.
func (s *Service) Export(ctx context.Context, formats ...Format) ([]Result, error) {
	if len(formats) == 0 {
		formats = []Format{FormatJSON}
	}
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read graph snapshot: %w", err)
	}
	doc := NewDocument(snap)
	stamp := doc.ExportedAt.Format("20060102T150405Z")

	results := make([]Result, len(formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, format := range formats {
		g.Go(func() error {
			data, err := Encode(doc, format)
			if err != nil {
				return err
			}
			result := Result{
				Data:        data,
				Filename:    "graph-" + stamp + format.Extension(),
				Format:      format,
				ContentType: format.ContentType(),
				Size:        len(data),
			}
			if s.uploader != nil {
				loc, err := s.uploader.Upload(gctx, "snapshots/"+result.Filename, data, result.ContentType)
				if err != nil {
					return err
				}
				result.Location = &loc
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
