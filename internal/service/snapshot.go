package service

import (
	"context"

	"github.com/ldi/tasksync/internal/db"
)

// Export writes a JSONL snapshot of the local state to path. Credentials are
// never exported.
func (s *Service) Export(ctx context.Context, path string) error {
	return s.db.ExportSnapshot(ctx, path)
}

// Import merges a snapshot written by Export.
func (s *Service) Import(ctx context.Context, path string) (*db.ImportResult, error) {
	return s.db.ImportSnapshot(ctx, path)
}
