package audit

import (
	"context"
	"fmt"

	"github.com/wardenhq/warden/internal/shared"
)

// Lister provides read access to the change log.
type Lister interface {
	ListChanges(ctx context.Context, f Filters, limit, offset int) ([]ChangeRecord, error)
}

// Result wraps one page of change records with paging information.
type Result struct {
	Rows   []ChangeRecord
	Paging shared.PagingInfo
}

// Service coordinates audit log reporting.
type Service struct {
	repo Lister
}

// NewService builds a new audit reporting service.
func NewService(repo Lister) *Service {
	return &Service{repo: repo}
}

const maxPageSize = 100

// List fetches one page of change records, newest first. The limit+1 trick
// decides has-next without a count query.
func (s *Service) List(ctx context.Context, f Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if f.Action != "" && !f.Action.Valid() {
		return Result{}, fmt.Errorf("unknown action %q: %w", f.Action, shared.ErrValidation)
	}
	page, pageSize := shared.NormalizePage(f.Page, f.PageSize, maxPageSize)
	offset := (page - 1) * pageSize

	rows, err := s.repo.ListChanges(ctx, f, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return Result{Rows: rows, Paging: shared.NewPagingInfo(page, pageSize, hasNext)}, nil
}

// Export fetches every matching record without paging, for CSV download.
func (s *Service) Export(ctx context.Context, f Filters) ([]ChangeRecord, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if f.Action != "" && !f.Action.Valid() {
		return nil, fmt.Errorf("unknown action %q: %w", f.Action, shared.ErrValidation)
	}
	const exportBatch = 1000
	var all []ChangeRecord
	offset := 0
	for {
		rows, err := s.repo.ListChanges(ctx, f, exportBatch, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < exportBatch {
			return all, nil
		}
		offset += exportBatch
	}
}
