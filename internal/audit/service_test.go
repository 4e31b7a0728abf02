package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/shared"
)

type stubLister struct {
	rows    []ChangeRecord
	filters Filters
	limit   int
	offset  int
	calls   int
}

func (s *stubLister) ListChanges(ctx context.Context, f Filters, limit, offset int) ([]ChangeRecord, error) {
	s.filters = f
	s.limit = limit
	s.offset = offset
	s.calls++
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

func makeRows(n int) []ChangeRecord {
	rows := make([]ChangeRecord, n)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = ChangeRecord{
			ID:        int64(n - i),
			RoleID:    1,
			RoleName:  "Editor",
			Action:    ActionGrant,
			ActorID:   42,
			ChangedAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return rows
}

func TestListUsesLimitPlusOne(t *testing.T) {
	repo := &stubLister{rows: makeRows(25)}
	svc := NewService(repo)

	result, err := svc.List(context.Background(), Filters{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.limit != 21 {
		t.Fatalf("expected limit 21, got %d", repo.limit)
	}
	if len(result.Rows) != 20 {
		t.Fatalf("expected 20 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page, got %+v", result.Paging)
	}
}

func TestListLastPageHasNoNext(t *testing.T) {
	repo := &stubLister{rows: makeRows(25)}
	svc := NewService(repo)

	result, err := svc.List(context.Background(), Filters{Page: 2, PageSize: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(result.Rows))
	}
	if result.Paging.HasNext {
		t.Fatal("expected no next page")
	}
	if result.Paging.PrevPage != 1 {
		t.Fatalf("expected prev page 1, got %d", result.Paging.PrevPage)
	}
}

func TestListClampsPageSize(t *testing.T) {
	repo := &stubLister{rows: makeRows(5)}
	svc := NewService(repo)

	if _, err := svc.List(context.Background(), Filters{PageSize: 5000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.limit != maxPageSize+1 {
		t.Fatalf("expected clamped limit %d, got %d", maxPageSize+1, repo.limit)
	}
}

func TestListRejectsUnknownAction(t *testing.T) {
	svc := NewService(&stubLister{})
	_, err := svc.List(context.Background(), Filters{Action: "TRUNCATE"})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestExportWalksAllBatches(t *testing.T) {
	repo := &stubLister{rows: makeRows(1500)}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1500 {
		t.Fatalf("expected all 1500 rows, got %d", len(rows))
	}
	if repo.calls < 2 {
		t.Fatalf("expected batched reads, got %d call(s)", repo.calls)
	}
}

func TestExportCSVShape(t *testing.T) {
	permID := int64(11)
	rows := []ChangeRecord{
		{
			ID:                 1,
			RoleID:             2,
			RoleName:           "Editor",
			PermissionID:       &permID,
			PermissionCodename: "post.edit",
			Action:             ActionGrant,
			ActorID:            42,
			ActorEmail:         "admin@warden.local",
			ChangedAt:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	data, err := ExportCSV(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if lines[0] != "changed_at,action,role_id,role_name,permission_codename,actor_id,actor_email" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "2026-03-01T12:00:00Z") || !strings.Contains(lines[1], "post.edit") {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}
