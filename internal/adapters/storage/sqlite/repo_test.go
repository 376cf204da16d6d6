package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/evanschultz/kanmetrics/internal/app"
	"github.com/evanschultz/kanmetrics/internal/calendar"
	"github.com/evanschultz/kanmetrics/internal/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "kanmetrics.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func storyWithHistory(t *testing.T) *domain.WorkItem {
	t.Helper()
	monday := calendar.Date(2014, time.June, 2)
	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:           7,
		Kind:         domain.KindUserStory,
		Subject:      "Export invoices",
		Project:      "billing",
		CreatedOn:    monday,
		DoneRatio:    40,
		FixedVersion: "v1",
		Priority:     3,
		Complexity:   domain.ComplexityM,
		ParentID:     2,
		Relations:    []int{9, 11},
	})
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	if err := item.SetStatus(monday.AddDate(0, 0, 1), domain.StatusInProgress); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := item.SetStatus(monday.AddDate(0, 0, 3), domain.StatusDone); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	return item
}

func TestRepository_SaveAndLoadWorkItems(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	story := storyWithHistory(t)
	bug, err := domain.NewWorkItem(domain.WorkItemInput{ID: 3, Kind: domain.KindBug, CreatedOn: calendar.Date(2014, time.June, 3)})
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	if err := repo.SaveWorkItems(ctx, []*domain.WorkItem{story, bug}); err != nil {
		t.Fatalf("SaveWorkItems() error = %v", err)
	}

	items, err := repo.ListWorkItems(ctx)
	if err != nil {
		t.Fatalf("ListWorkItems() error = %v", err)
	}
	if len(items) != 2 || items[0].ID != 3 || items[1].ID != 7 {
		t.Fatalf("unexpected items %#v", items)
	}

	loaded := items[1]
	if loaded.Subject != "Export invoices" || loaded.Project != "billing" || loaded.FixedVersion != "v1" {
		t.Fatalf("unexpected scalar fields %#v", loaded)
	}
	if loaded.Kind != domain.KindUserStory || loaded.Complexity != domain.ComplexityM || loaded.ParentID != 2 || loaded.Priority != 3 || loaded.DoneRatio != 40 {
		t.Fatalf("unexpected classification fields %#v", loaded)
	}
	if diff := cmp.Diff([]int{9, 11}, loaded.Relations); diff != "" {
		t.Fatalf("relations mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(story.Journal(), loaded.Journal()); diff != "" {
		t.Fatalf("journal mismatch (-want +got):\n%s", diff)
	}
	if loaded.CurrentStatus != domain.StatusDone || !loaded.UpdatedOn.Equal(story.UpdatedOn) {
		t.Fatalf("unexpected current state %q at %s", loaded.CurrentStatus, loaded.UpdatedOn)
	}
	if len(items[0].Relations) != 0 {
		t.Fatalf("expected no relations, got %#v", items[0].Relations)
	}
}

func TestRepository_SaveReplacesJournal(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	monday := calendar.Date(2014, time.June, 2)

	item, err := domain.NewWorkItem(domain.WorkItemInput{ID: 1, CreatedOn: monday, FixedVersion: "v1"})
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	if err := repo.SaveWorkItems(ctx, []*domain.WorkItem{item}); err != nil {
		t.Fatalf("SaveWorkItems() error = %v", err)
	}

	if err := item.SetStatus(monday.AddDate(0, 0, 2), domain.StatusInProgress); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	item.Subject = "renamed"
	if err := repo.SaveWorkItems(ctx, []*domain.WorkItem{item}); err != nil {
		t.Fatalf("SaveWorkItems(update) error = %v", err)
	}

	loaded, err := repo.GetWorkItem(ctx, 1)
	if err != nil {
		t.Fatalf("GetWorkItem() error = %v", err)
	}
	if loaded.Subject != "renamed" {
		t.Fatalf("unexpected subject %q", loaded.Subject)
	}
	if len(loaded.Journal()) != 2 || loaded.CurrentStatus != domain.StatusInProgress {
		t.Fatalf("unexpected journal %#v", loaded.Journal())
	}
	if got := loaded.StatusAt(monday.AddDate(0, 0, 1)); got != domain.StatusNew {
		t.Fatalf("StatusAt() = %q, want %q", got, domain.StatusNew)
	}
}

func TestRepository_GetWorkItemNotFound(t *testing.T) {
	repo := openTestRepo(t)
	if _, err := repo.GetWorkItem(context.Background(), 42); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_InMemory(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	story := storyWithHistory(t)
	if err := repo.SaveWorkItems(ctx, []*domain.WorkItem{story, nil}); err != nil {
		t.Fatalf("SaveWorkItems() error = %v", err)
	}
	loaded, err := repo.GetWorkItem(ctx, story.ID)
	if err != nil {
		t.Fatalf("GetWorkItem() error = %v", err)
	}
	if got, ok := loaded.CompletionDate(); !ok || !got.Equal(calendar.Date(2014, time.June, 5)) {
		t.Fatalf("unexpected completion date %s (%v)", got, ok)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
