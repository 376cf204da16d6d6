package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/evanschultz/kanmetrics/internal/domain"
)

// SnapshotVersion identifies the snapshot JSON layout.
const SnapshotVersion = "kanmetrics.snapshot.v1"

// Snapshot is the JSON interchange form of a work item ledger.
type Snapshot struct {
	Version    string             `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Items      []SnapshotWorkItem `json:"items"`
}

// SnapshotWorkItem is one work item with its full status journal.
// When Journal is empty the item is created at CreatedOn with Status.
type SnapshotWorkItem struct {
	ID           int                   `json:"id"`
	Kind         domain.Kind           `json:"kind"`
	Subject      string                `json:"subject,omitempty"`
	Project      string                `json:"project,omitempty"`
	CreatedOn    time.Time             `json:"created_on"`
	Status       domain.Status         `json:"status,omitempty"`
	DoneRatio    int                   `json:"done_ratio"`
	FixedVersion string                `json:"fixed_version,omitempty"`
	Priority     int                   `json:"priority"`
	Complexity   domain.Complexity     `json:"complexity,omitempty"`
	ParentID     int                   `json:"parent_id,omitempty"`
	Relations    []int                 `json:"relations,omitempty"`
	Journal      []domain.JournalEntry `json:"journal,omitempty"`
}

// ExportSnapshot returns every stored work item ordered by id.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	items, err := s.repo.ListWorkItems(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Items:      make([]SnapshotWorkItem, 0, len(items)),
	}
	for _, item := range items {
		snap.Items = append(snap.Items, snapshotWorkItemFromDomain(item))
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot validates snap and upserts its items in one batch.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	items, err := snap.WorkItems()
	if err != nil {
		return err
	}
	if err := s.repo.SaveWorkItems(ctx, items); err != nil {
		return err
	}
	s.logger.Debug("snapshot imported", "items", len(items))
	return nil
}

// Validate checks header and item fields that the ledger cannot check itself.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrInvalidSnapshot, s.Version)
	}
	ids := map[int]struct{}{}
	parents := make(map[int]int, len(s.Items))
	for i, item := range s.Items {
		if item.ID <= 0 {
			return fmt.Errorf("%w: items[%d].id must be > 0", ErrInvalidSnapshot, i)
		}
		if _, exists := ids[item.ID]; exists {
			return fmt.Errorf("%w: duplicate item id %d", ErrInvalidSnapshot, item.ID)
		}
		if len(item.Journal) == 0 && item.CreatedOn.IsZero() {
			return fmt.Errorf("%w: items[%d] needs created_on or a journal", ErrInvalidSnapshot, i)
		}
		ids[item.ID] = struct{}{}
		parents[item.ID] = item.ParentID
	}
	if cycle := domain.ParentCycles(parents); len(cycle) > 0 {
		return fmt.Errorf("%w: %w through items %v", ErrInvalidSnapshot, domain.ErrParentCycle, cycle)
	}
	return nil
}

// WorkItems validates the snapshot and rebuilds its items, replaying journals.
func (s Snapshot) WorkItems() ([]*domain.WorkItem, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.sort()
	out := make([]*domain.WorkItem, 0, len(s.Items))
	for _, in := range s.Items {
		item, err := in.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", ErrInvalidSnapshot, in.ID, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Snapshot) sort() {
	sort.Slice(s.Items, func(i, j int) bool {
		return s.Items[i].ID < s.Items[j].ID
	})
}

func snapshotWorkItemFromDomain(item *domain.WorkItem) SnapshotWorkItem {
	return SnapshotWorkItem{
		ID:           item.ID,
		Kind:         item.Kind,
		Subject:      item.Subject,
		Project:      item.Project,
		CreatedOn:    item.CreatedOn,
		Status:       item.CurrentStatus,
		DoneRatio:    item.DoneRatio,
		FixedVersion: item.FixedVersion,
		Priority:     item.Priority,
		Complexity:   item.Complexity,
		ParentID:     item.ParentID,
		Relations:    append([]int(nil), item.Relations...),
		Journal:      item.Journal(),
	}
}

func (i SnapshotWorkItem) toDomain() (*domain.WorkItem, error) {
	return domain.Restore(domain.WorkItemInput{
		ID:           i.ID,
		Kind:         i.Kind,
		Subject:      i.Subject,
		Project:      i.Project,
		CreatedOn:    i.CreatedOn,
		Status:       i.Status,
		DoneRatio:    i.DoneRatio,
		FixedVersion: i.FixedVersion,
		Priority:     i.Priority,
		Complexity:   i.Complexity,
		ParentID:     i.ParentID,
		Relations:    i.Relations,
	}, i.Journal)
}
