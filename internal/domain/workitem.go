package domain

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

// unplannedVersion marks an item explicitly kept out of any delivery.
const unplannedVersion = "unplanned"

// JournalEntry records one status transition.
type JournalEntry struct {
	Date     time.Time `json:"date"`
	OldValue Status    `json:"old_value"`
	NewValue Status    `json:"new_value"`
}

// WorkItem is a tracked ticket with its status history.
type WorkItem struct {
	ID            int
	Kind          Kind
	Subject       string
	Project       string
	CreatedOn     time.Time
	UpdatedOn     time.Time
	CurrentStatus Status
	DoneRatio     int
	FixedVersion  string
	Priority      int
	Complexity    Complexity
	ParentID      int
	Relations     []int
	Children      []*WorkItem

	journal []JournalEntry
}

// WorkItemInput holds the values needed to create a work item.
type WorkItemInput struct {
	ID           int
	Kind         Kind
	Subject      string
	Project      string
	CreatedOn    time.Time
	Status       Status
	DoneRatio    int
	FixedVersion string
	Priority     int
	Complexity   Complexity
	ParentID     int
	Relations    []int
}

// NewWorkItem validates the input and records the initial status as the first journal entry.
func NewWorkItem(in WorkItemInput) (*WorkItem, error) {
	if in.ID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidID, in.ID)
	}
	if in.CreatedOn.IsZero() {
		return nil, fmt.Errorf("%w: work item %d has no creation date", ErrInvalidDate, in.ID)
	}
	if in.Kind == "" {
		in.Kind = KindUserStory
	}
	kind, err := ParseKind(string(in.Kind))
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = StatusNew
	}
	if !slices.Contains(journalStatuses, in.Status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	complexity, err := ParseComplexity(string(in.Complexity))
	if err != nil {
		return nil, err
	}
	if in.DoneRatio < 0 || in.DoneRatio > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDoneRatio, in.DoneRatio)
	}
	if in.ParentID < 0 {
		return nil, fmt.Errorf("%w: parent %d", ErrInvalidID, in.ParentID)
	}

	item := &WorkItem{
		ID:            in.ID,
		Kind:          kind,
		Subject:       strings.TrimSpace(in.Subject),
		Project:       strings.TrimSpace(in.Project),
		CreatedOn:     in.CreatedOn,
		UpdatedOn:     in.CreatedOn,
		CurrentStatus: StatusUnknown,
		DoneRatio:     in.DoneRatio,
		FixedVersion:  strings.TrimSpace(in.FixedVersion),
		Priority:      in.Priority,
		Complexity:    complexity,
		ParentID:      in.ParentID,
		Relations:     append([]int(nil), in.Relations...),
	}
	if err := item.SetStatus(in.CreatedOn, in.Status); err != nil {
		return nil, err
	}
	return item, nil
}

// Restore rebuilds an item from persisted journal entries.
// The first entry is the creation; the rest are replayed through SetStatus.
func Restore(in WorkItemInput, journal []JournalEntry) (*WorkItem, error) {
	if len(journal) == 0 {
		return NewWorkItem(in)
	}
	in.CreatedOn = journal[0].Date
	in.Status = journal[0].NewValue
	item, err := NewWorkItem(in)
	if err != nil {
		return nil, err
	}
	for i, entry := range journal[1:] {
		if err := item.SetStatus(entry.Date, entry.NewValue); err != nil {
			return nil, fmt.Errorf("restore work item %d journal[%d]: %w", in.ID, i+1, err)
		}
	}
	return item, nil
}

// SetStatus appends a transition. It fails, leaving the journal unchanged,
// when date is earlier than the last update.
func (w *WorkItem) SetStatus(date time.Time, status Status) error {
	if date.IsZero() {
		return fmt.Errorf("%w: work item %d transition without date", ErrInvalidDate, w.ID)
	}
	if !slices.Contains(journalStatuses, status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if len(w.journal) > 0 && date.Before(w.UpdatedOn) {
		return fmt.Errorf("%w: work item %d set %q at %s, last update %s", ErrChronology, w.ID, status, date.Format(time.DateOnly), w.UpdatedOn.Format(time.DateOnly))
	}
	w.journal = append(w.journal, JournalEntry{
		Date:     date,
		OldValue: w.CurrentStatus,
		NewValue: status,
	})
	w.UpdatedOn = date
	w.CurrentStatus = status
	return nil
}

// Journal returns a copy of the status transitions in chronological order.
func (w *WorkItem) Journal() []JournalEntry {
	return append([]JournalEntry(nil), w.journal...)
}

// Unplanned reports whether the item has no delivery version.
func (w *WorkItem) Unplanned() bool {
	return w.FixedVersion == "" || strings.EqualFold(w.FixedVersion, unplannedVersion)
}

// Weight is the share of a child in its parent's progress.
func (w *WorkItem) Weight() float64 {
	if w.Kind == KindBug {
		return 0.2
	}
	return 1.0
}

// StatusAt reconstructs the status the item had at ref.
func (w *WorkItem) StatusAt(ref time.Time) Status {
	if ref.Before(w.CreatedOn) || len(w.journal) == 0 {
		return StatusUnknown
	}
	if w.Unplanned() {
		return StatusUnplanned
	}
	// First transition strictly after ref tells what was true just before it.
	i := sort.Search(len(w.journal), func(i int) bool {
		return w.journal[i].Date.After(ref)
	})
	if i < len(w.journal) {
		return w.journal[i].OldValue
	}
	return w.CurrentStatus
}

// StartingDate returns the first transition into In Progress or Done.
func (w *WorkItem) StartingDate() (time.Time, bool) {
	for _, entry := range w.journal {
		if entry.NewValue == StatusInProgress || entry.NewValue == StatusDone {
			return entry.Date, true
		}
	}
	return time.Time{}, false
}

// CompletionDate returns the first transition into Done.
func (w *WorkItem) CompletionDate() (time.Time, bool) {
	for _, entry := range w.journal {
		if entry.NewValue == StatusDone {
			return entry.Date, true
		}
	}
	return time.Time{}, false
}

// UserStories returns the children that are user stories.
func (w *WorkItem) UserStories() []*WorkItem {
	return w.childrenOfKind(KindUserStory)
}

// Defects returns the children that are bugs.
func (w *WorkItem) Defects() []*WorkItem {
	return w.childrenOfKind(KindBug)
}

// UseCases returns the children that are use cases.
func (w *WorkItem) UseCases() []*WorkItem {
	return w.childrenOfKind(KindUseCase)
}

func (w *WorkItem) childrenOfKind(kind Kind) []*WorkItem {
	out := make([]*WorkItem, 0, len(w.Children))
	for _, child := range w.Children {
		if child.Kind == kind {
			out = append(out, child)
		}
	}
	return out
}
