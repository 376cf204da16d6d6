package domain

import (
	"fmt"
	"sort"
	"time"
)

// Project is an ordered collection of work items indexed by id.
type Project struct {
	items []*WorkItem
	byID  map[int]*WorkItem
}

// NewProject builds a project from items, rejecting duplicate ids.
func NewProject(items ...*WorkItem) (*Project, error) {
	p := &Project{byID: make(map[int]*WorkItem, len(items))}
	for _, item := range items {
		if err := p.Add(item); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add appends one work item.
func (p *Project) Add(item *WorkItem) error {
	if item == nil {
		return fmt.Errorf("%w: nil work item", ErrInvalidID)
	}
	if p.byID == nil {
		p.byID = map[int]*WorkItem{}
	}
	if _, ok := p.byID[item.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, item.ID)
	}
	p.items = append(p.items, item)
	p.byID[item.ID] = item
	return nil
}

// Find returns the item with id.
func (p *Project) Find(id int) (*WorkItem, bool) {
	item, ok := p.byID[id]
	return item, ok
}

// Len returns the number of items.
func (p *Project) Len() int {
	return len(p.items)
}

// Items returns the items in insertion order.
func (p *Project) Items() []*WorkItem {
	return append([]*WorkItem(nil), p.items...)
}

// Query returns the items matching fn.
func (p *Project) Query(fn func(*WorkItem) bool) []*WorkItem {
	out := make([]*WorkItem, 0)
	for _, item := range p.items {
		if fn(item) {
			out = append(out, item)
		}
	}
	return out
}

func (p *Project) ofKind(kind Kind) []*WorkItem {
	return p.Query(func(w *WorkItem) bool { return w.Kind == kind })
}

// UseCases returns every use case.
func (p *Project) UseCases() []*WorkItem { return p.ofKind(KindUseCase) }

// TopLevelUseCases returns the use cases without parent.
func (p *Project) TopLevelUseCases() []*WorkItem {
	return p.Query(func(w *WorkItem) bool { return w.Kind == KindUseCase && w.ParentID == 0 })
}

// UserStories returns every user story.
func (p *Project) UserStories() []*WorkItem { return p.ofKind(KindUserStory) }

// Defects returns every bug.
func (p *Project) Defects() []*WorkItem { return p.ofKind(KindBug) }

// Requirements returns every requirement.
func (p *Project) Requirements() []*WorkItem { return p.ofKind(KindRequirement) }

// LinkChildren rebuilds the Children lists from ParentID. Items pointing to
// an unknown parent, or sitting on a parent cycle, stay detached and are
// returned.
func (p *Project) LinkChildren() []*WorkItem {
	parents := make(map[int]int, len(p.items))
	for _, item := range p.items {
		item.Children = nil
		parents[item.ID] = item.ParentID
	}
	cyclic := map[int]struct{}{}
	for _, id := range ParentCycles(parents) {
		cyclic[id] = struct{}{}
	}
	var orphans []*WorkItem
	for _, item := range p.items {
		if item.ParentID == 0 {
			continue
		}
		parent, ok := p.byID[item.ParentID]
		if _, loop := cyclic[item.ID]; !ok || loop {
			orphans = append(orphans, item)
			continue
		}
		parent.Children = append(parent.Children, item)
	}
	return orphans
}

// ParentCycles returns, in ascending order, the ids whose parent chain leads
// back to themselves. parents maps an id to its parent id, 0 meaning none.
func ParentCycles(parents map[int]int) []int {
	var out []int
	for id := range parents {
		if onParentCycle(parents, id) {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func onParentCycle(parents map[int]int, id int) bool {
	seen := map[int]struct{}{}
	for cur := parents[id]; cur != 0; cur = parents[cur] {
		if cur == id {
			return true
		}
		if _, ok := seen[cur]; ok {
			return false
		}
		seen[cur] = struct{}{}
	}
	return false
}

// StartDate returns the earliest creation date.
func (p *Project) StartDate() (time.Time, bool) {
	return earliest(p.items, func(w *WorkItem) (time.Time, bool) { return w.CreatedOn, true })
}

// StartingDate returns the earliest date any item entered work.
func (p *Project) StartingDate() (time.Time, bool) {
	return earliest(p.items, (*WorkItem).StartingDate)
}

// LastUpdatedDate returns the latest update date.
func (p *Project) LastUpdatedDate() (time.Time, bool) {
	var last time.Time
	for _, item := range p.items {
		if item.UpdatedOn.After(last) {
			last = item.UpdatedOn
		}
	}
	return last, !last.IsZero()
}

func earliest(items []*WorkItem, date func(*WorkItem) (time.Time, bool)) (time.Time, bool) {
	var first time.Time
	found := false
	for _, item := range items {
		d, ok := date(item)
		if !ok {
			continue
		}
		if !found || d.Before(first) {
			first, found = d, true
		}
	}
	return first, found
}
