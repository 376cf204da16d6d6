package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ids(items []*WorkItem) []int {
	out := make([]int, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestProjectAddAndFind(t *testing.T) {
	p, err := NewProject(newItem(t, WorkItemInput{ID: 1, CreatedOn: monday}))
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	if err := p.Add(newItem(t, WorkItemInput{ID: 1, CreatedOn: tuesday})); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 item, got %d", p.Len())
	}
	if _, ok := p.Find(1); !ok {
		t.Fatal("expected to find item 1")
	}
	if _, ok := p.Find(2); ok {
		t.Fatal("expected item 2 to be missing")
	}
}

func TestProjectViewsAndLinks(t *testing.T) {
	useCase := newItem(t, WorkItemInput{ID: 1, Kind: KindUseCase, CreatedOn: monday})
	nested := newItem(t, WorkItemInput{ID: 2, Kind: KindUseCase, ParentID: 1, CreatedOn: monday})
	story := newItem(t, WorkItemInput{ID: 3, ParentID: 1, CreatedOn: tuesday})
	bug := newItem(t, WorkItemInput{ID: 4, Kind: KindBug, ParentID: 3, CreatedOn: wednesday})
	orphan := newItem(t, WorkItemInput{ID: 5, ParentID: 99, CreatedOn: thursday})
	req := newItem(t, WorkItemInput{ID: 6, Kind: KindRequirement, CreatedOn: thursday})

	p, err := NewProject(useCase, nested, story, bug, orphan, req)
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	if diff := cmp.Diff([]int{1, 2}, ids(p.UseCases())); diff != "" {
		t.Fatalf("use cases mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, ids(p.TopLevelUseCases())); diff != "" {
		t.Fatalf("top level use cases mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3, 5}, ids(p.UserStories())); diff != "" {
		t.Fatalf("user stories mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4}, ids(p.Defects())); diff != "" {
		t.Fatalf("defects mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{6}, ids(p.Requirements())); diff != "" {
		t.Fatalf("requirements mismatch (-want +got):\n%s", diff)
	}

	orphans := p.LinkChildren()
	if diff := cmp.Diff([]int{5}, ids(orphans)); diff != "" {
		t.Fatalf("orphans mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 3}, ids(useCase.Children)); diff != "" {
		t.Fatalf("use case children mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4}, ids(story.Defects())); diff != "" {
		t.Fatalf("story defects mismatch (-want +got):\n%s", diff)
	}
	// Relinking is idempotent.
	p.LinkChildren()
	if len(useCase.Children) != 2 {
		t.Fatalf("expected 2 children after relink, got %d", len(useCase.Children))
	}
}

func TestLinkChildrenDetachesParentCycles(t *testing.T) {
	useCase := newItem(t, WorkItemInput{ID: 1, Kind: KindUseCase, ParentID: 2, CreatedOn: monday})
	story := newItem(t, WorkItemInput{ID: 2, ParentID: 1, CreatedOn: monday})
	leaf := newItem(t, WorkItemInput{ID: 3, ParentID: 1, CreatedOn: tuesday})
	self := newItem(t, WorkItemInput{ID: 4, ParentID: 4, CreatedOn: tuesday})

	p, err := NewProject(useCase, story, leaf, self)
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	orphans := p.LinkChildren()
	if diff := cmp.Diff([]int{1, 2, 4}, ids(orphans)); diff != "" {
		t.Fatalf("orphans mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3}, ids(useCase.Children)); diff != "" {
		t.Fatalf("use case children mismatch (-want +got):\n%s", diff)
	}
	if len(story.Children) != 0 || len(self.Children) != 0 {
		t.Fatalf("cycle members must not link: story=%v self=%v", ids(story.Children), ids(self.Children))
	}
	// Completion terminates once the loop is broken.
	for _, item := range p.Items() {
		if got := item.PercentDone(); got < 0 || got > 100 {
			t.Fatalf("item %d PercentDone() = %v, want within [0, 100]", item.ID, got)
		}
	}
}

func TestParentCycles(t *testing.T) {
	parents := map[int]int{1: 2, 2: 3, 3: 1, 4: 1, 5: 0, 6: 99, 7: 7}
	if diff := cmp.Diff([]int{1, 2, 3, 7}, ParentCycles(parents)); diff != "" {
		t.Fatalf("ParentCycles() mismatch (-want +got):\n%s", diff)
	}
	if got := ParentCycles(map[int]int{1: 0, 2: 1}); len(got) != 0 {
		t.Fatalf("ParentCycles() = %v, want none", got)
	}
}

func TestProjectDates(t *testing.T) {
	var empty Project
	if _, ok := empty.StartDate(); ok {
		t.Fatal("expected no start date for an empty project")
	}

	first := newItem(t, WorkItemInput{ID: 1, CreatedOn: tuesday})
	second := newItem(t, WorkItemInput{ID: 2, CreatedOn: monday})
	setStatus(t, first, wednesday, StatusInProgress)
	setStatus(t, second, thursday, StatusInProgress)
	p, err := NewProject(first, second)
	if err != nil {
		t.Fatalf("NewProject() error = %v", err)
	}
	if got, ok := p.StartDate(); !ok || !got.Equal(monday) {
		t.Fatalf("StartDate() = %s, %v", got, ok)
	}
	if got, ok := p.StartingDate(); !ok || !got.Equal(wednesday) {
		t.Fatalf("StartingDate() = %s, %v", got, ok)
	}
	if got, ok := p.LastUpdatedDate(); !ok || !got.Equal(thursday) {
		t.Fatalf("LastUpdatedDate() = %s, %v", got, ok)
	}
	stories := p.Query(func(w *WorkItem) bool { return w.CurrentStatus == StatusInProgress })
	if len(stories) != 2 {
		t.Fatalf("expected 2 in-progress items, got %d", len(stories))
	}
}

func TestSortForDisplay(t *testing.T) {
	unplannedA, err := NewWorkItem(WorkItemInput{ID: 1, CreatedOn: monday})
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	unplannedB, err := NewWorkItem(WorkItemInput{ID: 2, CreatedOn: monday})
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	v2 := newItem(t, WorkItemInput{ID: 3, FixedVersion: "v2", CreatedOn: monday})
	v1Low := newItem(t, WorkItemInput{ID: 4, FixedVersion: "v1", DoneRatio: 10, CreatedOn: monday})
	v1High := newItem(t, WorkItemInput{ID: 5, FixedVersion: "v1", DoneRatio: 80, CreatedOn: monday})
	done := newItem(t, WorkItemInput{ID: 6, FixedVersion: "v3", CreatedOn: monday, Status: StatusDone})

	input := []*WorkItem{unplannedA, v2, v1Low, unplannedB, done, v1High}
	got := SortForDisplay(input)
	if diff := cmp.Diff([]int{6, 5, 4, 3, 1, 2}, ids(got)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if input[0] != unplannedA {
		t.Fatal("expected input slice to be left untouched")
	}
}
