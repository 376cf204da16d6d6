package kpi

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/evanschultz/kanmetrics/internal/calendar"
	"github.com/evanschultz/kanmetrics/internal/domain"
)

var fixtureStart = calendar.Date(2014, time.June, 2)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cal, err := calendar.New(calendar.NewVacationTable())
	if err != nil {
		t.Fatalf("calendar.New() error = %v", err)
	}
	engine, err := NewEngine(cal, DefaultPolicy(), WithParallelism(4))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func fixtureTimeline(t *testing.T, e *Engine) []time.Time {
	t.Helper()
	timeline, err := e.Calendar().BuildTimeline(fixtureStart, calendar.Date(2014, time.June, 20))
	if err != nil {
		t.Fatalf("BuildTimeline() error = %v", err)
	}
	if len(timeline) != 15 {
		t.Fatalf("expected a 15 day timeline, got %d", len(timeline))
	}
	return timeline
}

// ticket replays one glyph per timeline date: N new, I in progress, D done,
// '.' no change. The item is created at its first glyph.
func ticket(t *testing.T, id int, kind domain.Kind, pattern string, timeline []time.Time) *domain.WorkItem {
	t.Helper()
	letters := map[byte]domain.Status{'N': domain.StatusNew, 'I': domain.StatusInProgress, 'D': domain.StatusDone}
	var item *domain.WorkItem
	for i := range len(pattern) {
		status, ok := letters[pattern[i]]
		if !ok {
			continue
		}
		if item == nil {
			created, err := domain.NewWorkItem(domain.WorkItemInput{
				ID:           id,
				Kind:         kind,
				CreatedOn:    timeline[i],
				Status:       status,
				FixedVersion: "v1",
			})
			if err != nil {
				t.Fatalf("NewWorkItem() error = %v", err)
			}
			item = created
			continue
		}
		if item.CurrentStatus == status {
			continue
		}
		if err := item.SetStatus(timeline[i], status); err != nil {
			t.Fatalf("SetStatus() error = %v", err)
		}
	}
	if item == nil {
		t.Fatalf("pattern %q never creates the ticket", pattern)
	}
	return item
}

func fixtureTickets(t *testing.T, timeline []time.Time) []*domain.WorkItem {
	t.Helper()
	return []*domain.WorkItem{
		ticket(t, 1, domain.KindUserStory, "..NNIIID.......", timeline),
		ticket(t, 2, domain.KindUserStory, "....NIIIIID....", timeline),
		ticket(t, 3, domain.KindUserStory, ".....NNIIIIID..", timeline),
	}
}

func TestWIPProgressionFixture(t *testing.T) {
	e := newTestEngine(t)
	timeline := fixtureTimeline(t, e)
	items := fixtureTickets(t, timeline)

	got, err := e.WIPProgression(context.Background(), items, timeline)
	if err != nil {
		t.Fatalf("WIPProgression() error = %v", err)
	}
	want := [][3]int{
		{0, 0, 0}, {0, 0, 0}, {1, 0, 0}, {1, 0, 0}, {1, 1, 0},
		{1, 2, 0}, {1, 2, 0}, {0, 2, 1}, {0, 2, 1}, {0, 2, 1},
		{0, 1, 2}, {0, 1, 2}, {0, 0, 3}, {0, 0, 3}, {0, 0, 3},
	}
	for i, w := range got {
		if w.Proposed != 0 {
			t.Fatalf("day %d: expected no proposed items, got %d", i, w.Proposed)
		}
		if !w.Date.Equal(timeline[i]) {
			t.Fatalf("day %d: unexpected date %s", i, w.Date)
		}
		if diff := cmp.Diff(want[i], [3]int{w.Planned, w.InProgress, w.Done}); diff != "" {
			t.Fatalf("day %d WIP mismatch (-want +got):\n%s", i, diff)
		}
	}

	avg, err := e.AverageWIPProgression(context.Background(), items, timeline)
	if err != nil {
		t.Fatalf("AverageWIPProgression() error = %v", err)
	}
	if diff := cmp.Diff([]int{0, 0, 1, 1, 2, 3, 3, 2, 2, 2, 1, 1, 0, 0, 0}, avg); diff != "" {
		t.Fatalf("average WIP mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkInProgressBuckets(t *testing.T) {
	monday := fixtureStart
	planned, err := domain.NewWorkItem(domain.WorkItemInput{ID: 1, CreatedOn: monday, FixedVersion: "v1"})
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	proposed, err := domain.NewWorkItem(domain.WorkItemInput{ID: 2, CreatedOn: monday})
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	later, err := domain.NewWorkItem(domain.WorkItemInput{ID: 3, CreatedOn: monday.AddDate(0, 0, 3), FixedVersion: "v1"})
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	wip := WorkInProgress([]*domain.WorkItem{planned, proposed, later}, monday.AddDate(0, 0, 1))
	want := WIP{Date: monday.AddDate(0, 0, 1), Planned: 1}
	// Unplanned items report the unplanned status, so they never reach the
	// proposed bucket through StatusAt.
	if diff := cmp.Diff(want, wip); diff != "" {
		t.Fatalf("WIP mismatch (-want +got):\n%s", diff)
	}
	if wip.Total() != 1 {
		t.Fatalf("expected total 1, got %d", wip.Total())
	}
}

func TestThroughputProgressionFixture(t *testing.T) {
	e := newTestEngine(t)
	timeline := fixtureTimeline(t, e)
	items := fixtureTickets(t, timeline)

	cases := []struct {
		width   int
		inflow  []float64
		outflow []float64
	}{
		{
			width:   1,
			inflow:  []float64{0, 0, 1, 0, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			outflow: []float64{0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 1, 0, 1, 0, 0},
		},
		{
			width:   2,
			inflow:  []float64{0, 0, 0, 0.5, 0.5, 1, 0.5, 0, 0, 0, 0, 0, 0, 0, 0},
			outflow: []float64{0, 0, 0, 0, 0, 0, 0, 0.5, 0.5, 0, 0.5, 0.5, 0.5, 0.5, 0},
		},
	}
	for _, tc := range cases {
		got, err := e.ThroughputProgression(context.Background(), items, timeline, tc.width)
		if err != nil {
			t.Fatalf("ThroughputProgression(width=%d) error = %v", tc.width, err)
		}
		want := Throughput{Inflow: tc.inflow, Outflow: tc.outflow}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("width %d throughput mismatch (-want +got):\n%s", tc.width, diff)
		}
	}

	if _, err := e.ThroughputProgression(context.Background(), items, timeline, 0); !errors.Is(err, ErrInvalidWidth) {
		t.Fatalf("expected ErrInvalidWidth, got %v", err)
	}
}

func TestProgressionHonoursCancellation(t *testing.T) {
	e := newTestEngine(t)
	timeline := fixtureTimeline(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.WIPProgression(ctx, fixtureTickets(t, timeline), timeline); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAverageLeadTime(t *testing.T) {
	e := newTestEngine(t)
	timeline := fixtureTimeline(t, e)
	items := fixtureTickets(t, timeline)

	cases := []struct {
		name  string
		pivot int
		width int
		want  LeadTimeStats
	}{
		{
			name:  "open items get the grace period",
			pivot: 8,
			width: 2,
			want:  LeadTimeStats{Min: 6, Max: 7, Mean: 6.5, StdDev: math.Sqrt(0.5), Count: 2},
		},
		{
			name:  "width one is widened to two",
			pivot: 8,
			width: 1,
			want:  LeadTimeStats{Min: 6, Max: 7, Mean: 6.5, StdDev: math.Sqrt(0.5), Count: 2},
		},
		{
			name:  "done and open items",
			pivot: 11,
			width: 4,
			want:  LeadTimeStats{Min: 7, Max: 9, Mean: 8, StdDev: math.Sqrt(2), Count: 2},
		},
		{
			name:  "everything delivered before the window",
			pivot: 14,
			width: 2,
			want:  LeadTimeStats{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := e.AverageLeadTime(items, timeline[tc.pivot], tc.width)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("lead time mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAverageLeadTimeCountsItemsWithoutLeadTime(t *testing.T) {
	e := newTestEngine(t)
	timeline := fixtureTimeline(t, e)

	delivered := ticket(t, 1, domain.KindUserStory, "NI.D", timeline)
	waiting := ticket(t, 2, domain.KindUserStory, "N", timeline)
	got := e.AverageLeadTime([]*domain.WorkItem{delivered, waiting}, timeline[4], 20)
	if diff := cmp.Diff(LeadTimeStats{Min: 4, Max: 4, Mean: 2, StdDev: 2, Count: 2}, got); diff != "" {
		t.Fatalf("lead time mismatch (-want +got):\n%s", diff)
	}

	items := append(fixtureTickets(t, timeline), ticket(t, 4, domain.KindUserStory, "......N", timeline))
	mean := 13.0 / 3
	d6, d7 := 6-mean, 7-mean
	want := LeadTimeStats{Min: 6, Max: 7, Mean: 4.3, StdDev: math.Sqrt((d6*d6 + d7*d7) / 2), Count: 3}
	if diff := cmp.Diff(want, e.AverageLeadTime(items, timeline[8], 2)); diff != "" {
		t.Fatalf("lead time with a waiting item mismatch (-want +got):\n%s", diff)
	}
}

func TestLeadTimeKPIAndProgression(t *testing.T) {
	e := newTestEngine(t)
	timeline := fixtureTimeline(t, e)
	items := fixtureTickets(t, timeline)

	if got := e.LeadTimeKPI(items, timeline[14]); got != 7 {
		t.Fatalf("LeadTimeKPI() = %v, want 7", got)
	}
	progression, err := e.LeadTimeProgression(context.Background(), items, timeline, 2)
	if err != nil {
		t.Fatalf("LeadTimeProgression() error = %v", err)
	}
	if len(progression) != len(timeline) {
		t.Fatalf("expected %d entries, got %d", len(timeline), len(progression))
	}
	if diff := cmp.Diff(e.AverageLeadTime(items, timeline[8], 2), progression[8]); diff != "" {
		t.Fatalf("progression entry mismatch (-want +got):\n%s", diff)
	}
}

func TestVelocity(t *testing.T) {
	e := newTestEngine(t)
	timeline := fixtureTimeline(t, e)
	items := fixtureTickets(t, timeline)

	got, err := e.Velocity(context.Background(), items, timeline[14])
	if err != nil {
		t.Fatalf("Velocity() error = %v", err)
	}
	if got != 0.15 {
		t.Fatalf("Velocity() = %v, want 0.15", got)
	}

	floor, err := e.Velocity(context.Background(), nil, timeline[14])
	if err != nil {
		t.Fatalf("Velocity() error = %v", err)
	}
	if floor != MinVelocity {
		t.Fatalf("expected the velocity floor for no items, got %v", floor)
	}
	early, err := e.Velocity(context.Background(), items, timeline[0])
	if err != nil {
		t.Fatalf("Velocity() error = %v", err)
	}
	if early == 0 {
		t.Fatal("velocity must never be zero")
	}
}

func TestNewEngineValidation(t *testing.T) {
	if _, err := NewEngine(nil, DefaultPolicy()); !errors.Is(err, ErrNilCalendar) {
		t.Fatalf("expected ErrNilCalendar, got %v", err)
	}
	bad := DefaultPolicy()
	bad.FastSpeedup = 0
	if _, err := NewEngine(calendar.MustNew(calendar.NewVacationTable()), bad); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
	bad = DefaultPolicy()
	bad.InProgressStoryCompletion = 1.5
	if err := bad.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("DefaultPolicy().Validate() error = %v", err)
	}
}
