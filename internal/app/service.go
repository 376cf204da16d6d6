package app

import (
	"context"
	"fmt"
	"time"

	"github.com/evanschultz/kanmetrics/internal/calendar"
	"github.com/evanschultz/kanmetrics/internal/domain"
	"github.com/evanschultz/kanmetrics/internal/kpi"
)

// IDGenerator returns unique identifiers for report runs.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Logger is the structured logger the service reports to.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(any, ...any) {}
func (nopLogger) Info(any, ...any)  {}
func (nopLogger) Warn(any, ...any)  {}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	Logger          Logger
	LeadTimeWindow  int
	ThroughputWidth int
}

// Service builds reports out of the stored ledger.
type Service struct {
	repo            Repository
	engine          *kpi.Engine
	idGen           IDGenerator
	clock           Clock
	logger          Logger
	leadTimeWindow  int
	throughputWidth int
}

// NewService constructs a service over repo computing with engine.
func NewService(repo Repository, engine *kpi.Engine, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	if cfg.LeadTimeWindow < 1 {
		cfg.LeadTimeWindow = kpi.LeadTimeKPIWidth
	}
	if cfg.ThroughputWidth < 1 {
		cfg.ThroughputWidth = 1
	}
	return &Service{
		repo:            repo,
		engine:          engine,
		idGen:           idGen,
		clock:           clock,
		logger:          cfg.Logger,
		leadTimeWindow:  cfg.LeadTimeWindow,
		throughputWidth: cfg.ThroughputWidth,
	}
}

// LoadProject loads every stored item and links children to their parents.
func (s *Service) LoadProject(ctx context.Context) (*domain.Project, error) {
	project, _, err := s.loadProject(ctx)
	return project, err
}

func (s *Service) loadProject(ctx context.Context) (*domain.Project, []int, error) {
	items, err := s.repo.ListWorkItems(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list work items: %w", err)
	}
	project, err := domain.NewProject(items...)
	if err != nil {
		return nil, nil, err
	}
	orphans := project.LinkChildren()
	orphanIDs := make([]int, 0, len(orphans))
	for _, orphan := range orphans {
		orphanIDs = append(orphanIDs, orphan.ID)
	}
	if len(orphanIDs) > 0 {
		s.logger.Warn("work items detached from unknown or cyclic parents", "count", len(orphanIDs), "ids", orphanIDs)
	}
	s.logger.Debug("project loaded", "items", project.Len())
	return project, orphanIDs, nil
}

// Timeline returns the working days from from through to.
func (s *Service) Timeline(from, to time.Time) ([]time.Time, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: both bounds are required", ErrInvalidRange)
	}
	return s.engine.Calendar().BuildTimeline(from, to)
}

// today truncates the clock to a UTC calendar date.
func (s *Service) today() time.Time {
	now := s.clock()
	return calendar.Date(now.Year(), now.Month(), now.Day())
}

// ReportOptions selects the dates and parameters of one report run.
// Zero values fall back to the clock date, the project start and the service defaults.
type ReportOptions struct {
	Today           time.Time
	ETAExpected     time.Time
	From            time.Time
	IncomingStories int
	LeadTimeWindow  int
	ThroughputWidth int
}

// UseCaseSummary is the breakdown of one top-level use case.
type UseCaseSummary struct {
	ID      int               `json:"id"`
	Subject string            `json:"subject"`
	Counts  kpi.UseCaseCounts `json:"counts"`
}

// Report is the output of one BuildReport run. Series are computed over
// story-like items along Timeline.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Today       time.Time `json:"today"`
	Items       int       `json:"items"`
	Orphans     []int     `json:"orphans,omitempty"`

	Timeline   []time.Time         `json:"timeline"`
	WIP        []kpi.WIP           `json:"wip"`
	AverageWIP []int               `json:"average_wip"`
	Throughput kpi.Throughput      `json:"throughput"`
	LeadTimes  []kpi.LeadTimeStats `json:"lead_times"`

	Statistics    *kpi.Statistics  `json:"statistics"`
	Forecast      *kpi.Forecast    `json:"forecast,omitempty"`
	ForecastError string           `json:"forecast_error,omitempty"`
	UseCases      []UseCaseSummary `json:"use_cases,omitempty"`
}

// BuildReport computes series, statistics and the forecast of the stored project.
// A forecast failure is kept in ForecastError; the rest of the report still returns.
func (s *Service) BuildReport(ctx context.Context, opts ReportOptions) (Report, error) {
	if opts.Today.IsZero() {
		opts.Today = s.today()
	}
	if opts.LeadTimeWindow < 1 {
		opts.LeadTimeWindow = s.leadTimeWindow
	}
	if opts.ThroughputWidth < 1 {
		opts.ThroughputWidth = s.throughputWidth
	}
	if opts.IncomingStories < 0 {
		return Report{}, fmt.Errorf("%w: %d", kpi.ErrInvalidIncoming, opts.IncomingStories)
	}

	project, orphans, err := s.loadProject(ctx)
	if err != nil {
		return Report{}, err
	}
	if project.Len() == 0 {
		return Report{}, ErrEmptyProject
	}
	if opts.From.IsZero() {
		opts.From, _ = project.StartDate()
	}
	if opts.From.After(opts.Today) {
		return Report{}, fmt.Errorf("%w: from %s after today %s", ErrInvalidRange, opts.From.Format(time.DateOnly), opts.Today.Format(time.DateOnly))
	}

	timeline, err := s.engine.Calendar().BuildTimeline(opts.From, opts.Today)
	if err != nil {
		return Report{}, err
	}

	items := project.Items()
	stories := project.Query(func(w *domain.WorkItem) bool { return w.Kind.IsStoryLike() })

	report := Report{
		RunID:       s.idGen(),
		GeneratedAt: s.clock().UTC(),
		Today:       opts.Today,
		Items:       len(items),
		Orphans:     orphans,
		Timeline:    timeline,
	}
	s.logger.Info("building report", "run_id", report.RunID, "today", opts.Today.Format(time.DateOnly), "timeline_days", len(timeline))

	if report.WIP, err = s.engine.WIPProgression(ctx, stories, timeline); err != nil {
		return Report{}, err
	}
	if report.AverageWIP, err = s.engine.AverageWIPProgression(ctx, stories, timeline); err != nil {
		return Report{}, err
	}
	if report.Throughput, err = s.engine.ThroughputProgression(ctx, stories, timeline, opts.ThroughputWidth); err != nil {
		return Report{}, err
	}
	if report.LeadTimes, err = s.engine.LeadTimeProgression(ctx, stories, timeline, opts.LeadTimeWindow); err != nil {
		return Report{}, err
	}

	report.Statistics, err = s.engine.Statistics(ctx, items, kpi.StatisticsOptions{
		Today:       opts.Today,
		ETAExpected: opts.ETAExpected,
	})
	if err != nil {
		return Report{}, err
	}
	for _, failure := range report.Statistics.Failures {
		s.logger.Warn("kpi unavailable", "run_id", report.RunID, "kpi", failure.KPI, "err", failure.Error)
	}

	forecast, err := report.Statistics.Forecast(opts.IncomingStories)
	if err != nil {
		report.ForecastError = err.Error()
		s.logger.Warn("forecast unavailable", "run_id", report.RunID, "err", err)
	} else {
		report.Forecast = &forecast
	}

	for _, useCase := range project.TopLevelUseCases() {
		report.UseCases = append(report.UseCases, UseCaseSummary{
			ID:      useCase.ID,
			Subject: useCase.Subject,
			Counts:  kpi.UseCaseBreakdown(useCase),
		})
	}
	s.logger.Info("report ready", "run_id", report.RunID, "failures", len(report.Statistics.Failures))
	return report, nil
}

// ProgressBar is the status history of one item along a timeline.
type ProgressBar struct {
	ID           int           `json:"id"`
	Kind         domain.Kind   `json:"kind"`
	Subject      string        `json:"subject"`
	FixedVersion string        `json:"fixed_version,omitempty"`
	Status       domain.Status `json:"status"`
	PercentDone  float64       `json:"percent_done"`
	Bar          string        `json:"bar"`
}

// ProgressBars renders one bar per stored item in display order.
func (s *Service) ProgressBars(ctx context.Context, from, to time.Time) ([]ProgressBar, error) {
	project, _, err := s.loadProject(ctx)
	if err != nil {
		return nil, err
	}
	if from.IsZero() {
		from, _ = project.StartDate()
	}
	if to.IsZero() {
		to = s.today()
	}
	if from.IsZero() {
		return nil, ErrEmptyProject
	}
	timeline, err := s.Timeline(from, to)
	if err != nil {
		return nil, err
	}

	items := domain.SortForDisplay(project.Items())
	out := make([]ProgressBar, 0, len(items))
	for _, item := range items {
		out = append(out, ProgressBar{
			ID:           item.ID,
			Kind:         item.Kind,
			Subject:      item.Subject,
			FixedVersion: item.FixedVersion,
			Status:       item.CurrentStatus,
			PercentDone:  item.PercentDone(),
			Bar:          item.ProgressBar(timeline),
		})
	}
	return out, nil
}
