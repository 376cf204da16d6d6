package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/evanschultz/kanmetrics/internal/calendar"
	"github.com/evanschultz/kanmetrics/internal/kpi"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Logging  LoggingConfig  `toml:"logging"`
	Calendar CalendarConfig `toml:"calendar"`
	Forecast ForecastConfig `toml:"forecast"`
	Report   ReportConfig   `toml:"report"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"` // debug | info | warn | error
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type CalendarConfig struct {
	IncludeDefaultHolidays bool             `toml:"include_default_holidays"`
	Vacations              []VacationConfig `toml:"vacations"`
}

type VacationConfig struct {
	Month       int    `toml:"month"`
	Day         int    `toml:"day"`
	Description string `toml:"description"`
}

type ForecastConfig struct {
	InProgressDefectCoefficient float64 `toml:"in_progress_defect_coefficient"`
	DeliveredDefectCoefficient  float64 `toml:"delivered_defect_coefficient"`
	BacklogDefectCoefficient    float64 `toml:"backlog_defect_coefficient"`
	InProgressStoryCompletion   float64 `toml:"in_progress_story_completion"`
	InProgressDefectCompletion  float64 `toml:"in_progress_defect_completion"`
	FastSpeedup                 float64 `toml:"fast_speedup"`
	SlowSpeedup                 float64 `toml:"slow_speedup"`
	MinRemainingDefects         float64 `toml:"min_remaining_defects"`
	StabilizationDays           int     `toml:"stabilization_days"`
	MinStoryVelocity            float64 `toml:"min_story_velocity"`
	MinDefectVelocity           float64 `toml:"min_defect_velocity"`
}

type ReportConfig struct {
	// Zero dates mean "today" at run time.
	Today           toml.LocalDate `toml:"today"`
	ETAExpected     toml.LocalDate `toml:"eta_expected"`
	IncomingStories int            `toml:"incoming_stories"`
	LeadTimeWindow  int            `toml:"lead_time_window"`
}

// ServerConfig configures `kanmetrics serve`.
type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

func Default(dbPath string) Config {
	p := kpi.DefaultPolicy()
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: false,
				Dir:     ".kanmetrics/log",
			},
		},
		Calendar: CalendarConfig{
			IncludeDefaultHolidays: true,
		},
		Forecast: ForecastConfig{
			InProgressDefectCoefficient: p.InProgressDefectCoefficient,
			DeliveredDefectCoefficient:  p.DeliveredDefectCoefficient,
			BacklogDefectCoefficient:    p.BacklogDefectCoefficient,
			InProgressStoryCompletion:   p.InProgressStoryCompletion,
			InProgressDefectCompletion:  p.InProgressDefectCompletion,
			FastSpeedup:                 p.FastSpeedup,
			SlowSpeedup:                 p.SlowSpeedup,
			MinRemainingDefects:         p.MinRemainingDefects,
			StabilizationDays:           p.StabilizationDays,
			MinStoryVelocity:            p.MinStoryVelocity,
			MinDefectVelocity:           p.MinDefectVelocity,
		},
		Report: ReportConfig{
			IncomingStories: 0,
			LeadTimeWindow:  kpi.LeadTimeKPIWidth,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	c.Database.Path = strings.TrimSpace(c.Database.Path)
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when the dev file is enabled")
	}

	if _, err := c.VacationTable(); err != nil {
		return err
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}

	if c.Report.IncomingStories < 0 {
		return errors.New("report.incoming_stories must be >= 0")
	}
	if c.Report.LeadTimeWindow < 1 {
		return errors.New("report.lead_time_window must be >= 1")
	}
	if isSet(c.Report.Today) && isSet(c.Report.ETAExpected) {
		if c.Report.ETAExpected.AsTime(time.UTC).Before(c.Report.Today.AsTime(time.UTC)) {
			return fmt.Errorf("report.eta_expected %s is before report.today %s", c.Report.ETAExpected, c.Report.Today)
		}
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}

	return nil
}

// VacationTable builds the recurring vacation table the calendar runs on.
func (c Config) VacationTable() (*calendar.VacationTable, error) {
	table := calendar.NewVacationTable()
	if c.Calendar.IncludeDefaultHolidays {
		table = calendar.DefaultVacationTable()
	}
	for idx, v := range c.Calendar.Vacations {
		if err := table.AddRecurringDay(strings.TrimSpace(v.Description), v.Day, v.Month); err != nil {
			return nil, fmt.Errorf("calendar.vacations[%d]: %w", idx, err)
		}
	}
	return table, nil
}

func (c Config) Policy() kpi.Policy {
	f := c.Forecast
	return kpi.Policy{
		InProgressDefectCoefficient: f.InProgressDefectCoefficient,
		DeliveredDefectCoefficient:  f.DeliveredDefectCoefficient,
		BacklogDefectCoefficient:    f.BacklogDefectCoefficient,
		InProgressStoryCompletion:   f.InProgressStoryCompletion,
		InProgressDefectCompletion:  f.InProgressDefectCompletion,
		FastSpeedup:                 f.FastSpeedup,
		SlowSpeedup:                 f.SlowSpeedup,
		MinRemainingDefects:         f.MinRemainingDefects,
		StabilizationDays:           f.StabilizationDays,
		MinStoryVelocity:            f.MinStoryVelocity,
		MinDefectVelocity:           f.MinDefectVelocity,
	}
}

// ReportDate converts a configured date, falling back when unset.
func ReportDate(d toml.LocalDate, fallback time.Time) time.Time {
	if !isSet(d) {
		return fallback
	}
	return calendar.Date(d.Year, time.Month(d.Month), d.Day)
}

func isSet(d toml.LocalDate) bool {
	return d != toml.LocalDate{}
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
