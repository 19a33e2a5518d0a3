// Package config handles slotwatch configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/slotwatch/appointment"
	"github.com/hazyhaar/slotwatch/internal/intro"
	"github.com/hazyhaar/slotwatch/internal/markup"
	"github.com/hazyhaar/slotwatch/internal/schedule"
	"github.com/hazyhaar/slotwatch/internal/slots"
	"github.com/hazyhaar/slotwatch/internal/update"
)

// DefaultPath is where the CLI looks for the configuration.
const DefaultPath = "slotwatch.yaml"

// DefaultURLTemplate is the scheduling page of one store.
const DefaultURLTemplate = "https://www.examappts.com/ScheduleExamView?catalogId=12751&storeId=12001&langId=-1&storeNumber={store}&clearExams=1&cid=yext_{store}"

// ErrNotExist is returned by LoadFile when the file is missing.
var ErrNotExist = errors.New("config: file does not exist")

// Config is the top-level slotwatch configuration.
type Config struct {
	StoreNumber int    `yaml:"store_number"`
	URLTemplate string `yaml:"url_template"` // {store} is replaced by StoreNumber

	Budget      appointment.Budget `yaml:"budget"`
	Schedule    ScheduleConfig     `yaml:"schedule"`
	Browser     BrowserConfig      `yaml:"browser"`
	Timing      TimingConfig       `yaml:"timing"`
	Markup      markup.Markup      `yaml:"markup,omitempty"`
	Render      RenderConfig       `yaml:"render"`
	Diagnostics DiagnosticsConfig  `yaml:"diagnostics"`
	Update      UpdateConfig       `yaml:"update"`
	RunLog      RunLogConfig       `yaml:"runlog"`
	Server      ServerConfig       `yaml:"server"`
}

// ScheduleConfig controls when runs happen.
type ScheduleConfig struct {
	schedule.Window `yaml:",inline"`

	Interval time.Duration `yaml:"interval"`
	// StdinRefresh triggers a run on every line typed on stdin.
	StdinRefresh bool `yaml:"stdin_refresh"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"` // DevTools URL; empty launches a local Chrome
	Bin              string        `yaml:"bin"`
	Headful          bool          `yaml:"headful"`
	XvfbDisplay      string        `yaml:"xvfb_display"`
	NoSandbox        bool          `yaml:"no_sandbox"`
	WindowWidth      int           `yaml:"window_width"`
	WindowHeight     int           `yaml:"window_height"`
	UserAgent        string        `yaml:"user_agent"`
	ResourceBlocking []string      `yaml:"resource_blocking"` // images | fonts | media | stylesheets
	NavTimeout       time.Duration `yaml:"nav_timeout"`
}

// TimingConfig tunes waits inside a run.
type TimingConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	CalendarTimeout time.Duration `yaml:"calendar_timeout"`
	HeaderWait      time.Duration `yaml:"header_wait"`
	MaxFrameDepth   int           `yaml:"max_frame_depth"`
	Intro           intro.Timing  `yaml:"intro"`
	Slots           slots.Timing  `yaml:"slots"`
}

// RenderConfig controls the kiosk page.
type RenderConfig struct {
	Output         string   `yaml:"output"`
	Title          string   `yaml:"title"`
	Subtitle       string   `yaml:"subtitle"`
	FooterHTML     string   `yaml:"footer_html"`
	LogoFiles      []string `yaml:"logo_files"`
	RefreshSeconds int      `yaml:"refresh_seconds"`
	QRSize         int      `yaml:"qr_size"`
}

// DiagnosticsConfig controls failure snapshots.
type DiagnosticsConfig struct {
	Dir              string `yaml:"dir"`
	NoMarkdown       bool   `yaml:"no_markdown"`
	CaptureEmptyDays bool   `yaml:"capture_empty_days"`
}

// UpdateConfig controls self-update.
type UpdateConfig struct {
	update.Config `yaml:",inline"`

	Disabled bool `yaml:"disabled"`
}

// RunLogConfig controls the run history database.
type RunLogConfig struct {
	Path      string        `yaml:"path"` // "-" disables the history
	Retention time.Duration `yaml:"retention"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"` // empty disables the server
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, path)
	}
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

const defaultHeader = `# slotwatch configuration.
# Set store_number, and start_hour/end_hour under schedule to limit runs to
# opening hours (leave them out to run around the clock).
# Every CSS selector and label used on the booking site can be overridden
# under a "markup:" section; missing entries keep the built-in values.
`

// WriteDefault creates path with the default configuration. It fails if
// the file already exists.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("config: create: %w", err)
	}
	if _, err := f.WriteString(defaultHeader + string(data)); err != nil {
		f.Close()
		return fmt.Errorf("config: write: %w", err)
	}
	return f.Close()
}

func (c *Config) applyDefaults() {
	if c.StoreNumber <= 0 {
		c.StoreNumber = 2064
	}
	if c.URLTemplate == "" {
		c.URLTemplate = DefaultURLTemplate
	}
	if c.Budget.MonthsToScan <= 0 {
		c.Budget.MonthsToScan = 2
	}
	if c.Budget.MaxDaysPerRun <= 0 {
		c.Budget.MaxDaysPerRun = 6
	}
	if c.Schedule.Interval <= 0 {
		c.Schedule.Interval = 5 * time.Minute
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.WindowWidth <= 0 {
		c.Browser.WindowWidth = 1920
	}
	if c.Browser.WindowHeight <= 0 {
		c.Browser.WindowHeight = 1080
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 45 * time.Second
	}
	if c.Timing.PollInterval <= 0 {
		c.Timing.PollInterval = 250 * time.Millisecond
	}
	if c.Timing.CalendarTimeout <= 0 {
		c.Timing.CalendarTimeout = 20 * time.Second
	}
	if c.Timing.HeaderWait <= 0 {
		c.Timing.HeaderWait = 3 * time.Second
	}
	if c.Timing.MaxFrameDepth <= 0 {
		c.Timing.MaxFrameDepth = 3
	}
	c.Timing.Intro = c.Timing.Intro.WithDefaults()
	c.Timing.Slots = c.Timing.Slots.WithDefaults()
	if c.Render.Output == "" {
		c.Render.Output = "eye_appointments.html"
	}
	if len(c.Render.LogoFiles) == 0 {
		c.Render.LogoFiles = []string{"logo.png", "logo.jpeg", "logo.jpg"}
	}
	if c.Render.QRSize <= 0 {
		c.Render.QRSize = 256
	}
	if c.Diagnostics.Dir == "" {
		c.Diagnostics.Dir = "diagnostics"
	}
	if c.Update.CheckEvery <= 0 {
		c.Update.CheckEvery = 10
	}
	if c.Update.Remote == "" {
		c.Update.Remote = "origin"
	}
	if c.Update.Branch == "" {
		c.Update.Branch = "main"
	}
	if len(c.Update.Preserve) == 0 {
		c.Update.Preserve = c.Render.LogoFiles
	}
	if c.RunLog.Path == "" {
		c.RunLog.Path = "slotwatch.db"
	}
	if c.RunLog.Retention <= 0 {
		c.RunLog.Retention = 30 * 24 * time.Hour
	}
}

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("SLOTWATCH_STORE_NUMBER"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: SLOTWATCH_STORE_NUMBER: %w", err)
		}
		c.StoreNumber = n
	}
	if v, ok := lookup("SLOTWATCH_BROWSER_REMOTE"); ok {
		c.Browser.Remote = v
	}
	if v, ok := lookup("SLOTWATCH_SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	return nil
}

// Validate checks values defaults cannot repair.
func (c *Config) Validate() error {
	if c.StoreNumber <= 0 {
		return fmt.Errorf("config: store_number must be positive, got %d", c.StoreNumber)
	}
	if !strings.HasPrefix(c.URL(), "http") {
		return fmt.Errorf("config: url_template %q is not a URL", c.URLTemplate)
	}
	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("config: budget: %w", err)
	}
	if err := c.Schedule.Window.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// URL is the booking page of the configured store.
func (c *Config) URL() string {
	return strings.ReplaceAll(c.URLTemplate, "{store}", strconv.Itoa(c.StoreNumber))
}
