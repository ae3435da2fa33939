// Package annotation parses annotation command flags and launches the
// annotation runtime.
package annotation

import (
	"context"
	"flag"
	"net"
	"strconv"
	"time"

	entrypoint "github.com/lectureStudio/lectureStudio-sub005/internal/platform/cmd"
	annotationapp "github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/app"
)

// Config holds annotation command configuration.
type Config struct {
	Port         int           `env:"LECTURESTUDIO_ANNOTATION_PORT" envDefault:"8095"`
	DBPath       string        `env:"LECTURESTUDIO_ANNOTATION_DB_PATH" envDefault:"data/annotation.db"`
	RecordingID  string        `env:"LECTURESTUDIO_ANNOTATION_RECORDING_ID" envDefault:"default"`
	ScriptPath   string        `env:"LECTURESTUDIO_ANNOTATION_SCRIPT"`
	Pages        int           `env:"LECTURESTUDIO_ANNOTATION_PAGES" envDefault:"1"`
	PageDuration time.Duration `env:"LECTURESTUDIO_ANNOTATION_PAGE_DURATION" envDefault:"1m"`
	LiveCapture  bool          `env:"LECTURESTUDIO_ANNOTATION_LIVE_CAPTURE" envDefault:"false"`
	AwaitTimeout time.Duration `env:"LECTURESTUDIO_ANNOTATION_AWAIT_TIMEOUT" envDefault:"30s"`
	// HealthCheck checks a running process on Port instead of starting one.
	HealthCheck        bool
	HealthCheckTimeout time.Duration `env:"LECTURESTUDIO_ANNOTATION_HEALTHCHECK_TIMEOUT" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The annotation health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The annotation SQLite database path")
	fs.StringVar(&cfg.RecordingID, "recording", cfg.RecordingID, "Recording to open or create")
	fs.StringVar(&cfg.ScriptPath, "script", cfg.ScriptPath, "JSON-lines tool input script to replay")
	fs.IntVar(&cfg.Pages, "pages", cfg.Pages, "Page count of a new recording")
	fs.DurationVar(&cfg.PageDuration, "page-duration", cfg.PageDuration, "Page duration of a new recording")
	fs.BoolVar(&cfg.LiveCapture, "live", cfg.LiveCapture, "Append tool input outside edit mode")
	fs.DurationVar(&cfg.AwaitTimeout, "await-timeout", cfg.AwaitTimeout, "Maximum wait for queued commits on shutdown")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", cfg.HealthCheck, "Check the health of a running annotation process and exit")
	fs.DurationVar(&cfg.HealthCheckTimeout, "healthcheck-timeout", cfg.HealthCheckTimeout, "Maximum wait for a healthy annotation process")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the annotation runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAnnotation, func(ctx context.Context) error {
		if cfg.HealthCheck {
			return annotationapp.CheckHealth(ctx, net.JoinHostPort("localhost", strconv.Itoa(cfg.Port)), cfg.HealthCheckTimeout)
		}
		return annotationapp.Run(ctx, annotationapp.RuntimeConfig{
			Port:         cfg.Port,
			DBPath:       cfg.DBPath,
			RecordingID:  cfg.RecordingID,
			ScriptPath:   cfg.ScriptPath,
			Pages:        cfg.Pages,
			PageDuration: cfg.PageDuration,
			LiveCapture:  cfg.LiveCapture,
			AwaitTimeout: cfg.AwaitTimeout,
		})
	})
}
