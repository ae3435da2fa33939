package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	platformgrpc "github.com/lectureStudio/lectureStudio-sub005/internal/platform/grpc"
	"github.com/lectureStudio/lectureStudio-sub005/internal/platform/timeouts"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/storage"
	annotationsqlite "github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/storage/sqlite"
)

// HealthService is the gRPC health service name reported while the commit
// worker runs.
const HealthService = "annotation.commit"

const (
	defaultPort         = 8095
	defaultDBPath       = "data/annotation.db"
	defaultRecordingID  = "default"
	defaultPages        = 1
	defaultPageDuration = time.Minute
)

// RuntimeConfig controls annotation runtime startup.
type RuntimeConfig struct {
	Port         int
	DBPath       string
	RecordingID  string
	ScriptPath   string
	Pages        int
	PageDuration time.Duration
	LiveCapture  bool
	AwaitTimeout time.Duration
	// Listener, when set, serves health checks instead of listening on Port.
	Listener net.Listener
}

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}
	cfg.RecordingID = strings.TrimSpace(cfg.RecordingID)
	if cfg.RecordingID == "" {
		cfg.RecordingID = defaultRecordingID
	}
	if cfg.Pages <= 0 {
		cfg.Pages = defaultPages
	}
	if cfg.PageDuration <= 0 {
		cfg.PageDuration = defaultPageDuration
	}
	if cfg.AwaitTimeout <= 0 {
		cfg.AwaitTimeout = timeouts.AwaitCommits
	}
	return cfg
}

// Run opens the recording, runs the commit worker behind a gRPC health
// endpoint, replays the configured script and saves the result. Without a
// script it records until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg = cfg.normalized()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create annotation storage dir: %w", err)
		}
	}

	var commands []Command
	if cfg.ScriptPath != "" {
		var err error
		if commands, err = loadScript(cfg.ScriptPath); err != nil {
			return err
		}
	}

	store, err := annotationsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open annotation sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close annotation sqlite store: %v", closeErr)
		}
	}()

	schema, err := store.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("read annotation schema: %w", err)
	}
	log.Printf("annotation store %s at schema %v", cfg.DBPath, schema)

	pages, err := loadOrCreate(ctx, store, cfg)
	if err != nil {
		return err
	}
	recorder, err := NewRecorder(pages, Options{
		LiveCapture: cfg.LiveCapture,
		Logf:        log.Printf,
	})
	if err != nil {
		return err
	}

	listener := cfg.Listener
	if listener == nil {
		if listener, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port)); err != nil {
			return fmt.Errorf("listen on annotation port %d: %w", cfg.Port, err)
		}
	}
	defer listener.Close()

	grpcServer, healthServer := platformgrpc.NewHealthServer(HealthService)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve annotation health: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		defer func() {
			healthServer.Shutdown()
			grpcServer.GracefulStop()
		}()
		return runRecording(groupCtx, cfg, store, recorder, healthServer, commands)
	})

	log.Printf("annotation server listening at %v", listener.Addr())
	return group.Wait()
}

// CheckHealth dials a running annotation process at addr and waits until its
// commit worker reports SERVING or timeout elapses.
func CheckHealth(ctx context.Context, addr string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = timeouts.HealthCheck
	}
	conn, err := grpc.NewClient(addr, platformgrpc.ClientDialOptions()...)
	if err != nil {
		return fmt.Errorf("dial annotation health %s: %w", addr, err)
	}
	defer conn.Close()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return platformgrpc.WaitForHealth(waitCtx, conn, HealthService, log.Printf)
}

func runRecording(ctx context.Context, cfg RuntimeConfig, store storage.RecordingStore, recorder *Recorder, healthServer *health.Server, commands []Command) error {
	// The worker outlives ctx so queued operations drain before saving.
	if err := recorder.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	controller := recorder.NewToolController()
	var replayErr error
	if commands != nil {
		replayErr = controller.Replay(ctx, commands)
		if _, err := controller.SetIsEditing(false); err != nil && replayErr == nil {
			replayErr = err
		}
	} else {
		<-ctx.Done()
	}

	awaitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.AwaitTimeout)
	defer cancel()
	waitErr := controller.Wait(awaitCtx)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	if err := recorder.Stop(); err != nil {
		return fmt.Errorf("commit worker: %w", err)
	}
	if replayErr != nil && !errors.Is(replayErr, context.Canceled) {
		return fmt.Errorf("replay script: %w", replayErr)
	}
	if errors.Is(waitErr, context.DeadlineExceeded) {
		return fmt.Errorf("await commits: %w", waitErr)
	}
	if waitErr != nil {
		log.Printf("rejected operations: %v", waitErr)
	}

	if err := recorder.Verify(); err != nil {
		return fmt.Errorf("verify recording: %w", err)
	}
	pages, err := recorder.Pages()
	if err != nil {
		return err
	}
	if err := store.SavePages(context.WithoutCancel(ctx), cfg.RecordingID, pages); err != nil {
		return fmt.Errorf("save recording %s: %w", cfg.RecordingID, err)
	}
	log.Printf("saved recording %s: %s", cfg.RecordingID, summarize(pages))
	return nil
}

func loadOrCreate(ctx context.Context, store storage.RecordingStore, cfg RuntimeConfig) ([]domain.Page, error) {
	pages, err := store.LoadPages(ctx, cfg.RecordingID)
	if err == nil {
		return pages, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load recording %s: %w", cfg.RecordingID, err)
	}
	durationMs := uint64(cfg.PageDuration.Milliseconds())
	pages = make([]domain.Page, cfg.Pages)
	for i := range pages {
		pages[i] = domain.Page{Index: i, DurationMs: durationMs}
	}
	log.Printf("created recording %s with %d pages of %v", cfg.RecordingID, cfg.Pages, cfg.PageDuration)
	return pages, nil
}

func loadScript(path string) ([]Command, error) {
	if strings.EqualFold(filepath.Ext(path), ".lua") {
		return LoadLuaScript(path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer file.Close()
	commands, err := ParseScript(file)
	if err != nil {
		return nil, err
	}
	if commands == nil {
		commands = []Command{}
	}
	return commands, nil
}

func summarize(pages []domain.Page) string {
	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		parts = append(parts, fmt.Sprintf("page %d: %d actions", page.Index, len(page.Actions)))
	}
	return strings.Join(parts, ", ")
}
