package utils

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"confdesk/src-server/authz"
	"confdesk/src-server/bus"
	"confdesk/src-server/messaging"
	"confdesk/src-server/model"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/sony/gobreaker/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type AppState struct {
	Config *Config
	RawDB  *sql.DB
	BunDB  *bun.DB
	When   *when.Parser

	Dispatcher *messaging.Dispatcher
	Bus        *bus.Bus
	Enforcer   *authz.Enforcer

	MetricChans *MetricChans

	// receives SIGINT/SIGTERM, or a synthetic signal when a fatal service
	// stops the app
	AppCloseSignalChan chan os.Signal

	gracefulShutdownMu    sync.Mutex
	gracefulShutdownChans []chan struct{}
}

// NewAppState opens the database, creates the schema and builds the
// messaging providers configured in cfg.
func NewAppState(cfg *Config) (*AppState, error) {
	rawDB, bunDB, err := openDatabase(cfg.GetDatabaseType(), cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("NewAppState: %w", err)
	}
	bunDB.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(true),
		bundebug.FromEnv("BUNDEBUG"),
	))
	as, err := newAppState(cfg, rawDB, bunDB)
	if err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("NewAppState: %w", err)
	}
	return as, nil
}

// NewTestAppState returns an AppState over a private in-memory sqlite
// database with log-only messaging providers.
func NewTestAppState() (*AppState, error) {
	rawDB, bunDB, err := openDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("NewTestAppState: %w", err)
	}
	rawDB.SetMaxOpenConns(1)
	as, err := newAppState(NewTestConfig(), rawDB, bunDB)
	if err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("NewTestAppState: %w", err)
	}
	return as, nil
}

func openDatabase(dbType, dsn string) (*sql.DB, *bun.DB, error) {
	switch dbType {
	case "postgres":
		rawDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("can't open postgres database: %w", err)
		}
		rawDB.SetMaxOpenConns(16)
		rawDB.SetMaxIdleConns(8)
		return rawDB, bun.NewDB(rawDB, pgdialect.New()), nil
	default:
		rawDB, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("can't open sqlite database: %w", err)
		}
		rawDB.SetMaxIdleConns(8)
		return rawDB, bun.NewDB(rawDB, sqlitedialect.New()), nil
	}
}

func newAppState(cfg *Config, rawDB *sql.DB, bunDB *bun.DB) (*AppState, error) {
	as := &AppState{
		Config:             cfg,
		RawDB:              rawDB,
		BunDB:              bunDB,
		MetricChans:        NewMetricChans(),
		AppCloseSignalChan: make(chan os.Signal, 1),
	}
	bunDB.AddQueryHook(&writeLatencyHook{chans: as.MetricChans})

	// date parser
	as.When = when.New(nil)
	as.When.Add(en.All...)
	as.When.Add(common.All...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := model.CreateSchema(ctx, bunDB); err != nil {
		return nil, err
	}

	var err error
	if as.Enforcer, err = authz.NewEnforcer(); err != nil {
		return nil, err
	}

	providers, err := messaging.NewProviders(cfg.MessagingConfig())
	if err != nil {
		return nil, err
	}
	as.Dispatcher = messaging.NewDispatcher(bunDB, cfg.GetMessagesPerSecond(), providers...)
	as.Dispatcher.OnResult(func(channel model.Channel, provider string, status model.MessageStatus, latency time.Duration) {
		as.MetricChans.ObserveMessage(MessageObservation{
			Channel:  string(channel),
			Provider: provider,
			Status:   string(status),
			Latency:  latency,
		})
	})
	as.Dispatcher.OnBreakerStateChange(func(provider string, state gobreaker.State) {
		as.MetricChans.ObserveBreaker(BreakerObservation{Provider: provider, State: int(state)})
	})
	for channel, name := range as.Dispatcher.Providers() {
		slog.Debug("messaging provider", "channel", channel, "provider", name)
	}

	as.Bus = bus.New(slog.Default())
	return as, nil
}

// CreateGracefulShutdownChan returns a channel closed by GracefulShutdown.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	ch := make(chan struct{})
	as.gracefulShutdownMu.Lock()
	as.gracefulShutdownChans = append(as.gracefulShutdownChans, ch)
	as.gracefulShutdownMu.Unlock()
	return &ch
}

// GracefulShutdown wakes every goroutine holding a graceful shutdown chan,
// then closes the bus and the database.
func (as *AppState) GracefulShutdown() {
	as.gracefulShutdownMu.Lock()
	for _, ch := range as.gracefulShutdownChans {
		close(ch)
	}
	as.gracefulShutdownChans = nil
	as.gracefulShutdownMu.Unlock()

	if err := as.Bus.Close(); err != nil {
		slog.Warn("can't close bus", "error", err)
	}
	if err := as.BunDB.Close(); err != nil {
		slog.Warn("can't close database", "error", err)
	}
}
