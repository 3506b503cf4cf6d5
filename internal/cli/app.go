package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdslog "log/slog"
	"os"
	"path/filepath"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/motti-landau/kvstore"
	"github.com/motti-landau/kvstore/backend"
	"github.com/motti-landau/kvstore/backend/bigcache"
	"github.com/motti-landau/kvstore/backend/file"
	redisbackend "github.com/motti-landau/kvstore/backend/redis"
	"github.com/motti-landau/kvstore/backend/sqlite"
	"github.com/motti-landau/kvstore/codec"
	asynchook "github.com/motti-landau/kvstore/hooks/async"
	logruslog "github.com/motti-landau/kvstore/log/logrus"
	slogadapter "github.com/motti-landau/kvstore/log/slog"
	zaplog "github.com/motti-landau/kvstore/log/zap"
	"github.com/motti-landau/kvstore/internal/config"
	"github.com/motti-landau/kvstore/recent"
	"github.com/motti-landau/kvstore/sloghooks"
	"github.com/motti-landau/kvstore/version"
)

// app is one opened namespace plus everything that must be closed with it.
type app struct {
	cfg    *config.Config
	store  *kvstore.Store
	log    kvstore.Logger
	source string

	hooks   *asynchook.Hooks
	closers []func() error
}

func levelName(s string) string {
	switch l := strings.ToLower(strings.TrimSpace(s)); l {
	case "":
		return "warn"
	case "trace":
		return "debug"
	case "warning":
		return "warn"
	default:
		return l
	}
}

func openApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.shutdown()
		}
	}()

	events, err := a.openLogging(stderr)
	if err != nil {
		return nil, err
	}
	a.hooks = asynchook.New(sloghooks.New(events, sloghooks.Options{
		ExpiredEvery:    10,
		RowSkippedEvery: 1,
		Redact:          sloghooks.Plain,
	}), 1, 256)

	be, versions, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}

	// history.limit 0 keeps recent keys in memory only
	var tracker *recent.Tracker
	if cfg.History.Limit > 0 {
		tracker, err = recent.Open(cfg.RecentPath(), cfg.History.Limit)
	} else {
		tracker, err = recent.Open("", recent.DefaultCapacity)
	}
	if err != nil {
		_ = be.Close(ctx)
		return nil, err
	}

	var memo *kvstore.SearchCache
	if cfg.Search.CacheEntries > 0 {
		if memo, err = kvstore.NewSearchCache(cfg.Search.CacheEntries); err != nil {
			_ = be.Close(ctx)
			return nil, err
		}
	}

	a.log.Debug("opening store", kvstore.Fields{"namespace": cfg.Namespace, "source": a.source})
	a.store, err = kvstore.Open(ctx, kvstore.Options{
		Namespace:     cfg.Namespace,
		Backend:       be,
		Logger:        a.log,
		Hooks:         a.hooks,
		SweepInterval: cfg.SweepInterval,
		Recent:        tracker,
		Versions:      versions,
		SearchCache:   memo,
	})
	if err != nil {
		_ = be.Close(ctx)
		memo.Close()
		return nil, err
	}

	if n, err := a.store.Sweep(ctx); err != nil {
		a.log.Warn("startup sweep incomplete", kvstore.Fields{"err": err})
	} else if n > 0 {
		a.log.Info("removed expired records", kvstore.Fields{"count": n})
	}
	return a, nil
}

func (a *app) openLogging(stderr io.Writer) (*stdslog.Logger, error) {
	lc := a.cfg.Logging
	level := levelName(lc.Level)

	var w io.Writer = stderr
	if lc.File != "" {
		if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		w = f
	}

	events, err := slogadapter.New(level, w)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	switch lc.Driver {
	case "zap":
		zl, err := zaplog.New(level, lc.File)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		a.closers = append(a.closers, func() error {
			_ = zl.Sync() // fails on terminals; nothing to report
			return nil
		})
		a.log = zl
	case "logrus":
		ll, err := logruslog.New(level, w)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		a.log = ll
	default:
		a.log = events
	}
	return events.L, nil
}

func (a *app) openBackend(ctx context.Context) (backend.Backend, version.Counter, error) {
	cfg := a.cfg
	c, err := codec.ForRecords(cfg.Backend.Codec)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Backend.Driver {
	case "file":
		a.source = cfg.DataPath()
		be, err := file.Open(a.source, c)
		return be, nil, err
	case "redis":
		rc := cfg.Backend.Redis
		client := goredis.NewClient(&goredis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		be, err := redisbackend.New(redisbackend.Config{
			Client:      client,
			CloseClient: true,
			Namespace:   cfg.Namespace,
			Codec:       c,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		a.source = fmt.Sprintf("redis://%s/%s", rc.Addr, redisbackend.HashKey(cfg.Namespace))
		if !rc.SharedVersion {
			return be, nil, nil
		}
		return be, version.NewRedis(client, cfg.Namespace, false), nil
	case "memory":
		a.source = "memory"
		be, err := bigcache.New(ctx, bigcache.Config{Codec: c})
		return be, nil, err
	default:
		a.source = cfg.DataPath()
		be, err := sqlite.Open(ctx, a.source)
		return be, nil, err
	}
}

// shutdown closes the store, drains hooks and releases log outputs.
func (a *app) shutdown() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close(context.Background()))
	}
	if a.hooks != nil {
		a.hooks.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
