package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/printlog-cli/internal/guard"
	"github.com/sells-group/printlog-cli/internal/lock"
	"github.com/sells-group/printlog-cli/internal/mailer"
	"github.com/sells-group/printlog-cli/internal/notifier"
	"github.com/sells-group/printlog-cli/internal/resilience"
	"github.com/sells-group/printlog-cli/internal/resolver"
	"github.com/sells-group/printlog-cli/internal/sheet"
	"github.com/sells-group/printlog-cli/internal/store"
)

// appEnv holds the workbook, lock, history store and mail stack shared by
// the sweep/resolve/serve commands. Fields a command does not need stay nil.
type appEnv struct {
	Sheets   sheet.Store
	Locker   lock.Locker
	Store    store.Store
	Renderer mailer.Renderer
	Sender   mailer.Sender
	DryRun   bool

	closers []func()
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initApp opens everything a sweep needs. Callers should defer env.Close().
func initApp(ctx context.Context, dryRun bool) (*appEnv, error) {
	env := &appEnv{DryRun: dryRun}

	sheets, err := initSheets()
	if err != nil {
		return nil, err
	}
	env.Sheets = sheets

	if err := env.openLocker(ctx); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = st

	env.Renderer, err = mailer.NewRenderer(cfg.Mail.TemplateDir)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Sender, err = initSender(dryRun)
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *appEnv) openLocker(ctx context.Context) error {
	locker, closer, err := initLocker(ctx)
	if err != nil {
		return err
	}
	e.Locker = locker
	if closer != nil {
		e.closers = append(e.closers, closer)
	}
	return nil
}

// Notifier builds the notifier over the environment.
func (e *appEnv) Notifier(opts ...notifier.Option) *notifier.Notifier {
	if e.Store != nil {
		opts = append([]notifier.Option{notifier.WithHistory(e.Store)}, opts...)
	}
	return notifier.New(e.Sheets, e.Locker, e.Renderer, e.Sender, notifier.Config{
		LogsSheet:   cfg.Workbook.LogsSheet,
		LockName:    cfg.Lock.Name,
		LockTimeout: cfg.Lock.Timeout(),
		FromName:    cfg.Mail.FromName,
		FromAddress: cfg.Mail.FromAddress,
		Recipient:   cfg.Mail.Recipient,
		MaxRetries:  cfg.Mail.MaxRetries,
		DryRun:      e.DryRun,
	}, opts...)
}

// Resolver builds the status resolver over the environment.
func (e *appEnv) Resolver() *resolver.Resolver {
	return resolver.New(e.Sheets, e.Locker, resolver.Config{
		LogsSheet:      cfg.Workbook.LogsSheet,
		ReferenceSheet: cfg.Workbook.ReferenceSheet,
		LockName:       cfg.Lock.Name,
		LockTimeout:    cfg.Lock.Timeout(),
	})
}

func initSheets() (sheet.Store, error) {
	st, err := sheet.NewXLSX(cfg.Workbook.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open workbook")
	}
	return st, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "printlog.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLocker returns the configured locker and an optional close func.
func initLocker(ctx context.Context) (lock.Locker, func(), error) {
	switch cfg.Lock.Driver {
	case "memory":
		zap.L().Warn("memory lock only excludes sweeps within this process")
		return lock.NewMemory(), nil, nil
	case "sqlite":
		l, err := lock.OpenSQLite(ctx, cfg.Lock.DatabaseURL, lock.SQLiteOptions{
			LeaseTTL: time.Duration(cfg.Lock.LeaseTTLSecs) * time.Second,
		})
		if err != nil {
			return nil, nil, eris.Wrap(err, "open sqlite lock")
		}
		return l, func() { _ = l.Close() }, nil
	case "postgres":
		l, err := lock.NewPostgres(ctx, cfg.Lock.DatabaseURL)
		if err != nil {
			return nil, nil, eris.Wrap(err, "open postgres lock")
		}
		return l, l.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported lock driver: %s", cfg.Lock.Driver)
	}
}

// initSender builds the delivery chain: rate limit, then retry, then SMTP.
func initSender(dryRun bool) (mailer.Sender, error) {
	if dryRun || cfg.Mail.Driver == "log" {
		return mailer.LogSender{}, nil
	}
	smtp, err := mailer.NewSMTP(mailer.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		TLS:      cfg.Mail.TLS,
		Timeout:  time.Duration(cfg.Mail.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	retry := resilience.FromRetryConfig(cfg.Mail.Retry.MaxAttempts, cfg.Mail.Retry.InitialBackoffMs, cfg.Mail.Retry.MaxBackoffMs)
	return mailer.NewRateLimited(mailer.NewRetrying(smtp, "smtp", retry), cfg.Mail.RatePerSec, 1), nil
}

// initGuard builds the activity guard, loading the device registry when one
// is configured.
func initGuard(sheets sheet.Store) (*guard.Guard, error) {
	opts := []guard.Option{}
	if cfg.Devices.Path != "" {
		reg, err := guard.LoadRegistry(cfg.Devices.Path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, guard.WithRegistry(reg))
	}
	if tz := cfg.Devices.Timezone; tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, eris.Wrapf(err, "load timezone %s", tz)
		}
		opts = append(opts, guard.WithLocation(loc))
	}
	return guard.New(sheets, cfg.Workbook.LogsSheet, opts...), nil
}
