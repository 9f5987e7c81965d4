package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crm-import/internal/config"
	"github.com/sells-group/crm-import/internal/directory"
	"github.com/sells-group/crm-import/internal/enrich"
	"github.com/sells-group/crm-import/internal/importer"
	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/progress"
	"github.com/sells-group/crm-import/internal/resilience"
	"github.com/sells-group/crm-import/internal/session"
	"github.com/sells-group/crm-import/internal/store"
	"github.com/sells-group/crm-import/pkg/waha"
)

// importEnv holds the store and the orchestrator shared by serve and import.
type importEnv struct {
	Store    store.Store
	Importer *importer.Orchestrator
	Reporter *progress.Reporter
}

// Close releases resources held by the environment.
func (e *importEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "crm.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// fixedSession answers every company with the same session name.
type fixedSession string

func (f fixedSession) DefaultSession(_ context.Context, companyID string) (*model.Session, error) {
	return &model.Session{CompanyID: companyID, Name: string(f), Status: model.SessionStatusWorking}, nil
}

// buildImporter wires the directory, enrichment and progress collaborators
// around st. A non-empty sessionName replaces the company's default session.
func buildImporter(c *config.Config, st store.Store, sessionName string) (*importer.Orchestrator, *progress.Reporter) {
	deps := importer.Deps{
		Contacts:     st,
		Tags:         st,
		SystemTags:   st,
		Jobs:         st,
		Policy:       importer.Policy{BatchSize: c.Import.BatchSize, Pause: c.Import.Pause()},
		VerboseIndex: c.Import.VerboseIndex,
	}

	if c.Directory.BaseURL != "" {
		client := waha.NewClient(c.Directory.BaseURL, c.Directory.APIKey,
			waha.WithTimeout(seconds(c.Directory.TimeoutSecs)))

		opts := []directory.ValidatorOption{
			directory.WithRetry(resilience.FromConfig(
				c.Directory.MaxAttempts, c.Directory.InitialBackoffMs, c.Directory.MaxBackoffMs)),
			directory.WithBreakers(resilience.NewBreakers(resilience.BreakerConfig{
				FailureThreshold: c.Directory.BreakerThreshold,
				ResetTimeout:     seconds(c.Directory.BreakerResetSecs),
			})),
		}
		if c.Directory.RatePerSec > 0 {
			burst := max(c.Directory.Burst, 1)
			opts = append(opts, directory.WithLimiter(rate.NewLimiter(rate.Limit(c.Directory.RatePerSec), burst)))
		}

		var syncer enrich.ProfileSyncer
		if c.Enrich.ProfileSyncURL != "" {
			syncer = enrich.NewHTTPSyncer(c.Enrich.ProfileSyncURL, c.Enrich.Token,
				enrich.WithSyncerHTTPClient(&http.Client{Timeout: seconds(c.Enrich.TimeoutSecs)}))
		}

		if sessionName != "" {
			deps.Sessions = fixedSession(sessionName)
		} else {
			deps.Sessions = session.NewCache(st, c.Session.CacheSize, seconds(c.Session.CacheTTLSecs))
		}
		deps.Resolver = directory.NewResolver(directory.NewValidator(client, opts...))
		deps.Enricher = enrich.NewEnricher(syncer, client)
	} else {
		zap.L().Warn("directory.base_url not set; phone numbers will not be validated")
	}

	pusher := progress.NewPusher(c.Push.URL, c.Push.Token,
		progress.WithPushHTTPClient(&http.Client{Timeout: seconds(c.Push.TimeoutSecs)}))
	reporter := progress.NewReporter(st, pusher)
	deps.Reporter = reporter

	return importer.New(deps), reporter
}

// initEnv opens and migrates the store and builds the orchestrator. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode, sessionName string) (*importEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	imp, reporter := buildImporter(cfg, st, sessionName)
	return &importEnv{Store: st, Importer: imp, Reporter: reporter}, nil
}
