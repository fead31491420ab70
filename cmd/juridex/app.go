package main

import (
	"context"
	"fmt"

	"github.com/juridex/juridex/internal/adapters"
	"github.com/juridex/juridex/internal/config"
	"github.com/juridex/juridex/internal/fetch"
	"github.com/juridex/juridex/internal/ingest"
	"github.com/juridex/juridex/internal/learning"
	"github.com/juridex/juridex/internal/notify"
	"github.com/juridex/juridex/internal/objstore"
	"github.com/juridex/juridex/internal/scheduler"
	"github.com/juridex/juridex/internal/storage"
	"github.com/juridex/juridex/internal/treatment"
	"github.com/juridex/juridex/internal/vecstore"
)

// app holds the wired service graph shared by every subcommand.
type app struct {
	cfg      config.Config
	store    *storage.Store
	adapters map[string]adapters.Adapter
	orch     *ingest.Orchestrator
	sched    *scheduler.Scheduler
	notifier notify.Notifier
}

// buildApp opens storage, seeds the allowlist, and wires the pipeline.
func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	for _, d := range cfg.AllowedDomains {
		if err := store.SeedAuthorityDomain(d.Host, d.Jurisdiction); err != nil {
			store.Close()
			return nil, fmt.Errorf("seeding authority domain %s: %w", d.Host, err)
		}
	}

	built, err := adapters.BuildAll(cfg.Sources)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("building adapters: %w", err)
	}

	var objects objstore.ObjectStore
	switch cfg.Objects.Backend {
	case "s3":
		objects, err = objstore.NewS3Store(ctx, cfg.Objects.Region, cfg.Objects.Endpoint)
		if err != nil {
			store.Close()
			return nil, err
		}
	default:
		objects = objstore.NewFSStore(cfg.Objects.Dir)
	}

	var vectors vecstore.Client
	if cfg.VectorStore.BaseURL != "" {
		vectors = vecstore.NewHTTPClient(cfg.VectorStore.BaseURL, cfg.VectorStore.APIKey)
	}

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Notify.SlackWebhookURL != "" {
		notifier = notify.NewSlackWebhook(cfg.Notify.SlackWebhookURL)
	}

	sched := scheduler.New(store)
	orch := ingest.New(store, fetch.NewHTTPDownloader(2), objects, vectors, sched,
		treatment.NewEnricher(store), notifier, ingest.Options{
			Bucket:                 cfg.Objects.Bucket,
			VectorStoreID:          cfg.VectorStore.StoreID,
			RequireBindingLanguage: cfg.RequireBindingLanguage(),
		})

	return &app{
		cfg:      cfg,
		store:    store,
		adapters: built,
		orch:     orch,
		sched:    sched,
		notifier: notifier,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// RunAdapter triggers one ingestion run; also serves the HTTP trigger route.
func (a *app) RunAdapter(ctx context.Context, adapterName, orgID string) (ingest.Summary, error) {
	adapter, ok := a.adapters[adapterName]
	if !ok {
		return ingest.Summary{}, fmt.Errorf("unknown adapter %q", adapterName)
	}
	return a.orch.Run(ctx, adapter, orgID)
}

func (a *app) collector() *learning.Collector { return learning.NewCollector(a.store) }
func (a *app) diagnoser() *learning.Diagnoser { return learning.NewDiagnoser(a.store) }
func (a *app) processor() *learning.Processor { return learning.NewProcessor(a.store, a.sched) }
func (a *app) applier() *learning.Applier     { return learning.NewApplier(a.store) }
func (a *app) gate() *learning.Gate           { return learning.NewGate(a.store, a.notifier) }
