package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/juridex/juridex/internal/api"
)

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "juridex",
		Short:         "Trusted legal corpus pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	root.AddCommand(
		newServeCommand(&configPath),
		newIngestCommand(&configPath),
		newLearnCommand(&configPath),
		newVersionCommand(),
	)
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "juridex version %s\n", version)
		},
	}
}

func newIngestCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [adapter]",
		Short: "Run one ingestion pass for one adapter, or all adapters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			names := make([]string, 0, len(a.adapters))
			if len(args) == 1 {
				names = append(names, args[0])
			} else {
				for name := range a.adapters {
					names = append(names, name)
				}
				sort.Strings(names)
			}

			for _, name := range names {
				sum, err := a.RunAdapter(ctx, name, a.cfg.Ingest.OrgID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: inserted=%d skipped=%d failures=%d\n",
					name, sum.Inserted, sum.Skipped, sum.Failures)
			}
			return nil
		},
	}
}

func newLearnCommand(configPath *string) *cobra.Command {
	learn := &cobra.Command{
		Use:   "learn",
		Short: "Run one phase of the learning loop",
	}

	phase := func(use, short string, run func(ctx context.Context, a *app, out *os.File) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signalContext()
				defer stop()
				a, err := buildApp(ctx, *configPath)
				if err != nil {
					return err
				}
				defer a.Close()
				return run(ctx, a, os.Stdout)
			},
		}
	}

	learn.AddCommand(
		phase("collect", "Harvest recent events into the signal log", func(ctx context.Context, a *app, out *os.File) error {
			n, err := a.collector().Collect(ctx, a.cfg.Ingest.OrgID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "collected %d signals\n", n)
			return nil
		}),
		phase("diagnose", "Compute metrics and emit remediation jobs", func(ctx context.Context, a *app, out *os.File) error {
			diag, err := a.diagnoser().Diagnose(ctx, a.cfg.Ingest.OrgID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "allowlisted_ratio=%.3f dead_link_rate=%.3f jobs=%d\n",
				diag.AllowlistedRatio, diag.DeadLinkRate, len(diag.JobsCreated))
			return nil
		}),
		phase("process", "Drain pending learning jobs", func(ctx context.Context, a *app, out *os.File) error {
			p := a.processor()
			n := 0
			for {
				claimed, err := p.RunOnce(ctx)
				if err != nil {
					return err
				}
				if !claimed {
					break
				}
				n++
			}
			fmt.Fprintf(out, "processed %d jobs\n", n)
			return nil
		}),
		phase("apply", "Fold ready jobs into draft policy versions", func(ctx context.Context, a *app, out *os.File) error {
			n, err := a.applier().Apply(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "drafted %d policy versions\n", n)
			return nil
		}),
		phase("gate", "Evaluate metrics and roll back on breach", func(ctx context.Context, a *app, out *os.File) error {
			rolledBack, err := a.gate().Evaluate(ctx, a.cfg.Ingest.OrgID)
			if err != nil {
				return err
			}
			if rolledBack {
				fmt.Fprintln(out, "policy version rolled back")
			} else {
				fmt.Fprintln(out, "no rollback needed")
			}
			return nil
		}),
	)

	approve := &cobra.Command{
		Use:   "approve <version-id> <approver>",
		Short: "Approve a drafted policy version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()
			a, err := buildApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.applier().Approve(ctx, args[0], args[1])
		},
	}
	learn.AddCommand(approve)
	return learn
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP surface and the learning loop tickers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := buildApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
			srv := &http.Server{
				Addr:    addr,
				Handler: api.NewHandler(a.store, a, a.cfg.Ingest.OrgID),
				BaseContext: func(_ net.Listener) context.Context {
					return ctx
				},
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				fmt.Fprintf(cmd.OutOrStdout(), "juridex listening on %s\n", addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})

			g.Go(func() error {
				a.processor().Run(gctx, 30*time.Second)
				return nil
			})

			g.Go(func() error {
				runLearningTickers(gctx, a)
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
}

// runLearningTickers drives the collect/diagnose/apply/gate phases on fixed
// intervals until ctx is cancelled. Phase errors are reported and retried on
// the next tick.
func runLearningTickers(ctx context.Context, a *app) {
	collect := time.NewTicker(10 * time.Minute)
	loop := time.NewTicker(time.Hour)
	defer collect.Stop()
	defer loop.Stop()

	orgID := a.cfg.Ingest.OrgID
	for {
		select {
		case <-ctx.Done():
			return
		case <-collect.C:
			if _, err := a.collector().Collect(ctx, orgID); err != nil {
				fmt.Fprintf(os.Stderr, "collect: %v\n", err)
			}
		case <-loop.C:
			if _, err := a.diagnoser().Diagnose(ctx, orgID); err != nil {
				fmt.Fprintf(os.Stderr, "diagnose: %v\n", err)
			}
			if _, err := a.applier().Apply(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "apply: %v\n", err)
			}
			if _, err := a.gate().Evaluate(ctx, orgID); err != nil {
				fmt.Fprintf(os.Stderr, "gate: %v\n", err)
			}
		}
	}
}
