package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cloud-shuttle/muster/internal/agent"
	"github.com/cloud-shuttle/muster/internal/events"
	"github.com/cloud-shuttle/muster/internal/lifecycle"
	"github.com/cloud-shuttle/muster/internal/locks"
	"github.com/cloud-shuttle/muster/internal/queue"
	"github.com/cloud-shuttle/muster/internal/scm"
	"github.com/cloud-shuttle/muster/internal/store"
	"github.com/cloud-shuttle/muster/internal/tracker"
	"github.com/cloud-shuttle/muster/internal/webhook"
	"github.com/cloud-shuttle/muster/pkg/types"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator",
		Long: `Run the orchestrator: webhook ingress, worker pool, and the issue
lifecycle state machine. Blocks until SIGINT or SIGTERM, then drains
running phase jobs before exiting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			claude := agent.NewClaudeCLI(cfg.AgentPath)
			claude.SetVerbose(cfg.Verbose)
			if err := claude.CheckInstalled(); err != nil {
				return fmt.Errorf("coding agent not available: %w", err)
			}

			git := scm.New(cfg.CheckoutDir, cfg.BaseBranch)
			git.SetVerbose(cfg.Verbose)

			trk := tracker.NewClient(cfg.TrackerBaseURL, cfg.TrackerToken)
			pool := queue.NewPool(cfg.Workers)
			lockTable := locks.NewTable()
			bus := events.NewBus()

			if cfg.Verbose {
				ch := bus.Subscribe("log")
				go func() {
					for ev := range ch {
						log.Printf("📡 %s issue=%s state=%s %s", ev.Type, ev.IssueID, ev.State, ev.Detail)
					}
				}()
			}

			machine := lifecycle.New(st, trk, git, claude, pool, lockTable, bus, lifecycle.Options{
				RepoURL:        cfg.RepoURL,
				StatusStarted:  cfg.StatusStarted,
				StatusInReview: cfg.StatusInReview,
				StatusDone:     cfg.StatusDone,
			})

			server := webhook.NewServer(machine, webhook.Options{
				TrackerSecret: cfg.TrackerSecret,
				ForgeSecret:   cfg.HostSecret,
				TriggerPhrase: cfg.TriggerPhrase,
				QueueDepth:    pool.Depth,
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(cfg.ListenAddr)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				log.Printf("🛑 Received %s, shutting down", sig)
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("webhook server: %w", err)
				}
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				log.Printf("⚠️ Webhook server shutdown: %v", err)
			}
			if err := pool.Stop(ctx); err != nil {
				log.Printf("⚠️ Worker pool drain: %v", err)
			}
			if err := bus.Close(); err != nil {
				log.Printf("⚠️ Event bus close: %v", err)
			}
			log.Printf("👋 Shutdown complete")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show issue counts by lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			counts, err := st.CountByState()
			if err != nil {
				return fmt.Errorf("counting issues: %w", err)
			}

			order := []types.State{
				types.StatePlanning,
				types.StateAwaitingClarification,
				types.StateAwaitingApproval,
				types.StateInProgress,
				types.StateReviewing,
				types.StateImplemented,
			}
			total := 0
			for _, s := range order {
				fmt.Printf("%-24s %d\n", s, counts[s])
				total += counts[s]
			}
			fmt.Printf("%-24s %d\n", "total", total)
			return nil
		},
	}
}

func issuesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "issues",
		Short: "List tracked issues and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.List()
			if err != nil {
				return fmt.Errorf("listing issues: %w", err)
			}
			if len(recs) == 0 {
				fmt.Println("No issues tracked yet.")
				return nil
			}

			fmt.Printf("%-16s %-24s %s\n", "ISSUE", "STATE", "PR")
			for _, rec := range recs {
				pr := rec.PRURL
				if pr == "" {
					pr = "-"
				}
				fmt.Printf("%-16s %-24s %s\n", rec.IssueID, rec.State, pr)
			}
			return nil
		},
	}
}

func openStore() (*store.Store, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return st, nil
}
