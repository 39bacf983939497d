package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyang/job-dispatch/internal/domain/job"
)

// Run serves HTTP and runs the background loops until ctx is done, then shuts the server down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP + MCP server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.RequeueOpen(ctx); err != nil {
			slog.Error("startup requeue failed", "error", err)
		}
		err := a.Orchestrator.Run(ctx)

		// Legs already handed to agents finish on their own; give them the shutdown window.
		waitCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if werr := a.Orchestrator.Wait(waitCtx); werr != nil {
			slog.Warn("shutdown left agent calls in flight", "error", werr)
		}
		return err
	})
	g.Go(func() error {
		a.runSweeper(ctx)
		return nil
	})

	return g.Wait()
}

// RequeueOpen hands every job still Open to the intake queue. The queue is in-process, so jobs
// submitted before a restart would otherwise wait for a manual processing run.
func (a *App) RequeueOpen(ctx context.Context) error {
	open := job.StatusOpen
	jobs, err := a.jobRepo.List(ctx, job.ListFilters{Status: &open, OldestFirst: true})
	if err != nil {
		return fmt.Errorf("list open jobs: %w", err)
	}
	for _, j := range jobs {
		if err := a.queue.Enqueue(ctx, j.ID); err != nil {
			return fmt.Errorf("enqueue job %s: %w", j.ID, err)
		}
	}
	if len(jobs) > 0 {
		slog.InfoContext(ctx, "requeued open jobs", "count", len(jobs))
	}
	return nil
}

// runSweeper forces resolution of overdue distributions once per sweep interval.
func (a *App) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(a.Config.Sweep.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := a.Orchestrator.SweepTimeouts(ctx, now.UTC()); err != nil {
				slog.ErrorContext(ctx, "timeout sweep failed", "error", err)
			}
		}
	}
}
