package crawl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/curio/app/database"
)

type Orchestrator struct {
	repo       database.CrawlRepository
	dispatcher Dispatcher
}

func NewOrchestrator(repo database.CrawlRepository, dispatcher Dispatcher) *Orchestrator {
	return &Orchestrator{repo: repo, dispatcher: dispatcher}
}

// TriggerAll creates a PENDING run for every ACTIVE source and dispatches its
// first page. Dispatch failures are logged and do not stop other sources.
func (o *Orchestrator) TriggerAll(ctx context.Context) ([]string, error) {
	active, err := o.repo.ListActiveSources(ctx)
	if err != nil {
		return nil, err
	}

	runIDs := make([]string, 0, len(active))
	for _, source := range active {
		run, err := o.repo.CreateRun(ctx, source.ID)
		if err != nil {
			return runIDs, fmt.Errorf("failed to create run for source %s: %w", source.Name, err)
		}
		runIDs = append(runIDs, run.ID)
		o.dispatch(ctx, run.ID, source.Name)
	}

	slog.Info("Crawl runs triggered", "sources", len(active), "runs", len(runIDs))
	return runIDs, nil
}

// TriggerSource starts a run for one source regardless of its status.
func (o *Orchestrator) TriggerSource(ctx context.Context, sourceID string) (string, error) {
	source, err := o.repo.GetSource(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if source == nil {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}

	run, err := o.repo.CreateRun(ctx, source.ID)
	if err != nil {
		return "", fmt.Errorf("failed to create run for source %s: %w", source.Name, err)
	}
	o.dispatch(ctx, run.ID, source.Name)

	return run.ID, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, runID, sourceName string) {
	if err := o.dispatcher.Dispatch(ctx, PageRequest{RunID: runID}); err != nil {
		slog.Error("Failed to dispatch crawl run", "run", runID, "source", sourceName, "error", err)
	}
}
