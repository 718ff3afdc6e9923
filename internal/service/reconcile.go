package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/codehub/internal/database"
	"github.com/odvcencio/codehub/internal/models"
)

const defaultReconcileWorkers = 4

// ReconcileService recomputes denormalized counters from their source rows.
type ReconcileService struct {
	db      database.DB
	workers int
	metrics *serviceMetrics
}

func NewReconcileService(db database.DB) *ReconcileService {
	return &ReconcileService{db: db, workers: defaultReconcileWorkers, metrics: getDefaultServiceMetrics()}
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	UsersChecked        int                    `json:"users_checked"`
	RepositoriesChecked int                    `json:"repositories_checked"`
	Repairs             []models.CounterRepair `json:"repairs"`
}

// ReconcileAll checks every user and repository with bounded parallelism. A
// second pass directly after the first reports no repairs.
func (s *ReconcileService) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	userIDs, err := s.db.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	repoIDs, err := s.db.ListRepositoryIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}

	report := &ReconcileReport{UsersChecked: len(userIDs), RepositoriesChecked: len(repoIDs), Repairs: []models.CounterRepair{}}
	var mu sync.Mutex
	collect := func(repairs []models.CounterRepair) {
		if len(repairs) == 0 {
			return
		}
		mu.Lock()
		report.Repairs = append(report.Repairs, repairs...)
		mu.Unlock()
		s.metrics.repaired(repairs)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range userIDs {
		g.Go(func() error {
			repairs, err := s.db.ReconcileUserCounters(gctx, id)
			if err != nil {
				return fmt.Errorf("reconcile user %d: %w", id, err)
			}
			collect(repairs)
			return nil
		})
	}
	for _, id := range repoIDs {
		g.Go(func() error {
			repairs, err := s.db.ReconcileRepositoryCounters(gctx, id)
			if err != nil {
				return fmt.Errorf("reconcile repository %d: %w", id, err)
			}
			collect(repairs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, r := range report.Repairs {
		slog.Info("counter repaired", "entity", r.Entity, "id", r.EntityID, "counter", r.Counter, "before", r.Before, "after", r.After)
	}
	return report, nil
}

// ReconcileUser repairs one user's counters.
func (s *ReconcileService) ReconcileUser(ctx context.Context, username string) ([]models.CounterRepair, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, mapDBErr(err, "user "+username)
	}
	repairs, err := s.db.ReconcileUserCounters(ctx, user.ID)
	if err != nil {
		return nil, mapDBErr(err, "reconcile user "+username)
	}
	s.metrics.repaired(repairs)
	return repairs, nil
}

// ReconcileRepository repairs one repository's counters.
func (s *ReconcileService) ReconcileRepository(ctx context.Context, owner, name string) ([]models.CounterRepair, error) {
	repo, err := s.db.GetRepository(ctx, owner, name)
	if err != nil {
		return nil, mapDBErr(err, "repository "+owner+"/"+name)
	}
	repairs, err := s.db.ReconcileRepositoryCounters(ctx, repo.ID)
	if err != nil {
		return nil, mapDBErr(err, "reconcile repository "+repo.FullName())
	}
	s.metrics.repaired(repairs)
	return repairs, nil
}
