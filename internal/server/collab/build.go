package collab

import (
	"log/slog"
	"time"

	"github.com/iudanet/doccollab/internal/config"
	"github.com/iudanet/doccollab/internal/server/audit"
	"github.com/iudanet/doccollab/internal/server/conflict"
	"github.com/iudanet/doccollab/internal/server/lock"
	"github.com/iudanet/doccollab/internal/server/notify"
	"github.com/iudanet/doccollab/internal/server/oplog"
	"github.com/iudanet/doccollab/internal/server/session"
	"github.com/iudanet/doccollab/internal/server/storage"
)

// Build собирает все компоненты по конфигурации. now == nil означает time.Now.
func Build(store storage.Store, cfg config.CollaborationConfig, recorder *audit.Recorder, notifier *notify.Notifier, logger *slog.Logger, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}

	locks := lock.NewManager(store, recorder, notifier, logger.With("component", "lock"),
		lock.WithClock(now),
		lock.WithTTL(cfg.LockTTL),
	)
	sessions := session.NewManager(store, store, locks, recorder, notifier, logger.With("component", "session"),
		session.WithClock(now),
		session.WithTimeout(cfg.SessionTimeout),
	)
	ops := oplog.New(store, recorder, logger.With("component", "oplog"),
		oplog.WithClock(now),
		oplog.WithWindow(cfg.ConflictWindow),
		oplog.WithPageSize(cfg.RecentPageSize),
	)
	coordinator := conflict.NewCoordinator(ops, store, logger.With("component", "conflict"),
		conflict.WithClock(now),
		conflict.WithWindow(cfg.ConflictWindow),
		conflict.WithStrategy(conflict.NewDistanceHeuristic(cfg.LineWeight, cfg.DistanceThreshold)),
	)

	svc := NewService(store, sessions, locks, ops, coordinator, recorder, notifier, logger.With("component", "collab")).(*service)
	svc.now = now
	return svc
}
