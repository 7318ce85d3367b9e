package synchronizer

import (
	"context"
	"errors"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/ledger"
	"github.com/ahmadzakiakmal/scrumchain/repository"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// NotFoundOnLedger is the failure message of records the sweeper gives up on
const NotFoundOnLedger = "not found on ledger"

type SweepConfig struct {
	Interval  time.Duration
	MinAge    time.Duration // records younger than this are left to their workflow
	FailAfter time.Duration // records still unknown after this are marked failed
	BatchSize int
}

// SweepReport counts what one pass did
type SweepReport struct {
	Examined       int `json:"examined"`
	Confirmed      int `json:"confirmed"`
	Failed         int `json:"failed"`
	Reconciliation int `json:"reconciliation"`
	Expired        int `json:"expired"`
	StillPending   int `json:"still_pending"`
	Errors         int `json:"errors"`
}

// Sweeper resolves records left pending after a confirmation timeout
type Sweeper struct {
	repo     *repository.Repository
	client   ledger.Client
	resolver *Resolver
	cfg      SweepConfig
	logger   cmtlog.Logger
	now      func() time.Time
}

func NewSweeper(repo *repository.Repository, client ledger.Client, cfg SweepConfig, logger cmtlog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = DefaultConfirmTimeout
	}
	if cfg.FailAfter < cfg.MinAge {
		cfg.FailAfter = 10 * cfg.MinAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		repo:     repo,
		client:   client,
		resolver: NewResolver(repo, logger),
		cfg:      cfg,
		logger:   logger.With("module", "sweeper"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce examines one batch of stale pending records
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now()
	recs, err := s.repo.PendingTransactions(ctx, now.Add(-s.cfg.MinAge), s.cfg.BatchSize)
	if err != nil {
		return report, err
	}

	for i := range recs {
		rec := &recs[i]
		report.Examined++

		receipt, err := s.client.Receipt(ctx, rec.TxHash)
		switch {
		case errors.Is(err, ledger.ErrReceiptNotFound):
			if now.Sub(rec.CreatedAt) < s.cfg.FailAfter {
				report.StillPending++
				continue
			}
			if _, err := s.repo.MarkFailed(ctx, rec.TxHash, NotFoundOnLedger); err != nil {
				report.Errors++
				s.logger.Error("Could not expire record", "tx", rec.TxHash, "err", err)
				continue
			}
			report.Expired++
			sweepTotal.WithLabelValues(outcomeExpired).Inc()
			continue
		case err != nil:
			report.Errors++
			s.logger.Error("Receipt lookup failed", "tx", rec.TxHash, "err", err)
			continue
		}

		_, err = s.resolver.Apply(ctx, rec, receipt)
		switch {
		case err == nil:
			report.Confirmed++
			sweepTotal.WithLabelValues(outcomeConfirmed).Inc()
		case errors.Is(err, ErrReconciliation):
			report.Reconciliation++
			sweepTotal.WithLabelValues(outcomeReconciliation).Inc()
		case errors.Is(err, ErrLedgerConfirmationFailed):
			report.Failed++
			sweepTotal.WithLabelValues(outcomeFailed).Inc()
		default:
			report.Errors++
			s.logger.Error("Could not resolve record", "tx", rec.TxHash, "err", err)
		}
	}

	if report.Examined > 0 {
		s.logger.Info("Sweep finished",
			"examined", report.Examined,
			"confirmed", report.Confirmed,
			"failed", report.Failed,
			"expired", report.Expired,
			"pending", report.StillPending,
		)
	}
	return report, nil
}

// Run sweeps on every interval until ctx ends
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Sweep failed", "err", err)
			}
		}
	}
}
