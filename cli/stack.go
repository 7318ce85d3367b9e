package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahmadzakiakmal/scrumchain/config"
	"github.com/ahmadzakiakmal/scrumchain/ledger"
	"github.com/ahmadzakiakmal/scrumchain/repository"
	"github.com/ahmadzakiakmal/scrumchain/server"
	"github.com/ahmadzakiakmal/scrumchain/synchronizer"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// stack is the dependency graph built once per process
type stack struct {
	repo   *repository.Repository
	client *ledger.CometClient
}

func connect(ctx context.Context, c *config.Config, logger cmtlog.Logger) (*stack, error) {
	if c.Ledger.SignerKey == "" {
		return nil, errors.New("ledger.signer_key is required, create one with scrumchain keygen")
	}
	signer, err := ledger.ParseSigner(c.Ledger.SignerKey)
	if err != nil {
		return nil, fmt.Errorf("loading signer key: %w", err)
	}

	db, err := repository.ConnectDB(ctx, c.Postgres.DSN, c.Postgres.MaxAttempts, logger)
	if err != nil {
		return nil, err
	}
	repo := repository.New(db, logger)
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	client, err := ledger.Dial(ctx, ledger.Config{
		RPCAddress:   c.Ledger.RPCAddress,
		PollInterval: c.Ledger.PollInterval,
		Timeout:      c.Ledger.RequestTimeout,
	}, signer, logger)
	if err != nil {
		return nil, err
	}
	return &stack{repo: repo, client: client}, nil
}

func (s *stack) services(c *config.Config, logger cmtlog.Logger) server.Services {
	opts := synchronizer.Options{
		ConfirmTimeout: c.Ledger.ConfirmTimeout,
		Locks:          synchronizer.NewKeyedLock(),
	}
	return server.Services{
		Repository:   s.repo,
		Teams:        synchronizer.New(synchronizer.Teams(), s.repo, s.client, opts, logger),
		BacklogItems: synchronizer.New(synchronizer.BacklogItems(), s.repo, s.client, opts, logger),
		Sprints:      synchronizer.New(synchronizer.Sprints(), s.repo, s.client, opts, logger),
		Tasks:        synchronizer.New(synchronizer.Tasks(), s.repo, s.client, opts, logger),
	}
}

func (s *stack) sweeper(c *config.Config, logger cmtlog.Logger) *synchronizer.Sweeper {
	return synchronizer.NewSweeper(s.repo, s.client, synchronizer.SweepConfig{
		Interval:  c.Sweep.Interval,
		MinAge:    c.Sweep.MinAge,
		FailAfter: c.Sweep.FailAfter,
		BatchSize: c.Sweep.BatchSize,
	}, logger)
}

// closeAll waits for background ledger work of every synchronizer
func closeAll(ctx context.Context, svc server.Services) error {
	closers := []interface{ Close(context.Context) error }{svc.Teams, svc.BacklogItems, svc.Sprints, svc.Tasks}
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close(ctx))
	}
	return errors.Join(errs...)
}

