package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrSubmissionRejected means the chain refused the transaction synchronously
	ErrSubmissionRejected = errors.New("ledger rejected submission")
	// ErrConfirmationTimeout means no receipt was observed before the deadline
	ErrConfirmationTimeout = errors.New("ledger confirmation timed out")
	// ErrReceiptNotFound means the transaction is not included (yet)
	ErrReceiptNotFound = errors.New("receipt not found")
)

// Client submits contract calls and observes their receipts
type Client interface {
	Submit(ctx context.Context, call Call) (string, error)
	AwaitReceipt(ctx context.Context, txHash string) (*Receipt, error)
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
}

// RPC is the part of the CometBFT RPC client the ledger client needs
type RPC interface {
	BroadcastTxSync(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTx, error)
	Tx(ctx context.Context, hash []byte, prove bool) (*coretypes.ResultTx, error)
}

type Config struct {
	RPCAddress   string
	PollInterval time.Duration
	Timeout      time.Duration // per RPC request
}

// CometClient is the Client backed by a CometBFT node running the contract app
type CometClient struct {
	rpc    RPC
	signer *Signer
	poll   time.Duration
	logger cmtlog.Logger
	group  singleflight.Group
	stop   func() error
}

var _ Client = (*CometClient)(nil)

func NewCometClient(rpc RPC, signer *Signer, poll time.Duration, logger cmtlog.Logger) *CometClient {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &CometClient{
		rpc:    rpc,
		signer: signer,
		poll:   poll,
		logger: logger.With("module", "ledger"),
	}
}

// Dial connects to the node RPC and checks that it answers. It is called once at
// start-up and its failure aborts start-up.
func Dial(ctx context.Context, cfg Config, signer *Signer, logger cmtlog.Logger) (*CometClient, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger.Info("Connecting to CometBFT RPC", "address", cfg.RPCAddress)
	httpClient, err := cmthttp.NewWithClient(cfg.RPCAddress, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create CometBFT client: %w", err)
	}
	if err := httpClient.Start(); err != nil {
		return nil, fmt.Errorf("failed to start CometBFT client: %w", err)
	}
	status, err := httpClient.Status(ctx)
	if err != nil {
		_ = httpClient.Stop()
		return nil, fmt.Errorf("probing CometBFT node: %w", err)
	}
	logger.Info("Connected to ledger",
		"network", status.NodeInfo.Network,
		"height", status.SyncInfo.LatestBlockHeight,
		"signer", signer.Address(),
	)

	c := NewCometClient(httpClient, signer, cfg.PollInterval, logger)
	c.stop = httpClient.Stop
	return c, nil
}

func (c *CometClient) Close() error {
	if c.stop == nil {
		return nil
	}
	return c.stop()
}

// Signer is the address transactions are signed with
func (c *CometClient) Signer() string {
	return c.signer.Address()
}

// Submit signs and broadcasts call, returning once the mempool accepted it
func (c *CometClient) Submit(ctx context.Context, call Call) (string, error) {
	tx, err := c.signer.Seal(call)
	if err != nil {
		return "", err
	}
	res, err := c.rpc.BroadcastTxSync(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("broadcasting %s: %w", call.Method, err)
	}
	if res.Code != 0 {
		c.logger.Info("Submission rejected", "method", call.Method, "code", res.Code, "log", res.Log)
		return "", fmt.Errorf("%w: code %d: %s", ErrSubmissionRejected, res.Code, res.Log)
	}
	txHash := strings.ToLower(hex.EncodeToString(res.Hash))
	c.logger.Debug("Submitted", "method", call.Method, "tx", txHash)
	return txHash, nil
}

// Receipt looks the transaction up once. Concurrent lookups of the same hash
// share one RPC call.
func (c *CometClient) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	hash, err := hex.DecodeString(txHash)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q: %w", txHash, err)
	}
	v, err, _ := c.group.Do(txHash, func() (any, error) {
		res, err := c.rpc.Tx(ctx, hash, false)
		if err != nil {
			if isNotFound(err) {
				return nil, ErrReceiptNotFound
			}
			return nil, fmt.Errorf("querying tx %s: %w", txHash, err)
		}
		return newReceipt(txHash, res.Height, res.TxResult), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Receipt), nil
}

// AwaitReceipt polls until the transaction is included or ctx ends. Transport
// errors while polling are logged and retried.
func (c *CometClient) AwaitReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		rec, err := c.Receipt(ctx, txHash)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrReceiptNotFound) && ctx.Err() == nil {
			c.logger.Error("Receipt lookup failed", "tx", txHash, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrConfirmationTimeout, txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func isNotFound(err error) bool {
	return strings.Contains(err.Error(), "not found")
}
