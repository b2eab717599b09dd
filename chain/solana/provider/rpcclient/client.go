package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	sollib "github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// ErrTransactionFailed is returned by Confirm when the cluster executed the transaction and it
// failed. It is never retried.
var ErrTransactionFailed = errors.New("transaction failed")

// sendConfig defines the configuration for sending transactions.
type sendConfig struct {
	// RetryAttempts determines how many times to retry each underlying RPC call. If set to 0,
	// retries continue until the context is done.
	RetryAttempts uint
	// RetryDelay is the duration to wait between retry attempts.
	RetryDelay time.Duration
	// ConfirmRetryAttempts sets a fixed number of status polls when confirming transactions.
	ConfirmRetryAttempts uint
	// Signers sign alongside the deployer key.
	Signers []sollib.PrivateKey
	// Commitment is the commitment level used for preflight, blockhash and confirmation.
	Commitment solrpc.CommitmentType
}

func (c *sendConfig) retryOpts(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.RetryAttempts),
		retry.Delay(c.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	}
}

func (c *sendConfig) confirmRetryOpts(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.ConfirmRetryAttempts),
		retry.Delay(c.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	}
}

var sendConfigDefault = sendConfig{
	RetryAttempts:        1,
	RetryDelay:           50 * time.Millisecond,
	ConfirmRetryAttempts: 500,
	Commitment:           solrpc.CommitmentConfirmed,
}

func newSendConfig(opts []SendOpt) sendConfig {
	config := sendConfigDefault
	config.Signers = nil
	for _, opt := range opts {
		opt(&config)
	}

	return config
}

// SendOpt is a functional option type that allows for configuring Send operations.
type SendOpt func(*sendConfig)

// WithRetry sets the number of retry attempts and the delay between retries.
func WithRetry(attempts uint, delay time.Duration) SendOpt {
	return func(config *sendConfig) {
		config.RetryAttempts = attempts
		config.RetryDelay = delay
	}
}

// WithConfirmAttempts caps how many times the signature status is polled.
func WithConfirmAttempts(attempts uint) SendOpt {
	return func(config *sendConfig) {
		config.ConfirmRetryAttempts = attempts
	}
}

// WithSigners adds keys that must sign next to the deployer, e.g. an authority other than the
// fee payer.
func WithSigners(keys ...sollib.PrivateKey) SendOpt {
	return func(config *sendConfig) {
		config.Signers = append(config.Signers, keys...)
	}
}

// Client is a wrapper around the solana RPC client that signs with the deployer key and
// handles retries.
type Client struct {
	*solrpc.Client

	DeployerKey sollib.PrivateKey
}

// New creates a new Client instance with the provided Solana RPC client and deployer's private
// key.
func New(client *solrpc.Client, deployerKey sollib.PrivateKey) *Client {
	return &Client{
		Client:      client,
		DeployerKey: deployerKey,
	}
}

// Send builds a transaction from instructions, signs it with the deployer key and any keys
// given with WithSigners, and submits it. It returns once the node accepted the transaction; use
// Confirm to wait for it to land.
func (c *Client) Send(
	ctx context.Context, instructions []sollib.Instruction, opts ...SendOpt,
) (sollib.Signature, error) {
	config := newSendConfig(opts)

	hashRes, err := c.getLatestBlockhash(ctx, config.Commitment, config.retryOpts(ctx)...)
	if err != nil {
		return sollib.Signature{}, fmt.Errorf("error getting latest blockhash: %w", err)
	}

	tx, err := sollib.NewTransaction(
		instructions,
		hashRes.Value.Blockhash,
		sollib.TransactionPayer(c.DeployerKey.PublicKey()),
	)
	if err != nil {
		return sollib.Signature{}, fmt.Errorf("error constructing transaction: %w", err)
	}

	signers := map[sollib.PublicKey]sollib.PrivateKey{
		c.DeployerKey.PublicKey(): c.DeployerKey,
	}
	for _, k := range config.Signers {
		signers[k.PublicKey()] = k
	}

	if _, err = tx.Sign(func(pub sollib.PublicKey) *sollib.PrivateKey {
		priv, ok := signers[pub]
		if !ok {
			return nil
		}

		return &priv
	}); err != nil {
		return sollib.Signature{}, fmt.Errorf("error signing transaction: %w", err)
	}

	txsig, err := c.sendTx(ctx, tx, solrpc.TransactionOpts{
		SkipPreflight:       false, // preflight surfaces program errors before anything lands
		PreflightCommitment: config.Commitment,
	}, config.retryOpts(ctx)...)
	if err != nil {
		return sollib.Signature{}, fmt.Errorf("error sending transaction: %w", err)
	}

	return txsig, nil
}

// Confirm polls the signature status until the transaction reaches the confirmed or finalized
// commitment. A transaction that executed with an error yields ErrTransactionFailed.
func (c *Client) Confirm(ctx context.Context, txsig sollib.Signature, opts ...SendOpt) error {
	config := newSendConfig(opts)

	if err := c.confirmTx(ctx, txsig, config.confirmRetryOpts(ctx)...); err != nil {
		return fmt.Errorf("error confirming transaction %s: %w", txsig, err)
	}

	return nil
}

// SendAndConfirmTx sends the instructions as one transaction and waits for it to be confirmed.
func (c *Client) SendAndConfirmTx(
	ctx context.Context, instructions []sollib.Instruction, opts ...SendOpt,
) (sollib.Signature, error) {
	txsig, err := c.Send(ctx, instructions, opts...)
	if err != nil {
		return sollib.Signature{}, err
	}

	if err := c.Confirm(ctx, txsig, opts...); err != nil {
		return txsig, err
	}

	return txsig, nil
}

func (c *Client) getLatestBlockhash(
	ctx context.Context, commitment solrpc.CommitmentType, retryOpts ...retry.Option,
) (*solrpc.GetLatestBlockhashResult, error) {
	var result *solrpc.GetLatestBlockhashResult

	err := retry.Do(func() error {
		var rerr error

		result, rerr = c.GetLatestBlockhash(ctx, commitment)

		return rerr
	}, retryOpts...)

	return result, err
}

func (c *Client) sendTx(
	ctx context.Context,
	tx *sollib.Transaction,
	txOpts solrpc.TransactionOpts,
	retryOpts ...retry.Option,
) (sollib.Signature, error) {
	var txsig sollib.Signature

	err := retry.Do(func() error {
		var rerr error

		txsig, rerr = c.SendTransactionWithOpts(ctx, tx, txOpts)
		if rerr != nil {
			var rpcErr *jsonrpc.RPCError
			if errors.As(rerr, &rpcErr) {
				if strings.Contains(rpcErr.Message, "Blockhash not found") {
					// The blockhash came from the same node but is not always visible to it yet.
					return fmt.Errorf("blockhash not found, retrying: %w", rerr)
				}

				return retry.Unrecoverable(
					fmt.Errorf("unexpected error (most likely contract related), will not retry: %w", rerr),
				)
			}

			return fmt.Errorf("unexpected error (could not hit rpc service): %w", rerr)
		}

		return nil
	}, retryOpts...)

	return txsig, err
}

var errNotConfirmed = errors.New("not yet confirmed")

func (c *Client) confirmTx(
	ctx context.Context,
	txsig sollib.Signature,
	retryOpts ...retry.Option,
) error {
	return retry.Do(func() error {
		statusRes, err := c.GetSignatureStatuses(ctx, true, txsig)
		if err != nil {
			// Mainnet can be flakey.
			return err
		}

		if statusRes == nil || len(statusRes.Value) == 0 || statusRes.Value[0] == nil {
			return errNotConfirmed
		}

		status := statusRes.Value[0]
		if status.Err != nil {
			return retry.Unrecoverable(fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err))
		}

		switch status.ConfirmationStatus {
		case solrpc.ConfirmationStatusConfirmed, solrpc.ConfirmationStatusFinalized:
			return nil
		default:
			return errNotConfirmed
		}
	}, retryOpts...)
}
