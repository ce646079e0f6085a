package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/intergov/notary/internal/log"
)

const (
	// Eq is for "equal" result of comparison
	Eq = 0
	// Gt is for "greater" than result of comparison
	Gt = 1
	// Lt is for "less than" result of comparison
	Lt = -1
)

var (
	// ErrReceiptStatusFailed when receiving a failed transaction
	ErrReceiptStatusFailed = errors.New("receipt status is failed")
	// ErrReceiptNotReceived when unable to retrieve a transaction
	ErrReceiptNotReceived = errors.New("receipt not available")
)

// Client is an ethereum client to call Smart Contract methods.
type Client struct {
	client *ethclient.Client
	Config *ClientConfig
}

// ClientConfig eth client config
type ClientConfig struct {
	ReceiptTimeout       time.Duration `json:"receipt_timeout"`
	DefaultGasLimit      uint64        `json:"default_gas_limit"`
	MinGasPrice          *big.Int      `json:"min_gas_price"`
	MaxGasPrice          *big.Int      `json:"max_gas_price"`
	RPCResponseTimeout   time.Duration `json:"rpc_response_time_out"`
	WaitReceiptCycleTime time.Duration `json:"wait_receipt_cycle_time_out"`
}

// NewClient creates a Client instance.
func NewClient(client *ethclient.Client, c *ClientConfig) *Client {
	return &Client{client: client, Config: c}
}

// Dial connects to the rpc endpoint at url
func Dial(ctx context.Context, url string, c *ClientConfig) (*Client, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.RPCResponseTimeout)
	defer cancel()
	cl, err := ethclient.DialContext(_ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ethereum node: %w", err)
	}
	return NewClient(cl, c), nil
}

// ChainID get chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	return c.client.ChainID(_ctx)
}

// PendingNonceAt returns the next nonce of addr including pending transactions
func (c *Client) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	return c.client.PendingNonceAt(_ctx, addr)
}

// NonceAt returns the nonce of addr at the latest block
func (c *Client) NonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	return c.client.NonceAt(_ctx, addr, nil)
}

// SuggestGasPrice asks the node fee oracle for a gas price, clamped to the configured bounds
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	suggested, err := c.client.SuggestGasPrice(_ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get suggested gas price: %w", err)
	}
	gasPrice := c.clampGasPrice(suggested)
	if gasPrice.Cmp(suggested) != Eq {
		log.Debug(ctx, "gas price corrected", "suggested", suggested, "corrected", gasPrice)
	}
	return gasPrice, nil
}

func (c *Client) clampGasPrice(price *big.Int) *big.Int {
	gasPrice := new(big.Int).Set(price)
	zero := big.NewInt(0)
	if c.Config.MinGasPrice != nil && c.Config.MinGasPrice.Cmp(zero) == Gt && gasPrice.Cmp(c.Config.MinGasPrice) == Lt {
		gasPrice.Set(c.Config.MinGasPrice)
	}
	if c.Config.MaxGasPrice != nil && c.Config.MaxGasPrice.Cmp(zero) == Gt && gasPrice.Cmp(c.Config.MaxGasPrice) == Gt {
		gasPrice.Set(c.Config.MaxGasPrice)
	}
	return gasPrice
}

// CallContract performs a read only call against the latest block
func (c *Client) CallContract(ctx context.Context, to common.Address, payload []byte) ([]byte, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	return c.client.CallContract(_ctx, ethereum.CallMsg{To: &to, Data: payload}, nil)
}

// LegacyTxParams settings for a gas price transaction.
type LegacyTxParams struct {
	Nonce       uint64
	GasPrice    *big.Int
	FromAddress common.Address
	ToAddress   common.Address
	Payload     []byte
}

// CreateLegacyTx builds an unsigned gas price transaction. Gas is estimated and falls back
// to the configured default limit when the node returns zero.
func (c *Client) CreateLegacyTx(ctx context.Context, txParams LegacyTxParams) (*types.Transaction, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	gasLimit, err := c.client.EstimateGas(_ctx, ethereum.CallMsg{
		From:     txParams.FromAddress,
		To:       &txParams.ToAddress,
		GasPrice: txParams.GasPrice,
		Value:    big.NewInt(0),
		Data:     txParams.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}
	if gasLimit == 0 {
		gasLimit = c.Config.DefaultGasLimit
	}

	to := txParams.ToAddress
	return types.NewTx(&types.LegacyTx{
		Nonce:    txParams.Nonce,
		GasPrice: txParams.GasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     txParams.Payload,
	}), nil
}

// SendRawTx send raw transaction.
func (c *Client) SendRawTx(ctx context.Context, tx *types.Transaction) error {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	return c.client.SendTransaction(_ctx, tx)
}

// WaitReceipt polls for the receipt of txID until it is available or timeout elapses.
// It returns ErrReceiptNotReceived on timeout.
func (c *Client) WaitReceipt(ctx context.Context, txID common.Hash, timeout time.Duration) (*types.Receipt, error) {
	log.Debug(ctx, "waiting for receipt", "tx", txID.Hex())

	_ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(c.Config.WaitReceiptCycleTime)
	defer ticker.Stop()

	for {
		rpcCtx, rpcCancel := context.WithTimeout(_ctx, c.Config.RPCResponseTimeout)
		receipt, err := c.client.TransactionReceipt(rpcCtx, txID)
		rpcCancel()
		if err == nil && receipt != nil {
			log.Debug(ctx, "receipt received", "tx", txID.Hex(), "status", receipt.Status)
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Debug(ctx, "get transaction receipt", "tx", txID.Hex(), "err", err)
		}

		select {
		case <-_ctx.Done():
			log.Debug(ctx, "pending transaction / wait receipt timeout", "tx", txID.Hex())
			return nil, ErrReceiptNotReceived
		case <-ticker.C:
		}
	}
}

// CurrentBlock returns the current block number in the blockchain
func (c *Client) CurrentBlock(ctx context.Context) (*big.Int, error) {
	_ctx, cancel := context.WithTimeout(ctx, c.Config.RPCResponseTimeout)
	defer cancel()
	header, err := c.client.HeaderByNumber(_ctx, nil)
	if err != nil {
		return nil, err
	}
	return header.Number, nil
}

// Ping checks the node answers. Used by the health status.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.CurrentBlock(ctx)
	return err
}
