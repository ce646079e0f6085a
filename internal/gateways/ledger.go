package gateways

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/intergov/notary/internal/codec"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/kms"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/pkg/blockchain/eth"
)

// ETHClient is the subset of the ethereum client used to anchor documents
type ETHClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, addr ethCommon.Address) (uint64, error)
	NonceAt(ctx context.Context, addr ethCommon.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CreateLegacyTx(ctx context.Context, params eth.LegacyTxParams) (*types.Transaction, error)
	SendRawTx(ctx context.Context, tx *types.Transaction) error
	WaitReceipt(ctx context.Context, txID ethCommon.Hash, timeout time.Duration) (*types.Receipt, error)
	CallContract(ctx context.Context, to ethCommon.Address, payload []byte) ([]byte, error)
}

// Signer signs transaction digests with the key identified by keyID
type Signer interface {
	Address(ctx context.Context, keyID kms.KeyID) (ethCommon.Address, error)
	Sign(ctx context.Context, keyID kms.KeyID, digest []byte) ([]byte, error)
}

// LedgerConfig tunes the ledger gateway
type LedgerConfig struct {
	Contract       ethCommon.Address
	SignerKeyID    string
	Strategy       domain.FeeStrategy
	ReceiptTimeout time.Duration
	BumpPercent    int
	RefreshEvery   int
}

// LedgerEthGateway anchors merkle roots in a DocumentStore contract.
// Submissions are serialised so nonces are never reused by concurrent callers.
type LedgerEthGateway struct {
	mu       sync.Mutex
	client   ETHClient
	signer   Signer
	keyID    kms.KeyID
	from     ethCommon.Address
	chainID  *big.Int
	contract ethCommon.Address
	abi      *abi.ABI
	timeout  time.Duration
	gas      *gasPricer

	// nonce of the last transaction that timed out, reused so the next submission replaces it
	stuckNonce *uint64
}

// NewLedgerEthGateway resolves the signer address and the chain id and primes the gas price
func NewLedgerEthGateway(ctx context.Context, client ETHClient, signer Signer, cfg LedgerConfig) (*LedgerEthGateway, error) {
	if cfg.SignerKeyID == "" {
		return nil, domain.NewConfigurationError("ledger signer", errors.New("signer key id is required"))
	}
	ab, err := eth.DocumentStoreMetaData.GetAbi()
	if err != nil {
		return nil, err
	}
	keyID := kms.KeyID{Type: kms.KeyTypeEthereum, ID: cfg.SignerKeyID}
	from, err := signer.Address(ctx, keyID)
	if err != nil {
		return nil, domain.NewConfigurationError("ledger signer address", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, domain.NewTransientError("ledger chain id", err)
	}

	g := &LedgerEthGateway{
		client:   client,
		signer:   signer,
		keyID:    keyID,
		from:     from,
		chainID:  chainID,
		contract: cfg.Contract,
		abi:      ab,
		timeout:  cfg.ReceiptTimeout,
	}
	g.gas = newGasPricer(cfg.Strategy, cfg.BumpPercent, cfg.RefreshEvery, client.SuggestGasPrice)
	if err := g.gas.refresh(ctx); err != nil {
		return nil, domain.NewTransientError("initial gas price", err)
	}
	log.Info(ctx, "ledger gateway ready", "from", from.Hex(), "contract", cfg.Contract.Hex(), "chainID", chainID, "strategy", cfg.Strategy.String())
	return g, nil
}

// From returns the signer address
func (g *LedgerEthGateway) From() ethCommon.Address {
	return g.from
}

// GasPrice returns the price the next transaction will be submitted with
func (g *LedgerEthGateway) GasPrice() *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gas.price()
}

// Issue submits issue(merkleRoot) and waits for the receipt
func (g *LedgerEthGateway) Issue(ctx context.Context, merkleRoot [32]byte) (*domain.AnchorReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	payload, err := g.abi.Pack(eth.MethodIssue, merkleRoot)
	if err != nil {
		return nil, err
	}

	nonce, err := g.nextNonce(ctx)
	if err != nil {
		return nil, domain.NewTransientError("ledger nonce", err)
	}

	tx, err := g.client.CreateLegacyTx(ctx, eth.LegacyTxParams{
		Nonce:       nonce,
		GasPrice:    g.gas.price(),
		FromAddress: g.from,
		ToAddress:   g.contract,
		Payload:     payload,
	})
	if err != nil {
		if isRevert(err) {
			return nil, g.classifyRevert(ctx, merkleRoot, err)
		}
		return nil, domain.NewTransientError("create anchoring transaction", err)
	}

	signed, err := g.sign(ctx, tx)
	if err != nil {
		return nil, domain.NewTransientError("sign anchoring transaction", err)
	}

	if err := g.client.SendRawTx(ctx, signed); err != nil {
		switch {
		case isAlreadyKnown(err):
			log.Info(ctx, "transaction already in the pool", "tx", signed.Hash().Hex())
		case isUnderpriced(err):
			g.stuckNonce = &nonce
			g.gas.bump(ctx)
			return nil, domain.NewTransientError("anchoring transaction underpriced", err)
		case isNonceTooLow(err):
			g.stuckNonce = nil
			return nil, domain.NewTransientError("anchoring transaction nonce too low", err)
		default:
			return nil, domain.NewTransientError("send anchoring transaction", err)
		}
	}
	log.Info(ctx, "anchoring transaction sent", "tx", signed.Hash().Hex(), "nonce", nonce, "gasPrice", signed.GasPrice())

	receipt, err := g.client.WaitReceipt(ctx, signed.Hash(), g.timeout)
	if err != nil {
		g.stuckNonce = &nonce
		if errors.Is(err, eth.ErrReceiptNotReceived) {
			g.gas.bump(ctx)
			return nil, domain.NewTransientError(fmt.Sprintf("receipt for %s timed out", signed.Hash().Hex()), err)
		}
		return nil, domain.NewTransientError("wait anchoring receipt", err)
	}
	g.stuckNonce = nil

	out := &domain.AnchorReceipt{TxHash: receipt.TxHash.Hex(), Status: domain.AnchorSuccess}
	if receipt.BlockNumber != nil {
		out.BlockRef = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		out.Status = domain.AnchorFailure
		return out, domain.NewDocumentError(fmt.Sprintf("anchoring transaction %s failed", out.TxHash), eth.ErrReceiptStatusFailed)
	}
	return out, nil
}

// IsIssued asks the contract whether merkleRoot is already anchored
func (g *LedgerEthGateway) IsIssued(ctx context.Context, merkleRoot [32]byte) (bool, error) {
	payload, err := g.abi.Pack(eth.MethodIsIssued, merkleRoot)
	if err != nil {
		return false, err
	}
	res, err := g.client.CallContract(ctx, g.contract, payload)
	if err != nil {
		return false, domain.NewTransientError("isIssued call", err)
	}
	out, err := g.abi.Unpack(eth.MethodIsIssued, res)
	if err != nil {
		return false, domain.NewTransientError("isIssued result", err)
	}
	if len(out) != 1 {
		return false, domain.NewTransientError("isIssued result", fmt.Errorf("unexpected outputs %d", len(out)))
	}
	issued, ok := out[0].(bool)
	if !ok {
		return false, domain.NewTransientError("isIssued result", errors.New("not a bool"))
	}
	return issued, nil
}

// VerifyAnchorOwner checks the wrapped document names this gateway contract as its anchor
func (g *LedgerEthGateway) VerifyAnchorOwner(wrapped map[string]any, version domain.SchemaVersion) error {
	declared, err := codec.AnchorSource(wrapped, version)
	if err != nil {
		return domain.NewDocumentError("anchor source", err)
	}
	if !ethCommon.IsHexAddress(declared) || ethCommon.HexToAddress(declared) != g.contract {
		return domain.NewDocumentError(fmt.Sprintf("document declares %q, contract is %s", declared, g.contract.Hex()), domain.ErrAnchorMismatch)
	}
	return nil
}

// OnMessageProcessed refreshes the gas price every RefreshEvery processed messages
func (g *LedgerEthGateway) OnMessageProcessed(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.gas.tick() {
		return
	}
	if err := g.gas.refresh(ctx); err != nil {
		log.Warn(ctx, "gas price refresh failed, keeping current price", "err", err)
	}
}

func (g *LedgerEthGateway) nextNonce(ctx context.Context) (uint64, error) {
	if g.stuckNonce != nil {
		mined, err := g.client.NonceAt(ctx, g.from)
		if err != nil {
			return 0, err
		}
		if mined <= *g.stuckNonce {
			return *g.stuckNonce, nil
		}
		g.stuckNonce = nil
	}
	return g.client.PendingNonceAt(ctx, g.from)
}

func (g *LedgerEthGateway) sign(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	s := types.LatestSignerForChainID(g.chainID)
	h := s.Hash(tx)
	sig, err := g.signer.Sign(ctx, g.keyID, h[:])
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(s, sig)
}

func (g *LedgerEthGateway) classifyRevert(ctx context.Context, merkleRoot [32]byte, cause error) error {
	issued, err := g.IsIssued(ctx, merkleRoot)
	if err != nil {
		return domain.NewTransientError("anchoring transaction reverted", cause)
	}
	if issued {
		return domain.ErrAlreadyIssued
	}
	return domain.NewDocumentError("anchoring transaction reverted", cause)
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func isUnderpriced(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "underpriced")
}

func isNonceTooLow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
