package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"state-connector/models"
)

// Backend is the subset of ethclient.Client the contract client needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Config carries the contract connection settings.
type Config struct {
	RPCURL      string
	Address     string
	PrivateKey  string
	ChainID     int64 // 0 asks the node
	GasPrice    int64
	GasLimit    uint64
	ReceiptPoll time.Duration
}

// EthClient is the LedgerClient backed by an EVM JSON-RPC node.
type EthClient struct {
	backend  Backend
	abi      abi.ABI
	address  common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   types.Signer
	gasPrice *big.Int
	gasLimit uint64
	poll     time.Duration
	log      *zap.Logger

	mu sync.Mutex // one submission at a time keeps nonces ordered
}

var _ LedgerClient = (*EthClient)(nil)

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg Config, log *zap.Logger) (*EthClient, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			client.Close()
			return nil, models.Connectivity("chain_id", err)
		}
	}
	return NewEthClient(client, cfg, chainID, log)
}

// NewEthClient wraps an existing backend.
func NewEthClient(backend Backend, cfg Config, chainID *big.Int, log *zap.Logger) (*EthClient, error) {
	parsed, err := abi.JSON(strings.NewReader(stateConnectorABI))
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.Address)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	poll := cfg.ReceiptPoll
	if poll <= 0 {
		poll = time.Second
	}
	return &EthClient{
		backend:  backend,
		abi:      parsed,
		address:  common.HexToAddress(cfg.Address),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		signer:   types.LatestSignerForChainID(chainID),
		gasPrice: big.NewInt(cfg.GasPrice),
		gasLimit: cfg.GasLimit,
		poll:     poll,
		log:      log,
	}, nil
}

func (c *EthClient) Submitter() common.Address { return c.from }

// Close releases the node connection.
func (c *EthClient) Close() {
	if cl, ok := c.backend.(interface{ Close() }); ok {
		cl.Close()
	}
}

func (c *EthClient) FinalityStatus(ctx context.Context, chain models.ChainID) (models.FinalityStatus, error) {
	out, err := c.call(ctx, "getLatestIndex", uint32(chain))
	if errors.Is(err, errReverted) {
		return models.FinalityStatus{}, fmt.Errorf("%w: %v", models.ErrUninitialised, err)
	}
	if err != nil {
		return models.FinalityStatus{}, err
	}
	status := models.FinalityStatus{
		GenesisLedger:        out[0].(uint64),
		FinalisedPeriodIndex: out[1].(uint64),
		PeriodLength:         out[2].(uint64),
		FinalisedLedgerIndex: out[3].(uint64),
		FinalisedTimestamp:   out[4].(*big.Int).Uint64(),
		TimeDiffAvg:          out[5].(*big.Int).Uint64(),
	}

	unl, err := c.call(ctx, "getUNL")
	if err != nil {
		return models.FinalityStatus{}, err
	}
	status.UNL = unl[0].([]common.Address)

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return models.FinalityStatus{}, models.Connectivity("header", err)
	}
	status.Coinbase = head.Coinbase
	return status, nil
}

func (c *EthClient) EpochRegistered(ctx context.Context, chain models.ChainID, index uint64) (bool, error) {
	out, err := c.call(ctx, "getClaimPeriodIndexFinality", uint32(chain), index)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (c *EthClient) EpochRoot(ctx context.Context, chain models.ChainID, index uint64) (common.Hash, error) {
	out, err := c.call(ctx, "getClaimPeriodHash", uint32(chain), index)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(out[0].([32]byte)), nil
}

func (c *EthClient) PaymentFinality(ctx context.Context, claim models.PaymentClaim) (bool, error) {
	out, err := c.call(ctx, "getPaymentFinality",
		uint32(claim.ChainID), [32]byte(claim.TxIDHash()), claim.Ledger, [32]byte(claim.Leaf))
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (c *EthClient) InitialiseChains(ctx context.Context) (common.Hash, error) {
	return c.transact(ctx, "initialiseChains")
}

func (c *EthClient) RegisterEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root common.Hash) (common.Hash, error) {
	return c.transact(ctx, "registerClaimPeriod", uint32(chain), upper, index, [32]byte(root))
}

func (c *EthClient) RegisterPartial(ctx context.Context, chain models.ChainID, index, upper, skip uint64, root common.Hash) (common.Hash, error) {
	return c.transact(ctx, "registerPartialClaimPeriod", uint32(chain), upper, index, skip, [32]byte(root))
}

func (c *EthClient) CommitEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root, commitHash common.Hash) (common.Hash, error) {
	return c.transact(ctx, "commitClaimPeriod", uint32(chain), upper, index, [32]byte(root), [32]byte(commitHash))
}

func (c *EthClient) RevealEpoch(ctx context.Context, chain models.ChainID, index, upper uint64, root, chainTipHash common.Hash) (common.Hash, error) {
	return c.transact(ctx, "revealClaimPeriod", uint32(chain), upper, index, [32]byte(root), [32]byte(chainTipHash))
}

func (c *EthClient) ProvePayment(ctx context.Context, claim models.PaymentClaim) (common.Hash, error) {
	return c.transact(ctx, "provePaymentFinality", claimArgs(claim)...)
}

func (c *EthClient) DisprovePayment(ctx context.Context, claim models.PaymentClaim) (common.Hash, error) {
	return c.transact(ctx, "disprovePaymentFinality", claimArgs(claim)...)
}

func claimArgs(claim models.PaymentClaim) []interface{} {
	proof := make([][32]byte, len(claim.Proof))
	for i, p := range claim.Proof {
		proof[i] = p
	}
	return []interface{}{
		uint32(claim.ChainID), claim.Epoch, claim.Ledger,
		[32]byte(claim.TxIDHash()), [32]byte(claim.Leaf), proof,
	}
}

func (c *EthClient) AwaitReceipt(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt.Status == types.ReceiptStatusFailed:
			return models.SubmissionError("receipt", fmt.Errorf("transaction %s reverted", hash.Hex()))
		case err == nil:
			c.log.Debug("Transaction included", zap.String("tx", hash.Hex()), zap.Uint64("block", receipt.BlockNumber.Uint64()))
			return nil
		case !errors.Is(err, ethereum.NotFound):
			c.log.Warn("Receipt lookup failed", zap.String("tx", hash.Hex()), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var errReverted = errors.New("execution reverted")

func (c *EthClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &c.address, Data: data}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "revert") {
			return nil, fmt.Errorf("%s: %w", method, errReverted)
		}
		return nil, models.Connectivity(method, err)
	}
	return c.abi.Unpack(method, raw)
}

// transact signs and sends one contract call. It signs with the mined nonce,
// so re-signing a call that is still pending reproduces its hash and a
// transaction already known to the node is never sent again.
func (c *EthClient) transact(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := c.backend.NonceAt(ctx, c.from, nil)
	if err != nil {
		return common.Hash{}, models.Connectivity("nonce", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    new(big.Int),
		Gas:      c.gasLimit,
		GasPrice: c.gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return common.Hash{}, models.SubmissionError(method, err)
	}
	hash := signed.Hash()

	if _, pending, err := c.backend.TransactionByHash(ctx, hash); err == nil {
		return hash, fmt.Errorf("%s %s (pending=%t): %w", method, hash.Hex(), pending, models.ErrAlreadyInFlight)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		if strings.Contains(err.Error(), "already known") {
			return hash, fmt.Errorf("%s %s: %w", method, hash.Hex(), models.ErrAlreadyInFlight)
		}
		// the node may have accepted it before the transport failed
		_, _, lookupErr := c.backend.TransactionByHash(ctx, hash)
		switch {
		case lookupErr == nil:
			return hash, nil
		case errors.Is(lookupErr, ethereum.NotFound):
			return common.Hash{}, models.SubmissionError(method, err)
		default:
			return common.Hash{}, models.Connectivity(method, fmt.Errorf("send: %v, lookup: %w", err, lookupErr))
		}
	}
	c.log.Info("Submitted transaction", zap.String("method", method), zap.String("tx", hash.Hex()), zap.Uint64("nonce", nonce))
	return hash, nil
}
