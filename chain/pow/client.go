// Package pow reads a block-indexed UTXO chain from a bitcoind compatible
// JSON-RPC server.
package pow

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"state-connector/chain"
	"state-connector/leaf"
	"state-connector/models"
)

// maxOutput is the highest output index addressable by a transaction id:
// the output is carried as a single hex nibble in front of the txid.
const maxOutput = 15

var satoshi = big.NewRat(100_000_000, 1)

// bitcoind error codes
const (
	codeNotFound  = -5
	codeWarmingUp = -28
)

// Client is a chain.Reader over bitcoind. Every output of a transaction is
// reported as its own transaction, identified by OutputID.
type Client struct {
	rpc    *rpc.Client
	native string
}

// Dial connects with HTTP basic auth.
func Dial(ctx context.Context, url, user, password, native string) (*Client, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	c, err := rpc.DialOptions(ctx, url, rpc.WithHTTPAuth(func(h http.Header) error {
		h.Set("Authorization", "Basic "+auth)
		return nil
	}))
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return &Client{rpc: c, native: native}, nil
}

func (c *Client) Close() { c.rpc.Close() }

// OutputID names output vout of txid.
func OutputID(txid string, vout int) string {
	return fmt.Sprintf("%x%s", vout, txid)
}

// SplitOutputID is the inverse of OutputID.
func SplitOutputID(id string) (string, int, error) {
	if len(id) < 2 {
		return "", 0, errors.Errorf("invalid output id %q", id)
	}
	vout, err := strconv.ParseUint(id[:1], 16, 8)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid output id %q", id)
	}
	return id[1:], int(vout), nil
}

func (c *Client) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	err := c.rpc.CallContext(ctx, out, method, args...)
	if err == nil {
		return nil
	}
	if code, ok := errorCode(err); ok {
		switch code {
		case codeNotFound:
			return models.ErrTxNotFound
		case codeWarmingUp:
			return models.Connectivity(method, err)
		}
		return errors.Wrap(err, method)
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError && httpErr.StatusCode != http.StatusTooManyRequests {
		return errors.Wrap(err, method)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return models.Connectivity(method, err)
}

// errorCode extracts the JSON-RPC error code, which bitcoind may return in
// the body of a non-200 response.
func errorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && len(httpErr.Body) > 0 {
		var body struct {
			Error *struct {
				Code int `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(httpErr.Body, &body) == nil && body.Error != nil {
			return body.Error.Code, true
		}
	}
	return 0, false
}

type scriptPubKey struct {
	Type      string   `json:"type"`
	Asm       string   `json:"asm"`
	Address   string   `json:"address"`
	Addresses []string `json:"addresses"`
}

type output struct {
	Value        json.Number  `json:"value"`
	N            int          `json:"n"`
	ScriptPubKey scriptPubKey `json:"scriptPubKey"`
}

type rawTx struct {
	TxID      string   `json:"txid"`
	BlockHash string   `json:"blockhash"`
	Vout      []output `json:"vout"`
}

type block struct {
	Hash   string  `json:"hash"`
	Height uint64  `json:"height"`
	Tx     []rawTx `json:"tx"`
}

// memos collects the data pushes of the nulldata outputs.
func memos(tx rawTx) []chain.Memo {
	var out []chain.Memo
	for _, o := range tx.Vout {
		if o.ScriptPubKey.Type != "nulldata" {
			continue
		}
		fields := strings.Fields(o.ScriptPubKey.Asm)
		if len(fields) == 2 && fields[0] == "OP_RETURN" {
			out = append(out, chain.Memo{Data: strings.ToLower(fields[1])})
		}
	}
	return out
}

// outputs lists the addressed outputs of tx. An undecodable value leaves
// Amount nil so the scan filter rejects that output.
func (c *Client) outputs(tx rawTx, height uint64) []chain.Transaction {
	notes := memos(tx)
	var out []chain.Transaction
	for _, o := range tx.Vout {
		if o.N > maxOutput {
			break
		}
		dest := o.ScriptPubKey.Address
		if dest == "" && len(o.ScriptPubKey.Addresses) == 1 {
			dest = o.ScriptPubKey.Addresses[0]
		}
		if dest == "" {
			continue
		}
		var amount *big.Int
		if v, ok := new(big.Rat).SetString(o.Value.String()); ok && v.Sign() >= 0 {
			v.Mul(v, satoshi)
			amount = new(big.Int).Quo(v.Num(), v.Denom())
		}
		out = append(out, chain.Transaction{
			ID:          OutputID(tx.TxID, o.N),
			Ledger:      height,
			Succeeded:   true,
			Payment:     true,
			Destination: dest,
			Amount:      amount,
			Currency:    leaf.NativeCurrency(c.native),
			Memos:       notes,
		})
	}
	return out
}

// LedgerPage returns every output of block index in one page.
func (c *Client) LedgerPage(ctx context.Context, index uint64, marker string) (chain.Page, error) {
	hash, err := c.blockHash(ctx, index)
	if err != nil {
		return chain.Page{}, err
	}
	var b block
	if err := c.call(ctx, &b, "getblock", hash, 2); err != nil {
		return chain.Page{}, err
	}
	page := chain.Page{}
	for _, tx := range b.Tx {
		page.Transactions = append(page.Transactions, c.outputs(tx, index)...)
	}
	return page, nil
}

// Transaction resolves an output id. Unconfirmed transactions are reported
// as not found.
func (c *Client) Transaction(ctx context.Context, id string) (chain.Transaction, error) {
	txid, vout, err := SplitOutputID(id)
	if err != nil {
		return chain.Transaction{}, err
	}
	var tx rawTx
	if err := c.call(ctx, &tx, "getrawtransaction", txid, true); err != nil {
		return chain.Transaction{}, err
	}
	if tx.BlockHash == "" {
		return chain.Transaction{}, models.ErrTxNotFound
	}
	var header struct {
		Height uint64 `json:"height"`
	}
	if err := c.call(ctx, &header, "getblockheader", tx.BlockHash); err != nil {
		return chain.Transaction{}, err
	}
	for _, o := range c.outputs(tx, header.Height) {
		if o.ID == OutputID(txid, vout) {
			return o, nil
		}
	}
	return chain.Transaction{}, models.ErrTxNotFound
}

func (c *Client) Tip(ctx context.Context) (uint64, error) {
	var n uint64
	if err := c.call(ctx, &n, "getblockcount"); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Client) blockHash(ctx context.Context, index uint64) (string, error) {
	var h string
	if err := c.call(ctx, &h, "getblockhash", index); err != nil {
		return "", err
	}
	return h, nil
}

func (c *Client) LedgerHash(ctx context.Context, index uint64) (common.Hash, error) {
	h, err := c.blockHash(ctx, index)
	if err != nil {
		return common.Hash{}, err
	}
	if len(h) != 2*common.HashLength {
		return common.Hash{}, errors.Errorf("block %d: invalid hash %q", index, h)
	}
	return common.HexToHash(h), nil
}
