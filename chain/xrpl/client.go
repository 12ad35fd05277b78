// Package xrpl reads a ledger-indexed chain from a rippled JSON-RPC server.
package xrpl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"state-connector/chain"
	"state-connector/leaf"
	"state-connector/models"
)

// issuedScale turns an issued amount's decimal value into integer units.
var issuedScale = new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))

// rippled error codes that describe an overloaded or unsynced server
var transient = map[string]bool{
	"noNetwork": true,
	"noCurrent": true,
	"noClosed":  true,
	"notSynced": true,
	"tooBusy":   true,
	"slowDown":  true,
}

// Client is a chain.Reader over rippled. With Account set, ledgers are read
// through account_tx and only that account's payments are seen; otherwise
// every transaction of a ledger is read in one page.
type Client struct {
	url     string
	account string
	native  string
	http    *http.Client
}

func New(url, account, native string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:     url,
		account: account,
		native:  native,
		http:    &http.Client{Timeout: timeout},
	}
}

type request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
}

type status struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(request{Method: method, Params: []interface{}{params}})
	if err != nil {
		return errors.Wrapf(err, "encode %s", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build %s", method)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return models.Connectivity(method, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return models.Connectivity(method, err)
	}
	if res.StatusCode >= http.StatusInternalServerError || res.StatusCode == http.StatusTooManyRequests {
		return models.Connectivity(method, errors.Errorf("http status %d", res.StatusCode))
	}
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("%s: http status %d", method, res.StatusCode)
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return errors.Wrapf(err, "decode %s", method)
	}
	var st status
	if err := json.Unmarshal(env.Result, &st); err != nil {
		return errors.Wrapf(err, "decode %s status", method)
	}
	if st.Status != "success" {
		switch {
		case st.Error == "txnNotFound":
			return models.ErrTxNotFound
		case transient[st.Error]:
			return models.Connectivity(method, errors.New(st.Error))
		default:
			return errors.Errorf("%s: %s %s", method, st.Error, st.ErrorMessage)
		}
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return errors.Wrapf(err, "decode %s result", method)
	}
	return nil
}

type memo struct {
	Memo struct {
		MemoData string `json:"MemoData"`
	} `json:"Memo"`
}

type meta struct {
	TransactionResult string          `json:"TransactionResult"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount"`
}

type tx struct {
	Hash            string          `json:"hash"`
	TransactionType string          `json:"TransactionType"`
	Account         string          `json:"Account"`
	Destination     string          `json:"Destination"`
	DestinationTag  *uint64         `json:"DestinationTag"`
	Amount          json.RawMessage `json:"Amount"`
	Memos           []memo          `json:"Memos"`
	LedgerIndex     uint64          `json:"ledger_index"`
	InLedger        uint64          `json:"inLedger"`
	Meta            *meta           `json:"meta"`
	MetaData        *meta           `json:"metaData"`
}

type issued struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

func (c *Client) amount(raw json.RawMessage) (*big.Int, string, error) {
	var drops string
	if err := json.Unmarshal(raw, &drops); err == nil {
		v, ok := new(big.Int).SetString(drops, 10)
		if !ok {
			return nil, "", errors.Errorf("invalid drops amount %q", drops)
		}
		return v, leaf.NativeCurrency(c.native), nil
	}
	var iou issued
	if err := json.Unmarshal(raw, &iou); err != nil {
		return nil, "", errors.Wrap(err, "decode amount")
	}
	v, ok := new(big.Rat).SetString(iou.Value)
	if !ok {
		return nil, "", errors.Errorf("invalid issued amount %q", iou.Value)
	}
	v.Mul(v, issuedScale)
	return new(big.Int).Quo(v.Num(), v.Denom()), leaf.IssuedCurrency(iou.Currency, iou.Issuer), nil
}

// normalise maps a rippled transaction onto chain.Transaction. Amount
// prefers the delivered amount over the requested one. An undecodable amount
// leaves Amount nil so the scan filter rejects the payment.
func (c *Client) normalise(t tx, ledger uint64) chain.Transaction {
	m := t.Meta
	if m == nil {
		m = t.MetaData
	}
	if ledger == 0 {
		ledger = t.LedgerIndex
	}
	if ledger == 0 {
		ledger = t.InLedger
	}
	out := chain.Transaction{
		ID:             t.Hash,
		Ledger:         ledger,
		Succeeded:      m != nil && m.TransactionResult == "tesSUCCESS",
		Payment:        t.TransactionType == "Payment",
		Source:         t.Account,
		Destination:    t.Destination,
		DestinationTag: t.DestinationTag,
	}
	for _, mm := range t.Memos {
		out.Memos = append(out.Memos, chain.Memo{Data: strings.ToLower(mm.Memo.MemoData)})
	}
	if !out.Payment {
		return out
	}
	raw := t.Amount
	if m != nil && len(m.DeliveredAmount) > 0 && string(m.DeliveredAmount) != `"unavailable"` {
		raw = m.DeliveredAmount
	}
	amount, currency, err := c.amount(raw)
	if err != nil {
		return out
	}
	out.Amount, out.Currency = amount, currency
	return out
}

type accountTxResult struct {
	Transactions []struct {
		Tx   tx    `json:"tx"`
		Meta *meta `json:"meta"`
	} `json:"transactions"`
	Marker json.RawMessage `json:"marker"`
}

type ledgerResult struct {
	LedgerHash  string `json:"ledger_hash"`
	LedgerIndex uint64 `json:"ledger_index"`
	Ledger      struct {
		LedgerHash   string `json:"ledger_hash"`
		Transactions []tx   `json:"transactions"`
	} `json:"ledger"`
}

func (c *Client) LedgerPage(ctx context.Context, index uint64, marker string) (chain.Page, error) {
	if c.account == "" {
		var res ledgerResult
		err := c.call(ctx, "ledger", map[string]interface{}{
			"ledger_index": index,
			"transactions": true,
			"expand":       true,
		}, &res)
		if err != nil {
			return chain.Page{}, err
		}
		page := chain.Page{}
		for _, t := range res.Ledger.Transactions {
			page.Transactions = append(page.Transactions, c.normalise(t, index))
		}
		return page, nil
	}

	params := map[string]interface{}{
		"account":          c.account,
		"ledger_index_min": index,
		"ledger_index_max": index,
		"forward":          true,
	}
	if marker != "" {
		params["marker"] = json.RawMessage(marker)
	}
	var res accountTxResult
	if err := c.call(ctx, "account_tx", params, &res); err != nil {
		return chain.Page{}, err
	}
	page := chain.Page{}
	for _, item := range res.Transactions {
		t := item.Tx
		if t.Meta == nil {
			t.Meta = item.Meta
		}
		page.Transactions = append(page.Transactions, c.normalise(t, index))
	}
	if len(res.Marker) > 0 && string(res.Marker) != "null" {
		page.Marker = string(res.Marker)
	}
	return page, nil
}

func (c *Client) Transaction(ctx context.Context, id string) (chain.Transaction, error) {
	var res tx
	if err := c.call(ctx, "tx", map[string]interface{}{"transaction": id}, &res); err != nil {
		return chain.Transaction{}, err
	}
	return c.normalise(res, 0), nil
}

// Tip is the latest validated ledger.
func (c *Client) Tip(ctx context.Context) (uint64, error) {
	var res ledgerResult
	if err := c.call(ctx, "ledger", map[string]interface{}{"ledger_index": "validated"}, &res); err != nil {
		return 0, err
	}
	return res.LedgerIndex, nil
}

func (c *Client) LedgerHash(ctx context.Context, index uint64) (common.Hash, error) {
	var res ledgerResult
	if err := c.call(ctx, "ledger", map[string]interface{}{"ledger_index": index}, &res); err != nil {
		return common.Hash{}, err
	}
	h := res.LedgerHash
	if h == "" {
		h = res.Ledger.LedgerHash
	}
	if len(h) != 2*common.HashLength {
		return common.Hash{}, errors.Errorf("ledger %d: invalid hash %q", index, h)
	}
	return common.HexToHash(h), nil
}
