package xrpl_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"state-connector/chain"
	"state-connector/chain/xrpl"
	"state-connector/epoch"
	"state-connector/models"
	"state-connector/scanner"
)

const account = "rGWrZyQqhTp9Xu7G5Pkayo7bXjH4k4QYpf"

// rippled answers with canned results keyed by method.
func rippled(t *testing.T, results map[string]func(params map[string]interface{}) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req struct {
			Method string                   `json:"method"`
			Params []map[string]interface{} `json:"params"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fn, ok := results[req.Method]
		if !ok {
			w.Write([]byte(`{"result":{"status":"error","error":"unknownCmd"}}`))
			return
		}
		w.Write([]byte(`{"result":` + fn(req.Params[0]) + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLedgerPageAccountTx(t *testing.T) {
	srv := rippled(t, map[string]func(map[string]interface{}) string{
		"account_tx": func(p map[string]interface{}) string {
			if _, ok := p["marker"]; !ok {
				return `{"status":"success","marker":{"ledger":1003,"seq":7},"transactions":[
					{"tx":{"hash":"A1","TransactionType":"Payment","Account":"rSrc","Destination":"` + account + `","DestinationTag":5,"Amount":"1000","Memos":[{"Memo":{"MemoData":"3078AB"}}]},
					 "meta":{"TransactionResult":"tesSUCCESS","delivered_amount":"900"}}]}`
			}
			return `{"status":"success","transactions":[
				{"tx":{"hash":"A2","TransactionType":"Payment","Account":"rSrc","Destination":"` + account + `",
				  "Amount":{"currency":"USD","issuer":"rIssuer","value":"1.5"}},
				 "meta":{"TransactionResult":"tecPATH_DRY"}}]}`
		},
	})
	c := xrpl.New(srv.URL, account, "XRP", 0)

	first, err := c.LedgerPage(context.Background(), 1003, "")
	require.NoError(t, err)
	require.Len(t, first.Transactions, 1)
	assert.JSONEq(t, `{"ledger":1003,"seq":7}`, first.Marker)
	tx := first.Transactions[0]
	assert.Equal(t, "A1", tx.ID)
	assert.Equal(t, uint64(1003), tx.Ledger)
	assert.True(t, tx.Succeeded)
	assert.True(t, tx.Payment)
	assert.Equal(t, big.NewInt(900), tx.Amount)
	assert.Equal(t, "XRP", tx.Currency)
	assert.Equal(t, uint64(5), *tx.DestinationTag)
	assert.Equal(t, "3078ab", tx.Memos[0].Data)

	second, err := c.LedgerPage(context.Background(), 1003, first.Marker)
	require.NoError(t, err)
	assert.Empty(t, second.Marker)
	tx = second.Transactions[0]
	assert.False(t, tx.Succeeded)
	assert.Equal(t, "USDrIssuer", tx.Currency)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(14), nil)), tx.Amount)
}

func TestLedgerPageWholeLedger(t *testing.T) {
	srv := rippled(t, map[string]func(map[string]interface{}) string{
		"ledger": func(p map[string]interface{}) string {
			return `{"status":"success","ledger":{"transactions":[
				{"hash":"B1","TransactionType":"OfferCreate","Account":"rSrc","metaData":{"TransactionResult":"tesSUCCESS"}},
				{"hash":"B2","TransactionType":"Payment","Account":"rSrc","Destination":"rDst","Amount":"5","metaData":{"TransactionResult":"tesSUCCESS"}}]}}`
		},
	})
	c := xrpl.New(srv.URL, "", "XRP", 0)

	page, err := c.LedgerPage(context.Background(), 77, "")
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.False(t, page.Transactions[0].Payment)
	assert.Equal(t, big.NewInt(5), page.Transactions[1].Amount)
	assert.Equal(t, uint64(77), page.Transactions[1].Ledger)
}

func TestUndecodableAmountDoesNotFailLedger(t *testing.T) {
	memo := `"Memos":[{"Memo":{"MemoData":"` + hex.EncodeToString([]byte("0x8ba1f109551bD432803012645Ac136ddd64DBA72")) + `"}}]`
	srv := rippled(t, map[string]func(map[string]interface{}) string{
		"ledger": func(p map[string]interface{}) string {
			return `{"status":"success","ledger":{"transactions":[
				{"hash":"C1","TransactionType":"Payment","Account":"rSrc","Destination":"rDst","Amount":"12x",` + memo + `,"metaData":{"TransactionResult":"tesSUCCESS"}},
				{"hash":"C2","TransactionType":"Payment","Account":"rSrc","Destination":"rDst",` + memo + `,"metaData":{"TransactionResult":"tesSUCCESS"}},
				{"hash":"C3","TransactionType":"Payment","Account":"rSrc","Destination":"rDst","Amount":"7",` + memo + `,"metaData":{"TransactionResult":"tesSUCCESS"}}]}}`
		},
	})
	c := xrpl.New(srv.URL, "", "XRP", 0)

	page, err := c.LedgerPage(context.Background(), 500, "")
	require.NoError(t, err)
	require.Len(t, page.Transactions, 3)
	assert.Nil(t, page.Transactions[0].Amount)
	assert.Nil(t, page.Transactions[1].Amount)

	spec := chain.Spec{Name: "xrp", ID: 3, Variant: chain.LedgerIndexed{Confirmations: 1}, MinAmount: big.NewInt(1)}
	w, err := epoch.Span(spec.ID, 501, 1)
	require.NoError(t, err)
	records, err := scanner.New(spec, c, time.Millisecond, zaptest.NewLogger(t)).Collect(context.Background(), w)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "C3", records[0].TxID)
}

func TestTipAndLedgerHash(t *testing.T) {
	srv := rippled(t, map[string]func(map[string]interface{}) string{
		"ledger": func(p map[string]interface{}) string {
			if p["ledger_index"] == "validated" {
				return `{"status":"success","ledger_index":1234,"ledger_hash":"` + hash64 + `"}`
			}
			return `{"status":"success","ledger_hash":"` + hash64 + `"}`
		},
	})
	c := xrpl.New(srv.URL, "", "XRP", 0)

	tip, err := c.Tip(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), tip)

	h, err := c.LedgerHash(context.Background(), 1234)
	require.NoError(t, err)
	assert.Equal(t, "0x"+lower64, h.Hex())
}

const hash64 = "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"
const lower64 = "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"

func TestTransactionErrors(t *testing.T) {
	srv := rippled(t, map[string]func(map[string]interface{}) string{
		"tx": func(p map[string]interface{}) string {
			if p["transaction"] == "busy" {
				return `{"status":"error","error":"tooBusy"}`
			}
			return `{"status":"error","error":"txnNotFound"}`
		},
	})
	c := xrpl.New(srv.URL, "", "XRP", 0)

	_, err := c.Transaction(context.Background(), "missing")
	assert.True(t, errors.Is(err, models.ErrTxNotFound))

	_, err = c.Transaction(context.Background(), "busy")
	assert.True(t, errors.Is(err, models.ErrConnectivity))
}

func TestTransportFailureIsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	c := xrpl.New(srv.URL, "", "XRP", 0)

	_, err := c.Tip(context.Background())
	assert.True(t, errors.Is(err, models.ErrConnectivity))

	srv.Close()
	_, err = c.Tip(context.Background())
	assert.True(t, errors.Is(err, models.ErrConnectivity))
}
