package leaf_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"state-connector/leaf"
	"state-connector/models"
)

func record() models.PaymentRecord {
	tag := uint64(77)
	return models.PaymentRecord{
		ChainID:        3,
		Ledger:         62000123,
		TxID:           "E3FE6EA3D48F0C2B639448020EA4F03D4F4F8FFDB243A852A0F59177921B4879",
		Source:         "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY",
		Destination:    "rDsbeomae4FXwgQTJp9Rs64Qg9vDiTCdBv",
		DestinationTag: &tag,
		Amount:         big.NewInt(25000000),
		Currency:       leaf.NativeCurrency("XRP"),
	}
}

func TestOfIsDeterministic(t *testing.T) {
	require.Equal(t, leaf.Of(record()), leaf.Of(record()))
}

func TestOfMatchesFieldDigestLayout(t *testing.T) {
	r := record()
	word := func(v uint64) []byte {
		return crypto.Keccak256(common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32))
	}
	want := crypto.Keccak256Hash(
		word(r.Ledger),
		crypto.Keccak256([]byte(r.TxID)),
		crypto.Keccak256([]byte(r.Source)),
		crypto.Keccak256([]byte(r.Destination)),
		word(77),
		word(25000000),
		crypto.Keccak256([]byte("XRP")),
	)
	require.Equal(t, want, leaf.Of(r))
}

func TestOfChangesWithEveryField(t *testing.T) {
	base := leaf.Of(record())
	other := uint64(78)

	mutations := map[string]func(*models.PaymentRecord){
		"ledger":      func(r *models.PaymentRecord) { r.Ledger++ },
		"txid":        func(r *models.PaymentRecord) { r.TxID = "00" + r.TxID[2:] },
		"source":      func(r *models.PaymentRecord) { r.Source = "rOther" },
		"destination": func(r *models.PaymentRecord) { r.Destination = "rOther" },
		"tag":         func(r *models.PaymentRecord) { r.DestinationTag = &other },
		"amount":      func(r *models.PaymentRecord) { r.Amount = big.NewInt(25000001) },
		"currency": func(r *models.PaymentRecord) {
			r.Currency = leaf.IssuedCurrency("USD", "rhub8VRN55s94qWKDv6jmDy1pUykJzF3wq")
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			r := record()
			mutate(&r)
			require.NotEqual(t, base, leaf.Of(r))
		})
	}
}

func TestMissingTagEqualsZeroTag(t *testing.T) {
	zero := uint64(0)
	withZero := record()
	withZero.DestinationTag = &zero
	without := record()
	without.DestinationTag = nil

	require.Equal(t, leaf.Of(withZero), leaf.Of(without))
}

func TestSourceOmittedWhenEmpty(t *testing.T) {
	r := record()
	r.Source = ""
	word := func(v uint64) []byte {
		return crypto.Keccak256(common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32))
	}
	want := crypto.Keccak256Hash(
		word(r.Ledger),
		crypto.Keccak256([]byte(r.TxID)),
		crypto.Keccak256([]byte(r.Destination)),
		word(77),
		word(25000000),
		crypto.Keccak256([]byte("XRP")),
	)
	require.Equal(t, want, leaf.Of(r))
}

func TestIssuedCurrencyComposition(t *testing.T) {
	require.Equal(t, "USDrIssuer", leaf.IssuedCurrency("USD", "rIssuer"))
	require.Equal(t, "BTC", leaf.NativeCurrency("BTC"))
}
