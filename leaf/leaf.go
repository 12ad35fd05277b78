// Package leaf derives the canonical digest of a payment. Every node must
// produce bit-identical leaves for the same payment or their roots diverge.
package leaf

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"state-connector/models"
)

// Of hashes every field of r on its own and then hashes the ordered
// concatenation of the field digests. The source digest is left out when the
// record carries no source.
func Of(r models.PaymentRecord) common.Hash {
	fields := make([][]byte, 0, 7)
	fields = append(fields, uintDigest(new(big.Int).SetUint64(r.Ledger)))
	fields = append(fields, stringDigest(r.TxID))
	if r.Source != "" {
		fields = append(fields, stringDigest(r.Source))
	}
	fields = append(fields,
		stringDigest(r.Destination),
		uintDigest(new(big.Int).SetUint64(r.Tag())),
		uintDigest(r.Amount),
		stringDigest(r.Currency),
	)
	return crypto.Keccak256Hash(fields...)
}

// NativeCurrency is the currency identifier of a chain's own asset.
func NativeCurrency(symbol string) string {
	return symbol
}

// IssuedCurrency is the currency identifier of an issued asset: the currency
// code immediately followed by the issuer address.
func IssuedCurrency(code, issuer string) string {
	return code + issuer
}

func stringDigest(s string) []byte {
	return crypto.Keccak256([]byte(s))
}

// uintDigest hashes v as a 32-byte big-endian word. A nil value is zero.
func uintDigest(v *big.Int) []byte {
	if v == nil {
		v = new(big.Int)
	}
	return crypto.Keccak256(common.LeftPadBytes(v.Bytes(), 32))
}
