package prover

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"state-connector/models"
)

var periodClaimArgs = mustArgs("uint32", "uint64", "uint64", "bytes32")

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args[i] = abi.Argument{Type: typ}
	}
	return args
}

// DecodePeriodClaim parses the hex payload of a verify request, the ABI
// encoding of (uint32 chainId, uint64 maxLedger, uint64 periodLength,
// bytes32 periodRoot).
func DecodePeriodClaim(payload string) (models.PeriodClaim, error) {
	if !strings.HasPrefix(payload, "0x") {
		payload = "0x" + payload
	}
	raw, err := hexutil.Decode(payload)
	if err != nil {
		return models.PeriodClaim{}, fmt.Errorf("decode period claim: %w", err)
	}
	vals, err := periodClaimArgs.Unpack(raw)
	if err != nil {
		return models.PeriodClaim{}, fmt.Errorf("decode period claim: %w", err)
	}
	return models.PeriodClaim{
		ChainID:      models.ChainID(vals[0].(uint32)),
		MaxLedger:    vals[1].(uint64),
		PeriodLength: vals[2].(uint64),
		PeriodRoot:   vals[3].([32]byte),
	}, nil
}

// EncodePeriodClaim is the inverse of DecodePeriodClaim.
func EncodePeriodClaim(c models.PeriodClaim) (string, error) {
	raw, err := periodClaimArgs.Pack(uint32(c.ChainID), c.MaxLedger, c.PeriodLength, [32]byte(c.PeriodRoot))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(raw), nil
}
