package chain

import (
	"fmt"
	"math/big"
	"sort"

	"state-connector/models"
)

// Spec is the static description of one supported chain.
type Spec struct {
	Name    string
	ID      models.ChainID
	Variant Variant
	// ExpectedInterval is the expected number of seconds between finalised
	// periods, the reference for the reveal defer window.
	ExpectedInterval uint64
	Native           string
	MinAmount        *big.Int
	// PointerMemos accepts a memo that names another qualifying
	// transaction in place of a target-chain address.
	PointerMemos bool
}

// Catalogue lists the chains known to the contract, keyed by name.
var Catalogue = map[string]Spec{
	"btc":  {Name: "btc", ID: 0, Variant: BlockIndexed{Confirmations: 4}, ExpectedInterval: 900, Native: "BTC", MinAmount: big.NewInt(1)},
	"ltc":  {Name: "ltc", ID: 1, Variant: BlockIndexed{Confirmations: 12}, ExpectedInterval: 150, Native: "LTC", MinAmount: big.NewInt(1)},
	"doge": {Name: "doge", ID: 2, Variant: BlockIndexed{Confirmations: 40}, ExpectedInterval: 120, Native: "DOGE", MinAmount: big.NewInt(1)},
	"xrp":  {Name: "xrp", ID: 3, Variant: LedgerIndexed{Confirmations: 1}, ExpectedInterval: 120, Native: "XRP", MinAmount: big.NewInt(1)},
}

// Lookup returns the catalogue entry for name.
func Lookup(name string) (Spec, error) {
	s, ok := Catalogue[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", models.ErrUnknownChain, name)
	}
	return s, nil
}

// Names lists the catalogue in chain id order.
func Names() []string {
	names := make([]string, 0, len(Catalogue))
	for n := range Catalogue {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		return Catalogue[names[i]].ID < Catalogue[names[j]].ID
	})
	return names
}
