// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// List of select strategies.
const (
	StrategyFee  = "fee"
	StrategyTime = "time"
)

// map of select strategies with functions.
var strategies = map[string]Func{
	StrategyFee:  feeSelect,
	StrategyTime: timeSelect,
}

// Func defines a function that takes a pool of transactions grouped by the
// address paying for them and selects howMany of them in an order based on
// the function strategy. Transactions of one payer are taken in the order
// they were created. Receiving -1 for howMany must return all the
// transactions in the strategy ordering.
type Func func(transactions map[signature.Address][]database.Transaction, howMany int) []database.Transaction

// Retrieve returns the selected strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strings.ToLower(strategy)]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}

	return fn, nil
}

// Payer returns the address a transaction is grouped under.
func Payer(tx database.Transaction) signature.Address {
	if len(tx.CoinData.Inputs) == 0 {
		return signature.Address{}
	}

	return tx.CoinData.Inputs[0].Owner
}

// =============================================================================

// byTime provides support to sort transactions by creation time. Its
// methods fulfill the requirements for sort.Interface.
type byTime []database.Transaction

func (bt byTime) Len() int {
	return len(bt)
}

// Less orders by time, then by hash so equal times sort the same way on
// every node.
func (bt byTime) Less(i, j int) bool {
	if bt[i].Time != bt[j].Time {
		return bt[i].Time < bt[j].Time
	}
	return bt[i].Hash.String() < bt[j].Hash.String()
}

func (bt byTime) Swap(i, j int) {
	bt[i], bt[j] = bt[j], bt[i]
}

// =============================================================================

// byFeeRate provides support to sort transactions by fee per encoded byte,
// highest first.
type byFeeRate []database.Transaction

func (bf byFeeRate) Len() int {
	return len(bf)
}

func (bf byFeeRate) Less(i, j int) bool {
	if c := compareFeeRate(bf[i], bf[j]); c != 0 {
		return c > 0
	}
	return byTime(bf).Less(i, j)
}

func (bf byFeeRate) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}

// compareFeeRate compares fee_a/size_a with fee_b/size_b without dividing.
func compareFeeRate(a, b database.Transaction) int {
	feeA, _ := a.Fee()
	feeB, _ := b.Fee()

	hiA, loA := bits.Mul64(feeA, uint64(b.Size()))
	hiB, loB := bits.Mul64(feeB, uint64(a.Size()))

	switch {
	case hiA != hiB:
		if hiA > hiB {
			return 1
		}
		return -1
	case loA != loB:
		if loA > loB {
			return 1
		}
		return -1
	}

	return 0
}
