package selector

import (
	"sort"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// feeSelect returns the transactions paying the best fee per byte while
// keeping the transactions of each payer in creation order.
var feeSelect = func(m map[signature.Address][]database.Transaction, howMany int) []database.Transaction {
	total := 0
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byTime(m[key]))
		}
		total += len(m[key])
	}

	if howMany < 0 || howMany > total {
		howMany = total
	}

	// Pick the first transaction of each payer. Each iteration represents
	// a new row of selections. Keep doing this until all the transactions
	// have been selected.
	var rows [][]database.Transaction
	for {
		var row []database.Transaction
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	// Sort each row by fee rate and keep pulling rows until the amount is
	// fulfilled or there are no more transactions.
	final := []database.Transaction{}
	for _, row := range rows {
		sort.Sort(byFeeRate(row))

		need := howMany - len(final)
		if len(row) >= need {
			final = append(final, row[:need]...)
			break
		}
		final = append(final, row...)
	}

	return final
}

// timeSelect returns the oldest transactions first.
var timeSelect = func(m map[signature.Address][]database.Transaction, howMany int) []database.Transaction {
	var all []database.Transaction
	for _, txs := range m {
		all = append(all, txs...)
	}

	sort.Sort(byTime(all))

	if howMany >= 0 && howMany < len(all) {
		all = all[:howMany]
	}

	if all == nil {
		return []database.Transaction{}
	}

	return all
}
