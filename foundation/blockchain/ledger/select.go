package ledger

import (
	"math"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// FeeFunc returns the fee owed by a transaction of the encoded size.
type FeeFunc func(size int) uint64

// FeePerKB charges price for every started kilobyte, and at least price.
func FeePerKB(price uint64) FeeFunc {
	return func(size int) uint64 {
		kb := uint64((size + 1023) / 1024)
		if kb == 0 {
			kb = 1
		}
		return kb * price
	}
}

// CoinDataResult is the outcome of a coin selection.
type CoinDataResult struct {
	Enough bool             `json:"enough"`
	Inputs []database.Input `json:"inputs"`
	Change uint64           `json:"change"`
	Fee    uint64           `json:"fee"`
}

// ChangeOutputSize is the largest encoding of a change output. Selection
// always reserves it so adding the change output never raises the fee.
const ChangeOutputSize = 1 + signature.AddressLength + 9 + 1

// SelectCoins picks unlocked, unreserved coins of the address oldest first
// until they cover amount plus the fee of the resulting transaction.
// baseSize is the encoded size of the transaction without inputs. The fee is
// recomputed after every added input and selection stops at the first prefix
// that covers it. Change is what remains; Enough is false when the coins
// run out.
func (l *Ledger) SelectCoins(addr signature.Address, amount uint64, baseSize int, fee FeeFunc) (CoinDataResult, error) {
	height, now := l.height(), l.nowMilli()
	s := l.shardFor(addr)

	s.mu.Lock()
	candidates := make([]database.UTXO, 0, len(s.coins[addr]))
	for op, u := range s.coins[addr] {
		if _, reserved := s.reserved[op]; reserved {
			continue
		}
		if isLocked(u.Output.LockTime, height, now) {
			continue
		}
		candidates = append(candidates, u)
	}
	s.mu.Unlock()

	sortOldestFirst(candidates)

	var (
		res    CoinDataResult
		sum    uint64
		inSize int
	)

	for _, u := range candidates {
		in := u.Input()
		res.Inputs = append(res.Inputs, in)
		inSize += in.Size()

		if sum > math.MaxUint64-in.Amount {
			return CoinDataResult{}, database.ErrAmountOverflow
		}
		sum += in.Amount

		// The input count varint grows as inputs are added. baseSize
		// already holds the one byte of an empty count.
		size := baseSize + ChangeOutputSize + inSize + codec.SizeVarInt(uint64(len(res.Inputs))) - 1
		res.Fee = fee(size)

		if amount > math.MaxUint64-res.Fee {
			return CoinDataResult{}, database.ErrAmountOverflow
		}

		if need := amount + res.Fee; sum >= need {
			res.Enough = true
			res.Change = sum - need
			return res, nil
		}
	}

	return CoinDataResult{Inputs: res.Inputs, Fee: res.Fee}, nil
}
