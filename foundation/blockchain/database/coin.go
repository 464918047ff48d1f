package database

import (
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// ErrAmountOverflow is returned when summing amounts exceeds the uint64 range.
var ErrAmountOverflow = errors.New("amount overflow")

// OutPoint identifies a single output of a transaction.
type OutPoint struct {
	TxHash chainhash.Hash `json:"tx_hash"`
	Index  uint32         `json:"index"`
}

// String implements the fmt.Stringer interface.
func (op OutPoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxHash, op.Index)
}

// Bytes returns the canonical encoding, usable as a storage key.
func (op OutPoint) Bytes() []byte {
	w := codec.NewWriter(op.Size())
	op.Encode(w)
	return w.Bytes()
}

func (op *OutPoint) Size() int {
	return codec.SizeHash + codec.SizeVarInt(uint64(op.Index))
}

func (op *OutPoint) Encode(w *codec.Writer) {
	w.WriteHash(op.TxHash)
	w.WriteVarInt(uint64(op.Index))
}

func (op *OutPoint) Decode(r *codec.Reader) {
	op.TxHash = r.ReadHash("outpoint.hash")
	idx := r.ReadVarInt("outpoint.index")
	if idx > math.MaxUint32 {
		r.Fail("outpoint.index", "index %d out of range", idx)
		return
	}
	op.Index = uint32(idx)
}

// =============================================================================

// Output assigns an amount to an address, optionally locked until a height
// or a unix millisecond timestamp.
type Output struct {
	Address  signature.Address `json:"address"`
	Amount   uint64            `json:"amount"`
	LockTime uint64            `json:"lock_time"`
}

func (o *Output) Size() int {
	return sizeAddress(o.Address) + codec.SizeVarInt(o.Amount) + codec.SizeVarInt(o.LockTime)
}

func (o *Output) Encode(w *codec.Writer) {
	writeAddress(w, "output.address", o.Address)
	w.WriteVarInt(o.Amount)
	w.WriteVarInt(o.LockTime)
}

func (o *Output) Decode(r *codec.Reader) {
	o.Address = readAddress(r, "output.address")
	o.Amount = r.ReadVarInt("output.amount")
	o.LockTime = r.ReadVarInt("output.locktime")
}

// Input spends a previous output. It repeats the owner, amount and lock time
// of the coin so a transaction's fee and ownership are known without lookups.
type Input struct {
	OutPoint OutPoint          `json:"outpoint"`
	Owner    signature.Address `json:"owner"`
	Amount   uint64            `json:"amount"`
	LockTime uint64            `json:"lock_time"`
}

func (in *Input) Size() int {
	return in.OutPoint.Size() + sizeAddress(in.Owner) + codec.SizeVarInt(in.Amount) + codec.SizeVarInt(in.LockTime)
}

func (in *Input) Encode(w *codec.Writer) {
	w.WriteData(&in.OutPoint)
	writeAddress(w, "input.owner", in.Owner)
	w.WriteVarInt(in.Amount)
	w.WriteVarInt(in.LockTime)
}

func (in *Input) Decode(r *codec.Reader) {
	r.ReadData(&in.OutPoint)
	in.Owner = readAddress(r, "input.owner")
	in.Amount = r.ReadVarInt("input.amount")
	in.LockTime = r.ReadVarInt("input.locktime")
}

// UTXO is an unspent output together with the time its transaction was made.
type UTXO struct {
	OutPoint OutPoint `json:"outpoint"`
	Output   Output   `json:"output"`
	Time     uint64   `json:"time"`
}

// Input returns the input that spends this coin.
func (u UTXO) Input() Input {
	return Input{
		OutPoint: u.OutPoint,
		Owner:    u.Output.Address,
		Amount:   u.Output.Amount,
		LockTime: u.Output.LockTime,
	}
}

func (u *UTXO) Size() int {
	return u.OutPoint.Size() + u.Output.Size() + codec.SizeVarInt(u.Time)
}

func (u *UTXO) Encode(w *codec.Writer) {
	w.WriteData(&u.OutPoint)
	w.WriteData(&u.Output)
	w.WriteVarInt(u.Time)
}

func (u *UTXO) Decode(r *codec.Reader) {
	r.ReadData(&u.OutPoint)
	r.ReadData(&u.Output)
	u.Time = r.ReadVarInt("utxo.time")
}

// =============================================================================

// CoinData is the ordered list of inputs a transaction spends and the
// outputs it creates.
type CoinData struct {
	Inputs  []Input  `json:"inputs"`
	Outputs []Output `json:"outputs"`
}

// TotalIn sums the input amounts.
func (cd CoinData) TotalIn() (uint64, error) {
	var total uint64
	for _, in := range cd.Inputs {
		if total > math.MaxUint64-in.Amount {
			return 0, ErrAmountOverflow
		}
		total += in.Amount
	}

	return total, nil
}

// TotalOut sums the output amounts.
func (cd CoinData) TotalOut() (uint64, error) {
	var total uint64
	for _, out := range cd.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, ErrAmountOverflow
		}
		total += out.Amount
	}

	return total, nil
}

// Fee returns the inputs minus the outputs. Outputs exceeding the inputs
// make the coin data invalid.
func (cd CoinData) Fee() (uint64, error) {
	in, err := cd.TotalIn()
	if err != nil {
		return 0, err
	}

	out, err := cd.TotalOut()
	if err != nil {
		return 0, err
	}

	if out > in {
		return 0, fmt.Errorf("outputs %d exceed inputs %d", out, in)
	}

	return in - out, nil
}

func (cd *CoinData) Size() int {
	n := codec.SizeVarInt(uint64(len(cd.Inputs)))
	for i := range cd.Inputs {
		n += cd.Inputs[i].Size()
	}

	n += codec.SizeVarInt(uint64(len(cd.Outputs)))
	for i := range cd.Outputs {
		n += cd.Outputs[i].Size()
	}

	return n
}

func (cd *CoinData) Encode(w *codec.Writer) {
	w.WriteVarInt(uint64(len(cd.Inputs)))
	for i := range cd.Inputs {
		w.WriteData(&cd.Inputs[i])
	}

	w.WriteVarInt(uint64(len(cd.Outputs)))
	for i := range cd.Outputs {
		w.WriteData(&cd.Outputs[i])
	}
}

func (cd *CoinData) Decode(r *codec.Reader) {
	cd.Inputs = nil
	cd.Outputs = nil

	n := readCount(r, "coindata.inputs")
	if n > 0 {
		cd.Inputs = make([]Input, n)
		for i := range cd.Inputs {
			r.ReadData(&cd.Inputs[i])
		}
	}

	n = readCount(r, "coindata.outputs")
	if n > 0 {
		cd.Outputs = make([]Output, n)
		for i := range cd.Outputs {
			r.ReadData(&cd.Outputs[i])
		}
	}
}

// =============================================================================

// readCount reads an element count. Every element takes at least one byte so
// a count beyond the remaining input is rejected before allocating.
func readCount(r *codec.Reader, field string) int {
	n := r.ReadVarInt(field)
	if n > uint64(r.Len()) {
		r.Fail(field, "count %d exceeds remaining %d", n, r.Len())
		return 0
	}

	return int(n)
}

// The zero address encodes as an empty field.
func sizeAddress(a signature.Address) int {
	if a.IsZero() {
		return 1
	}
	return 1 + signature.AddressLength
}

func writeAddress(w *codec.Writer, field string, a signature.Address) {
	if a.IsZero() {
		w.WriteShortBytes(field, nil)
		return
	}
	w.WriteShortBytes(field, a[:])
}

func readAddress(r *codec.Reader, field string) signature.Address {
	b := r.ReadShortBytes(field)
	if r.Err() != nil || len(b) == 0 {
		return signature.Address{}
	}

	a, err := signature.AddressFromBytes(b)
	if err != nil {
		r.Fail(field, "%s", err)
		return signature.Address{}
	}

	return a
}
