package rules

import (
	"github.com/chainforge/core/internal/errors"
	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/chainhash"
)

// maxSatoshis is the total coin supply ceiling: 21,000,000 × 10⁸
// (spec.md §4.1 "outputs ≥ 0 and Σ ≤ 21,000,000 × 10⁸"), mirroring the
// teacher's MaxSatoshis constant in services/validator.
const maxSatoshis = 21_000_000 * 1e8

// maxNonWitnessSize bounds legacy-serialized transaction size
// (spec.md §4.1).
const maxNonWitnessSize = 1_000_000

// coinbaseSigScriptMin/Max bound the coinbase unlocking script length
// (spec.md §4.1 "coinbase sigScript length ∈ [2,100]").
const (
	coinbaseSigScriptMin = 2
	coinbaseSigScriptMax = 100
)

// TxArgs is the Args bundle for the transaction ruleset.
type TxArgs struct {
	Tx         *bt.Tx
	IsCoinbase bool
}

// TransactionRuleset is the ordered transaction validation ruleset of
// spec.md §4.1, grounded on the teacher's checklist shape in
// services/validator/TxValidator.go's ValidateTransaction.
var TransactionRuleset = Ruleset[TxArgs]{
	Phase: "transaction",
	Rules: []Rule[TxArgs]{
		{Name: "has_inputs", Fn: ruleTxHasInputs},
		{Name: "has_outputs", Fn: ruleTxHasOutputs},
		{Name: "size_within_limit", Fn: ruleTxSize},
		{Name: "outputs_in_range", Fn: ruleTxOutputsInRange},
		{Name: "distinct_outpoints", Fn: ruleTxDistinctOutpoints},
		{Name: "coinbase_sigscript_size", Fn: ruleTxCoinbaseSigScriptSize},
		{Name: "non_coinbase_prevout_non_null", Fn: ruleTxNonCoinbasePrevoutNonNull},
	},
}

func ruleTxHasInputs(a TxArgs) error {
	if len(a.Tx.Inputs) == 0 {
		return errors.New(errors.ERR_TX_EMPTY_INPUTS, "transaction has no inputs")
	}
	return nil
}

func ruleTxHasOutputs(a TxArgs) error {
	if len(a.Tx.Outputs) == 0 {
		return errors.New(errors.ERR_TX_EMPTY_OUTPUTS, "transaction has no outputs")
	}
	return nil
}

func ruleTxSize(a TxArgs) error {
	if a.Tx.Size() > maxNonWitnessSize {
		return errors.New(errors.ERR_TX_OVERSIZED_BYTE_COUNT,
			"transaction size %d exceeds %d bytes", a.Tx.Size(), maxNonWitnessSize)
	}
	return nil
}

func ruleTxOutputsInRange(a TxArgs) error {
	var total uint64
	for i, out := range a.Tx.Outputs {
		if out.Satoshis > maxSatoshis {
			return errors.New(errors.ERR_TX_OVERSIZED_OUTPUT_VALUE,
				"output %d value %d exceeds max satoshis", i, out.Satoshis)
		}
		total += out.Satoshis
	}
	if total > maxSatoshis {
		return errors.New(errors.ERR_TX_OVERSIZED_TOTAL_OUTPUT_VALUES,
			"transaction output total %d exceeds max satoshis", total)
	}
	return nil
}

func ruleTxDistinctOutpoints(a TxArgs) error {
	seen := make(map[string]struct{}, len(a.Tx.Inputs))
	for i, in := range a.Tx.Inputs {
		key := in.PreviousTxIDChainHash().String() + ":" + outIndexKey(in.PreviousTxOutIndex)
		if _, dup := seen[key]; dup {
			return errors.New(errors.ERR_TX_DUPLICATED_INPUT, "input %d duplicates an earlier outpoint", i)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func ruleTxCoinbaseSigScriptSize(a TxArgs) error {
	if !a.IsCoinbase {
		return nil
	}
	if len(a.Tx.Inputs) != 1 || a.Tx.Inputs[0].UnlockingScript == nil {
		return errors.New(errors.ERR_TX_BAD_COINBASE_SIGSCRIPT_SIZE, "coinbase has no unlocking script")
	}
	n := len(*a.Tx.Inputs[0].UnlockingScript)
	if n < coinbaseSigScriptMin || n > coinbaseSigScriptMax {
		return errors.New(errors.ERR_TX_BAD_COINBASE_SIGSCRIPT_SIZE,
			"coinbase sigScript length %d outside [%d,%d]", n, coinbaseSigScriptMin, coinbaseSigScriptMax)
	}
	return nil
}

func ruleTxNonCoinbasePrevoutNonNull(a TxArgs) error {
	if a.IsCoinbase {
		return nil
	}
	for i, in := range a.Tx.Inputs {
		if isNullPrevout(in) {
			return errors.New(errors.ERR_TX_NULL_PREVIOUS_OUTPUT, "non-coinbase input %d has a null prevout", i)
		}
	}
	return nil
}

func isNullPrevout(in *bt.Input) bool {
	var zero chainhash.Hash
	return *in.PreviousTxIDChainHash() == zero && in.PreviousTxOutIndex == 0xffffffff
}

func outIndexKey(idx uint32) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hexDigits[idx&0xf]
		idx >>= 4
	}
	return string(buf)
}
