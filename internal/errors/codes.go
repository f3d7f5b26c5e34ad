package errors

// ERR identifies the kind of a core error. Values below 1000 mirror a
// gRPC status code 1:1 (see GRPCCode); values at 1000 and above are
// core-specific kinds with no natural gRPC analogue.
type ERR int32

const (
	ERR_UNKNOWN             ERR = 2  // codes.Unknown
	ERR_INVALID_ARGUMENT    ERR = 3  // codes.InvalidArgument
	ERR_NOT_FOUND           ERR = 5  // codes.NotFound
	ERR_ALREADY_EXISTS      ERR = 6  // codes.AlreadyExists
	ERR_FAILED_PRECONDITION ERR = 9  // codes.FailedPrecondition
	ERR_THRESHOLD_EXCEEDED  ERR = 8  // codes.ResourceExhausted
	ERR_INTERNAL            ERR = 13 // codes.Internal

	// Header errors (spec.md §7).
	ERR_HEADER_PARENT_NOT_FOUND ERR = 1000 + iota
	ERR_HEADER_INVALID_POW
	ERR_HEADER_BAD_TIMESTAMP
	ERR_HEADER_BAD_DIFFICULTY_TRANSITION
	ERR_HEADER_BAD_VERSION

	// Transaction errors.
	ERR_TX_EMPTY_INPUTS
	ERR_TX_EMPTY_OUTPUTS
	ERR_TX_OVERSIZED_BYTE_COUNT
	ERR_TX_NEGATIVE_OUTPUT_VALUE
	ERR_TX_OVERSIZED_OUTPUT_VALUE
	ERR_TX_OVERSIZED_TOTAL_OUTPUT_VALUES
	ERR_TX_DUPLICATED_INPUT
	ERR_TX_NULL_PREVIOUS_OUTPUT
	ERR_TX_BAD_COINBASE_SIGSCRIPT_SIZE

	// Block errors.
	ERR_BLOCK_BAD_SIZE
	ERR_BLOCK_BAD_TRANSACTION_COUNT
	ERR_BLOCK_BAD_COINBASE
	ERR_BLOCK_BAD_COINBASE_HEIGHT
	ERR_BLOCK_BAD_MERKLE_ROOT
	ERR_BLOCK_BAD_TRANSACTION
	ERR_BLOCK_BAD_SIGOP_COUNT
	ERR_BLOCK_NON_FINAL_TRANSACTION
	ERR_BLOCK_BAD_WITNESS_NONCE
	ERR_BLOCK_BAD_WITNESS_MERKLE
	ERR_BLOCK_UNEXPECTED_WITNESS
	ERR_BLOCK_BAD_WEIGHT

	// UTXO errors.
	ERR_UTXO_AGE_RANGE
	ERR_UTXO_SPENT
	ERR_UTXO_STORE
)

var errName = map[ERR]string{
	ERR_UNKNOWN:                          "UNKNOWN",
	ERR_INVALID_ARGUMENT:                 "INVALID_ARGUMENT",
	ERR_NOT_FOUND:                        "NOT_FOUND",
	ERR_ALREADY_EXISTS:                   "ALREADY_EXISTS",
	ERR_FAILED_PRECONDITION:              "FAILED_PRECONDITION",
	ERR_THRESHOLD_EXCEEDED:               "THRESHOLD_EXCEEDED",
	ERR_INTERNAL:                         "INTERNAL",
	ERR_HEADER_PARENT_NOT_FOUND:          "HEADER_PARENT_NOT_FOUND",
	ERR_HEADER_INVALID_POW:               "HEADER_INVALID_POW",
	ERR_HEADER_BAD_TIMESTAMP:             "HEADER_BAD_TIMESTAMP",
	ERR_HEADER_BAD_DIFFICULTY_TRANSITION: "HEADER_BAD_DIFFICULTY_TRANSITION",
	ERR_HEADER_BAD_VERSION:               "HEADER_BAD_VERSION",
	ERR_TX_EMPTY_INPUTS:                  "TX_EMPTY_INPUTS",
	ERR_TX_EMPTY_OUTPUTS:                 "TX_EMPTY_OUTPUTS",
	ERR_TX_OVERSIZED_BYTE_COUNT:          "TX_OVERSIZED_BYTE_COUNT",
	ERR_TX_NEGATIVE_OUTPUT_VALUE:         "TX_NEGATIVE_OUTPUT_VALUE",
	ERR_TX_OVERSIZED_OUTPUT_VALUE:        "TX_OVERSIZED_OUTPUT_VALUE",
	ERR_TX_OVERSIZED_TOTAL_OUTPUT_VALUES: "TX_OVERSIZED_TOTAL_OUTPUT_VALUES",
	ERR_TX_DUPLICATED_INPUT:              "TX_DUPLICATED_INPUT",
	ERR_TX_NULL_PREVIOUS_OUTPUT:          "TX_NULL_PREVIOUS_OUTPUT",
	ERR_TX_BAD_COINBASE_SIGSCRIPT_SIZE:   "TX_BAD_COINBASE_SIGSCRIPT_SIZE",
	ERR_BLOCK_BAD_SIZE:                   "BLOCK_BAD_SIZE",
	ERR_BLOCK_BAD_TRANSACTION_COUNT:      "BLOCK_BAD_TRANSACTION_COUNT",
	ERR_BLOCK_BAD_COINBASE:               "BLOCK_BAD_COINBASE",
	ERR_BLOCK_BAD_COINBASE_HEIGHT:        "BLOCK_BAD_COINBASE_HEIGHT",
	ERR_BLOCK_BAD_MERKLE_ROOT:            "BLOCK_BAD_MERKLE_ROOT",
	ERR_BLOCK_BAD_TRANSACTION:            "BLOCK_BAD_TRANSACTION",
	ERR_BLOCK_BAD_SIGOP_COUNT:            "BLOCK_BAD_SIGOP_COUNT",
	ERR_BLOCK_NON_FINAL_TRANSACTION:      "BLOCK_NON_FINAL_TRANSACTION",
	ERR_BLOCK_BAD_WITNESS_NONCE:          "BLOCK_BAD_WITNESS_NONCE",
	ERR_BLOCK_BAD_WITNESS_MERKLE:         "BLOCK_BAD_WITNESS_MERKLE",
	ERR_BLOCK_UNEXPECTED_WITNESS:         "BLOCK_UNEXPECTED_WITNESS",
	ERR_BLOCK_BAD_WEIGHT:                 "BLOCK_BAD_WEIGHT",
	ERR_UTXO_AGE_RANGE:                   "UTXO_AGE_RANGE",
	ERR_UTXO_SPENT:                       "UTXO_SPENT",
	ERR_UTXO_STORE:                       "UTXO_STORE",
}

func (c ERR) String() string {
	if name, ok := errName[c]; ok {
		return name
	}
	return "UNKNOWN"
}
