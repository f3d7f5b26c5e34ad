// Package settings centralizes the core's tunable knobs over gocore
// config, the same config mechanism the teacher uses throughout
// (util/logger.go, pkg/go-chaincfg/params.go).
package settings

import (
	"time"

	"github.com/ordishs/gocore"
)

// Settings holds every knob named explicitly in spec.md: timechain
// pruning depths, UTXO index shard/fan-in/age parameters, table
// mutable window, and segment rotation size.
type Settings struct {
	// Timechain (§4.2).
	MaxSearchDepth int
	MaxKeepDepth   int

	// Header sync (§4.3).
	MaxHeadersPerBatch int
	HeaderQueueTimeout time.Duration

	// Block sync (§4.4).
	BlockQueueMaxBytes int64

	// UTXO table (§4.5).
	MutableWindow      int32
	SegmentRotateBytes int64

	// UTXO index (§4.6).
	ShardCount int
	AgeFanIn   int
	AgeDirBits []int
	AgeMutable []bool
}

// New builds Settings from gocore config, falling back to the
// defaults spec.md names for every knob it doesn't specify explicitly.
func New() *Settings {
	cfg := gocore.Config()

	maxSearchDepth, _ := cfg.GetInt("core_max_search_depth", 2000)
	maxKeepDepth, _ := cfg.GetInt("core_max_keep_depth", 288)
	maxHeadersPerBatch, _ := cfg.GetInt("core_max_headers_per_batch", 2000)
	headerQueueTimeoutMs, _ := cfg.GetInt("core_header_queue_timeout_ms", 30000)
	blockQueueMaxBytes, _ := cfg.GetInt("core_block_queue_max_bytes", 128*1024*1024)
	mutableWindow, _ := cfg.GetInt("core_utxo_mutable_window", 100)
	segmentRotateBytes, _ := cfg.GetInt("core_utxo_segment_rotate_bytes", 1<<30)
	shardCount, _ := cfg.GetInt("core_utxo_shard_count", 512)
	ageFanIn, _ := cfg.GetInt("core_utxo_age_fanin", 8)

	s := &Settings{
		MaxSearchDepth:     maxSearchDepth,
		MaxKeepDepth:       maxKeepDepth,
		MaxHeadersPerBatch: maxHeadersPerBatch,
		HeaderQueueTimeout: time.Duration(headerQueueTimeoutMs) * time.Millisecond,
		BlockQueueMaxBytes: int64(blockQueueMaxBytes),
		MutableWindow:      int32(mutableWindow),
		SegmentRotateBytes: int64(segmentRotateBytes),
		ShardCount:         shardCount,
		AgeFanIn:           ageFanIn,
		AgeDirBits:         []int{8, 8, 10, 12, 13, 15, 16, 17},
		AgeMutable:         []bool{true, true, true, false, false, false, false, false},
	}

	return s
}

// ShardBits returns the number of leading bits of a key hash used to
// route the key to a shard, derived from ShardCount (a power of two).
func (s *Settings) ShardBits() int {
	bits := 0
	for n := s.ShardCount; n > 1; n >>= 1 {
		bits++
	}
	return bits
}
