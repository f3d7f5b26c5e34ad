// Package utxotable implements spec.md §4.5's UTXO Table: an
// append-only store of output records (height + locking-script bytes)
// addressed by a byte-offset rid, with a mutable tail of recent
// blocks and background commit to rotating segment files. Grounded on
// the teacher's stores/utxo/memory/memory.go (tail-like in-memory
// publish shape) and stores/blob (segment/commit idiom), adapted from
// key-addressed UTXO storage to the spec's offset-addressed record
// table.
package utxotable

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chainforge/core/internal/notify"
	"github.com/chainforge/core/internal/queue"
	"github.com/chainforge/core/internal/ulogger"
	"github.com/libsv/go-bt/v2/chainhash"
)

// NullRid marks a skipped entry in a Fetch request (spec.md §4.5
// "nulls permitted as gaps").
const NullRid uint64 = ^uint64(0)

const recordHeaderSize = 8 // height (int32) + script length (uint32)

// Outpoint identifies a transaction output (spec.md §3 "OutputKey").
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

// OutputEntry is one output a caller wants appended to the table on
// block add, in the transaction-then-index order spec.md §4.5
// requires.
type OutputEntry struct {
	Key    Outpoint
	Height int32
	Script []byte
}

// OutputKV is the table's result for one appended output: its key,
// the metadata the index needs, and the encoded rid referencing the
// stored record (spec.md §4.5 "Append").
type OutputKV struct {
	Key    Outpoint
	Height int32
	Rid    uint64
}

// EncodeRid packs a byte offset and record length into one rid value:
// the low 24 bits hold length, the remaining high bits hold offset,
// matching spec.md §4.5's "rid: encode(offset, length)".
func EncodeRid(offset uint64, length uint32) uint64 {
	return offset<<24 | uint64(length&0xffffff)
}

// DecodeRid reverses EncodeRid.
func DecodeRid(rid uint64) (offset uint64, length uint32) {
	return rid >> 24, uint32(rid & 0xffffff)
}

// OutputDetail is one fetched record: its height plus a
// {offset, length} subrange into the Scripts buffer returned
// alongside it (spec.md §4.5 "Fetch"). Fetch leaves Key zero: stored
// records do not include their outpoint.
type OutputDetail struct {
	Key          Outpoint
	Height       int32
	ScriptOffset int
	ScriptLength int
}

// FetchResult is a batch Fetch's output: per-rid details plus one
// growing buffer all script bytes are sliced from.
type FetchResult struct {
	Details []OutputDetail
	Scripts []byte
}

// blockOutputs is one published tail entry: the block's records,
// contiguously packed starting at offset (spec.md §4.5 "tail holds a
// sequence of BlockOutputs buffers, each ordered by their assigned
// offset").
type blockOutputs struct {
	height int32
	offset uint64
	buf    []byte
}

func (b *blockOutputs) contains(offset uint64, length int) bool {
	return offset >= b.offset && offset+uint64(length) <= b.offset+uint64(len(b.buf))
}

func (b *blockOutputs) slice(offset uint64, length int) []byte {
	start := offset - b.offset
	return b.buf[start : start+uint64(length)]
}

// Table is spec.md §4.5's UTXO Table.
type Table struct {
	mu   sync.RWMutex // guards tail
	tail []*blockOutputs

	nextOffset    atomic.Uint64
	mutableWindow atomic.Int32

	segments *SegmentStore
	flusher  *Flusher

	log  ulogger.Logger
	sink notify.Sink
}

// NewTable builds a Table backed by segments, with the given mutable
// window (in distinct block heights).
func NewTable(segments *SegmentStore, mutableWindow int32, log ulogger.Logger, sink notify.Sink) *Table {
	t := &Table{segments: segments, log: log, sink: sink}
	t.mutableWindow.Store(mutableWindow)
	t.flusher = NewFlusher(t, log)
	return t
}

// Flusher returns the background commit worker so callers can Run/Stop it.
func (t *Table) Flusher() *Flusher { return t.flusher }

// Append reserves a byte range, packs entries into one contiguous
// buffer, and publishes the result into the tail, per spec.md §4.5
// "Append". Returns one OutputKV per entry, in input order.
func (t *Table) Append(height int32, entries []OutputEntry) ([]OutputKV, error) {
	buf := make([]byte, 0, len(entries)*64)
	kvs := make([]OutputKV, len(entries))
	positions := make([]int, len(entries))

	for i, e := range entries {
		positions[i] = len(buf)
		var hdr [recordHeaderSize]byte
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(e.Height))
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(e.Script)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, e.Script...)
	}

	start := t.nextOffset.Add(uint64(len(buf))) - uint64(len(buf))

	for i, e := range entries {
		recOffset := start + uint64(positions[i])
		recLen := recordHeaderSize + len(e.Script)
		kvs[i] = OutputKV{
			Key:    e.Key,
			Height: e.Height,
			Rid:    EncodeRid(recOffset, uint32(recLen)),
		}
	}

	block := &blockOutputs{height: height, offset: start, buf: buf}
	t.publish(block)
	t.maybeScheduleCommit()

	if t.sink != nil {
		t.sink.Notify(notify.Event{
			Type: notify.TypeUpdate,
			Path: "utxo/table/append",
			Data: map[string]notify.Value{
				"height":  notify.IntValue(int64(height)),
				"outputs": notify.IntValue(int64(len(entries))),
			},
		})
	}

	return kvs, nil
}

func (t *Table) publish(block *blockOutputs) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := sort.Search(len(t.tail), func(i int) bool { return t.tail[i].offset > block.offset })
	t.tail = append(t.tail, nil)
	copy(t.tail[idx+1:], t.tail[idx:])
	t.tail[idx] = block
}

func (t *Table) maybeScheduleCommit() {
	t.mu.RLock()
	heights := make(map[int32]struct{}, len(t.tail))
	var maxHeight int32
	for _, b := range t.tail {
		heights[b.height] = struct{}{}
		if b.height > maxHeight {
			maxHeight = b.height
		}
	}
	t.mu.RUnlock()

	window := t.mutableWindow.Load()
	if int32(len(heights)) >= window {
		t.flusher.Enqueue(maxHeight + 1 - window)
	}
}

// Fetch resolves rids (sorted by encoded offset, NullRid entries
// permitted as gaps and skipped) into OutputDetails plus a shared
// scripts buffer, per spec.md §4.5 "Fetch".
func (t *Table) Fetch(rids []uint64) (FetchResult, error) {
	result := FetchResult{Details: make([]OutputDetail, 0, len(rids))}

	t.mu.RLock()
	tail := t.tail
	t.mu.RUnlock()

	for _, rid := range rids {
		if rid == NullRid {
			continue
		}
		offset, length := DecodeRid(rid)

		var raw []byte
		if b := findBlock(tail, offset, int(length)); b != nil {
			raw = b.slice(offset, int(length))
		} else {
			data, err := t.segments.Read(offset, int(length))
			if err != nil {
				return FetchResult{}, fmt.Errorf("utxotable: fetch rid at offset %d: %w", offset, err)
			}
			raw = data
		}

		height := int32(binary.LittleEndian.Uint32(raw[0:4]))
		scriptLen := int(binary.LittleEndian.Uint32(raw[4:8]))
		scriptOffset := len(result.Scripts)
		result.Scripts = append(result.Scripts, raw[recordHeaderSize:recordHeaderSize+scriptLen]...)
		result.Details = append(result.Details, OutputDetail{
			Height:       height,
			ScriptOffset: scriptOffset,
			ScriptLength: scriptLen,
		})
	}

	return result, nil
}

func findBlock(tail []*blockOutputs, offset uint64, length int) *blockOutputs {
	for _, b := range tail {
		if b.contains(offset, length) {
			return b
		}
	}
	return nil
}

// Commit appends every tail block whose height is strictly below
// beforeHeight to segments, in order, then drops them from the tail
// front, per spec.md §4.5 "Commit". Commit failures are logged and
// leave the offending block (and everything after it) in the tail for
// a later retry; the flusher never aborts the process.
func (t *Table) Commit(beforeHeight int32) {
	for {
		t.mu.RLock()
		if len(t.tail) == 0 || t.tail[0].height >= beforeHeight {
			t.mu.RUnlock()
			return
		}
		front := t.tail[0]
		t.mu.RUnlock()

		if err := t.segments.Append(front.buf); err != nil {
			t.log.Errorf("utxotable: commit of height %d failed: %v", front.height, err)
			return
		}

		t.mu.Lock()
		if len(t.tail) > 0 && t.tail[0] == front {
			t.tail = t.tail[1:]
		}
		t.mu.Unlock()
	}
}

// EraseSince removes every tail block at height >= h, per spec.md
// §4.5 "Erase-since(h)". Committed data is never touched.
func (t *Table) EraseSince(h int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.tail[:0]
	for _, b := range t.tail {
		if b.height < h {
			kept = append(kept, b)
		}
	}
	t.tail = kept
}

// Flusher is the background commit worker, a single goroutine pulling
// before-height jobs off a queue, grounded on
// services/blockassembly/subtreeprocessor/queue.go's dedicated
// compactor-job worker shape (same library, internal/queue, used
// there for the subtree cache).
type Flusher struct {
	table *Table
	q     *queue.Queue[int32]
	log   ulogger.Logger
	done  chan struct{}
}

// NewFlusher builds a Flusher committing into table.
func NewFlusher(table *Table, log ulogger.Logger) *Flusher {
	return &Flusher{table: table, q: queue.New[int32](), log: log, done: make(chan struct{})}
}

// Enqueue schedules a commit at before_height.
func (f *Flusher) Enqueue(beforeHeight int32) {
	f.q.Push(beforeHeight)
}

// Run drives the flusher loop until Stop is called.
func (f *Flusher) Run() {
	defer close(f.done)
	for {
		beforeHeight, ok := f.q.WaitPop(queue.Infinite())
		if !ok {
			return
		}
		f.table.Commit(beforeHeight)
	}
}

// Stop signals Run to exit and waits for it to finish.
func (f *Flusher) Stop() {
	f.q.Stop()
	<-f.done
}
