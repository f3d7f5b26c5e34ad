package chainparams

import (
	"github.com/chainforge/core/internal/bigint"
	"github.com/chainforge/core/internal/target"
	"github.com/libsv/go-bt/v2/chainhash"
)

// HeaderContext pairs a validated header with its derived chain
// position, per spec.md §3: {header, hash, local_work, total_work,
// height}. Hash is supplied by the caller (wireheader.Hash) rather
// than recomputed here, keeping this package free of a dependency on
// the wire codec.
type HeaderContext struct {
	Header    BlockHeader
	Hash      chainhash.Hash
	LocalWork bigint.Uint256
	TotalWork bigint.Uint256
	Height    int32
}

// NewGenesisContext builds the context for the genesis header: height
// 0, total_work equal to local_work.
func NewGenesisContext(header BlockHeader, hash chainhash.Hash) HeaderContext {
	lw := target.Work(header.Bits.Expand())
	return HeaderContext{
		Header:    header,
		Hash:      hash,
		LocalWork: lw,
		TotalWork: lw,
		Height:    0,
	}
}

// Extend derives the HeaderContext for header given its validated
// parent context and wire hash: local_work = work(header.bits.expand()),
// total_work = parent.total_work + local_work, height = parent.height+1.
func Extend(parent HeaderContext, header BlockHeader, hash chainhash.Hash) HeaderContext {
	lw := target.Work(header.Bits.Expand())
	tw, _ := parent.TotalWork.Add(lw)
	return HeaderContext{
		Header:    header,
		Hash:      hash,
		LocalWork: lw,
		TotalWork: tw,
		Height:    parent.Height + 1,
	}
}

// Rewind derives the context of child's parent, given the parent's
// known header and hash: total_work = child.total_work - child.local_work,
// height = child.height - 1.
func Rewind(child HeaderContext, parentHeader BlockHeader, parentHash chainhash.Hash) HeaderContext {
	parentLocalWork := target.Work(parentHeader.Bits.Expand())
	tw, _ := child.TotalWork.Sub(child.LocalWork)
	return HeaderContext{
		Header:    parentHeader,
		Hash:      parentHash,
		LocalWork: parentLocalWork,
		TotalWork: tw,
		Height:    child.Height - 1,
	}
}
