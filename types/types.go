package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// HeightHash identifies one execution block by height and hash.
type HeightHash struct {
	Height uint64      `json:"height"`
	Hash   common.Hash `json:"hash"`
}

func (h HeightHash) String() string {
	return fmt.Sprintf("%d:%s", h.Height, h.Hash.Hex())
}

// ConsensusHeads is the OL's view of the execution chain. It is published by
// value and must never be mutated by a reader.
type ConsensusHeads struct {
	Confirmed HeightHash `json:"confirmed"`
	Finalized HeightHash `json:"finalized"`
}

// ChainSnapshot is the state published to downstream consumers: the locally
// selected preconfirmed tip together with the latest reconciled OL heads.
type ChainSnapshot struct {
	PreconfirmedTip HeightHash     `json:"preconfirmed_tip"`
	Heads           ConsensusHeads `json:"heads"`
}

// ExecBlock is one execution block as submitted by local production or peer
// gossip. PackageRef points at the input/output package produced by the
// engine; this tracker treats it as opaque.
type ExecBlock struct {
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parent_hash"`
	Height     uint64      `json:"height"`
	PackageRef string      `json:"package_ref"`
	ReceivedAt int64       `json:"received_at"`
}

func (b *ExecBlock) HeightHash() HeightHash {
	return HeightHash{Height: b.Height, Hash: b.Hash}
}

// OLStatus is one poll result from the OL status source.
type OLStatus struct {
	Confirmed HeightHash `json:"confirmed"`
	Finalized HeightHash `json:"finalized"`
}
