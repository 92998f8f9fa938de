package db

// BlockStatus is the finalization status of a persisted execution block record.
type BlockStatus int

const (
	Unfinalized BlockStatus = 0
	Finalized   BlockStatus = 1 // the block is on the OL finalized path
	Pruned      BlockStatus = 2 // finalized and its payload has been offloaded
	Discarded   BlockStatus = 3 // on a sibling branch passed over by finality
)

type Block struct {
	Id         int64
	Hash       string `gorm:"NOT NULL;uniqueIndex:idx_block_hash;size:64"`
	ParentHash string `gorm:"NOT NULL;index:idx_block_parent_hash;size:64"`
	Height     uint64 `gorm:"NOT NULL;index:idx_block_height"`
	PackageRef string
	// BundleName is set once the payload has been offloaded to the archive.
	BundleName string

	Status        BlockStatus `gorm:"NOT NULL;index:idx_block_status"`
	ReceivedTime  int64
	FinalizedTime int64
}

func (*Block) TableName() string {
	return "exec_block"
}
