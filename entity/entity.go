package entity

// Block is the API-facing view of one execution block record.
type Block struct {
	Hash       string `json:"hash"`
	ParentHash string `json:"parent_hash"`
	Height     uint64 `json:"height"`
	PackageRef string `json:"package_ref"`
	Status     string `json:"status"`
	BundleName string `json:"bundle_name,omitempty"`
}

// Snapshot is the API-facing view of the published chain snapshot.
type Snapshot struct {
	PreconfirmedHeight uint64 `json:"preconfirmed_height"`
	PreconfirmedHash   string `json:"preconfirmed_hash"`
	ConfirmedHeight    uint64 `json:"confirmed_height"`
	ConfirmedHash      string `json:"confirmed_hash"`
	FinalizedHeight    uint64 `json:"finalized_height"`
	FinalizedHash      string `json:"finalized_hash"`
}

type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}
