package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prysmaticlabs/prysm/v5/api/server/structs"

	"github.com/bnb-chain/chain-tracker/types"
	"github.com/bnb-chain/chain-tracker/util"
)

var (
	// ErrMalformedStatus marks an internally inconsistent OL response, e.g. a
	// finalized head above the confirmed head. Such a poll must be skipped
	// without mutating any state.
	ErrMalformedStatus = errors.New("the OL status response is internally inconsistent")
	// ErrBlockNotFound is returned when the OL does not know the requested block.
	ErrBlockNotFound = errors.New("the block is not found on the OL chain")
)

const (
	pathGetFinalityCheckpoints = "/eth/v1/beacon/states/head/finality_checkpoints"
	pathGetHeader              = "/eth/v1/beacon/headers/%s"
)

// IOLClient is the narrow view of the OL status source the consensus tracker
// depends on, so tests can run against an in-memory fake.
type IOLClient interface {
	ChainStatus(ctx context.Context) (*types.OLStatus, error)
}

// OLClient reads the OL's view of the execution chain over the OL's
// beacon-style HTTP API.
type OLClient struct {
	hc   *http.Client
	host string
}

func NewOLClient(host string) (*OLClient, error) {
	transport := &http.Transport{
		DisableCompression:  true,
		MaxIdleConnsPerHost: 1000,
		MaxConnsPerHost:     1000,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &http.Client{
		Timeout:   10 * time.Minute,
		Transport: transport,
	}
	return &OLClient{hc: client, host: host}, nil
}

// ChainStatus fetches the confirmed and finalized execution-chain references
// the OL currently reports.
func (c *OLClient) ChainStatus(ctx context.Context) (*types.OLStatus, error) {
	checkpoints, err := c.getFinalityCheckpoints(ctx)
	if err != nil {
		return nil, err
	}
	confirmed, err := c.resolveCheckpoint(ctx, checkpoints.CurrentJustified)
	if err != nil {
		return nil, err
	}
	finalized, err := c.resolveCheckpoint(ctx, checkpoints.Finalized)
	if err != nil {
		return nil, err
	}
	if finalized.Height > confirmed.Height {
		return nil, ErrMalformedStatus
	}
	return &types.OLStatus{
		Confirmed: confirmed,
		Finalized: finalized,
	}, nil
}

func (c *OLClient) getFinalityCheckpoints(ctx context.Context) (*structs.FinalityCheckpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+pathGetFinalityCheckpoints, nil)
	if err != nil {
		return nil, err
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = r.Body.Close()
	}()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading http response body %s", err)
	}
	if r.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-OK response status: %s", r.Status)
	}
	resp := &structs.GetFinalityCheckpointsResponse{}
	if err = json.Unmarshal(b, resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.CurrentJustified == nil || resp.Data.Finalized == nil {
		return nil, ErrMalformedStatus
	}
	return resp.Data, nil
}

// resolveCheckpoint maps a checkpoint root to the height of the execution
// block it names via the OL header endpoint.
func (c *OLClient) resolveCheckpoint(ctx context.Context, checkpoint *structs.Checkpoint) (types.HeightHash, error) {
	header, err := c.getHeader(ctx, checkpoint.Root)
	if err != nil {
		return types.HeightHash{}, err
	}
	height, err := util.StringToUint64(header.Data.Header.Message.Slot)
	if err != nil {
		return types.HeightHash{}, fmt.Errorf("invalid header slot %s: %w", header.Data.Header.Message.Slot, err)
	}
	return types.HeightHash{
		Height: height,
		Hash:   common.HexToHash(checkpoint.Root),
	}, nil
}

func (c *OLClient) getHeader(ctx context.Context, blockID string) (*structs.GetBlockHeaderResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+fmt.Sprintf(pathGetHeader, blockID), nil)
	if err != nil {
		return nil, err
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = r.Body.Close()
	}()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading http response body %s", err)
	}
	if r.StatusCode != http.StatusOK {
		if r.StatusCode == http.StatusNotFound {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("received non-OK response status: %s", r.Status)
	}
	resp := &structs.GetBlockHeaderResponse{}
	if err = json.Unmarshal(b, resp); err != nil {
		return nil, err
	}
	if resp.Data == nil || resp.Data.Header == nil || resp.Data.Header.Message == nil {
		return nil, ErrMalformedStatus
	}
	return resp, nil
}
