package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bnb-chain/chain-tracker/entity"
	"github.com/bnb-chain/chain-tracker/util"
)

const (
	pathGetSnapshot       = "/v1/snapshot"
	pathGetBlockByHash    = "/v1/block/%s"
	pathGetFinalizedBlock = "/v1/finalized/%s"
)

// Client is a Go client for the chain tracker read API.
type Client struct {
	hc   *http.Client
	host string
}

func New(host string) *Client {
	return &Client{
		hc:   &http.Client{Timeout: 30 * time.Second},
		host: host,
	}
}

func (c *Client) GetSnapshot(ctx context.Context) (*entity.Snapshot, error) {
	snapshot := &entity.Snapshot{}
	if err := c.get(ctx, c.host+pathGetSnapshot, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (c *Client) GetBlockByHash(ctx context.Context, hashHex string) (*entity.Block, error) {
	block := &entity.Block{}
	if err := c.get(ctx, c.host+fmt.Sprintf(pathGetBlockByHash, hashHex), block); err != nil {
		return nil, err
	}
	return block, nil
}

func (c *Client) GetFinalizedBlockByHeight(ctx context.Context, height uint64) (*entity.Block, error) {
	block := &entity.Block{}
	if err := c.get(ctx, c.host+fmt.Sprintf(pathGetFinalizedBlock, util.Uint64ToString(height)), block); err != nil {
		return nil, err
	}
	return block, nil
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if r.StatusCode != http.StatusOK {
		apiErr := entity.Error{}
		if err = json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("request failed, code=%d, message=%s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("received non-OK response status: %s", r.Status)
	}
	return json.Unmarshal(body, out)
}
