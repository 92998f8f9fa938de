package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/bnb-chain/chain-tracker/client"
)

// ops tool to query a running chain tracker over its read API

type options struct {
	Endpoint string `short:"e" long:"endpoint" description:"chain tracker API endpoint" default:"http://127.0.0.1:8080"`
	Hash     string `short:"b" long:"block-hash" description:"query one block by hash"`
	Height   uint64 `short:"f" long:"finalized-height" description:"query the finalized block at a height"`
	Timeout  uint64 `short:"t" long:"timeout" description:"request timeout in seconds" default:"30"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	c := client.New(opts.Endpoint)
	var (
		result interface{}
		err    error
	)
	switch {
	case opts.Hash != "":
		result, err = c.GetBlockByHash(ctx, opts.Hash)
	case opts.Height != 0:
		result, err = c.GetFinalizedBlockByHeight(ctx, opts.Height)
	default:
		result, err = c.GetSnapshot(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "query failed, err=%s\n", err.Error())
		os.Exit(1)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result failed, err=%s\n", err.Error())
		os.Exit(1)
	}
	fmt.Println(string(out))
}
