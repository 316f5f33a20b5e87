package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mkvstore/coordinator/pkg/config"
	"github.com/mkvstore/coordinator/pkg/index"
	"github.com/mkvstore/coordinator/pkg/log"
	"github.com/mkvstore/coordinator/pkg/placement"
	"github.com/mkvstore/coordinator/pkg/replication"
	"github.com/mkvstore/coordinator/pkg/types"
	"github.com/mkvstore/coordinator/pkg/volumeclient"
)

var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "walk every key and move misplaced blobs onto their current desired volumes",
	Long: `rebalance is an offline maintenance tool: it walks the entire index,
recomputes each key's desired volume set against the current --volumes list,
and invokes the replication coordinator's rebalance operation for every key
whose stored volume set no longer matches. Run it after adding or removing
volumes from the fleet.`,
	RunE: runRebalance,
}

func init() {
	rebalanceCmd.Flags().Int("concurrency", 8, "maximum concurrent rebalance operations")
}

func runRebalance(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	idx, err := index.Open(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer idx.Close()

	vc := volumeclient.New(cfg.VolTimeout)
	coordinator := replication.New(idx, vc, cfg)

	var candidates [][]byte
	err = idx.PrefixIter(nil, func(e index.Entry) bool {
		key := append([]byte(nil), e.Key...)
		candidates = append(candidates, key)
		return true
	})
	if err != nil {
		return fmt.Errorf("walk index: %w", err)
	}

	log.Info(fmt.Sprintf("rebalance: scanning %d keys with concurrency %d", len(candidates), concurrency))

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(concurrency)

	var moved, skipped atomic.Int64
	for _, key := range candidates {
		key := key
		g.Go(func() error {
			rec, recErr := coordinator.Record(key)
			if recErr != nil {
				return nil
			}
			desired := placement.Key2Volume(key, cfg.Volumes, cfg.Replicas, cfg.Subvolumes)
			if rec.Deleted != types.Live || !placement.NeedsRebalance(rec.Volumes, desired) {
				skipped.Add(1)
				return nil
			}
			if err := coordinator.Rebalance(ctx, key); err != nil {
				log.Errorf(fmt.Sprintf("rebalance key %q failed", string(key)), err)
				return nil
			}
			moved.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	log.Info(fmt.Sprintf("rebalance: moved %d keys, skipped %d already-balanced", moved.Load(), skipped.Load()))
	return nil
}
