// Package replication implements the coordinator's write/delete/rebalance
// state machine: fanning a single logical operation out to N volume copies
// and keeping the index consistent with what the volumes actually hold.
package replication

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/mkvstore/coordinator/pkg/codec"
	"github.com/mkvstore/coordinator/pkg/index"
	"github.com/mkvstore/coordinator/pkg/lock"
	"github.com/mkvstore/coordinator/pkg/log"
	"github.com/mkvstore/coordinator/pkg/metrics"
	"github.com/mkvstore/coordinator/pkg/placement"
	"github.com/mkvstore/coordinator/pkg/types"
	"github.com/mkvstore/coordinator/pkg/volumeclient"
)

// ErrOverwrite is returned by Put when the key already holds a LIVE record.
var ErrOverwrite = fmt.Errorf("replication: key already has a live record")

// ErrNotFound is returned when an operation targets a key with no index row.
var ErrNotFound = fmt.Errorf("replication: key not found")

// ErrUnlinkNotLive is returned by Delete(unlink=true) when the record is not
// LIVE (already SOFT).
var ErrUnlinkNotLive = fmt.Errorf("replication: record is not live")

// ErrPartialFailure is returned when a fan-out operation could not reach
// every required volume and the index was left unchanged.
var ErrPartialFailure = fmt.Errorf("replication: partial failure across volumes")

// Coordinator drives the PUT/DELETE/Rebalance state machine.
type Coordinator struct {
	idx    index.Index
	vc     *volumeclient.Client
	locks  *lock.Table
	config types.Config
}

// New returns a Coordinator bound to idx and vc, using config for placement
// parameters.
func New(idx index.Index, vc *volumeclient.Client, config types.Config) *Coordinator {
	return &Coordinator{
		idx:    idx,
		vc:     vc,
		locks:  lock.NewTable(0),
		config: config,
	}
}

func (c *Coordinator) desired(key []byte) []string {
	return placement.Key2Volume(key, c.config.Volumes, c.config.Replicas, c.config.Subvolumes)
}

// Put writes body to N replicas chosen by placement, then commits the index
// row. If the current record is LIVE it returns ErrOverwrite without
// touching anything; if fewer than N replicas acknowledge, it rolls back the
// volumes that did succeed and returns ErrPartialFailure, leaving the index
// unmodified.
func (c *Coordinator) Put(ctx context.Context, key []byte, body []byte) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	if rec, err := c.getRecord(key); err == nil && rec.Deleted == types.Live {
		return ErrOverwrite
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReplicationPutDuration)

	desired := c.desired(key)
	path := placement.Key2Path(key)
	sum := md5.Sum(body)
	hash := hex.EncodeToString(sum[:])

	succeeded := make([]string, len(desired))
	g := &errgroup.Group{}
	for i, vol := range desired {
		i, vol := i, vol
		g.Go(func() error {
			err := c.vc.Put(ctx, vol, path, bytes.NewReader(body), int64(len(body)))
			if err == nil {
				succeeded[i] = vol
			}
			return err
		})
	}
	_ = g.Wait()

	var ok []string
	for _, vol := range succeeded {
		if vol != "" {
			ok = append(ok, vol)
		}
	}

	if len(ok) < len(desired) {
		c.rollback(context.Background(), ok, path)
		metrics.ReplicationPutTotal.WithLabelValues("rolled_back").Inc()
		return ErrPartialFailure
	}

	rec := types.Record{Volumes: desired, Hash: hash, Deleted: types.Live}
	data, err := codec.Serialize(rec)
	if err != nil {
		return fmt.Errorf("replication: serialize record: %w", err)
	}
	if err := c.idx.Put(key, data); err != nil {
		return fmt.Errorf("replication: write index: %w", err)
	}

	metrics.ReplicationPutTotal.WithLabelValues("committed").Inc()
	return nil
}

// rollback best-effort deletes path from every volume in written, since the
// overall PUT did not reach quorum. A volume that fails to delete here is
// left holding an orphan blob, counted via VolumeOrphansTotal. Put calls it
// with context.Background() so a cancelled request still rolls back.
func (c *Coordinator) rollback(ctx context.Context, written []string, path string) {
	for _, vol := range written {
		if err := c.vc.Delete(ctx, vol, path); err != nil {
			metrics.VolumeOrphansTotal.WithLabelValues(vol).Inc()
			log.WithVolume(vol).Warn().Msg("rollback delete failed, blob orphaned")
		}
	}
}

// Delete implements both unlink (soft delete) and hard purge. unlink=true
// transitions a LIVE record to SOFT without touching any volume; unlink=false
// deletes the blob from every volume and then removes the index row.
func (c *Coordinator) Delete(ctx context.Context, key []byte, unlink bool) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	rec, err := c.getRecord(key)
	if err != nil {
		return ErrNotFound
	}

	if unlink {
		if rec.Deleted != types.Live {
			return ErrUnlinkNotLive
		}
		soft := types.Record{Volumes: rec.Volumes, Hash: rec.Hash, Deleted: types.Soft}
		data, err := codec.Serialize(soft)
		if err != nil {
			return fmt.Errorf("replication: serialize record: %w", err)
		}
		if err := c.idx.Put(key, data); err != nil {
			return fmt.Errorf("replication: write index: %w", err)
		}
		metrics.ReplicationDeleteTotal.WithLabelValues("unlinked").Inc()
		return nil
	}

	path := placement.Key2Path(key)
	g := &errgroup.Group{}
	for _, vol := range rec.Volumes {
		vol := vol
		g.Go(func() error {
			return c.vc.Delete(ctx, vol, path)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ReplicationDeleteTotal.WithLabelValues("retry").Inc()
		return ErrPartialFailure
	}

	if err := c.idx.Delete(key); err != nil {
		return fmt.Errorf("replication: delete index row: %w", err)
	}
	metrics.ReplicationDeleteTotal.WithLabelValues("purged").Inc()
	return nil
}

// Rebalance moves a single key's replicas onto its currently desired volume
// set: copying the body to every newly-desired volume, updating the index,
// then deleting from volumes no longer desired. It aborts without touching
// the index on any failure.
func (c *Coordinator) Rebalance(ctx context.Context, key []byte) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	rec, err := c.getRecord(key)
	if err != nil {
		return ErrNotFound
	}
	if rec.Deleted != types.Live {
		return nil
	}

	desired := c.desired(key)
	if !placement.NeedsRebalance(rec.Volumes, desired) {
		return nil
	}

	have := make(map[string]bool, len(rec.Volumes))
	for _, v := range rec.Volumes {
		have[v] = true
	}
	want := make(map[string]bool, len(desired))
	for _, v := range desired {
		want[v] = true
	}

	var toAdd, toRemove []string
	for _, v := range desired {
		if !have[v] {
			toAdd = append(toAdd, v)
		}
	}
	for _, v := range rec.Volumes {
		if !want[v] {
			toRemove = append(toRemove, v)
		}
	}

	if len(toAdd) > 0 {
		path := placement.Key2Path(key)
		body, err := c.fetchAny(ctx, rec.Volumes, path)
		if err != nil {
			metrics.RebalanceFailuresTotal.Inc()
			return fmt.Errorf("replication: rebalance fetch source: %w", err)
		}

		g := &errgroup.Group{}
		for _, vol := range toAdd {
			vol := vol
			g.Go(func() error {
				return c.vc.Put(ctx, vol, path, bytes.NewReader(body), int64(len(body)))
			})
		}
		if err := g.Wait(); err != nil {
			metrics.RebalanceFailuresTotal.Inc()
			return fmt.Errorf("replication: rebalance copy: %w", err)
		}
	}

	newRec := types.Record{Volumes: desired, Hash: rec.Hash, Deleted: types.Live}
	data, err := codec.Serialize(newRec)
	if err != nil {
		return fmt.Errorf("replication: serialize record: %w", err)
	}
	if err := c.idx.Put(key, data); err != nil {
		return fmt.Errorf("replication: write index: %w", err)
	}

	if len(toRemove) > 0 {
		path := placement.Key2Path(key)
		for _, vol := range toRemove {
			if err := c.vc.Delete(ctx, vol, path); err != nil {
				log.WithVolume(vol).Warn().Msg("rebalance cleanup delete failed")
			}
		}
	}

	metrics.RebalancedKeysTotal.Inc()
	return nil
}

func (c *Coordinator) fetchAny(ctx context.Context, volumes []string, path string) ([]byte, error) {
	var lastErr error
	for _, vol := range volumes {
		rc, err := c.vc.Get(ctx, vol, path)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("replication: no volume served the object: %w", lastErr)
}

// Record returns the current record for key, or ErrNotFound.
func (c *Coordinator) Record(key []byte) (types.Record, error) {
	return c.getRecord(key)
}

func (c *Coordinator) getRecord(key []byte) (types.Record, error) {
	data, err := c.idx.Get(key)
	if err != nil {
		return types.Record{}, err
	}
	return codec.Parse(data)
}
