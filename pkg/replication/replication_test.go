package replication

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkvstore/coordinator/pkg/index"
	"github.com/mkvstore/coordinator/pkg/types"
	"github.com/mkvstore/coordinator/pkg/volumeclient"
)

// fakeVolume is an in-memory volume server used to exercise the replication
// state machine without a real volume binary.
type fakeVolume struct {
	server *httptest.Server
	data   map[string][]byte
	fail   bool
}

func newFakeVolume(t *testing.T) *fakeVolume {
	t.Helper()
	fv := &fakeVolume{data: make(map[string][]byte)}
	fv.server = httptest.NewServer(http.HandlerFunc(fv.handle))
	t.Cleanup(fv.server.Close)
	return fv
}

func (fv *fakeVolume) addr() string {
	return fv.server.Listener.Addr().String()
}

func (fv *fakeVolume) handle(w http.ResponseWriter, r *http.Request) {
	if fv.fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	switch r.Method {
	case http.MethodPut:
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		fv.data[r.URL.Path] = buf
		w.WriteHeader(http.StatusCreated)
	case http.MethodGet:
		body, ok := fv.data[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	case http.MethodHead:
		if _, ok := fv.data[r.URL.Path]; ok {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodDelete:
		delete(fv.data, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTestCoordinator(t *testing.T, volumes []string, replicas int) (*Coordinator, index.Index) {
	t.Helper()
	idx, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	vc := volumeclient.New(200 * time.Millisecond)
	cfg := types.Config{Volumes: volumes, Replicas: replicas, Subvolumes: 1}
	return New(idx, vc, cfg), idx
}

func TestCoordinator_PutSuccess(t *testing.T) {
	v1, v2 := newFakeVolume(t), newFakeVolume(t)
	c, _ := newTestCoordinator(t, []string{v1.addr(), v2.addr()}, 2)

	key := []byte("object-key")
	if err := c.Put(context.Background(), key, []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err := c.Record(key)
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if rec.Deleted != types.Live {
		t.Errorf("expected LIVE record, got %v", rec.Deleted)
	}
	if len(rec.Volumes) != 2 {
		t.Errorf("expected 2 volumes, got %d", len(rec.Volumes))
	}
}

func TestCoordinator_PutOverwriteRejected(t *testing.T) {
	v1 := newFakeVolume(t)
	c, _ := newTestCoordinator(t, []string{v1.addr()}, 1)

	key := []byte("object-key")
	if err := c.Put(context.Background(), key, []byte("v1")); err != nil {
		t.Fatalf("first put failed: %v", err)
	}
	if err := c.Put(context.Background(), key, []byte("v2")); err != ErrOverwrite {
		t.Fatalf("expected ErrOverwrite, got %v", err)
	}
}

func TestCoordinator_PutPartialFailureRollsBack(t *testing.T) {
	v1, v2 := newFakeVolume(t), newFakeVolume(t)
	v2.fail = true
	c, _ := newTestCoordinator(t, []string{v1.addr(), v2.addr()}, 2)

	key := []byte("object-key")
	err := c.Put(context.Background(), key, []byte("hello"))
	if err != ErrPartialFailure {
		t.Fatalf("expected ErrPartialFailure, got %v", err)
	}

	if _, err := c.Record(key); err == nil {
		t.Error("expected no index row after rollback")
	}
	if len(v1.data) != 0 {
		t.Error("expected successful volume to be rolled back")
	}
}

func TestCoordinator_DeleteUnlink(t *testing.T) {
	v1 := newFakeVolume(t)
	c, _ := newTestCoordinator(t, []string{v1.addr()}, 1)

	key := []byte("object-key")
	if err := c.Put(context.Background(), key, []byte("hello")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if err := c.Delete(context.Background(), key, true); err != nil {
		t.Fatalf("unlink failed: %v", err)
	}

	rec, err := c.Record(key)
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if rec.Deleted != types.Soft {
		t.Errorf("expected SOFT record, got %v", rec.Deleted)
	}
	if len(v1.data) != 1 {
		t.Error("unlink must not touch volume data")
	}

	if err := c.Delete(context.Background(), key, true); err != ErrUnlinkNotLive {
		t.Fatalf("expected ErrUnlinkNotLive on double unlink, got %v", err)
	}
}

func TestCoordinator_DeleteHardPurge(t *testing.T) {
	v1 := newFakeVolume(t)
	c, _ := newTestCoordinator(t, []string{v1.addr()}, 1)

	key := []byte("object-key")
	if err := c.Put(context.Background(), key, []byte("hello")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if err := c.Delete(context.Background(), key, false); err != nil {
		t.Fatalf("purge failed: %v", err)
	}

	if _, err := c.Record(key); err == nil {
		t.Error("expected index row to be removed after hard delete")
	}
	if len(v1.data) != 0 {
		t.Error("expected volume blob to be removed")
	}
}

func TestCoordinator_DeleteNotFound(t *testing.T) {
	v1 := newFakeVolume(t)
	c, _ := newTestCoordinator(t, []string{v1.addr()}, 1)

	if err := c.Delete(context.Background(), []byte("missing"), false); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCoordinator_Rebalance(t *testing.T) {
	v1, v2, v3 := newFakeVolume(t), newFakeVolume(t), newFakeVolume(t)
	c, _ := newTestCoordinator(t, []string{v1.addr(), v2.addr()}, 2)

	key := []byte("object-key")
	if err := c.Put(context.Background(), key, []byte("hello")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	// Widen the volume set. Whether this key's desired placement changes
	// depends on the hash of the test servers' addresses; either way the
	// record must end up holding the desired number of volumes.
	c.config.Volumes = []string{v1.addr(), v2.addr(), v3.addr()}

	if err := c.Rebalance(context.Background(), key); err != nil {
		t.Fatalf("rebalance failed: %v", err)
	}

	rec, err := c.Record(key)
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	desired := c.desired(key)
	if len(rec.Volumes) != len(desired) {
		t.Fatalf("expected %d volumes after rebalance, got %d", len(desired), len(rec.Volumes))
	}
}
