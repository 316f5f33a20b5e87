package multipart

import (
	"os"
	"strings"
	"testing"
)

func TestRegistry_InitiateAndKnown(t *testing.T) {
	r := NewRegistry(t.TempDir())

	id := r.Initiate()
	if id == "" {
		t.Fatal("expected non-empty upload id")
	}
	if !r.Known(id) {
		t.Error("expected upload id to be known right after initiate")
	}
	if r.Known("not-a-real-id") {
		t.Error("unregistered id should not be known")
	}
}

func TestRegistry_StageAndComplete(t *testing.T) {
	r := NewRegistry(t.TempDir())
	id := r.Initiate()

	if err := r.StagePart(id, 1, strings.NewReader("hello ")); err != nil {
		t.Fatalf("stage part 1 failed: %v", err)
	}
	if err := r.StagePart(id, 2, strings.NewReader("world")); err != nil {
		t.Fatalf("stage part 2 failed: %v", err)
	}

	combined, err := r.Complete(id, []int{1, 2})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if string(combined) != "hello world" {
		t.Errorf("expected 'hello world', got %q", combined)
	}

	if r.Known(id) {
		t.Error("upload id should be dropped after complete")
	}
}

func TestRegistry_CompleteOrderRespected(t *testing.T) {
	r := NewRegistry(t.TempDir())
	id := r.Initiate()

	_ = r.StagePart(id, 1, strings.NewReader("A"))
	_ = r.StagePart(id, 2, strings.NewReader("B"))

	combined, err := r.Complete(id, []int{2, 1})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if string(combined) != "BA" {
		t.Errorf("expected parts concatenated in given order ('BA'), got %q", combined)
	}
}

func TestRegistry_StagePartUnknownUpload(t *testing.T) {
	r := NewRegistry(t.TempDir())
	if err := r.StagePart("bogus", 1, strings.NewReader("x")); err != ErrUnknownUpload {
		t.Fatalf("expected ErrUnknownUpload, got %v", err)
	}
}

func TestRegistry_Abort(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir)
	id := r.Initiate()

	_ = r.StagePart(id, 1, strings.NewReader("x"))
	path := r.partPath(id, 1)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected staged file to exist: %v", err)
	}

	if err := r.Abort(id); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
	if r.Known(id) {
		t.Error("upload id should be dropped after abort")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected staged file to be removed after abort")
	}
}

func TestRegistry_CompleteUnknownUpload(t *testing.T) {
	r := NewRegistry(t.TempDir())
	if _, err := r.Complete("bogus", []int{1}); err != ErrUnknownUpload {
		t.Fatalf("expected ErrUnknownUpload, got %v", err)
	}
}
