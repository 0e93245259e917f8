package sync

import (
	"testing"
	"time"

	"github.com/disconnec/FeiSync/internal/model"
)

func ptrInt64(v int64) *int64        { return &v }
func ptrTime(t time.Time) *time.Time { return &t }

func TestEqualUnknownSizeIsPermissive(t *testing.T) {
	a := model.SnapshotEntry{Path: "x"}
	b := model.SnapshotEntry{Path: "x", Size: ptrInt64(10)}
	if !equal(a, b) {
		t.Fatalf("expected equal when one side's size is unknown")
	}
}

func TestEqualSizeMismatch(t *testing.T) {
	a := model.SnapshotEntry{Size: ptrInt64(10)}
	b := model.SnapshotEntry{Size: ptrInt64(11)}
	if equal(a, b) {
		t.Fatalf("expected size mismatch to break equality")
	}
}

func TestEqualMtimeWithinSkew(t *testing.T) {
	base := time.Now().UTC()
	a := model.SnapshotEntry{ModifiedAt: ptrTime(base)}
	b := model.SnapshotEntry{ModifiedAt: ptrTime(base.Add(1500 * time.Millisecond))}
	if !equal(a, b) {
		t.Fatalf("expected mtimes within 2s skew to be equal")
	}
}

func TestEqualMtimeBeyondSkew(t *testing.T) {
	base := time.Now().UTC()
	a := model.SnapshotEntry{ModifiedAt: ptrTime(base)}
	b := model.SnapshotEntry{ModifiedAt: ptrTime(base.Add(5 * time.Second))}
	if equal(a, b) {
		t.Fatalf("expected mtimes beyond skew to differ")
	}
}

func TestChangedExistenceFlip(t *testing.T) {
	e := model.SnapshotEntry{Path: "x"}
	if !changed(&e, nil) {
		t.Fatalf("appearance should count as changed")
	}
	if !changed(nil, &e) {
		t.Fatalf("disappearance should count as changed")
	}
	if changed(nil, nil) {
		t.Fatalf("absence on both sides is not a change")
	}
}
