package devicestore

import (
	"testing"

	"github.com/uclip/receiverd/internal/identity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestLoadIdentityAbsentReturnsNil(t *testing.T) {
	store := openTestStore(t)
	id, err := store.LoadIdentity()
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if id != nil {
		t.Fatal("expected nil identity when no file exists")
	}
}

func TestIdentitySaveAndLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := store.SaveIdentity(id); err != nil {
		t.Fatalf("SaveIdentity: %v", err)
	}

	loaded, err := store.LoadIdentity()
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected non-nil identity after save")
	}
	if loaded.PrivateKey != id.PrivateKey || loaded.PublicKey != id.PublicKey {
		t.Fatal("loaded identity does not match saved identity")
	}
}

func TestPairedDeviceUpsertAndFind(t *testing.T) {
	store := openTestStore(t)

	k1 := []byte{1, 2, 3}
	k2 := []byte{4, 5, 6}
	if err := store.SavePairedDevice("p1", k1); err != nil {
		t.Fatalf("SavePairedDevice p1: %v", err)
	}
	if err := store.SavePairedDevice("p2", k2); err != nil {
		t.Fatalf("SavePairedDevice p2: %v", err)
	}

	name, ok, err := store.FindDeviceByKey(k1)
	if err != nil || !ok || name != "p1" {
		t.Fatalf("FindDeviceByKey(k1) = %q, %v, %v", name, ok, err)
	}
	name, ok, err = store.FindDeviceByKey(k2)
	if err != nil || !ok || name != "p2" {
		t.Fatalf("FindDeviceByKey(k2) = %q, %v, %v", name, ok, err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 paired devices, got %d", len(list))
	}
}

func TestPairedDeviceUpsertOverwritesKey(t *testing.T) {
	store := openTestStore(t)

	old := []byte{1, 2, 3}
	fresh := []byte{4, 5, 6}
	if err := store.SavePairedDevice("x", old); err != nil {
		t.Fatalf("SavePairedDevice(old): %v", err)
	}
	if err := store.SavePairedDevice("x", fresh); err != nil {
		t.Fatalf("SavePairedDevice(fresh): %v", err)
	}

	if _, ok, _ := store.FindDeviceByKey(old); ok {
		t.Fatal("old key should no longer resolve after upsert")
	}
	name, ok, err := store.FindDeviceByKey(fresh)
	if err != nil || !ok || name != "x" {
		t.Fatalf("FindDeviceByKey(fresh) = %q, %v, %v", name, ok, err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 paired device after upsert, got %d", len(list))
	}
}

func TestRemovePairedDevice(t *testing.T) {
	store := openTestStore(t)
	if err := store.SavePairedDevice("phone", []byte{1, 2, 3}); err != nil {
		t.Fatalf("SavePairedDevice: %v", err)
	}

	removed, err := store.Remove("phone")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected Remove to report true")
	}

	removedAgain, err := store.Remove("phone")
	if err != nil {
		t.Fatalf("Remove (second): %v", err)
	}
	if removedAgain {
		t.Fatal("expected second Remove to report false")
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list after remove, got %d entries", len(list))
	}
}

func TestMultiplePairedDevices(t *testing.T) {
	store := openTestStore(t)
	if err := store.SavePairedDevice("phone", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := store.SavePairedDevice("tablet", []byte{4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	if err := store.SavePairedDevice("laptop", []byte{7, 8, 9}); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(list))
	}

	name, ok, err := store.FindDeviceByKey([]byte{4, 5, 6})
	if err != nil || !ok || name != "tablet" {
		t.Fatalf("FindDeviceByKey(tablet key) = %q, %v, %v", name, ok, err)
	}

	if _, err := store.Remove("tablet"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok, _ := store.FindDeviceByKey([]byte{4, 5, 6}); ok {
		t.Fatal("tablet key should not resolve after removal")
	}

	list, err = store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 devices after removal, got %d", len(list))
	}
}
