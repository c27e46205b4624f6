package main

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func TestParameterStoreLoadAndGet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.csv")
	content := "PassEnergy,float,20.0\nLensMode,string,HighMagnification\nNumberOfScans,int,1\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := LoadParameterStore(path)
	if err != nil {
		t.Fatalf("LoadParameterStore: %v", err)
	}

	names := store.ListNames()
	want := []string{"PassEnergy", "LensMode", "NumberOfScans"}
	if len(names) != len(want) {
		t.Fatalf("ListNames returned %d names, want %d", len(names), len(want))
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("ListNames[%d] = %s, want %s (declaration order must be preserved)", i, names[i], n)
		}
	}

	value, ptype, err := store.Get("PassEnergy")
	if err != nil {
		t.Fatalf("Get(PassEnergy): %v", err)
	}
	if value != "20.0" || ptype != ParamFloat {
		t.Errorf("Get(PassEnergy) = (%s, %v), want (20.0, ParamFloat)", value, ptype)
	}
}

func TestParameterStoreMissingFileIsEmpty(t *testing.T) {
	store, err := LoadParameterStore("/nonexistent/path/params.csv")
	if err != nil {
		t.Fatalf("LoadParameterStore on missing file should not error, got %v", err)
	}
	if len(store.ListNames()) != 0 {
		t.Errorf("expected an empty store for a missing file, got %d names", len(store.ListNames()))
	}
}

func TestParameterStoreUnknownName(t *testing.T) {
	store := NewParameterStore()
	if _, _, err := store.Get("NoSuchParam"); err != ErrParameterUnknown {
		t.Errorf("Get on unknown name: got %v, want ErrParameterUnknown", err)
	}
	if _, err := store.Info("NoSuchParam"); err != ErrParameterUnknown {
		t.Errorf("Info on unknown name: got %v, want ErrParameterUnknown", err)
	}
	if err := store.Set("NoSuchParam", "1"); err != ErrParameterUnknown {
		t.Errorf("Set on unknown name: got %v, want ErrParameterUnknown", err)
	}
}

func TestParameterStoreSetTypeMismatch(t *testing.T) {
	store := NewParameterStore()
	store.addLocked("Scans", ParamInt, "1")

	if err := store.Set("Scans", "not-a-number"); err != ErrParameterTypeMismatch {
		t.Errorf("Set with non-numeric value on an int parameter: got %v, want ErrParameterTypeMismatch", err)
	}

	if err := store.Set("Scans", "42"); err != nil {
		t.Fatalf("Set with a valid int value should succeed, got %v", err)
	}
	value, _, _ := store.Get("Scans")
	if value != "42" {
		t.Errorf("Get after Set = %s, want 42", value)
	}
}

func TestParameterStoreGzipTransparent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.csv.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte("PassEnergy,float,20.0\n")); err != nil {
		t.Fatal(err)
	}
	gz.Close()
	f.Close()

	store, err := LoadParameterStore(path)
	if err != nil {
		t.Fatalf("LoadParameterStore on gzip file: %v", err)
	}
	if value, _, err := store.Get("PassEnergy"); err != nil || value != "20.0" {
		t.Errorf("Get(PassEnergy) after gzip load = (%s, %v), want (20.0, nil)", value, err)
	}
}
