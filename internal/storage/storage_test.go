package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type doc struct {
	Date  string   `json:"date"`
	Items []string `json:"items"`
}

func TestWriteRead(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "data"))

	want := doc{Date: "2025-10-16", Items: []string{"egy", "kettő"}}
	if err := d.Write("2025-10-16.json", want); err != nil {
		t.Fatal(err)
	}

	var got doc
	if err := d.Read("2025-10-16.json", &got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	ok, err := d.Exists("2025-10-16.json")
	if err != nil || !ok {
		t.Errorf("expected file to exist, got %v %v", ok, err)
	}
}

func TestWrite_OverwritesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir)

	for _, items := range [][]string{{"a"}, {"b", "c"}} {
		if err := d.Write("x.json", doc{Items: items}); err != nil {
			t.Fatal(err)
		}
	}

	var got doc
	if err := d.Read("x.json", &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 2 {
		t.Errorf("expected last write to win, got %+v", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestRead_Missing(t *testing.T) {
	d := NewDir(t.TempDir())
	var v doc
	if err := d.Read("nope.json", &v); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if ok, err := d.Exists("nope.json"); ok || err != nil {
		t.Errorf("expected missing file, got %v %v", ok, err)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	d := NewDir(dir)
	for _, name := range []string{"b.json", "a.json"} {
		if err := d.Write(name, doc{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	names, err := d.List()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"a.json", "b.json"}) {
		t.Errorf("unexpected listing %v", names)
	}

	empty, err := NewDir(filepath.Join(dir, "missing")).List()
	if err != nil || len(empty) != 0 {
		t.Errorf("missing dir should list empty, got %v %v", empty, err)
	}
}
