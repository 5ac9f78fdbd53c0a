package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stele-slicer/internal/failure"
	"stele-slicer/internal/qa"
	"stele-slicer/pkg/geometry"
)

func sampleRecords() []Record {
	return []Record{
		{
			Index: 1, File: FileName("zhang", 1), CharTrad: "書", CharSimp: "书",
			Label: Label{Confidence: 0.9, Status: "anchor", TranscriptPos: 1},
			Source: Source{
				Image: "p1.png", Page: 0, PageHash: "abc",
				CellBox: geometry.Box{X0: 10, Y0: 10, X1: 40, Y1: 40},
				CropBox: geometry.Box{X0: 12, Y0: 12, X1: 38, Y1: 38},
				Grid:    Grid{Lane: 0, Position: 1},
			},
			Quality: Quality{Flags: qa.Flags{qa.FlagOffCenter}, Score: 3.0},
		},
		{
			Index: 0, File: FileName("zhang", 0), CharTrad: "天", CharSimp: "天",
			Source:  Source{Image: "p1.png", CropBox: geometry.Box{X0: 1, Y0: 2, X1: 3, Y1: 4}},
			Quality: Quality{Flags: qa.Flags{}},
		},
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("zhang", 42); got != "zhang_00042.png" {
		t.Fatalf("FileName = %q", got)
	}
}

func TestSaveLoadRoundTripSortsByIndex(t *testing.T) {
	dir := t.TempDir()
	d := &Dataset{Dir: dir, Records: sampleRecords(), Manifest: &Manifest{Version: FormatVersion, Stele: "zhang"}}
	if err := d.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Records) != 2 || got.Records[0].Index != 0 || got.Records[1].Index != 1 {
		t.Fatalf("records = %+v", got.Records)
	}
	if got.Records[1].Source.CropBox != (geometry.Box{X0: 12, Y0: 12, X1: 38, Y1: 38}) {
		t.Fatalf("crop box = %v", got.Records[1].Source.CropBox)
	}
	if !got.Records[1].Quality.Flags.Has(qa.FlagOffCenter) {
		t.Fatalf("flags lost: %v", got.Records[1].Quality.Flags)
	}
	if got.Manifest == nil || got.Manifest.Records != 2 {
		t.Fatalf("manifest = %+v", got.Manifest)
	}
	if i, ok := got.Find("zhang_00001.png"); !ok || i != 1 {
		t.Fatalf("Find = %d %v", i, ok)
	}
}

func TestSaveIsByteStable(t *testing.T) {
	dir := t.TempDir()
	d := &Dataset{Dir: dir, Records: sampleRecords()}
	if err := d.Save(); err != nil {
		t.Fatal(err)
	}
	first, _ := os.ReadFile(filepath.Join(dir, IndexFile))
	info1, _ := os.Stat(filepath.Join(dir, IndexFile))

	again, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := again.Save(); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(filepath.Join(dir, IndexFile))
	info2, _ := os.Stat(filepath.Join(dir, IndexFile))
	if !bytes.Equal(first, second) {
		t.Fatalf("index changed on re-save")
	}
	if !info1.ModTime().Equal(info2.ModTime()) {
		t.Fatalf("unchanged index was rewritten")
	}
	if !bytes.HasSuffix(first, []byte("\n")) || !strings.Contains(string(first), "\n  {") {
		t.Fatalf("unexpected formatting:\n%s", first)
	}
}

func TestLoadMalformedIndex(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IndexFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(dir)
	if !failure.IsCode(err, failure.MalformedInput) {
		t.Fatalf("err = %v, want malformed input", err)
	}
}

func TestWriteFileAtomicLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	if err := WriteFileAtomic(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "two" {
		t.Fatalf("content = %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries, want 1", len(entries))
	}
}

func TestPartialRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := &Partial{
		Page: 3, Image: "p3.png", Hash: "h",
		Records:   sampleRecords()[:1],
		Conflicts: []failure.Conflict{failure.NewConflict(failure.SplitConstraintViolation, "p3.png", "no split").At(1, -1)},
	}
	if err := WritePartial(dir, p); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(PartialPath(dir, 3)) != "page_003.json" {
		t.Fatalf("path = %s", PartialPath(dir, 3))
	}
	got, err := ReadPartial(dir, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != "h" || len(got.Records) != 1 || len(got.Conflicts) != 1 || got.Conflicts[0].Lane != 1 {
		t.Fatalf("partial = %+v", got)
	}
}

func TestBuildIDDeterministic(t *testing.T) {
	a := BuildID("zhang", "d1", []string{"h1", "h2"})
	b := BuildID("zhang", "d1", []string{"h1", "h2"})
	c := BuildID("zhang", "d2", []string{"h1", "h2"})
	if a != b || a == c {
		t.Fatalf("build ids: %s %s %s", a, b, c)
	}
	d1, err := Digest(map[string]int{"b": 2, "a": 1})
	if err != nil {
		t.Fatal(err)
	}
	d2, _ := Digest(map[string]int{"a": 1, "b": 2})
	if d1 != d2 || len(d1) != 16 {
		t.Fatalf("digest = %s %s", d1, d2)
	}
}

func TestParseOverrides(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"ok", `{"version":1,"crop_overrides":{"a_00001.png":{"crop_box":[1,2,30,40],"note":"tail"}}}`, false},
		{"empty map", `{"version":1}`, false},
		{"bad version", `{"version":2,"crop_overrides":{}}`, true},
		{"bad json", `{"version":1,`, true},
		{"bad box", `{"version":1,"crop_overrides":{"a":{"crop_box":[1,2,3]}}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := ParseOverrides("o.json", []byte(tt.body))
			if tt.wantErr {
				if !failure.IsCode(err, failure.MalformedInput) {
					t.Fatalf("err = %v, want malformed input", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if o.CropOverrides == nil {
				t.Fatal("nil override map")
			}
		})
	}

	o, _ := ParseOverrides("o.json", []byte(`{"version":1,"crop_overrides":{"b":{"crop_box":[0,0,1,1]},"a":{"crop_box":[1,2,30,40],"note":"tail"}}}`))
	if files := o.Files(); len(files) != 2 || files[0] != "a" {
		t.Fatalf("Files = %v", files)
	}
	if e := o.CropOverrides["a"]; e.CropBox != (geometry.Box{X0: 1, Y0: 2, X1: 30, Y1: 40}) || e.Note != "tail" {
		t.Fatalf("entry = %+v", e)
	}
	sub := o.Subset([]string{"b", "missing"})
	if len(sub.CropOverrides) != 1 {
		t.Fatalf("subset = %+v", sub.CropOverrides)
	}
}
