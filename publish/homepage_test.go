package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mail2site/mail2site/model"
)

func TestLoadHomepage_Missing(t *testing.T) {
	_, err := LoadHomepage(filepath.Join(t.TempDir(), "index.html"))
	if !errors.Is(err, ErrNoHomepage) {
		t.Errorf("LoadHomepage() error = %v, want ErrNoHomepage", err)
	}
}

func TestUpsertTile_NoContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	if err := os.WriteFile(path, []byte("<html><body><p>no tiles here</p></body></html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	homepage, err := LoadHomepage(path)
	if err != nil {
		t.Fatalf("LoadHomepage() error = %v", err)
	}
	err = homepage.UpsertTile(model.Tile{Filename: "x.html", Title: "X"})
	if !errors.Is(err, ErrNoTileContainer) {
		t.Errorf("UpsertTile() error = %v, want ErrNoTileContainer", err)
	}
}

func TestRemoveTile_NotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	if err := os.WriteFile(path, []byte(indexFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	homepage, err := LoadHomepage(path)
	if err != nil {
		t.Fatalf("LoadHomepage() error = %v", err)
	}
	if err := homepage.RemoveTile("ghost.html"); !errors.Is(err, ErrTileNotFound) {
		t.Errorf("RemoveTile() error = %v, want ErrTileNotFound", err)
	}
	if err := homepage.RemoveTile("old.html"); err != nil {
		t.Errorf("RemoveTile() error = %v", err)
	}
	if got := len(homepage.Tiles()); got != 0 {
		t.Errorf("tiles remaining = %d, want 0", got)
	}
}

func TestUpsertTile_EscapesText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	if err := os.WriteFile(path, []byte(indexFixture), 0o644); err != nil {
		t.Fatal(err)
	}

	homepage, err := LoadHomepage(path)
	if err != nil {
		t.Fatalf("LoadHomepage() error = %v", err)
	}
	tile := model.Tile{
		Filename:    "x.html",
		Title:       `Tricks <script>alert(1)</script>`,
		Description: "a & b",
		Image:       "images/x.jpg",
	}
	if err := homepage.UpsertTile(tile); err != nil {
		t.Fatalf("UpsertTile() error = %v", err)
	}
	if err := homepage.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "&lt;script&gt;") {
		t.Errorf("title not escaped in output: %s", data)
	}
}
