package publish

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"os"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/mail2site/mail2site/model"
)

var (
	// ErrNoHomepage means the index document the tiles live in is missing.
	ErrNoHomepage = errors.New("homepage document not found")
	// ErrTileNotFound means no tile references the requested page.
	ErrTileNotFound = errors.New("tile not found")
	// ErrPageNotFound means the page file to delete does not exist.
	ErrPageNotFound = errors.New("page not found")
	// ErrNoTileContainer means the index document has no tile container to
	// insert into.
	ErrNoTileContainer = errors.New("tile container not found in homepage")
)

const tileContainerID = "project-container"

// Homepage is the parsed homepage document. Tiles are edited as nodes in
// the parsed tree, not by pattern-matching the serialized HTML, so a
// formatting change in the document cannot break upsert or removal.
type Homepage struct {
	path string
	doc  *xhtml.Node
}

func LoadHomepage(path string) (*Homepage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoHomepage, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read homepage: %w", err)
	}

	doc, err := xhtml.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse homepage: %w", err)
	}
	return &Homepage{path: path, doc: doc}, nil
}

// Save serializes the document back to disk.
func (h *Homepage) Save() error {
	var buf bytes.Buffer
	if err := xhtml.Render(&buf, h.doc); err != nil {
		return fmt.Errorf("render homepage: %w", err)
	}
	if err := os.WriteFile(h.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write homepage: %w", err)
	}
	return nil
}

// Tiles returns the current tile list in display order.
func (h *Homepage) Tiles() []model.Tile {
	container := h.container()
	if container == nil {
		return nil
	}

	var tiles []model.Tile
	for child := container.FirstChild; child != nil; child = child.NextSibling {
		if !isTileNode(child) {
			continue
		}
		tile := model.Tile{}
		walk(child, func(n *xhtml.Node) {
			if n.Type != xhtml.ElementNode {
				return
			}
			switch n.Data {
			case "img":
				tile.Image = attr(n, "src")
			case "h3":
				tile.Title = textContent(n)
			case "p":
				tile.Description = textContent(n)
			case "a":
				tile.Filename = strings.TrimPrefix(attr(n, "href"), "Pages/")
			}
		})
		tiles = append(tiles, tile)
	}
	return tiles
}

// UpsertTile replaces any tile referencing the same filename and inserts the
// new tile at the top of the container, so republished pages surface as
// newest without duplicating.
func (h *Homepage) UpsertTile(tile model.Tile) error {
	container := h.container()
	if container == nil {
		return ErrNoTileContainer
	}

	h.removeTileNodes(container, tile.Filename)

	nodes, err := h.parseFragment(container, renderTile(tile))
	if err != nil {
		return fmt.Errorf("build tile: %w", err)
	}
	anchor := container.FirstChild
	for _, n := range nodes {
		if anchor != nil {
			container.InsertBefore(n, anchor)
		} else {
			container.AppendChild(n)
		}
	}
	return nil
}

// RemoveTile deletes the tile referencing filename.
func (h *Homepage) RemoveTile(filename string) error {
	container := h.container()
	if container == nil {
		return ErrNoTileContainer
	}
	if removed := h.removeTileNodes(container, filename); removed == 0 {
		return fmt.Errorf("%w: %s", ErrTileNotFound, filename)
	}
	return nil
}

// PatchNavigation regenerates the homepage navigation from the fixed
// single-entry link set. A full-section replace, so it is idempotent.
func (h *Homepage) PatchNavigation() {
	nav := findElement(h.doc, "nav")
	if nav == nil {
		return
	}
	for nav.FirstChild != nil {
		nav.RemoveChild(nav.FirstChild)
	}
	nodes, err := h.parseFragment(nav,
		`<ul><li><a href="index.html" class="home-icon"><span class="house-silhouette"></span></a></li></ul>`)
	if err != nil {
		return
	}
	for _, n := range nodes {
		nav.AppendChild(n)
	}
}

func (h *Homepage) container() *xhtml.Node {
	var container *xhtml.Node
	walk(h.doc, func(n *xhtml.Node) {
		if container == nil && n.Type == xhtml.ElementNode && attr(n, "id") == tileContainerID {
			container = n
		}
	})
	return container
}

func (h *Homepage) removeTileNodes(container *xhtml.Node, filename string) int {
	removed := 0
	child := container.FirstChild
	for child != nil {
		next := child.NextSibling
		if isTileNode(child) && tileLinksTo(child, filename) {
			container.RemoveChild(child)
			removed++
		}
		child = next
	}
	return removed
}

func (h *Homepage) parseFragment(context *xhtml.Node, fragment string) ([]*xhtml.Node, error) {
	return xhtml.ParseFragment(strings.NewReader(fragment), context)
}

func renderTile(tile model.Tile) string {
	return fmt.Sprintf(`<div class="project">
                <img src="%s" alt="%s">
                <h3>%s</h3>
                <p>%s</p>
                <a href="Pages/%s">View Project</a>
            </div>`,
		html.EscapeString(tile.Image),
		html.EscapeString(tile.Title),
		html.EscapeString(tile.Title),
		html.EscapeString(tile.Description),
		html.EscapeString(tile.Filename))
}

func isTileNode(n *xhtml.Node) bool {
	return n.Type == xhtml.ElementNode && n.Data == "div" && hasClass(n, "project")
}

func tileLinksTo(tile *xhtml.Node, filename string) bool {
	found := false
	walk(tile, func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode && n.Data == "a" && attr(n, "href") == "Pages/"+filename {
			found = true
		}
	})
	return found
}

func walk(n *xhtml.Node, fn func(*xhtml.Node)) {
	fn(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, fn)
	}
}

func findElement(n *xhtml.Node, name string) *xhtml.Node {
	var found *xhtml.Node
	walk(n, func(node *xhtml.Node) {
		if found == nil && node.Type == xhtml.ElementNode && node.Data == name {
			found = node
		}
	})
	return found
}

func attr(n *xhtml.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *xhtml.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *xhtml.Node) string {
	var b strings.Builder
	walk(n, func(node *xhtml.Node) {
		if node.Type == xhtml.TextNode {
			b.WriteString(node.Data)
		}
	})
	return strings.TrimSpace(b.String())
}
