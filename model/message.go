package model

import (
	"strconv"
	"time"
)

// RawMessage is a single email message as fetched from the mailbox, before
// any parsing.
type RawMessage struct {
	Folder     string
	UID        uint32
	Subject    string
	Sender     string
	ReceivedAt time.Time
	Raw        []byte
}

// Key returns the dedup key for the message ("<folder>:<uid>").
func (m RawMessage) Key() string {
	return m.Folder + ":" + strconv.FormatUint(uint64(m.UID), 10)
}

// Disposition describes how a media part was attached to the message.
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// Attachment is one media part extracted from a message. Data is written to
// disk exactly once by the publisher and never mutated afterwards.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
	Disposition Disposition
}

// ContentKind tags a ContentItem.
type ContentKind int

const (
	KindText ContentKind = iota
	KindMedia
)

// ContentItem is one element of the ordered content sequence. The sequence
// order matches the original message's part order exactly; for media items,
// AttachmentIndex is a stable 0-based index into ParsedEmail.Attachments and
// is unique per item.
type ContentItem struct {
	Kind            ContentKind
	Text            string
	Filename        string
	AttachmentIndex int
}

// ParsedEmail is the parser's output for a single message. Content contains
// exactly one placeholder token per media item, in the same relative position
// as in OrderedContent.
type ParsedEmail struct {
	Title          string
	Content        string
	OrderedContent []ContentItem
	Attachments    []Attachment
	Description    string
}

// Page is a durable page artifact. One page per distinct title-derived slug;
// writes overwrite, never append.
type Page struct {
	Filename    string
	Title       string
	Description string
	ContentHTML string
	Image       string
}

// Tile is a homepage summary card for one published page. At most one tile
// per Filename exists in the homepage document at any time.
type Tile struct {
	Filename    string
	Title       string
	Description string
	Image       string
}

// DeleteCommand is a confirmed delete request extracted from a subject line.
// The identifier is either a slug ending in ".html" or a raw title to be
// slugified. Never persisted.
type DeleteCommand struct {
	PageIdentifier string
}

// PublishResult reports what the publisher actually wrote.
type PublishResult struct {
	PageWritten     string
	MediaSaved      []string
	DescriptionUsed string
	TileImage       string
}
