// Package ingest defines core types shared across subsystems.
package ingest

import (
	"encoding/json"
	"time"
)

// NodeType identifies the record type emitted into the content graph.
type NodeType string

// Node types materialized by an ingestion run.
const (
	NodeTypeCategory    NodeType = "Category"
	NodeTypeBook        NodeType = "Book"
	NodeTypeTag         NodeType = "Tag"
	NodeTypePost        NodeType = "Post"
	NodeTypeMetadata    NodeType = "Metadata"
	NodeTypeRelatedPost NodeType = "RelatedPost"
)

// URL path segments used when building node URLs.
const (
	CommonURI   = "blog"
	PostURI     = "post"
	BookURI     = "book"
	TagURI      = "tag"
	CategoryURI = "category"
)

// Node is any record that can be upserted into the content graph.
type Node interface {
	NodeID() string
	Type() NodeType
}

// RichText is a single span of rich text within a block.
type RichText struct {
	PlainText string `json:"plain_text"`
	Href      string `json:"href,omitempty"`
}

// FileLink points at a remote file, either uploaded or external.
type FileLink struct {
	URL string `json:"url"`
}

// ImageData carries the resolved source of an image block and, once the
// image has been materialized, the stable asset reference that replaces it.
type ImageData struct {
	SourceType string     `json:"source_type,omitempty"`
	SourceURL  string     `json:"source_url,omitempty"`
	AssetID    string     `json:"asset_id,omitempty"`
	Caption    []RichText `json:"caption,omitempty"`
}

// Block is an atomic content unit within a page. The remote API encodes the
// payload under a key named after the block type; UnmarshalJSON flattens the
// fields this pipeline cares about and keeps the rest opaque.
type Block struct {
	ID          string `json:"id"`
	Kind        string `json:"type"`
	HasChildren bool   `json:"has_children,omitempty"`

	RichText []RichText   `json:"rich_text,omitempty"`
	Caption  []RichText   `json:"caption,omitempty"`
	Cells    [][]RichText `json:"cells,omitempty"`
	Image    *ImageData   `json:"image,omitempty"`
	URL      string       `json:"url,omitempty"`

	// ChildDatabaseTitle is set for child_database blocks and names the
	// sub-database (category) the block points at.
	ChildDatabaseTitle string `json:"child_database_title,omitempty"`

	// Anchor is the table-of-contents hash assigned to heading blocks.
	Anchor string `json:"anchor,omitempty"`

	Children []Block `json:"children,omitempty"`
	// Rows mirrors Children for table blocks.
	Rows []Block `json:"rows,omitempty"`
}

// blockEnvelope matches the wire representation of a block.
type blockEnvelope struct {
	ID          string `json:"id"`
	Kind        string `json:"type"`
	HasChildren bool   `json:"has_children"`
}

// blockPayload matches the type-keyed payload object of a block. The remote
// API uses the same field names across block kinds, so one shape covers all
// the kinds this pipeline inspects.
type blockPayload struct {
	RichText []RichText   `json:"rich_text"`
	Caption  []RichText   `json:"caption"`
	Cells    [][]RichText `json:"cells"`
	Title    string       `json:"title"`
	URL      string       `json:"url"`
	Type     string       `json:"type"`
	External *FileLink    `json:"external"`
	File     *FileLink    `json:"file"`
}

// UnmarshalJSON decodes the remote API block shape, flattening the
// type-keyed payload into the block fields.
func (b *Block) UnmarshalJSON(data []byte) error {
	var env blockEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	b.ID = env.ID
	b.Kind = env.Kind
	b.HasChildren = env.HasChildren

	raw, ok := fields[env.Kind]
	if !ok {
		return nil
	}
	var payload blockPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}

	switch env.Kind {
	case "image":
		img := &ImageData{SourceType: payload.Type, Caption: payload.Caption}
		if payload.External != nil {
			img.SourceURL = payload.External.URL
		} else if payload.File != nil {
			img.SourceURL = payload.File.URL
		}
		b.Image = img
	case "child_database":
		b.ChildDatabaseTitle = payload.Title
	case "table_row":
		b.Cells = payload.Cells
	default:
		b.RichText = payload.RichText
		b.Caption = payload.Caption
		b.URL = payload.URL
	}
	return nil
}

// SelectOption is one entry of a multi-select property (a tag).
type SelectOption struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// RelationRef references another row by its native ID.
type RelationRef struct {
	ID string `json:"id"`
}

// FileRef is one entry of a files property (book covers).
type FileRef struct {
	Name     string    `json:"name"`
	External *FileLink `json:"external"`
	File     *FileLink `json:"file"`
}

// Property is one page property; exactly one of the payload fields is
// populated depending on the property type.
type Property struct {
	Title       []RichText     `json:"title"`
	RichText    []RichText     `json:"rich_text"`
	MultiSelect []SelectOption `json:"multi_select"`
	Relation    []RelationRef  `json:"relation"`
	Number      *float64       `json:"number"`
	Files       []FileRef      `json:"files"`
}

// Page is one row of a database query result.
type Page struct {
	ID             string              `json:"id"`
	CreatedTime    string              `json:"created_time"`
	LastEditedTime string              `json:"last_edited_time"`
	Properties     map[string]Property `json:"properties"`
}

// titlePropertyKey is the property name the source workspace uses for row
// titles. The workspace is Korean; the key is literally the word "name".
const titlePropertyKey = "이름"

// TitleText returns the row title, preferring the workspace's title
// property and falling back to any populated title-type property.
func (p Page) TitleText() string {
	if prop, ok := p.Properties[titlePropertyKey]; ok && len(prop.Title) > 0 {
		return prop.Title[0].PlainText
	}
	for _, prop := range p.Properties {
		if len(prop.Title) > 0 {
			return prop.Title[0].PlainText
		}
	}
	return ""
}

// RichTextProp returns the first plain-text span of a rich_text property.
func (p Page) RichTextProp(name string) string {
	if prop, ok := p.Properties[name]; ok && len(prop.RichText) > 0 {
		return prop.RichText[0].PlainText
	}
	return ""
}

// RelationIDs returns the related row IDs of a relation property.
func (p Page) RelationIDs(name string) []string {
	prop, ok := p.Properties[name]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(prop.Relation))
	for _, rel := range prop.Relation {
		ids = append(ids, rel.ID)
	}
	return ids
}

// NumberProp returns a number property as an int, or the fallback.
func (p Page) NumberProp(name string, fallback int) int {
	if prop, ok := p.Properties[name]; ok && prop.Number != nil {
		return int(*prop.Number)
	}
	return fallback
}

// Tags returns the multi-select options of the tags property.
func (p Page) Tags() []SelectOption {
	if prop, ok := p.Properties["tags"]; ok {
		return prop.MultiSelect
	}
	return nil
}

// CoverURL resolves the first entry of a files property to its URL.
func (p Page) CoverURL(name string) string {
	prop, ok := p.Properties[name]
	if !ok || len(prop.Files) == 0 {
		return ""
	}
	f := prop.Files[0]
	if f.External != nil {
		return f.External.URL
	}
	if f.File != nil {
		return f.File.URL
	}
	return ""
}

// QueryResult is the pagination envelope of a database query.
type QueryResult struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// BlockList is the pagination envelope of a children listing.
type BlockList struct {
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

// TOCEntry is one table-of-contents entry derived from a heading block.
type TOCEntry struct {
	Level  int    `json:"level"`
	Anchor string `json:"anchor"`
	Title  string `json:"title"`
}

// Category is a sub-database node in the content tree.
type Category struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ParentID string   `json:"parent_id,omitempty"`
	Slug     string   `json:"slug"`
	URL      string   `json:"url"`
	Books    []string `json:"books,omitempty"`
}

// NodeID implements Node.
func (c *Category) NodeID() string { return c.ID }

// Type implements Node.
func (c *Category) Type() NodeType { return NodeTypeCategory }

// Book is one row of the flat book database.
type Book struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	URL         string `json:"url"`
	CategoryID  string `json:"category_id,omitempty"`
	CoverRef    string `json:"cover_ref,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// NodeID implements Node.
func (b *Book) NodeID() string { return b.ID }

// Type implements Node.
func (b *Book) Type() NodeType { return NodeTypeBook }

// Tag is a deduplicated tag node; Posts lists the posts that reference it.
type Tag struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Slug  string   `json:"slug"`
	Color string   `json:"color,omitempty"`
	URL   string   `json:"url"`
	Posts []string `json:"posts,omitempty"`
}

// NodeID implements Node.
func (t *Tag) NodeID() string { return t.ID }

// Type implements Node.
func (t *Tag) Type() NodeType { return NodeTypeTag }

// Post is a leaf page of the content tree.
type Post struct {
	ID           string     `json:"id"`
	CategoryID   string     `json:"category_id,omitempty"`
	BookID       string     `json:"book_id,omitempty"`
	BookIndex    int        `json:"book_index"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	URL          string     `json:"url"`
	Content      []Block    `json:"content"`
	Description  string     `json:"description,omitempty"`
	RawText      string     `json:"raw_text,omitempty"`
	TOC          []TOCEntry `json:"table_of_contents,omitempty"`
	TagIDs       []string   `json:"tags,omitempty"`
	ThumbnailRef string     `json:"thumbnail_ref,omitempty"`
	CreatedAt    string     `json:"created_at,omitempty"`
	UpdatedAt    string     `json:"updated_at,omitempty"`
}

// NodeID implements Node.
func (p *Post) NodeID() string { return p.ID }

// Type implements Node.
func (p *Post) Type() NodeType { return NodeTypePost }

// Metadata describes one distinct outbound hyperlink found in rich text.
type Metadata struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	URL         string `json:"url"`
}

// NodeID implements Node.
func (m *Metadata) NodeID() string { return m.ID }

// Type implements Node.
func (m *Metadata) Type() NodeType { return NodeTypeMetadata }

// RelatedPost holds the ranked related-post IDs for one post.
type RelatedPost struct {
	ID      string   `json:"id"`
	PostID  string   `json:"post_id"`
	Related []string `json:"related"`
}

// NodeID implements Node.
func (r *RelatedPost) NodeID() string { return r.ID }

// Type implements Node.
func (r *RelatedPost) Type() NodeType { return NodeTypeRelatedPost }

// LinkMetadata is the result of scraping an outbound hyperlink.
type LinkMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	URL         string `json:"url"`
}

// RunCounters tracks what one ingestion run produced.
type RunCounters struct {
	Categories int `json:"categories"`
	Books      int `json:"books"`
	Tags       int `json:"tags"`
	Posts      int `json:"posts"`
	Metadata   int `json:"metadata"`
	Related    int `json:"related"`
	Failures   int `json:"failures"`
}

// RunSummary is the terminal report of an ingestion run.
type RunSummary struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Counters   RunCounters `json:"counters"`
}

// FormatTimestamp renders a source RFC 3339 timestamp in the compact form
// stored on nodes. Unparseable inputs pass through unchanged.
func FormatTimestamp(raw string) string {
	if raw == "" {
		return ""
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return ts.UTC().Format("2006-01-02 15:04")
}
