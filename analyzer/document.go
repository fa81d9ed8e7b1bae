package analyzer

import "strings"

// NodeType identifies the kind of a ContentNode
type NodeType string

const (
	NodeHeading   NodeType = "heading"
	NodeParagraph NodeType = "paragraph"
	NodeImage     NodeType = "image"
	NodeList      NodeType = "list"
	NodeTable     NodeType = "table"
	NodeFAQItem   NodeType = "faq-item"
	NodeSchema    NodeType = "schema-block"
)

// rootParent marks nodes that sit in the implicit root section
const rootParent = -1

// ContentNode is one entry of the document arena. Parent indexes into
// ContentDocument.Nodes: a heading's parent is the nearest preceding heading of a
// shallower level, every other node's parent is the heading whose section it is in.
type ContentNode struct {
	Type      NodeType `json:"type"`
	Level     int      `json:"level,omitempty"`
	Text      string   `json:"text"`
	WordCount int      `json:"wordCount"`
	Parent    int      `json:"parent"`

	// image
	HasAlt bool `json:"hasAlt,omitempty"`

	// list and table
	Items int `json:"items,omitempty"`

	// faq-item
	Answer string `json:"answer,omitempty"`

	// schema-block, index into ContentDocument.Schema
	SchemaIndex int `json:"schemaIndex,omitempty"`

	Issues []string `json:"issues,omitempty"`
}

// ContentDocument is the structured form of one page. It is built fresh for every
// analysis and never shared.
type ContentDocument struct {
	Title           string
	MetaDescription string
	Nodes           []ContentNode
	Schema          []SchemaBlock
	Notices         []Notice
	RawLength       int
	TextLength      int
}

// SchemaBlock is one embedded structured-data block
type SchemaBlock struct {
	Format   string
	Entities []SchemaEntity
	Err      error
}

// SchemaEntity is one typed object inside a structured-data block
type SchemaEntity struct {
	Types  []string
	Fields map[string]interface{}
}

func (n ContentNode) countsTowardText() bool {
	switch n.Type {
	case NodeHeading, NodeParagraph, NodeList, NodeTable:
		return true
	}
	return false
}

// WordCount sums words over text-bearing nodes. FAQ items repeat text from
// their heading and paragraph so they are skipped.
func (d *ContentDocument) WordCount() int {
	total := 0
	for _, n := range d.Nodes {
		if n.countsTowardText() {
			total += n.WordCount
		}
	}
	return total
}

func (d *ContentDocument) indexesOf(t NodeType) []int {
	var out []int
	for i, n := range d.Nodes {
		if n.Type == t {
			out = append(out, i)
		}
	}
	return out
}

func (d *ContentDocument) count(t NodeType) int {
	return len(d.indexesOf(t))
}

// Headings returns arena indexes of heading nodes in document order
func (d *ContentDocument) Headings() []int {
	return d.indexesOf(NodeHeading)
}

// Children returns the direct children of a node; pass rootParent for the root section
func (d *ContentDocument) Children(parent int) []int {
	var out []int
	for i, n := range d.Nodes {
		if n.Parent == parent {
			out = append(out, i)
		}
	}
	return out
}

// SectionText joins the non-heading text directly owned by a heading
func (d *ContentDocument) SectionText(heading int) string {
	var parts []string
	for _, i := range d.Children(heading) {
		n := d.Nodes[i]
		if n.Type == NodeParagraph || n.Type == NodeList || n.Type == NodeTable {
			parts = append(parts, n.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ParagraphText flattens paragraph text, one paragraph per line
func (d *ContentDocument) ParagraphText() []string {
	var out []string
	for _, n := range d.Nodes {
		if n.Type == NodeParagraph {
			out = append(out, n.Text)
		}
	}
	return out
}

// FullText joins every text-bearing node
func (d *ContentDocument) FullText() string {
	var b strings.Builder
	for _, n := range d.Nodes {
		if n.countsTowardText() {
			b.WriteString(n.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// FirstHeading returns the text of the first heading at level, or ""
func (d *ContentDocument) FirstHeading(level int) string {
	for _, n := range d.Nodes {
		if n.Type == NodeHeading && n.Level == level {
			return n.Text
		}
	}
	return ""
}

// SchemaTypes lists distinct declared types in document order
func (d *ContentDocument) SchemaTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range d.Schema {
		for _, e := range b.Entities {
			for _, t := range e.Types {
				if !seen[t] {
					seen[t] = true
					out = append(out, t)
				}
			}
		}
	}
	return out
}

func (d *ContentDocument) addIssue(i int, issue string) {
	d.Nodes[i].Issues = append(d.Nodes[i].Issues, issue)
}
