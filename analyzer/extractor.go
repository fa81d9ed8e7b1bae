package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	markupRegex      = regexp.MustCompile(`<(?:[a-zA-Z][a-zA-Z0-9]*|!--|!doctype|/[a-zA-Z])[^>]*>`)
	schemaOrgPrefix  = regexp.MustCompile(`^(?i)(?:https?://)?(?:www\.)?schema\.org/|^schema:`)
	errNoSchemaTypes = errors.New("no @type declared")
)

// blockTags close any pending inline text run
var blockTags = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Blockquote: true, atom.Body: true,
	atom.Dd: true, atom.Div: true, atom.Dt: true, atom.Fieldset: true, atom.Figcaption: true,
	atom.Figure: true, atom.Form: true, atom.Header: true, atom.Hr: true, atom.Html: true,
	atom.Li: true, atom.Main: true, atom.Pre: true, atom.Section: true, atom.Summary: true,
	atom.Td: true, atom.Th: true, atom.Tr: true,
}

// skippedTags carry no readable content
var skippedTags = map[atom.Atom]bool{
	atom.Button: true, atom.Select: true, atom.Textarea: true, atom.Title: true,
	atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Svg: true,
	atom.Iframe: true, atom.Object: true, atom.Canvas: true,
}

// chromeTags are page furniture; only their structured data is kept
var chromeTags = map[atom.Atom]bool{
	atom.Nav: true, atom.Footer: true, atom.Aside: true,
}

type extractor struct {
	doc       *ContentDocument
	sections  []int
	question  int
	inline    strings.Builder
	itemDepth int
}

// Extract parses raw HTML, Markdown or plain text into a ContentDocument. Blocks
// that fail to parse are skipped and recorded as EXTRACTION_PARTIAL notices;
// content with no words is EMPTY_CONTENT.
func Extract(raw string) (*ContentDocument, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, newError(KindEmptyContent, nil, "content is empty")
	}

	source := raw
	if !markupRegex.MatchString(raw) {
		rendered, err := renderMarkdown(raw)
		if err != nil {
			return nil, newError(KindInvalidInput, err, "failed to render text content")
		}
		source = rendered
	}

	gq, err := goquery.NewDocumentFromReader(strings.NewReader(source))
	if err != nil {
		return nil, newError(KindInvalidInput, err, "failed to parse content")
	}
	gq.Find("script").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return !isJSONLD(s.Nodes[0])
	}).Remove()

	e := &extractor{
		doc:      &ContentDocument{RawLength: len(raw)},
		question: -1,
	}
	e.doc.MetaDescription = collapseSpace(metaContent(gq, `meta[name="description"]`))

	for _, root := range gq.Nodes {
		e.walk(root)
	}
	e.flush()

	e.doc.Title = resolveTitle(gq, e.doc)
	e.doc.TextLength = len(collapseSpace(e.doc.FullText()))

	if e.doc.WordCount() == 0 {
		return nil, newError(KindEmptyContent, nil, "no readable text found")
	}
	return e.doc, nil
}

func renderMarkdown(text string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// resolveTitle walks the fallback chain: <title>, og:title, first H1, twitter:title
func resolveTitle(gq *goquery.Document, doc *ContentDocument) string {
	candidates := []string{
		gq.Find("title").First().Text(),
		metaContent(gq, `meta[property="og:title"]`),
		doc.FirstHeading(1),
		metaContent(gq, `meta[name="twitter:title"]`),
	}
	for _, c := range candidates {
		if t := collapseSpace(c); t != "" {
			return t
		}
	}
	return ""
}

func metaContent(gq *goquery.Document, selector string) string {
	v, _ := gq.Find(selector).First().Attr("content")
	return v
}

func (e *extractor) walk(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			e.inline.WriteString(c.Data)
		case html.ElementNode:
			e.element(c)
		case html.DocumentNode:
			e.walk(c)
		}
	}
}

func (e *extractor) element(n *html.Node) {
	if e.itemDepth == 0 && hasAttr(n, "itemscope") && hasAttr(n, "itemtype") {
		e.microdata(n)
		e.itemDepth++
		defer func() { e.itemDepth-- }()
	}

	switch a := n.DataAtom; {
	case a == atom.Script:
		e.script(n)
		return
	case a == atom.Head || chromeTags[a]:
		e.flush()
		e.scanStructured(n)
		return
	case skippedTags[a]:
		return
	case a == atom.Br:
		e.inline.WriteByte(' ')
		return
	case a == atom.Img:
		e.flush()
		e.image(n)
		return
	case headingLevel(a) > 0:
		e.flush()
		e.heading(headingLevel(a), textOf(n))
		return
	case a == atom.P:
		e.flush()
		e.block(NodeParagraph, textOf(n), 0)
		e.images(n)
		return
	case a == atom.Ul || a == atom.Ol || a == atom.Dl:
		e.flush()
		items := countChildren(n, atom.Li, atom.Dt)
		if hasSections(n) {
			e.container(NodeList, n, items)
			return
		}
		e.block(NodeList, textOf(n), items)
		e.images(n)
		return
	case a == atom.Table:
		e.flush()
		rows := countDescendants(n, atom.Tr)
		if hasSections(n) {
			e.container(NodeTable, n, rows)
			return
		}
		e.block(NodeTable, textOf(n), rows)
		return
	case a == atom.Details:
		e.flush()
		e.details(n)
		return
	case blockTags[a]:
		e.flush()
		e.walk(n)
		e.flush()
		return
	}
	e.walk(n)
}

// scanStructured visits only the structured data inside a subtree
func (e *extractor) scanStructured(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom == atom.Script {
			e.script(c)
			continue
		}
		if e.itemDepth == 0 && hasAttr(c, "itemscope") && hasAttr(c, "itemtype") {
			e.microdata(c)
			continue
		}
		e.scanStructured(c)
	}
}

// flush turns buffered inline text into a paragraph
func (e *extractor) flush() {
	text := collapseSpace(e.inline.String())
	e.inline.Reset()
	if countWords(text) > 0 {
		e.block(NodeParagraph, text, 0)
	}
}

func (e *extractor) section() int {
	if len(e.sections) == 0 {
		return rootParent
	}
	return e.sections[len(e.sections)-1]
}

func (e *extractor) heading(level int, text string) {
	for len(e.sections) > 0 && e.doc.Nodes[e.section()].Level >= level {
		e.sections = e.sections[:len(e.sections)-1]
	}
	e.doc.Nodes = append(e.doc.Nodes, ContentNode{
		Type:      NodeHeading,
		Level:     level,
		Text:      text,
		WordCount: countWords(text),
		Parent:    e.section(),
	})
	idx := len(e.doc.Nodes) - 1
	e.sections = append(e.sections, idx)

	e.question = -1
	if isQuestion(text) {
		e.question = idx
	}
}

// block appends a text node to the current section. A paragraph or list that
// directly follows a question heading also yields an faq-item.
func (e *extractor) block(t NodeType, text string, items int) {
	if t != NodeList && t != NodeTable && countWords(text) == 0 {
		return
	}
	e.doc.Nodes = append(e.doc.Nodes, ContentNode{
		Type:      t,
		Text:      text,
		WordCount: countWords(text),
		Items:     items,
		Parent:    e.section(),
	})

	q := e.question
	e.question = -1
	if q >= 0 && (t == NodeParagraph || t == NodeList) && text != "" {
		e.faq(e.doc.Nodes[q].Text, text, q)
	}
}

// container records a list or table whose items hold their own headings. The
// node keeps the item count and its items are walked as ordinary blocks, so
// accordion-style FAQs reach the heading tree.
func (e *extractor) container(t NodeType, n *html.Node, items int) {
	e.block(t, "", items)
	e.walk(n)
	e.flush()
}

func (e *extractor) faq(question, answer string, parent int) {
	e.doc.Nodes = append(e.doc.Nodes, ContentNode{
		Type:      NodeFAQItem,
		Text:      question,
		Answer:    answer,
		WordCount: countWords(answer),
		Parent:    parent,
	})
}

func (e *extractor) image(n *html.Node) {
	alt, ok := attr(n, "alt")
	e.doc.Nodes = append(e.doc.Nodes, ContentNode{
		Type:   NodeImage,
		Text:   collapseSpace(alt),
		HasAlt: ok,
		Parent: e.section(),
	})
	e.question = -1
}

// images records images nested inside an element handled as a single block
func (e *extractor) images(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom == atom.Img {
			e.image(c)
			continue
		}
		e.images(c)
	}
}

// details handles <details><summary>question</summary>answer</details>
func (e *extractor) details(n *html.Node) {
	var summary string
	var body []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Summary && summary == "" {
			summary = textOf(c)
			continue
		}
		if t := textOf(c); t != "" {
			body = append(body, t)
		}
	}
	answer := collapseSpace(strings.Join(body, " "))
	if isQuestion(summary) && answer != "" {
		e.block(NodeParagraph, answer, 0)
		e.faq(summary, answer, e.section())
		return
	}
	e.block(NodeParagraph, collapseSpace(summary+" "+answer), 0)
}

func (e *extractor) script(n *html.Node) {
	if !isJSONLD(n) {
		return
	}
	e.addSchema(parseJSONLD(textOf(n)))
}

func (e *extractor) microdata(n *html.Node) {
	sel := goquery.NewDocumentFromNode(n).Selection
	e.addSchema(SchemaBlock{
		Format:   "microdata",
		Entities: []SchemaEntity{microdataEntity(sel)},
	})
}

// addSchema records a structured-data block without interrupting a pending FAQ
// question, since the block is invisible on the page.
func (e *extractor) addSchema(block SchemaBlock) {
	e.doc.Schema = append(e.doc.Schema, block)
	idx := len(e.doc.Schema) - 1

	var types []string
	for _, ent := range block.Entities {
		types = append(types, ent.Types...)
	}
	e.doc.Nodes = append(e.doc.Nodes, ContentNode{
		Type:        NodeSchema,
		Text:        strings.Join(types, ", "),
		SchemaIndex: idx,
		Parent:      e.section(),
	})
	if block.Err != nil {
		e.doc.Notices = append(e.doc.Notices,
			newError(KindExtractionPartial, block.Err, "%s block %d skipped", block.Format, idx+1).notice())
	}
}

func isJSONLD(n *html.Node) bool {
	t, _ := attr(n, "type")
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(t)), "application/ld+json")
}

// parseJSONLD decodes one JSON-LD payload. Objects, arrays and @graph
// containers are flattened into typed entities.
func parseJSONLD(raw string) SchemaBlock {
	block := SchemaBlock{Format: "json-ld"}
	payload := strings.TrimSpace(raw)
	for _, wrapper := range []string{"<!--", "-->", "//<![CDATA[", "//]]>", "<![CDATA[", "]]>"} {
		payload = strings.ReplaceAll(payload, wrapper, "")
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		block.Err = errors.New("empty JSON-LD block")
		return block
	}

	var v interface{}
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		block.Err = fmt.Errorf("invalid JSON-LD: %w", err)
		return block
	}
	block.Entities = collectEntities(v)
	if len(block.Entities) == 0 {
		block.Err = errNoSchemaTypes
	}
	return block
}

func collectEntities(v interface{}) []SchemaEntity {
	var out []SchemaEntity
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			out = append(out, collectEntities(item)...)
		}
	case map[string]interface{}:
		if graph, ok := t["@graph"]; ok {
			out = append(out, collectEntities(graph)...)
		}
		if types := schemaTypes(t["@type"]); len(types) > 0 {
			out = append(out, SchemaEntity{Types: types, Fields: t})
		}
	}
	return out
}

// schemaTypes normalises an @type value into bare type names
func schemaTypes(v interface{}) []string {
	var raw []string
	switch t := v.(type) {
	case string:
		raw = []string{t}
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	var out []string
	for _, r := range raw {
		if name := strings.TrimSpace(schemaOrgPrefix.ReplaceAllString(strings.TrimSpace(r), "")); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func microdataEntity(s *goquery.Selection) SchemaEntity {
	itemtype, _ := s.Attr("itemtype")
	ent := SchemaEntity{
		Types:  schemaTypes(toInterfaces(strings.Fields(itemtype))),
		Fields: make(map[string]interface{}),
	}
	scope := s.Get(0)
	s.Find("[itemprop]").Each(func(_ int, p *goquery.Selection) {
		owner := p.Parent().Closest("[itemscope]")
		if owner.Length() == 0 || owner.Get(0) != scope {
			return
		}
		var value interface{}
		if _, nested := p.Attr("itemscope"); nested {
			child := microdataEntity(p)
			m := map[string]interface{}{}
			for k, v := range child.Fields {
				m[k] = v
			}
			if len(child.Types) > 0 {
				m["@type"] = child.Types[0]
			}
			value = m
		} else {
			value = microdataValue(p)
		}
		props, _ := p.Attr("itemprop")
		for _, name := range strings.Fields(props) {
			if existing, ok := ent.Fields[name]; ok {
				if list, isList := existing.([]interface{}); isList {
					ent.Fields[name] = append(list, value)
				} else {
					ent.Fields[name] = []interface{}{existing, value}
				}
				continue
			}
			ent.Fields[name] = value
		}
	})
	return ent
}

func microdataValue(p *goquery.Selection) string {
	if v, ok := p.Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	switch goquery.NodeName(p) {
	case "a", "link", "area":
		v, _ := p.Attr("href")
		return v
	case "img", "audio", "video", "source", "embed":
		v, _ := p.Attr("src")
		return v
	case "time":
		if v, ok := p.Attr("datetime"); ok {
			return v
		}
	case "data", "meter":
		if v, ok := p.Attr("value"); ok {
			return v
		}
	}
	return collapseSpace(p.Text())
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func countChildren(n *html.Node, tags ...atom.Atom) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		for _, t := range tags {
			if c.DataAtom == t {
				count++
			}
		}
	}
	return count
}

// hasSections reports whether a subtree contains a heading or a details block
func hasSections(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if headingLevel(c.DataAtom) > 0 || c.DataAtom == atom.Details || hasSections(c) {
			return true
		}
	}
	return false
}

func countDescendants(n *html.Node, tag atom.Atom) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom == tag {
			count++
		}
		count += countDescendants(c, tag)
	}
	return count
}

// textOf flattens the text of a subtree. Block boundaries become spaces so
// adjacent list items and cells do not run together.
func textOf(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			return
		case html.ElementNode:
			if skippedTags[c.DataAtom] || (c.DataAtom == atom.Script && n != c) {
				return
			}
			if c.DataAtom == atom.Br || blockTags[c.DataAtom] || headingLevel(c.DataAtom) > 0 || c.DataAtom == atom.P {
				b.WriteByte(' ')
			}
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			visit(cc)
		}
		if c.Type == html.ElementNode && (blockTags[c.DataAtom] || c.DataAtom == atom.P) {
			b.WriteByte(' ')
		}
	}
	visit(n)
	if n.DataAtom == atom.Script {
		return strings.TrimSpace(b.String())
	}
	return collapseSpace(b.String())
}
