package surface

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Static is a Session over saved markup. Embedded documents are taken from
// iframe srcdoc attributes. Clicks change nothing by themselves: they are
// recorded and handed to OnClick, which may Load a new document to emulate
// the page reacting. Static is not safe for concurrent use.
type Static struct {
	// OnClick is called after every successful click, at any tier.
	OnClick func(el *StaticElement)
	// NavigateErr, when set, is returned by Navigate.
	NavigateErr error

	top     *StaticDocument
	clicks  []Click
	visited []string
	closed  int
}

// Click is one recorded interaction.
type Click struct {
	Document string
	Text     string
	Tier     string
}

// NewStatic parses markup into a Static session.
func NewStatic(markup string) (*Static, error) {
	s := &Static{}
	if err := s.Load(markup); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the top document. Handles obtained before Load keep
// pointing at the old tree, as stale handles would in a browser.
func (s *Static) Load(markup string) error {
	doc, err := parseDocument(s, "top", markup, 0)
	if err != nil {
		return err
	}
	s.top = doc
	return nil
}

// MustLoad is Load for hooks and tests that control their markup.
func (s *Static) MustLoad(markup string) {
	if err := s.Load(markup); err != nil {
		panic(err)
	}
}

// Top returns a document that always reflects the most recent Load, the
// way a page handle survives navigation in a browser.
func (s *Static) Top() Document { return liveTop{s} }

type liveTop struct{ s *Static }

func (t liveTop) Name() string { return t.s.top.Name() }
func (t liveTop) Query(selector string) ([]Element, error) { return t.s.top.Query(selector) }
func (t liveTop) Texts(selector string) ([]string, error) { return t.s.top.Texts(selector) }
func (t liveTop) Frames() ([]Document, error) { return t.s.top.Frames() }
func (t liveTop) HTML() (string, error) { return t.s.top.HTML() }

func (s *Static) Navigate(_ context.Context, url string) error {
	s.visited = append(s.visited, url)
	return s.NavigateErr
}

func (s *Static) Screenshot() ([]byte, error) { return nil, ErrUnsupported }

func (s *Static) Close() error {
	s.closed++
	return nil
}

// Clicks returns the interactions recorded so far.
func (s *Static) Clicks() []Click { return append([]Click(nil), s.clicks...) }

// Visited returns every URL passed to Navigate.
func (s *Static) Visited() []string { return append([]string(nil), s.visited...) }

// Closed reports whether Close was called at least once.
func (s *Static) Closed() bool { return s.closed > 0 }

const maxStaticDepth = 8

// StaticDocument is a parsed document inside a Static session.
type StaticDocument struct {
	owner  *Static
	name   string
	doc    *goquery.Document
	frames []*StaticDocument
}

func parseDocument(owner *Static, name, markup string, depth int) (*StaticDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("surface: parse %s: %w", name, err)
	}
	d := &StaticDocument{owner: owner, name: name, doc: doc}
	if depth >= maxStaticDepth {
		return d, nil
	}
	var ferr error
	doc.Find("iframe[srcdoc]").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("srcdoc")
		child := frameName(sel, i)
		if name != "top" {
			child = name + "/" + child
		}
		f, err := parseDocument(owner, child, src, depth+1)
		if err != nil {
			ferr = err
			return false
		}
		d.frames = append(d.frames, f)
		return true
	})
	if ferr != nil {
		return nil, ferr
	}
	return d, nil
}

func frameName(sel *goquery.Selection, i int) string {
	for _, attr := range []string{"id", "name", "title"} {
		if v, ok := sel.Attr(attr); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("frame-%d", i)
}

func (d *StaticDocument) Name() string { return d.name }

func (d *StaticDocument) Query(selector string) ([]Element, error) {
	return wrap(d, d.doc.Find(selector)), nil
}

func (d *StaticDocument) Texts(selector string) ([]string, error) {
	var out []string
	d.doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		el := &StaticElement{doc: d, sel: sel}
		if !el.Visible() {
			return
		}
		if t := el.Text(); t != "" {
			out = append(out, t)
		}
	})
	return out, nil
}

func (d *StaticDocument) Frames() ([]Document, error) {
	out := make([]Document, len(d.frames))
	for i, f := range d.frames {
		out[i] = f
	}
	return out, nil
}

func (d *StaticDocument) HTML() (string, error) {
	return d.doc.Html()
}

// StaticElement is one node of a StaticDocument.
type StaticElement struct {
	doc *StaticDocument
	sel *goquery.Selection
}

func wrap(d *StaticDocument, sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &StaticElement{doc: d, sel: s})
	})
	return out
}

// Document returns the document the element was queried from.
func (e *StaticElement) Document() *StaticDocument { return e.doc }

// Selection exposes the underlying goquery node for click hooks.
func (e *StaticElement) Selection() *goquery.Selection { return e.sel }

func (e *StaticElement) Text() string {
	return strings.Join(strings.Fields(e.sel.Text()), " ")
}

func (e *StaticElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// Visible is false when the node or an ancestor is hidden through the
// hidden attribute, aria-hidden, or an inline display/visibility style.
func (e *StaticElement) Visible() bool {
	if e.sel.Length() == 0 {
		return false
	}
	for n := e.sel.Get(0); n != nil; n = n.Parent {
		if n.Type == html.ElementNode && hiddenNode(n) {
			return false
		}
	}
	return true
}

func hiddenNode(n *html.Node) bool {
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(strings.TrimSpace(a.Val), "true") {
				return true
			}
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}

func (e *StaticElement) Query(selector string) ([]Element, error) {
	return wrap(e.doc, e.sel.Find(selector)), nil
}

func (e *StaticElement) Click() error        { return e.click("direct") }
func (e *StaticElement) ScriptClick() error  { return e.click("script") }
func (e *StaticElement) PointerClick() error { return e.click("pointer") }
func (e *StaticElement) HitTestClick() error { return e.click("hittest") }

func (e *StaticElement) click(tier string) error {
	s := e.doc.owner
	s.clicks = append(s.clicks, Click{Document: e.doc.name, Text: e.Text(), Tier: tier})
	if s.OnClick != nil {
		s.OnClick(e)
	}
	return nil
}
