package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/slotwatch/internal/surface"
)

// document is a page or an iframe's page.
type document struct {
	page    *rod.Page
	name    string
	timeout time.Duration
}

func (d *document) Name() string { return d.name }

func (d *document) Query(selector string) ([]surface.Element, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return d.wrap(els), nil
}

func (d *document) wrap(els rod.Elements) []surface.Element {
	out := make([]surface.Element, len(els))
	for i, el := range els {
		out[i] = &element{el: el, doc: d}
	}
	return out
}

// visibleTexts collects the innerText of visible matches in one round trip.
const visibleTexts = `(sel) => Array.from(document.querySelectorAll(sel))
	.filter(e => {
		const s = getComputedStyle(e);
		return s.display !== 'none' && s.visibility !== 'hidden' && e.getClientRects().length > 0;
	})
	.map(e => (e.innerText || '').replace(/\s+/g, ' ').trim())`

func (d *document) Texts(selector string) ([]string, error) {
	res, err := d.page.Eval(visibleTexts, selector)
	if err != nil {
		return nil, fmt.Errorf("browser: texts %q: %w", selector, err)
	}
	items := res.Value.Arr()
	out := make([]string, 0, len(items))
	for _, v := range items {
		out = append(out, v.Str())
	}
	return out, nil
}

func (d *document) Frames() ([]surface.Document, error) {
	els, err := d.page.Elements("iframe, frame")
	if err != nil {
		return nil, fmt.Errorf("browser: frames: %w", err)
	}
	var out []surface.Document
	for i, el := range els {
		fp, err := el.Frame()
		if err != nil {
			// Detached or cross-origin frames that Chrome will not hand over.
			continue
		}
		name := frameName(i, func(attr string) string {
			v, _ := el.Attribute(attr)
			if v == nil {
				return ""
			}
			return *v
		})
		if d.name != "top" {
			name = d.name + "/" + name
		}
		out = append(out, &document{page: fp, name: name, timeout: d.timeout})
	}
	return out, nil
}

// frameName labels a frame by id, name or title, falling back to its index.
func frameName(i int, attr func(string) string) string {
	for _, a := range []string{"id", "name", "title"} {
		if v := strings.TrimSpace(attr(a)); v != "" {
			return v
		}
	}
	return fmt.Sprintf("frame-%d", i)
}

func (d *document) HTML() (string, error) {
	html, err := d.page.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html: %w", err)
	}
	return html, nil
}

// element is a live DOM node. Every method talks to Chrome.
type element struct {
	el  *rod.Element
	doc *document
}

func (e *element) Text() string {
	t, err := e.el.Text()
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(t), " ")
}

func (e *element) Attr(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *element) Visible() bool {
	ok, err := e.el.Visible()
	return err == nil && ok
}

func (e *element) Query(selector string) ([]surface.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return e.doc.wrap(els), nil
}

func (e *element) Click() error {
	el := e.el.Timeout(e.doc.timeout)
	defer el.CancelTimeout()
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) ScriptClick() error {
	if err := e.el.ScrollIntoView(); err != nil {
		return err
	}
	_, err := e.el.Eval(`() => this.click()`)
	return err
}

func (e *element) PointerClick() error {
	el := e.el.Timeout(e.doc.timeout)
	defer el.CancelTimeout()
	if err := el.Hover(); err != nil {
		return err
	}
	return e.doc.page.Mouse.Click(proto.InputMouseButtonLeft, 1)
}

// HitTestClick clicks whatever sits at the element's visual center, which
// is what a user would hit when an overlay wraps the real control.
func (e *element) HitTestClick() error {
	shape, err := e.el.Shape()
	if err != nil {
		return err
	}
	box := shape.Box()
	if box == nil {
		return fmt.Errorf("browser: element has no box")
	}
	x, y := box.X+box.Width/2, box.Y+box.Height/2
	res, err := e.doc.page.Eval(`(x, y) => {
		const el = document.elementFromPoint(x, y);
		if (!el) return false;
		el.click();
		return true;
	}`, x, y)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return fmt.Errorf("browser: nothing at %.0f,%.0f", x, y)
	}
	return nil
}
