// Package surface is the boundary between the scraper and whatever renders
// the target page. The live implementation drives Chrome (internal/browser);
// Static replays saved markup for tests and offline debugging.
//
// Element handles are only valid until the next interaction that may
// re-render the page. Callers re-query instead of caching them.
package surface

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by operations a surface cannot perform,
// such as screenshots of static markup.
var ErrUnsupported = errors.New("surface: unsupported")

// Element is one node of a rendered document.
type Element interface {
	// Text is the rendered text with whitespace collapsed.
	Text() string
	Attr(name string) (string, bool)
	Visible() bool
	Query(selector string) ([]Element, error)

	// Click tiers, from the most to the least natural interaction.
	Click() error
	ScriptClick() error
	PointerClick() error
	HitTestClick() error
}

// Document is a rendering context: the top page or an embedded frame.
type Document interface {
	Name() string
	Query(selector string) ([]Element, error)
	// Texts returns the rendered text of every visible match, in document order.
	Texts(selector string) ([]string, error)
	// Frames lists the directly embedded documents, in document order.
	Frames() ([]Document, error)
	HTML() (string, error)
}

// Session is one exclusive automation session. Close releases it and is
// safe to call more than once.
type Session interface {
	Top() Document
	Navigate(ctx context.Context, url string) error
	Screenshot() ([]byte, error)
	Close() error
}
