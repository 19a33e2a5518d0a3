// Package render produces the kiosk status page: one self-contained HTML
// file with the QR code and logo inlined as data URIs.
package render

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/hazyhaar/slotwatch/appointment"
)

//go:embed page.html.tmpl
var pageTmplText string

var pageTmpl = template.Must(template.New("page").Parse(pageTmplText))

// BannerMarker is the text that identifies an injected update banner.
const BannerMarker = "UPDATE REQUIRED"

const bannerHTML = `<div class="update-banner" style="position:fixed;top:0;left:0;width:100vw;padding:60px 0;background:#fffbe6;z-index:9999;text-align:center;border-bottom:6px solid #ff0000;font-size:5vw;font-weight:bold;color:#cc0000;">&#x1F6A8; ` + BannerMarker + ` &ndash; UPDATING AUTOMATICALLY &#x1F6A8;</div>`

// DefaultFooter is shown when no footer is configured.
const DefaultFooter = `<p>For appointments further out, please visit our website or scan the QR code above.</p>`

// Options configure a Renderer.
type Options struct {
	// Title may contain {store}, replaced by the store number.
	Title          string
	Subtitle       string
	FooterHTML     string
	LogoFiles      []string
	RefreshSeconds int
	QRSize         int
}

func (o *Options) defaults() {
	if o.Title == "" {
		o.Title = "Target Optical – Store #{store}"
	}
	if o.Subtitle == "" {
		o.Subtitle = "Appointment Availability"
	}
	if o.FooterHTML == "" {
		o.FooterHTML = DefaultFooter
	}
	if len(o.LogoFiles) == 0 {
		o.LogoFiles = []string{"logo.png", "logo.jpeg", "logo.jpg"}
	}
	if o.QRSize <= 0 {
		o.QRSize = 256
	}
}

// Page is everything one render needs.
type Page struct {
	Store      string
	BookingURL string
	Days       []appointment.Day
	Today      time.Time
	Updated    time.Time
	Banner     bool

	// Notice is printed small under the update time, for runs that did not
	// complete.
	Notice string
}

// Renderer turns a Page into HTML.
type Renderer struct {
	opts   Options
	footer template.HTML
}

// New creates a Renderer. The footer is sanitised once, here.
func New(opts Options) *Renderer {
	opts.defaults()
	policy := bluemonday.UGCPolicy()
	return &Renderer{
		opts:   opts,
		footer: template.HTML(policy.Sanitize(opts.FooterHTML)),
	}
}

var partHeadings = map[appointment.DayPart]string{
	appointment.Morning:   "🌅 Morning",
	appointment.Afternoon: "☀️ Afternoon",
	appointment.Evening:   "🌙 Evening",
}

type slotView struct {
	Label string
	Blink bool
}

type partView struct {
	Heading string
	Slots   []slotView
}

type cardView struct {
	Label     string
	Providers string
	Parts     []partView
}

type pageView struct {
	Title        string
	Subtitle     string
	Availability string
	Updated      string
	Notice       string
	QR           template.URL
	Logo         template.URL
	Cards        []cardView
	Footer       template.HTML
	Refresh      int
	Banner       bool
	BannerHTML   template.HTML
}

// Render executes the page template.
func (r *Renderer) Render(p Page) ([]byte, error) {
	v := pageView{
		Title:      strings.ReplaceAll(r.opts.Title, "{store}", p.Store),
		Subtitle:   r.opts.Subtitle,
		Updated:    p.Updated.Format("Monday, January 02, 2006 03:04 PM"),
		Notice:     p.Notice,
		Footer:     r.footer,
		Refresh:    r.opts.RefreshSeconds,
		Banner:     p.Banner,
		BannerHTML: template.HTML(bannerHTML),
	}
	if len(p.Days) == 0 {
		v.Availability = "No appointments found"
	} else {
		v.Availability = "Appointments available as soon as " + appointment.Availability(p.Days, p.Today)
	}

	if p.BookingURL != "" {
		png, err := qrcode.Encode(p.BookingURL, qrcode.Medium, r.opts.QRSize)
		if err != nil {
			return nil, fmt.Errorf("render: qr code: %w", err)
		}
		v.QR = dataURI("image/png", png)
	}
	if uri, ok := r.logo(); ok {
		v.Logo = uri
	}

	blinked := false
	for _, d := range p.Days {
		card := cardView{Label: d.Label(), Providers: d.ProviderLine()}
		for _, part := range appointment.DayParts {
			pv := partView{Heading: partHeadings[part]}
			for _, label := range d.Slots[part] {
				pv.Slots = append(pv.Slots, slotView{Label: label, Blink: !blinked})
				blinked = true
			}
			card.Parts = append(card.Parts, pv)
		}
		v.Cards = append(v.Cards, card)
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render: execute: %w", err)
	}
	return buf.Bytes(), nil
}

// logo loads the first configured logo file that exists.
func (r *Renderer) logo() (template.URL, bool) {
	for _, path := range r.opts.LogoFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		mime := "image/jpeg"
		if strings.EqualFold(filepath.Ext(path), ".png") {
			mime = "image/png"
		}
		return dataURI(mime, data), true
	}
	return "", false
}

func dataURI(mime string, data []byte) template.URL {
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}

// WriteFile replaces path atomically so a kiosk browser reloading the
// page never reads a half-written file.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("render: create temp: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("render: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("render: close: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("render: chmod: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("render: rename: %w", err)
	}
	return nil
}

// InjectBanner adds the update banner to an already written page. A page
// that already carries the banner is left alone.
func InjectBanner(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("render: read page: %w", err)
	}
	page := string(data)
	if strings.Contains(page, BannerMarker) {
		return nil
	}
	if !strings.Contains(page, "<body>") {
		return fmt.Errorf("render: no <body> in %s", path)
	}
	page = strings.Replace(page, "<body>", "<body>"+bannerHTML, 1)
	return WriteFile(path, []byte(page))
}
