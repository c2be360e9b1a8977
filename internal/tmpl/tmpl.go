// Package tmpl renders the small template language used by prompt parts:
// {{path.to.value}} placeholders, {{#each key}}...{{/each}} iteration and
// {{datetime "fmt" "tz"}} clock blocks. Iteration blocks may nest; inside a
// block, this and index refer to the innermost item. Rendering never fails;
// anything that cannot be resolved renders as the empty string.
package tmpl

import (
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	eachOpenRe    = regexp.MustCompile(`^\{\{#each\s+([A-Za-z0-9_.\-]+)\s*\}\}`)
	eachTokenRe   = regexp.MustCompile(`\{\{#each\s+[A-Za-z0-9_.\-]+\s*\}\}|\{\{/each\}\}`)
	datetimeRe    = regexp.MustCompile(`^\{\{\s*datetime(?:\s+"([^"]*)")?(?:\s+"([^"]*)")?\s*\}\}`)
	placeholderRe = regexp.MustCompile(`^\{\{\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*\}\}`)
)

const locationCacheSize = 64

// Renderer renders templates against a data bag. It is safe for concurrent use.
type Renderer struct {
	now       func() time.Time
	locations *lru.Cache[string, *time.Location]
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock overrides the wall clock used by datetime blocks.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	cache, _ := lru.New[string, *time.Location](locationCacheSize)
	r := &Renderer{now: time.Now, locations: cache}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRenderer = New()

// Render renders template with the package default renderer.
func Render(template string, data map[string]any) string {
	return defaultRenderer.Render(template, data)
}

// Render expands the template in a single left-to-right pass. Substituted
// values are written to the output as-is and never scanned for tokens, so
// data containing "{{...}}" survives verbatim.
func (r *Renderer) Render(template string, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	var b strings.Builder
	r.render(&b, template, data)
	return b.String()
}

func (r *Renderer) render(b *strings.Builder, template string, data map[string]any) {
	for {
		i := strings.Index(template, "{{")
		if i < 0 {
			b.WriteString(template)
			return
		}
		b.WriteString(template[:i])
		rest := template[i:]

		if m := eachOpenRe.FindStringSubmatch(rest); m != nil {
			if body, tail, ok := splitEach(rest[len(m[0]):]); ok {
				r.each(b, m[1], body, data)
				template = tail
				continue
			}
		}
		if m := datetimeRe.FindStringSubmatch(rest); m != nil {
			b.WriteString(r.datetime(m[1], m[2]))
			template = rest[len(m[0]):]
			continue
		}
		if m := placeholderRe.FindStringSubmatch(rest); m != nil {
			if value, ok := Lookup(data, m[1]); ok {
				b.WriteString(Stringify(value))
			}
			template = rest[len(m[0]):]
			continue
		}
		b.WriteByte('{')
		template = rest[1:]
	}
}

// splitEach finds the {{/each}} that closes an already consumed opener,
// skipping nested blocks. It returns the block body and the text after it.
func splitEach(s string) (body, tail string, ok bool) {
	depth := 1
	for _, loc := range eachTokenRe.FindAllStringIndex(s, -1) {
		if strings.HasPrefix(s[loc[0]:], "{{/each}}") {
			depth--
		} else {
			depth++
		}
		if depth == 0 {
			return s[:loc[0]], s[loc[1]:], true
		}
	}
	return "", "", false
}

func (r *Renderer) each(b *strings.Builder, key, body string, data map[string]any) {
	value, _ := Lookup(data, key)
	items, ok := asSlice(value)
	if !ok {
		return
	}
	for i, item := range items {
		scope := make(map[string]any, len(data)+2)
		for k, v := range data {
			scope[k] = v
		}
		scope["this"] = item
		scope["index"] = i
		r.render(b, body, scope)
	}
}

func (r *Renderer) datetime(format, zone string) string {
	now := r.now()
	if zone != "" {
		if loc, ok := r.location(zone); ok {
			now = now.In(loc)
		}
	}
	if format == "" {
		format = DefaultDateTimeFormat
	}
	return FormatPattern(now, format)
}

func (r *Renderer) location(zone string) (*time.Location, bool) {
	if loc, ok := r.locations.Get(zone); ok {
		return loc, true
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, false
	}
	r.locations.Add(zone, loc)
	return loc, true
}
