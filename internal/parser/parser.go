// Package parser converts archive entries to and from Markdown documents with
// YAML frontmatter.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Document is an entry as stored in a Markdown vault file.
type Document struct {
	Entity string
	Slug   string
	Tags   []string
	Body   string
	// Links are the [[target]] wikilinks found in Body, deduplicated.
	Links []string
}

type frontmatter struct {
	Entity string   `yaml:"entity,omitempty"`
	Title  string   `yaml:"title,omitempty"`
	Slug   string   `yaml:"slug,omitempty"`
	Tags   []string `yaml:"tags,omitempty"`
}

// Parse splits raw Markdown into a Document. The entity comes from the
// frontmatter "entity" (or "title") field, falling back to the first H1.
// Inline #tags are merged with frontmatter tags.
func Parse(data []byte) (*Document, error) {
	fm, body := splitFrontmatter(data)

	doc := &Document{
		Entity: strings.TrimSpace(fm.Entity),
		Slug:   strings.TrimSpace(fm.Slug),
		Body:   body,
		Links:  extractLinks(body),
		Tags:   extractTags(body, fm.Tags),
	}
	if doc.Entity == "" {
		doc.Entity = deriveTitle(fm.Title, body)
	}
	return doc, nil
}

// Render writes doc as frontmatter plus body.
func Render(doc Document) ([]byte, error) {
	fm, err := yaml.Marshal(frontmatter{Entity: doc.Entity, Slug: doc.Slug, Tags: doc.Tags})
	if err != nil {
		return nil, fmt.Errorf("parser: render frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(doc.Body)
	if doc.Body != "" && !strings.HasSuffix(doc.Body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- lines)
// from the body. Without frontmatter, or when it is not valid YAML, the
// whole input is body.
func splitFrontmatter(data []byte) (frontmatter, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return frontmatter{}, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return frontmatter{}, string(data)
	}

	block := rest[:idx]
	after := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(after), "\n\r")

	var fm frontmatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return frontmatter{}, string(data)
	}
	return fm, body
}

// extractLinks returns deduplicated wikilink targets; [[target|alias]]
// yields target.
func extractLinks(body string) []string {
	matches := wikilinkRe.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		target, _, _ := strings.Cut(m[1], "|")
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

func extractTags(body string, fmTags []string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range fmTags {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

func deriveTitle(title, body string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
