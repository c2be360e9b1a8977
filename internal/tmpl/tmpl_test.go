package tmpl

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 5, 1, 12, 3, 9, 0, time.UTC) }
}

func TestRender_LiteralUnchanged(t *testing.T) {
	in := "Plain text with { braces } and no tokens."
	assert.Equal(t, in, Render(in, nil))
	assert.Equal(t, in, Render(in, map[string]any{}))
}

func TestRender_Placeholders(t *testing.T) {
	data := map[string]any{
		"name":  "Ada",
		"count": 3,
		"ratio": 0.5,
		"ok":    true,
		"nil":   nil,
		"user":  map[string]any{"profile": map[string]any{"city": "Paris"}},
		"tags":  []string{"a", "b"},
		"vars":  map[string]string{"tone": "dry"},
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string", "hi {{name}}", "hi Ada"},
		{"spaces", "hi {{ name }}", "hi Ada"},
		{"int", "{{count}}", "3"},
		{"float", "{{ratio}}", "0.5"},
		{"bool", "{{ok}}", "true"},
		{"nil", "[{{nil}}]", "[]"},
		{"nested", "{{user.profile.city}}", "Paris"},
		{"missing", "[{{a.b.c}}]", "[]"},
		{"through scalar", "[{{name.first}}]", "[]"},
		{"json array", "{{tags}}", `["a","b"]`},
		{"json object", "{{user.profile}}", `{"city":"Paris"}`},
		{"slice index", "{{tags.1}}", "b"},
		{"string map", "{{vars.tone}}", "dry"},
		{"extra brace", "{{{name}}}", "{Ada}"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Render(tc.in, data))
		})
	}
}

func TestRender_MissingPathOnEmptyData(t *testing.T) {
	assert.Equal(t, "before  after", Render("before {{a.b.c}} after", map[string]any{}))
}

func TestRender_Each(t *testing.T) {
	data := map[string]any{
		"prefix": "-",
		"items": []any{
			map[string]any{"slug": "alpha"},
			map[string]any{"slug": "beta"},
		},
		"empty":  []any{},
		"scalar": "nope",
	}

	assert.Equal(t, "-0:alpha;-1:beta;", Render("{{#each items}}{{prefix}}{{index}}:{{this.slug}};{{/each}}", data))
	assert.Equal(t, "", Render("{{#each empty}}X{{/each}}", data))
	assert.Equal(t, "ab", Render("a{{#each scalar}}X{{/each}}b", data))
	assert.Equal(t, "", Render("{{#each missing}}X{{/each}}", data))
	assert.Equal(t, "", Render("{{#each xs}}X{{/each}}", map[string]any{"xs": []any{}}))
}

func TestRender_EachTypedSlice(t *testing.T) {
	got := Render("{{#each names}}<{{this}}>{{/each}}", map[string]any{"names": []string{"x", "y"}})
	assert.Equal(t, "<x><y>", got)
}

func TestRender_EachResolvesDatetimePerIteration(t *testing.T) {
	r := New(WithClock(fixedClock()))
	got := r.Render(`{{#each xs}}{{datetime "HH:mm"}} {{/each}}`, map[string]any{"xs": []int{1, 2}})
	assert.Equal(t, "12:03 12:03 ", got)
}

func TestRender_EachOutputIsNotRescanned(t *testing.T) {
	r := New(WithClock(fixedClock()))
	data := map[string]any{
		"vars":  map[string]any{"x": "filled"},
		"notes": []any{map[string]any{"body": "use {{user.name}}, {{vars.x}} and {{datetime}}"}},
	}
	got := r.Render("{{#each notes}}[{{this.body}}]{{/each}} {{vars.x}}", data)
	assert.Equal(t, "[use {{user.name}}, {{vars.x}} and {{datetime}}] filled", got)
}

func TestRender_PlaceholderValueIsNotRescanned(t *testing.T) {
	got := Render("{{a}}|{{b}}", map[string]any{"a": "{{b}}", "b": "B"})
	assert.Equal(t, "{{b}}|B", got)
}

func TestRender_NestedEach(t *testing.T) {
	data := map[string]any{
		"groups": []any{
			map[string]any{"name": "g1", "items": []any{"a", "b"}},
			map[string]any{"name": "g2", "items": []any{"c"}},
		},
	}
	got := Render("{{#each groups}}{{this.name}}:{{#each this.items}}{{this}}{{/each}};{{/each}}", data)
	assert.Equal(t, "g1:ab;g2:c;", got)
}

func TestRender_UnclosedEachStaysLiteral(t *testing.T) {
	in := "{{#each xs}}open"
	assert.Equal(t, in, Render(in, map[string]any{"xs": []any{1}}))
}

func TestRender_Datetime(t *testing.T) {
	r := New(WithClock(fixedClock()))

	assert.Equal(t, "2024-05-01T12:03:09Z", r.Render("{{datetime}}", nil))
	assert.Equal(t, "01/05/2024", r.Render(`{{datetime "dd/MM/yyyy"}}`, nil))
	assert.Equal(t, "2024-05-01 14:03 +02:00", r.Render(`{{datetime "yyyy-MM-dd HH:mm XXX" "Europe/Paris"}}`, nil))
	assert.Equal(t, "12:03", r.Render(`{{datetime "HH:mm" "Not/AZone"}}`, nil))
	assert.Equal(t, "Wednesday, May 1 at 12 PM", r.Render(`{{datetime "EEEE, MMMM d 'at' h a"}}`, nil))
}

func TestFormatPattern(t *testing.T) {
	loc := time.FixedZone("X", -(5*3600 + 30*60))
	ts := time.Date(2023, 1, 9, 7, 5, 3, 123456789, loc)

	tests := []struct {
		pattern string
		want    string
	}{
		{"yyyy-MM-dd", "2023-01-09"},
		{"yy", "23"},
		{"MMM", "Jan"},
		{"HH:mm:ss.SSS", "07:05:03.123"},
		{"XXX", "-05:30"},
		{"Z", "-0530"},
		{"'o''clock' h", "o'clock 7"},
		{"'It''s'", "It's"},
	}
	for _, tc := range tests {
		t.Run(tc.pattern, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatPattern(ts, tc.pattern))
		})
	}
}
