package checksum

import "testing"

func TestBody(t *testing.T) {
	// sha256("hello")
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Body("hello"); got != want {
		t.Errorf("Body = %q, want %q", got, want)
	}
	if got := ETag("hello"); got != `"`+want+`"` {
		t.Errorf("ETag = %q", got)
	}
}

func TestMatches(t *testing.T) {
	sum := Body("body")
	for _, expected := range []string{sum, `"` + sum + `"`, `W/"` + sum + `"`, " " + sum + " "} {
		if !Matches(expected, "body") {
			t.Errorf("Matches(%q) = false, want true", expected)
		}
	}
	if Matches(sum, "other") {
		t.Error("stale checksum should not match")
	}
	if Matches("", "body") {
		t.Error("empty checksum should not match")
	}
}
