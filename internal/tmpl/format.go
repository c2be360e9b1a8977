package tmpl

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultDateTimeFormat renders like 2024-05-01T14:03:09+02:00.
const DefaultDateTimeFormat = "yyyy-MM-dd'T'HH:mm:ssXXX"

// FormatPattern formats t with an LDML-style pattern (yyyy, MM, dd, HH, mm,
// ss, SSS, EEE, a, XXX, ...). Text inside single quotes is copied verbatim and
// '' produces a literal apostrophe. Unrecognised letters are copied as-is.
func FormatPattern(t time.Time, pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		c := runes[i]
		if c == '\'' {
			if i+1 < len(runes) && runes[i+1] == '\'' {
				b.WriteRune('\'')
				i += 2
				continue
			}
			j := i + 1
			for j < len(runes) {
				if runes[j] == '\'' {
					if j+1 < len(runes) && runes[j+1] == '\'' {
						b.WriteRune('\'')
						j += 2
						continue
					}
					break
				}
				b.WriteRune(runes[j])
				j++
			}
			i = j + 1
			continue
		}
		if !isPatternLetter(c) {
			b.WriteRune(c)
			i++
			continue
		}
		n := 1
		for i+n < len(runes) && runes[i+n] == c {
			n++
		}
		b.WriteString(field(t, c, n))
		i += n
	}
	return b.String()
}

func isPatternLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func field(t time.Time, c rune, n int) string {
	switch c {
	case 'y':
		if n == 2 {
			return pad(t.Year()%100, 2)
		}
		return pad(t.Year(), n)
	case 'M':
		switch {
		case n >= 4:
			return t.Month().String()
		case n == 3:
			return t.Month().String()[:3]
		}
		return pad(int(t.Month()), n)
	case 'd':
		return pad(t.Day(), n)
	case 'E':
		if n >= 4 {
			return t.Weekday().String()
		}
		return t.Weekday().String()[:3]
	case 'H':
		return pad(t.Hour(), n)
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		return pad(h, n)
	case 'm':
		return pad(t.Minute(), n)
	case 's':
		return pad(t.Second(), n)
	case 'S':
		frac := fmt.Sprintf("%09d", t.Nanosecond())
		if n > 9 {
			return frac + strings.Repeat("0", n-9)
		}
		return frac[:n]
	case 'a':
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case 'X', 'x':
		_, offset := t.Zone()
		if c == 'X' && offset == 0 {
			return "Z"
		}
		return formatOffset(offset, n)
	case 'Z':
		_, offset := t.Zone()
		return formatOffset(offset, 2)
	case 'z':
		name, _ := t.Zone()
		return name
	}
	return strings.Repeat(string(c), n)
}

func pad(v, width int) string {
	s := strconv.Itoa(v)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// formatOffset renders a UTC offset: n=1 "+02", n=2 "+0200", n>=3 "+02:00".
func formatOffset(seconds, n int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	h, m := seconds/3600, (seconds%3600)/60
	switch n {
	case 1:
		if m == 0 {
			return sign + pad(h, 2)
		}
		return sign + pad(h, 2) + pad(m, 2)
	case 2:
		return sign + pad(h, 2) + pad(m, 2)
	}
	return sign + pad(h, 2) + ":" + pad(m, 2)
}
