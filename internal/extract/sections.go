package extract

import (
	"regexp"
	"strings"
)

// sectionSpec names a heading family. kw must match a whole heading part
// (see headingParts) after normalization.
type sectionSpec struct {
	name string
	kw   *regexp.Regexp
}

func section(name, keywords string) sectionSpec {
	return sectionSpec{name: name, kw: regexp.MustCompile(`^(?:` + keywords + `)$`)}
}

// document keeps the raw lines next to their normalized form so headings are
// matched case and accent insensitively while items keep their original text.
type document struct {
	raw  []string
	norm []string
}

func newDocument(text string) document {
	raw := splitLines(text)
	n := make([]string, len(raw))
	for i, l := range raw {
		n[i] = normalizeLine(l)
	}
	return document{raw: raw, norm: n}
}

var (
	headingLead   = regexp.MustCompile(`^[#>*_\-•\s]*(?:\d+[.)]\s*)?[*_\s]*`)
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	headingSplit  = regexp.MustCompile(`\s*[/|]\s*`)
	bulletLine    = regexp.MustCompile(`^\s*(?:[-•*+]|\d+[.)])\s+(.*\S)`)
	bulletMark    = regexp.MustCompile(`^\s*[-•*+]\s+(.*\S)`)
)

// listEntry reports whether a bullet-led line reads as an item rather than a
// heading. A bulleted heading ends at its colon or is a bold label.
func listEntry(normLine string) bool {
	m := bulletMark.FindStringSubmatch(normLine)
	if m == nil {
		return false
	}
	if _, rest, ok := strings.Cut(m[1], ":"); ok {
		return strings.Trim(rest, "*_ ") != ""
	}
	return !strings.HasPrefix(m[1], "**")
}

// headingParts returns the label parts of a candidate heading line: the text
// before its first colon, split on '/' and '|', without parentheticals.
// "**pontos fortes / strengths:**" yields ["pontos fortes", "strengths"].
func headingParts(normLine string) []string {
	s := headingLead.ReplaceAllString(normLine, "")
	head, _, _ := strings.Cut(s, ":")
	head = parenthetical.ReplaceAllString(head, " ")
	head = strings.Trim(head, "*_# ")
	if head == "" {
		return nil
	}
	var parts []string
	for _, p := range headingSplit.Split(head, -1) {
		if p = strings.Trim(p, "*_ "); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// match reports which spec, if any, every part of the heading belongs to.
func match(specs []sectionSpec, parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	for _, sp := range specs {
		all := true
		for _, p := range parts {
			if !sp.kw.MatchString(p) {
				all = false
				break
			}
		}
		if all {
			return sp.name
		}
	}
	return ""
}

// sections locates the first heading of each spec and returns, per name, the
// raw lines that follow it up to the next recognized heading or markdown
// heading. Text after the heading's colon, when present, is the first line.
func (d document) sections(specs []sectionSpec) map[string][]string {
	type hit struct {
		name string
		line int
	}
	var hits []hit
	boundary := make([]bool, len(d.norm))
	for i, n := range d.norm {
		if strings.HasPrefix(n, "#") {
			boundary[i] = true
		}
		if listEntry(n) {
			continue
		}
		if name := match(specs, headingParts(n)); name != "" {
			boundary[i] = true
			hits = append(hits, hit{name, i})
		}
	}

	out := make(map[string][]string)
	for _, h := range hits {
		if _, seen := out[h.name]; seen {
			continue
		}
		var span []string
		if _, rest, ok := strings.Cut(d.raw[h.line], ":"); ok {
			if rest = cleanItem(rest); rest != "" {
				span = append(span, rest)
			}
		}
		for j := h.line + 1; j < len(d.raw) && !boundary[j]; j++ {
			span = append(span, d.raw[j])
		}
		out[h.name] = span
	}
	return out
}

// listItems returns the bullet items of lines, or every non-empty line when
// none is a bullet.
func listItems(lines []string) []string {
	var bullets, plain []string
	for _, l := range lines {
		if m := bulletLine.FindStringSubmatch(l); m != nil {
			if it := cleanItem(m[1]); it != "" {
				bullets = append(bullets, it)
			}
			continue
		}
		if it := cleanItem(l); it != "" {
			plain = append(plain, it)
		}
	}
	if len(bullets) > 0 {
		return bullets
	}
	return plain
}

// paragraph joins the first run of non-empty lines with single spaces.
func paragraph(lines []string) string {
	var parts []string
	for _, l := range lines {
		it := cleanItem(l)
		if it == "" {
			if len(parts) > 0 {
				break
			}
			continue
		}
		if m := bulletLine.FindStringSubmatch(l); m != nil {
			it = cleanItem(m[1])
		}
		parts = append(parts, it)
	}
	return strings.Join(parts, " ")
}

func cleanItem(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(horizontalSpace.ReplaceAllString(s, " "))
}

func orDefault(items, def []string) []string {
	if len(items) > 0 {
		return items
	}
	return append([]string(nil), def...)
}

func orDefaultString(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
