package profiles

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// templateFields is what the markdown parser extracts from one template
// file. Parsing is explicitly best-effort: the files are human-authored.
type templateFields struct {
	Name        string
	Title       string
	Emoji       string
	Vibe        string
	Greeting    string
	Voice       string
	Permissions ToolPermissions
}

// fieldAliases maps marker/heading labels (lowercased, colon stripped) to
// the profile field they populate.
var fieldAliases = map[string]string{
	"name":        "name",
	"title":       "title",
	"role":        "title",
	"emoji":       "emoji",
	"vibe":        "vibe",
	"personality": "vibe",
	"greeting":    "greeting",
	"voice":       "voice",
	"tone":        "voice",
}

// permissionHeadings maps section headings to the permission list they fill.
var permissionHeadings = map[string]string{
	"allowed tools": "allow",
	"tools":         "allow",
	"denied tools":  "deny",
	"forbidden tools": "deny",
}

var markdown = goldmark.New()

// parseTemplate extracts structured fields from a SOUL/IDENTITY/AGENTS
// document. Explicit **Field:** markers take precedence; section headings
// fill anything the markers left empty.
func parseTemplate(source []byte) templateFields {
	var f templateFields

	root := markdown.Parser().Parse(text.NewReader(source))

	var section string // current heading, lowercased
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			section = strings.ToLower(strings.TrimSpace(nodeText(node, source)))
		case *ast.Paragraph:
			if markers := parseMarkers(node, source); len(markers) > 0 {
				for _, kv := range markers {
					setField(&f, kv[0], kv[1], true)
				}
				return ast.WalkSkipChildren, nil
			}
			// A paragraph directly under a recognised heading fills that
			// field if no marker already did.
			line := strings.TrimSpace(nodeText(node, source))
			if field, ok := fieldAliases[strings.TrimSuffix(section, ":")]; ok && line != "" {
				setField(&f, field, firstLine(line), false)
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			listKind, ok := permissionHeadings[section]
			if !ok {
				return ast.WalkContinue, nil
			}
			item := strings.TrimSpace(nodeText(node, source))
			if item == "" {
				return ast.WalkSkipChildren, nil
			}
			item = strings.Fields(item)[0] // tool names are single tokens
			if listKind == "allow" {
				f.Permissions.Allow = append(f.Permissions.Allow, item)
			} else {
				f.Permissions.Deny = append(f.Permissions.Deny, item)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return f
}

// parseMarkers extracts every `**Field:** value` marker from a paragraph.
// Adjacent marker lines share one paragraph node, so a marker's value runs
// from its emphasis label to the next line break.
func parseMarkers(p *ast.Paragraph, source []byte) [][2]string {
	var out [][2]string
	var field string
	var val strings.Builder
	atLineStart := true

	flush := func() {
		if field != "" {
			v := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(val.String()), ":"))
			if v != "" {
				out = append(out, [2]string{field, v})
			}
		}
		field = ""
		val.Reset()
	}

	for n := p.FirstChild(); n != nil; n = n.NextSibling() {
		if em, ok := n.(*ast.Emphasis); ok && em.Level == 2 && atLineStart {
			label := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(nodeText(em, source), ":")))
			if known, ok := fieldAliases[label]; ok {
				flush()
				field = known
				atLineStart = false
				continue
			}
		}
		val.WriteString(nodeText(n, source))
		if t, ok := n.(*ast.Text); ok && (t.SoftLineBreak() || t.HardLineBreak()) {
			flush()
			atLineStart = true
			continue
		}
		atLineStart = false
	}
	flush()
	return out
}

// setField writes one extracted value. Marker-sourced values overwrite;
// heading-sourced values only fill gaps.
func setField(f *templateFields, field, value string, fromMarker bool) {
	target := map[string]*string{
		"name":     &f.Name,
		"title":    &f.Title,
		"emoji":    &f.Emoji,
		"vibe":     &f.Vibe,
		"greeting": &f.Greeting,
		"voice":    &f.Voice,
	}[field]
	if target == nil {
		return
	}
	if fromMarker || *target == "" {
		*target = value
	}
}

// nodeText collects the raw text under a node.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
