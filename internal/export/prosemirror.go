package export

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// RichTextToHTML converts a stored note document to HTML. Unknown nodes render
// their children; malformed documents render as nothing.
func RichTextToHTML(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return ""
	}
	return renderNode(root)
}

func renderNode(node map[string]any) string {
	nodeType, _ := node["type"].(string)

	switch nodeType {
	case "":
		return ""
	case "doc":
		return renderContent(node["content"])
	case "paragraph":
		return fmt.Sprintf("<p>%s</p>\n", renderContent(node["content"]))
	case "heading":
		level := 3
		if attrs, ok := node["attrs"].(map[string]any); ok {
			if lvl, ok := attrs["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
				level = int(lvl)
			}
		}
		return fmt.Sprintf("<h%d>%s</h%d>\n", level, renderContent(node["content"]), level)
	case "bulletList":
		return fmt.Sprintf("<ul>\n%s</ul>\n", renderContent(node["content"]))
	case "orderedList":
		return fmt.Sprintf("<ol>\n%s</ol>\n", renderContent(node["content"]))
	case "listItem":
		return fmt.Sprintf("<li>%s</li>\n", renderContent(node["content"]))
	case "blockquote":
		return fmt.Sprintf("<blockquote>\n%s</blockquote>\n", renderContent(node["content"]))
	case "codeBlock":
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", renderContent(node["content"]))
	case "text":
		text, _ := node["text"].(string)
		marks, _ := node["marks"].([]any)
		return renderTextWithMarks(text, marks)
	case "hardBreak":
		return "<br>"
	case "horizontalRule":
		return "<hr>\n"
	default:
		return renderContent(node["content"])
	}
}

func renderContent(content any) string {
	items, ok := content.([]any)
	if !ok {
		return ""
	}
	var result strings.Builder
	for _, item := range items {
		if node, ok := item.(map[string]any); ok {
			result.WriteString(renderNode(node))
		}
	}
	return result.String()
}

func renderTextWithMarks(text string, marks []any) string {
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)

	// innermost mark is the last one
	for i := len(marks) - 1; i >= 0; i-- {
		mark, ok := marks[i].(map[string]any)
		if !ok {
			continue
		}
		switch mark["type"] {
		case "bold":
			out = "<strong>" + out + "</strong>"
		case "italic":
			out = "<em>" + out + "</em>"
		case "code":
			out = "<code>" + out + "</code>"
		case "strike":
			out = "<s>" + out + "</s>"
		case "underline":
			out = "<u>" + out + "</u>"
		case "link":
			attrs, _ := mark["attrs"].(map[string]any)
			href, _ := attrs["href"].(string)
			if safeHref(href) {
				out = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), out)
			}
		}
	}
	return out
}

func safeHref(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "mailto:")
}
