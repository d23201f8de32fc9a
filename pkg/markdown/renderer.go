// Package markdown renders the HTTP status page, which is written as markdown and served
// as sanitized HTML.
package markdown

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	// UGCPolicy allows user-generated content with safe HTML tags
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("code", "pre", "span", "table")
	p.AllowAttrs("id").Matching(bluemonday.SpaceSeparatedTokens).OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return p
}

// RenderToHTML converts markdown text to sanitized HTML. Captured log messages end up
// in the rendered text, so the output is always passed through bluemonday.
func RenderToHTML(markdown string) string {
	unsafeHTML := blackfriday.Run(
		[]byte(markdown),
		blackfriday.WithExtensions(
			blackfriday.CommonExtensions|
				blackfriday.AutoHeadingIDs,
		),
	)
	return string(policy.SanitizeBytes(unsafeHTML))
}

// RenderPage wraps the rendered markdown in a minimal HTML document.
func RenderPage(title, markdown string) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&b, "<title>%s</title>", html.EscapeString(title))
	b.WriteString("<style>body{font-family:sans-serif;margin:2em}td,th{padding:0 .6em;text-align:left}code{white-space:pre}</style>")
	b.WriteString("</head><body>\n")
	b.WriteString(RenderToHTML(markdown))
	b.WriteString("</body></html>\n")
	return b.String()
}

var cellEscaper = strings.NewReplacer(
	"|", "\\|",
	"\\", "\\\\",
	"`", "\\`",
	"*", "\\*",
	"_", "\\_",
	"[", "\\[",
	"]", "\\]",
	"<", "&lt;",
	">", "&gt;",
	"\r", "",
	"\n", " ",
	"\t", " ",
)

// EscapeCell makes arbitrary text safe to place in a markdown table cell.
func EscapeCell(text string) string {
	return cellEscaper.Replace(text)
}
