// models/selector.go
package models

import (
	"regexp"
	"strings"
)

var attrSuffix = regexp.MustCompile(`^[A-Za-z_][\w:.-]*$`)

// FieldSelector is a parsed field selector string.
//
//	".site-name"            text of the match
//	"a.detail@href"         attribute of the match (CSS only)
//	".summary|html"         sanitised inner HTML (html only)
//	"//td[2]"               XPath (html/xml)
type FieldSelector struct {
	Expr  string
	Attr  string
	HTML  bool
	XPath bool
}

// IsXPath reports whether an HTML selector should be evaluated as XPath.
func IsXPath(expr string) bool {
	e := strings.TrimSpace(expr)
	return strings.HasPrefix(e, "/") || strings.HasPrefix(e, "(")
}

// ParseFieldSelector splits modifiers off a selector.
func ParseFieldSelector(raw string) FieldSelector {
	s := strings.TrimSpace(raw)
	fs := FieldSelector{}
	if strings.HasSuffix(s, "|html") {
		fs.HTML = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "|html"))
	}
	fs.XPath = IsXPath(s)
	if !fs.XPath {
		if i := strings.LastIndex(s, "@"); i > 0 && attrSuffix.MatchString(s[i+1:]) {
			fs.Attr = s[i+1:]
			s = strings.TrimSpace(s[:i])
		}
	}
	fs.Expr = s
	return fs
}
