// scraper/html.go
package scraper

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/gewnthar/envscrape/models"
)

// htmlDoc evaluates CSS selectors with goquery and XPath selectors with htmlquery
// over the same parsed tree.
type htmlDoc struct {
	doc       *goquery.Document
	sanitizer *bluemonday.Policy
}

func (x *Extractor) parseHTML(content []byte) (document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, parseError("invalid HTML", err)
	}
	return &htmlDoc{doc: doc, sanitizer: x.sanitizer}, nil
}

// selectIn returns the nodes under scope matching expr.
func (d *htmlDoc) selectIn(scope *goquery.Selection, expr string) ([]*html.Node, error) {
	if models.IsXPath(expr) {
		var out []*html.Node
		for _, n := range scope.Nodes {
			found, err := htmlquery.QueryAll(n, strings.TrimSpace(expr))
			if err != nil {
				return nil, models.NewError(models.KindInvalidConfiguration, "invalid XPath "+expr, err)
			}
			out = append(out, found...)
		}
		return out, nil
	}
	return scope.Find(expr).Nodes, nil
}

// values returns one entry per matched node, "" for nodes with no text.
func (d *htmlDoc) values(scope *goquery.Selection, fs models.FieldSelector) ([]string, error) {
	nodes, err := d.selectIn(scope, fs.Expr)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range nodes {
		sel := goquery.NewDocumentFromNode(n).Selection
		var v string
		switch {
		case fs.Attr != "":
			v, _ = sel.Attr(fs.Attr)
			v = strings.TrimSpace(v)
		case fs.HTML:
			inner, err := sel.Html()
			if err != nil {
				return nil, parseError("rendering "+fs.Expr, err)
			}
			v = strings.TrimSpace(d.sanitizer.Sanitize(inner))
		default:
			v = collapse(sel.Text())
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *htmlDoc) records(cfg models.ParserConfig) ([]rawRecord, error) {
	root := d.doc.Selection
	if cfg.RecordSelector == "" {
		fields := make(map[string][]string, len(cfg.Selectors))
		for name, raw := range cfg.Selectors {
			vals, err := d.values(root, models.ParseFieldSelector(raw))
			if err != nil {
				return nil, err
			}
			fields[name] = vals
		}
		return zip(fields), nil
	}

	scopes, err := d.selectIn(root, cfg.RecordSelector)
	if err != nil {
		return nil, err
	}
	out := make([]rawRecord, 0, len(scopes))
	for _, n := range scopes {
		scope := goquery.NewDocumentFromNode(n).Selection
		rec := rawRecord{}
		for name, raw := range cfg.Selectors {
			vals, err := d.values(scope, models.ParseFieldSelector(raw))
			if err != nil {
				return nil, err
			}
			if v := matchValue(nonEmpty(vals)); v != nil {
				rec[name] = v
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *htmlDoc) count(scope, selector string) (int, error) {
	fs := models.ParseFieldSelector(selector)
	scopes := []*html.Node{d.doc.Selection.Nodes[0]}
	if scope != "" {
		var err error
		if scopes, err = d.selectIn(d.doc.Selection, scope); err != nil {
			return 0, err
		}
	}
	n := 0
	for _, s := range scopes {
		nodes, err := d.selectIn(goquery.NewDocumentFromNode(s).Selection, fs.Expr)
		if err != nil {
			return 0, err
		}
		n += len(nodes)
	}
	return n, nil
}

func (d *htmlDoc) trigger(selector string) (bool, string, error) {
	nodes, err := d.selectIn(d.doc.Selection, selector)
	if err != nil || len(nodes) == 0 {
		return false, "", err
	}
	sel := goquery.NewDocumentFromNode(nodes[0]).Selection
	for _, attr := range []string{"href", "data-url", "data-href"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(strings.TrimSpace(v), "#") {
			return true, v, nil
		}
	}
	return true, "", nil
}
