// scraper/xml.go
package scraper

import (
	"bytes"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/gewnthar/envscrape/models"
)

type xmlDoc struct {
	root *xmlquery.Node
}

func parseXML(content []byte) (document, error) {
	root, err := xmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, parseError("invalid XML", err)
	}
	return &xmlDoc{root: root}, nil
}

func (d *xmlDoc) query(scope *xmlquery.Node, expr string) ([]*xmlquery.Node, error) {
	nodes, err := xmlquery.QueryAll(scope, strings.TrimSpace(expr))
	if err != nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "invalid XPath "+expr, err)
	}
	return nodes, nil
}

func (d *xmlDoc) values(scope *xmlquery.Node, expr string) ([]string, error) {
	nodes, err := d.query(scope, expr)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = collapse(n.InnerText())
	}
	return out, nil
}

func (d *xmlDoc) records(cfg models.ParserConfig) ([]rawRecord, error) {
	if cfg.RecordSelector == "" {
		fields := make(map[string][]string, len(cfg.Selectors))
		for name, expr := range cfg.Selectors {
			vals, err := d.values(d.root, expr)
			if err != nil {
				return nil, err
			}
			fields[name] = vals
		}
		return zip(fields), nil
	}

	scopes, err := d.query(d.root, cfg.RecordSelector)
	if err != nil {
		return nil, err
	}
	out := make([]rawRecord, 0, len(scopes))
	for _, scope := range scopes {
		rec := rawRecord{}
		for name, expr := range cfg.Selectors {
			vals, err := d.values(scope, expr)
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

func (d *xmlDoc) count(scope, selector string) (int, error) {
	scopes := []*xmlquery.Node{d.root}
	if scope != "" {
		var err error
		if scopes, err = d.query(d.root, scope); err != nil {
			return 0, err
		}
	}
	n := 0
	for _, s := range scopes {
		nodes, err := d.query(s, selector)
		if err != nil {
			return 0, err
		}
		n += len(nodes)
	}
	return n, nil
}

func (d *xmlDoc) trigger(selector string) (bool, string, error) {
	nodes, err := d.query(d.root, selector)
	if err != nil || len(nodes) == 0 {
		return false, "", err
	}
	n := nodes[0]
	for _, attr := range []string{"href", "url"} {
		if v := n.SelectAttr(attr); strings.TrimSpace(v) != "" {
			return true, v, nil
		}
	}
	return true, strings.TrimSpace(n.InnerText()), nil
}
