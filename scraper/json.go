// scraper/json.go
package scraper

import (
	"encoding/json"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/gewnthar/envscrape/models"
)

// jsonDoc evaluates JMESPath expressions over a decoded JSON document.
type jsonDoc struct {
	root any
}

func parseJSON(content []byte) (document, error) {
	var root any
	if err := json.Unmarshal(content, &root); err != nil {
		return nil, parseError("invalid JSON", err)
	}
	return &jsonDoc{root: root}, nil
}

func search(expr string, data any) (any, error) {
	v, err := jmespath.Search(strings.TrimSpace(expr), data)
	if err != nil {
		return nil, models.NewError(models.KindInvalidConfiguration, "invalid JMESPath "+expr, err)
	}
	return v, nil
}

// items returns the record scopes: the record selector's result, or the root.
// An array yields one scope per element.
func (d *jsonDoc) items(recordSelector string) ([]any, error) {
	scope := d.root
	if recordSelector != "" {
		v, err := search(recordSelector, d.root)
		if err != nil {
			return nil, err
		}
		scope = v
	}
	switch s := scope.(type) {
	case nil:
		return nil, nil
	case []any:
		return s, nil
	default:
		return []any{s}, nil
	}
}

func (d *jsonDoc) records(cfg models.ParserConfig) ([]rawRecord, error) {
	items, err := d.items(cfg.RecordSelector)
	if err != nil {
		return nil, err
	}
	out := make([]rawRecord, 0, len(items))
	for _, item := range items {
		rec := rawRecord{}
		if len(cfg.Selectors) == 0 {
			// no selectors: take an object's top-level keys as fields
			if obj, ok := item.(map[string]any); ok {
				for k, v := range obj {
					if v != nil {
						rec[k] = v
					}
				}
			}
		}
		for name, expr := range cfg.Selectors {
			v, err := search(expr, item)
			if err != nil {
				return nil, err
			}
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
				if v == "" {
					continue
				}
			}
			if v != nil {
				rec[name] = v
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *jsonDoc) count(scope, selector string) (int, error) {
	scopes := []any{d.root}
	if scope != "" {
		var err error
		if scopes, err = d.items(scope); err != nil {
			return 0, err
		}
	}
	n := 0
	for _, item := range scopes {
		v, err := search(selector, item)
		if err != nil {
			return 0, err
		}
		n += size(v)
	}
	return n, nil
}

// size counts a JMESPath result: array elements, 1 for any other non-empty value.
func size(v any) int {
	switch s := v.(type) {
	case nil:
		return 0
	case []any:
		return len(s)
	case string:
		if strings.TrimSpace(s) == "" {
			return 0
		}
	case bool:
		if !s {
			return 0
		}
	case map[string]any:
		if len(s) == 0 {
			return 0
		}
	}
	return 1
}

// trigger evaluates the pagination expression against the root. A string result
// is the next page's URL; any other non-empty result means more pages exist.
func (d *jsonDoc) trigger(selector string) (bool, string, error) {
	v, err := search(selector, d.root)
	if err != nil || size(v) == 0 {
		return false, "", err
	}
	if s, ok := v.(string); ok {
		return true, strings.TrimSpace(s), nil
	}
	return true, "", nil
}
