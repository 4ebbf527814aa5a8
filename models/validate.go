// models/validate.go
package models

import (
	"net/url"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	jmespath "github.com/jmespath-community/go-jmespath"
)

// Validate checks a job definition. Every failure is an InvalidConfiguration error.
func (j *ScraperJob) Validate() error {
	if strings.TrimSpace(j.SourceName) == "" {
		return Invalidf("source_name", "must not be empty")
	}
	if !j.SourceType.Valid() {
		return Invalidf("source_type", "unsupported source type %q", j.SourceType)
	}
	u, err := url.Parse(j.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Invalidf("base_url", "must be an absolute http(s) URL, got %q", j.BaseURL)
	}
	if _, err := ParseFrequency(j.RunFrequency); err != nil {
		return err
	}
	if j.Timeout < 0 {
		return Invalidf("timeout", "must be non-negative")
	}
	if j.MaxRetries < 0 {
		return Invalidf("max_retries", "must be non-negative")
	}
	if j.RateLimitDelay < 0 {
		return Invalidf("rate_limit_delay", "must be non-negative")
	}
	return j.Config.Validate(j.SourceType)
}

// Validate compiles every selector for the given source type.
func (c ParserConfig) Validate(st SourceType) error {
	if c.RecordSelector != "" {
		if err := validateExpr(st, c.RecordSelector, true); err != nil {
			return withField(err, "config.record_selector")
		}
	}
	names := make([]string, 0, len(c.Selectors))
	for name := range c.Selectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return Invalidf("config.selectors", "field name must not be empty")
		}
		if err := validateExpr(st, c.Selectors[name], false); err != nil {
			return withField(err, "config.selectors."+name)
		}
	}
	if c.IDField != "" && len(c.Selectors) > 0 {
		if _, ok := c.Selectors[c.IDField]; !ok && !mappedTo(c.DataMapping, c.IDField) {
			return Invalidf("config.id_field", "%q is not a configured field", c.IDField)
		}
	}
	if c.Pagination != nil {
		if err := c.Pagination.validate(st); err != nil {
			return err
		}
	}
	if c.Request != nil && c.Request.Method != "" {
		switch strings.ToUpper(c.Request.Method) {
		case "GET", "POST", "HEAD":
		default:
			return Invalidf("config.request.method", "unsupported method %q", c.Request.Method)
		}
	}
	return nil
}

func (p *Pagination) validate(st SourceType) error {
	if p.Strategy == nil {
		return Invalidf("config.pagination", "missing strategy")
	}
	if st == SourceCSV {
		return Invalidf("config.pagination", "csv sources cannot paginate")
	}
	if p.Strategy.Limit() <= 0 {
		return Invalidf("config.pagination", "%s pagination needs a positive page limit", p.Strategy.Type())
	}
	if strings.TrimSpace(p.Strategy.Trigger()) == "" {
		return Invalidf("config.pagination.selector", "must not be empty")
	}
	if err := validateExpr(st, p.Strategy.Trigger(), true); err != nil {
		return withField(err, "config.pagination.selector")
	}
	return nil
}

func validateExpr(st SourceType, raw string, scope bool) error {
	if strings.TrimSpace(raw) == "" {
		return Invalidf("", "selector must not be empty")
	}
	switch st {
	case SourceHTML:
		fs := ParseFieldSelector(raw)
		if scope && (fs.HTML || fs.Attr != "") {
			return Invalidf("", "modifiers are not allowed on %q", raw)
		}
		if fs.XPath {
			if _, err := xpath.Compile(fs.Expr); err != nil {
				return &Error{Kind: KindInvalidConfiguration, Message: "invalid XPath " + fs.Expr, Cause: err}
			}
			return nil
		}
		if _, err := cascadia.Compile(fs.Expr); err != nil {
			return &Error{Kind: KindInvalidConfiguration, Message: "invalid CSS selector " + fs.Expr, Cause: err}
		}
	case SourceXML:
		if _, err := xpath.Compile(strings.TrimSpace(raw)); err != nil {
			return &Error{Kind: KindInvalidConfiguration, Message: "invalid XPath " + raw, Cause: err}
		}
	case SourceJSON:
		if _, err := jmespath.Compile(strings.TrimSpace(raw)); err != nil {
			return &Error{Kind: KindInvalidConfiguration, Message: "invalid JMESPath " + raw, Cause: err}
		}
	case SourceCSV:
		// column headers are free text
	}
	return nil
}

func withField(err error, field string) error {
	if e, ok := err.(*Error); ok && e.Field == "" {
		e.Field = field
	}
	return err
}

func mappedTo(m *DataMapping, field string) bool {
	if m == nil {
		return false
	}
	_, ok := m.MetaFields[field]
	return ok
}
