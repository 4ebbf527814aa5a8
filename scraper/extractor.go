// scraper/extractor.go
package scraper

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/gewnthar/envscrape/models"
)

// rawRecord maps configured field names to extracted values. A value is a string,
// a []any of strings (several matches in one record scope), or a decoded JSON value.
type rawRecord map[string]any

// document is a parsed page of one source type.
type document interface {
	// records applies the record selector and field selectors.
	records(cfg models.ParserConfig) ([]rawRecord, error)
	// count reports how many nodes/items a selector matches, summed over the
	// record scopes when scope is a record selector and over the whole document
	// when scope is "".
	count(scope, selector string) (int, error)
	// trigger returns the pagination control: whether it exists and the URL it
	// carries, if any.
	trigger(selector string) (found bool, link string, err error)
}

// Extractor turns fetched content into records according to a parser config.
// It is safe for concurrent use.
type Extractor struct {
	sanitizer *bluemonday.Policy
}

func NewExtractor() *Extractor {
	return &Extractor{sanitizer: bluemonday.UGCPolicy()}
}

func (x *Extractor) parse(content []byte, st models.SourceType) (document, error) {
	switch st {
	case models.SourceHTML:
		return x.parseHTML(content)
	case models.SourceXML:
		return parseXML(content)
	case models.SourceJSON:
		return parseJSON(content)
	case models.SourceCSV:
		return parseCSV(content)
	default:
		return nil, models.Invalidf("source_type", "unsupported source type %q", st)
	}
}

// Extract parses one page and returns its records in document order. Content that
// cannot be parsed at all yields a ParseError. Fields matching nothing are absent;
// records with no field values are dropped.
func (x *Extractor) Extract(content []byte, st models.SourceType, cfg models.ParserConfig) ([]models.ExtractedRecord, error) {
	doc, err := x.parse(content, st)
	if err != nil {
		return nil, err
	}
	raws, err := doc.records(cfg)
	if err != nil {
		return nil, err
	}
	out := make([]models.ExtractedRecord, 0, len(raws))
	for _, raw := range raws {
		rec := shapeRecord(raw, cfg)
		if rec.Empty() {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// NextPage returns the URL of the page after pageURL, which is page number page
// (1-based), or "" when pagination is not configured, exhausted or the control is
// absent.
func (x *Extractor) NextPage(content []byte, st models.SourceType, cfg models.ParserConfig, pageURL string, page int) (string, error) {
	if cfg.Pagination == nil || cfg.Pagination.Strategy == nil || page >= cfg.PageLimit() {
		return "", nil
	}
	doc, err := x.parse(content, st)
	if err != nil {
		return "", err
	}
	strategy := cfg.Pagination.Strategy
	found, link, err := doc.trigger(strategy.Trigger())
	if err != nil || !found {
		return "", err
	}
	if link != "" {
		return resolveURL(pageURL, link)
	}
	lm, ok := strategy.(models.LoadMorePagination)
	if !ok {
		// a numbered "next" control without a link ends pagination
		return "", nil
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", models.NewError(models.KindParse, "invalid page URL "+pageURL, err)
	}
	q := u.Query()
	q.Set(lm.PageParam(), strconv.Itoa(page+1))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", models.NewError(models.KindParse, "invalid page URL "+base, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", models.NewError(models.KindParse, "invalid pagination link "+ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

// SelectorMatch is one line of a probe report.
type SelectorMatch struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
	Matches  int    `json:"matches"`
	Error    string `json:"error,omitempty"`
}

// Probe reports how many matches every configured selector has in content,
// fields in name order followed by the record selector and the pagination control.
// With a record selector, field matches are counted inside each record and summed.
func (x *Extractor) Probe(content []byte, st models.SourceType, cfg models.ParserConfig) ([]SelectorMatch, error) {
	doc, err := x.parse(content, st)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Selectors))
	for name := range cfg.Selectors {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []SelectorMatch
	add := func(name, scope, sel string) {
		m := SelectorMatch{Name: name, Selector: sel}
		n, err := doc.count(scope, sel)
		if err != nil {
			m.Error = err.Error()
		}
		m.Matches = n
		out = append(out, m)
	}
	for _, name := range names {
		add(name, cfg.RecordSelector, cfg.Selectors[name])
	}
	if cfg.RecordSelector != "" {
		add("(record)", "", cfg.RecordSelector)
	}
	if cfg.Pagination != nil && cfg.Pagination.Strategy != nil {
		add("(pagination)", "", cfg.Pagination.Strategy.Trigger())
	}
	return out, nil
}

func parseError(what string, err error) error {
	return models.NewError(models.KindParse, what, err)
}

// collapse trims and folds internal whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// matchValue folds the matches of one field inside one record scope.
func matchValue(matches []string) any {
	switch len(matches) {
	case 0:
		return nil
	case 1:
		return matches[0]
	}
	vals := make([]any, len(matches))
	for i, m := range matches {
		vals[i] = m
	}
	return vals
}

func nonEmpty(matches []string) []string {
	out := matches[:0:0]
	for _, m := range matches {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// zip builds records from per-field match lists, record i taking match i of each
// field. Empty matches hold their slot so later values stay in their own record.
func zip(fields map[string][]string) []rawRecord {
	n := 0
	for _, m := range fields {
		n = max(n, len(m))
	}
	out := make([]rawRecord, n)
	for i := range out {
		rec := rawRecord{}
		for name, matches := range fields {
			if i < len(matches) && matches[i] != "" {
				rec[name] = matches[i]
			}
		}
		out[i] = rec
	}
	return out
}
