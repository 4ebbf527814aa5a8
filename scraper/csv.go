// scraper/csv.go
package scraper

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/jszwec/csvutil"

	"github.com/gewnthar/envscrape/models"
)

// csvDoc holds a decoded CSV file; selectors name column headers.
type csvDoc struct {
	header []string
	rows   [][]string
}

func parseCSV(content []byte) (document, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &csvDoc{}, nil
		}
		return nil, parseError("invalid CSV header", err)
	}
	doc := &csvDoc{header: dec.Header()}
	for {
		var row struct{}
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, parseError("invalid CSV", err)
		}
		doc.rows = append(doc.rows, append([]string(nil), dec.Record()...))
	}
	return doc, nil
}

func (d *csvDoc) column(name string) int {
	for i, h := range d.header {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			return i
		}
	}
	return -1
}

func (d *csvDoc) records(cfg models.ParserConfig) ([]rawRecord, error) {
	selectors := cfg.Selectors
	if len(selectors) == 0 {
		selectors = make(map[string]string, len(d.header))
		for _, h := range d.header {
			selectors[strings.TrimSpace(h)] = h
		}
	}
	cols := make(map[string]int, len(selectors))
	for name, col := range selectors {
		cols[name] = d.column(col)
	}

	out := make([]rawRecord, 0, len(d.rows))
	for _, row := range d.rows {
		rec := rawRecord{}
		for name, idx := range cols {
			if idx < 0 || idx >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[idx]); v != "" {
				rec[name] = v
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// count ignores scope: every row is a record.
func (d *csvDoc) count(_, selector string) (int, error) {
	idx := d.column(selector)
	if idx < 0 {
		return 0, nil
	}
	n := 0
	for _, row := range d.rows {
		if idx < len(row) && strings.TrimSpace(row[idx]) != "" {
			n++
		}
	}
	return n, nil
}

func (d *csvDoc) trigger(string) (bool, string, error) {
	return false, "", nil
}
