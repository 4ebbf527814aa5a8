// scraper/shape.go
package scraper

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/gewnthar/envscrape/models"
)

// shapeRecord applies the data mapping to raw field values: external id,
// meta-field renames, taxonomy labels and geolocation.
func shapeRecord(raw rawRecord, cfg models.ParserConfig) models.ExtractedRecord {
	rec := models.ExtractedRecord{
		ExternalID: scalarString(raw[idField(raw, cfg)]),
		DataType:   cfg.PostType(),
		Fields:     make(map[string]any, len(raw)),
	}
	for k, v := range raw {
		if v != nil {
			rec.Fields[k] = v
		}
	}

	m := cfg.DataMapping
	if m == nil {
		rec.Geo = geoFrom(raw, nil)
		return rec
	}

	if len(m.MetaFields) > 0 {
		renamed := make(map[string]bool)
		for metaKey, field := range m.MetaFields {
			if v, ok := raw[field]; ok && v != nil {
				rec.Fields[metaKey] = v
			}
			if metaKey != field {
				renamed[field] = true
			}
		}
		for field := range renamed {
			if _, isKey := m.MetaFields[field]; !isKey {
				delete(rec.Fields, field)
			}
		}
	}

	for taxonomy, field := range m.Taxonomies {
		labels := labelsOf(raw[field])
		if len(labels) == 0 {
			continue
		}
		if rec.Categories == nil {
			rec.Categories = make(map[string][]string)
		}
		rec.Categories[taxonomy] = labels
	}

	rec.Geo = geoFrom(raw, m.Geo)
	return rec
}

// idField picks the field holding the external id: the configured one, else
// external_id, id, or the alphabetically first field ending in _id.
func idField(raw rawRecord, cfg models.ParserConfig) string {
	if cfg.IDField != "" {
		if _, ok := raw[cfg.IDField]; ok {
			return cfg.IDField
		}
		if m := cfg.DataMapping; m != nil {
			if field, ok := m.MetaFields[cfg.IDField]; ok {
				return field
			}
		}
		return cfg.IDField
	}
	for _, name := range []string{"external_id", "id"} {
		if _, ok := raw[name]; ok {
			return name
		}
	}
	var candidates []string
	for name := range raw {
		if strings.HasSuffix(name, "_id") {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

// scalarString renders an id-like value. Lists use their first element.
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		if len(t) == 0 {
			return ""
		}
		return scalarString(t[0])
	default:
		return ""
	}
}

func labelsOf(v any) []string {
	var out []string
	add := func(s string) {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	switch t := v.(type) {
	case string:
		add(t)
	case []any:
		for _, item := range t {
			if s := scalarString(item); s != "" {
				add(s)
			}
		}
	case float64, bool, json.Number:
		add(scalarString(t))
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case []any:
		if len(t) > 0 {
			return toFloat(t[0])
		}
	}
	return 0, false
}

func firstPresent(raw rawRecord, names ...string) (any, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v, ok := raw[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// geoFrom reads coordinates from the mapped fields, or from the conventional
// latitude/lat, longitude/lng/lon and "lat, lng" coordinates fields.
func geoFrom(raw rawRecord, g *models.GeoMapping) *models.GeoPoint {
	latNames := []string{"latitude", "lat"}
	lngNames := []string{"longitude", "lng", "lon"}
	coordNames := []string{"coordinates"}
	if g != nil {
		if g.Latitude != "" {
			latNames = []string{g.Latitude}
		}
		if g.Longitude != "" {
			lngNames = []string{g.Longitude}
		}
		if g.Coordinates != "" {
			coordNames = []string{g.Coordinates}
		}
	}

	latV, okLat := firstPresent(raw, latNames...)
	lngV, okLng := firstPresent(raw, lngNames...)
	if okLat && okLng {
		lat, ok1 := toFloat(latV)
		lng, ok2 := toFloat(lngV)
		if ok1 && ok2 {
			return validPoint(lat, lng)
		}
	}

	if v, ok := firstPresent(raw, coordNames...); ok {
		switch t := v.(type) {
		case string:
			parts := strings.Split(t, ",")
			if len(parts) == 2 {
				lat, ok1 := toFloat(parts[0])
				lng, ok2 := toFloat(parts[1])
				if ok1 && ok2 {
					return validPoint(lat, lng)
				}
			}
		case []any:
			if len(t) == 2 {
				lat, ok1 := toFloat(t[0])
				lng, ok2 := toFloat(t[1])
				if ok1 && ok2 {
					return validPoint(lat, lng)
				}
			}
		}
	}
	return nil
}

func validPoint(lat, lng float64) *models.GeoPoint {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil
	}
	return &models.GeoPoint{Latitude: lat, Longitude: lng}
}
