// scraper/extractor_test.go
package scraper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/envscrape/models"
)

const sitesHTML = `<html><body>
<table>
  <tr class="site"><td class="id">CAD000001</td><td class="name">Acme  Plating</td>
      <td class="coords">37.80, -122.27</td><td class="tags"><span>metals</span><span>solvents</span></td>
      <td><a class="detail" href="/sites/1">detail</a></td><td class="notes"><b>NPL</b> listed<script>x()</script></td></tr>
  <tr class="site"><td class="id">CAD000002</td><td class="name">Bay Drum</td>
      <td class="coords">37.70, -122.20</td><td class="tags"><span>drums</span></td></tr>
  <tr class="site"><td class="id">CAD000003</td><td class="name">Coast Wood</td></tr>
  <tr class="site"><td class="empty"></td></tr>
</table>
<a class="next" href="?page=2">Next</a>
</body></html>`

func TestExtract_HTMLRecordScope(t *testing.T) {
	cfg := models.ParserConfig{
		RecordSelector: "tr.site",
		IDField:        "site_id",
		Selectors: map[string]string{
			"site_id":     ".id",
			"site_name":   ".name",
			"coordinates": ".coords",
			"tags":        ".tags span",
			"detail":      "a.detail@href",
			"notes":       ".notes|html",
		},
		DataMapping: &models.DataMapping{
			PostType:   "superfund_site",
			MetaFields: map[string]string{"epa_id": "site_id"},
			Taxonomies: map[string]string{"contaminant": "tags"},
		},
	}
	recs, err := NewExtractor().Extract([]byte(sitesHTML), models.SourceHTML, cfg)
	require.NoError(t, err)
	require.Len(t, recs, 3, "empty row is dropped")

	first := recs[0]
	assert.Equal(t, "CAD000001", first.ExternalID)
	assert.Equal(t, "superfund_site", first.DataType)
	assert.Equal(t, "Acme Plating", first.Fields["site_name"])
	assert.Equal(t, "CAD000001", first.Fields["epa_id"])
	assert.NotContains(t, first.Fields, "site_id", "renamed by meta_fields")
	assert.Equal(t, "/sites/1", first.Fields["detail"])
	assert.Equal(t, []any{"metals", "solvents"}, first.Fields["tags"])
	assert.Equal(t, "<b>NPL</b> listed", first.Fields["notes"])
	assert.Equal(t, []string{"metals", "solvents"}, first.Categories["contaminant"])
	require.NotNil(t, first.Geo)
	assert.InDelta(t, 37.80, first.Geo.Latitude, 1e-9)
	assert.InDelta(t, -122.27, first.Geo.Longitude, 1e-9)

	third := recs[2]
	assert.NotContains(t, third.Fields, "detail", "unmatched selector is absent, not an error")
	assert.Nil(t, third.Geo)
}

func TestExtract_HTMLZipAndXPath(t *testing.T) {
	cfg := models.ParserConfig{Selectors: map[string]string{
		"name": "//td[@class='name']",
		"id":   "td.id",
	}}
	recs, err := NewExtractor().Extract([]byte(sitesHTML), models.SourceHTML, cfg)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "CAD000002", recs[1].ExternalID)
	assert.Equal(t, "Bay Drum", recs[1].Fields["name"])
}

func TestExtract_ZipKeepsEmptyCellsInPlace(t *testing.T) {
	page := `<table>
<tr><td class="id">A</td><td class="phone">111</td></tr>
<tr><td class="id">B</td><td class="phone"> </td></tr>
<tr><td class="id">C</td><td class="phone">333</td></tr>
</table>`
	cfg := models.ParserConfig{IDField: "id", Selectors: map[string]string{"id": "td.id", "phone": "td.phone"}}
	recs, err := NewExtractor().Extract([]byte(page), models.SourceHTML, cfg)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "111", recs[0].Fields["phone"])
	assert.Equal(t, "B", recs[1].ExternalID)
	assert.NotContains(t, recs[1].Fields, "phone")
	assert.Equal(t, "C", recs[2].ExternalID)
	assert.Equal(t, "333", recs[2].Fields["phone"])

	feed := `<sites><site><id>A</id><phone>111</phone></site><site><id>B</id><phone/></site><site><id>C</id><phone>333</phone></site></sites>`
	cfg.Selectors = map[string]string{"id": "//site/id", "phone": "//site/phone"}
	recs, err = NewExtractor().Extract([]byte(feed), models.SourceXML, cfg)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.NotContains(t, recs[1].Fields, "phone")
	assert.Equal(t, "333", recs[2].Fields["phone"])
}

func TestExtract_JSON(t *testing.T) {
	body := `{"data":{"sites":[
		{"global_id":"6010001","name":"Former Gas Works","location":{"lat":38.58,"lng":-121.49},"status":"ACTIVE"},
		{"global_id":"6010002","name":"Rail Yard","location":{"lat":null,"lng":null},"status":"CERTIFIED"},
		{"global_id":null,"name":"","status":null}
	]}}`
	cfg := models.ParserConfig{
		RecordSelector: "data.sites",
		Selectors: map[string]string{
			"global_id": "global_id",
			"site_name": "name",
			"lat":       "location.lat",
			"lng":       "location.lng",
			"status":    "status",
		},
		DataMapping: &models.DataMapping{
			PostType:   "cleanup_site",
			Taxonomies: map[string]string{"cleanup_status": "status"},
		},
	}
	recs, err := NewExtractor().Extract([]byte(body), models.SourceJSON, cfg)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "6010001", recs[0].ExternalID, "first *_id field is the default id")
	require.NotNil(t, recs[0].Geo)
	assert.InDelta(t, 38.58, recs[0].Geo.Latitude, 1e-9)
	assert.Nil(t, recs[1].Geo)
	assert.Equal(t, []string{"CERTIFIED"}, recs[1].Categories["cleanup_status"])
}

func TestExtract_MalformedJSON(t *testing.T) {
	_, err := NewExtractor().Extract([]byte(`{"sites": [`), models.SourceJSON, models.ParserConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrParse))
}

func TestExtract_XML(t *testing.T) {
	body := `<?xml version="1.0"?>
<facilities>
  <facility id="F-1"><name>North Mill</name><lat>40.1</lat><lon>-105.2</lon></facility>
  <facility id="F-2"><name>South Mill</name></facility>
  <next href="/feed?page=2"/>
</facilities>`
	cfg := models.ParserConfig{
		RecordSelector: "//facility",
		Selectors: map[string]string{
			"id":   "@id",
			"name": "name",
			"lat":  "lat",
			"lon":  "lon",
		},
	}
	x := NewExtractor()
	recs, err := x.Extract([]byte(body), models.SourceXML, cfg)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "F-1", recs[0].ExternalID)
	assert.Equal(t, "North Mill", recs[0].Fields["name"])
	require.NotNil(t, recs[0].Geo)
	assert.InDelta(t, -105.2, recs[0].Geo.Longitude, 1e-9)

	cfg.Pagination = &models.Pagination{Strategy: models.NumberedPagination{Selector: "//next", MaxPages: 2}}
	next, err := x.NextPage([]byte(body), models.SourceXML, cfg, "https://example.org/feed", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/feed?page=2", next)

	_, err = x.Extract([]byte("<facilities><facility>"), models.SourceXML, cfg)
	assert.True(t, errors.Is(err, models.ErrParse))
}

func TestExtract_CSV(t *testing.T) {
	body := "Site ID,Site Name,Latitude,Longitude\nS1,Old Dump,36.1,-115.1\nS2,Tank Farm,,\n,,,\n"
	x := NewExtractor()

	recs, err := x.Extract([]byte(body), models.SourceCSV, models.ParserConfig{
		IDField:   "site_id",
		Selectors: map[string]string{"site_id": "Site ID", "name": "site name", "latitude": "Latitude", "longitude": "Longitude"},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "S1", recs[0].ExternalID)
	assert.Equal(t, "Old Dump", recs[0].Fields["name"])
	require.NotNil(t, recs[0].Geo)
	assert.Nil(t, recs[1].Geo)

	all, err := x.Extract([]byte(body), models.SourceCSV, models.ParserConfig{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Tank Farm", all[1].Fields["Site Name"])
}

func TestNextPage_HTML(t *testing.T) {
	x := NewExtractor()
	numbered := models.ParserConfig{Pagination: &models.Pagination{Strategy: models.NumberedPagination{Selector: "a.next", MaxPages: 3}}}

	next, err := x.NextPage([]byte(sitesHTML), models.SourceHTML, numbered, "https://example.org/sites?page=1", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/sites?page=2", next)

	next, err = x.NextPage([]byte(sitesHTML), models.SourceHTML, numbered, "https://example.org/sites?page=3", 3)
	require.NoError(t, err)
	assert.Empty(t, next, "page limit reached")

	next, err = x.NextPage([]byte(`<p>last page</p>`), models.SourceHTML, numbered, "https://example.org/sites", 1)
	require.NoError(t, err)
	assert.Empty(t, next, "no next control")

	loadMore := models.ParserConfig{Pagination: &models.Pagination{Strategy: models.LoadMorePagination{
		Selector: "button.load-more", Param: "offset", MaxIterations: 5,
	}}}
	page := `<ul><li>a</li></ul><button class="load-more">More</button>`
	next, err = x.NextPage([]byte(page), models.SourceHTML, loadMore, "https://example.org/list?q=x", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/list?offset=2&q=x", next)
}

func TestNextPage_JSON(t *testing.T) {
	x := NewExtractor()
	body := []byte(`{"results":[{"id":"1"}],"links":{"next":"/api/sites?page=2"},"has_more":true}`)
	last := []byte(`{"results":[{"id":"9"}],"links":{"next":null},"has_more":false}`)

	numbered := models.ParserConfig{Pagination: &models.Pagination{Strategy: models.NumberedPagination{Selector: "links.next", MaxPages: 5}}}
	next, err := x.NextPage(body, models.SourceJSON, numbered, "https://example.org/api/sites", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/api/sites?page=2", next)

	next, err = x.NextPage(last, models.SourceJSON, numbered, "https://example.org/api/sites?page=5", 4)
	require.NoError(t, err)
	assert.Empty(t, next)

	loadMore := models.ParserConfig{Pagination: &models.Pagination{Strategy: models.LoadMorePagination{
		Selector: "has_more", Param: "page", MaxIterations: 5,
	}}}
	next, err = x.NextPage(body, models.SourceJSON, loadMore, "https://example.org/api/sites", 1)
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/api/sites?page=2", next)

	next, err = x.NextPage(last, models.SourceJSON, loadMore, "https://example.org/api/sites?page=3", 3)
	require.NoError(t, err)
	assert.Empty(t, next, "has_more false ends pagination")
}

func TestProbe_CountsFieldsInsideRecords(t *testing.T) {
	body := []byte(`{"count":2,"results":[{"id":"1","name":"North"},{"id":"2","name":"South","tags":["a","b"]}]}`)
	cfg := models.ParserConfig{
		RecordSelector: "results",
		Selectors:      map[string]string{"id": "id", "name": "name", "tags": "tags"},
	}
	x := NewExtractor()
	got, err := x.Probe(body, models.SourceJSON, cfg)
	require.NoError(t, err)
	want := []SelectorMatch{
		{Name: "id", Selector: "id", Matches: 2},
		{Name: "name", Selector: "name", Matches: 2},
		{Name: "tags", Selector: "tags", Matches: 2},
		{Name: "(record)", Selector: "results", Matches: 2},
	}
	assert.Equal(t, want, got)

	recs, err := x.Extract(body, models.SourceJSON, cfg)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	feed := []byte(`<facilities><facility><name>A</name></facility><facility><name>B</name></facility></facilities>`)
	got, err = x.Probe(feed, models.SourceXML, models.ParserConfig{
		RecordSelector: "//facility",
		Selectors:      map[string]string{"name": "name"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got[0].Matches)
}

func TestProbe_CountsMatches(t *testing.T) {
	cfg := models.ParserConfig{
		RecordSelector: "tr.site",
		Selectors:      map[string]string{"name": ".name", "missing": ".nope", "link": "a.detail@href"},
		Pagination:     &models.Pagination{Strategy: models.NumberedPagination{Selector: "a.next", MaxPages: 2}},
	}
	got, err := NewExtractor().Probe([]byte(sitesHTML), models.SourceHTML, cfg)
	require.NoError(t, err)
	want := []SelectorMatch{
		{Name: "link", Selector: "a.detail@href", Matches: 1},
		{Name: "missing", Selector: ".nope", Matches: 0},
		{Name: "name", Selector: ".name", Matches: 3},
		{Name: "(record)", Selector: "tr.site", Matches: 4},
		{Name: "(pagination)", Selector: "a.next", Matches: 1},
	}
	assert.Equal(t, want, got)
}
