package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdsearch-go/internal/birdlist"
	"github.com/tphakala/birdsearch-go/internal/conf"
	"github.com/tphakala/birdsearch-go/internal/ebird"
	"github.com/tphakala/birdsearch-go/internal/geo"
	"github.com/tphakala/birdsearch-go/internal/geocode"
	"github.com/tphakala/birdsearch-go/internal/imageprovider"
	"github.com/tphakala/birdsearch-go/internal/obscache"
	"github.com/tphakala/birdsearch-go/internal/session"
	"github.com/tphakala/birdsearch-go/internal/suggest"
)

type fakeObservations struct {
	observations []ebird.Observation
	families     map[string]string
	bounds       *ebird.RangeBounds
	err          error
	searchCalls  int

	// per-call results for species-specific searches, consumed in order
	speciesQueue []([]ebird.Observation)
	speciesCalls []geo.Pair
}

func (f *fakeObservations) RecentObservations(ctx context.Context, lat, lng, distKm float64) ([]ebird.Observation, error) {
	f.searchCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.observations, nil
}

func (f *fakeObservations) RecentSpeciesObservations(ctx context.Context, speciesCode string, lat, lng, distKm float64) ([]ebird.Observation, error) {
	f.speciesCalls = append(f.speciesCalls, geo.Pair{Lat: lat, Lng: lng})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.speciesQueue) == 0 {
		return nil, nil
	}
	head := f.speciesQueue[0]
	f.speciesQueue = f.speciesQueue[1:]
	return head, nil
}

func (f *fakeObservations) FamilyLookup(ctx context.Context, speciesCodes []string) map[string]string {
	result := make(map[string]string)
	for _, code := range speciesCodes {
		if family, ok := f.families[code]; ok {
			result[code] = family
		}
	}
	return result
}

func (f *fakeObservations) RangeExtension(ctx context.Context, speciesCode string) (*ebird.RangeBounds, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.bounds == nil {
		return nil, assert.AnError
	}
	return f.bounds, nil
}

type fakeGeocoder struct {
	label string
	err   error
}

func (f *fakeGeocoder) ReverseGeocode(ctx context.Context, p geo.Pair) (string, error) {
	return f.label, f.err
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	sets int
	gets int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[key] = value
	return nil
}

type fixedImageProvider struct{}

func (fixedImageProvider) Fetch(ctx context.Context, commonName string) (imageprovider.BirdImage, error) {
	return imageprovider.BirdImage{
		URL:        "https://img.example/" + strings.ReplaceAll(commonName, " ", "_"),
		CommonName: commonName,
	}, nil
}

func testSettings() *conf.Settings {
	return &conf.Settings{
		Main: conf.MainSettings{Port: "8080"},
		Home: conf.HomeSettings{Latitude: 60.1699, Longitude: 24.9384},
		Suggest: conf.SuggestSettings{
			Threshold: 0.4,
			Distance:  100,
		},
		BirdList: conf.BirdListSettings{BatchSize: 20},
	}
}

func newTestController(t *testing.T, obs *fakeObservations, store *memStore) *Controller {
	t.Helper()

	settings := testSettings()
	home := geo.Pair{Lat: settings.Home.Latitude, Lng: settings.Home.Longitude}

	var cache *obscache.Cache
	if store != nil {
		cache = obscache.New(store, home)
	}

	images := imageprovider.InitCache(fixedImageProvider{})

	return New(settings, obs,
		suggest.NewEngine(suggest.Config{Threshold: settings.Suggest.Threshold, Distance: settings.Suggest.Distance}),
		geocode.NewServiceWithProvider(&fakeGeocoder{label: "Helsinki, Finland"}),
		cache, images, birdlist.NewLoader(images, settings.BirdList.BatchSize), session.New())
}

func doRequest(c *Controller, method, target string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func sampleObservations() []ebird.Observation {
	return []ebird.Observation{
		{SpeciesCode: "amerob", CommonName: "American Robin", Lat: 60.17, Lng: 24.94, ObsDt: "2026-08-30 09:15", HowMany: 2, LocName: "Central Park"},
		{SpeciesCode: "mallar3", CommonName: "Mallard", Lat: 60.18, Lng: 24.95, ObsDt: "2026-08-31 07:40", HowMany: 5, LocName: "Pond"},
	}
}

func TestSpeciesSearchReturnsObservations(t *testing.T) {
	obs := &fakeObservations{observations: sampleObservations()}
	c := newTestController(t, obs, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/search?lat=51.5&lng=-0.12", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []ebird.Observation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	// most recent observation first
	assert.Equal(t, "mallar3", got[0].SpeciesCode)
}

func TestSpeciesSearchInvalidCoords(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/search?lat=abc&lng=1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeciesSearchMissingCoordsFallsBackToHome(t *testing.T) {
	obs := &fakeObservations{observations: sampleObservations()}
	store := newMemStore()
	c := newTestController(t, obs, store)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/search", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// the home coordinate is the cacheable point, so the result was written
	assert.Equal(t, 1, store.sets)
	assert.Contains(t, store.data, "speciesSearch:60.1699:24.9384")
}

func TestSpeciesSearchCacheHitSkipsUpstream(t *testing.T) {
	obs := &fakeObservations{observations: sampleObservations()}
	store := newMemStore()
	c := newTestController(t, obs, store)

	doRequest(c, http.MethodGet, "/api/v1/species/search", "")
	require.Equal(t, 1, obs.searchCalls)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/search", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, obs.searchCalls, "second home search must come from the cache")
}

func TestSpeciesSearchNonHomeCoordsBypassCache(t *testing.T) {
	obs := &fakeObservations{observations: sampleObservations()}
	store := newMemStore()
	c := newTestController(t, obs, store)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/search?lat=51.5&lng=-0.12", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, store.sets)
	assert.Zero(t, store.gets)
}

func TestSpeciesSearchUpstreamFailureDegradesToEmpty(t *testing.T) {
	obs := &fakeObservations{err: assert.AnError}
	c := newTestController(t, obs, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/search?lat=1&lng=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestTaxonomySpecies(t *testing.T) {
	obs := &fakeObservations{families: map[string]string{
		"amerob":  "Thrushes and Allies",
		"mallar3": "Ducks, Geese, and Waterfowl",
	}}
	c := newTestController(t, obs, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/taxonomy/species?speciesCodes=amerob,mallar3,unknown1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var families map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &families))
	assert.Len(t, families, 2)
	assert.Equal(t, "Thrushes and Allies", families["amerob"])
}

func TestTaxonomySpeciesMissingParam(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/taxonomy/species", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuggestAgainstLoadedSession(t *testing.T) {
	obs := &fakeObservations{observations: sampleObservations()}
	c := newTestController(t, obs, nil)

	doRequest(c, http.MethodGet, "/api/v1/species/search?lat=1&lng=2", "")

	rec := doRequest(c, http.MethodGet, "/api/v1/suggest?q=rob", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result suggest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"american robin"}, result.Local)
}

func TestSuggestMissingQuery(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/suggest", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeciesExtension(t *testing.T) {
	obs := &fakeObservations{bounds: &ebird.RangeBounds{MinX: -10, MinY: 35, MaxX: 30, MaxY: 65}}
	c := newTestController(t, obs, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/extension?code=amerob", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Found  bool               `json:"found"`
		Bounds *ebird.RangeBounds `json:"bounds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	require.NotNil(t, resp.Bounds)
	assert.Equal(t, float64(-10), resp.Bounds.MinX)
}

func TestSpeciesExtensionUpstreamFailure(t *testing.T) {
	obs := &fakeObservations{err: assert.AnError}
	c := newTestController(t, obs, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/extension?code=amerob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"found":false`)
}

func TestGeocodeReverse(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/geocode/reverse?lat=60.17&lng=24.94", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Helsinki, Finland")
}

func TestGeocodeReverseNeverErrorsToClient(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)
	c.Geocode = geocode.NewServiceWithProvider(&fakeGeocoder{err: assert.AnError})

	rec := doRequest(c, http.MethodGet, "/api/v1/geocode/reverse?lat=60.17&lng=24.94", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "60.17, 24.94")
}

func TestBatchImages(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodPost, "/api/v1/images",
		`{"American Robin": "amerob", "Mallard": "mallar3"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var images []struct {
		Name     string `json:"name"`
		ImageURL string `json:"imageUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &images))
	require.Len(t, images, 2)
	assert.Equal(t, "American Robin", images[0].Name)
	assert.Equal(t, "https://img.example/American_Robin", images[0].ImageURL)
}

func TestBatchImagesEmptyBody(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodPost, "/api/v1/images", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareLocations(t *testing.T) {
	obs := &fakeObservations{observations: sampleObservations()}
	c := newTestController(t, obs, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/compare?lat1=1&lng1=2&lat2=3&lng2=4", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var comparison session.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &comparison))
	// identical fake results at both points, everything is common
	assert.Len(t, comparison.Common, 2)
	assert.Empty(t, comparison.OnlyFirst)
	assert.Empty(t, comparison.OnlySecond)
}

func TestCompareLocationsMissingParams(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/compare?lat1=1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectedObservationsRequiresSelection(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodGet, "/api/v1/species/observations", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectSpeciesRequiresNameAndCode(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	rec := doRequest(c, http.MethodPost, "/api/v1/suggest/select", `{"name": "Mallard"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectThenObservations(t *testing.T) {
	obs := &fakeObservations{
		speciesQueue: []([]ebird.Observation){{
			{SpeciesCode: "amerob", CommonName: "American Robin", Lat: 60.30, Lng: 24.90, ObsDt: "2026-08-30 09:15", HowMany: 1},
			{SpeciesCode: "amerob", CommonName: "American Robin", Lat: 60.18, Lng: 24.95, ObsDt: "2026-08-29 10:00", HowMany: 3},
		}},
	}
	c := newTestController(t, obs, nil)

	rec := doRequest(c, http.MethodPost, "/api/v1/suggest/select", `{"name": "American Robin", "code": "amerob"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(c, http.MethodGet, "/api/v1/species/observations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Observations []ebird.Observation `json:"observations"`
		Nearest      *geo.Pair           `json:"nearest"`
		OutOfArea    bool                `json:"outOfArea"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Observations, 2)
	assert.False(t, resp.OutOfArea)

	// search ran at the session center, here the configured home point
	require.Len(t, obs.speciesCalls, 1)
	assert.InDelta(t, 60.1699, obs.speciesCalls[0].Lat, 1e-9)

	// of the two points the second is closer to home
	require.NotNil(t, resp.Nearest)
	assert.InDelta(t, 60.18, resp.Nearest.Lat, 1e-9)
	assert.InDelta(t, 24.95, resp.Nearest.Lng, 1e-9)
}

func TestSelectedObservationsRangeExtensionFallback(t *testing.T) {
	obs := &fakeObservations{
		bounds: &ebird.RangeBounds{MinX: -100, MinY: 30, MaxX: -60, MaxY: 50},
		speciesQueue: []([]ebird.Observation){
			nil, // nothing near the session center
			{{SpeciesCode: "amerob", CommonName: "American Robin", Lat: 40.1, Lng: -80.2, ObsDt: "2026-08-31 08:00", HowMany: 2}},
		},
	}
	c := newTestController(t, obs, nil)

	doRequest(c, http.MethodPost, "/api/v1/suggest/select", `{"name": "American Robin", "code": "amerob"}`)
	rec := doRequest(c, http.MethodGet, "/api/v1/species/observations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Observations []ebird.Observation `json:"observations"`
		OutOfArea    bool                `json:"outOfArea"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Observations, 1)
	assert.True(t, resp.OutOfArea)

	// second search ran at the center of the range rectangle
	require.Len(t, obs.speciesCalls, 2)
	assert.InDelta(t, 40.0, obs.speciesCalls[1].Lat, 1e-9)
	assert.InDelta(t, -80.0, obs.speciesCalls[1].Lng, 1e-9)
}

func TestSelectedObservationsDegradesToEmpty(t *testing.T) {
	obs := &fakeObservations{} // no queue, no bounds: both searches come up dry
	c := newTestController(t, obs, nil)

	doRequest(c, http.MethodPost, "/api/v1/suggest/select", `{"name": "American Robin", "code": "amerob"}`)
	rec := doRequest(c, http.MethodGet, "/api/v1/species/observations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"observations":[]`)
	assert.Contains(t, rec.Body.String(), `"outOfArea":false`)
}

func loadListFixture(t *testing.T, c *Controller) {
	t.Helper()
	doRequest(c, http.MethodGet, "/api/v1/species/search?lat=1&lng=2", "")
	rec := doRequest(c, http.MethodGet, "/api/v1/taxonomy/species?speciesCodes=amerob,mallar3", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBirdListReturnsGroupsAndImages(t *testing.T) {
	obs := &fakeObservations{
		observations: sampleObservations(),
		families: map[string]string{
			"amerob":  "Thrushes and Allies",
			"mallar3": "Ducks, Geese, and Waterfowl",
		},
	}
	c := newTestController(t, obs, nil)
	loadListFixture(t, c)

	rec := doRequest(c, http.MethodGet, "/api/v1/list", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Group   string            `json:"group"`
		Page    int               `json:"page"`
		Groups  []string          `json:"groups"`
		Species []json.RawMessage `json:"species"`
		Images  map[string]string `json:"images"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "All Groups", resp.Group)
	assert.Equal(t, 0, resp.Page)
	assert.Equal(t, []string{"All Groups", "Ducks, Geese, and Waterfowl", "Thrushes and Allies"}, resp.Groups)
	assert.Len(t, resp.Species, 2)
	assert.Equal(t, "https://img.example/American_Robin", resp.Images["American Robin"])
}

func TestBirdListGroupFilter(t *testing.T) {
	obs := &fakeObservations{
		observations: sampleObservations(),
		families: map[string]string{
			"amerob":  "Thrushes and Allies",
			"mallar3": "Ducks, Geese, and Waterfowl",
		},
	}
	c := newTestController(t, obs, nil)
	loadListFixture(t, c)

	rec := doRequest(c, http.MethodGet, "/api/v1/list?group=Thrushes+and+Allies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Thrushes and Allies", resp.Group)
	require.Len(t, resp.Species, 1)
	assert.Equal(t, "amerob", resp.Species[0].SpeciesCode)

	// an unknown group reverts the filter rather than blanking the list
	rec = doRequest(c, http.MethodGet, "/api/v1/list?group=Penguins", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "All Groups", resp.Group)
	assert.Len(t, resp.Species, 2)
}

func TestBirdListMoreIsNoOpOnLastPage(t *testing.T) {
	obs := &fakeObservations{
		observations: sampleObservations(),
		families:     map[string]string{"amerob": "Thrushes and Allies"},
	}
	c := newTestController(t, obs, nil)
	loadListFixture(t, c)

	doRequest(c, http.MethodGet, "/api/v1/list", "")

	// two species fit on one page of twenty
	rec := doRequest(c, http.MethodPost, "/api/v1/list/more", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Page)
	assert.Len(t, resp.Species, 2)
}

func TestTaxonFindDegradesToEmpty(t *testing.T) {
	c := newTestController(t, &fakeObservations{}, nil)

	// no resolvers configured, the chain yields nothing
	rec := doRequest(c, http.MethodGet, "/api/v1/taxon/find?q=shoebill", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
