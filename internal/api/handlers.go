package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdsearch-go/internal/ebird"
	"github.com/tphakala/birdsearch-go/internal/geo"
	"github.com/tphakala/birdsearch-go/internal/geocode"
	"github.com/tphakala/birdsearch-go/internal/session"
	"github.com/tphakala/birdsearch-go/internal/taxonomy"
)

type errorResponse struct {
	Error string `json:"error"`
}

func badRequest(ctx echo.Context, msg string) error {
	return ctx.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

// parseCoord parses one coordinate query parameter.
func parseCoord(value string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	return f, err == nil
}

// searchCoords resolves the requested search point, falling back to the
// configured home coordinate when lat/lng are absent.
func (c *Controller) searchCoords(ctx echo.Context) (geo.Pair, bool) {
	latParam := ctx.QueryParam("lat")
	lngParam := ctx.QueryParam("lng")

	if latParam == "" && lngParam == "" {
		return geo.Pair{Lat: c.Settings.Home.Latitude, Lng: c.Settings.Home.Longitude}, true
	}

	lat, okLat := parseCoord(latParam)
	lng, okLng := parseCoord(lngParam)
	if !okLat || !okLng {
		return geo.Pair{}, false
	}
	return geo.Pair{Lat: lat, Lng: lng}, true
}

// fetchObservations runs a species search at a point, going through the
// observation cache when the point is eligible. A fresh upstream result is
// written to the cache before anything depends on it.
func (c *Controller) fetchObservations(ctx echo.Context, point geo.Pair, distKm float64) []ebird.Observation {
	if cached, found := c.ObsCache.GetObservations(ctx.Request().Context(), point); found {
		return cached
	}

	observations, err := c.Observations.RecentObservations(ctx.Request().Context(), point.Lat, point.Lng, distKm)
	if err != nil {
		c.logger.Warn("species search failed, returning empty result",
			"lat", point.Lat, "lng", point.Lng, "error", err)
		return nil
	}

	ebird.SortRecentFirst(observations)
	c.ObsCache.SetObservations(ctx.Request().Context(), point, observations)

	return observations
}

// SpeciesSearch returns recent observations near a point. Missing coordinates
// fall back to the configured home point; upstream failures degrade to an
// empty list.
func (c *Controller) SpeciesSearch(ctx echo.Context) error {
	point, ok := c.searchCoords(ctx)
	if !ok {
		return badRequest(ctx, "invalid lat/lng")
	}

	var distKm float64
	if distParam := ctx.QueryParam("dist"); distParam != "" {
		d, ok := parseCoord(distParam)
		if !ok || d < 0 {
			return badRequest(ctx, "invalid dist")
		}
		distKm = d
	}

	observations := c.fetchObservations(ctx, point, distKm)

	entries := ebird.SpeciesEntries(observations)
	c.Session.SetSpecies(entries, nil, nil)
	c.List.SetSpecies(entries, nil)

	if len(observations) > 0 {
		points := make([]geo.Pair, len(observations))
		for i, obs := range observations {
			points[i] = geo.Pair{Lat: obs.Lat, Lng: obs.Lng}
		}
		c.Session.SetCenter(geo.BoundingCenter(points), geocode.CoordinateLabel(point))
	}

	if observations == nil {
		observations = []ebird.Observation{}
	}
	return ctx.JSON(http.StatusOK, observations)
}

type selectRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// SelectSpecies records the suggestion the user picked. A later observation
// search is gated on this selection.
func (c *Controller) SelectSpecies(ctx echo.Context) error {
	var req selectRequest
	if err := ctx.Bind(&req); err != nil || req.Name == "" || req.Code == "" {
		return badRequest(ctx, "name and code are required")
	}

	c.Session.Select(taxonomy.SpeciesEntry{CommonName: req.Name, SpeciesCode: req.Code})
	return ctx.NoContent(http.StatusNoContent)
}

type observationsResponse struct {
	Observations []ebird.Observation `json:"observations"`
	Nearest      *geo.Pair           `json:"nearest,omitempty"`
	OutOfArea    bool                `json:"outOfArea"`
}

// SelectedObservations searches recent observations of the selected species
// near the session center. When nothing is found locally, the species' range
// extension seeds one out-of-area search at the center of its range rectangle.
// The response carries the observation point nearest to the searcher.
func (c *Controller) SelectedObservations(ctx echo.Context) error {
	selected, ok := c.Session.Selected()
	if !ok {
		return badRequest(ctx, "no species selected")
	}

	center, _ := c.Session.Center()
	if center == (geo.Pair{}) {
		center = geo.Pair{Lat: c.Settings.Home.Latitude, Lng: c.Settings.Home.Longitude}
	}

	rc := ctx.Request().Context()
	observations, err := c.Observations.RecentSpeciesObservations(rc, selected.SpeciesCode, center.Lat, center.Lng, 0)
	if err != nil {
		c.logger.Warn("species observation search failed, returning empty result",
			"species_code", selected.SpeciesCode, "error", err)
		observations = nil
	}

	outOfArea := false
	if len(observations) == 0 {
		observations = c.rangeExtensionSearch(ctx, selected.SpeciesCode)
		outOfArea = len(observations) > 0
	}

	ebird.SortRecentFirst(observations)

	resp := observationsResponse{Observations: observations, OutOfArea: outOfArea}
	if resp.Observations == nil {
		resp.Observations = []ebird.Observation{}
	}
	if len(observations) > 0 {
		points := make([]geo.Pair, len(observations))
		for i, obs := range observations {
			points[i] = geo.Pair{Lat: obs.Lat, Lng: obs.Lng}
		}
		resp.Nearest = &points[geo.Nearest(points, center)]
	}

	return ctx.JSON(http.StatusOK, resp)
}

// rangeExtensionSearch retries nothing: it runs the one out-of-area search the
// species' range rectangle seeds when the local area has no observations.
func (c *Controller) rangeExtensionSearch(ctx echo.Context, speciesCode string) []ebird.Observation {
	rc := ctx.Request().Context()

	bounds, err := c.Observations.RangeExtension(rc, speciesCode)
	if err != nil {
		c.logger.Warn("range extension lookup failed", "species_code", speciesCode, "error", err)
		return nil
	}

	extCenter := geo.BoundingCenter([]geo.Pair{
		{Lat: bounds.MinY, Lng: bounds.MinX},
		{Lat: bounds.MaxY, Lng: bounds.MaxX},
	})

	observations, err := c.Observations.RecentSpeciesObservations(rc, speciesCode, extCenter.Lat, extCenter.Lng, 0)
	if err != nil {
		c.logger.Warn("out-of-area observation search failed",
			"species_code", speciesCode, "lat", extCenter.Lat, "lng", extCenter.Lng, "error", err)
		return nil
	}
	return observations
}

// TaxonomySpecies resolves family groups for a comma-separated species code
// list. The map may be partial when individual lookups fail.
func (c *Controller) TaxonomySpecies(ctx echo.Context) error {
	codesParam := ctx.QueryParam("speciesCodes")
	if codesParam == "" {
		return badRequest(ctx, "speciesCodes is required")
	}

	codes := make([]string, 0)
	for _, code := range strings.Split(codesParam, ",") {
		if code = strings.TrimSpace(code); code != "" {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return badRequest(ctx, "speciesCodes is required")
	}

	families := c.Observations.FamilyLookup(ctx.Request().Context(), codes)

	c.Session.MergeTaxonomy(families)
	entries, taxonomyMap := c.Session.Species()
	ordered := taxonomy.GroupsInCodeOrder(codes, taxonomyMap)
	c.Session.SetOrderedGroups(ordered)
	c.List.SetSpecies(taxonomy.SortByTaxonomy(entries, taxonomyMap, ordered), taxonomyMap)

	return ctx.JSON(http.StatusOK, families)
}

// TaxonFind searches the full taxonomy through the remote fallback chain.
// Resolver failures degrade to an empty list.
func (c *Controller) TaxonFind(ctx echo.Context) error {
	query := ctx.QueryParam("q")
	if query == "" {
		return badRequest(ctx, "q is required")
	}

	entries := c.Suggest.Extended(ctx.Request().Context(), query)
	if entries == nil {
		entries = []taxonomy.SpeciesEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// SuggestSpecies resolves partial input against the session species set with
// remote fallback.
func (c *Controller) SuggestSpecies(ctx echo.Context) error {
	query := ctx.QueryParam("q")
	if query == "" {
		return badRequest(ctx, "q is required")
	}

	entries, taxonomyMap := c.Session.Species()
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		names[strings.ToLower(e.CommonName)] = e.SpeciesCode
	}

	result, gen := c.Suggest.Suggest(ctx.Request().Context(), query, names, taxonomyMap)
	c.Session.ApplySuggestions(result, gen, c.Suggest)

	return ctx.JSON(http.StatusOK, result)
}

type extensionResponse struct {
	Found  bool               `json:"found"`
	Bounds *ebird.RangeBounds `json:"bounds,omitempty"`
}

// SpeciesExtension returns the range-extension bounding rectangle for a
// species. An upstream failure reports found=false rather than an error.
func (c *Controller) SpeciesExtension(ctx echo.Context) error {
	code := ctx.QueryParam("code")
	if code == "" {
		return badRequest(ctx, "code is required")
	}

	bounds, err := c.Observations.RangeExtension(ctx.Request().Context(), code)
	if err != nil {
		c.logger.Warn("range extension lookup failed", "species_code", code, "error", err)
		return ctx.JSON(http.StatusOK, extensionResponse{Found: false})
	}

	return ctx.JSON(http.StatusOK, extensionResponse{Found: true, Bounds: bounds})
}

type geocodeResponse struct {
	Label string `json:"label"`
}

// GeocodeReverse returns a display label for a coordinate pair. Provider
// failures degrade to the raw coordinates; this endpoint never surfaces an
// upstream error.
func (c *Controller) GeocodeReverse(ctx echo.Context) error {
	lat, okLat := parseCoord(ctx.QueryParam("lat"))
	lng, okLng := parseCoord(ctx.QueryParam("lng"))
	if !okLat || !okLng {
		return badRequest(ctx, "lat and lng are required")
	}

	label := c.Geocode.LocationLabel(ctx.Request().Context(), geo.Pair{Lat: lat, Lng: lng})
	return ctx.JSON(http.StatusOK, geocodeResponse{Label: label})
}

type batchImage struct {
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

// BatchImages resolves images for a batch of species. The request body maps
// common name to species code; species whose fetch fails are omitted.
func (c *Controller) BatchImages(ctx echo.Context) error {
	var batch map[string]string
	if err := ctx.Bind(&batch); err != nil || len(batch) == 0 {
		return badRequest(ctx, "request body must map species names to codes")
	}

	names := make([]string, 0, len(batch))
	for name := range batch {
		names = append(names, name)
	}
	sort.Strings(names)

	images := make([]batchImage, 0, len(names))
	for _, name := range names {
		img, err := c.Images.Get(ctx.Request().Context(), name)
		if err != nil {
			continue
		}
		images = append(images, batchImage{Name: name, ImageURL: img.URL})
	}

	return ctx.JSON(http.StatusOK, images)
}

type listResponse struct {
	Group   string                  `json:"group"`
	Page    int                     `json:"page"`
	Groups  []string                `json:"groups"`
	Species []taxonomy.SpeciesEntry `json:"species"`
	Images  map[string]string       `json:"images"`
}

// buildListResponse snapshots the loader state for the browsing endpoints.
func (c *Controller) buildListResponse() listResponse {
	entries, taxonomyMap := c.Session.Species()

	images := make(map[string]string)
	for name, img := range c.List.Images() {
		images[name] = img.URL
	}

	return listResponse{
		Group:   c.List.Group(),
		Page:    c.List.Page(),
		Groups:  taxonomy.UniqueGroups(entries, taxonomyMap),
		Species: c.List.Visible(),
		Images:  images,
	}
}

// BirdList returns the browsable species list. A group query parameter
// switches the family-group filter (resetting pagination) before the current
// batch of images is loaded.
func (c *Controller) BirdList(ctx echo.Context) error {
	if group := ctx.QueryParam("group"); group != "" {
		c.List.SetGroup(group)
	}
	c.List.LoadBatch(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, c.buildListResponse())
}

// BirdListMore advances the list to the next page and loads its images. On
// the last page this is a no-op and the current state is returned unchanged.
func (c *Controller) BirdListMore(ctx echo.Context) error {
	c.List.LoadMore(ctx.Request().Context())
	return ctx.JSON(http.StatusOK, c.buildListResponse())
}

// CompareLocations searches two points and splits their species lists into
// shared and location-unique sets.
func (c *Controller) CompareLocations(ctx echo.Context) error {
	lat1, ok1 := parseCoord(ctx.QueryParam("lat1"))
	lng1, ok2 := parseCoord(ctx.QueryParam("lng1"))
	lat2, ok3 := parseCoord(ctx.QueryParam("lat2"))
	lng2, ok4 := parseCoord(ctx.QueryParam("lng2"))
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return badRequest(ctx, "lat1, lng1, lat2 and lng2 are required")
	}

	first := c.fetchObservations(ctx, geo.Pair{Lat: lat1, Lng: lng1}, 0)
	second := c.fetchObservations(ctx, geo.Pair{Lat: lat2, Lng: lng2}, 0)

	comparison := session.Compare(ebird.SpeciesEntries(first), ebird.SpeciesEntries(second))
	return ctx.JSON(http.StatusOK, comparison)
}
