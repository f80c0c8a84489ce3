package locationresolver

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/jamesrr39/mapposter-app/mapposter"
)

const number = `([+-]?\d{1,3}(?:\.\d+)?)`

var (
	pairRegexp     = regexp.MustCompile(`^(?:loc:)?\s*` + number + `\s*,\s*` + number + `\s*$`)
	atPathRegexp   = regexp.MustCompile(`@` + number + `,` + number)
	dataPairRegexp = regexp.MustCompile(`!3d` + number + `!4d` + number)
)

// query parameters that carry a "lat,lon" pair, in order of preference
var coordinateQueryKeys = []string{"q", "query", "ll", "sll", "center", "destination", "daddr"}

// query parameters that carry another URL, e.g. a consent page that wraps the real link
var nestedURLQueryKeys = []string{"continue", "link", "url"}

// ParsePair parses a bare "lat,lon" identifier.
func ParsePair(s string) (mapposter.LatLng, bool) {
	matches := pairRegexp.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return mapposter.LatLng{}, false
	}

	return latLngFromStrings(matches[1], matches[2])
}

// CoordinatesFromURL extracts a coordinate pair from a maps URL without doing any network calls.
func CoordinatesFromURL(u *url.URL) (mapposter.LatLng, bool) {
	return coordinatesFromURL(u, 0)
}

const maxNestedURLDepth = 2

func coordinatesFromURL(u *url.URL, depth int) (mapposter.LatLng, bool) {
	query := u.Query()
	for _, key := range coordinateQueryKeys {
		latLng, ok := ParsePair(query.Get(key))
		if ok {
			return latLng, true
		}
	}

	// the place pin (!3d..!4d..) is preferred over the viewport center (@lat,lon)
	fullURL := u.String()
	unescaped, err := url.PathUnescape(fullURL)
	if err == nil {
		fullURL = unescaped
	}

	matches := dataPairRegexp.FindStringSubmatch(fullURL)
	if matches != nil {
		latLng, ok := latLngFromStrings(matches[1], matches[2])
		if ok {
			return latLng, true
		}
	}

	matches = atPathRegexp.FindStringSubmatch(u.Path)
	if matches != nil {
		latLng, ok := latLngFromStrings(matches[1], matches[2])
		if ok {
			return latLng, true
		}
	}

	if depth >= maxNestedURLDepth {
		return mapposter.LatLng{}, false
	}

	for _, key := range nestedURLQueryKeys {
		nested := query.Get(key)
		if nested == "" {
			continue
		}

		nestedURL, err := url.Parse(nested)
		if err != nil {
			continue
		}

		latLng, ok := coordinatesFromURL(nestedURL, depth+1)
		if ok {
			return latLng, true
		}
	}

	return mapposter.LatLng{}, false
}

func latLngFromStrings(latStr, lonStr string) (mapposter.LatLng, bool) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return mapposter.LatLng{}, false
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return mapposter.LatLng{}, false
	}

	latLng := mapposter.LatLng{Lat: lat, Lon: lon}
	if !latLng.IsValid() {
		return mapposter.LatLng{}, false
	}

	return latLng, true
}
