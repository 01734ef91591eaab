package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/geojoki/internal/config"
	"github.com/Windi-Fikriyansyah/geojoki/internal/models"
)

type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Result is one resolved address.
type Result struct {
	Latitude         float64            `json:"latitude"`
	Longitude        float64            `json:"longitude"`
	FormattedAddress string             `json:"formatted_address"`
	Components       []AddressComponent `json:"components"`
}

func (r Result) Point() models.Point {
	return models.NewPoint(r.Latitude, r.Longitude)
}

// Component returns the long name of the first component carrying typ.
func (r Result) Component(typ string) string {
	for _, c := range r.Components {
		for _, t := range c.Types {
			if t == typ {
				return c.LongName
			}
		}
	}
	return ""
}

func (r Result) City() string {
	if v := r.Component("locality"); v != "" {
		return v
	}
	return r.Component("administrative_area_level_2")
}

func (r Result) State() string      { return r.Component("administrative_area_level_1") }
func (r Result) PostalCode() string { return r.Component("postal_code") }
func (r Result) Country() string    { return r.Component("country") }

type GeocodingService struct {
	Client   *http.Client
	APIKey   string
	BaseURL  string
	Cache    Cache
	CacheTTL time.Duration
	Log      *zap.Logger
}

func NewGeocodingService(cfg *config.Config, cache Cache, log *zap.Logger) *GeocodingService {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &GeocodingService{
		Client:   &http.Client{Timeout: cfg.GeocodingTimeout},
		APIKey:   cfg.GeocodingAPIKey,
		BaseURL:  cfg.GeocodingBaseURL,
		Cache:    cache,
		CacheTTL: cfg.GeocodingCacheTTL,
		Log:      log.Named("geocoding"),
	}
}

type apiResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress  string             `json:"formatted_address"`
		AddressComponents []AddressComponent `json:"address_components"`
		Geometry          struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves a free-form address. The bool is false when the address
// is blank or the provider fails or finds nothing.
func (s *GeocodingService) Geocode(ctx context.Context, address string) (Result, bool) {
	key := normalizeAddress(address)
	if key == "" {
		return Result{}, false
	}

	if res, ok := s.Cache.Get(ctx, key); ok {
		return res, true
	}

	q := url.Values{}
	q.Set("address", strings.TrimSpace(address))
	res, ok := s.lookup(ctx, q)
	if !ok {
		return Result{}, false
	}

	s.Cache.Set(ctx, key, res, s.CacheTTL)
	return res, true
}

// ReverseGeocode resolves coordinates to the nearest address. Results carry
// the provider's coordinate for that address.
func (s *GeocodingService) ReverseGeocode(ctx context.Context, lat, lng float64) (Result, bool) {
	if !models.ValidCoordinates(lat, lng) {
		return Result{}, false
	}

	q := url.Values{}
	q.Set("latlng", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	return s.lookup(ctx, q)
}

func (s *GeocodingService) lookup(ctx context.Context, q url.Values) (Result, bool) {
	if s.APIKey != "" {
		q.Set("key", s.APIKey)
	}
	endpoint := s.BaseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		s.Log.Warn("build request", zap.Error(err))
		return Result{}, false
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		s.Log.Warn("provider request failed", zap.Error(err))
		return Result{}, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		s.Log.Warn("read provider response", zap.Error(err))
		return Result{}, false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.Log.Warn("provider returned non-2xx", zap.Int("status", resp.StatusCode))
		return Result{}, false
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		s.Log.Warn("decode provider response", zap.Error(err))
		return Result{}, false
	}
	if out.Status != "OK" || len(out.Results) == 0 {
		s.Log.Warn("no geocoding result",
			zap.String("status", out.Status),
			zap.String("error_message", out.ErrorMessage),
		)
		return Result{}, false
	}

	first := out.Results[0]
	loc := first.Geometry.Location
	if !models.ValidCoordinates(loc.Lat, loc.Lng) {
		s.Log.Warn("provider returned invalid coordinates", zap.String("coords", fmt.Sprintf("%v,%v", loc.Lat, loc.Lng)))
		return Result{}, false
	}

	return Result{
		Latitude:         loc.Lat,
		Longitude:        loc.Lng,
		FormattedAddress: first.FormattedAddress,
		Components:       first.AddressComponents,
	}, true
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
