package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// Default upstream endpoints. Overridable for tests and for self-hosted
// mirrors.
const (
	DefaultWeatherBaseURL = "https://wttr.in"
	DefaultPostsBaseURL   = "https://jsonplaceholder.typicode.com"
)

// Upstream wraps the HTTP calls to the data sources behind the provider's
// tools: wttr.in for weather and JSONPlaceholder for posts.
type Upstream struct {
	client         *http.Client
	weatherBaseURL string
	postsBaseURL   string
	logger         *slog.Logger
}

// UpstreamConfig overrides the default endpoints; zero values keep the
// defaults.
type UpstreamConfig struct {
	WeatherBaseURL string
	PostsBaseURL   string
}

// NewUpstream creates an upstream client.
func NewUpstream(client *http.Client, cfg UpstreamConfig, logger *slog.Logger) *Upstream {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.WeatherBaseURL == "" {
		cfg.WeatherBaseURL = DefaultWeatherBaseURL
	}
	if cfg.PostsBaseURL == "" {
		cfg.PostsBaseURL = DefaultPostsBaseURL
	}
	return &Upstream{
		client:         client,
		weatherBaseURL: cfg.WeatherBaseURL,
		postsBaseURL:   cfg.PostsBaseURL,
		logger:         logger.With("component", "upstream"),
	}
}

// WeatherReport is the subset of wttr.in's j1 payload the weather tool
// reports.
type WeatherReport struct {
	City      string
	TempC     string
	Condition string
	Humidity  string
	WindKmph  string
}

// wttrResponse mirrors the fields of interest in wttr.in's ?format=j1 JSON.
type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		Humidity    string `json:"humidity"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
		WindspeedKmph string `json:"windspeedKmph"`
	} `json:"current_condition"`
}

// CurrentWeather fetches current conditions for a city from wttr.in.
func (u *Upstream) CurrentWeather(ctx context.Context, city string) (*WeatherReport, error) {
	endpoint := fmt.Sprintf("%s/%s?format=j1", u.weatherBaseURL, url.PathEscape(city))
	log := u.logger.With(slog.String("city", city))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "mcprouter-agroserver/0.1")

	resp, err := u.client.Do(req)
	if err != nil {
		log.Warn("Weather request failed", slog.Any("error", err))
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warn("Weather upstream returned non-success status", slog.Int("status_code", resp.StatusCode))
		return nil, fmt.Errorf("weather upstream HTTP %d: %s", resp.StatusCode, body)
	}

	var payload wttrResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode weather payload: %w", err)
	}
	if len(payload.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather payload for %q carries no current condition", city)
	}

	current := payload.CurrentCondition[0]
	report := &WeatherReport{
		City:     city,
		TempC:    current.TempC,
		Humidity: current.Humidity,
		WindKmph: current.WindspeedKmph,
	}
	if len(current.WeatherDesc) > 0 {
		report.Condition = current.WeatherDesc[0].Value
	}
	return report, nil
}

// Post is one JSONPlaceholder blog post.
type Post struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Posts fetches up to limit posts from JSONPlaceholder. The limit is clamped
// to the tool schema's 1..100 range.
func (u *Upstream) Posts(ctx context.Context, limit int) ([]Post, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	endpoint := u.postsBaseURL + "/posts"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		u.logger.Warn("Posts request failed", slog.Any("error", err))
		return nil, fmt.Errorf("posts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("posts upstream HTTP %d", resp.StatusCode)
	}

	var posts []Post
	if err := json.NewDecoder(resp.Body).Decode(&posts); err != nil {
		return nil, fmt.Errorf("failed to decode posts payload: %w", err)
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}
