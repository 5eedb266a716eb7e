package meds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Cache is a read-through cache for RxNorm responses. RxNorm data changes
// rarely, so stale entries are harmless.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
}

type Medication struct {
	RxCUI string `json:"rxcui"`
	Name  string `json:"name"`
	Score string `json:"score"`
}

type Details struct {
	RxCUI       string   `json:"rxcui"`
	Name        string   `json:"name"`
	Synonym     string   `json:"synonym,omitempty"`
	DoseForm    string   `json:"dose_form,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
}

// Client queries the National Library of Medicine RxNorm REST API.
type Client struct {
	baseURL string
	http    *http.Client
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

func NewClient(baseURL string, cache Cache, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://rxnav.nlm.nih.gov/REST"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:  cache,
		ttl:    24 * time.Hour,
		logger: logger,
	}
}

type approximateTermResponse struct {
	ApproximateGroup struct {
		Candidate []struct {
			RxCUI string `json:"rxcui"`
			Name  string `json:"name"`
			Score string `json:"score"`
		} `json:"candidate"`
	} `json:"approximateGroup"`
}

// Search returns up to five approximate matches for the term, deduplicated
// case-insensitively by name.
func (c *Client) Search(ctx context.Context, term string) ([]Medication, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}

	cacheKey := "meds:search:" + strings.ToLower(term)
	if cached, ok := c.cacheGet(ctx, cacheKey); ok {
		var meds []Medication
		if err := json.Unmarshal([]byte(cached), &meds); err == nil {
			return meds, nil
		}
	}

	var parsed approximateTermResponse
	endpoint := fmt.Sprintf("%s/approximateTerm.json?term=%s&maxEntries=5", c.baseURL, url.QueryEscape(term))
	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var meds []Medication
	for _, cand := range parsed.ApproximateGroup.Candidate {
		name := strings.TrimSpace(cand.Name)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		meds = append(meds, Medication{RxCUI: cand.RxCUI, Name: name, Score: cand.Score})
	}

	c.cachePut(ctx, cacheKey, meds)
	return meds, nil
}

type propertiesResponse struct {
	Properties struct {
		RxCUI           string `json:"rxcui"`
		Name            string `json:"name"`
		Synonym         string `json:"synonym"`
		FullName        string `json:"fullName"`
		RxTermsDoseForm string `json:"rxtermsDoseForm"`
	} `json:"properties"`
}

type relatedResponse struct {
	RelatedGroup struct {
		ConceptGroup []struct {
			ConceptProperties []struct {
				Name string `json:"name"`
			} `json:"conceptProperties"`
		} `json:"conceptGroup"`
	} `json:"relatedGroup"`
}

// Details fetches the concept properties plus its active ingredients.
func (c *Client) Details(ctx context.Context, rxcui string) (*Details, error) {
	rxcui = strings.TrimSpace(rxcui)
	if rxcui == "" {
		return nil, fmt.Errorf("rxcui must not be empty")
	}

	cacheKey := "meds:details:" + rxcui
	if cached, ok := c.cacheGet(ctx, cacheKey); ok {
		var d Details
		if err := json.Unmarshal([]byte(cached), &d); err == nil {
			return &d, nil
		}
	}

	var props propertiesResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/rxcui/%s/properties.json", c.baseURL, url.PathEscape(rxcui)), &props); err != nil {
		return nil, err
	}

	var related relatedResponse
	if err := c.getJSON(ctx, fmt.Sprintf("%s/rxcui/%s/related.json?tty=IN", c.baseURL, url.PathEscape(rxcui)), &related); err != nil {
		return nil, err
	}

	var ingredients []string
	for _, group := range related.RelatedGroup.ConceptGroup {
		for _, prop := range group.ConceptProperties {
			if prop.Name != "" {
				ingredients = append(ingredients, prop.Name)
			}
		}
	}

	name := props.Properties.FullName
	if name == "" {
		name = props.Properties.Name
	}
	d := &Details{
		RxCUI:       props.Properties.RxCUI,
		Name:        name,
		Synonym:     props.Properties.Synonym,
		DoseForm:    props.Properties.RxTermsDoseForm,
		Ingredients: ingredients,
	}

	c.cachePut(ctx, cacheKey, d)
	return d, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rxnorm returned %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

func (c *Client) cacheGet(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	return c.cache.Get(ctx, key)
}

func (c *Client) cachePut(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("cache marshal failed", "key", key, "err", err)
		}
		return
	}
	c.cache.Set(ctx, key, string(raw), c.ttl)
}
