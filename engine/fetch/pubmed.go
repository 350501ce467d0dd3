// Package fetch retrieves abstracts from upstream literature sources and
// converts them into documents for the ingestion pipeline.
package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AbstraktAI/abstrakt-mvp/engine/domain"
	"github.com/AbstraktAI/abstrakt-mvp/pkg/fn"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// fetchBatchSize is the max PMIDs per efetch request.
const fetchBatchSize = 50

// ErrRateLimited is returned when NCBI rejects a request for exceeding the
// request quota.
var ErrRateLimited = fmt.Errorf("pubmed rate limited")

// PubMedClient talks to the NCBI E-utilities API. Without an API key NCBI
// allows 3 requests per second; with one, 10.
type PubMedClient struct {
	baseURL     string
	apiKey      string
	tool        string
	email       string
	rateLimiter *rate.Limiter
	httpClient  *http.Client
	seen        sync.Map // dedup by PMID
}

// PubMedOption configures a PubMedClient.
type PubMedOption func(*PubMedClient)

// WithAPIKey sets the NCBI API key and raises the request rate accordingly.
func WithAPIKey(key string) PubMedOption {
	return func(c *PubMedClient) {
		c.apiKey = key
		c.rateLimiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 10)
	}
}

// WithBaseURL overrides the E-utilities endpoint, used in tests.
func WithBaseURL(u string) PubMedOption {
	return func(c *PubMedClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewPubMedClient creates a client identified to NCBI by tool and email.
func NewPubMedClient(tool, email string, opts ...PubMedOption) *PubMedClient {
	c := &PubMedClient{
		baseURL:     defaultBaseURL,
		tool:        tool,
		email:       email,
		rateLimiter: rate.NewLimiter(rate.Every(334*time.Millisecond), 3),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// searchResponse is the esearch JSON envelope.
type searchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search runs an esearch query and returns matching PMIDs.
func (c *PubMedClient) Search(ctx context.Context, query string, max int) fn.Result[[]string] {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fn.Err[[]string](err)
	}

	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmax":  {strconv.Itoa(max)},
		"retmode": {"json"},
	}
	c.identify(params)

	body, err := c.get(ctx, "/esearch.fcgi?"+params.Encode())
	if err != nil {
		return fn.Err[[]string](err)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return fn.Err[[]string](fmt.Errorf("esearch decode: %w", err))
	}
	return fn.Ok(sr.ESearchResult.IDList)
}

// Fetch retrieves full records for the given PMIDs and converts them into
// documents. PMIDs already fetched by this client are skipped.
func (c *PubMedClient) Fetch(ctx context.Context, pmids []string) fn.Result[[]domain.Document] {
	var fresh []string
	for _, id := range pmids {
		if _, loaded := c.seen.LoadOrStore(id, true); !loaded {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return fn.Ok[[]domain.Document](nil)
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fn.Err[[]domain.Document](err)
	}

	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(fresh, ",")},
		"rettype": {"abstract"},
		"retmode": {"xml"},
	}
	c.identify(params)

	body, err := c.get(ctx, "/efetch.fcgi?"+params.Encode())
	if err != nil {
		return fn.Err[[]domain.Document](err)
	}

	var set articleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return fn.Err[[]domain.Document](fmt.Errorf("efetch decode: %w", err))
	}

	docs := make([]domain.Document, 0, len(set.Articles))
	for _, a := range set.Articles {
		if doc, ok := a.document(); ok {
			docs = append(docs, doc)
		}
	}
	return fn.Ok(docs)
}

// Stream searches for a query and fetches all matches in batches, emitting
// documents on the returned channel until done or the context is canceled.
func (c *PubMedClient) Stream(ctx context.Context, query string, max int) <-chan fn.Result[domain.Document] {
	ch := make(chan fn.Result[domain.Document], fetchBatchSize)

	go func() {
		defer close(ch)

		pmids, err := c.Search(ctx, query, max).Unwrap()
		if err != nil {
			ch <- fn.Err[domain.Document](err)
			return
		}

		for i := 0; i < len(pmids); i += fetchBatchSize {
			if ctx.Err() != nil {
				return
			}
			end := i + fetchBatchSize
			if end > len(pmids) {
				end = len(pmids)
			}
			docs, err := c.Fetch(ctx, pmids[i:end]).Unwrap()
			if err != nil {
				ch <- fn.Err[domain.Document](err)
				return
			}
			for _, d := range docs {
				ch <- fn.Ok(d)
			}
		}
	}()

	return ch
}

func (c *PubMedClient) identify(params url.Values) {
	if c.tool != "" {
		params.Set("tool", c.tool)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
}

// retryOpts covers transient E-utilities failures; a 429 is surfaced
// immediately so the caller can back off its own schedule.
var retryOpts = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Jitter:      true,
}

func (c *PubMedClient) get(ctx context.Context, path string) ([]byte, error) {
	// A rate-limit rejection is returned as a settled outcome so the retry
	// loop does not hammer NCBI; everything else is treated as transient.
	type outcome struct {
		body []byte
		err  error
	}
	r := fn.Retry(ctx, retryOpts, func(ctx context.Context) fn.Result[outcome] {
		body, err := c.doGet(ctx, path)
		if err != nil && err != ErrRateLimited {
			return fn.Err[outcome](err)
		}
		return fn.Ok(outcome{body: body, err: err})
	})
	v, err := r.Unwrap()
	if err != nil {
		return nil, err
	}
	return v.body, v.err
}

func (c *PubMedClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eutils status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
