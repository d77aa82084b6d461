package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rubiojr/datacatalog/pkg/catalog"
	"github.com/rubiojr/datacatalog/pkg/log"
	"github.com/rubiojr/datacatalog/pkg/query"
)

// ElasticConfig configures the Elasticsearch backend.
type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Dialect must be query.DialectBool; the empty value means the same.
	Dialect query.Dialect
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// Elastic keeps entries in one Elasticsearch index.
type Elastic struct {
	es      *elasticsearch.Client
	index   string
	dialect query.Dialect
	log     *log.Logger
}

// NewElastic returns a backend for cfg. No request is made until the first
// operation. The client speaks the typeless document API of Elasticsearch 7
// and later, so only the bool dialect is accepted.
func NewElastic(cfg ElasticConfig) (*Elastic, error) {
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = query.DialectBool
	}
	if dialect != query.DialectBool {
		return nil, fmt.Errorf("%w: elasticsearch store needs the %q dialect, got %q", ErrUnsupportedDialect, query.DialectBool, dialect)
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}
	return &Elastic{
		es:      es,
		index:   cfg.Index,
		dialect: dialect,
		log:     log.ForService("elastic"),
	}, nil
}

// Close is a no-op; the client holds no resources beyond its transport.
func (s *Elastic) Close() error { return nil }

// Get fetches one entry.
func (s *Elastic) Get(ctx context.Context, id string) (*catalog.Hit, error) {
	body, err := s.do("get "+id, true, func() (*esapi.Response, error) {
		return s.es.Get(s.index, id, s.es.Get.WithContext(ctx))
	})
	if err != nil {
		return nil, err
	}

	var doc struct {
		ID     string          `json:"_id"`
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding entry %s: %w", id, err)
	}
	if !doc.Found {
		return nil, fmt.Errorf("%w: %s", catalog.ErrEntryNotFound, id)
	}
	hit := &catalog.Hit{ID: doc.ID}
	if err := json.Unmarshal(doc.Source, &hit.Entry); err != nil {
		return nil, fmt.Errorf("decoding entry %s: %w", id, err)
	}
	return hit, nil
}

// Index creates or replaces an entry and refreshes the index so the
// change is visible to the next search.
func (s *Elastic) Index(ctx context.Context, id string, e *catalog.Entry) (bool, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("marshaling entry %s: %w", id, err)
	}
	body, err := s.do("index "+id, false, func() (*esapi.Response, error) {
		return s.es.Index(s.index, bytes.NewReader(data),
			s.es.Index.WithContext(ctx),
			s.es.Index.WithDocumentID(id),
			s.es.Index.WithRefresh("true"))
	})
	if err != nil {
		return false, err
	}

	var res struct {
		Result  string `json:"result"`
		Created *bool  `json:"created"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return false, fmt.Errorf("decoding index response for %s: %w", id, err)
	}
	if res.Created != nil {
		return *res.Created, nil
	}
	return res.Result == "created", nil
}

// Update merges partial into the stored entry.
func (s *Elastic) Update(ctx context.Context, id string, partial map[string]any) error {
	data, err := json.Marshal(map[string]any{"doc": partial})
	if err != nil {
		return fmt.Errorf("%w: encoding update for %s: %v", ErrBadRequest, id, err)
	}
	_, err = s.do("update "+id, true, func() (*esapi.Response, error) {
		return s.es.Update(s.index, id, bytes.NewReader(data),
			s.es.Update.WithContext(ctx),
			s.es.Update.WithRefresh("true"))
	})
	return err
}

// Delete removes an entry.
func (s *Elastic) Delete(ctx context.Context, id string) error {
	_, err := s.do("delete "+id, true, func() (*esapi.Response, error) {
		return s.es.Delete(s.index, id,
			s.es.Delete.WithContext(ctx),
			s.es.Delete.WithRefresh("true"))
	})
	return err
}

// searchResponse covers both the pre-7 total (a number) and the object
// form.
type searchResponse struct {
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []struct {
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key         any    `json:"key"`
			KeyAsString string `json:"key_as_string"`
			DocCount    int64  `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// Search runs q rendered in the configured dialect.
func (s *Elastic) Search(ctx context.Context, q *query.CompiledQuery) (*Result, error) {
	data, err := query.MarshalElastic(q, s.dialect)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding query: %v", ErrBadRequest, err)
	}
	s.log.Debugf("search %s: %s", s.index, data)

	body, err := s.do("search", false, func() (*esapi.Response, error) {
		return s.es.Search(
			s.es.Search.WithContext(ctx),
			s.es.Search.WithIndex(s.index),
			s.es.Search.WithBody(bytes.NewReader(data)),
			s.es.Search.WithTrackTotalHits(true))
	})
	if err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: decoding search response: %v", ErrUnavailable, err)
	}

	res := &Result{
		Hits:         make([]catalog.Hit, 0, len(sr.Hits.Hits)),
		Aggregations: make(map[string][]Bucket, len(sr.Aggregations)),
	}
	res.Total, err = parseTotal(sr.Hits.Total)
	if err != nil {
		return nil, err
	}
	for _, h := range sr.Hits.Hits {
		hit := catalog.Hit{ID: h.ID}
		if err := json.Unmarshal(h.Source, &hit.Entry); err != nil {
			return nil, fmt.Errorf("decoding hit %s: %w", h.ID, err)
		}
		res.Hits = append(res.Hits, hit)
	}
	for name, agg := range sr.Aggregations {
		buckets := make([]Bucket, 0, len(agg.Buckets))
		for _, b := range agg.Buckets {
			key := b.KeyAsString
			if key == "" {
				key = fmt.Sprint(b.Key)
			}
			buckets = append(buckets, Bucket{Key: key, Count: b.DocCount})
		}
		res.Aggregations[name] = buckets
	}
	return res, nil
}

func parseTotal(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("%w: unexpected hits.total %s", ErrUnavailable, raw)
	}
	return obj.Value, nil
}

// CreateIndex creates the index with the catalog mapping unless it exists.
func (s *Elastic) CreateIndex(ctx context.Context) error {
	res, err := s.es.Indices.Exists([]string{s.index}, s.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: checking index %s: %v", ErrUnavailable, s.index, err)
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	mapping, err := json.Marshal(s.mapping())
	if err != nil {
		return fmt.Errorf("encoding mapping: %w", err)
	}
	_, err = s.do("create index "+s.index, false, func() (*esapi.Response, error) {
		return s.es.Indices.Create(s.index,
			s.es.Indices.Create.WithContext(ctx),
			s.es.Indices.Create.WithBody(bytes.NewReader(mapping)))
	})
	if err != nil {
		return err
	}
	s.log.Infof("created index %s", s.index)
	return nil
}

// DropIndex deletes the index. A missing index is not an error.
func (s *Elastic) DropIndex(ctx context.Context) error {
	_, err := s.do("drop index "+s.index, false, func() (*esapi.Response, error) {
		return s.es.Indices.Delete([]string{s.index},
			s.es.Indices.Delete.WithContext(ctx),
			s.es.Indices.Delete.WithIgnoreUnavailable(true))
	})
	return err
}

func (s *Elastic) mapping() map[string]any {
	keyword := map[string]any{"type": "keyword", "normalizer": "lowercase"}
	return map[string]any{
		"settings": map[string]any{
			"analysis": map[string]any{
				"normalizer": map[string]any{
					"lowercase": map[string]any{"type": "custom", "filter": []string{"lowercase"}},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				catalog.FieldTitle:        map[string]any{"type": "text"},
				catalog.FieldDataSample:   map[string]any{"type": "text"},
				catalog.FieldSourceURI:    map[string]any{"type": "text"},
				catalog.FieldCategory:     keyword,
				catalog.FieldFormat:       keyword,
				catalog.FieldOrgUUID:      keyword,
				catalog.FieldTargetURI:    map[string]any{"type": "keyword"},
				catalog.FieldIsPublic:     map[string]any{"type": "boolean"},
				catalog.FieldRecordCount:  map[string]any{"type": "long"},
				catalog.FieldSize:         map[string]any{"type": "long"},
				catalog.FieldCreationTime: map[string]any{"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			},
		},
	}
}

// do runs a request and classifies the outcome: transport failures and
// server errors are ErrUnavailable, 400 is ErrBadRequest and, when
// notFound is set, 404 is catalog.ErrEntryNotFound.
func (s *Elastic) do(what string, notFound bool, call func() (*esapi.Response, error)) ([]byte, error) {
	res, err := call()
	if err != nil {
		s.log.Errorf("%s: %v", what, err)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, what, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			s.log.Warnf("failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading response: %v", ErrUnavailable, what, err)
	}
	if !res.IsError() {
		return body, nil
	}

	switch {
	case res.StatusCode == http.StatusNotFound && notFound:
		return nil, fmt.Errorf("%w: %s", catalog.ErrEntryNotFound, what)
	case res.StatusCode == http.StatusBadRequest:
		s.log.Warnf("%s rejected: %s", what, body)
		return nil, fmt.Errorf("%w: %s: %s", ErrBadRequest, what, body)
	}
	s.log.Errorf("%s failed with %s: %s", what, res.Status(), body)
	return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, what, res.Status())
}
