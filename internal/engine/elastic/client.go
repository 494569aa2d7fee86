package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/eventsearch/mcp-server/internal/engine"
)

const (
	DefaultHost   = "localhost"
	DefaultPort   = 9200
	DefaultScheme = "http"
)

// Config holds the connection parameters of the Elasticsearch engine
type Config struct {
	Host     string
	Port     int
	Scheme   string
	Username string
	Password string

	// RefreshWrites makes every write visible to search before it returns
	RefreshWrites bool
}

// DefaultConfig returns the fixed local endpoint http://localhost:9200
func DefaultConfig() Config {
	return Config{Host: DefaultHost, Port: DefaultPort, Scheme: DefaultScheme}
}

// URL is the base address of the cluster
func (c Config) URL() string {
	u := url.URL{Scheme: c.Scheme, Host: c.Host + ":" + strconv.Itoa(c.Port)}
	return u.String()
}

// Client implements engine.Engine over the Elasticsearch REST API
type Client struct {
	es        *elasticsearch.Client
	transport *http.Transport
	refresh   bool
}

var _ engine.Engine = (*Client)(nil)

// New creates a client for the cluster at cfg. No request is sent.
func New(cfg Config) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL()},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{es: es, transport: transport, refresh: cfg.RefreshWrites}, nil
}

// ResponseError is an error answer from the cluster
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

func (e *ResponseError) Unwrap() error {
	if e.Type == "index_not_found_exception" {
		return engine.ErrIndexNotFound
	}
	return nil
}

func decodeError(res *esapi.Response) *ResponseError {
	body, _ := io.ReadAll(res.Body)
	return parseError(res.StatusCode, body)
}

func parseError(status int, body []byte) *ResponseError {
	respErr := &ResponseError{Status: status}

	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Error) == 0 {
		return respErr
	}

	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(payload.Error, &detail) == nil && detail.Type != "" {
		respErr.Type = detail.Type
		respErr.Reason = detail.Reason
		return respErr
	}

	var reason string
	if json.Unmarshal(payload.Error, &reason) == nil {
		respErr.Reason = reason
	}
	return respErr
}

func decodeBody(res *esapi.Response, v interface{}) error {
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) refreshParam() string {
	if c.refresh {
		return "true"
	}
	return "false"
}

func (c *Client) CreateIndex(ctx context.Context, name string, body []byte) (bool, error) {
	opts := []func(*esapi.IndicesCreateRequest){c.es.Indices.Create.WithContext(ctx)}
	if len(body) > 0 {
		opts = append(opts, c.es.Indices.Create.WithBody(bytes.NewReader(body)))
	}

	res, err := c.es.Indices.Create(name, opts...)
	if err != nil {
		return false, fmt.Errorf("create index %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, decodeError(res)
	}

	var out struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := decodeBody(res, &out); err != nil {
		return false, err
	}
	return out.Acknowledged, nil
}

func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{name}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, decodeError(res)
	}
}

func (c *Client) PutMapping(ctx context.Context, name string, mapping []byte) (bool, error) {
	res, err := c.es.Indices.PutMapping([]string{name}, bytes.NewReader(mapping), c.es.Indices.PutMapping.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("put mapping %s: %w", name, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, decodeError(res)
	}

	var out struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := decodeBody(res, &out); err != nil {
		return false, err
	}
	return out.Acknowledged, nil
}

func (c *Client) Get(ctx context.Context, index, id string) (json.RawMessage, error) {
	res, err := c.es.Get(index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		if respErr := decodeError(res); respErr.Type != "" {
			return nil, fmt.Errorf("%w: %w", engine.ErrNotFound, respErr)
		}
		return nil, engine.ErrNotFound
	}
	if res.IsError() {
		return nil, decodeError(res)
	}

	var out struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := decodeBody(res, &out); err != nil {
		return nil, err
	}
	if !out.Found {
		return nil, engine.ErrNotFound
	}
	return out.Source, nil
}

// termQuery matches the exact value. When the document carries a keyword
// sub-field the analyzed parent is skipped, so a single token of a text field
// never matches.
func termQuery(t *engine.Term) map[string]interface{} {
	if t == nil {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	clause := func(field string) map[string]interface{} {
		return map[string]interface{}{
			"term": map[string]interface{}{field: map[string]interface{}{"value": t.Value}},
		}
	}
	if strings.HasSuffix(t.Field, ".keyword") {
		return clause(t.Field)
	}
	plain := map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": []interface{}{clause(t.Field)},
			"must_not": []interface{}{
				map[string]interface{}{"exists": map[string]interface{}{"field": t.KeywordField()}},
			},
		},
	}
	return map[string]interface{}{
		"bool": map[string]interface{}{
			"should":               []interface{}{clause(t.KeywordField()), plain},
			"minimum_should_match": 1,
		},
	}
}

func encodeJSON(v interface{}) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return &buf, nil
}

func (c *Client) Search(ctx context.Context, index string, q engine.Query) ([]engine.Hit, error) {
	body := map[string]interface{}{"query": termQuery(q.Term)}
	if q.Size > 0 {
		body["size"] = q.Size
	}
	if len(q.Sort) > 0 {
		sorts := make([]interface{}, 0, len(q.Sort))
		for _, s := range q.Sort {
			order := "asc"
			if s.Desc {
				order = "desc"
			}
			sorts = append(sorts, map[string]interface{}{
				s.Field: map[string]interface{}{"order": order, "unmapped_type": "keyword"},
			})
		}
		body["sort"] = sorts
	}

	buf, err := encodeJSON(body)
	if err != nil {
		return nil, err
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(buf),
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, decodeError(res)
	}

	var out struct {
		Hits struct {
			Hits []struct {
				ID     string          `json:"_id"`
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := decodeBody(res, &out); err != nil {
		return nil, err
	}

	hits := make([]engine.Hit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hits = append(hits, engine.Hit{ID: h.ID, Source: h.Source})
	}
	return hits, nil
}

type writeResponse struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
}

func (c *Client) Index(ctx context.Context, index, id string, doc []byte) (engine.Result, error) {
	res, err := c.es.Index(index, bytes.NewReader(doc),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithRefresh(c.refreshParam()),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("index %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", decodeError(res)
	}

	var out writeResponse
	if err := decodeBody(res, &out); err != nil {
		return "", err
	}
	return engine.Result(out.Result), nil
}

func (c *Client) Bulk(ctx context.Context, index string, items []engine.BulkItem) ([]engine.BulkItemResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		meta := map[string]interface{}{string(item.Op): map[string]interface{}{"_id": item.ID}}
		if err := enc.Encode(meta); err != nil {
			return nil, fmt.Errorf("encode bulk action: %w", err)
		}
		switch item.Op {
		case engine.OpDelete:
		case engine.OpUpdate:
			if err := enc.Encode(map[string]json.RawMessage{"doc": item.Doc}); err != nil {
				return nil, fmt.Errorf("encode bulk update: %w", err)
			}
		default:
			buf.Write(bytes.TrimSpace(item.Doc))
			buf.WriteByte('\n')
		}
	}

	res, err := c.es.Bulk(&buf,
		c.es.Bulk.WithIndex(index),
		c.es.Bulk.WithRefresh(c.refreshParam()),
		c.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("bulk %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, decodeError(res)
	}

	var out struct {
		Errors bool                          `json:"errors"`
		Items  []map[string]bulkResponseItem `json:"items"`
	}
	if err := decodeBody(res, &out); err != nil {
		return nil, err
	}

	results := make([]engine.BulkItemResult, 0, len(out.Items))
	for _, entry := range out.Items {
		for op, item := range entry {
			r := engine.BulkItemResult{
				Op:     engine.Op(op),
				ID:     item.ID,
				Result: engine.Result(item.Result),
				Status: item.Status,
			}
			if item.Error != nil {
				r.Err = &ResponseError{Status: item.Status, Type: item.Error.Type, Reason: item.Error.Reason}
			}
			results = append(results, r)
		}
	}
	return results, nil
}

type bulkResponseItem struct {
	ID     string `json:"_id"`
	Result string `json:"result"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (c *Client) Update(ctx context.Context, index, id string, partial []byte) (engine.Result, error) {
	buf, err := encodeJSON(map[string]json.RawMessage{"doc": partial})
	if err != nil {
		return "", err
	}

	res, err := c.es.Update(index, id, buf,
		c.es.Update.WithRefresh(c.refreshParam()),
		c.es.Update.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("update %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %w", engine.ErrNotFound, decodeError(res))
	}
	if res.IsError() {
		return "", decodeError(res)
	}

	var out writeResponse
	if err := decodeBody(res, &out); err != nil {
		return "", err
	}
	return engine.Result(out.Result), nil
}

func (c *Client) Delete(ctx context.Context, index, id string) (engine.Result, error) {
	res, err := c.es.Delete(index, id,
		c.es.Delete.WithRefresh(c.refreshParam()),
		c.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return "", fmt.Errorf("delete %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out writeResponse
	decodeErr := json.Unmarshal(body, &out)
	if res.IsError() {
		// A missing document is a 404 carrying a regular write body
		if res.StatusCode == http.StatusNotFound && decodeErr == nil && out.Result != "" {
			return engine.Result(out.Result), nil
		}
		return "", parseError(res.StatusCode, body)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode response: %w", decodeErr)
	}
	return engine.Result(out.Result), nil
}

func (c *Client) DeleteByQuery(ctx context.Context, index string, t engine.Term) (int64, error) {
	buf, err := encodeJSON(map[string]interface{}{"query": termQuery(&t)})
	if err != nil {
		return 0, err
	}

	res, err := c.es.DeleteByQuery([]string{index}, buf,
		c.es.DeleteByQuery.WithRefresh(c.refresh),
		c.es.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, decodeError(res)
	}

	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := decodeBody(res, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

func (c *Client) Count(ctx context.Context, index string, t engine.Term) (int64, error) {
	buf, err := encodeJSON(map[string]interface{}{"query": termQuery(&t)})
	if err != nil {
		return 0, err
	}

	res, err := c.es.Count(
		c.es.Count.WithIndex(index),
		c.es.Count.WithBody(buf),
		c.es.Count.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, decodeError(res)
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := decodeBody(res, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Refresh(ctx context.Context, index string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithIndex(index),
		c.es.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return decodeError(res)
	}
	return nil
}

// Close releases idle connections. The client must not be used afterwards.
func (c *Client) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// IsResponseError reports whether err carries an error answer from the cluster
func IsResponseError(err error) bool {
	var respErr *ResponseError
	return errors.As(err, &respErr)
}
