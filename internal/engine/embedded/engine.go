// Package embedded implements the engine port on top of bleve. Indices live in
// memory, or under a root directory when one is configured, and behave like
// dynamically mapped Elasticsearch indices: the first write creates them.
package embedded

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/eventsearch/mcp-server/internal/engine"
	"go.uber.org/zap"
)

// Config selects where indices are kept
type Config struct {
	// Dir holds one sub-directory per index. Empty keeps everything in memory.
	Dir string

	Logger *zap.Logger
}

// Engine implements engine.Engine with one bleve index per index name
type Engine struct {
	dir    string
	lock   *dirLock
	logger *zap.Logger

	mu      sync.Mutex
	indices map[string]bleve.Index
}

var _ engine.Engine = (*Engine)(nil)

// New opens the engine, reopening any index already present under cfg.Dir
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{dir: cfg.Dir, logger: logger, indices: make(map[string]bleve.Index)}
	if cfg.Dir == "" {
		return e, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	lock := newDirLock(cfg.Dir, logger)
	if err := lock.acquire(); err != nil {
		return nil, err
	}
	e.lock = lock

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("read data directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		idx, err := bleve.Open(filepath.Join(cfg.Dir, entry.Name()))
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("open index %s: %w", entry.Name(), err)
		}
		e.indices[entry.Name()] = idx
	}
	logger.Info("embedded engine opened", zap.String("dir", cfg.Dir), zap.Int("indices", len(e.indices)))
	return e, nil
}

func validIndexName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("invalid index name %q", name)
	}
	if strings.ContainsAny(name, `\/*?"<>| ,#:`) || name != strings.ToLower(name) {
		return fmt.Errorf("invalid index name %q", name)
	}
	return nil
}

// create builds a new index; e.mu must be held
func (e *Engine) create(name string, props map[string]fieldSpec) (bleve.Index, error) {
	if err := validIndexName(name); err != nil {
		return nil, err
	}
	im, err := buildMapping(props)
	if err != nil {
		return nil, err
	}

	var idx bleve.Index
	if e.dir == "" {
		idx, err = bleve.NewMemOnly(im)
	} else {
		idx, err = bleve.New(filepath.Join(e.dir, name), im)
	}
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", name, err)
	}
	e.indices[name] = idx
	return idx, nil
}

func (e *Engine) lookupIndex(name string) (bleve.Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indices == nil {
		return nil, errors.New("engine closed")
	}
	idx, ok := e.indices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrIndexNotFound, name)
	}
	return idx, nil
}

// writableIndex returns the named index, creating it with dynamic mapping if needed
func (e *Engine) writableIndex(name string) (bleve.Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indices == nil {
		return nil, errors.New("engine closed")
	}
	if idx, ok := e.indices[name]; ok {
		return idx, nil
	}
	return e.create(name, nil)
}

func (e *Engine) CreateIndex(ctx context.Context, name string, body []byte) (bool, error) {
	props, err := parseProperties(body)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indices == nil {
		return false, errors.New("engine closed")
	}
	if _, exists := e.indices[name]; exists {
		return false, fmt.Errorf("index %s already exists", name)
	}
	if _, err := e.create(name, props); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) IndexExists(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indices == nil {
		return false, errors.New("engine closed")
	}
	_, ok := e.indices[name]
	return ok, nil
}

// PutMapping creates the index with the given mapping. Mappings of existing
// bleve indices cannot change, so an existing index yields engine.ErrUnsupported.
func (e *Engine) PutMapping(ctx context.Context, name string, body []byte) (bool, error) {
	props, err := parseProperties(body)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.indices == nil {
		return false, errors.New("engine closed")
	}
	if _, exists := e.indices[name]; exists {
		return false, fmt.Errorf("%w: mapping of index %s is immutable", engine.ErrUnsupported, name)
	}
	if _, err := e.create(name, props); err != nil {
		return false, err
	}
	return true, nil
}

// source fetches the stored JSON of a document
func source(ctx context.Context, idx bleve.Index, id string) (json.RawMessage, bool, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Size = 1
	req.Fields = []string{sourceField}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if len(res.Hits) == 0 {
		return nil, false, nil
	}
	raw, _ := res.Hits[0].Fields[sourceField].(string)
	return json.RawMessage(raw), true, nil
}

func (e *Engine) Get(ctx context.Context, index, id string) (json.RawMessage, error) {
	idx, err := e.lookupIndex(index)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrNotFound, err)
	}
	src, found, err := source(ctx, idx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", index, id, err)
	}
	if !found {
		return nil, engine.ErrNotFound
	}
	return src, nil
}

// termQuery matches the exact value. A field that carries a keyword
// sub-field is analyzed, so only the sub-field is consulted.
func termQuery(idx bleve.Index, t *engine.Term) query.Query {
	if t == nil {
		return bleve.NewMatchAllQuery()
	}
	field := t.Field
	if !strings.HasSuffix(field, ".keyword") && hasSubField(idx, t.KeywordField()) {
		field = t.KeywordField()
	}
	q := bleve.NewTermQuery(t.Value)
	q.SetField(field)
	return q
}

// hasSubField reports whether name is declared as a sub-field in the index mapping
func hasSubField(idx bleve.Index, name string) bool {
	im, ok := idx.Mapping().(*mapping.IndexMappingImpl)
	if !ok || im.DefaultMapping == nil {
		return false
	}
	parent := strings.TrimSuffix(name, ".keyword")
	dm, ok := im.DefaultMapping.Properties[parent]
	if !ok || dm == nil {
		return false
	}
	for _, fm := range dm.Fields {
		if fm.Name == name {
			return true
		}
	}
	return false
}

func (e *Engine) Search(ctx context.Context, index string, q engine.Query) ([]engine.Hit, error) {
	idx, err := e.lookupIndex(index)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequest(termQuery(idx, q.Term))
	if q.Size > 0 {
		req.Size = q.Size
	}
	req.Fields = []string{sourceField}
	if len(q.Sort) > 0 {
		order := make([]string, 0, len(q.Sort))
		for _, s := range q.Sort {
			if s.Desc {
				order = append(order, "-"+s.Field)
			} else {
				order = append(order, s.Field)
			}
		}
		req.SortBy(order)
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", index, err)
	}

	hits := make([]engine.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		raw, _ := h.Fields[sourceField].(string)
		hits = append(hits, engine.Hit{ID: h.ID, Source: json.RawMessage(raw)})
	}
	return hits, nil
}

// document builds the value indexed by bleve: the decoded fields plus the raw source
func document(raw []byte) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("document is not a JSON object: %w", err)
	}
	if fields == nil {
		return nil, errors.New("document is not a JSON object")
	}
	compacted := new(bytes.Buffer)
	if err := json.Compact(compacted, raw); err != nil {
		return nil, err
	}
	fields[sourceField] = compacted.String()
	return fields, nil
}

func (e *Engine) Index(ctx context.Context, index, id string, doc []byte) (engine.Result, error) {
	idx, err := e.writableIndex(index)
	if err != nil {
		return "", err
	}
	data, err := document(doc)
	if err != nil {
		return "", err
	}

	_, existed, err := source(ctx, idx, id)
	if err != nil {
		return "", fmt.Errorf("index %s/%s: %w", index, id, err)
	}
	if err := idx.Index(id, data); err != nil {
		return "", fmt.Errorf("index %s/%s: %w", index, id, err)
	}
	if existed {
		return engine.ResultUpdated, nil
	}
	return engine.ResultCreated, nil
}

// merge applies a partial document onto an existing one, recursing into objects
func merge(dst, patch map[string]interface{}) {
	for k, v := range patch {
		if sub, ok := v.(map[string]interface{}); ok {
			if cur, ok := dst[k].(map[string]interface{}); ok {
				merge(cur, sub)
				continue
			}
		}
		dst[k] = v
	}
}

// merged returns the stored document with partial applied and whether anything changed
func merged(existing, partial []byte) ([]byte, bool, error) {
	var base, patch map[string]interface{}
	if err := json.Unmarshal(existing, &base); err != nil {
		return nil, false, fmt.Errorf("stored document is corrupt: %w", err)
	}
	if err := json.Unmarshal(partial, &patch); err != nil || patch == nil {
		return nil, false, errors.New("partial document is not a JSON object")
	}
	before, _ := json.Marshal(base)
	if base == nil {
		base = map[string]interface{}{}
	}
	merge(base, patch)
	after, err := json.Marshal(base)
	if err != nil {
		return nil, false, err
	}
	return after, !bytes.Equal(before, after), nil
}

func (e *Engine) Update(ctx context.Context, index, id string, partial []byte) (engine.Result, error) {
	idx, err := e.lookupIndex(index)
	if err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrNotFound, err)
	}

	existing, found, err := source(ctx, idx, id)
	if err != nil {
		return "", fmt.Errorf("update %s/%s: %w", index, id, err)
	}
	if !found {
		return "", fmt.Errorf("%w: %s/%s", engine.ErrNotFound, index, id)
	}

	doc, changed, err := merged(existing, partial)
	if err != nil {
		return "", err
	}
	if !changed {
		return engine.ResultNoop, nil
	}
	data, err := document(doc)
	if err != nil {
		return "", err
	}
	if err := idx.Index(id, data); err != nil {
		return "", fmt.Errorf("update %s/%s: %w", index, id, err)
	}
	return engine.ResultUpdated, nil
}

func (e *Engine) Delete(ctx context.Context, index, id string) (engine.Result, error) {
	idx, err := e.lookupIndex(index)
	if err != nil {
		return "", err
	}
	_, found, err := source(ctx, idx, id)
	if err != nil {
		return "", fmt.Errorf("delete %s/%s: %w", index, id, err)
	}
	if !found {
		return engine.ResultNotFound, nil
	}
	if err := idx.Delete(id); err != nil {
		return "", fmt.Errorf("delete %s/%s: %w", index, id, err)
	}
	return engine.ResultDeleted, nil
}

func (e *Engine) Bulk(ctx context.Context, index string, items []engine.BulkItem) ([]engine.BulkItemResult, error) {
	if len(items) == 0 {
		return nil, nil
	}
	idx, err := e.writableIndex(index)
	if err != nil {
		return nil, err
	}

	// Later items must see earlier ones, as in a sequential bulk
	pending := make(map[string][]byte)
	deleted := make(map[string]bool)
	current := func(id string) ([]byte, bool, error) {
		if deleted[id] {
			return nil, false, nil
		}
		if doc, ok := pending[id]; ok {
			return doc, true, nil
		}
		src, found, err := source(ctx, idx, id)
		return src, found, err
	}

	batch := idx.NewBatch()
	results := make([]engine.BulkItemResult, 0, len(items))
	for _, item := range items {
		r := engine.BulkItemResult{Op: item.Op, ID: item.ID}
		existing, found, err := current(item.ID)
		if err != nil {
			return nil, fmt.Errorf("bulk %s: %w", index, err)
		}

		switch item.Op {
		case engine.OpIndex, engine.OpCreate:
			if item.Op == engine.OpCreate && found {
				r.Status, r.Err = 409, fmt.Errorf("document %s already exists", item.ID)
				break
			}
			data, err := document(item.Doc)
			if err != nil {
				r.Status, r.Err = 400, err
				break
			}
			if err := batch.Index(item.ID, data); err != nil {
				r.Status, r.Err = 400, err
				break
			}
			pending[item.ID], deleted[item.ID] = item.Doc, false
			r.Status, r.Result = 201, engine.ResultCreated
			if found {
				r.Status, r.Result = 200, engine.ResultUpdated
			}
		case engine.OpUpdate:
			if !found {
				r.Status, r.Err = 404, fmt.Errorf("%w: %s", engine.ErrNotFound, item.ID)
				break
			}
			doc, changed, err := merged(existing, item.Doc)
			if err != nil {
				r.Status, r.Err = 400, err
				break
			}
			r.Status, r.Result = 200, engine.ResultNoop
			if !changed {
				break
			}
			data, err := document(doc)
			if err != nil {
				r.Status, r.Err = 400, err
				break
			}
			if err := batch.Index(item.ID, data); err != nil {
				r.Status, r.Err = 400, err
				break
			}
			pending[item.ID] = doc
			r.Result = engine.ResultUpdated
		case engine.OpDelete:
			if !found {
				r.Status, r.Result = 404, engine.ResultNotFound
				break
			}
			batch.Delete(item.ID)
			delete(pending, item.ID)
			deleted[item.ID] = true
			r.Status, r.Result = 200, engine.ResultDeleted
		default:
			r.Status, r.Err = 400, fmt.Errorf("unknown bulk action %q", item.Op)
		}
		results = append(results, r)
	}

	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("bulk %s: %w", index, err)
	}
	return results, nil
}

// matchingIDs returns the ids of every document matching t
func matchingIDs(ctx context.Context, idx bleve.Index, t engine.Term) ([]string, error) {
	total, err := idx.DocCount()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(termQuery(idx, &t))
	req.Size = int(total)

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func (e *Engine) DeleteByQuery(ctx context.Context, index string, t engine.Term) (int64, error) {
	idx, err := e.lookupIndex(index)
	if err != nil {
		return 0, err
	}
	ids, err := matchingIDs(ctx, idx, t)
	if err != nil {
		return 0, fmt.Errorf("delete by query %s: %w", index, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	batch := idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := idx.Batch(batch); err != nil {
		return 0, fmt.Errorf("delete by query %s: %w", index, err)
	}
	return int64(len(ids)), nil
}

func (e *Engine) Count(ctx context.Context, index string, t engine.Term) (int64, error) {
	idx, err := e.lookupIndex(index)
	if err != nil {
		return 0, err
	}
	req := bleve.NewSearchRequest(termQuery(idx, &t))
	req.Size = 0

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", index, err)
	}
	return int64(res.Total), nil
}

// Refresh is a no-op: bleve writes are searchable once they return
func (e *Engine) Refresh(ctx context.Context, index string) error {
	_, err := e.lookupIndex(index)
	return err
}

// Close closes every index. The engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, idx := range e.indices {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index %s: %w", name, err))
		}
	}
	e.indices = nil
	if e.lock != nil {
		if err := e.lock.release(); err != nil {
			errs = append(errs, err)
		}
		e.lock = nil
	}
	return errors.Join(errs...)
}
