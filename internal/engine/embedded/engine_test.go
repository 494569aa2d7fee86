package embedded

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/eventsearch/mcp-server/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventsMapping = `{
  "mappings": {
    "properties": {
      "id": {"type": "keyword"},
      "title": {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "place": {"type": "keyword"},
      "eventType": {"type": "keyword"},
      "subTopics": {"type": "keyword"}
    }
  }
}`

func newMemEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func seed(t *testing.T, e *Engine, docs map[string]string) {
	t.Helper()
	ctx := context.Background()
	for id, doc := range docs {
		_, err := e.Index(ctx, "events", id, []byte(doc))
		require.NoError(t, err)
	}
}

func TestCreateIndex(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()

	exists, err := e.IndexExists(ctx, "events")
	require.NoError(t, err)
	assert.False(t, exists)

	ok, err := e.CreateIndex(ctx, "events", []byte(eventsMapping))
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err = e.IndexExists(ctx, "events")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = e.CreateIndex(ctx, "events", nil)
	assert.Error(t, err, "creating an existing index must fail")

	_, err = e.CreateIndex(ctx, "Bad/Name", nil)
	assert.Error(t, err)
}

func TestPutMapping(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()

	ok, err := e.PutMapping(ctx, "fresh", []byte(`{"properties":{"id":{"type":"keyword"}}}`))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.PutMapping(ctx, "fresh", []byte(`{"properties":{"place":{"type":"keyword"}}}`))
	assert.ErrorIs(t, err, engine.ErrUnsupported)

	_, err = e.PutMapping(ctx, "other", []byte(`{"properties":{"id":{"type":"geo_shape"}}}`))
	assert.Error(t, err)
}

func TestIndexAndGet(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()

	res, err := e.Index(ctx, "events", "1", []byte(`{"id":"1","title":"Java workshop","eventType":"WORKSHOP"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.ResultCreated, res)

	src, err := e.Get(ctx, "events", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","title":"Java workshop","eventType":"WORKSHOP"}`, string(src))

	res, err = e.Index(ctx, "events", "1", []byte(`{"id":"1","title":"Go workshop"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.ResultUpdated, res)

	src, err = e.Get(ctx, "events", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","title":"Go workshop"}`, string(src), "index replaces the whole document")

	_, err = e.Get(ctx, "events", "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = e.Get(ctx, "nope", "1")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)

	_, err = e.Index(ctx, "events", "2", []byte(`[1,2]`))
	assert.Error(t, err)
}

func TestSearchSortedByID(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	_, err := e.CreateIndex(ctx, "events", []byte(eventsMapping))
	require.NoError(t, err)
	seed(t, e, map[string]string{
		"1": `{"id":"1","title":"Java workshop"}`,
		"3": `{"id":"3","title":"Ruby tutorial"}`,
		"2": `{"id":"2","title":"Go talk"}`,
	})

	hits, err := e.Search(ctx, "events", engine.Query{
		Sort: []engine.SortField{{Field: "id", Desc: true}},
		Size: 100,
	})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "3", hits[0].ID)
	assert.Equal(t, "2", hits[1].ID)
	assert.Equal(t, "1", hits[2].ID)
	assert.JSONEq(t, `{"id":"3","title":"Ruby tutorial"}`, string(hits[0].Source))

	_, err = e.Search(ctx, "nope", engine.Query{})
	assert.ErrorIs(t, err, engine.ErrIndexNotFound)
}

func TestTermMatchesExactValues(t *testing.T) {
	tests := []struct {
		name    string
		mapping string
		term    engine.Term
		want    []string
	}{
		{
			name:    "text field via keyword sub-field",
			mapping: eventsMapping,
			term:    engine.Term{Field: "title", Value: "Ruby tutorial"},
			want:    []string{"2"},
		},
		{
			name:    "keyword sub-field is exact",
			mapping: eventsMapping,
			term:    engine.Term{Field: "title.keyword", Value: "Ruby"},
			want:    nil,
		},
		{
			name:    "text field does not match a single token",
			mapping: eventsMapping,
			term:    engine.Term{Field: "title", Value: "tutorial"},
			want:    nil,
		},
		{
			name:    "text field does not match a lowercased token",
			mapping: eventsMapping,
			term:    engine.Term{Field: "title", Value: "ruby"},
			want:    nil,
		},
		{
			name:    "keyword array",
			mapping: eventsMapping,
			term:    engine.Term{Field: "subTopics", Value: "Spring"},
			want:    []string{"1", "3"},
		},
		{
			name: "dynamic mapping",
			term: engine.Term{Field: "place", Value: "Room A"},
			want: []string{"1", "2"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newMemEngine(t)
			ctx := context.Background()
			if tc.mapping != "" {
				_, err := e.CreateIndex(ctx, "events", []byte(tc.mapping))
				require.NoError(t, err)
			}
			seed(t, e, map[string]string{
				"1": `{"id":"1","title":"Java workshop","place":"Room A","subTopics":["Java","Spring"]}`,
				"2": `{"id":"2","title":"Ruby tutorial","place":"Room A","subTopics":["Ruby"]}`,
				"3": `{"id":"3","title":"Spring tips","place":"Room B","subTopics":["Spring"]}`,
			})

			hits, err := e.Search(ctx, "events", engine.Query{
				Term: &tc.term,
				Sort: []engine.SortField{{Field: "id"}},
			})
			require.NoError(t, err)
			var got []string
			for _, h := range hits {
				got = append(got, h.ID)
			}
			assert.Equal(t, tc.want, got)

			n, err := e.Count(ctx, "events", tc.term)
			require.NoError(t, err)
			assert.Equal(t, int64(len(tc.want)), n)
		})
	}
}

func TestUpdateMerges(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	seed(t, e, map[string]string{"1": `{"id":"1","title":"Java workshop","place":"Room A"}`})

	res, err := e.Update(ctx, "events", "1", []byte(`{"title":"Spring workshop"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.ResultUpdated, res)

	src, err := e.Get(ctx, "events", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","title":"Spring workshop","place":"Room A"}`, string(src))

	res, err = e.Update(ctx, "events", "1", []byte(`{"title":"Spring workshop"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.ResultNoop, res)

	_, err = e.Update(ctx, "events", "42", []byte(`{"title":"x"}`))
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = e.Update(ctx, "events", "1", []byte(`"scalar"`))
	assert.Error(t, err)
}

func TestMergeNested(t *testing.T) {
	out, changed, err := merged(
		[]byte(`{"a":{"b":1,"c":2},"d":[1]}`),
		[]byte(`{"a":{"c":3},"d":[2]}`),
	)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.JSONEq(t, `{"a":{"b":1,"c":3},"d":[2]}`, string(out))
}

func TestDelete(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	seed(t, e, map[string]string{"1": `{"id":"1"}`})

	res, err := e.Delete(ctx, "events", "1")
	require.NoError(t, err)
	assert.Equal(t, engine.ResultDeleted, res)

	_, err = e.Get(ctx, "events", "1")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	res, err = e.Delete(ctx, "events", "1")
	require.NoError(t, err)
	assert.Equal(t, engine.ResultNotFound, res)
}

func TestDeleteByQuery(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	seed(t, e, map[string]string{
		"1": `{"id":"1","place":"Room A"}`,
		"2": `{"id":"2","place":"Room B"}`,
		"3": `{"id":"3","place":"Room A"}`,
	})

	n, err := e.DeleteByQuery(ctx, "events", engine.Term{Field: "place", Value: "Room A"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	hits, err := e.Search(ctx, "events", engine.Query{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "2", hits[0].ID)

	n, err = e.DeleteByQuery(ctx, "events", engine.Term{Field: "place", Value: "Room A"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulk(t *testing.T) {
	e := newMemEngine(t)
	ctx := context.Background()
	seed(t, e, map[string]string{"1": `{"id":"1","title":"old"}`})

	results, err := e.Bulk(ctx, "events", []engine.BulkItem{
		{Op: engine.OpIndex, ID: "1", Doc: []byte(`{"id":"1","title":"new"}`)},
		{Op: engine.OpIndex, ID: "2", Doc: []byte(`{"id":"2"}`)},
		{Op: engine.OpCreate, ID: "2", Doc: []byte(`{"id":"2"}`)},
		{Op: engine.OpIndex, ID: "3", Doc: []byte(`not json`)},
		{Op: engine.OpUpdate, ID: "2", Doc: []byte(`{"place":"Room C"}`)},
		{Op: engine.OpUpdate, ID: "9", Doc: []byte(`{"place":"Room C"}`)},
		{Op: engine.OpDelete, ID: "9"},
	})
	require.NoError(t, err)
	require.Len(t, results, 7)

	assert.Equal(t, engine.ResultUpdated, results[0].Result)
	assert.True(t, results[0].Succeeded())
	assert.Equal(t, engine.ResultCreated, results[1].Result)
	assert.Equal(t, 201, results[1].Status)
	assert.Equal(t, 409, results[2].Status)
	assert.False(t, results[2].Succeeded())
	assert.Equal(t, 400, results[3].Status)
	assert.Equal(t, engine.ResultUpdated, results[4].Result)
	assert.ErrorIs(t, results[5].Err, engine.ErrNotFound)
	assert.Equal(t, engine.ResultNotFound, results[6].Result)
	assert.False(t, results[6].Succeeded())

	src, err := e.Get(ctx, "events", "2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"2","place":"Room C"}`, string(src))

	_, err = e.Get(ctx, "events", "3")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	results, err = e.Bulk(ctx, "events", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPersistentDir(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	e, err := New(Config{Dir: dir})
	require.NoError(t, err)
	_, err = e.CreateIndex(ctx, "events", []byte(eventsMapping))
	require.NoError(t, err)
	_, err = e.Index(ctx, "events", "7", []byte(`{"id":"7","title":"persisted"}`))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e, err = New(Config{Dir: dir})
	require.NoError(t, err)
	defer e.Close()

	exists, err := e.IndexExists(ctx, "events")
	require.NoError(t, err)
	assert.True(t, exists)

	src, err := e.Get(ctx, "events", "7")
	require.NoError(t, err)
	var doc map[string]string
	require.NoError(t, json.Unmarshal(src, &doc))
	assert.Equal(t, "persisted", doc["title"])
}

func TestRefreshAndClose(t *testing.T) {
	e, err := New(Config{})
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, e.Refresh(ctx, "events"), engine.ErrIndexNotFound)
	seed(t, e, map[string]string{"1": `{"id":"1"}`})
	assert.NoError(t, e.Refresh(ctx, "events"))

	require.NoError(t, e.Close())
	_, err = e.IndexExists(ctx, "events")
	assert.Error(t, err)
}
