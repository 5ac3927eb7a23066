package jsonapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/conduit-lang/conduit-jsonapi/internal/adapter"
	"github.com/conduit-lang/conduit-jsonapi/internal/introspect"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/ormtest"
)

type testRelationship struct {
	Data json.RawMessage `json:"data"`
}

type testResource struct {
	Type          string                      `json:"type"`
	ID            string                      `json:"id"`
	Attributes    map[string]any              `json:"attributes"`
	Relationships map[string]testRelationship `json:"relationships"`
	Links         map[string]string           `json:"links"`
}

type testError struct {
	Status any               `json:"status"`
	Code   string            `json:"code"`
	Detail string            `json:"detail"`
	Source map[string]string `json:"source"`
}

type testDocument struct {
	Data     json.RawMessage   `json:"data"`
	Included []testResource    `json:"included"`
	Meta     map[string]any    `json:"meta"`
	Links    map[string]string `json:"links"`
	Errors   []testError       `json:"errors"`
}

type fixture struct {
	store  *entity.Store
	blog   *ormtest.Blog
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	catalog, err := introspect.NewCatalog(store.Registry().AllMetadata(), introspect.Options{TypeSuffix: "s"})
	require.NoError(t, err)
	return &fixture{
		store:  store,
		blog:   blog,
		server: NewServer(catalog, store, DefaultOptions(), zaptest.NewLogger(t)),
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", MediaType)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) *testDocument {
	t.Helper()
	assert.Equal(t, MediaType, rec.Header().Get("Content-Type"))
	var doc testDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc), rec.Body.String())
	return &doc
}

func (d *testDocument) many(t *testing.T) []testResource {
	t.Helper()
	var out []testResource
	require.NoError(t, json.Unmarshal(d.Data, &out))
	return out
}

func (d *testDocument) one(t *testing.T) *testResource {
	t.Helper()
	var out *testResource
	require.NoError(t, json.Unmarshal(d.Data, &out))
	return out
}

func (r testResource) toOne(t *testing.T, name string) *Identifier {
	t.Helper()
	rel, ok := r.Relationships[name]
	require.True(t, ok, name)
	var out *Identifier
	require.NoError(t, json.Unmarshal(rel.Data, &out))
	return out
}

func (r testResource) toMany(t *testing.T, name string) []string {
	t.Helper()
	rel, ok := r.Relationships[name]
	require.True(t, ok, name)
	var idents []Identifier
	require.NoError(t, json.Unmarshal(rel.Data, &idents))
	ids := make([]string, len(idents))
	for i, ident := range idents {
		ids[i] = ident.Type + ":" + ident.ID
	}
	return ids
}

func attrValues(resources []testResource, name string) []any {
	out := make([]any, len(resources))
	for i, r := range resources {
		out[i] = r.Attributes[name]
	}
	return out
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int) testError {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	doc := decode(t, rec)
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, fmt.Sprint(status), fmt.Sprint(doc.Errors[0].Status))
	return doc.Errors[0]
}

func TestServer_List(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/Articles?sort=created_at", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode(t, rec)

	data := doc.many(t)
	assert.Equal(t, []any{"Introduction", "Update", "Draft"}, attrValues(data, "title"))
	assert.Equal(t, float64(3), doc.Meta["total"])
	assert.Equal(t, "Articles", data[0].Type)
	assert.Equal(t, "1", data[0].ID)
	assert.Equal(t, "/api/v1/Articles/1", data[0].Links["self"])
	assert.Equal(t, &Identifier{Type: "Authors", ID: "1"}, data[0].toOne(t, "author"))
	assert.Empty(t, doc.Included)
}

func TestServer_ListSortDescending(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/Articles?sort=-created_at", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"Draft", "Update", "Introduction"}, attrValues(decode(t, rec).many(t), "title"))
}

func TestServer_ListFilters(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		query  string
		titles []any
	}{
		{"by ids", "filter[id]=1,3", []any{"Introduction", "Draft"}},
		{"by attribute", "filter[title]=Draft", []any{"Draft"}},
		{"by boolean attribute", "filter[published]=true", []any{"Introduction", "Update"}},
		{"by comparison", "filter[created_at]=>=2024-03-02T09:00:00Z", []any{"Update", "Draft"}},
		{"by strict comparison", "filter[created_at]=<2024-03-02T09:00:00Z", []any{"Introduction"}},
		{"by related ids", "filter[author]=2", []any{"Draft"}},
		{"by related attribute", "filter[author.name]=Alice", []any{"Introduction", "Update"}},
		{"by related id path", "filter[author.id]=1", []any{"Introduction", "Update"}},
		{"through many-to-many", "filter[tags]=2", []any{"Introduction"}},
		{"through one-to-many", "filter[comments.body]=Thanks%20for%20the%20update", []any{"Update"}},
		{"combined", "filter[author]=1&filter[tags.name]=go", []any{"Introduction", "Update"}},
		{"unconvertible value matches nothing", "filter[published]=maybe", []any{}},
		{"empty id list matches nothing", "filter[id]=", []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/v1/Articles?sort=created_at&"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			doc := decode(t, rec)
			assert.Equal(t, tt.titles, attrValues(doc.many(t), "title"))
			assert.Equal(t, float64(len(tt.titles)), doc.Meta["total"])
		})
	}
}

func TestServer_ListRejectsUnknownNames(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		query     string
		parameter string
	}{
		{"filter[nope]=1", "filter[nope]"},
		{"filter[author.nope]=1", "filter[author.nope]"},
		{"filter[nope.name]=1", "filter[nope.name]"},
		{"filter[created_at]=2024-03-01", "filter[created_at]"},
		{"filter[published]=maybe", "filter[published]"},
		{"filter[author.created_at]=>=yesterday", "filter[author.created_at]"},
		{"sort=nope", "sort"},
		{"sort=author", "sort"},
		{"include=nope", "include"},
		{"page[limit]=0", "page[limit]"},
		{"page[limit]=abc", "page[limit]"},
		{"page[offset]=-1", "page[offset]"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/api/v1/Articles?"+tt.query, "")
			e := requireError(t, rec, http.StatusBadRequest)
			assert.Equal(t, tt.parameter, e.Source["parameter"])
		})
	}
}

func TestServer_ListPagination(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/Articles?sort=created_at&page[limit]=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode(t, rec)
	assert.Equal(t, []any{"Introduction", "Update"}, attrValues(doc.many(t), "title"))
	assert.Equal(t, float64(3), doc.Meta["total"])
	assert.Equal(t, "2", pageParam(t, doc.Links["next"], "page[offset]"))
	assert.Equal(t, "2", pageParam(t, doc.Links["last"], "page[offset]"))
	assert.Equal(t, "created_at", pageParam(t, doc.Links["next"], "sort"))
	assert.Empty(t, doc.Links["prev"])

	rec = f.do(t, http.MethodGet, "/api/v1/Articles?sort=created_at&page[limit]=2&page[offset]=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc = decode(t, rec)
	assert.Equal(t, []any{"Draft"}, attrValues(doc.many(t), "title"))
	assert.Equal(t, "0", pageParam(t, doc.Links["prev"], "page[offset]"))
	assert.Empty(t, doc.Links["next"])
}

func TestServer_ListCapsPageSize(t *testing.T) {
	f := newFixture(t)
	f.server = NewServer(f.server.catalog, f.store, Options{Prefix: "/api/v1", DefaultLimit: 1, MaxLimit: 2}, zaptest.NewLogger(t))

	rec := f.do(t, http.MethodGet, "/api/v1/Articles?sort=created_at", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec).many(t), 1)

	rec = f.do(t, http.MethodGet, "/api/v1/Articles?sort=created_at&page[limit]=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec).many(t), 2)
}

func pageParam(t *testing.T, link, name string) string {
	t.Helper()
	require.NotEmpty(t, link)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get(name)
}

func TestServer_ListIncluded(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/Articles?sort=created_at&include=author", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode(t, rec)

	// Alice wrote two of the articles but is included once
	require.Len(t, doc.Included, 2)
	assert.Equal(t, "Authors", doc.Included[0].Type)
	assert.Equal(t, "Alice", doc.Included[0].Attributes["name"])
	assert.Equal(t, "Bob", doc.Included[1].Attributes["name"])
}

func TestServer_Show(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/Articles/1?include=author,comments", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode(t, rec)

	res := doc.one(t)
	require.NotNil(t, res)
	assert.Equal(t, "1", res.ID)
	assert.Equal(t, "Introduction", res.Attributes["title"])
	assert.Equal(t, "Hello and welcome to the blog.", res.Attributes["excerpt"])
	assert.Equal(t, true, res.Attributes["published"])
	assert.Equal(t, "2024-03-01T09:00:00Z", res.Attributes["created_at"])
	assert.NotContains(t, res.Attributes, "id")

	assert.Equal(t, &Identifier{Type: "Authors", ID: "1"}, res.toOne(t, "author"))
	assert.ElementsMatch(t, []string{"Comments:1", "Comments:2"}, res.toMany(t, "comments"))
	assert.ElementsMatch(t, []string{"Tags:1", "Tags:2"}, res.toMany(t, "tags"))

	included := make([]string, 0, len(doc.Included))
	for _, inc := range doc.Included {
		included = append(included, inc.Type+":"+inc.ID)
	}
	require.Len(t, included, 3)
	assert.Equal(t, "Authors:1", included[0])
	assert.ElementsMatch(t, []string{"Comments:1", "Comments:2"}, included[1:])
}

func TestServer_ShowSingleMemberToMany(t *testing.T) {
	f := newFixture(t)

	// one comment and one tag read as empty relationships
	rec := f.do(t, http.MethodGet, "/api/v1/Articles/2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec).one(t)
	assert.Empty(t, res.toMany(t, "comments"))
	assert.Empty(t, res.toMany(t, "tags"))
}

func TestServer_ShowInverseToOne(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/Authors/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec).one(t)
	assert.Equal(t, &Identifier{Type: "Profiles", ID: "1"}, res.toOne(t, "profile"))
	assert.ElementsMatch(t, []string{"Articles:1", "Articles:2"}, res.toMany(t, "articles"))

	rec = f.do(t, http.MethodGet, "/api/v1/Authors/2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res = decode(t, rec).one(t)
	assert.Nil(t, res.toOne(t, "profile"))
}

func TestServer_NotFound(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{
		"/api/v1/Articles/99",
		"/api/v1/Articles/abc",
		"/api/v1/Widgets",
		"/api/v1/Widgets/1",
		"/api/v1/Articles/1/nope",
		"/elsewhere",
	} {
		t.Run(target, func(t *testing.T) {
			requireError(t, f.do(t, http.MethodGet, target, ""), http.StatusNotFound)
		})
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	requireError(t, f.do(t, http.MethodPut, "/api/v1/Articles/1", ""), http.StatusMethodNotAllowed)
}

func TestServer_Related(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/Articles/1/author", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	author := decode(t, rec).one(t)
	assert.Equal(t, "Authors", author.Type)
	assert.Equal(t, "Alice", author.Attributes["name"])

	rec = f.do(t, http.MethodGet, "/api/v1/Articles/1/comments", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode(t, rec)
	assert.ElementsMatch(t, []any{"First!", "Nice intro"}, attrValues(doc.many(t), "body"))
	assert.Equal(t, float64(2), doc.Meta["total"])

	rec = f.do(t, http.MethodGet, "/api/v1/Authors/2/profile", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "null", string(decode(t, rec).Data))

	rec = f.do(t, http.MethodGet, "/api/v1/Tags/2/articles", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode(t, rec).many(t))
}

func TestServer_Create(t *testing.T) {
	f := newFixture(t)

	body := `{"data":{"type":"Articles","attributes":{"title":"Fresh","body":"Just written.","published":false},
		"relationships":{"author":{"data":{"type":"Authors","id":"2"}},
		"tags":{"data":[{"type":"Tags","id":"1"},{"type":"Tags","id":"2"}]}}}}`
	rec := f.do(t, http.MethodPost, "/api/v1/Articles", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/Articles/4", rec.Header().Get("Location"))

	res := decode(t, rec).one(t)
	assert.Equal(t, "4", res.ID)
	assert.Equal(t, "Fresh", res.Attributes["title"])
	assert.Equal(t, &Identifier{Type: "Authors", ID: "2"}, res.toOne(t, "author"))

	rec = f.do(t, http.MethodGet, "/api/v1/Articles/4", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res = decode(t, rec).one(t)
	assert.Equal(t, "Just written.", res.Attributes["excerpt"])
	assert.ElementsMatch(t, []string{"Tags:1", "Tags:2"}, res.toMany(t, "tags"))
	assert.NotEmpty(t, res.Attributes["created_at"])
}

func TestServer_CreateIgnoresClientID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/Tags", `{"data":{"type":"Tags","id":"77","attributes":{"name":"web"}}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "3", decode(t, rec).one(t).ID)
}

func TestServer_CreateRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		body    string
		status  int
		pointer string
	}{
		{"malformed", `{"data":`, http.StatusBadRequest, ""},
		{"no data", `{}`, http.StatusBadRequest, "/data"},
		{"type mismatch", `{"data":{"type":"Tags","attributes":{"name":"x"}}}`, http.StatusConflict, "/data/type"},
		{"unknown attribute", `{"data":{"type":"Articles","attributes":{"nope":1}}}`, http.StatusBadRequest, "/data/attributes/nope"},
		{"wrong value type", `{"data":{"type":"Articles","attributes":{"title":true}}}`, http.StatusUnprocessableEntity, "/data/attributes/title"},
		{"bad timestamp", `{"data":{"type":"Articles","attributes":{"created_at":"yesterday"}}}`, http.StatusUnprocessableEntity, "/data/attributes/created_at"},
		{"unknown relationship", `{"data":{"type":"Articles","relationships":{"nope":{"data":null}}}}`, http.StatusBadRequest, "/data/relationships/nope"},
		{"missing related", `{"data":{"type":"Articles","relationships":{"author":{"data":{"type":"Authors","id":"99"}}}}}`, http.StatusNotFound, "/data/relationships/author/data"},
		{"wrong related type", `{"data":{"type":"Articles","relationships":{"author":{"data":{"type":"Tags","id":"1"}}}}}`, http.StatusConflict, "/data/relationships/author/data"},
		{"list for to-one", `{"data":{"type":"Articles","relationships":{"author":{"data":[]}}}}`, http.StatusBadRequest, "/data/relationships/author/data"},
		{"single for to-many", `{"data":{"type":"Articles","relationships":{"tags":{"data":{"type":"Tags","id":"1"}}}}}`, http.StatusBadRequest, "/data/relationships/tags/data"},
		{"no linkage", `{"data":{"type":"Articles","relationships":{"author":{}}}}`, http.StatusBadRequest, "/data/relationships/author/data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := requireError(t, f.do(t, http.MethodPost, "/api/v1/Articles", tt.body), tt.status)
			if tt.pointer != "" {
				assert.Equal(t, tt.pointer, e.Source["pointer"])
			}
		})
	}

	rec := f.do(t, http.MethodGet, "/api/v1/Articles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decode(t, rec).Meta["total"])
}

func TestServer_CreateContentType(t *testing.T) {
	f := newFixture(t)
	body := `{"data":{"type":"Tags","attributes":{"name":"web"}}}`

	for _, contentType := range []string{"", "application/json", MediaType + "; ext=atomic"} {
		t.Run(contentType, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/Tags", strings.NewReader(body))
			if contentType != "" {
				req.Header.Set("Content-Type", contentType)
			}
			rec := httptest.NewRecorder()
			f.server.ServeHTTP(rec, req)
			requireError(t, rec, http.StatusUnsupportedMediaType)
		})
	}
}

func TestServer_Update(t *testing.T) {
	f := newFixture(t)

	body := `{"data":{"type":"Articles","id":"3","attributes":{"title":"Final","published":true},
		"relationships":{"author":{"data":null}}}}`
	rec := f.do(t, http.MethodPatch, "/api/v1/Articles/3", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec).one(t)
	assert.Equal(t, "Final", res.Attributes["title"])
	assert.Nil(t, res.toOne(t, "author"))

	rec = f.do(t, http.MethodGet, "/api/v1/Articles/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res = decode(t, rec).one(t)
	assert.Equal(t, "Final", res.Attributes["title"])
	assert.Equal(t, true, res.Attributes["published"])
	assert.Equal(t, "Not ready yet.", res.Attributes["body"])
	assert.Nil(t, res.toOne(t, "author"))
}

func TestServer_UpdateReplacesManyToMany(t *testing.T) {
	f := newFixture(t)

	body := `{"data":{"type":"Articles","id":"1","relationships":{"tags":{"data":[{"type":"Tags","id":"1"}]}}}}`
	rec := f.do(t, http.MethodPatch, "/api/v1/Articles/1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Intro was the only article tagged sql
	rec = f.do(t, http.MethodGet, "/api/v1/Articles?filter[tags]=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec).many(t))
}

func TestServer_UpdateRejections(t *testing.T) {
	f := newFixture(t)

	e := requireError(t, f.do(t, http.MethodPatch, "/api/v1/Articles/3", `{"data":{"type":"Articles","id":"2"}}`), http.StatusConflict)
	assert.Equal(t, "/data/id", e.Source["pointer"])

	requireError(t, f.do(t, http.MethodPatch, "/api/v1/Articles/99", `{"data":{"type":"Articles","id":"99"}}`), http.StatusNotFound)
}

func TestServer_Delete(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/Articles/3", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Empty(t, rec.Body.String())

	requireError(t, f.do(t, http.MethodGet, "/api/v1/Articles/3", ""), http.StatusNotFound)
	requireError(t, f.do(t, http.MethodDelete, "/api/v1/Articles/3", ""), http.StatusNotFound)
}

func TestServer_DeleteReferenced(t *testing.T) {
	f := newFixture(t)

	// articles and a profile still refer to Alice
	requireError(t, f.do(t, http.MethodDelete, "/api/v1/Authors/1", ""), http.StatusUnprocessableEntity)

	rec := f.do(t, http.MethodGet, "/api/v1/Authors/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HandleContractViolation(t *testing.T) {
	f := newFixture(t)

	h := f.server.handle(func(w http.ResponseWriter, r *http.Request, em *entity.Manager) error {
		panic(&adapter.ContractViolation{Op: "FindOne", Reason: "2 Article rows match id 1"})
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/v1/Articles/1", nil))
	e := requireError(t, rec, http.StatusBadRequest)
	assert.Contains(t, e.Detail, "2 Article rows match id 1")

	other := f.server.handle(func(w http.ResponseWriter, r *http.Request, em *entity.Manager) error {
		panic("boom")
	})
	assert.PanicsWithValue(t, "boom", func() {
		other(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestServer_CustomPrefix(t *testing.T) {
	f := newFixture(t)
	f.server = NewServer(f.server.catalog, f.store, Options{Prefix: "/v2/"}, nil)

	rec := f.do(t, http.MethodGet, "/v2/Tags/1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/v2/Tags/1", decode(t, rec).one(t).Links["self"])

	requireError(t, f.do(t, http.MethodGet, "/api/v1/Tags/1", ""), http.StatusNotFound)
}
