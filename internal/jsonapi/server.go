// Package jsonapi serves the resource types of a catalog over HTTP following
// the JSON:API format. Every request gets its own entity manager.
package jsonapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-jsonapi/internal/adapter"
	"github.com/conduit-lang/conduit-jsonapi/internal/introspect"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

// Options configures the engine
type Options struct {
	// Prefix is the base path of every route, like /api/v1
	Prefix string
	// DefaultLimit is the page size when page[limit] is absent
	DefaultLimit int
	// MaxLimit caps page[limit]
	MaxLimit int
}

// DefaultOptions returns the default engine options
func DefaultOptions() Options {
	return Options{
		Prefix:       "/api/v1",
		DefaultLimit: 20,
		MaxLimit:     100,
	}
}

// Server is the JSON:API engine. It is an http.Handler.
type Server struct {
	catalog *introspect.Catalog
	store   *entity.Store
	opts    Options
	logger  *zap.Logger
	mux     chi.Router
}

// NewServer creates an engine serving every type of catalog from store
func NewServer(catalog *introspect.Catalog, store *entity.Store, opts Options, logger *zap.Logger) *Server {
	defaults := DefaultOptions()
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaults.DefaultLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = defaults.MaxLimit
	}
	opts.Prefix = strings.TrimSuffix(opts.Prefix, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		catalog: catalog,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		RenderStatus(w, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		RenderStatus(w, http.StatusMethodNotAllowed)
	})

	prefix := s.opts.Prefix
	if prefix == "" {
		prefix = "/"
	}
	r.Route(prefix, func(r chi.Router) {
		r.Get("/{type}", s.handle(s.list))
		r.Post("/{type}", s.handle(s.create))
		r.Get("/{type}/{id}", s.handle(s.show))
		r.Patch("/{type}/{id}", s.handle(s.update))
		r.Delete("/{type}/{id}", s.handle(s.remove))
		r.Get("/{type}/{id}/{relationship}", s.handle(s.related))
	})
	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Prefix returns the base path of the routes
func (s *Server) Prefix() string { return s.opts.Prefix }

// handlerFunc serves one request with a request-scoped manager
type handlerFunc func(w http.ResponseWriter, r *http.Request, em *entity.Manager) error

// handle adapts fn to http.HandlerFunc. Returned errors and contract
// violations raised by adapters are rendered as error documents; other
// panics propagate.
func (s *Server) handle(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				cv, ok := v.(*adapter.ContractViolation)
				if !ok {
					panic(v)
				}
				s.renderError(w, r, cv)
			}
		}()

		if err := fn(w, r, s.store.Manager()); err != nil {
			s.renderError(w, r, err)
		}
	}
}

// adapter returns the adapter of the resource type named in the path
func (s *Server) adapter(r *http.Request, em *entity.Manager) (*adapter.Adapter, error) {
	name := chi.URLParam(r, "type")
	a, ok := s.catalog.Adapter(name, em)
	if !ok {
		return nil, newError(http.StatusNotFound, "unknown resource type %s", name)
	}
	return a, nil
}

// find loads the resource named by the {id} path parameter
func (s *Server) find(ctx context.Context, a *adapter.Adapter, id string) (any, error) {
	model, err := a.Find(ctx, a.Query(), id)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, newError(http.StatusNotFound, "%s %s does not exist", a.Type().Name, id)
	}
	return model, nil
}

func (s *Server) resourcePath(typeName, id string) string {
	return s.opts.Prefix + "/" + typeName + "/" + id
}

// list serves GET /{type}
func (s *Server) list(w http.ResponseWriter, r *http.Request, em *entity.Manager) error {
	ctx := r.Context()
	a, err := s.adapter(r, em)
	if err != nil {
		return err
	}
	params, err := ParseParams(r, s.opts.DefaultLimit, s.opts.MaxLimit)
	if err != nil {
		return err
	}
	if err := s.checkInclude(a.Type(), params.Include); err != nil {
		return err
	}

	q := a.Query()
	if err := s.applyFilters(em, a, q, params.Filters); err != nil {
		return err
	}
	total, err := a.Count(ctx, q)
	if err != nil {
		return err
	}
	for _, field := range params.Sort {
		attr, ok := a.Type().Attribute(field.Attribute)
		if !ok || !attr.Sortable {
			return badParameter("sort", "%s cannot be sorted by %s", a.Type().Name, field.Attribute)
		}
		a.SortByAttribute(q, field.Attribute, field.Direction)
	}
	a.Paginate(q, params.Limit, params.Offset)

	models, err := a.Get(ctx, q)
	if err != nil {
		return err
	}

	z := s.newSerializer(em)
	data := make([]*Resource, 0, len(models))
	for _, m := range models {
		res, err := z.resource(ctx, a, m)
		if err != nil {
			return err
		}
		data = append(data, res)
	}
	included, err := z.included(ctx, data, params.Include)
	if err != nil {
		return err
	}

	return writeDocument(w, http.StatusOK, &Document{
		Data:     data,
		Included: included,
		Meta:     map[string]any{"total": total},
		Links:    PaginationLinks(r.URL, params.Limit, params.Offset, total),
	})
}

// show serves GET /{type}/{id}
func (s *Server) show(w http.ResponseWriter, r *http.Request, em *entity.Manager) error {
	ctx := r.Context()
	a, err := s.adapter(r, em)
	if err != nil {
		return err
	}
	include := splitList(r.URL.Query().Get("include"))
	if err := s.checkInclude(a.Type(), include); err != nil {
		return err
	}

	model, err := s.find(ctx, a, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return s.writeSingle(w, r, em, http.StatusOK, a, model, include)
}

// related serves GET /{type}/{id}/{relationship}
func (s *Server) related(w http.ResponseWriter, r *http.Request, em *entity.Manager) error {
	ctx := r.Context()
	a, err := s.adapter(r, em)
	if err != nil {
		return err
	}
	name := chi.URLParam(r, "relationship")
	rel, ok := a.Type().Relationship(name)
	if !ok {
		return newError(http.StatusNotFound, "%s has no relationship %s", a.Type().Name, name)
	}

	model, err := s.find(ctx, a, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}

	z := s.newSerializer(em)
	members, err := z.members(ctx, a, model, rel)
	if err != nil {
		return err
	}
	doc := &Document{}
	if rel.Cardinality == resource.HasOne {
		if len(members) == 1 {
			if doc.Data, err = z.model(ctx, members[0]); err != nil {
				return err
			}
		}
		return writeDocument(w, http.StatusOK, doc)
	}

	data := make([]*Resource, 0, len(members))
	for _, m := range members {
		res, err := z.model(ctx, m)
		if err != nil {
			return err
		}
		data = append(data, res)
	}
	doc.Data = data
	doc.Meta = map[string]any{"total": len(data)}
	return writeDocument(w, http.StatusOK, doc)
}

// create serves POST /{type}
func (s *Server) create(w http.ResponseWriter, r *http.Request, em *entity.Manager) error {
	ctx := r.Context()
	a, err := s.adapter(r, em)
	if err != nil {
		return err
	}
	if !a.Type().Creatable {
		return newError(http.StatusForbidden, "%s cannot be created", a.Type().Name)
	}
	data, err := decodeResource(w, r, a.Type().Name)
	if err != nil {
		return err
	}

	model := a.Model()
	wr := &writer{server: s, manager: em, adapter: a}
	toMany, err := wr.apply(ctx, model, data)
	if err != nil {
		return err
	}
	if err := wr.save(ctx, model, toMany); err != nil {
		return err
	}

	id, err := a.GetID(model)
	if err != nil {
		return err
	}
	w.Header().Set("Location", s.resourcePath(a.Type().Name, id))
	return s.writeSingle(w, r, em, http.StatusCreated, a, model, nil)
}

// update serves PATCH /{type}/{id}
func (s *Server) update(w http.ResponseWriter, r *http.Request, em *entity.Manager) error {
	ctx := r.Context()
	a, err := s.adapter(r, em)
	if err != nil {
		return err
	}
	if !a.Type().Updatable {
		return newError(http.StatusForbidden, "%s cannot be updated", a.Type().Name)
	}
	id := chi.URLParam(r, "id")
	data, err := decodeResource(w, r, a.Type().Name)
	if err != nil {
		return err
	}
	if data.ID != id {
		return badPointer(http.StatusConflict, "/data/id", "id %q does not match endpoint id %s", data.ID, id)
	}

	model, err := s.find(ctx, a, id)
	if err != nil {
		return err
	}
	wr := &writer{server: s, manager: em, adapter: a}
	toMany, err := wr.apply(ctx, model, data)
	if err != nil {
		return err
	}
	if err := wr.save(ctx, model, toMany); err != nil {
		return err
	}
	return s.writeSingle(w, r, em, http.StatusOK, a, model, nil)
}

// remove serves DELETE /{type}/{id}
func (s *Server) remove(w http.ResponseWriter, r *http.Request, em *entity.Manager) error {
	ctx := r.Context()
	a, err := s.adapter(r, em)
	if err != nil {
		return err
	}
	model, err := s.find(ctx, a, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	if err := a.Delete(ctx, model); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) writeSingle(w http.ResponseWriter, r *http.Request, em *entity.Manager, status int, a *adapter.Adapter, model any, include []string) error {
	ctx := r.Context()
	z := s.newSerializer(em)
	res, err := z.resource(ctx, a, model)
	if err != nil {
		return err
	}
	included, err := z.included(ctx, []*Resource{res}, include)
	if err != nil {
		return err
	}
	return writeDocument(w, status, &Document{Data: res, Included: included})
}

// checkInclude rejects include paths that are not includable relationships.
// Only one level is supported.
func (s *Server) checkInclude(typ *resource.Type, include []string) error {
	for _, name := range include {
		rel, ok := typ.Relationship(name)
		if !ok || !rel.Includable {
			return badParameter("include", "%s cannot include %s", typ.Name, name)
		}
	}
	return nil
}
