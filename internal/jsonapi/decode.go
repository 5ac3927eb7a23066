package jsonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"sort"

	"github.com/conduit-lang/conduit-jsonapi/internal/adapter"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

// maxBodyBytes bounds request documents
const maxBodyBytes = 1 << 20

type requestDocument struct {
	Data *requestResource `json:"data"`
}

type requestResource struct {
	Type          string                         `json:"type"`
	ID            string                         `json:"id"`
	Attributes    map[string]any                 `json:"attributes"`
	Relationships map[string]requestRelationship `json:"relationships"`
}

type requestRelationship struct {
	Data json.RawMessage `json:"data"`
}

// checkContentType rejects request bodies that are not plain JSON:API
// documents. Media type parameters are not allowed.
func checkContentType(r *http.Request) error {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != MediaType {
		return newError(http.StatusUnsupportedMediaType, "content type must be %s", MediaType)
	}
	if len(params) > 0 {
		return newError(http.StatusUnsupportedMediaType, "media type parameters are not supported")
	}
	return nil
}

// decodeResource reads the primary resource object of a write request and
// checks that it has the expected type
func decodeResource(w http.ResponseWriter, r *http.Request, typeName string) (*requestResource, error) {
	if err := checkContentType(r); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var doc requestDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, newError(http.StatusBadRequest, "malformed document: %v", err)
	}
	if doc.Data == nil {
		return nil, badPointer(http.StatusBadRequest, "/data", "document has no primary data")
	}
	if doc.Data.Type != typeName {
		return nil, badPointer(http.StatusConflict, "/data/type", "type %q does not match endpoint type %s", doc.Data.Type, typeName)
	}
	return doc.Data, nil
}

// linkage is a decoded relationship: a single identifier (possibly nil) or
// a list
type linkage struct {
	toMany bool
	one    *Identifier
	many   []*Identifier
}

func decodeLinkage(name string, raw json.RawMessage) (*linkage, error) {
	pointer := "/data/relationships/" + name + "/data"
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, badPointer(http.StatusBadRequest, pointer, "relationship %s has no data member", name)
	}

	l := &linkage{}
	switch raw[0] {
	case 'n':
		return l, nil
	case '[':
		l.toMany = true
		if err := json.Unmarshal(raw, &l.many); err != nil {
			return nil, badPointer(http.StatusBadRequest, pointer, "malformed linkage: %v", err)
		}
	default:
		if err := json.Unmarshal(raw, &l.one); err != nil {
			return nil, badPointer(http.StatusBadRequest, pointer, "malformed linkage: %v", err)
		}
	}
	return l, nil
}

// writer applies a decoded resource object to a model and saves it
type writer struct {
	server  *Server
	manager *entity.Manager
	adapter *adapter.Adapter
}

// apply writes attributes and relationships onto model. It returns the
// to-many relationships that were replaced, with their members.
func (w *writer) apply(ctx context.Context, model any, data *requestResource) (map[*resource.Relationship][]any, error) {
	typ := w.adapter.Type()

	if data.ID != "" {
		w.adapter.SetID(model, data.ID)
	}

	for _, name := range sortedKeys(data.Attributes) {
		attr, ok := typ.Attribute(name)
		if !ok {
			return nil, badPointer(http.StatusBadRequest, "/data/attributes/"+name, "%s has no attribute %s", typ.Name, name)
		}
		if !attr.Writable {
			return nil, badPointer(http.StatusForbidden, "/data/attributes/"+name, "attribute %s is read-only", name)
		}
		if err := w.adapter.SetAttribute(model, name, data.Attributes[name]); err != nil {
			if adapter.IsBindingError(err) && StatusOf(err) == http.StatusUnprocessableEntity {
				return nil, badPointer(http.StatusUnprocessableEntity, "/data/attributes/"+name, "%v", err)
			}
			return nil, err
		}
	}

	toMany := make(map[*resource.Relationship][]any)
	for _, name := range sortedKeys(data.Relationships) {
		rel, ok := typ.Relationship(name)
		if !ok {
			return nil, badPointer(http.StatusBadRequest, "/data/relationships/"+name, "%s has no relationship %s", typ.Name, name)
		}
		l, err := decodeLinkage(name, data.Relationships[name].Data)
		if err != nil {
			return nil, err
		}

		if rel.Cardinality == resource.HasOne {
			if l.toMany {
				return nil, badPointer(http.StatusBadRequest, "/data/relationships/"+name+"/data", "relationship %s is to-one", name)
			}
			var related any
			if l.one != nil {
				if related, err = w.fetch(ctx, rel, l.one, name); err != nil {
					return nil, err
				}
			}
			if err := w.adapter.SetHasOne(model, rel, related); err != nil {
				return nil, err
			}
			continue
		}

		if !l.toMany {
			return nil, badPointer(http.StatusBadRequest, "/data/relationships/"+name+"/data", "relationship %s is to-many", name)
		}
		members := make([]any, 0, len(l.many))
		for _, ident := range l.many {
			m, err := w.fetch(ctx, rel, ident, name)
			if err != nil {
				return nil, err
			}
			members = append(members, m)
		}
		if err := w.adapter.SetHasMany(model, rel, members); err != nil {
			return nil, err
		}
		toMany[rel] = members
	}

	return toMany, nil
}

// fetch loads the model a resource identifier refers to
func (w *writer) fetch(ctx context.Context, rel *resource.Relationship, ident *Identifier, name string) (any, error) {
	pointer := "/data/relationships/" + name + "/data"
	if ident == nil || ident.Type == "" || ident.ID == "" {
		return nil, badPointer(http.StatusBadRequest, pointer, "resource identifiers need a type and an id")
	}
	if ident.Type != rel.Type {
		return nil, badPointer(http.StatusConflict, pointer, "relationship %s holds %s, not %s", name, rel.Type, ident.Type)
	}
	target, ok := w.server.catalog.Adapter(ident.Type, w.manager)
	if !ok {
		return nil, badPointer(http.StatusBadRequest, pointer, "unknown resource type %s", ident.Type)
	}
	m, err := target.Find(ctx, target.Query(), ident.ID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, badPointer(http.StatusNotFound, pointer, "%s %s does not exist", ident.Type, ident.ID)
	}
	return m, nil
}

// save persists model. Replaced to-many relationships are saved through
// SaveHasMany, which also persists the model itself.
func (w *writer) save(ctx context.Context, model any, toMany map[*resource.Relationship][]any) error {
	if len(toMany) == 0 {
		return w.adapter.Save(ctx, model)
	}
	for _, rel := range w.adapter.Type().Relationships {
		members, ok := toMany[rel]
		if !ok {
			continue
		}
		if err := w.adapter.SaveHasMany(ctx, model, rel, members); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
