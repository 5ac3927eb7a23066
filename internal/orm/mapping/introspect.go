package mapping

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/naming"
)

const tagName = "orm"

// ErrNoIdentifier is returned when an entity declares no `orm:"id"` field
var ErrNoIdentifier = errors.New("entity has no identifier field")

// Tabler lets an entity override its table name
type Tabler interface {
	TableName() string
}

var metadataCache sync.Map // map[reflect.Type]*EntityMetadata

// Introspect builds (or returns the cached) metadata for the entity type of
// model, which may be a struct value or a pointer to one.
func Introspect(model any) (*EntityMetadata, error) {
	if model == nil {
		return nil, fmt.Errorf("cannot introspect nil model")
	}
	return IntrospectType(reflect.TypeOf(model))
}

// IntrospectType is Introspect for a reflect.Type
func IntrospectType(t reflect.Type) (*EntityMetadata, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("invalid entity type: %s", t.Kind())
	}

	if meta, ok := metadataCache.Load(t); ok {
		return meta.(*EntityMetadata), nil
	}

	meta, err := buildMetadata(t)
	if err != nil {
		return nil, err
	}
	actual, _ := metadataCache.LoadOrStore(t, meta)
	return actual.(*EntityMetadata), nil
}

func buildMetadata(t reflect.Type) (*EntityMetadata, error) {
	meta := &EntityMetadata{
		Name:  t.Name(),
		Type:  t,
		Table: naming.TableName(t.Name()),
	}
	if tabler, ok := reflect.New(t).Interface().(Tabler); ok {
		meta.Table = tabler.TableName()
	}

	if err := collectFields(meta, t, nil); err != nil {
		return nil, fmt.Errorf("entity %s: %w", meta.Name, err)
	}
	if meta.Identifier == "" {
		return nil, fmt.Errorf("entity %s: %w", meta.Name, ErrNoIdentifier)
	}

	meta.index()
	return meta, nil
}

func collectFields(meta *EntityMetadata, t reflect.Type, prefix []int) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int{}, prefix...), i)

		tag, tagged := sf.Tag.Lookup(tagName)
		if !tagged {
			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				if err := collectFields(meta, sf.Type, index); err != nil {
					return err
				}
			}
			continue
		}
		if tag == "-" {
			continue
		}
		if !sf.IsExported() {
			return fmt.Errorf("field %s is tagged but not exported", sf.Name)
		}

		kind, opts, err := parseTag(tag)
		if err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}

		name := opts["name"]
		if name == "" {
			name = naming.ToSnakeCase(sf.Name)
		}

		switch kind {
		case "", "field", "id":
			column := opts["column"]
			if column == "" {
				column = name
			}
			if kind == "id" {
				if meta.Identifier != "" {
					return fmt.Errorf("multiple identifiers: %s and %s", meta.Identifier, name)
				}
				meta.Identifier = name
			}
			meta.Fields = append(meta.Fields, &Field{
				Name:   name,
				Column: column,
				Type:   sf.Type,
				Index:  index,
			})

		case "many_to_one", "one_to_one", "one_to_many", "many_to_many":
			assoc, err := buildAssociation(meta, kind, name, sf, opts)
			if err != nil {
				return fmt.Errorf("field %s: %w", sf.Name, err)
			}
			assoc.Index = index
			meta.Associations = append(meta.Associations, assoc)

		default:
			return fmt.Errorf("field %s: unknown mapping %q", sf.Name, kind)
		}
	}
	return nil
}

func buildAssociation(meta *EntityMetadata, kind, name string, sf reflect.StructField, opts map[string]string) (*Association, error) {
	target := opts["target"]
	toMany := kind == "one_to_many" || kind == "many_to_many"
	if target == "" && (!toMany || sf.Type.Kind() == reflect.Slice) {
		target = elemTypeName(sf.Type)
	}
	if target == "" {
		return nil, fmt.Errorf("association %s needs a target", name)
	}

	assoc := &Association{
		FieldName:    name,
		TargetEntity: target,
		MappedBy:     opts["mapped_by"],
	}

	switch kind {
	case "many_to_one":
		assoc.Kind = ToOneOwning
	case "one_to_one":
		assoc.Kind = ToOneOwning
		if assoc.MappedBy != "" {
			assoc.Kind = ToOneInverse
		}
	case "one_to_many":
		assoc.Kind = ToMany
		if assoc.MappedBy == "" {
			return nil, fmt.Errorf("one_to_many association %s requires mapped_by", name)
		}
	case "many_to_many":
		assoc.Kind = ToMany
		assoc.ManyToMany = true
	}

	if assoc.Kind == ToOneOwning {
		assoc.JoinColumn = opts["join_column"]
		if assoc.JoinColumn == "" {
			assoc.JoinColumn = name + "_id"
		}
	}

	if assoc.ManyToMany && assoc.IsOwningSide() {
		assoc.JoinTable = opts["join_table"]
		if assoc.JoinTable == "" {
			return nil, fmt.Errorf("many_to_many association %s requires join_table or mapped_by", name)
		}
		assoc.JoinColumn = opts["join_column"]
		if assoc.JoinColumn == "" {
			assoc.JoinColumn = naming.ToSnakeCase(meta.Name) + "_id"
		}
		assoc.InverseJoinColumn = opts["inverse_join_column"]
		if assoc.InverseJoinColumn == "" {
			assoc.InverseJoinColumn = naming.ToSnakeCase(target) + "_id"
		}
	}

	return assoc, nil
}

// parseTag splits `kind,key:value,...`. The leading element is the kind
// keyword unless it already is a key:value pair.
func parseTag(tag string) (string, map[string]string, error) {
	opts := make(map[string]string)
	kind := ""
	for i, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, ":")
		if !found {
			if i != 0 {
				return "", nil, fmt.Errorf("malformed tag option %q", part)
			}
			kind = part
			continue
		}
		opts[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return kind, opts, nil
}

func elemTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return ""
	}
	return t.Name()
}
