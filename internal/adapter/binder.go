package adapter

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/naming"
)

// IdentifierAccessor is the method every model exposes for its identifier
const IdentifierAccessor = "GetID"

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// collection is implemented by lazily loaded to-many values
type collection interface {
	Count(ctx context.Context) (int, error)
	Slice(ctx context.Context) ([]any, error)
}

// replaceable is implemented by to-many values that can be rewritten in place
type replaceable interface {
	Set(items ...any)
}

// accessor is a resolved method of the model's pointer type
type accessor struct {
	name   string
	method reflect.Method
	ok     bool
}

// Binder reads and writes model instances through their Get/Set accessors.
// The accessor table is resolved once, when the binder is built.
type Binder struct {
	entity    string
	modelType reflect.Type
	methods   map[string]reflect.Method

	identifier accessor
	getters    map[string]accessor // attribute and relationship property names
	setters    map[string]accessor // attribute names
	linkers    map[string]accessor // relationship names, '-' delimited
}

// NewBinder resolves the accessors of meta's model type. Missing accessors
// are not an error here; they surface as *BindingError when used.
func NewBinder(meta *mapping.EntityMetadata) (*Binder, error) {
	if meta.Type == nil || meta.Type.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity %s is not backed by a struct type", meta.Name)
	}

	modelType := reflect.PointerTo(meta.Type)
	b := &Binder{
		entity:    meta.Name,
		modelType: modelType,
		methods:   make(map[string]reflect.Method, modelType.NumMethod()),
		getters:   make(map[string]accessor),
		setters:   make(map[string]accessor),
		linkers:   make(map[string]accessor),
	}
	for i := 0; i < modelType.NumMethod(); i++ {
		m := modelType.Method(i)
		b.methods[m.Name] = m
	}

	b.identifier = b.lookup(IdentifierAccessor)
	for _, name := range meta.FieldNames() {
		if name == meta.Identifier {
			continue
		}
		accessorName := naming.ToAccessorName(name, true, '_')
		b.getters[name] = b.lookup("Get" + accessorName)
		b.setters[name] = b.lookup("Set" + accessorName)
	}
	for _, assoc := range meta.Associations {
		b.getters[assoc.FieldName] = b.lookup("Get" + naming.ToAccessorName(assoc.FieldName, true, '_'))
		b.linkers[assoc.FieldName] = b.lookup("Set" + naming.ToAccessorName(assoc.FieldName, true, '-'))
	}
	return b, nil
}

func (b *Binder) lookup(name string) accessor {
	m, ok := b.methods[name]
	return accessor{name: name, method: m, ok: ok}
}

func (b *Binder) getter(name string) accessor {
	if a, ok := b.getters[name]; ok {
		return a
	}
	return b.lookup("Get" + naming.ToAccessorName(name, true, '_'))
}

// Identifier returns the model's identifier formatted as a string
func (b *Binder) Identifier(model any) (string, error) {
	v, err := b.get(model, b.identifier)
	if err != nil {
		return "", err
	}
	return formatIdentifier(v), nil
}

// Attribute returns the value of an attribute. The value may be a *Deferred.
func (b *Binder) Attribute(model any, name string) (any, error) {
	return b.get(model, b.getter(name))
}

// SetAttribute writes an attribute, converting value to the setter's
// parameter type
func (b *Binder) SetAttribute(model any, name string, value any) error {
	a, ok := b.setters[name]
	if !ok {
		a = b.lookup("Set" + naming.ToAccessorName(name, true, '_'))
	}
	return b.set(model, a, value)
}

// ToOne returns the related model of a to-one relationship, nil, or a
// *Deferred
func (b *Binder) ToOne(model any, property string) (any, error) {
	v, err := b.get(model, b.getter(property))
	if err != nil {
		return nil, err
	}
	if isNilValue(v) {
		return nil, nil
	}
	return v, nil
}

// ToMany returns the members of a to-many relationship. Members are only
// returned when the relationship holds more than one of them; a single
// member yields an empty list just like no member at all.
func (b *Binder) ToMany(ctx context.Context, model any, property string) ([]any, error) {
	v, err := b.get(model, b.getter(property))
	if err != nil {
		return nil, err
	}
	return b.members(ctx, v, property, 1)
}

// members lists v's elements when there are more than threshold of them
func (b *Binder) members(ctx context.Context, v any, property string, threshold int) ([]any, error) {
	if isNilValue(v) {
		return []any{}, nil
	}

	if c, ok := v.(collection); ok {
		count, err := c.Count(ctx)
		if err != nil {
			return nil, err
		}
		if count <= threshold {
			return []any{}, nil
		}
		return c.Slice(ctx)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		if rv.Len() <= threshold {
			return []any{}, nil
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return items, nil
	}

	return nil, &BindingError{
		Entity:   b.entity,
		Accessor: "Get" + naming.ToAccessorName(property, true, '_'),
		Err:      fmt.Errorf("returned %T, which is not a collection", v),
	}
}

// SetToOne writes a to-one relationship through Set<Name> with '-' as the
// word delimiter. related may be nil.
func (b *Binder) SetToOne(model any, relationshipName string, related any) error {
	a, ok := b.linkers[relationshipName]
	if !ok {
		a = b.lookup("Set" + naming.ToAccessorName(relationshipName, true, '-'))
	}
	return b.set(model, a, related)
}

// ReplaceToMany replaces the members of a to-many relationship. Collections
// are rewritten in place; otherwise the relationship setter receives a new
// slice or collection.
func (b *Binder) ReplaceToMany(model any, property string, related []any) error {
	current, err := b.get(model, b.getter(property))
	if err != nil {
		return err
	}
	if r, ok := current.(replaceable); ok && !isNilValue(current) {
		r.Set(related...)
		return nil
	}

	a, ok := b.linkers[property]
	if !ok {
		a = b.lookup("Set" + naming.ToAccessorName(property, true, '-'))
	}
	if err := b.check(model, a); err != nil {
		return err
	}
	if a.method.Type.NumIn() != 2 {
		return &BindingError{Entity: b.entity, Accessor: a.name, Err: errors.New("setter must take exactly one argument")}
	}
	param := a.method.Type.In(1)

	switch {
	case param.Kind() == reflect.Slice:
		slice := reflect.MakeSlice(param, 0, len(related))
		for _, item := range related {
			iv := reflect.ValueOf(item)
			if !iv.Type().AssignableTo(param.Elem()) {
				return &BindingError{Entity: b.entity, Accessor: a.name,
					Err: fmt.Errorf("%w: cannot use %T as %s", ErrInvalidValue, item, param.Elem())}
			}
			slice = reflect.Append(slice, iv)
		}
		return b.call(model, a, slice)
	case param.Kind() == reflect.Ptr && reflect.PointerTo(param.Elem()).Implements(reflect.TypeOf((*replaceable)(nil)).Elem()):
		c := reflect.New(param.Elem())
		c.Interface().(replaceable).Set(related...)
		return b.call(model, a, c)
	}
	return &BindingError{Entity: b.entity, Accessor: a.name, Err: fmt.Errorf("unsupported parameter type %s", param)}
}

// membersForSave returns every member of the to-many accessor named after a
// relationship's target type, without the threshold applied to reads
func (b *Binder) membersForSave(ctx context.Context, model any, typeName string) ([]any, error) {
	v, err := b.get(model, b.lookup("Get"+naming.ToAccessorName(typeName, true, '-')))
	if err != nil {
		return nil, err
	}
	return b.members(ctx, v, typeName, 0)
}

func (b *Binder) get(model any, a accessor) (any, error) {
	if err := b.check(model, a); err != nil {
		return nil, err
	}
	mt := a.method.Type
	if mt.NumIn() != 1 || mt.NumOut() < 1 || mt.NumOut() > 2 ||
		(mt.NumOut() == 2 && !mt.Out(1).Implements(errorType)) {
		return nil, &BindingError{Entity: b.entity, Accessor: a.name, Err: errors.New("getter must take no arguments and return a value")}
	}

	out := a.method.Func.Call([]reflect.Value{reflect.ValueOf(model)})
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

func (b *Binder) set(model any, a accessor, value any) error {
	if err := b.check(model, a); err != nil {
		return err
	}
	mt := a.method.Type
	if mt.NumIn() != 2 {
		return &BindingError{Entity: b.entity, Accessor: a.name, Err: errors.New("setter must take exactly one argument")}
	}

	arg, err := convertValue(value, mt.In(1), false)
	if err != nil {
		return &BindingError{Entity: b.entity, Accessor: a.name, Err: err}
	}
	return b.call(model, a, arg)
}

func (b *Binder) call(model any, a accessor, arg reflect.Value) error {
	out := a.method.Func.Call([]reflect.Value{reflect.ValueOf(model), arg})
	if len(out) > 0 && out[len(out)-1].Type().Implements(errorType) && !out[len(out)-1].IsNil() {
		return out[len(out)-1].Interface().(error)
	}
	return nil
}

func (b *Binder) check(model any, a accessor) error {
	if model == nil || reflect.TypeOf(model) != b.modelType {
		return &BindingError{Entity: b.entity, Accessor: a.name, Err: fmt.Errorf("%T is not a %s", model, b.modelType)}
	}
	if reflect.ValueOf(model).IsNil() {
		return &BindingError{Entity: b.entity, Accessor: a.name, Err: errors.New("nil model")}
	}
	if !a.ok {
		return &BindingError{Entity: b.entity, Accessor: a.name}
	}
	return nil
}

func formatIdentifier(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	case fmt.Stringer:
		return id.String()
	}
	return fmt.Sprint(v)
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil()
	}
	return false
}
