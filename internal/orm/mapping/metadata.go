// Package mapping describes how Go structs map onto relational tables.
//
// Entities are plain structs whose mapped fields carry an `orm` tag:
//
//	type Article struct {
//		ID       int64              `orm:"id"`
//		Title    string             `orm:"column:title"`
//		Author   *Author            `orm:"many_to_one,join_column:author_id"`
//		Comments *entity.Collection `orm:"one_to_many,target:Comment,mapped_by:article"`
//	}
//
// The resulting EntityMetadata is immutable once built and is shared by every
// request.
package mapping

import (
	"fmt"
	"reflect"
)

// AssociationKind classifies an association by cardinality and ownership
type AssociationKind int

const (
	// ToOneOwning is a to-one association whose join column lives on this table
	ToOneOwning AssociationKind = iota
	// ToOneInverse is a to-one association owned by the target entity
	ToOneInverse
	// ToMany is a collection-valued association
	ToMany
)

// String returns the string representation of the association kind
func (k AssociationKind) String() string {
	switch k {
	case ToOneOwning:
		return "to_one_owning"
	case ToOneInverse:
		return "to_one_inverse"
	case ToMany:
		return "to_many"
	default:
		return "unknown"
	}
}

// IsToOne reports whether the association holds a single instance
func (k AssociationKind) IsToOne() bool {
	return k == ToOneOwning || k == ToOneInverse
}

// Field is a mapped scalar column
type Field struct {
	Name   string
	Column string
	Type   reflect.Type
	Index  []int
}

// Association describes a relation to another entity
type Association struct {
	FieldName    string
	Kind         AssociationKind
	TargetEntity string

	// JoinColumn is the foreign key column on this table for owning to-one
	// associations, or the join table column referencing this entity for
	// many-to-many associations.
	JoinColumn string
	// MappedBy names the association on the target that owns this one
	MappedBy string

	// Many-to-many only; the inverse side leaves the join table fields empty
	// and reads them from the owning association on the target.
	ManyToMany        bool
	JoinTable         string
	InverseJoinColumn string

	Index []int
}

// IsManyToMany reports whether the association goes through a join table
func (a *Association) IsManyToMany() bool {
	return a.ManyToMany
}

// IsOwningSide reports whether this side writes the association
func (a *Association) IsOwningSide() bool {
	return a.MappedBy == ""
}

// EntityMetadata holds the mapping of one entity type
type EntityMetadata struct {
	Name         string
	Type         reflect.Type
	Table        string
	Identifier   string
	Fields       []*Field
	Associations []*Association

	fieldsByName       map[string]*Field
	associationsByName map[string]*Association
}

// FieldNames returns mapped field names in declaration order, identifier included
func (m *EntityMetadata) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Field returns the field with the given name
func (m *EntityMetadata) Field(name string) (*Field, bool) {
	f, ok := m.fieldsByName[name]
	return f, ok
}

// IdentifierField returns the identifier field
func (m *EntityMetadata) IdentifierField() *Field {
	return m.fieldsByName[m.Identifier]
}

// Association returns the association with the given field name
func (m *EntityMetadata) Association(name string) (*Association, bool) {
	a, ok := m.associationsByName[name]
	return a, ok
}

// HasField returns true if the entity maps a field with the given name
func (m *EntityMetadata) HasField(name string) bool {
	_, ok := m.fieldsByName[name]
	return ok
}

// Columns returns the mapped scalar columns in field order
func (m *EntityMetadata) Columns() []string {
	cols := make([]string, 0, len(m.Fields))
	for _, f := range m.Fields {
		cols = append(cols, f.Column)
	}
	return cols
}

// OwningJoins returns the owning to-one associations, whose join columns are
// stored on this entity's table
func (m *EntityMetadata) OwningJoins() []*Association {
	var out []*Association
	for _, a := range m.Associations {
		if a.Kind == ToOneOwning {
			out = append(out, a)
		}
	}
	return out
}

// NewInstance returns a pointer to a new zero value of the entity
func (m *EntityMetadata) NewInstance() any {
	return reflect.New(m.Type).Interface()
}

// Represents reports whether model is an instance of this entity
func (m *EntityMetadata) Represents(model any) bool {
	if model == nil {
		return false
	}
	t := reflect.TypeOf(model)
	return t.Kind() == reflect.Ptr && t.Elem() == m.Type
}

// Value returns the addressable struct value behind model
func (m *EntityMetadata) Value(model any) (reflect.Value, error) {
	if !m.Represents(model) {
		return reflect.Value{}, fmt.Errorf("%T is not a *%s", model, m.Name)
	}
	v := reflect.ValueOf(model)
	if v.IsNil() {
		return reflect.Value{}, fmt.Errorf("nil *%s", m.Name)
	}
	return v.Elem(), nil
}

func (m *EntityMetadata) index() {
	m.fieldsByName = make(map[string]*Field, len(m.Fields))
	for _, f := range m.Fields {
		m.fieldsByName[f.Name] = f
	}
	m.associationsByName = make(map[string]*Association, len(m.Associations))
	for _, a := range m.Associations {
		m.associationsByName[a.FieldName] = a
	}
}
