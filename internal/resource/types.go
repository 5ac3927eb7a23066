// Package resource holds the schema of JSON:API resource types derived from
// entity metadata. Values are built once and are read-only afterwards.
package resource

// Cardinality distinguishes to-one from to-many relationships
type Cardinality int

const (
	// HasOne is a to-one relationship
	HasOne Cardinality = iota
	// HasMany is a to-many relationship
	HasMany
)

// String returns the string representation of the cardinality
func (c Cardinality) String() string {
	switch c {
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	default:
		return "unknown"
	}
}

// Attribute describes one resource attribute
type Attribute struct {
	Name       string
	Filterable bool
	Writable   bool
	Sortable   bool
}

// Relationship describes one resource relationship
type Relationship struct {
	Name        string
	Type        string // target resource type name
	Property    string // association field name on the model
	Cardinality Cardinality
	Filterable  bool
	Includable  bool
}

// Type is the schema of one resource type
type Type struct {
	Name          string
	Creatable     bool
	Updatable     bool
	Attributes    []*Attribute
	Relationships []*Relationship

	attributes    map[string]*Attribute
	relationships map[string]*Relationship
}

// NewType creates an empty resource type
func NewType(name string) *Type {
	return &Type{
		Name:          name,
		Attributes:    make([]*Attribute, 0),
		Relationships: make([]*Relationship, 0),
		attributes:    make(map[string]*Attribute),
		relationships: make(map[string]*Relationship),
	}
}

// AddAttribute appends an attribute
func (t *Type) AddAttribute(a *Attribute) {
	t.Attributes = append(t.Attributes, a)
	t.attributes[a.Name] = a
}

// AddRelationship appends a relationship
func (t *Type) AddRelationship(r *Relationship) {
	t.Relationships = append(t.Relationships, r)
	t.relationships[r.Name] = r
}

// Attribute returns the attribute with the given name
func (t *Type) Attribute(name string) (*Attribute, bool) {
	a, ok := t.attributes[name]
	return a, ok
}

// Relationship returns the relationship with the given name
func (t *Type) Relationship(name string) (*Relationship, bool) {
	r, ok := t.relationships[name]
	return r, ok
}

// AttributeNames returns attribute names in declaration order
func (t *Type) AttributeNames() []string {
	names := make([]string, len(t.Attributes))
	for i, a := range t.Attributes {
		names[i] = a.Name
	}
	return names
}

// RelationshipNames returns relationship names in declaration order
func (t *Type) RelationshipNames() []string {
	names := make([]string, len(t.Relationships))
	for i, r := range t.Relationships {
		names[i] = r.Name
	}
	return names
}
