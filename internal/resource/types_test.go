package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestType_AttributesAndRelationships(t *testing.T) {
	typ := NewType("Article")
	typ.AddAttribute(&Attribute{Name: "title", Writable: true})
	typ.AddAttribute(&Attribute{Name: "body", Writable: true})
	typ.AddRelationship(&Relationship{Name: "comments", Type: "Comment", Cardinality: HasMany})

	assert.Equal(t, []string{"title", "body"}, typ.AttributeNames())
	assert.Equal(t, []string{"comments"}, typ.RelationshipNames())

	attr, ok := typ.Attribute("body")
	assert.True(t, ok)
	assert.True(t, attr.Writable)

	_, ok = typ.Attribute("comments")
	assert.False(t, ok)

	rel, ok := typ.Relationship("comments")
	assert.True(t, ok)
	assert.Equal(t, HasMany, rel.Cardinality)
}

func TestCardinality_String(t *testing.T) {
	assert.Equal(t, "has_one", HasOne.String())
	assert.Equal(t, "has_many", HasMany.String())
	assert.Equal(t, "unknown", Cardinality(7).String())
}
