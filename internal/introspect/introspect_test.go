package introspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/ormtest"
	"github.com/conduit-lang/conduit-jsonapi/internal/resource"
)

type Article struct {
	ID       int64              `orm:"id"`
	Title    string             `orm:"field"`
	Body     string             `orm:"field"`
	Comments *entity.Collection `orm:"one_to_many,target:Comment,mapped_by:article"`
}

type Comment struct {
	ID      int64    `orm:"id"`
	Article *Article `orm:"many_to_one"`
}

func articleMetadata(t *testing.T) []*mapping.EntityMetadata {
	t.Helper()
	registry := mapping.NewRegistry()
	require.NoError(t, registry.Register(&Article{}, &Comment{}))
	return registry.AllMetadata()
}

func TestOptions_TypeName(t *testing.T) {
	tests := []struct {
		opts Options
		in   string
		want string
	}{
		{Options{}, "Article", "Article"},
		{Options{TypeSuffix: "s"}, "Article", "Articles"},
		{Options{TypePrefix: "Blog", TypeSuffix: "s"}, "BlogPost", "Posts"},
		{Options{TypePrefix: "Blog"}, "Post", "Post"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.opts.TypeName(tt.in))
	}
}

func TestBuildSchemas_ArticleWithComments(t *testing.T) {
	bindings, err := BuildSchemas(articleMetadata(t), Options{})
	require.NoError(t, err)
	require.Len(t, bindings, 2)

	article := bindings[0].Type
	assert.Equal(t, "Article", article.Name)
	assert.True(t, article.Creatable)
	assert.True(t, article.Updatable)
	assert.Equal(t, []string{"title", "body"}, article.AttributeNames())
	for _, name := range article.AttributeNames() {
		attr, _ := article.Attribute(name)
		assert.True(t, attr.Writable, name)
		assert.True(t, attr.Filterable, name)
		assert.True(t, attr.Sortable, name)
	}

	require.Equal(t, []string{"comments"}, article.RelationshipNames())
	comments, _ := article.Relationship("comments")
	assert.Equal(t, resource.HasMany, comments.Cardinality)
	assert.Equal(t, "Comment", comments.Type)
	assert.Equal(t, "comments", comments.Property)
	assert.True(t, comments.Includable)
	assert.True(t, comments.Filterable)

	comment := bindings[1].Type
	assert.Empty(t, comment.AttributeNames())
	rel, ok := comment.Relationship("article")
	require.True(t, ok)
	assert.Equal(t, resource.HasOne, rel.Cardinality)
}

func TestBuildSchemas_OnePerEntity(t *testing.T) {
	registry := ormtest.Registry(t)
	metas := registry.AllMetadata()

	bindings, err := BuildSchemas(metas, Options{TypeSuffix: "s"})
	require.NoError(t, err)
	require.Len(t, bindings, len(metas))

	for i, meta := range metas {
		typ := bindings[i].Type
		assert.Same(t, meta, bindings[i].Meta)
		assert.Len(t, typ.AttributeNames(), len(meta.Fields)-1, meta.Name)
		assert.NotContains(t, typ.AttributeNames(), meta.Identifier)
		assert.Len(t, typ.RelationshipNames(), len(meta.Associations), meta.Name)
	}
}

func TestBuildSchemas_DanglingTarget(t *testing.T) {
	// targets are not checked while building
	metas := articleMetadata(t)[:1]
	bindings, err := BuildSchemas(metas, Options{})
	require.NoError(t, err)
	rel, _ := bindings[0].Type.Relationship("comments")
	assert.Equal(t, "Comment", rel.Type)
}

func TestBuildSchemas_AdapterFactory(t *testing.T) {
	store := ormtest.NewStore(t)
	bindings, err := BuildSchemas(store.Registry().AllMetadata(), Options{TypeSuffix: "s"})
	require.NoError(t, err)

	a := bindings[0].AdapterFactory(store.Manager())
	assert.Equal(t, bindings[0].Type, a.Type())
	assert.Equal(t, "Authors", a.Query().Alias())
}
