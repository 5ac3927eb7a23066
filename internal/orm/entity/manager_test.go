package entity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/conduit-jsonapi/examples/blog/models"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
	"github.com/conduit-lang/conduit-jsonapi/internal/ormtest"
)

func metadata(t *testing.T, em *entity.Manager, name string) *mapping.EntityMetadata {
	t.Helper()
	meta, ok := em.Registry().ByName(name)
	require.True(t, ok, name)
	return meta
}

func TestManager_FindUsesIdentityMap(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()
	articles := metadata(t, em, "Article")

	first, err := em.Find(ctx, articles, blog.Intro.ID)
	require.NoError(t, err)
	second, err := em.Find(ctx, articles, blog.Intro.ID)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, blog.Intro, first, "seeded instances belong to another manager")
	assert.True(t, em.Contains(first))

	em.Clear()
	assert.False(t, em.Contains(first))
	third, err := em.Find(ctx, articles, blog.Intro.ID)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestManager_FindNotFound(t *testing.T) {
	store := ormtest.NewStore(t)
	ormtest.Seed(t, store)
	em := store.Manager()

	_, err := em.Find(context.Background(), metadata(t, em, "Article"), int64(9999))
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestManager_HydratesAssociations(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()

	found, err := em.Find(ctx, metadata(t, em, "Article"), blog.Intro.ID)
	require.NoError(t, err)
	article := found.(*models.Article)

	assert.Equal(t, "Introduction", article.Title)
	assert.True(t, article.Published)
	assert.Nil(t, article.Excerpt)
	assert.True(t, blog.Intro.CreatedAt.Equal(article.CreatedAt))

	// owning to-one
	require.NotNil(t, article.Author)
	assert.Equal(t, "Alice", article.Author.Name)

	// inverse to-one, loaded with the author
	require.NotNil(t, article.Author.Profile)
	require.NotNil(t, article.Author.Profile.Bio)
	assert.Equal(t, "Writes about databases", *article.Author.Profile.Bio)
	assert.Same(t, article.Author, article.Author.Profile.Author)

	// to-many collections are lazy
	require.NotNil(t, article.Comments)
	assert.False(t, article.Comments.IsInitialized())
	n, err := article.Comments.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, article.Comments.IsInitialized())

	comments, err := article.Comments.Slice(ctx)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	for _, c := range comments {
		assert.Same(t, article, c.(*models.Comment).Article)
	}

	tags, err := article.Tags.Slice(ctx)
	require.NoError(t, err)
	names := make([]string, 0)
	for _, tag := range tags {
		names = append(names, tag.(*models.Tag).Name)
	}
	assert.ElementsMatch(t, []string{"go", "sql"}, names)
}

func TestManager_InverseManyToMany(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()

	found, err := em.Find(ctx, metadata(t, em, "Tag"), blog.Go.ID)
	require.NoError(t, err)

	n, err := found.(*models.Tag).Articles.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestManager_ResultAndCount(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()
	articles := metadata(t, em, "Article")

	qb := em.CreateQueryBuilder(articles, "a")
	author, ok := articles.Association("author")
	require.True(t, ok)
	_, err := em.JoinAssociation(qb, "a", articles, author, "author")
	require.NoError(t, err)
	qb.Where(query.Col("author", "name"), query.OpEqual, "Alice").
		OrderBy(query.Col("a", "created_at"), "desc")

	results, err := em.Result(ctx, articles, qb)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, blog.Update.ID, results[0].(*models.Article).ID)
	assert.Equal(t, blog.Intro.ID, results[1].(*models.Article).ID)

	qb.SetMaxResults(1)
	total, err := em.Count(ctx, articles, qb)
	require.NoError(t, err)
	assert.Equal(t, 2, total, "count ignores pagination")
}

func TestManager_JoinManyToMany(t *testing.T) {
	store := ormtest.NewStore(t)
	ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()
	articles := metadata(t, em, "Article")
	tags := metadata(t, em, "Tag")

	qb := em.CreateQueryBuilder(articles, "a").Distinct()
	assoc, _ := articles.Association("tags")
	_, err := em.JoinAssociation(qb, "a", articles, assoc, "tags")
	require.NoError(t, err)
	qb.Where(query.Col("tags", "name"), query.OpEqual, "go")

	total, err := em.Count(ctx, articles, qb)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	// inverse side, reading the owner's join table
	qb = em.CreateQueryBuilder(tags, "t").Distinct()
	inverse, _ := tags.Association("articles")
	_, err = em.JoinAssociation(qb, "t", tags, inverse, "articles")
	require.NoError(t, err)
	qb.Where(query.Col("articles", "title"), query.OpEqual, "Update")

	results, err := em.Result(ctx, tags, qb)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "go", results[0].(*models.Tag).Name)
}

func TestManager_PersistInsert(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()

	article := &models.Article{Title: "New", Body: "Fresh", Author: blog.Bob}
	require.NoError(t, em.Persist(ctx, article))

	assert.NotZero(t, article.ID)
	assert.False(t, article.CreatedAt.IsZero())
	assert.False(t, article.UpdatedAt.IsZero())
	assert.True(t, em.Contains(article))

	found, err := em.Find(ctx, metadata(t, em, "Article"), article.ID)
	require.NoError(t, err)
	assert.Same(t, article, found)

	em.Clear()
	found, err = em.Find(ctx, metadata(t, em, "Article"), article.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", found.(*models.Article).Author.Name)
}

func TestManager_PersistUpdate(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()
	articles := metadata(t, em, "Article")

	found, err := em.Find(ctx, articles, blog.Draft.ID)
	require.NoError(t, err)
	draft := found.(*models.Article)
	updatedAt := draft.UpdatedAt

	excerpt := "Soon"
	draft.Title = "Almost ready"
	draft.Excerpt = &excerpt
	draft.Tags.Set(blog.SQL)
	require.NoError(t, em.Persist(ctx, draft))
	assert.True(t, draft.UpdatedAt.After(updatedAt) || draft.UpdatedAt.Equal(updatedAt))

	em.Clear()
	found, err = em.Find(ctx, articles, blog.Draft.ID)
	require.NoError(t, err)
	reloaded := found.(*models.Article)
	assert.Equal(t, "Almost ready", reloaded.Title)
	require.NotNil(t, reloaded.Excerpt)
	assert.Equal(t, "Soon", *reloaded.Excerpt)

	tags, err := reloaded.Tags.Slice(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "sql", tags[0].(*models.Tag).Name)
}

func TestManager_PersistUntouchedCollectionKeepsLinks(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()
	articles := metadata(t, em, "Article")

	found, err := em.Find(ctx, articles, blog.Intro.ID)
	require.NoError(t, err)
	intro := found.(*models.Article)
	intro.Title = "Welcome"
	require.NoError(t, em.Persist(ctx, intro))

	em.Clear()
	found, err = em.Find(ctx, articles, blog.Intro.ID)
	require.NoError(t, err)
	n, err := found.(*models.Article).Tags.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestManager_PersistErrors(t *testing.T) {
	store := ormtest.NewStore(t)
	ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()

	err := em.Persist(ctx, &struct{ ID int64 }{})
	assert.ErrorIs(t, err, entity.ErrUnmanaged)

	transient := &models.Article{Title: "Orphan", Author: &models.Author{Name: "Nobody"}}
	err = em.Persist(ctx, transient)
	assert.ErrorIs(t, err, entity.ErrTransientRelation)
	assert.Zero(t, transient.ID)

	dangling := &models.Comment{Body: "?", Article: &models.Article{ID: 9999}}
	err = em.Persist(ctx, dangling)
	assert.ErrorIs(t, err, entity.ErrForeignKeyViolation)
	assert.Zero(t, dangling.ID, "identifier is reset when the insert fails")

	err = em.Persist(ctx, &models.Tag{ID: 9999, Name: "ghost"})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestManager_Remove(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	ctx := context.Background()
	em := store.Manager()
	tags := metadata(t, em, "Tag")
	articles := metadata(t, em, "Article")

	found, err := em.Find(ctx, tags, blog.Go.ID)
	require.NoError(t, err)
	require.NoError(t, em.Remove(ctx, found))
	assert.False(t, em.Contains(found))

	_, err = em.Find(ctx, tags, blog.Go.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	intro, err := em.Find(ctx, articles, blog.Intro.ID)
	require.NoError(t, err)
	n, err := intro.(*models.Article).Tags.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "join rows of the removed tag are gone")

	err = em.Remove(ctx, found)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	err = em.Remove(ctx, &models.Tag{})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestManager_RemoveReferencedRowFails(t *testing.T) {
	store := ormtest.NewStore(t)
	blog := ormtest.Seed(t, store)
	em := store.Manager()

	err := em.Remove(context.Background(), blog.Intro)
	assert.ErrorIs(t, err, entity.ErrForeignKeyViolation)
}
