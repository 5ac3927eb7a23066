// Package ormtest provides an in-memory SQLite store holding the example blog
// schema, for tests of the packages built on top of the entity manager.
package ormtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/conduit-lang/conduit-jsonapi/examples/blog/models"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/migrate"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"

	_ "github.com/mattn/go-sqlite3"
)

var dbCounter atomic.Int64

// Registry returns a validated registry of the blog entities
func Registry(t testing.TB) *mapping.Registry {
	t.Helper()
	registry := mapping.NewRegistry()
	require.NoError(t, models.Register(registry))
	return registry
}

// NewStore opens a private in-memory database, creates the blog tables and
// returns a store over it. The database is closed when the test ends.
func NewStore(t testing.TB) *entity.Store {
	t.Helper()

	// every store gets its own shared-cache database so parallel tests do
	// not see each other's rows
	dsn := fmt.Sprintf("file:ormtest%d?mode=memory&cache=shared&_foreign_keys=on", dbCounter.Add(1))
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	registry := Registry(t)
	statements, err := migrate.GenerateDDL(registry.AllMetadata(), query.SQLite)
	require.NoError(t, err)
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	return entity.NewStore(db, query.SQLite, registry, zaptest.NewLogger(t))
}

// Blog is a seeded data set
type Blog struct {
	Alice *models.Author
	Bob   *models.Author

	AliceProfile *models.Profile

	// Intro has two comments, Update one and Draft none
	Intro  *models.Article
	Update *models.Article
	Draft  *models.Article

	Comments []*models.Comment

	Go  *models.Tag
	SQL *models.Tag
}

// Seed writes the blog fixture through a fresh manager and returns it.
// Fixture instances are detached afterwards, so later loads return new
// instances.
func Seed(t testing.TB, store *entity.Store) *Blog {
	t.Helper()
	ctx := context.Background()
	em := store.Manager()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	b := &Blog{
		Alice: &models.Author{Name: "Alice", Email: "alice@example.com", CreatedAt: base},
		Bob:   &models.Author{Name: "Bob", Email: "bob@example.com", CreatedAt: base.Add(time.Hour)},
		Go:    &models.Tag{Name: "go"},
		SQL:   &models.Tag{Name: "sql"},
	}
	for _, m := range []any{b.Alice, b.Bob, b.Go, b.SQL} {
		require.NoError(t, em.Persist(ctx, m))
	}

	bio := "Writes about databases"
	b.AliceProfile = &models.Profile{Bio: &bio, Author: b.Alice}
	require.NoError(t, em.Persist(ctx, b.AliceProfile))

	b.Intro = &models.Article{
		Title:     "Introduction",
		Body:      "Hello and welcome to the blog.",
		Published: true,
		CreatedAt: base,
		Author:    b.Alice,
		Tags:      entity.NewCollection(b.Go, b.SQL),
	}
	b.Update = &models.Article{
		Title:     "Update",
		Body:      "Some news.",
		Published: true,
		CreatedAt: base.Add(24 * time.Hour),
		Author:    b.Alice,
		Tags:      entity.NewCollection(b.Go),
	}
	b.Draft = &models.Article{
		Title:     "Draft",
		Body:      "Not ready yet.",
		CreatedAt: base.Add(48 * time.Hour),
		Author:    b.Bob,
	}
	for _, m := range []any{b.Intro, b.Update, b.Draft} {
		require.NoError(t, em.Persist(ctx, m))
	}

	for i, c := range []struct {
		body    string
		article *models.Article
	}{
		{"First!", b.Intro},
		{"Nice intro", b.Intro},
		{"Thanks for the update", b.Update},
	} {
		comment := &models.Comment{Body: c.body, CreatedAt: base.Add(time.Duration(i) * time.Minute), Article: c.article}
		require.NoError(t, em.Persist(ctx, comment))
		b.Comments = append(b.Comments, comment)
	}

	return b
}
