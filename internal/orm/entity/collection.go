package entity

import (
	"context"
	"fmt"
)

// Loader fetches the members of a lazy collection
type Loader func(ctx context.Context) ([]any, error)

// Counter counts the members of a lazy collection without loading them
type Counter func(ctx context.Context) (int, error)

// Collection is a to-many association value. Collections hydrated from the
// store load their members on first use; collections built by callers are
// initialized from the start.
type Collection struct {
	load  Loader
	count Counter

	items       []any
	initialized bool
	dirty       bool
}

// NewCollection returns an initialized collection holding items
func NewCollection(items ...any) *Collection {
	c := &Collection{initialized: true, dirty: true}
	c.items = append(c.items, items...)
	return c
}

// NewLazyCollection returns a collection that loads through load on first
// access. count may be nil, in which case counting loads the members.
func NewLazyCollection(load Loader, count Counter) *Collection {
	return &Collection{load: load, count: count}
}

// IsInitialized reports whether the members are in memory
func (c *Collection) IsInitialized() bool { return c.initialized }

// IsDirty reports whether the members were changed since loading
func (c *Collection) IsDirty() bool { return c.dirty }

// Count returns the number of members
func (c *Collection) Count(ctx context.Context) (int, error) {
	if c.initialized || c.count == nil {
		items, err := c.Slice(ctx)
		if err != nil {
			return 0, err
		}
		return len(items), nil
	}
	return c.count(ctx)
}

// Slice returns the members, loading them if needed. The returned slice is a
// copy.
func (c *Collection) Slice(ctx context.Context) ([]any, error) {
	if err := c.initialize(ctx); err != nil {
		return nil, err
	}
	out := make([]any, len(c.items))
	copy(out, c.items)
	return out, nil
}

// Add appends item unless it is already a member
func (c *Collection) Add(ctx context.Context, item any) error {
	if err := c.initialize(ctx); err != nil {
		return err
	}
	if c.indexOf(item) >= 0 {
		return nil
	}
	c.items = append(c.items, item)
	c.dirty = true
	return nil
}

// Remove drops item from the members
func (c *Collection) Remove(ctx context.Context, item any) error {
	if err := c.initialize(ctx); err != nil {
		return err
	}
	i := c.indexOf(item)
	if i < 0 {
		return nil
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.dirty = true
	return nil
}

// Set replaces all members without loading the previous ones
func (c *Collection) Set(items ...any) {
	c.items = append([]any(nil), items...)
	c.initialized = true
	c.dirty = true
}

func (c *Collection) initialize(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if c.load == nil {
		c.initialized = true
		return nil
	}
	items, err := c.load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	c.items = items
	c.initialized = true
	return nil
}

func (c *Collection) indexOf(item any) int {
	for i, existing := range c.items {
		if existing == item {
			return i
		}
	}
	return -1
}
