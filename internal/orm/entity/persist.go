package entity

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
)

var timeType = reflect.TypeOf(time.Time{})

// Persist inserts model when its identifier is zero and updates it otherwise.
// String identifiers are generated as UUIDs; numeric identifiers are assigned
// by the store and written back. Owning many-to-many collections that are in
// memory are written to their join tables. The change is committed before
// Persist returns.
func (m *Manager) Persist(ctx context.Context, model any) error {
	meta, err := m.MetadataOf(model)
	if err != nil {
		return err
	}
	v, err := meta.Value(model)
	if err != nil {
		return err
	}

	idValue := v.FieldByIndex(meta.IdentifierField().Index)
	insert := idValue.IsZero()
	generated := insert && idValue.Kind() != reflect.String
	if insert && !generated {
		idValue.SetString(uuid.NewString())
	}
	touchTimestamps(meta, v, insert)

	columns, values, err := m.rowValues(meta, v, generated)
	if err != nil {
		if insert && !generated {
			idValue.SetString("")
		}
		return err
	}

	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if insert {
		err = m.insert(ctx, tx, meta, idValue, columns, values, generated)
	} else {
		err = m.update(ctx, tx, meta, idValue.Interface(), columns, values)
	}
	if err == nil {
		err = m.writeJoinTables(ctx, tx, meta, v, idValue.Interface())
	}
	if err == nil {
		err = tx.Commit()
		if err != nil {
			err = fmt.Errorf("failed to commit transaction: %w", err)
		}
	}
	if err != nil {
		if insert {
			idValue.Set(reflect.Zero(idValue.Type()))
		}
		return err
	}

	m.identity[identityKey(meta, idValue.Interface())] = model
	return nil
}

// Remove deletes model and its join table rows, committing immediately
func (m *Manager) Remove(ctx context.Context, model any) error {
	meta, err := m.MetadataOf(model)
	if err != nil {
		return err
	}
	v, err := meta.Value(model)
	if err != nil {
		return err
	}

	idField := meta.IdentifierField()
	idValue := v.FieldByIndex(idField.Index)
	if idValue.IsZero() {
		return fmt.Errorf("%w: %s has no identifier", ErrNotFound, meta.Name)
	}
	id := idValue.Interface()

	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, assoc := range meta.Associations {
		if !assoc.IsManyToMany() {
			continue
		}
		_, owner, err := m.store.registry.Owner(assoc)
		if err != nil {
			return err
		}
		column := owner.JoinColumn
		if !assoc.IsOwningSide() {
			column = owner.InverseJoinColumn
		}
		if _, err := m.exec(ctx, tx, query.DeleteSQL(m.store.dialect, owner.JoinTable, column), id); err != nil {
			return fmt.Errorf("failed to unlink %s.%s: %w", meta.Name, assoc.FieldName, err)
		}
	}

	res, err := m.exec(ctx, tx, query.DeleteSQL(m.store.dialect, meta.Table, idField.Column), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", meta.Name, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, meta.Name, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	delete(m.identity, identityKey(meta, id))
	return nil
}

func (m *Manager) insert(ctx context.Context, tx *sql.Tx, meta *mapping.EntityMetadata, idValue reflect.Value, columns []string, values []any, generated bool) error {
	d := m.store.dialect
	idColumn := meta.IdentifierField().Column

	if generated && d.Returning {
		stmt := query.InsertSQL(d, meta.Table, columns, idColumn)
		m.store.logQuery(stmt, values)
		var id any
		if err := tx.QueryRowContext(ctx, stmt, values...).Scan(&id); err != nil {
			return fmt.Errorf("failed to insert %s: %w", meta.Name, ConvertDBError(err))
		}
		return assignIdentifier(idValue, id)
	}

	res, err := m.exec(ctx, tx, query.InsertSQL(d, meta.Table, columns, ""), values...)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", meta.Name, err)
	}
	if !generated {
		return nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read generated id of %s: %w", meta.Name, err)
	}
	return assignIdentifier(idValue, id)
}

func (m *Manager) update(ctx context.Context, tx *sql.Tx, meta *mapping.EntityMetadata, id any, columns []string, values []any) error {
	idColumn := meta.IdentifierField().Column

	setColumns := make([]string, 0, len(columns))
	args := make([]any, 0, len(values)+1)
	for i, c := range columns {
		if c == idColumn {
			continue
		}
		setColumns = append(setColumns, c)
		args = append(args, values[i])
	}
	if len(setColumns) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := m.exec(ctx, tx, query.UpdateSQL(m.store.dialect, meta.Table, setColumns, idColumn), args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", meta.Name, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("%w: %s %v", ErrNotFound, meta.Name, id)
	}
	return nil
}

// writeJoinTables rewrites the link rows of every in-memory owning
// many-to-many collection
func (m *Manager) writeJoinTables(ctx context.Context, tx *sql.Tx, meta *mapping.EntityMetadata, v reflect.Value, id any) error {
	d := m.store.dialect

	for _, assoc := range meta.Associations {
		if !assoc.IsManyToMany() || !assoc.IsOwningSide() {
			continue
		}
		members, ok, err := loadedMembers(ctx, v.FieldByIndex(assoc.Index))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		if _, err := m.exec(ctx, tx, query.DeleteSQL(d, assoc.JoinTable, assoc.JoinColumn), id); err != nil {
			return fmt.Errorf("failed to clear %s.%s: %w", meta.Name, assoc.FieldName, err)
		}

		insert := query.InsertSQL(d, assoc.JoinTable, []string{assoc.JoinColumn, assoc.InverseJoinColumn}, "")
		for _, member := range members {
			relatedID, err := m.identifierOf(member)
			if err != nil {
				return err
			}
			if _, err := m.exec(ctx, tx, insert, id, relatedID); err != nil {
				return fmt.Errorf("failed to link %s.%s: %w", meta.Name, assoc.FieldName, err)
			}
		}
	}
	return nil
}

// rowValues collects the column values of v. The identifier column is left
// out when the store generates it.
func (m *Manager) rowValues(meta *mapping.EntityMetadata, v reflect.Value, skipID bool) ([]string, []any, error) {
	columns := make([]string, 0, len(meta.Fields))
	values := make([]any, 0, len(meta.Fields))

	for _, f := range meta.Fields {
		if skipID && f.Name == meta.Identifier {
			continue
		}
		columns = append(columns, f.Column)
		values = append(values, v.FieldByIndex(f.Index).Interface())
	}

	for _, assoc := range meta.OwningJoins() {
		fv := v.FieldByIndex(assoc.Index)
		columns = append(columns, assoc.JoinColumn)
		if isNil(fv) {
			values = append(values, nil)
			continue
		}
		relatedID, err := m.identifierOf(fv.Interface())
		if err != nil {
			return nil, nil, fmt.Errorf("%s.%s: %w", meta.Name, assoc.FieldName, err)
		}
		values = append(values, relatedID)
	}
	return columns, values, nil
}

func (m *Manager) identifierOf(model any) (any, error) {
	meta, err := m.MetadataOf(model)
	if err != nil {
		return nil, err
	}
	v, err := meta.Value(model)
	if err != nil {
		return nil, err
	}
	idValue := v.FieldByIndex(meta.IdentifierField().Index)
	if idValue.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrTransientRelation, meta.Name)
	}
	return idValue.Interface(), nil
}

func (m *Manager) exec(ctx context.Context, tx *sql.Tx, stmt string, args ...any) (sql.Result, error) {
	m.store.logQuery(stmt, args)
	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	return res, nil
}

// loadedMembers returns the members of a to-many field, reporting false when
// the field is nil or an uninitialized collection
func loadedMembers(ctx context.Context, fv reflect.Value) ([]any, bool, error) {
	if isNil(fv) {
		return nil, false, nil
	}
	if c, ok := fv.Interface().(*Collection); ok {
		if !c.IsInitialized() {
			return nil, false, nil
		}
		items, err := c.Slice(ctx)
		return items, true, err
	}
	if fv.Kind() == reflect.Slice {
		items := make([]any, fv.Len())
		for i := range items {
			items[i] = fv.Index(i).Interface()
		}
		return items, true, nil
	}
	return nil, false, nil
}

func touchTimestamps(meta *mapping.EntityMetadata, v reflect.Value, insert bool) {
	now := time.Now().UTC()
	if f, ok := meta.Field("created_at"); ok && insert && f.Type == timeType {
		if fv := v.FieldByIndex(f.Index); fv.IsZero() {
			fv.Set(reflect.ValueOf(now))
		}
	}
	if f, ok := meta.Field("updated_at"); ok && f.Type == timeType {
		v.FieldByIndex(f.Index).Set(reflect.ValueOf(now))
	}
}

// assignIdentifier stores a generated key into the identifier field
func assignIdentifier(field reflect.Value, raw any) error {
	switch field.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		field.SetUint(uint64(n))
	case reflect.String:
		field.SetString(FormatID(raw))
	default:
		return fmt.Errorf("unsupported identifier type %s", field.Type())
	}
	return nil
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected identifier value %T", raw)
	}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return v.IsNil()
	}
	return false
}
