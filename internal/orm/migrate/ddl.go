package migrate

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/mapping"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
)

var timeType = reflect.TypeOf(time.Time{})

// GenerateMigration builds a migration creating every table of metas
func GenerateMigration(metas []*mapping.EntityMetadata, d query.Dialect, version int64, name string) (*Migration, error) {
	up, err := GenerateDDL(metas, d)
	if err != nil {
		return nil, err
	}
	down, err := DropDDL(metas, d)
	if err != nil {
		return nil, err
	}
	return &Migration{
		Version: version,
		Name:    name,
		Up:      strings.Join(up, "\n\n") + "\n",
		Down:    strings.Join(down, "\n") + "\n",
	}, nil
}

// GenerateDDL returns CREATE TABLE statements for metas and their join
// tables, ordered so that referenced tables come first.
func GenerateDDL(metas []*mapping.EntityMetadata, d query.Dialect) ([]string, error) {
	ordered, err := orderByDependency(metas)
	if err != nil {
		return nil, err
	}
	byName := indexByName(metas)

	statements := make([]string, 0, len(ordered))
	for _, meta := range ordered {
		stmt, err := createTable(meta, byName, d)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", meta.Name, err)
		}
		statements = append(statements, stmt)
	}

	for _, meta := range ordered {
		for _, assoc := range meta.Associations {
			if !assoc.IsManyToMany() || !assoc.IsOwningSide() {
				continue
			}
			stmt, err := createJoinTable(meta, assoc, byName, d)
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", meta.Name, err)
			}
			statements = append(statements, stmt)
		}
	}
	return statements, nil
}

// DropDDL returns DROP TABLE statements in the reverse order of GenerateDDL
func DropDDL(metas []*mapping.EntityMetadata, d query.Dialect) ([]string, error) {
	ordered, err := orderByDependency(metas)
	if err != nil {
		return nil, err
	}

	var statements []string
	for i := len(ordered) - 1; i >= 0; i-- {
		for _, assoc := range ordered[i].Associations {
			if assoc.IsManyToMany() && assoc.IsOwningSide() {
				statements = append(statements, fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.Quote(assoc.JoinTable)))
			}
		}
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		statements = append(statements, fmt.Sprintf("DROP TABLE IF EXISTS %s;", d.Quote(ordered[i].Table)))
	}
	return statements, nil
}

func createTable(meta *mapping.EntityMetadata, byName map[string]*mapping.EntityMetadata, d query.Dialect) (string, error) {
	var defs []string

	for _, f := range meta.Fields {
		if f.Name == meta.Identifier {
			def, err := identifierDefinition(f, d)
			if err != nil {
				return "", err
			}
			defs = append(defs, def)
			continue
		}

		colType, nullable, err := ColumnType(f.Type, d)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", f.Name, err)
		}
		def := d.Quote(f.Column) + " " + colType
		if !nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	for _, assoc := range meta.OwningJoins() {
		target, ok := byName[assoc.TargetEntity]
		if !ok {
			return "", fmt.Errorf("association %s targets unknown entity %s", assoc.FieldName, assoc.TargetEntity)
		}
		colType, err := referenceType(target, d)
		if err != nil {
			return "", err
		}
		defs = append(defs, fmt.Sprintf("%s %s REFERENCES %s (%s)",
			d.Quote(assoc.JoinColumn), colType,
			d.Quote(target.Table), d.Quote(target.IdentifierField().Column)))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		d.Quote(meta.Table), strings.Join(defs, ",\n  ")), nil
}

func createJoinTable(meta *mapping.EntityMetadata, assoc *mapping.Association, byName map[string]*mapping.EntityMetadata, d query.Dialect) (string, error) {
	target, ok := byName[assoc.TargetEntity]
	if !ok {
		return "", fmt.Errorf("association %s targets unknown entity %s", assoc.FieldName, assoc.TargetEntity)
	}
	ownerType, err := referenceType(meta, d)
	if err != nil {
		return "", err
	}
	targetType, err := referenceType(target, d)
	if err != nil {
		return "", err
	}

	defs := []string{
		fmt.Sprintf("%s %s NOT NULL REFERENCES %s (%s) ON DELETE CASCADE",
			d.Quote(assoc.JoinColumn), ownerType, d.Quote(meta.Table), d.Quote(meta.IdentifierField().Column)),
		fmt.Sprintf("%s %s NOT NULL REFERENCES %s (%s) ON DELETE CASCADE",
			d.Quote(assoc.InverseJoinColumn), targetType, d.Quote(target.Table), d.Quote(target.IdentifierField().Column)),
		fmt.Sprintf("PRIMARY KEY (%s, %s)", d.Quote(assoc.JoinColumn), d.Quote(assoc.InverseJoinColumn)),
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		d.Quote(assoc.JoinTable), strings.Join(defs, ",\n  ")), nil
}

func identifierDefinition(f *mapping.Field, d query.Dialect) (string, error) {
	col := d.Quote(f.Column)
	switch f.Type.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		if d.Name == query.SQLite.Name {
			return col + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
		}
		if f.Type.Kind() == reflect.Int32 || f.Type.Kind() == reflect.Uint32 {
			return col + " SERIAL PRIMARY KEY", nil
		}
		return col + " BIGSERIAL PRIMARY KEY", nil
	case reflect.String:
		return col + " VARCHAR(36) PRIMARY KEY", nil
	default:
		return "", fmt.Errorf("unsupported identifier type %s", f.Type)
	}
}

// referenceType is the column type of a foreign key to meta
func referenceType(meta *mapping.EntityMetadata, d query.Dialect) (string, error) {
	id := meta.IdentifierField()
	switch id.Type.Kind() {
	case reflect.String:
		return "VARCHAR(36)", nil
	case reflect.Int32, reflect.Uint32:
		return "INTEGER", nil
	default:
		colType, _, err := ColumnType(id.Type, d)
		return colType, err
	}
}

// ColumnType maps a Go field type to a column type for d. Pointer types map
// to nullable columns.
func ColumnType(t reflect.Type, d query.Dialect) (string, bool, error) {
	nullable := false
	if t.Kind() == reflect.Ptr {
		nullable = true
		t = t.Elem()
	}

	sqlite := d.Name == query.SQLite.Name
	if t == timeType {
		if sqlite {
			return "TIMESTAMP", nullable, nil
		}
		return "TIMESTAMPTZ", nullable, nil
	}

	switch t.Kind() {
	case reflect.String:
		return "TEXT", nullable, nil
	case reflect.Bool:
		return "BOOLEAN", nullable, nil
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		if sqlite {
			return "INTEGER", nullable, nil
		}
		return "BIGINT", nullable, nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return "INTEGER", nullable, nil
	case reflect.Float32, reflect.Float64:
		if sqlite {
			return "REAL", nullable, nil
		}
		return "DOUBLE PRECISION", nullable, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			if sqlite {
				return "BLOB", nullable, nil
			}
			return "BYTEA", nullable, nil
		}
	}
	return "", false, fmt.Errorf("unsupported column type %s", t)
}

func indexByName(metas []*mapping.EntityMetadata) map[string]*mapping.EntityMetadata {
	byName := make(map[string]*mapping.EntityMetadata, len(metas))
	for _, meta := range metas {
		byName[meta.Name] = meta
	}
	return byName
}

// orderByDependency sorts metas so that targets of owning joins precede the
// entities referencing them. Self references are allowed; longer cycles are not.
func orderByDependency(metas []*mapping.EntityMetadata) ([]*mapping.EntityMetadata, error) {
	byName := indexByName(metas)
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(metas))
	ordered := make([]*mapping.EntityMetadata, 0, len(metas))

	var visit func(meta *mapping.EntityMetadata) error
	visit = func(meta *mapping.EntityMetadata) error {
		switch state[meta.Name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular reference through %s", meta.Name)
		}
		state[meta.Name] = visiting
		for _, assoc := range meta.OwningJoins() {
			if assoc.TargetEntity == meta.Name {
				continue
			}
			if target, ok := byName[assoc.TargetEntity]; ok {
				if err := visit(target); err != nil {
					return err
				}
			}
		}
		state[meta.Name] = done
		ordered = append(ordered, meta)
		return nil
	}

	for _, meta := range metas {
		if err := visit(meta); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}
