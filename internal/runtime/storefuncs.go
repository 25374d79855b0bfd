package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/topdown/internal/cache"
	"github.com/jward/topdown/internal/incremental"
)

// makeCachedTargetsFn creates "cached_targets".
//
// cached_targets() → list of {name, type}
func makeCachedTargetsFn(s *cache.Store) *object.Builtin {
	return object.NewBuiltin("cached_targets", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("cached_targets", 0, len(args))
		}
		targets, err := s.Targets()
		if err != nil {
			return object.Errorf("cached_targets: %v", err)
		}
		results := make([]object.Object, 0, len(targets))
		for _, t := range targets {
			results = append(results, targetToObject(t))
		}
		return object.NewList(results)
	})
}

// makeCachedPartsFn creates "cached_parts". The target is either a name or
// a {name, type} map.
//
// cached_parts(target) → list of {package, name, source_file, hash, obsolete, stubs}
func makeCachedPartsFn(s *cache.Store) *object.Builtin {
	return object.NewBuiltin("cached_parts", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("cached_parts", 1, len(args))
		}
		target, err := toTargetID(args[0])
		if err != nil {
			return object.Errorf("cached_parts: %v", err)
		}
		infos, err := s.PartInfos(target)
		if err != nil {
			return object.Errorf("cached_parts: %v", err)
		}
		results := make([]object.Object, 0, len(infos))
		for _, pi := range infos {
			results = append(results, object.NewMap(map[string]object.Object{
				"package":     object.NewString(pi.Package),
				"name":        object.NewString(pi.Name),
				"source_file": object.NewString(pi.SourceFile),
				"hash":        object.NewString(pi.Hash),
				"obsolete":    object.NewBool(pi.Obsolete),
				"stubs":       object.NewInt(int64(pi.Stubs)),
			}))
		}
		return object.NewList(results)
	})
}

// makeLastLookupsFn creates "last_lookups", the lookups recorded by the
// last saved analysis.
//
// last_lookups() → list of {file, line, col, scope, scope_kind, name, result}
func makeLastLookupsFn(s *cache.Store) *object.Builtin {
	return object.NewBuiltin("last_lookups", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("last_lookups", 0, len(args))
		}
		runID, err := s.LastRun()
		if err != nil {
			return object.Errorf("last_lookups: %v", err)
		}
		results := []object.Object{}
		if runID == "" {
			return object.NewList(results)
		}
		lookups, err := s.RunLookups(runID)
		if err != nil {
			return object.Errorf("last_lookups: %v", err)
		}
		for _, l := range lookups {
			results = append(results, object.NewMap(map[string]object.Object{
				"file":       object.NewString(l.File),
				"line":       object.NewInt(int64(l.Line)),
				"col":        object.NewInt(int64(l.Col)),
				"scope":      object.NewString(l.Scope),
				"scope_kind": object.NewString(string(l.ScopeKind)),
				"name":       object.NewString(l.Name),
				"result":     object.NewString(l.Result.String()),
			}))
		}
		return object.NewList(results)
	})
}

// makeDBQueryFn creates "db_query", a read-only SELECT over the cache
// tables. Parameters are strings or ints, the only column types the cache
// stores.
//
// db_query(sql, args...) → list of row maps
func makeDBQueryFn(s *cache.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected a SELECT statement")
		}
		query, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}
		params := make([]any, 0, len(args)-1)
		for i, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.String:
				params = append(params, v.Value())
			case *object.Int:
				params = append(params, v.Value())
			default:
				return object.Errorf("db_query: parameter %d: expected string or int, got %s", i+1, arg.Type())
			}
		}

		rows, err := s.DB().QueryContext(ctx, query, params...)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		results := []object.Object{}
		for rows.Next() {
			values := make([]any, len(cols))
			dest := make([]any, len(cols))
			for i := range values {
				dest[i] = &values[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return object.Errorf("db_query: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = columnToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: %v", err)
		}
		return object.NewList(results)
	})
}

// --- Conversion helpers ---

func targetToObject(t incremental.TargetID) object.Object {
	return object.NewMap(map[string]object.Object{
		"name": object.NewString(t.Name),
		"type": object.NewString(t.Type),
	})
}

func toTargetID(obj object.Object) (incremental.TargetID, error) {
	if s, ok := obj.(*object.String); ok {
		return incremental.TargetID{Name: s.Value()}, nil
	}
	m, err := extractMap(obj)
	if err != nil {
		return incremental.TargetID{}, err
	}
	name := getString(m, "name")
	if name == "" {
		return incremental.TargetID{}, fmt.Errorf("target map needs a name")
	}
	return incremental.TargetID{Name: name, Type: getString(m, "type")}, nil
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	if s, ok := v.(*object.String); ok {
		return s.Value()
	}
	return ""
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// columnToObject converts a cache column. Stub bodies come back as bytes,
// booleans and counts as integers.
func columnToObject(v any) object.Object {
	switch v := v.(type) {
	case nil:
		return object.Nil
	case int64:
		return object.NewInt(v)
	case string:
		return object.NewString(v)
	case []byte:
		return object.NewString(string(v))
	}
	return object.NewString(fmt.Sprint(v))
}
