package dbmanager

import (
	"context"
	"slices"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Method names one operation callable through Call.
type Method string

// Callable methods.
const (
	MethodInsert          Method = "insert"
	MethodGet             Method = "get"
	MethodGetAll          Method = "getAll"
	MethodUpdate          Method = "update"
	MethodDelete          Method = "delete"
	MethodDeleteAll       Method = "deleteAll"
	MethodRename          Method = "rename"
	MethodExists          Method = "exists"
	MethodGetSingleValues Method = "getSingleValues"
	MethodGetSchemaMap    Method = "getSchemaMap"
	MethodBespoke         Method = "bespoke"
)

var methods = []Method{
	MethodInsert, MethodGet, MethodGetAll, MethodUpdate, MethodDelete,
	MethodDeleteAll, MethodRename, MethodExists, MethodGetSingleValues,
	MethodGetSchemaMap, MethodBespoke,
}

// ReadOnlyMethods are the methods that never write.
var ReadOnlyMethods = []Method{
	MethodGet, MethodGetAll, MethodExists, MethodGetSingleValues,
	MethodGetSchemaMap, MethodBespoke,
}

func defaultAllowed() map[Method]bool {
	allowed := make(map[Method]bool, len(methods))
	for _, m := range methods {
		allowed[m] = true
	}
	return allowed
}

// ParseMethod returns the Method named s.
func ParseMethod(s string) (Method, error) {
	m := Method(s)
	if !slices.Contains(methods, m) {
		return "", types.NewValueError("unknown method %q", s)
	}
	return m, nil
}

// Request carries the arguments of a Call. Only the fields the method uses
// are read.
type Request struct {
	Method  Method
	Schema  string
	Name    string
	NewName string
	Values  types.Record
	Fields  []string
	Options types.QueryOptions
	Filters types.Filters
	Keys    []types.SingleValueKey
	Query   types.BespokeQuery
	Args    types.BespokeArgs
}

// Call dispatches req to the connected store. Methods outside the allow-list
// are rejected with a ValueError.
func (m *Manager) Call(ctx context.Context, req Request) (any, error) {
	if !m.allowed[req.Method] {
		return nil, types.NewValueError("method %q is not allowed", req.Method).
			WithDetail("method", string(req.Method))
	}
	store := m.Store()
	if store == nil {
		return nil, types.ErrNotConnected
	}

	switch req.Method {
	case MethodInsert:
		return store.Insert(ctx, req.Schema, req.Values)
	case MethodGet:
		return store.Get(ctx, req.Schema, req.Name, req.Fields...)
	case MethodGetAll:
		return store.GetAll(ctx, req.Schema, req.Options)
	case MethodUpdate:
		return nil, store.Update(ctx, req.Schema, req.Values)
	case MethodDelete:
		return nil, store.Delete(ctx, req.Schema, req.Name)
	case MethodDeleteAll:
		return store.DeleteAll(ctx, req.Schema, req.Filters)
	case MethodRename:
		return nil, store.Rename(ctx, req.Schema, req.Name, req.NewName)
	case MethodExists:
		return store.Exists(ctx, req.Schema, req.Name)
	case MethodGetSingleValues:
		return store.GetSingleValues(ctx, req.Keys...)
	case MethodGetSchemaMap:
		return store.SchemaMap(), nil
	case MethodBespoke:
		return store.Bespoke(ctx, req.Query, req.Args)
	}
	return nil, types.NewValueError("unknown method %q", req.Method)
}
