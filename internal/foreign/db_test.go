package foreign

import (
	"testing"

	"hexza/internal/ast"
	"hexza/internal/object"
)

func openTestDB(t *testing.T) *object.NativeHandle {
	t.Helper()
	r := NewRegistry()
	RegisterDB(r)
	got := r.Call("db.open", ast.Pos{}, &object.String{Value: "sqlite3"}, &object.String{Value: ":memory:"})
	handle, ok := got.(*object.NativeHandle)
	if !ok {
		t.Fatalf("db.open = %s", got.Inspect())
	}
	t.Cleanup(func() { handle.Symbols["close"].Fn(ast.Pos{}) })
	return handle
}

func dbCall(t *testing.T, handle *object.NativeHandle, name string, args ...object.Object) object.Object {
	t.Helper()
	sym, ok := handle.Symbols[name]
	if !ok {
		t.Fatalf("handle has no symbol %q", name)
	}
	got := sym.Fn(ast.Pos{}, args...)
	if err, ok := got.(*object.ErrorObject); ok {
		t.Fatalf("db.%s: %s", name, err.Error())
	}
	return got
}

func TestExecAndQuery(t *testing.T) {
	h := openTestDB(t)
	dbCall(t, h, "exec", &object.String{Value: "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"})

	res := dbCall(t, h, "exec",
		&object.String{Value: "INSERT INTO users (name) VALUES (?), (?)"},
		&object.String{Value: "ada"}, &object.String{Value: "bob"})
	m := res.(*object.Map)
	affected, _ := m.Get("rowsAffected")
	if affected.Inspect() != "2" {
		t.Fatalf("rowsAffected = %s, want 2", affected.Inspect())
	}

	rows := dbCall(t, h, "query",
		&object.String{Value: "SELECT id, name FROM users ORDER BY id"}).(*object.Array)
	if len(rows.Elements) != 2 {
		t.Fatalf("query returned %d rows, want 2", len(rows.Elements))
	}
	first := rows.Elements[0].(*object.Map)
	name, _ := first.Get("name")
	if name.Inspect() != "ada" {
		t.Errorf("first row name = %s, want ada", name.Inspect())
	}
}

func TestQueryWithParameters(t *testing.T) {
	h := openTestDB(t)
	dbCall(t, h, "exec", &object.String{Value: "CREATE TABLE nums (n INTEGER)"})
	for i := int64(1); i <= 5; i++ {
		dbCall(t, h, "exec",
			&object.String{Value: "INSERT INTO nums (n) VALUES (?)"},
			&object.Integer{Value: i})
	}
	rows := dbCall(t, h, "query",
		&object.String{Value: "SELECT n FROM nums WHERE n > ? ORDER BY n"},
		&object.Integer{Value: 3}).(*object.Array)
	if len(rows.Elements) != 2 {
		t.Fatalf("query returned %d rows, want 2", len(rows.Elements))
	}
}

func TestTransactionRollback(t *testing.T) {
	h := openTestDB(t)
	dbCall(t, h, "exec", &object.String{Value: "CREATE TABLE t (n INTEGER)"})

	dbCall(t, h, "begin")
	dbCall(t, h, "exec", &object.String{Value: "INSERT INTO t (n) VALUES (1)"})
	dbCall(t, h, "rollback")

	rows := dbCall(t, h, "query", &object.String{Value: "SELECT n FROM t"}).(*object.Array)
	if len(rows.Elements) != 0 {
		t.Fatalf("rollback left %d rows", len(rows.Elements))
	}

	dbCall(t, h, "begin")
	dbCall(t, h, "exec", &object.String{Value: "INSERT INTO t (n) VALUES (2)"})
	dbCall(t, h, "commit")
	rows = dbCall(t, h, "query", &object.String{Value: "SELECT n FROM t"}).(*object.Array)
	if len(rows.Elements) != 1 {
		t.Fatalf("commit kept %d rows, want 1", len(rows.Elements))
	}
}

func TestBeginTwiceFails(t *testing.T) {
	h := openTestDB(t)
	dbCall(t, h, "begin")
	got := h.Symbols["begin"].Fn(ast.Pos{})
	if err, ok := got.(*object.ErrorObject); !ok || err.Kind != object.ForeignCallError {
		t.Fatalf("nested begin = %v, want ForeignCallError", got)
	}
	dbCall(t, h, "rollback")
}

func TestExecRejectsNonScalarParameter(t *testing.T) {
	h := openTestDB(t)
	dbCall(t, h, "exec", &object.String{Value: "CREATE TABLE t (n INTEGER)"})
	got := h.Symbols["exec"].Fn(ast.Pos{},
		&object.String{Value: "INSERT INTO t (n) VALUES (?)"},
		&object.Array{Elements: []object.Object{}})
	if err, ok := got.(*object.ErrorObject); !ok || err.Kind != object.ForeignCallError {
		t.Fatalf("array parameter = %v, want ForeignCallError", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	r := NewRegistry()
	RegisterDB(r)
	got := r.Call("db.open", ast.Pos{}, &object.String{Value: "no-such-driver"}, &object.String{Value: ""})
	if err, ok := got.(*object.ErrorObject); !ok || err.Kind != object.ForeignCallError {
		t.Fatalf("unknown driver = %v, want ForeignCallError", got)
	}
}
