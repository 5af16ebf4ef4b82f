package foreign

import (
	"database/sql"

	"hexza/internal/ast"
	"hexza/internal/object"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// The db module is the reference native module: `db.open(driver, dsn)`
// returns a NativeHandle whose symbol table carries the per-connection
// operations. Handles hold their own state, so nothing here is process-wide.

type dbConn struct {
	db *sql.DB
	tx *sql.Tx
}

// RegisterDB installs the database module into the bridge.
func RegisterDB(r *Registry) {
	r.Register("db.open", dbOpen)
}

func dbOpen(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) != 2 {
		return object.NewError(object.ForeignCallError, pos, "db.open expects 2 argument(s): driver, dsn")
	}
	driver, ok := args[0].(*object.String)
	if !ok {
		return object.NewError(object.ForeignCallError, pos, "db.open: driver must be a string")
	}
	dsn, ok := args[1].(*object.String)
	if !ok {
		return object.NewError(object.ForeignCallError, pos, "db.open: dsn must be a string")
	}

	db, err := sql.Open(driver.Value, dsn.Value)
	if err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.open: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return object.NewError(object.ForeignCallError, pos, "db.open: ping failed: %v", err)
	}

	conn := &dbConn{db: db}
	handle := &object.NativeHandle{Kind: "db", Value: conn}
	handle.Symbols = map[string]*object.Builtin{
		"query":    {Name: "query", Fn: conn.query},
		"exec":     {Name: "exec", Fn: conn.exec},
		"begin":    {Name: "begin", Fn: conn.begin},
		"commit":   {Name: "commit", Fn: conn.commit},
		"rollback": {Name: "rollback", Fn: conn.rollback},
		"close":    {Name: "close", Fn: conn.close},
	}
	return handle
}

// bindParams converts call arguments to driver parameters. Only scalars
// cross; anything else is an explicit-conversion error per the bridge
// contract.
func bindParams(name string, pos ast.Pos, args []object.Object) ([]any, *object.ErrorObject) {
	params := make([]any, 0, len(args))
	for i, arg := range args {
		v, ok := ToNative(arg)
		if !ok {
			return nil, object.NewError(object.ForeignCallError, pos,
				"db.%s: parameter %d is %s; only scalars cross the bridge", name, i+1, object.TypeName(arg))
		}
		params = append(params, v)
	}
	return params, nil
}

func (c *dbConn) query(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) < 1 {
		return object.NewError(object.ForeignCallError, pos, "db.query expects at least 1 argument: sql")
	}
	stmt, ok := args[0].(*object.String)
	if !ok {
		return object.NewError(object.ForeignCallError, pos, "db.query: sql must be a string")
	}
	params, errObj := bindParams("query", pos, args[1:])
	if errObj != nil {
		return errObj
	}

	var rows *sql.Rows
	var err error
	if c.tx != nil {
		rows, err = c.tx.Query(stmt.Value, params...)
	} else {
		rows, err = c.db.Query(stmt.Value, params...)
	}
	if err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.query: %v", err)
	}
	defer rows.Close()
	return renderRows(rows, pos)
}

func (c *dbConn) exec(pos ast.Pos, args ...object.Object) object.Object {
	if len(args) < 1 {
		return object.NewError(object.ForeignCallError, pos, "db.exec expects at least 1 argument: sql")
	}
	stmt, ok := args[0].(*object.String)
	if !ok {
		return object.NewError(object.ForeignCallError, pos, "db.exec: sql must be a string")
	}
	params, errObj := bindParams("exec", pos, args[1:])
	if errObj != nil {
		return errObj
	}

	var result sql.Result
	var err error
	if c.tx != nil {
		result, err = c.tx.Exec(stmt.Value, params...)
	} else {
		result, err = c.db.Exec(stmt.Value, params...)
	}
	if err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.exec: %v", err)
	}

	affected, _ := result.RowsAffected()
	lastID, _ := result.LastInsertId()
	out := object.NewMap()
	out.Set("rowsAffected", &object.Integer{Value: affected})
	out.Set("lastInsertId", &object.Integer{Value: lastID})
	return out
}

func (c *dbConn) begin(pos ast.Pos, args ...object.Object) object.Object {
	if c.tx != nil {
		return object.NewError(object.ForeignCallError, pos, "db.begin: transaction already open")
	}
	tx, err := c.db.Begin()
	if err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.begin: %v", err)
	}
	c.tx = tx
	return object.NIL
}

func (c *dbConn) commit(pos ast.Pos, args ...object.Object) object.Object {
	if c.tx == nil {
		return object.NewError(object.ForeignCallError, pos, "db.commit: no open transaction")
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.commit: %v", err)
	}
	return object.NIL
}

func (c *dbConn) rollback(pos ast.Pos, args ...object.Object) object.Object {
	if c.tx == nil {
		return object.NewError(object.ForeignCallError, pos, "db.rollback: no open transaction")
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.rollback: %v", err)
	}
	return object.NIL
}

func (c *dbConn) close(pos ast.Pos, args ...object.Object) object.Object {
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
	}
	if err := c.db.Close(); err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.close: %v", err)
	}
	return object.NIL
}

// renderRows materializes a result set as an array of row objects, columns
// in declaration order.
func renderRows(rows *sql.Rows, pos ast.Pos) object.Object {
	columns, err := rows.Columns()
	if err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.query: %v", err)
	}
	result := &object.Array{Elements: []object.Object{}}
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return object.NewError(object.ForeignCallError, pos, "db.query: scan: %v", err)
		}
		row := object.NewMap()
		for i, col := range columns {
			row.Set(col, FromNative(values[i]))
		}
		result.Elements = append(result.Elements, row)
	}
	if err := rows.Err(); err != nil {
		return object.NewError(object.ForeignCallError, pos, "db.query: %v", err)
	}
	return result
}
