package sqlbridge

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

// --------------------------------
// Execution with sqlmock
// --------------------------------

func newMockDB(t testing.TB) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestStatement_Accessors(t *testing.T) {
	st, err := NewStatement("SELECT :a, :b, :a", map[string]Value{"a": Int(1), "b": String("x")}, Postgres)
	assertNoError(t, err)

	if st.SQL() != "SELECT $1, $2, $3" || st.OriginalSQL() != "SELECT :a, :b, :a" || st.Dialect() != Postgres {
		t.Fatalf("unexpected statement %q from %q", st.SQL(), st.OriginalSQL())
	}
	assertParamsEqual(t, st.Params(), []Value{Int(1), String("x"), Int(1)})

	st.Params()[0] = Null()
	if st.Params()[0].IsNull() {
		t.Fatalf("Params() aliases the statement")
	}
	named := st.OriginalParams()
	delete(named, "a")
	if len(st.OriginalParams()) != 2 {
		t.Fatalf("OriginalParams() aliases the statement")
	}

	sqlText, args := st.Prepared()
	if sqlText != st.SQL() || len(args) != 3 {
		t.Fatalf("Prepared() = %q, %v", sqlText, args)
	}
	if _, ok := args[1].(Value); !ok {
		t.Fatalf("args are not Values: %T", args[1])
	}
	if got, want := st.String(), `SELECT $1, $2, $3 [1, "x", 1]`; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestStatement_RejectsBadNames(t *testing.T) {
	if _, err := NewStatement("SELECT :a-b", map[string]Value{"a-b": Int(1)}, MySQL); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam, got %v", err)
	}
}

func TestBuilder_QueryContext_DecodesTypedColumns(t *testing.T) {
	db, mock := newMockDB(t)

	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("INT8", int64(0)),
		mock.NewColumn("name").OfType("TEXT", ""),
		mock.NewColumn("tags").OfType("_INT4", []byte{}),
	).AddRow(int64(7), "ann", []byte("{1,2}"))
	mock.ExpectQuery("SELECT id, name, tags FROM users WHERE id = $1").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	res, err := New(Postgres).
		Write("SELECT id, name, tags FROM users WHERE id = :id").
		Bind("id", 7).
		QueryContext(context.Background(), db)
	assertNoError(t, err)

	row, ok := res.First()
	if !ok {
		t.Fatalf("no rows")
	}
	if !row["id"].Equal(Int(7)) || !row["name"].Equal(String("ann")) || !row["tags"].Equal(Array(Int(1), Int(2))) {
		t.Fatalf("row = %v", row)
	}
	if got := res.Types()["tags"]; got != "array_int" {
		t.Fatalf("tags type = %q", got)
	}
}

func TestBuilder_QueryAllContext_DuplicateColumns(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT 1, 'x' AS v, 2 AS v").
		WillReturnRows(sqlmock.NewRows([]string{"?column?", "v", "v"}).
			AddRow(int64(1), "x", int64(2)).
			AddRow(int64(3), "y", int64(4)))

	rows, err := New(Postgres).Write("SELECT 1, 'x' AS v, 2 AS v").QueryAllContext(context.Background(), db)
	assertNoError(t, err)
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	for _, col := range []string{"col_0", "v", "v_1"} {
		if _, ok := rows[1][col]; !ok {
			t.Fatalf("missing column %q in %v", col, rows[1])
		}
	}
	if !rows[1]["v_1"].Equal(Int(4)) {
		t.Fatalf("v_1 = %v", rows[1]["v_1"])
	}
}

func TestBuilder_QueryOneContext_NoRowsIsEmpty(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT v FROM t WHERE k = ?").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"v"}))

	row, err := New(MySQL).Write("SELECT v FROM t WHERE k = :k").Bind("k", "missing").QueryOneContext(context.Background(), db)
	assertNoError(t, err)
	if row == nil || len(row) != 0 {
		t.Fatalf("expected an empty row, got %#v", row)
	}
}

func TestBuilder_QueryContext_DriverError(t *testing.T) {
	db, mock := newMockDB(t)

	boom := errors.New("boom")
	mock.ExpectQuery("SELECT @P1").WithArgs(int64(1)).WillReturnError(boom)

	_, err := New(SQLServer).Write("SELECT :x").Bind("x", 1).QueryContext(context.Background(), db)
	if !errors.Is(err, boom) {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestBuilder_ExecContext_PostgresArrayArgument(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("DELETE FROM t WHERE id = ANY($1)").
		WithArgs("{1,2}").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := New(Postgres).Write("DELETE FROM t WHERE id = ANY(:ids)").Bind("ids", []int{1, 2}).ExecContext(context.Background(), db)
	assertNoError(t, err)
	if n != 2 {
		t.Fatalf("rows affected = %d", n)
	}
}

func TestStatement_ExecResultContext_LastInsertID(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO t (a, b) VALUES (?, ?)").
		WithArgs("x", int64(2)).
		WillReturnResult(sqlmock.NewResult(42, 1))

	st, err := New(MySQL).Statement("INSERT INTO t (a, b) VALUES (:a, :b)", P{"a": "x", "b": 2})
	assertNoError(t, err)
	res, err := st.ExecResultContext(context.Background(), db)
	assertNoError(t, err)

	if id, ok := res.LastInsertID(); !ok || id != 42 {
		t.Fatalf("LastInsertID() = %d, %v", id, ok)
	}
	if res.RowsAffected() != 1 || !res.IsEmpty() {
		t.Fatalf("unexpected result %v", res)
	}
}

func TestStatement_ExecResultContext_RowsAffectedError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE t SET a = $1").
		WithArgs(true).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("not supported")))

	st, err := New(Postgres).Statement("UPDATE t SET a = :a", P{"a": true})
	assertNoError(t, err)
	if _, err := st.ExecResultContext(context.Background(), db); err == nil {
		t.Fatalf("expected RowsAffected error to surface")
	}
}

func TestBridge_RawContext(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("VACUUM :not_a_param").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := New(SQLite).RawContext(context.Background(), db, "VACUUM :not_a_param")
	assertNoError(t, err)
	if n != 0 {
		t.Fatalf("rows affected = %d", n)
	}
}
