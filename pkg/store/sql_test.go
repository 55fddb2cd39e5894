package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/config"
)

func newMockStore(t *testing.T, dbType string) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create mock database: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return NewSQLStore(db, dbType), mock
}

func TestDBQuery_GetQuery(t *testing.T) {
	tests := []struct {
		dbType string
		want   string
	}{
		{config.DatabasePostgres, QueryIncrementUsage.Query},
		{config.DatabaseSQLite, QueryIncrementUsage.SQLiteQuery},
		{"other", QueryIncrementUsage.Query},
	}
	for _, tt := range tests {
		if got := QueryIncrementUsage.GetQuery(tt.dbType); got != tt.want {
			t.Errorf("GetQuery(%s) = %q, want %q", tt.dbType, got, tt.want)
		}
	}
	q := DBQuery{ID: "x", Query: "A", PostgresQuery: "B"}
	if q.GetQuery(config.DatabasePostgres) != "B" || q.GetQuery(config.DatabaseSQLite) != "A" {
		t.Error("dialect override not applied")
	}
}

func TestSQLStore_ActiveElement(t *testing.T) {
	s, mock := newMockStore(t, config.DatabasePostgres)
	columns := []string{"ID", "NAME", "ELEMENT_TYPE", "CONFIG", "USAGE_COUNT"}

	mock.ExpectQuery(QueryActiveElement.Query).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(3), "ok", "pos", []byte(`{"x": 10, "y": 20}`), int64(4)))

	el, err := s.ActiveElement(context.Background(), 3)
	if err != nil {
		t.Fatalf("ActiveElement: %v", err)
	}
	if el == nil || el.Name != "ok" || el.Type != "pos" || el.UsageCount != 4 || !el.Active {
		t.Fatalf("unexpected element %+v", el)
	}
	if el.Config["x"] != 10.0 {
		t.Errorf("unexpected config %v", el.Config)
	}
}

func TestSQLStore_ActiveElementMissing(t *testing.T) {
	s, mock := newMockStore(t, config.DatabaseSQLite)
	mock.ExpectQuery(QueryActiveElement.SQLiteQuery).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"ID"}))

	el, err := s.ActiveElement(context.Background(), 9)
	if err != nil || el != nil {
		t.Errorf("ActiveElement(9) = %v, %v, want nil, nil", el, err)
	}
}

func TestSQLStore_ActiveElementErrors(t *testing.T) {
	s, mock := newMockStore(t, config.DatabasePostgres)
	mock.ExpectQuery(QueryActiveElement.Query).
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(QueryActiveElement.Query).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"NAME", "CONFIG"}).AddRow("bad", "{not json"))

	if _, err := s.ActiveElement(context.Background(), 1); err == nil {
		t.Error("expected query error")
	}
	if _, err := s.ActiveElement(context.Background(), 2); err == nil {
		t.Error("expected config decode error")
	}
}

func TestSQLStore_IncrementUsage(t *testing.T) {
	s, mock := newMockStore(t, config.DatabaseSQLite)
	mock.ExpectExec(QueryIncrementUsage.SQLiteQuery).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(QueryIncrementUsage.SQLiteQuery).
		WithArgs(int64(6)).
		WillReturnError(errors.New("locked"))

	if err := s.IncrementUsage(context.Background(), 5); err != nil {
		t.Errorf("IncrementUsage: %v", err)
	}
	if err := s.IncrementUsage(context.Background(), 6); err == nil {
		t.Error("expected error")
	}
}

func TestSQLStore_ListEnabled(t *testing.T) {
	s, mock := newMockStore(t, config.DatabasePostgres)
	rows := sqlmock.NewRows([]string{"TYPE", "NAME", "STEPS", "SCHEMA", "DEFAULT_CONFIG"}).
		AddRow("login", "Login", `[{"type":"click","selector":"1,1","selector_type":"pos"}]`,
			[]byte(`{"user":{"type":"string"}}`), `{"user":"guest"}`).
		AddRow("empty", "Empty", nil, nil, nil).
		AddRow("broken", "Broken", `{"type":"click"}`, nil, nil).
		AddRow("badschema", "Bad schema", nil, `[1,2]`, nil)
	mock.ExpectQuery(QueryEnabledComponents.Query).WillReturnRows(rows)

	defs, err := s.ListEnabled(context.Background())
	if err != nil {
		t.Fatalf("ListEnabled: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d: %v", len(defs), defs)
	}
	login := defs["login"]
	if len(login.Steps) != 1 || login.Steps[0].RawType() != "click" || login.DefaultConfig["user"] != "guest" {
		t.Errorf("unexpected login definition %+v", login)
	}
	if field, _ := login.Schema["user"].(map[string]interface{}); field["type"] != "string" {
		t.Errorf("expected schema to be decoded, got %v", login.Schema)
	}
	if _, ok := defs["badschema"]; ok {
		t.Error("definition with a non-object schema should be skipped")
	}
	if _, ok := defs["broken"]; ok {
		t.Error("definition with non-list steps should be skipped")
	}
	if empty := defs["empty"]; len(empty.Steps) != 0 || !empty.Enabled {
		t.Errorf("unexpected empty definition %+v", empty)
	}
}

func TestOpenSQL_UnsupportedDriver(t *testing.T) {
	if _, err := OpenSQL("mysql", "dsn"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestOpenSQL_SQLite(t *testing.T) {
	s, err := OpenSQL(config.DatabaseSQLite, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	defer s.Close()
	// Every pooled connection would get its own in-memory database.
	s.db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE UI_ELEMENT (
		ID INTEGER PRIMARY KEY, NAME TEXT, ELEMENT_TYPE TEXT, CONFIG TEXT,
		IS_ACTIVE INTEGER, USAGE_COUNT INTEGER)`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO UI_ELEMENT VALUES (1, 'tap', 'pos', '{"x":1,"y":2}', 1, 0)`); err != nil {
		t.Fatal(err)
	}

	if err := s.IncrementUsage(ctx, 1); err != nil {
		t.Fatal(err)
	}
	el, err := s.ActiveElement(ctx, 1)
	if err != nil || el == nil {
		t.Fatalf("ActiveElement = %v, %v", el, err)
	}
	if el.UsageCount != 1 || el.Config["y"] != 2.0 {
		t.Errorf("unexpected element %+v", el)
	}
}
