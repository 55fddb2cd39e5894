package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/component"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/config"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/core"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/flow"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
)

// SQLStore reads elements and components from the UI_ELEMENT and
// UI_COMPONENT tables. JSON columns (CONFIG, STEPS, SCHEMA, DEFAULT_CONFIG) hold
// text or bytes.
type SQLStore struct {
	db     *sql.DB
	dbType string
}

// OpenSQL opens a database of dbType (postgres or sqlite).
func OpenSQL(dbType, dsn string) (*SQLStore, error) {
	var driverName string
	switch dbType {
	case config.DatabasePostgres:
		driverName = "postgres"
	case config.DatabaseSQLite:
		driverName = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dbType)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dbType, err)
	}
	return NewSQLStore(db, dbType), nil
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, dbType string) *SQLStore {
	return &SQLStore{db: db, dbType: dbType}
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ActiveElement implements selector.ElementRepository.
func (s *SQLStore) ActiveElement(ctx context.Context, id int64) (*core.Element, error) {
	rows, err := s.query(ctx, QueryActiveElement, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]

	el := &core.Element{
		ID:         id,
		Name:       asString(row["name"]),
		Type:       asString(row["element_type"]),
		Active:     true,
		UsageCount: int(asInt64(row["usage_count"])),
	}
	if err := decodeJSONColumn(row["config"], &el.Config); err != nil {
		return nil, fmt.Errorf("element %d config: %w", id, err)
	}
	return el, nil
}

// IncrementUsage implements selector.ElementRepository.
func (s *SQLStore) IncrementUsage(ctx context.Context, id int64) error {
	_, err := s.execute(ctx, QueryIncrementUsage, id)
	return err
}

// ListEnabled implements component.Repository. Rows with undecodable JSON
// are skipped with a warning.
func (s *SQLStore) ListEnabled(ctx context.Context) (map[string]component.Definition, error) {
	rows, err := s.query(ctx, QueryEnabledComponents)
	if err != nil {
		return nil, err
	}

	defs := make(map[string]component.Definition, len(rows))
	for _, row := range rows {
		def := component.Definition{
			Type:    asString(row["type"]),
			Name:    asString(row["name"]),
			Enabled: true,
		}
		var rawSteps []interface{}
		if err := decodeJSONColumn(row["steps"], &rawSteps); err != nil {
			logger.Warn("component %s: invalid steps: %v", def.Type, err)
			continue
		}
		steps, err := flow.ToSteps(rawSteps)
		if err != nil {
			logger.Warn("component %s: %v", def.Type, err)
			continue
		}
		def.Steps = steps
		if err := decodeJSONColumn(row["schema"], &def.Schema); err != nil {
			logger.Warn("component %s: invalid schema: %v", def.Type, err)
			continue
		}
		if err := decodeJSONColumn(row["default_config"], &def.DefaultConfig); err != nil {
			logger.Warn("component %s: invalid default_config: %v", def.Type, err)
			continue
		}
		defs[def.Type] = def
	}
	return defs, nil
}

// query runs a statement that returns rows, one map per row with lower-case
// column names.
func (s *SQLStore) query(ctx context.Context, q DBQuery, args ...interface{}) ([]map[string]interface{}, error) {
	logger.Debug("executing query %s", q.ID)

	rows, err := s.db.QueryContext(ctx, q.GetQuery(s.dbType), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", q.ID, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logger.Error("error closing rows: %v", closeErr)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		row := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			result[strings.ToLower(col)] = row[i]
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// execute runs a statement without rows and returns the rows affected.
func (s *SQLStore) execute(ctx context.Context, q DBQuery, args ...interface{}) (int64, error) {
	logger.Debug("executing query %s", q.ID)

	res, err := s.db.ExecContext(ctx, q.GetQuery(s.dbType), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", q.ID, err)
	}
	return res.RowsAffected()
}

// decodeJSONColumn decodes a text or bytes column. NULL and empty values
// leave target untouched.
func decodeJSONColumn(v interface{}, target interface{}) error {
	var data []byte
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		data = t
	case string:
		data = []byte(t)
	default:
		return fmt.Errorf("unexpected column type %T", v)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
