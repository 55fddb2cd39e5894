package store

import "github.com/zhangyongjun10/testhub-platform-sub000/pkg/config"

// DBQuery is a named SQL statement with optional per-dialect variants.
type DBQuery struct {
	ID            string
	Query         string
	PostgresQuery string
	SQLiteQuery   string
}

// GetQuery returns the statement for dbType, falling back to Query.
func (q DBQuery) GetQuery(dbType string) string {
	switch dbType {
	case config.DatabasePostgres:
		if q.PostgresQuery != "" {
			return q.PostgresQuery
		}
	case config.DatabaseSQLite:
		if q.SQLiteQuery != "" {
			return q.SQLiteQuery
		}
	}
	return q.Query
}

var (
	// QueryActiveElement loads one active element by id.
	QueryActiveElement = DBQuery{
		ID: "UIQ-ELEMENT-01",
		Query: "SELECT ID, NAME, ELEMENT_TYPE, CONFIG, USAGE_COUNT FROM UI_ELEMENT " +
			"WHERE ID = $1 AND IS_ACTIVE = TRUE",
		SQLiteQuery: "SELECT ID, NAME, ELEMENT_TYPE, CONFIG, USAGE_COUNT FROM UI_ELEMENT " +
			"WHERE ID = ? AND IS_ACTIVE = 1",
	}

	// QueryIncrementUsage bumps an element's usage counter in one statement.
	QueryIncrementUsage = DBQuery{
		ID:          "UIQ-ELEMENT-02",
		Query:       "UPDATE UI_ELEMENT SET USAGE_COUNT = USAGE_COUNT + 1 WHERE ID = $1",
		SQLiteQuery: "UPDATE UI_ELEMENT SET USAGE_COUNT = USAGE_COUNT + 1 WHERE ID = ?",
	}

	// QueryEnabledComponents lists every enabled custom component.
	QueryEnabledComponents = DBQuery{
		ID: "UIQ-COMPONENT-01",
		Query: "SELECT TYPE, NAME, STEPS, SCHEMA, DEFAULT_CONFIG FROM UI_COMPONENT " +
			"WHERE IS_ENABLED = TRUE",
		SQLiteQuery: "SELECT TYPE, NAME, STEPS, SCHEMA, DEFAULT_CONFIG FROM UI_COMPONENT " +
			"WHERE IS_ENABLED = 1",
	}
)
