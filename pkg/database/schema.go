package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator provides database schema validation functionality
// ARCHITECTURAL DISCOVERY: Separate validation component enables testing
// and deployment verification without coupling to migration system
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every structural check, then probes that the id and
// foreign key constraints are enforced.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	if err := v.ValidateIndexes(); err != nil {
		return err
	}
	return v.ValidateConstraints()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"projects":          "Project directory",
		"project_members":   "Project membership",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.tableExists(table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies table column structure matches expectations
// TECHNICAL DISCOVERY: Column validation ensures type compatibility between
// Go structs and database schema
func (v *SchemaValidator) ValidateTableStructure() error {
	projectColumns := map[string]string{
		"id":         "TEXT",
		"name":       "TEXT",
		"created_at": "DATETIME",
	}
	if err := v.validateColumns("projects", projectColumns); err != nil {
		return fmt.Errorf("projects table structure invalid: %w", err)
	}

	memberColumns := map[string]string{
		"project_id": "TEXT",
		"user_id":    "TEXT",
		"added_at":   "DATETIME",
	}
	if err := v.validateColumns("project_members", memberColumns); err != nil {
		return fmt.Errorf("project_members table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that lookup indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_project_members_user": "Projects for a user",
		"idx_projects_created_at":  "Recent project listing",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.indexExists(index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies that database constraints are properly enforced
// ARCHITECTURAL DISCOVERY: Constraint validation ensures data integrity rules
// are enforced at the database level
func (v *SchemaValidator) ValidateConstraints() error {
	// membership rows must reference an existing project
	_, err := v.db.Exec(`INSERT INTO project_members (project_id, user_id) VALUES ('ffffffffffffffffffffffff', 'probe')`)
	if err == nil {
		_, _ = v.db.Exec(`DELETE FROM project_members WHERE project_id = 'ffffffffffffffffffffffff'`)
		return fmt.Errorf("foreign key constraint not enforced: project_members.project_id")
	}

	// project ids must be object ids
	_, err = v.db.Exec(`INSERT INTO projects (id, name) VALUES ('short', 'probe')`)
	if err == nil {
		_, _ = v.db.Exec(`DELETE FROM projects WHERE id = 'short'`)
		return fmt.Errorf("check constraint not enforced: projects.id length")
	}

	return nil
}

func (v *SchemaValidator) tableExists(tableName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		tableName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) indexExists(indexName string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?",
		indexName,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
