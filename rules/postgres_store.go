package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const definitionColumns = `id, name, expression, premium, active, pass_message, fail_message, fail_severity, created_at, updated_at`

// PostgresDefinitionStore implements DefinitionStore backed by PostgreSQL
type PostgresDefinitionStore struct {
	db *sql.DB
}

// NewPostgresDefinitionStore creates a PostgreSQL-backed DefinitionStore
func NewPostgresDefinitionStore(db *sql.DB) *PostgresDefinitionStore {
	return &PostgresDefinitionStore{db: db}
}

// Add inserts a new definition
func (s *PostgresDefinitionStore) Add(d *Definition) error {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM expression_rules WHERE id = $1)`, d.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDefinitionExists, d.ID)
	}

	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO expression_rules (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.Name, d.Expression, d.Premium, d.Active,
		d.PassMessage, d.FailMessage, string(d.FailSeverity), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a definition by ID
func (s *PostgresDefinitionStore) Get(id string) (*Definition, error) {
	row := s.db.QueryRow(`SELECT `+definitionColumns+` FROM expression_rules WHERE id = $1`, id)

	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return d, nil
}

// List returns all definitions in creation order
func (s *PostgresDefinitionStore) List() ([]*Definition, error) {
	return s.query(`SELECT ` + definitionColumns + ` FROM expression_rules ORDER BY created_at ASC, id ASC`)
}

// ListActive returns active definitions in creation order
func (s *PostgresDefinitionStore) ListActive() ([]*Definition, error) {
	return s.query(`SELECT ` + definitionColumns + ` FROM expression_rules WHERE active = true ORDER BY created_at ASC, id ASC`)
}

func (s *PostgresDefinitionStore) query(q string) ([]*Definition, error) {
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		defs = append(defs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return defs, nil
}

// Update modifies an existing definition
func (s *PostgresDefinitionStore) Update(d *Definition) error {
	d.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE expression_rules
		SET name = $1, expression = $2, premium = $3, active = $4,
		    pass_message = $5, fail_message = $6, fail_severity = $7, updated_at = $8
		WHERE id = $9
	`, d.Name, d.Expression, d.Premium, d.Active,
		d.PassMessage, d.FailMessage, string(d.FailSeverity), d.UpdatedAt, d.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, d.ID)
	}

	return nil
}

// Delete removes a definition
func (s *PostgresDefinitionStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM expression_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrDefinitionNotFound, id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var d Definition
	var severity string
	if err := row.Scan(&d.ID, &d.Name, &d.Expression, &d.Premium, &d.Active,
		&d.PassMessage, &d.FailMessage, &severity, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.FailSeverity = Severity(severity)
	return &d, nil
}
