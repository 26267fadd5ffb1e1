package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/pkg/logger"
)

func (c *Client) ListActiveTenants() ([]models.Tenant, error) {
	rows, err := c.db.Query(`SELECT id, code, name, is_active, created_at FROM tenants WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		var active int
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		t.IsActive = active != 0
		t.CreatedAt = time.Unix(createdAt, 0)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// GetOrCreateTenant returns the tenant for an archive folder code,
// creating it on first sight.
func (c *Client) GetOrCreateTenant(code string) (*models.Tenant, error) {
	tenant, err := c.getTenantByCode(code)
	if err == nil {
		return tenant, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	name := fmt.Sprintf("Mandant %s", code)
	res, err := c.db.Exec(
		`INSERT INTO tenants (code, name, is_active, created_at) VALUES (?, ?, 1, ?)`,
		code, name, time.Now().Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent worker.
			return c.getTenantByCode(code)
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant id: %w", err)
	}

	logger.Info("New tenant created", zap.String("code", code))
	return &models.Tenant{ID: id, Code: code, Name: name, IsActive: true, CreatedAt: time.Now()}, nil
}

func (c *Client) getTenantByCode(code string) (*models.Tenant, error) {
	var t models.Tenant
	var active int
	var createdAt int64
	err := c.db.QueryRow(
		`SELECT id, code, name, is_active, created_at FROM tenants WHERE code = ?`, code,
	).Scan(&t.ID, &t.Code, &t.Name, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t.IsActive = active != 0
	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

func (c *Client) CreateEmployee(emp *models.Employee) error {
	res, err := c.db.Exec(
		`INSERT INTO employees (tenant_id, employee_id, first_name, last_name, email, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		emp.TenantID, emp.EmployeeID, emp.FirstName, emp.LastName, emp.Email, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create employee: %w", err)
	}
	emp.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read employee id: %w", err)
	}
	return nil
}

// FindEmployeeByTenant looks up an active employee by primary id
// within one tenant.
func (c *Client) FindEmployeeByTenant(tenantID int64, employeeID string) (*models.Employee, error) {
	return c.findEmployee(
		`SELECT id, tenant_id, employee_id, first_name, last_name, email FROM employees
		 WHERE tenant_id = ? AND employee_id = ? AND is_active = 1 LIMIT 1`,
		tenantID, employeeID,
	)
}

// FindEmployeeGlobal looks up an active employee among legacy records
// without a tenant.
func (c *Client) FindEmployeeGlobal(employeeID string) (*models.Employee, error) {
	return c.findEmployee(
		`SELECT id, tenant_id, employee_id, first_name, last_name, email FROM employees
		 WHERE tenant_id IS NULL AND employee_id = ? AND is_active = 1 LIMIT 1`,
		employeeID,
	)
}

// FindEmployeeAny looks up an active employee across all tenants;
// last-resort scope of the identity fallback chain.
func (c *Client) FindEmployeeAny(employeeID string) (*models.Employee, error) {
	return c.findEmployee(
		`SELECT id, tenant_id, employee_id, first_name, last_name, email FROM employees
		 WHERE employee_id = ? AND is_active = 1 ORDER BY id LIMIT 1`,
		employeeID,
	)
}

func (c *Client) findEmployee(query string, args ...interface{}) (*models.Employee, error) {
	var e models.Employee
	var tenantID sql.NullInt64
	err := c.db.QueryRow(query, args...).Scan(
		&e.ID, &tenantID, &e.EmployeeID, &e.FirstName, &e.LastName, &e.Email,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}
	if tenantID.Valid {
		e.TenantID = &tenantID.Int64
	}
	e.IsActive = true
	return &e, nil
}
