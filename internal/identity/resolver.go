package identity

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/internal/storage/sqlite"
)

// EmployeeLookup is the tenant-scoped storage surface the resolver
// needs. Satisfied by *sqlite.Client.
type EmployeeLookup interface {
	FindEmployeeByTenant(tenantID int64, employeeID string) (*models.Employee, error)
	FindEmployeeGlobal(employeeID string) (*models.Employee, error)
	FindEmployeeAny(employeeID string) (*models.Employee, error)
}

// Resolver maps a raw subject token from a decoded code to a
// canonical employee record. The candidate chain reflects real
// historical ID formats and must stay in this exact order for
// compatibility with existing archives.
type Resolver struct {
	lookup EmployeeLookup
	log    *zap.Logger
}

func NewResolver(lookup EmployeeLookup, log *zap.Logger) *Resolver {
	return &Resolver{lookup: lookup, log: log}
}

// legacyTenantPrefixes covers archives written before the tenant hint
// existed in the code payload.
var legacyTenantPrefixes = []string{"1", "2", "3", "4", "5"}

// Resolve walks the fallback chain through three scopes: the given
// tenant, tenant-less legacy records, and (when a tenant was given)
// all tenants. The first hit short-circuits; a full miss is (nil, nil).
func (r *Resolver) Resolve(rawID string, tenant *models.Tenant, tenantHint string) (*models.Employee, error) {
	if rawID == "" {
		return nil, nil
	}

	candidates := r.candidates(rawID, tenant, tenantHint)

	if tenant != nil {
		emp, err := r.search(candidates, func(id string) (*models.Employee, error) {
			return r.lookup.FindEmployeeByTenant(tenant.ID, id)
		})
		if emp != nil || err != nil {
			return emp, err
		}
	}

	emp, err := r.search(candidates, r.lookup.FindEmployeeGlobal)
	if emp != nil || err != nil {
		return emp, err
	}

	if tenant != nil {
		emp, err = r.search(candidates, r.lookup.FindEmployeeAny)
		if emp != nil || err != nil {
			return emp, err
		}
	}

	r.log.Debug("Subject id unresolved",
		zap.String("raw_id", rawID),
		zap.String("tenant_hint", tenantHint),
	)
	return nil, nil
}

// candidates builds the ordered ID variants to try within each scope:
// exact, hint composite, tenant-code composite, legacy prefixes, and
// numeric zero-strip/zero-pad forms.
func (r *Resolver) candidates(rawID string, tenant *models.Tenant, tenantHint string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	add(rawID)

	if tenantHint != "" {
		add(fmt.Sprintf("%s_%s", tenantHint, rawID))
	}

	if tenant != nil && tenant.Code != "" {
		code := strings.TrimLeft(tenant.Code, "0")
		if code == "" {
			code = "1"
		}
		add(fmt.Sprintf("%s_%s", code, rawID))
	}

	for _, prefix := range legacyTenantPrefixes {
		add(fmt.Sprintf("%s_%s", prefix, rawID))
	}

	if isNumeric(rawID) {
		add(strings.TrimLeft(rawID, "0"))
		add(zeroPad(rawID, 8))
	}

	return out
}

func (r *Resolver) search(candidates []string, find func(string) (*models.Employee, error)) (*models.Employee, error) {
	for _, id := range candidates {
		emp, err := find(id)
		if err != nil {
			if errors.Is(err, sqlite.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to look up employee %q: %w", id, err)
		}
		return emp, nil
	}
	return nil, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
