package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/docuflow/backend/internal/storage/models"
	"github.com/docuflow/backend/internal/storage/sqlite"
)

// fakeLookup keeps employees per scope keyed by employee id.
type fakeLookup struct {
	byTenant map[int64]map[string]*models.Employee
	global   map[string]*models.Employee
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		byTenant: map[int64]map[string]*models.Employee{},
		global:   map[string]*models.Employee{},
	}
}

func (f *fakeLookup) addTenant(tenantID int64, employeeID string) *models.Employee {
	emp := &models.Employee{ID: int64(len(f.global) + 100), TenantID: &tenantID, EmployeeID: employeeID}
	if f.byTenant[tenantID] == nil {
		f.byTenant[tenantID] = map[string]*models.Employee{}
	}
	f.byTenant[tenantID][employeeID] = emp
	return emp
}

func (f *fakeLookup) addGlobal(employeeID string) *models.Employee {
	emp := &models.Employee{ID: int64(len(f.global) + 1), EmployeeID: employeeID}
	f.global[employeeID] = emp
	return emp
}

func (f *fakeLookup) FindEmployeeByTenant(tenantID int64, employeeID string) (*models.Employee, error) {
	if emp, ok := f.byTenant[tenantID][employeeID]; ok {
		return emp, nil
	}
	return nil, sqlite.ErrNotFound
}

func (f *fakeLookup) FindEmployeeGlobal(employeeID string) (*models.Employee, error) {
	if emp, ok := f.global[employeeID]; ok {
		return emp, nil
	}
	return nil, sqlite.ErrNotFound
}

func (f *fakeLookup) FindEmployeeAny(employeeID string) (*models.Employee, error) {
	for _, emps := range f.byTenant {
		if emp, ok := emps[employeeID]; ok {
			return emp, nil
		}
	}
	return f.FindEmployeeGlobal(employeeID)
}

func testResolver(lookup EmployeeLookup) *Resolver {
	return NewResolver(lookup, zap.NewNop())
}

func tenant(id int64, code string) *models.Tenant {
	return &models.Tenant{ID: id, Code: code}
}

func TestResolveExactMatch(t *testing.T) {
	lookup := newFakeLookup()
	want := lookup.addTenant(1, "42")

	got, err := testResolver(lookup).Resolve("42", tenant(1, "00000001"), "")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveTenantHintComposite(t *testing.T) {
	lookup := newFakeLookup()
	want := lookup.addTenant(1, "7_1")

	got, err := testResolver(lookup).Resolve("1", tenant(1, "00000099"), "7")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveTenantCodeComposite(t *testing.T) {
	lookup := newFakeLookup()
	want := lookup.addTenant(3, "12_9")

	// Leading zeros of the tenant code are stripped for the composite.
	got, err := testResolver(lookup).Resolve("9", tenant(3, "00000012"), "")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveLegacyPrefixes(t *testing.T) {
	lookup := newFakeLookup()
	want := lookup.addGlobal("3_55")

	got, err := testResolver(lookup).Resolve("55", tenant(1, "00000099"), "")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveLeadingZeroStrip(t *testing.T) {
	lookup := newFakeLookup()
	want := lookup.addTenant(1, "7")

	got, err := testResolver(lookup).Resolve("007", tenant(1, "00000001"), "")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveZeroPad(t *testing.T) {
	lookup := newFakeLookup()
	want := lookup.addTenant(1, "00000007")

	got, err := testResolver(lookup).Resolve("7", tenant(1, "00000099"), "")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveTenantScopeWinsOverGlobal(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addGlobal("8")
	want := lookup.addTenant(1, "8")

	got, err := testResolver(lookup).Resolve("8", tenant(1, "00000001"), "")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveFallsBackToGlobalScope(t *testing.T) {
	lookup := newFakeLookup()
	want := lookup.addGlobal("8")

	got, err := testResolver(lookup).Resolve("8", tenant(1, "00000001"), "")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveCrossTenantLastResort(t *testing.T) {
	lookup := newFakeLookup()
	want := lookup.addTenant(2, "777")

	got, err := testResolver(lookup).Resolve("777", tenant(1, "00000001"), "")
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestResolveNoCrossTenantWithoutTenant(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addTenant(2, "777")

	got, err := testResolver(lookup).Resolve("777", nil, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveMiss(t *testing.T) {
	lookup := newFakeLookup()

	got, err := testResolver(lookup).Resolve("404", tenant(1, "00000001"), "9")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveEmptyID(t *testing.T) {
	got, err := testResolver(newFakeLookup()).Resolve("", tenant(1, "00000001"), "")
	require.NoError(t, err)
	assert.Nil(t, got)
}
