package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type TenantModelTestSuite struct {
	suite.Suite
}

func (s *TenantModelTestSuite) TestSanitizeSlug() {
	tests := []struct {
		raw      string
		expected string
	}{
		{"Padaria Boa!", "padariaboa"},
		{"festa-do-joao", "festa-do-joao"},
		{"  Churras 2024  ", "churras2024"},
		{"ÁÉÍ", ""},
		{"!!!", ""},
		{"", ""},
		{"UPPER-lower-123", "upper-lower-123"},
	}

	for _, tt := range tests {
		s.Equal(tt.expected, SanitizeSlug(tt.raw), "raw=%q", tt.raw)
	}
}

func (s *TenantModelTestSuite) TestTenantJSONFieldNames() {
	tenant := Tenant{
		ID:         "42",
		Slug:       "padariaboa",
		Name:       "Padaria Boa",
		Email:      "dono@padaria.com",
		Plan:       PlanFree,
		GuestLimit: 20,
		Status:     TenantStatusActive,
	}

	jsonBytes, err := json.Marshal(tenant)
	s.NoError(err)

	jsonString := string(jsonBytes)
	s.Contains(jsonString, `"id":42`)
	s.Contains(jsonString, `"slug":"padariaboa"`)
	s.Contains(jsonString, `"company_name":"Padaria Boa"`)
	s.Contains(jsonString, `"guest_limit":20`)
	s.NotContains(jsonString, "password_hash")
	s.True(tenant.IsActive())
}

func (s *TenantModelTestSuite) TestTenantFromBackendPayload() {
	payload := `{"id": 7, "slug": "festa", "company_name": "Festa", "plan": "plus", "guest_limit": 50, "status": "active", "date_created": "2024-05-01T12:00:00Z"}`

	var tenant Tenant
	s.Require().NoError(json.Unmarshal([]byte(payload), &tenant))

	s.Equal(ID("7"), tenant.ID)
	s.Equal(PlanPlus, tenant.Plan)
	s.Equal(50, tenant.GuestLimit)
	s.Require().NotNil(tenant.CreatedAt)
	s.Equal(2024, tenant.CreatedAt.Year())
}

func TestTenantModelTestSuite(t *testing.T) {
	suite.Run(t, new(TenantModelTestSuite))
}

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ID
		wantErr  bool
	}{
		{"integer", `42`, "42", false},
		{"string", `"abc-123"`, "abc-123", false},
		{"null", `null`, "", false},
		{"object", `{"id": 1}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, id)
		})
	}
}

func TestIDMarshal(t *testing.T) {
	out, err := json.Marshal(struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}{A: "42", B: "0042", C: "f47ac10b-58cc"})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"a":42,"b":"0042","c":"f47ac10b-58cc"}`, string(out))
}

func TestGuestStatus(t *testing.T) {
	pending := Guest{Name: "Ana", Status: GuestPending}
	confirmed := Guest{Name: "Bia", Status: GuestConfirmed}
	other := Guest{Name: "Caio", Status: "REVIEW"}

	assert.False(t, pending.IsConfirmed())
	assert.True(t, confirmed.IsConfirmed())
	assert.False(t, other.IsConfirmed())
}

func TestSettingsDecodeGoalAmount(t *testing.T) {
	var settings VaquinhaSettings
	err := json.Unmarshal([]byte(`{"tenant_id": 3, "goal_amount": "1500.50"}`), &settings)
	assert.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1500.50").Equal(settings.GoalAmount))
	assert.Equal(t, ID("3"), settings.TenantID)
}
