// Package tenants registers businesses in the master registry and
// provisions their isolated storage.
package tenants

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
)

// DefaultCountry is assumed when a profile does not name one.
const DefaultCountry = "CO"

// StatusActive is the status of every provisioned tenant.
const StatusActive = "active"

// CompanyProfile is the onboarding input.
type CompanyProfile struct {
	Name       string `json:"name"`
	NIT        string `json:"nit"`
	CheckDigit *int   `json:"dv,omitempty"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Department string `json:"department,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Normalize trims every field and applies defaults.
func (p CompanyProfile) Normalize() CompanyProfile {
	p.Name = strings.TrimSpace(p.Name)
	p.NIT = strings.TrimSpace(p.NIT)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Address = strings.TrimSpace(p.Address)
	p.City = strings.TrimSpace(p.City)
	p.Department = strings.TrimSpace(p.Department)
	p.Country = strings.ToUpper(strings.TrimSpace(p.Country))
	if p.Country == "" {
		p.Country = DefaultCountry
	}
	return p
}

// CheckRequired reports the first blank required field.
func (p CompanyProfile) CheckRequired() error {
	required := []struct {
		name, value string
	}{
		{"name", p.Name},
		{"nit", p.NIT},
		{"email", p.Email},
		{"phone", p.Phone},
		{"address", p.Address},
		{"city", p.City},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return common.Newf(common.KindValidation, "field %q is required", f.name)
		}
	}
	return nil
}

// Entry is a registry record in the master "tenants" collection.
type Entry struct {
	ID          string    `json:"_id"`
	TaxIDDigits string    `json:"tax_id_digits"`
	NIT         string    `json:"nit"`
	Name        string    `json:"name"`
	CheckDigit  int       `json:"check_digit"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Department  string    `json:"department"`
	Country     string    `json:"country"`
	TenantDB    string    `json:"tenant_db"`
	Slug        string    `json:"slug"`
	Status      string    `json:"status"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Deleted     bool      `json:"deleted"`
}

// mutable returns the fields an upsert overwrites on every onboarding.
func (e Entry) mutable() map[string]any {
	return map[string]any{
		"nit":         e.NIT,
		"name":        e.Name,
		"check_digit": e.CheckDigit,
		"email":       e.Email,
		"phone":       e.Phone,
		"address":     e.Address,
		"city":        e.City,
		"department":  e.Department,
		"country":     e.Country,
		"tenant_db":   e.TenantDB,
		"slug":        e.Slug,
		"status":      e.Status,
		"owner_id":    e.OwnerID,
		"updated_at":  e.UpdatedAt,
	}
}
