// Package profile holds founder and provider profiles, the role partition derived from
// their identifiers, and display-name resolution.
package profile

import (
	"errors"
	"strings"
)

// Role identifies which side of the market a profile belongs to.
type Role int

const (
	// RoleUnknown marks an identifier that matches neither configured prefix.
	RoleUnknown Role = iota
	// RoleFounder marks a startup founder looking for help.
	RoleFounder
	// RoleProvider marks a service provider or mentor.
	RoleProvider
)

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleFounder:
		return "founder"
	case RoleProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// Default identifier prefixes.
const (
	DefaultFounderPrefix  = "F"
	DefaultProviderPrefix = "S"
)

// ErrAmbiguousPrefixes is returned when one prefix would classify the other's identifiers.
var ErrAmbiguousPrefixes = errors.New("founder and provider prefixes must be non-empty and must not overlap")

// Prefixes is the identifier convention that decides a profile's role.
type Prefixes struct {
	Founder  string
	Provider string
}

// DefaultPrefixes returns the F/S convention.
func DefaultPrefixes() Prefixes {
	return Prefixes{Founder: DefaultFounderPrefix, Provider: DefaultProviderPrefix}
}

// Validate rejects empty prefixes and prefixes where one starts with the other.
func (p Prefixes) Validate() error {
	if p.Founder == "" || p.Provider == "" {
		return ErrAmbiguousPrefixes
	}
	if strings.HasPrefix(p.Founder, p.Provider) || strings.HasPrefix(p.Provider, p.Founder) {
		return ErrAmbiguousPrefixes
	}
	return nil
}

// RoleOf classifies an identifier. This is the only place role is derived from the id.
func (p Prefixes) RoleOf(id string) Role {
	switch {
	case p.Founder != "" && strings.HasPrefix(id, p.Founder):
		return RoleFounder
	case p.Provider != "" && strings.HasPrefix(id, p.Provider):
		return RoleProvider
	default:
		return RoleUnknown
	}
}

// Profile is one entity's attributes. Role is fixed at ingestion.
// Fields that do not apply to the role are left empty.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"-"`

	// Founder attributes
	Industry        string `json:"industry,omitempty"`
	TechRequirement string `json:"tech_requirement,omitempty"`
	ProjectNeed     string `json:"project_need,omitempty"`
	ProjectDeadline string `json:"project_deadline,omitempty"`
	StartupStage    string `json:"startup_stage,omitempty"`

	// Provider attributes
	IndustryPreference   string `json:"industry_preference,omitempty"`
	CoreSkill            string `json:"core_skill,omitempty"`
	PreferredProjectType string `json:"preferred_project_type,omitempty"`
	Availability         string `json:"availability,omitempty"`
	ExpertiseArea        string `json:"expertise_area,omitempty"`
}

// MarketIndustry returns the industry a profile is filed under: the founder's startup
// industry or the provider's preferred industry.
func (p Profile) MarketIndustry() string {
	if p.Role == RoleProvider {
		return p.IndustryPreference
	}
	return p.Industry
}

// Partition holds the two role populations in input order.
type Partition struct {
	Founders  []Profile
	Providers []Profile
	// All holds every distinct profile with its role assigned, including skipped ones.
	All []Profile
	// Skipped lists identifiers whose role could not be determined.
	Skipped []string
	// Duplicates lists repeated identifiers, once per extra occurrence.
	Duplicates []string
}

// Split assigns each profile its role and separates the populations, keeping input order.
// Profiles whose identifier matches neither prefix are reported in Skipped. When an
// identifier appears more than once the first profile wins and later ones are reported
// in Duplicates.
func Split(profiles []Profile, prefixes Prefixes) Partition {
	var part Partition
	seen := make(map[string]struct{}, len(profiles))
	for _, p := range profiles {
		if _, dup := seen[p.ID]; dup {
			part.Duplicates = append(part.Duplicates, p.ID)
			continue
		}
		seen[p.ID] = struct{}{}

		p.Role = prefixes.RoleOf(p.ID)
		part.All = append(part.All, p)
		switch p.Role {
		case RoleFounder:
			part.Founders = append(part.Founders, p)
		case RoleProvider:
			part.Providers = append(part.Providers, p)
		default:
			part.Skipped = append(part.Skipped, p.ID)
		}
	}
	return part
}
