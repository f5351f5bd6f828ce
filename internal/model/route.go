package model

import "strings"

// Tier describes a deployment environment as recorded in the tiers table.
type Tier struct {
	Name   string       `json:"tier_name"`
	Domain string       `json:"domain,omitempty"`
	AWS    *AWSSettings `json:"aws,omitempty"`
}

// AWSSettings is the cloud section of a tier.
type AWSSettings struct {
	Region string `json:"region"`
}

// Deployable is a logical backend service within a tier.
type Deployable struct {
	Name           string `json:"deployable_name"`
	Tier           string `json:"tier_name"`
	IsActive       bool   `json:"is_active"`
	ReasonInactive string `json:"reason_inactive,omitempty"`
}

// Route binds a deployable to a public API path prefix.
type Route struct {
	Tier           string `json:"tier_name"`
	DeployableName string `json:"deployable_name"`
	API            string `json:"api,omitempty"`
	RequiresAPIKey bool   `json:"requires_api_key"`
}

// Prefix returns the API prefix, falling back to the deployable name.
func (route Route) Prefix() string {
	api := strings.Trim(strings.TrimSpace(route.API), "/")
	if api == "" {
		return route.DeployableName
	}
	return api
}
