package render

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/routing"
)

// StatusDocument is the machine readable summary served under /api-router/.
type StatusDocument struct {
	Tier        string             `json:"tier"`
	Deployables []DeployableStatus `json:"deployables"`
	Products    []ProductStatus    `json:"products"`
}

type DeployableStatus struct {
	Name            string           `json:"name"`
	API             string           `json:"api"`
	RequiresAPIKey  bool             `json:"requires_api_key"`
	IsActive        bool             `json:"is_active"`
	ReasonInactive  string           `json:"reason_inactive,omitempty"`
	UpstreamServers []UpstreamStatus `json:"upstream_servers"`
}

type UpstreamStatus struct {
	Address  string `json:"address"`
	Status   string `json:"status"`
	Health   string `json:"health"`
	Version  string `json:"version,omitempty"`
	Draining bool   `json:"draining,omitempty"`
}

type ProductStatus struct {
	ProductName      string             `json:"product_name"`
	OrganizationName string             `json:"organization_name"`
	State            string             `json:"state"`
	Deployables      []string           `json:"deployables"`
	Tenants          []string           `json:"tenants"`
	APIKeyRules      []model.APIKeyRule `json:"api_key_rules,omitempty"`
}

// Status renders the status document for table.
func Status(table routing.Table) ([]byte, error) {
	document := StatusDocument{
		Tier:        table.Tier.Name,
		Deployables: make([]DeployableStatus, 0, len(table.Entries)),
		Products:    make([]ProductStatus, 0, len(table.Products)),
	}

	for _, entry := range table.Entries {
		service := DeployableStatus{
			Name:            entry.Name(),
			API:             entry.Route.API,
			RequiresAPIKey:  entry.RequiresAPIKey(),
			IsActive:        entry.Deployable.IsActive,
			UpstreamServers: make([]UpstreamStatus, 0, len(entry.Targets)),
		}
		if !service.IsActive {
			service.ReasonInactive = entry.Deployable.ReasonInactive
		}
		for _, target := range entry.Targets {
			service.UpstreamServers = append(service.UpstreamServers, UpstreamStatus{
				Address:  target.Address(),
				Status:   target.Status,
				Health:   target.Health,
				Version:  target.Version,
				Draining: target.Draining,
			})
		}
		sort.SliceStable(service.UpstreamServers, func(i, j int) bool {
			return service.UpstreamServers[i].Address < service.UpstreamServers[j].Address
		})
		document.Deployables = append(document.Deployables, service)
	}

	for _, product := range table.Products {
		document.Products = append(document.Products, ProductStatus{
			ProductName:      product.Name,
			OrganizationName: product.OrganizationName,
			State:            product.State,
			Deployables:      nonNil(product.Deployables),
			Tenants:          nonNil(product.Tenants),
			APIKeyRules:      table.Rules[product.Name],
		})
	}

	raw, err := json.MarshalIndent(document, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("render status: %w", err)
	}
	return append(raw, '\n'), nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
