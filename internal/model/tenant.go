package model

const (
	StateActive = "active"

	KeyTypeProduct = "product"
	KeyTypeCustom  = "custom"

	RuleTypePass     = "pass"
	RuleTypeReject   = "reject"
	RuleTypeRedirect = "redirect"

	MatchTypeExact   = "exact"
	MatchTypePartial = "partial"
)

// Tenant is a customer instance running on a tier.
type Tenant struct {
	Name  string `json:"tenant_name"`
	Tier  string `json:"tier_name"`
	State string `json:"state"`
}

// TenantName is the master record tying a tenant name to its product.
type TenantName struct {
	TenantName  string `json:"tenant_name"`
	ProductName string `json:"product_name"`
	Tier        string `json:"tier_name,omitempty"`
}

// Product groups tenants and the deployables they are entitled to.
type Product struct {
	Name             string   `json:"product_name"`
	OrganizationName string   `json:"organization_name"`
	State            string   `json:"state"`
	Deployables      []string `json:"deployables"`
	// Tenants is computed from tenant-names and never read from the store.
	Tenants []string `json:"-"`
}

// APIKey is a product wide or custom credential.
type APIKey struct {
	Name        string `json:"api_key_name"`
	ProductName string `json:"product_name,omitempty"`
	KeyType     string `json:"key_type"`
	InUse       bool   `json:"in_use"`
	CustomData  string `json:"custom_data,omitempty"`
	CreateDate  string `json:"create_date,omitempty"`
}

// APIKeyRule is an ordered pass, reject or redirect rule bound to a product.
type APIKeyRule struct {
	ProductName     string            `json:"product_name"`
	RuleName        string            `json:"rule_name"`
	AssignmentOrder int               `json:"assignment_order"`
	IsActive        bool              `json:"is_active"`
	MatchType       string            `json:"match_type,omitempty"`
	VersionPatterns []string          `json:"version_patterns"`
	RuleType        string            `json:"rule_type"`
	StatusCode      int               `json:"status_code,omitempty"`
	ResponseBody    map[string]any    `json:"response_body,omitempty"`
	ResponseHeader  map[string]string `json:"response_header,omitempty"`
	TenantName      string            `json:"tenant_name,omitempty"`
}
