package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/routing"
)

//go:embed templates/nginx.conf.tmpl
var templates embed.FS

// Platform holds the host paths referenced from the generated config.
type Platform struct {
	PID  string
	Log  string
	Root string
}

// Artifact is the rendered output of one pass.
type Artifact struct {
	Config []byte
	Status []byte
}

// Renderer turns a routing table into nginx configuration text and a status document.
// Output depends only on the table and the platform.
type Renderer struct {
	platform Platform
	tmpl     *template.Template
}

func NewRenderer(platform Platform) (*Renderer, error) {
	tmpl, err := template.New("nginx.conf.tmpl").Funcs(template.FuncMap{
		"quote":   quote,
		"comment": comment,
	}).ParseFS(templates, "templates/nginx.conf.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse nginx template: %w", err)
	}
	return &Renderer{platform: platform, tmpl: tmpl}, nil
}

func (renderer *Renderer) Render(table routing.Table) (Artifact, error) {
	var config bytes.Buffer
	if err := renderer.tmpl.Execute(&config, renderer.view(table)); err != nil {
		return Artifact{}, fmt.Errorf("render nginx config: %w", err)
	}
	status, err := Status(table)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Config: config.Bytes(), Status: status}, nil
}

type configView struct {
	Tier            string
	Platform        Platform
	Settings        model.GatewaySettings
	Tenants         []tenantView
	CustomKeys      []string
	ProductKeys     []productKeyView
	Passthrough     []passthroughView
	Routes          []routeView
	WorkerProcesses string
	Tuning          tuningView
	APIKeyErrorBody string
	NotFoundBody    string
}

// tuningView holds the extra nginx table keys rendered as directives, by context.
type tuningView struct {
	Main   []directiveView
	Events []directiveView
	HTTP   []directiveView
}

type directiveView struct {
	Name  string
	Value string
}

type tenantView struct {
	Name    string
	Product string
}

type productKeyView struct {
	Key     string
	Product string
}

type passthroughView struct {
	Index   int
	Header  string
	Entries []model.APIKeyPassthrough
}

type routeView struct {
	API            string
	Upstream       string
	Active         bool
	RequiresAPIKey bool
	Servers        []serverView
	InactiveBody   string
	NoTargetsBody  string
}

type serverView struct {
	Address string
	Backup  bool
	Comment string
}

func (renderer *Renderer) view(table routing.Table) configView {
	view := configView{
		Tier:            table.Tier.Name,
		Platform:        renderer.platform,
		Settings:        table.Settings,
		CustomKeys:      table.CustomKeys,
		WorkerProcesses: "auto",
		APIKeyErrorBody: responseBody(map[string]any{"error": map[string]string{"code": "api_key_error", "description": "API key not found."}}),
		NotFoundBody:    responseBody(map[string]any{"error": map[string]string{"code": "not_found", "description": "Not found."}}),
	}

	for name, product := range table.ActiveTenants {
		view.Tenants = append(view.Tenants, tenantView{Name: name, Product: product.Name})
	}
	sort.Slice(view.Tenants, func(i, j int) bool {
		return view.Tenants[i].Name < view.Tenants[j].Name
	})

	for key, product := range table.ProductKeys {
		view.ProductKeys = append(view.ProductKeys, productKeyView{Key: key, Product: product})
	}
	sort.Slice(view.ProductKeys, func(i, j int) bool {
		return view.ProductKeys[i].Key < view.ProductKeys[j].Key
	})

	view.Passthrough = passthroughViews(table.Settings.APIKeyPassthrough)
	view.Tuning = tuning(table.Settings.Params)
	for _, directive := range view.Tuning.Main {
		if directive.Name == "worker_processes" {
			view.WorkerProcesses = directive.Value
		}
	}

	upstreams := map[string]struct{}{}
	for _, entry := range table.Entries {
		view.Routes = append(view.Routes, routeView{
			API:            entry.Route.API,
			Upstream:       uniqueUpstream(upstreamName(entry.Name()), upstreams),
			Active:         entry.Deployable.IsActive,
			RequiresAPIKey: entry.RequiresAPIKey(),
			Servers:        servers(entry.HealthyTargets),
			InactiveBody:   responseBody(map[string]string{"message": strings.TrimSpace("Service Unavailable. " + entry.Deployable.ReasonInactive)}),
			NoTargetsBody:  responseBody(map[string]string{"message": fmt.Sprintf("No targets registered for '%s'.", entry.Route.API)}),
		})
	}
	return view
}

// servers lists upstream servers by address. Draining targets become backups
// unless nothing else is left to serve.
func servers(targets []model.Target) []serverView {
	allDraining := len(targets) > 0
	for _, target := range targets {
		if !target.Draining {
			allDraining = false
			break
		}
	}

	views := make([]serverView, 0, len(targets))
	for _, target := range targets {
		views = append(views, serverView{
			Address: target.Address(),
			Backup:  target.Draining && !allDraining,
			Comment: target.Comment(),
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Address < views[j].Address
	})
	return views
}

func passthroughViews(entries []model.APIKeyPassthrough) []passthroughView {
	byHeader := map[string][]model.APIKeyPassthrough{}
	for _, entry := range entries {
		header := headerVariable(entry.KeyName)
		if header == "" || entry.KeyValue == "" {
			continue
		}
		byHeader[header] = append(byHeader[header], entry)
	}

	headers := make([]string, 0, len(byHeader))
	for header := range byHeader {
		headers = append(headers, header)
	}
	sort.Strings(headers)

	views := make([]passthroughView, 0, len(headers))
	for index, header := range headers {
		views = append(views, passthroughView{Index: index, Header: header, Entries: byHeader[header]})
	}
	return views
}

// Keys of the nginx table that are typed settings or store bookkeeping, not directives.
var reservedParams = map[string]struct{}{
	"tier_name":            {},
	"healthcheck_targets":  {},
	"healthcheck_timeout":  {},
	"healthcheck_port":     {},
	"worker_rlimit_nofile": {},
	"worker_connections":   {},
	"listen_port":          {},
	"user":                 {},
	"api_key_passthrough":  {},
}

var eventsDirectives = map[string]struct{}{
	"multi_accept":        {},
	"accept_mutex":        {},
	"accept_mutex_delay":  {},
	"use":                 {},
	"worker_aio_requests": {},
}

// tuning turns the remaining scalar keys of the nginx table into directives.
// Event keys go to the events block and worker_* keys to the main context; anything else lands in http.
func tuning(params map[string]any) tuningView {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var view tuningView
	for _, name := range names {
		if _, reserved := reservedParams[name]; reserved || !directiveName.MatchString(name) {
			continue
		}
		value, ok := directiveValue(params[name])
		if !ok {
			continue
		}
		directive := directiveView{Name: name, Value: value}
		switch _, isEvent := eventsDirectives[name]; {
		case isEvent:
			view.Events = append(view.Events, directive)
		case strings.HasPrefix(name, "worker_"):
			view.Main = append(view.Main, directive)
		default:
			view.HTTP = append(view.HTTP, directive)
		}
	}
	return view
}

func directiveValue(value any) (string, bool) {
	switch typed := value.(type) {
	case string:
		if typed == "" || strings.ContainsAny(typed, ";{}\n\r") {
			return "", false
		}
		return typed, true
	case bool:
		if typed {
			return "on", true
		}
		return "off", true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case json.Number:
		return typed.String(), true
	default:
		return "", false
	}
}

var (
	directiveName    = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	nonHeaderChars   = regexp.MustCompile(`[^a-z0-9_]`)
	nonUpstreamChars = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

func headerVariable(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	return nonHeaderChars.ReplaceAllString(strings.ReplaceAll(lower, "-", "_"), "")
}

func upstreamName(deployable string) string {
	return "upstream_" + nonUpstreamChars.ReplaceAllString(deployable, "_")
}

// uniqueUpstream suffixes name when a different deployable already sanitized to it.
func uniqueUpstream(name string, used map[string]struct{}) string {
	candidate := name
	for i := 2; ; i++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = name + "_" + strconv.Itoa(i)
	}
}

// quote returns s as a double quoted nginx string.
func quote(s string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ").Replace(s)
	return `"` + escaped + `"`
}

func comment(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

// responseBody encodes value as JSON fit for a single quoted nginx return text.
// '$' is escaped so nginx does not expand it as a variable.
func responseBody(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return "{}"
	}
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, `$`, `\\u0024`).Replace(string(raw))
}
