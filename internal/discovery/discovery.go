package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/registry"
)

const (
	TagStatus  = "api-status"
	TagTarget  = "api-target"
	TagPort    = "api-port"
	TagName    = "Name"
	TagVersion = "drift:manifest:version"
)

var (
	ErrPartialTags       = errors.New("must define all api tags, not just some")
	ErrBadPort           = errors.New("bogus api-port tag")
	ErrUnknownDeployable = errors.New("no deployable defined for api-target")
)

// onlineStatuses are the api-status values that put an instance in rotation.
var onlineStatuses = map[string]struct{}{
	"online":  {},
	"online2": {},
}

// Discoverer turns raw tier instances into validated targets.
type Discoverer struct {
	log *slog.Logger
}

func NewDiscoverer(logger *slog.Logger) *Discoverer {
	return &Discoverer{log: logger}
}

// apiTags is the validated api tag set of one instance.
type apiTags struct {
	name    string
	status  string
	target  string
	port    int
	version string
}

// Discover maps deployable name to its targets and returns the exclusions worth a warning.
// Instances without any api tag and instances taken out of rotation are skipped quietly.
func (discoverer *Discoverer) Discover(instances []registry.Instance, terminating map[string]struct{}, deployables []model.Deployable) (map[string][]model.Target, []error) {
	errs := []error{}
	targets := map[string][]model.Target{}

	known := make(map[string]struct{}, len(deployables))
	for _, deployable := range deployables {
		known[deployable.Name] = struct{}{}
	}

	sorted := make([]registry.Instance, len(instances))
	copy(sorted, instances)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	for _, instance := range sorted {
		tags, declared, err := parseTags(instance)
		if !declared {
			discoverer.log.Debug("instance not configured as api-target", "instance", instance.ID, "name", instance.Tags[TagName])
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if _, ok := known[tags.target]; !ok {
			errs = append(errs, fmt.Errorf("instance %s[%s]: %w '%s'", tags.name, shortID(instance.ID), ErrUnknownDeployable, tags.target))
			continue
		}

		if _, ok := onlineStatuses[tags.status]; !ok {
			discoverer.log.Info("instance not in rotation", "instance", shortID(instance.ID), "name", tags.name, "api_status", tags.status)
			continue
		}

		_, draining := terminating[instance.ID]
		if draining {
			discoverer.log.Info("instance terminating; draining connections", "instance", shortID(instance.ID), "name", tags.name)
		}

		targets[tags.target] = append(targets[tags.target], model.Target{
			InstanceID:     instance.ID,
			Name:           tags.name,
			PrivateAddress: instance.PrivateAddress,
			PublicAddress:  instance.PublicAddress,
			Port:           tags.port,
			Status:         tags.status,
			Deployable:     tags.target,
			Version:        tags.version,
			InstanceType:   instance.InstanceType,
			ImageID:        instance.ImageID,
			Zone:           instance.Zone,
			LaunchTime:     instance.LaunchTime,
			Draining:       draining,
		})
	}

	return targets, errs
}

// parseTags validates the api tags of an instance. declared is false when none of
// the required tags are present.
func parseTags(instance registry.Instance) (apiTags, bool, error) {
	status := strings.TrimSpace(instance.Tags[TagStatus])
	target := strings.TrimSpace(instance.Tags[TagTarget])
	port := strings.TrimSpace(instance.Tags[TagPort])
	name := strings.TrimSpace(instance.Tags[TagName])

	present := 0
	for _, value := range []string{status, target, port} {
		if value != "" {
			present++
		}
	}
	if present == 0 {
		return apiTags{}, false, nil
	}
	if present < 3 {
		return apiTags{}, true, fmt.Errorf("instance %s[%s]: %w: %s", name, shortID(instance.ID), ErrPartialTags, formatTags(instance.Tags))
	}

	parsedPort, err := strconv.Atoi(port)
	if err != nil || parsedPort <= 0 || parsedPort > 65535 || strings.ContainsAny(port, "+-") {
		return apiTags{}, true, fmt.Errorf("instance %s[%s]: %w: %s", name, shortID(instance.ID), ErrBadPort, port)
	}

	return apiTags{
		name:    name,
		status:  status,
		target:  target,
		port:    parsedPort,
		version: strings.TrimSpace(instance.Tags[TagVersion]),
	}, true, nil
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+tags[key])
	}
	return strings.Join(parts, ",")
}
