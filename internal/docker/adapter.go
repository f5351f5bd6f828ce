package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/darkdragon/drift-api-router/internal/config"
	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/registry"
)

// Adapter discovers tier containers and signals the nginx container through the Docker API.
type Adapter struct {
	client *client.Client
}

var _ registry.Registry = (*Adapter)(nil)

// NewAdapter creates a Docker adapter configured from environment variables.
func NewAdapter(cfg config.DockerConfig) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	if cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(cfg.APIVersion))
	}

	dockerClient, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}

	return &Adapter{client: dockerClient}, nil
}

// ListRunningInstances returns running containers labelled for the tier, labels folded as tags.
func (adapter *Adapter) ListRunningInstances(ctx context.Context, tier model.Tier) ([]registry.Instance, error) {
	containers, err := adapter.listTier(ctx, tier)
	if err != nil {
		return nil, err
	}

	results := make([]registry.Instance, 0, len(containers))
	for _, item := range containers {
		results = append(results, convertContainer(item))
	}
	return results, nil
}

// ListTerminating reports the containers whose lifecycle label starts with "Terminating".
func (adapter *Adapter) ListTerminating(ctx context.Context, tier model.Tier, ids []string) (map[string]struct{}, error) {
	terminating := map[string]struct{}{}
	if len(ids) == 0 {
		return terminating, nil
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	containers, err := adapter.listTier(ctx, tier)
	if err != nil {
		return nil, err
	}
	for _, item := range containers {
		if _, ok := wanted[item.ID]; !ok {
			continue
		}
		if strings.HasPrefix(item.Labels[LifecycleLabel], "Terminating") {
			terminating[item.ID] = struct{}{}
		}
	}
	return terminating, nil
}

// Reload sends SIGHUP to the named nginx container.
func (adapter *Adapter) Reload(ctx context.Context, containerName string) error {
	if err := adapter.client.ContainerKill(ctx, containerName, "HUP"); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("nginx container %s not found", containerName)
		}
		return err
	}
	return nil
}

func (adapter *Adapter) Close() error {
	return adapter.client.Close()
}

func (adapter *Adapter) listTier(ctx context.Context, tier model.Tier) ([]types.Container, error) {
	args := filters.NewArgs(filters.Arg("label", TierLabel+"="+tier.Name))
	containers, err := adapter.client.ContainerList(ctx, container.ListOptions{All: false, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers for tier %s: %w", tier.Name, err)
	}
	return containers, nil
}

func convertContainer(item types.Container) registry.Instance {
	tags := make(map[string]string, len(item.Labels)+1)
	for key, value := range item.Labels {
		tags[key] = value
	}
	if _, ok := tags["Name"]; !ok && len(item.Names) > 0 {
		tags["Name"] = strings.TrimPrefix(item.Names[0], "/")
	}

	return registry.Instance{
		ID:             item.ID,
		Tags:           tags,
		PrivateAddress: containerAddress(item),
		InstanceType:   "container",
		ImageID:        item.ImageID,
		Zone:           item.Labels[TierLabel],
		LaunchTime:     time.Unix(item.Created, 0).UTC(),
		LifecycleState: item.State,
	}
}

// containerAddress picks the IP of the first network by name so the choice is stable.
func containerAddress(item types.Container) string {
	if item.NetworkSettings == nil {
		return ""
	}
	names := make([]string, 0, len(item.NetworkSettings.Networks))
	for name := range item.NetworkSettings.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		endpoint := item.NetworkSettings.Networks[name]
		if endpoint != nil && endpoint.IPAddress != "" {
			return endpoint.IPAddress
		}
	}
	return ""
}
