package registry

import (
	"context"
	"errors"
	"time"

	"github.com/darkdragon/drift-api-router/internal/model"
)

// ErrMissingRegion is returned when a tier declares no cloud region to discover in.
var ErrMissingRegion = errors.New("registry: 'aws' section missing from tier configuration")

// Instance is one running compute instance and its raw tags.
type Instance struct {
	ID             string
	Tags           map[string]string
	PrivateAddress string
	PublicAddress  string
	InstanceType   string
	ImageID        string
	Zone           string
	LaunchTime     time.Time
	LifecycleState string
}

// Registry discovers running instances for a tier.
type Registry interface {
	// ListRunningInstances returns running instances tagged for the tier.
	ListRunningInstances(ctx context.Context, tier model.Tier) ([]Instance, error)
	// ListTerminating returns the subset of ids in a terminating lifecycle transition.
	ListTerminating(ctx context.Context, tier model.Tier, ids []string) (map[string]struct{}, error)
}

// FoldTags turns key/value tag pairs into a map. Later keys win.
func FoldTags[T any](tags []T, key func(T) string, value func(T) string) map[string]string {
	folded := make(map[string]string, len(tags))
	for _, tag := range tags {
		folded[key(tag)] = value(tag)
	}
	return folded
}
