package docker

const (
	// TierLabel selects the containers that belong to a tier.
	TierLabel = "tier"
	// LifecycleLabel carries an autoscaling style lifecycle state, e.g. "Terminating:Wait".
	LifecycleLabel = "lifecycle-state"
)
