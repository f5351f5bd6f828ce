package model

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	HealthOK        = "ok"
	HealthUnchecked = "unchecked"
)

// Target is one backend instance that declared itself an API target.
type Target struct {
	InstanceID     string
	Name           string
	PrivateAddress string
	PublicAddress  string
	Port           int
	Status         string
	Deployable     string
	Version        string
	InstanceType   string
	ImageID        string
	Zone           string
	LaunchTime     time.Time
	Draining       bool
	// Health is empty until the target has been probed.
	Health  string
	Healthy bool
}

// Address returns the upstream address in host:port form.
func (target Target) Address() string {
	return net.JoinHostPort(target.PrivateAddress, strconv.Itoa(target.Port))
}

func (target Target) Comment() string {
	return fmt.Sprintf("%s [%s] [%s]", target.Name, target.InstanceType, target.Zone)
}
