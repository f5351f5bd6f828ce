package ec2

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/autoscaling"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/darkdragon/drift-api-router/internal/model"
	"github.com/darkdragon/drift-api-router/internal/registry"
)

// describeBatch is the instance id limit of DescribeAutoScalingInstances.
const describeBatch = 50

// Registry lists tier instances through the EC2 and Auto Scaling APIs.
type Registry struct {
	sess *session.Session

	mu      sync.Mutex
	clients map[string]*regionClients
}

type regionClients struct {
	ec2         *ec2.EC2
	autoscaling *autoscaling.AutoScaling
}

var _ registry.Registry = (*Registry)(nil)

// New creates a registry from the shared AWS config chain.
func New() (*Registry, error) {
	sess, err := session.NewSessionWithOptions(session.Options{SharedConfigState: session.SharedConfigEnable})
	if err != nil {
		return nil, fmt.Errorf("create AWS session: %w", err)
	}
	return &Registry{sess: sess, clients: map[string]*regionClients{}}, nil
}

func (r *Registry) ListRunningInstances(ctx context.Context, tier model.Tier) ([]registry.Instance, error) {
	clients, err := r.regionClients(tier)
	if err != nil {
		return nil, err
	}

	input := &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{Name: aws.String("instance-state-name"), Values: []*string{aws.String("running")}},
			{Name: aws.String("tag:tier"), Values: []*string{aws.String(tier.Name)}},
		},
	}

	instances := []registry.Instance{}
	pageFunc := func(page *ec2.DescribeInstancesOutput, _ bool) bool {
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				instances = append(instances, convertInstance(inst))
			}
		}
		return true
	}
	if err := clients.ec2.DescribeInstancesPagesWithContext(ctx, input, pageFunc); err != nil {
		return nil, fmt.Errorf("describe instances for tier %s: %w", tier.Name, err)
	}
	return instances, nil
}

func (r *Registry) ListTerminating(ctx context.Context, tier model.Tier, ids []string) (map[string]struct{}, error) {
	terminating := map[string]struct{}{}
	if len(ids) == 0 {
		return terminating, nil
	}
	clients, err := r.regionClients(tier)
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(ids); start += describeBatch {
		end := min(start+describeBatch, len(ids))
		output, err := clients.autoscaling.DescribeAutoScalingInstancesWithContext(ctx, &autoscaling.DescribeAutoScalingInstancesInput{
			InstanceIds: aws.StringSlice(ids[start:end]),
		})
		if err != nil {
			return nil, fmt.Errorf("describe auto scaling instances: %w", err)
		}
		for _, item := range output.AutoScalingInstances {
			if strings.HasPrefix(aws.StringValue(item.LifecycleState), "Terminating") {
				terminating[aws.StringValue(item.InstanceId)] = struct{}{}
			}
		}
	}
	return terminating, nil
}

func (r *Registry) regionClients(tier model.Tier) (*regionClients, error) {
	if tier.AWS == nil || strings.TrimSpace(tier.AWS.Region) == "" {
		return nil, fmt.Errorf("tier %s: %w", tier.Name, registry.ErrMissingRegion)
	}
	region := tier.AWS.Region

	r.mu.Lock()
	defer r.mu.Unlock()
	if clients, ok := r.clients[region]; ok {
		return clients, nil
	}
	cfg := aws.NewConfig().WithRegion(region)
	clients := &regionClients{
		ec2:         ec2.New(r.sess, cfg),
		autoscaling: autoscaling.New(r.sess, cfg),
	}
	r.clients[region] = clients
	return clients, nil
}

func convertInstance(inst *ec2.Instance) registry.Instance {
	instance := registry.Instance{
		ID:             aws.StringValue(inst.InstanceId),
		Tags:           registry.FoldTags(inst.Tags, tagKey, tagValue),
		PrivateAddress: aws.StringValue(inst.PrivateIpAddress),
		PublicAddress:  aws.StringValue(inst.PublicIpAddress),
		InstanceType:   aws.StringValue(inst.InstanceType),
		ImageID:        aws.StringValue(inst.ImageId),
		LaunchTime:     aws.TimeValue(inst.LaunchTime),
	}
	if inst.Placement != nil {
		instance.Zone = aws.StringValue(inst.Placement.AvailabilityZone)
	}
	if inst.State != nil {
		instance.LifecycleState = aws.StringValue(inst.State.Name)
	}
	return instance
}

func tagKey(tag *ec2.Tag) string   { return aws.StringValue(tag.Key) }
func tagValue(tag *ec2.Tag) string { return aws.StringValue(tag.Value) }
