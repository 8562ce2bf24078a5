package awsops

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/jllopis/opsagent/pkg/ops"
)

// EC2API is the subset of the EC2 client used by EC2Inventory.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
}

// EC2Inventory implements ops.Inventory over DescribeInstances.
type EC2Inventory struct {
	client EC2API
}

// NewEC2Inventory creates an inventory.
func NewEC2Inventory(client EC2API) *EC2Inventory {
	return &EC2Inventory{client: client}
}

// Instances walks every page of DescribeInstances.
func (i *EC2Inventory) Instances(ctx context.Context) ([]ops.Instance, error) {
	var out []ops.Instance
	paginator := ec2.NewDescribeInstancesPaginator(i.client, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, reservation := range page.Reservations {
			for _, instance := range reservation.Instances {
				out = append(out, toInstance(instance))
			}
		}
	}
	return out, nil
}

func toInstance(instance types.Instance) ops.Instance {
	inst := ops.Instance{
		ID:   aws.ToString(instance.InstanceId),
		Type: string(instance.InstanceType),
	}
	if instance.State != nil {
		inst.State = string(instance.State.Name)
	}
	for _, tag := range instance.Tags {
		if aws.ToString(tag.Key) == "Name" {
			inst.Name = aws.ToString(tag.Value)
			break
		}
	}
	return inst
}
