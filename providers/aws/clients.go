// Package aws implements the ResourceProvider adapters for AWS services
// using aws-sdk-go-v2. Each adapter owns one resource type and translates
// raw SDK errors into the Outcome taxonomy exactly once, at the boundary.
package aws

import (
	"context"
	"fmt"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/yairfalse/raivaus/providers"
)

// EC2API is the slice of the EC2 client the adapters use.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
	RevokeSecurityGroupIngress(ctx context.Context, params *ec2.RevokeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error)
	RevokeSecurityGroupEgress(ctx context.Context, params *ec2.RevokeSecurityGroupEgressInput, optFns ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupEgressOutput, error)
	DescribeNetworkInterfaces(ctx context.Context, params *ec2.DescribeNetworkInterfacesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeNetworkInterfacesOutput, error)
	DescribeAddresses(ctx context.Context, params *ec2.DescribeAddressesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAddressesOutput, error)
	ReleaseAddress(ctx context.Context, params *ec2.ReleaseAddressInput, optFns ...func(*ec2.Options)) (*ec2.ReleaseAddressOutput, error)
}

// RDSAPI is the slice of the RDS client the adapters use.
type RDSAPI interface {
	DescribeDBInstances(ctx context.Context, params *rds.DescribeDBInstancesInput, optFns ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error)
	DeleteDBInstance(ctx context.Context, params *rds.DeleteDBInstanceInput, optFns ...func(*rds.Options)) (*rds.DeleteDBInstanceOutput, error)
	DescribeDBClusters(ctx context.Context, params *rds.DescribeDBClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error)
	DeleteDBCluster(ctx context.Context, params *rds.DeleteDBClusterInput, optFns ...func(*rds.Options)) (*rds.DeleteDBClusterOutput, error)
	DescribeDBClusterSnapshots(ctx context.Context, params *rds.DescribeDBClusterSnapshotsInput, optFns ...func(*rds.Options)) (*rds.DescribeDBClusterSnapshotsOutput, error)
	DeleteDBClusterSnapshot(ctx context.Context, params *rds.DeleteDBClusterSnapshotInput, optFns ...func(*rds.Options)) (*rds.DeleteDBClusterSnapshotOutput, error)
}

// Route53API is the slice of the Route 53 client the adapters use.
type Route53API interface {
	ListHostedZones(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
	DeleteHostedZone(ctx context.Context, params *route53.DeleteHostedZoneInput, optFns ...func(*route53.Options)) (*route53.DeleteHostedZoneOutput, error)
}

// SQSAPI is the slice of the SQS client the adapters use.
type SQSAPI interface {
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	DeleteQueue(ctx context.Context, params *sqs.DeleteQueueInput, optFns ...func(*sqs.Options)) (*sqs.DeleteQueueOutput, error)
}

// DynamoDBAPI is the slice of the DynamoDB client the adapters use.
type DynamoDBAPI interface {
	ListTables(ctx context.Context, params *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

// LogsAPI is the slice of the CloudWatch Logs client the adapters use.
type LogsAPI interface {
	DescribeLogGroups(ctx context.Context, params *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	DeleteLogGroup(ctx context.Context, params *cloudwatchlogs.DeleteLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DeleteLogGroupOutput, error)
}

// ECRAPI is the slice of the ECR client the adapters use.
type ECRAPI interface {
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DeleteRepository(ctx context.Context, params *ecr.DeleteRepositoryInput, optFns ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error)
}

// ECSAPI is the slice of the ECS client the adapters use.
type ECSAPI interface {
	ListClusters(ctx context.Context, params *ecs.ListClustersInput, optFns ...func(*ecs.Options)) (*ecs.ListClustersOutput, error)
	DescribeClusters(ctx context.Context, params *ecs.DescribeClustersInput, optFns ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error)
	DeleteCluster(ctx context.Context, params *ecs.DeleteClusterInput, optFns ...func(*ecs.Options)) (*ecs.DeleteClusterOutput, error)
	ListServices(ctx context.Context, params *ecs.ListServicesInput, optFns ...func(*ecs.Options)) (*ecs.ListServicesOutput, error)
	DescribeServices(ctx context.Context, params *ecs.DescribeServicesInput, optFns ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
	UpdateService(ctx context.Context, params *ecs.UpdateServiceInput, optFns ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error)
	DeleteService(ctx context.Context, params *ecs.DeleteServiceInput, optFns ...func(*ecs.Options)) (*ecs.DeleteServiceOutput, error)
}

// RedshiftAPI is the slice of the Redshift client the adapters use.
type RedshiftAPI interface {
	DescribeClusters(ctx context.Context, params *redshift.DescribeClustersInput, optFns ...func(*redshift.Options)) (*redshift.DescribeClustersOutput, error)
	DeleteCluster(ctx context.Context, params *redshift.DeleteClusterInput, optFns ...func(*redshift.Options)) (*redshift.DeleteClusterOutput, error)
	DescribeClusterSnapshots(ctx context.Context, params *redshift.DescribeClusterSnapshotsInput, optFns ...func(*redshift.Options)) (*redshift.DescribeClusterSnapshotsOutput, error)
	DeleteClusterSnapshot(ctx context.Context, params *redshift.DeleteClusterSnapshotInput, optFns ...func(*redshift.Options)) (*redshift.DeleteClusterSnapshotOutput, error)
}

// MemoryDBAPI is the slice of the MemoryDB client the adapters use.
type MemoryDBAPI interface {
	DescribeClusters(ctx context.Context, params *memorydb.DescribeClustersInput, optFns ...func(*memorydb.Options)) (*memorydb.DescribeClustersOutput, error)
	DeleteCluster(ctx context.Context, params *memorydb.DeleteClusterInput, optFns ...func(*memorydb.Options)) (*memorydb.DeleteClusterOutput, error)
}

// KMSAPI is the slice of the KMS client the adapters use.
type KMSAPI interface {
	ListKeys(ctx context.Context, params *kms.ListKeysInput, optFns ...func(*kms.Options)) (*kms.ListKeysOutput, error)
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	ScheduleKeyDeletion(ctx context.Context, params *kms.ScheduleKeyDeletionInput, optFns ...func(*kms.Options)) (*kms.ScheduleKeyDeletionOutput, error)
}

// CloudTrailAPI is the slice of the CloudTrail client the adapters use.
type CloudTrailAPI interface {
	DescribeTrails(ctx context.Context, params *cloudtrail.DescribeTrailsInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.DescribeTrailsOutput, error)
	DeleteTrail(ctx context.Context, params *cloudtrail.DeleteTrailInput, optFns ...func(*cloudtrail.Options)) (*cloudtrail.DeleteTrailOutput, error)
}

// IAMAPI is the slice of the IAM client the adapters use.
type IAMAPI interface {
	ListRoles(ctx context.Context, params *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error)
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	ListRolePolicies(ctx context.Context, params *iam.ListRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
	DeleteRolePolicy(ctx context.Context, params *iam.DeleteRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error)
	DeleteRole(ctx context.Context, params *iam.DeleteRoleInput, optFns ...func(*iam.Options)) (*iam.DeleteRoleOutput, error)
}

// AutoScalingAPI is the slice of the Auto Scaling client the inspector uses.
type AutoScalingAPI interface {
	DescribeAutoScalingInstances(ctx context.Context, params *autoscaling.DescribeAutoScalingInstancesInput, optFns ...func(*autoscaling.Options)) (*autoscaling.DescribeAutoScalingInstancesOutput, error)
}

// EKSAPI is the slice of the EKS client the inspector uses.
type EKSAPI interface {
	DescribeCluster(ctx context.Context, params *eks.DescribeClusterInput, optFns ...func(*eks.Options)) (*eks.DescribeClusterOutput, error)
}

// ELBv2API is the slice of the ELBv2 client the inspector uses.
type ELBv2API interface {
	DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancingv2.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error)
}

// LambdaAPI is the slice of the Lambda client the inspector uses.
type LambdaAPI interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
}

// Clients bundles the service clients for one (account, region).
type Clients struct {
	EC2         EC2API
	RDS         RDSAPI
	Route53     Route53API
	SQS         SQSAPI
	DynamoDB    DynamoDBAPI
	Logs        LogsAPI
	ECR         ECRAPI
	ECS         ECSAPI
	Redshift    RedshiftAPI
	MemoryDB    MemoryDBAPI
	KMS         KMSAPI
	CloudTrail  CloudTrailAPI
	IAM         IAMAPI
	AutoScaling AutoScalingAPI
	EKS         EKSAPI
	ELBv2       ELBv2API
	Lambda      LambdaAPI
}

// DialFunc builds the client bundle for one (account, region). Accounts
// map to shared-config profiles.
type DialFunc func(ctx context.Context, account, region string) (*Clients, error)

// NewClients builds a real SDK client bundle. The account is resolved as a
// shared-config profile name.
func NewClients(ctx context.Context, account, region string) (*Clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithSharedConfigProfile(account),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for %s/%s: %w", account, region, err)
	}

	return &Clients{
		EC2:         ec2.NewFromConfig(cfg),
		RDS:         rds.NewFromConfig(cfg),
		Route53:     route53.NewFromConfig(cfg),
		SQS:         sqs.NewFromConfig(cfg),
		DynamoDB:    dynamodb.NewFromConfig(cfg),
		Logs:        cloudwatchlogs.NewFromConfig(cfg),
		ECR:         ecr.NewFromConfig(cfg),
		ECS:         ecs.NewFromConfig(cfg),
		Redshift:    redshift.NewFromConfig(cfg),
		MemoryDB:    memorydb.NewFromConfig(cfg),
		KMS:         kms.NewFromConfig(cfg),
		CloudTrail:  cloudtrail.NewFromConfig(cfg),
		IAM:         iam.NewFromConfig(cfg),
		AutoScaling: autoscaling.NewFromConfig(cfg),
		EKS:         eks.NewFromConfig(cfg),
		ELBv2:       elasticloadbalancingv2.NewFromConfig(cfg),
		Lambda:      lambda.NewFromConfig(cfg),
	}, nil
}

// ClientPool caches client bundles per (account, region) task.
type ClientPool struct {
	mu    sync.Mutex
	dial  DialFunc
	cache map[string]*Clients
}

// NewClientPool creates a pool. A nil dial uses NewClients.
func NewClientPool(dial DialFunc) *ClientPool {
	if dial == nil {
		dial = NewClients
	}
	return &ClientPool{
		dial:  dial,
		cache: make(map[string]*Clients),
	}
}

// Get returns the client bundle for a task, dialing on first use.
func (p *ClientPool) Get(ctx context.Context, account, region string) (*Clients, error) {
	key := account + "/" + region
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.cache[key]; ok {
		return c, nil
	}
	c, err := p.dial(ctx, account, region)
	if err != nil {
		return nil, err
	}
	p.cache[key] = c
	return c, nil
}

// NewRegistry wires every AWS adapter into a provider registry backed by
// one client pool. homeRegion pins global services (IAM, Route 53) to a
// single task so they are not listed once per region.
func NewRegistry(pool *ClientPool, homeRegion string) *providers.Registry {
	registry := providers.NewRegistry()

	registry.Register(NewInstanceProvider(pool))
	registry.Register(NewSecurityGroupProvider(pool))
	registry.Register(NewAddressProvider(pool))
	registry.Register(NewDBInstanceProvider(pool))
	registry.Register(NewDBClusterProvider(pool))
	registry.Register(NewDBClusterSnapshotProvider(pool))
	registry.Register(NewRecordSetProvider(pool, homeRegion))
	registry.Register(NewHostedZoneProvider(pool, homeRegion))
	registry.Register(NewQueueProvider(pool))
	registry.Register(NewTableProvider(pool))
	registry.Register(NewLogGroupProvider(pool))
	registry.Register(NewRepositoryProvider(pool))
	registry.Register(NewECSServiceProvider(pool))
	registry.Register(NewECSClusterProvider(pool))
	registry.Register(NewRedshiftClusterProvider(pool))
	registry.Register(NewRedshiftSnapshotProvider(pool))
	registry.Register(NewMemoryDBClusterProvider(pool))
	registry.Register(NewKeyProvider(pool))
	registry.Register(NewTrailProvider(pool))
	registry.Register(NewRoleProvider(pool, homeRegion))

	return registry
}
