package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
)

// EMRService implements ClusterService for Amazon EMR.
type EMRService struct {
	client *emr.Client
}

// NewEMRService creates an EMR service from an SDK config.
func NewEMRService(cfg aws.Config) *EMRService {
	return &EMRService{client: emr.NewFromConfig(cfg)}
}

// RunCluster starts a long-running cluster that waits for steps.
func (s *EMRService) RunCluster(ctx context.Context, req LaunchRequest) (string, error) {
	out, err := s.client.RunJobFlow(ctx, runJobFlowInput(req))
	if err != nil {
		return "", fmt.Errorf("creating EMR cluster: %w", err)
	}
	return aws.ToString(out.JobFlowId), nil
}

func runJobFlowInput(req LaunchRequest) *emr.RunJobFlowInput {
	keys := make([]string, 0, len(req.Tags))
	for k := range req.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var tags []types.Tag
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(req.Tags[k])})
	}

	instances := &types.JobFlowInstancesConfig{
		MasterInstanceType:          aws.String(req.MasterType),
		SlaveInstanceType:           aws.String(req.WorkerType),
		InstanceCount:               aws.Int32(int32(req.InstanceCount)),
		KeepJobFlowAliveWhenNoSteps: aws.Bool(true),
	}
	if req.KeyPair != "" {
		instances.Ec2KeyName = aws.String(req.KeyPair)
	}

	input := &emr.RunJobFlowInput{
		Name:              aws.String(req.Name),
		Instances:         instances,
		Tags:              tags,
		VisibleToAllUsers: aws.Bool(true),
	}
	if req.LogURI != "" {
		input.LogUri = aws.String(req.LogURI)
	}
	if req.JobFlowRole != "" {
		input.JobFlowRole = aws.String(req.JobFlowRole)
	}
	if req.ServiceRole != "" {
		input.ServiceRole = aws.String(req.ServiceRole)
	}

	if strings.HasPrefix(req.Release, "emr-") {
		input.ReleaseLabel = aws.String(req.Release)
		input.Applications = []types.Application{{Name: aws.String("Hadoop")}}
	} else if req.Release != "" {
		input.AmiVersion = aws.String(req.Release)
	}
	return input
}

// DescribeCluster returns the current state of a cluster.
func (s *EMRService) DescribeCluster(ctx context.Context, clusterID string) (*ClusterStatus, error) {
	out, err := s.client.DescribeCluster(ctx, &emr.DescribeClusterInput{
		ClusterId: aws.String(clusterID),
	})
	if err != nil {
		return nil, fmt.Errorf("describing EMR cluster: %w", err)
	}
	if out.Cluster == nil || out.Cluster.Status == nil {
		return nil, fmt.Errorf("describing EMR cluster %s: empty status", clusterID)
	}

	status := &ClusterStatus{
		State:     string(out.Cluster.Status.State),
		MasterDNS: aws.ToString(out.Cluster.MasterPublicDnsName),
	}
	if out.Cluster.Status.StateChangeReason != nil {
		status.Reason = aws.ToString(out.Cluster.Status.StateChangeReason.Message)
	}
	return status, nil
}

// AddStep submits one step and returns its id.
func (s *EMRService) AddStep(ctx context.Context, clusterID string, step StepRequest) (string, error) {
	out, err := s.client.AddJobFlowSteps(ctx, &emr.AddJobFlowStepsInput{
		JobFlowId: aws.String(clusterID),
		Steps:     []types.StepConfig{stepConfig(step)},
	})
	if err != nil {
		return "", fmt.Errorf("submitting EMR step: %w", err)
	}
	if len(out.StepIds) == 0 {
		return "", fmt.Errorf("submitting EMR step: no step id returned")
	}
	return out.StepIds[0], nil
}

func stepConfig(step StepRequest) types.StepConfig {
	jar := &types.HadoopJarStepConfig{
		Jar:  aws.String(step.Jar),
		Args: step.Args,
	}
	if step.MainClass != "" {
		jar.MainClass = aws.String(step.MainClass)
	}
	action := types.ActionOnFailureContinue
	if step.ActionOnFailure != "" {
		action = types.ActionOnFailure(step.ActionOnFailure)
	}
	return types.StepConfig{
		Name:            aws.String(step.Name),
		ActionOnFailure: action,
		HadoopJarStep:   jar,
	}
}

// ListSteps returns every step of a cluster, newest first.
func (s *EMRService) ListSteps(ctx context.Context, clusterID string) ([]StepSummary, error) {
	paginator := emr.NewListStepsPaginator(s.client, &emr.ListStepsInput{
		ClusterId: aws.String(clusterID),
	})

	var steps []StepSummary
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing EMR steps: %w", err)
		}
		for _, st := range page.Steps {
			summary := StepSummary{
				ID:   aws.ToString(st.Id),
				Name: aws.ToString(st.Name),
			}
			if st.Status != nil {
				summary.State = string(st.Status.State)
			}
			steps = append(steps, summary)
		}
	}
	return steps, nil
}

// TerminateCluster requests termination; it does not wait for it.
func (s *EMRService) TerminateCluster(ctx context.Context, clusterID string) error {
	_, err := s.client.TerminateJobFlows(ctx, &emr.TerminateJobFlowsInput{
		JobFlowIds: []string{clusterID},
	})
	if err != nil {
		return fmt.Errorf("terminating EMR cluster: %w", err)
	}
	return nil
}
