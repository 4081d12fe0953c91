package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// RealIdentity implements Identity using STS and IAM.
type RealIdentity struct {
	stsClient *sts.Client
	iamClient *iam.Client
}

// NewIdentity creates an identity checker from an SDK config.
func NewIdentity(cfg aws.Config) *RealIdentity {
	return &RealIdentity{
		stsClient: sts.NewFromConfig(cfg),
		iamClient: iam.NewFromConfig(cfg),
	}
}

// VerifyCredentials checks the current AWS credentials using STS.
func (c *RealIdentity) VerifyCredentials(ctx context.Context) (*CallerIdentity, error) {
	out, err := c.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("getting caller identity: %w", err)
	}

	return &CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// CheckEMRAccess checks if the caller may start clusters and add steps.
func (c *RealIdentity) CheckEMRAccess(ctx context.Context) (bool, error) {
	identity, err := c.VerifyCredentials(ctx)
	if err != nil {
		return false, err
	}

	out, err := c.iamClient.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(identity.ARN),
		ActionNames: []string{
			"elasticmapreduce:RunJobFlow",
			"elasticmapreduce:AddJobFlowSteps",
			"elasticmapreduce:TerminateJobFlows",
		},
		ResourceArns: []string{"arn:aws:elasticmapreduce:*:*:cluster/*"},
	})
	if err != nil {
		// Callers without iam:SimulatePrincipalPolicy are reported as lacking access.
		return false, nil
	}

	if len(out.EvaluationResults) == 0 {
		return false, nil
	}
	for _, result := range out.EvaluationResults {
		if result.EvalDecision != "allowed" {
			return false, nil
		}
	}
	return true, nil
}
