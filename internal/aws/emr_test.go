package aws

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr/types"
)

func TestRunJobFlowInput_ReleaseLabel(t *testing.T) {
	in := runJobFlowInput(LaunchRequest{
		Name:          "nightly",
		LogURI:        "s3://b/logs/",
		MasterType:    "m5.xlarge",
		WorkerType:    "m5.large",
		InstanceCount: 3,
		Release:       "emr-6.15.0",
		Tags:          map[string]string{"b": "2", "a": "1"},
	})

	if aws.ToString(in.ReleaseLabel) != "emr-6.15.0" {
		t.Errorf("ReleaseLabel = %q", aws.ToString(in.ReleaseLabel))
	}
	if in.AmiVersion != nil {
		t.Errorf("AmiVersion should be unset, got %q", aws.ToString(in.AmiVersion))
	}
	if len(in.Applications) != 1 || aws.ToString(in.Applications[0].Name) != "Hadoop" {
		t.Errorf("expected Hadoop application, got %+v", in.Applications)
	}
	if !aws.ToBool(in.Instances.KeepJobFlowAliveWhenNoSteps) {
		t.Error("cluster must stay alive between steps")
	}
	if aws.ToInt32(in.Instances.InstanceCount) != 3 {
		t.Errorf("InstanceCount = %d", aws.ToInt32(in.Instances.InstanceCount))
	}
	if in.Instances.Ec2KeyName != nil {
		t.Error("Ec2KeyName should be unset without a key pair")
	}
	if len(in.Tags) != 2 || aws.ToString(in.Tags[0].Key) != "a" {
		t.Errorf("tags should be sorted by key, got %+v", in.Tags)
	}
}

func TestRunJobFlowInput_LegacyAMI(t *testing.T) {
	in := runJobFlowInput(LaunchRequest{Release: "3.3.1", KeyPair: "lab", InstanceCount: 10})

	if aws.ToString(in.AmiVersion) != "3.3.1" {
		t.Errorf("AmiVersion = %q", aws.ToString(in.AmiVersion))
	}
	if in.ReleaseLabel != nil {
		t.Error("ReleaseLabel should be unset for AMI versions")
	}
	if aws.ToString(in.Instances.Ec2KeyName) != "lab" {
		t.Errorf("Ec2KeyName = %q", aws.ToString(in.Instances.Ec2KeyName))
	}
}

func TestStepConfig(t *testing.T) {
	cfg := stepConfig(StepRequest{
		Name:      "wordcount",
		Jar:       "s3://b/scripts/mr.jar",
		MainClass: "MapReduce",
		Args:      []string{"s3://b/input/", "s3://b/output/"},
	})

	if cfg.ActionOnFailure != types.ActionOnFailureContinue {
		t.Errorf("default ActionOnFailure = %q, want CONTINUE", cfg.ActionOnFailure)
	}
	if aws.ToString(cfg.HadoopJarStep.MainClass) != "MapReduce" {
		t.Errorf("MainClass = %q", aws.ToString(cfg.HadoopJarStep.MainClass))
	}
	if len(cfg.HadoopJarStep.Args) != 2 {
		t.Errorf("Args = %v", cfg.HadoopJarStep.Args)
	}

	cfg = stepConfig(StepRequest{Name: "x", Jar: "command-runner.jar", ActionOnFailure: "CANCEL_AND_WAIT"})
	if cfg.ActionOnFailure != types.ActionOnFailureCancelAndWait {
		t.Errorf("ActionOnFailure = %q", cfg.ActionOnFailure)
	}
	if cfg.HadoopJarStep.MainClass != nil {
		t.Error("MainClass should be unset")
	}
}
