package cluster

import (
	"fmt"
	"path"
	"strings"

	"github.com/emrpipe/emrpipe/internal/aws"
)

// StepKind selects how a step is executed on the cluster.
type StepKind string

const (
	KindScript    StepKind = "script"
	KindStreaming StepKind = "streaming"
	KindJar       StepKind = "jar"
)

// StepSpec describes one unit of work independently of the cluster API.
//
// The meaning of ResourceURIs and Args depends on Kind:
//
//	script:    ResourceURIs[0] is the executable; Args are passed to it.
//	streaming: ResourceURIs is [mapper] or [mapper, reducer]; Args are the
//	           input locations followed by the output location.
//	jar:       ResourceURIs[0] is the archive; Args are passed to MainClass.
type StepSpec struct {
	Kind            StepKind
	Name            string
	ResourceURIs    []string
	Args            []string
	MainClass       string
	ActionOnFailure string
}

// ScriptStep runs a single remote executable.
func ScriptStep(name, script string, args ...string) StepSpec {
	return StepSpec{Kind: KindScript, Name: name, ResourceURIs: []string{script}, Args: args}
}

// StreamingStep runs a streaming map/reduce job. An empty or "NONE"
// reducer produces a map-only job.
func StreamingStep(name, mapper, reducer, input, output string) StepSpec {
	res := []string{mapper}
	if reducer != "" {
		res = append(res, reducer)
	}
	return StepSpec{Kind: KindStreaming, Name: name, ResourceURIs: res, Args: []string{input, output}}
}

// JarStep runs mainClass from a remote archive against input and output.
func JarStep(name, jar, mainClass, input, output string) StepSpec {
	return StepSpec{
		Kind:         KindJar,
		Name:         name,
		ResourceURIs: []string{jar},
		MainClass:    mainClass,
		Args:         []string{input, output},
	}
}

// ScriptRunnerJar returns the regional jar that executes script steps.
func ScriptRunnerJar(region string) string {
	return fmt.Sprintf("s3://%s.elasticmapreduce/libs/script-runner/script-runner.jar", region)
}

const (
	commandRunnerJar   = "command-runner.jar"
	amiStreamingJar    = "/home/hadoop/contrib/streaming/hadoop-streaming.jar"
	releaseLabelPrefix = "emr-"
)

// LegacyAMI reports whether release names an AMI version rather than an
// emr-x.y.z release label. Empty means the service default label.
func LegacyAMI(release string) bool {
	return release != "" && !strings.HasPrefix(release, releaseLabelPrefix)
}

// request converts the spec into the cluster service's step request for
// a cluster started with release.
func (s StepSpec) request(region, release string) (aws.StepRequest, error) {
	req := aws.StepRequest{Name: s.Name, ActionOnFailure: s.ActionOnFailure}
	if req.Name == "" {
		req.Name = string(s.Kind)
	}
	if len(s.ResourceURIs) == 0 || s.ResourceURIs[0] == "" {
		return req, fmt.Errorf("%w: %s step %q has no resource", ErrInvalidStep, s.Kind, s.Name)
	}

	switch s.Kind {
	case KindScript:
		if region == "" {
			return req, fmt.Errorf("%w: script step needs a region", ErrInvalidStep)
		}
		req.Jar = ScriptRunnerJar(region)
		req.Args = append([]string{s.ResourceURIs[0]}, s.Args...)
	case KindStreaming:
		args, err := streamingArgs(s)
		if err != nil {
			return req, err
		}
		if LegacyAMI(release) {
			req.Jar = amiStreamingJar
			req.Args = args[1:]
		} else {
			req.Jar = commandRunnerJar
			req.Args = args
		}
	case KindJar:
		req.Jar = s.ResourceURIs[0]
		req.MainClass = s.MainClass
		req.Args = append([]string(nil), s.Args...)
	default:
		return req, fmt.Errorf("%w: unknown step kind %q", ErrInvalidStep, s.Kind)
	}
	return req, nil
}

func streamingArgs(s StepSpec) ([]string, error) {
	if len(s.Args) < 2 {
		return nil, fmt.Errorf("%w: streaming step %q needs input and output", ErrInvalidStep, s.Name)
	}

	var files []string
	mapper := attach(&files, s.ResourceURIs[0])
	reducer := ""
	if len(s.ResourceURIs) > 1 {
		reducer = s.ResourceURIs[1]
	}
	mapOnly := reducer == "" || strings.EqualFold(reducer, "NONE")
	if !mapOnly {
		reducer = attach(&files, reducer)
	}

	args := []string{"hadoop-streaming"}
	if len(files) > 0 {
		args = append(args, "-files", strings.Join(files, ","))
	}
	args = append(args, "-mapper", mapper)
	if mapOnly {
		args = append(args, "-numReduceTasks", "0")
	} else {
		args = append(args, "-reducer", reducer)
	}
	inputs, output := s.Args[:len(s.Args)-1], s.Args[len(s.Args)-1]
	for _, in := range inputs {
		args = append(args, "-input", in)
	}
	return append(args, "-output", output), nil
}

// attach records path-like values as step attachments and returns the
// name the task sees in its working directory. Commands with arguments
// and builtin names are returned unchanged.
func attach(files *[]string, v string) string {
	if strings.ContainsAny(v, " \t") || !strings.Contains(v, "/") {
		return v
	}
	*files = append(*files, v)
	return path.Base(v)
}
