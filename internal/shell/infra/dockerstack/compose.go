package dockerstack

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/compose-spec/compose-go/v2/loader"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/michaelayoade/dotmac-framework-sub020/internal/core/domain"
)

// =============================================================================
// Compose Template Handling
// =============================================================================

var (
	ErrInvalidComposeSpec = errors.New("invalid compose spec")
	ErrNoAppService       = errors.New("compose spec has no app service")
)

// RenderYAML serializes a rendered compose tree back to YAML. Used for
// logging the docker_compose deployment document and for operators who want
// to re-run the stack by hand.
func RenderYAML(rendered map[string]any) ([]byte, error) {
	out, err := yaml.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("marshal compose spec: %w", err)
	}
	return out, nil
}

// LoadProject validates a rendered compose tree with the compose-go loader
// and returns the typed project. Validation happens before any engine call
// so a malformed template never creates half a stack.
func LoadProject(ctx context.Context, ispID string, rendered map[string]any) (*composetypes.Project, error) {
	content, err := RenderYAML(rendered)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidComposeSpec, err)
	}

	project, err := loader.LoadWithContext(ctx, composetypes.ConfigDetails{
		ConfigFiles: []composetypes.ConfigFile{
			{
				Content: content,
				Config:  rendered,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("dotmac-"+domain.Slugify(ispID), false)
		opts.SkipValidation = false
		opts.SkipInterpolation = true // rendered specs carry literal values only
		// In-memory load: nothing to normalize or extend from disk
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidComposeSpec, err)
	}

	return project, nil
}

// AppService returns the single application service of a tenant project.
// The built-in templates always name it "app"; custom templates with one
// service work regardless of the name.
func AppService(project *composetypes.Project) (composetypes.ServiceConfig, error) {
	if svc, err := project.GetService("app"); err == nil {
		return svc, nil
	}
	for _, svc := range project.Services {
		return svc, nil
	}
	return composetypes.ServiceConfig{}, ErrNoAppService
}

// containerSpecFromService converts a compose service into the engine
// container spec. Secret and config environment is merged on top of the
// template's environment; caller-supplied values win.
func containerSpecFromService(svc composetypes.ServiceConfig, env map[string]string) ContainerSpec {
	spec := ContainerSpec{
		Name:          svc.ContainerName,
		Image:         svc.Image,
		Env:           make(map[string]string),
		Labels:        make(map[string]string),
		RestartPolicy: svc.Restart,
	}

	for k, v := range svc.Environment {
		if v != nil {
			spec.Env[k] = *v
		}
	}
	for k, v := range env {
		spec.Env[k] = v
	}

	for k, v := range svc.Labels {
		spec.Labels[k] = v
	}

	for name := range svc.Networks {
		spec.Networks = append(spec.Networks, name)
	}

	for _, v := range svc.Volumes {
		spec.Volumes = append(spec.Volumes, VolumeMount{
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	for _, p := range svc.Ports {
		var published int
		if p.Published != "" {
			if pub, err := strconv.Atoi(p.Published); err == nil {
				published = pub
			}
		}
		spec.Ports = append(spec.Ports, PortBinding{
			ContainerPort: int(p.Target),
			HostPort:      published,
			Protocol:      p.Protocol,
			HostIP:        p.HostIP,
		})
	}

	// Note: compose-go's NanoCPUs is misnamed - it holds the CPU count
	if svc.Deploy != nil && svc.Deploy.Resources.Limits != nil {
		limits := svc.Deploy.Resources.Limits
		spec.Resources.CPULimit = float64(limits.NanoCPUs)
		spec.Resources.MemoryLimit = int64(limits.MemoryBytes)
	}

	return spec
}
