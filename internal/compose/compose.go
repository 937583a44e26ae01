// Package compose parses a docker-compose YAML document and orders its
// services so dependents start after their depends_on entries. The
// yaml.v3 dependency is grounded on inbra-image's go.mod (the only pack
// repo that declares it), decoded into small, purpose-built types rather
// than a generic map[string]interface{}.
package compose

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// Service is one service entry of a compose file.
type Service struct {
	Image      string            `yaml:"image"`
	Build      string            `yaml:"build"`
	Command    []string          `yaml:"command"`
	Entrypoint []string          `yaml:"entrypoint"`
	Environment map[string]string `yaml:"environment"`
	Ports      []string          `yaml:"ports"`
	Volumes    []string          `yaml:"volumes"`
	DependsOn  []string          `yaml:"depends_on"`
	Networks   []string          `yaml:"networks"`
}

// Project is a parsed compose file: a name plus its named services.
type Project struct {
	Name     string             `yaml:"name"`
	Services map[string]Service `yaml:"services"`
}

// Parse decodes YAML compose document text into a Project.
func Parse(data []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, err, "failed parsing compose file")
	}
	if len(p.Services) == 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "compose file declares no services")
	}
	for name, svc := range p.Services {
		if svc.Image == "" && svc.Build == "" {
			return nil, apperr.Newf(apperr.CodeInvalidArgument, "service %q must set image or build", name)
		}
	}
	return &p, nil
}

// StartOrder returns service names ordered so every service appears after
// all of its depends_on entries (Kahn's algorithm), or an error if
// depends_on references an undeclared service or forms a cycle.
func (p *Project) StartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(p.Services))
	dependents := make(map[string][]string, len(p.Services))

	for name := range p.Services {
		inDegree[name] = 0
	}
	for name, svc := range p.Services {
		for _, dep := range svc.DependsOn {
			if _, ok := p.Services[dep]; !ok {
				return nil, apperr.Newf(apperr.CodeInvalidArgument, "service %q depends_on undeclared service %q", name, dep)
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sortStrings(queue)

	var order []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		order = append(order, next)

		var freed []string
		for _, dependent := range dependents[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		sortStrings(freed)
		queue = append(queue, freed...)
	}

	if len(order) != len(p.Services) {
		return nil, apperr.New(apperr.CodeInvalidArgument, fmt.Sprintf("compose file has a depends_on cycle among %d unresolved services", len(p.Services)-len(order)))
	}
	return order, nil
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}
