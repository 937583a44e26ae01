// Package dockerfile turns Dockerfile text into an ordered instruction
// list the build pipeline can execute against a composed rootfs: a
// moby/buildkit/frontend/dockerfile/parser walk over parserResult.AST.Children,
// following the linked-list Next traversal per instruction into a single
// flat Spec the image builder executes in instruction order.
package dockerfile

import (
	"io"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"github.com/furukawa-project/furukawad/internal/apperr"
)

// Instruction is one executable build step, in source order.
type Instruction struct {
	Kind string // "run", "copy", "add", "workdir", "user", "expose", "volume"
	Args []string
}

// Spec is a fully parsed Dockerfile: the base image plus every instruction
// that follows FROM, in the order the builder must apply them.
type Spec struct {
	From         string
	Cmd          []string
	Entrypoint   []string
	Env          map[string]string
	Labels       map[string]string
	Instructions []Instruction
}

// Parse reads Dockerfile text from r and returns its Spec.
func Parse(r io.Reader) (*Spec, error) {
	result, err := parser.Parse(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, err, "failed parsing Dockerfile")
	}

	spec := &Spec{Env: map[string]string{}, Labels: map[string]string{}}

	for _, child := range result.AST.Children {
		values := collectValues(child)
		switch child.Value {
		case "from":
			if len(values) == 0 {
				return nil, apperr.New(apperr.CodeInvalidArgument, "FROM requires a base image")
			}
			spec.From = values[0]
		case "run":
			if len(values) > 0 {
				spec.Instructions = append(spec.Instructions, Instruction{Kind: "run", Args: []string{strings.Join(values, " ")}})
			}
		case "cmd":
			spec.Cmd = values
		case "entrypoint":
			spec.Entrypoint = values
		case "env":
			if len(values)%2 != 0 {
				return nil, apperr.New(apperr.CodeInvalidArgument, "ENV requires name/value pairs")
			}
			for i := 0; i < len(values); i += 2 {
				spec.Env[values[i]] = values[i+1]
			}
		case "label":
			if len(values)%2 != 0 {
				return nil, apperr.New(apperr.CodeInvalidArgument, "LABEL requires key/value pairs")
			}
			for i := 0; i < len(values); i += 2 {
				spec.Labels[values[i]] = values[i+1]
			}
		case "workdir", "user":
			if len(values) != 1 {
				return nil, apperr.Newf(apperr.CodeInvalidArgument, "%s requires exactly one value", strings.ToUpper(child.Value))
			}
			spec.Instructions = append(spec.Instructions, Instruction{Kind: child.Value, Args: values})
		case "copy", "add":
			if len(values) != 2 {
				return nil, apperr.Newf(apperr.CodeInvalidArgument, "%s requires source and target", strings.ToUpper(child.Value))
			}
			spec.Instructions = append(spec.Instructions, Instruction{Kind: child.Value, Args: values})
		case "expose", "volume":
			spec.Instructions = append(spec.Instructions, Instruction{Kind: child.Value, Args: values})
		case "maintainer", "onbuild", "healthcheck", "stopsignal", "shell", "arg":
			// not meaningful to furukawad's rootfs-level build; silently skipped.
		}
	}

	if spec.From == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "Dockerfile has no FROM instruction")
	}
	return spec, nil
}

func collectValues(node *parser.Node) []string {
	var values []string
	for current := node.Next; current != nil; current = current.Next {
		values = append(values, current.Value)
	}
	return values
}
