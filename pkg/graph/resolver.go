// Package graph turns a node's templated configuration into plain data.
// It is the single place where the graph becomes data: every downstream
// component consumes already-resolved values, never raw templates.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/orchardhq/orchard/pkg/protocol"
)

// Reference token grammar. Tokens are exact string spans scanned over the
// typed configuration tree, not a general expression language.
const (
	tokenOpen  = "={{"
	tokenClose = "}}"
	kindRef    = "ref:"
	kindVar    = "var:"
)

// Context supplies the data references resolve against: prior node outputs
// keyed by node id, and a variable lookup restricted to the execution's
// project.
type Context struct {
	Outputs   map[string]any
	Variables protocol.VariableResolver
	ProjectID string
}

// ReferenceResolutionError fails the node that carried the offending token,
// never the whole process.
type ReferenceResolutionError struct {
	Token string
	Err   error
}

func (e *ReferenceResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve reference %q: %v", e.Token, e.Err)
	}

	return fmt.Sprintf("cannot resolve reference %q", e.Token)
}

func (e *ReferenceResolutionError) Unwrap() error {
	return e.Err
}

// Resolve walks a configuration value and replaces every ={{ref:<nodeId>}}
// and ={{var:<variableId>}} token. A string that is exactly one token
// resolves to the referenced value with its type preserved; tokens embedded
// in a longer string are interpolated as text. Values without tokens are
// returned unchanged. Pure transform, no side effects.
func Resolve(ctx context.Context, value any, rctx *Context) (any, error) {
	switch typed := value.(type) {
	case string:
		return resolveString(ctx, typed, rctx)
	case map[string]any:
		resolved := make(map[string]any, len(typed))

		for key, item := range typed {
			resolvedItem, err := Resolve(ctx, item, rctx)
			if err != nil {
				return nil, err
			}

			resolved[key] = resolvedItem
		}

		return resolved, nil
	case []any:
		resolved := make([]any, len(typed))

		for i, item := range typed {
			resolvedItem, err := Resolve(ctx, item, rctx)
			if err != nil {
				return nil, err
			}

			resolved[i] = resolvedItem
		}

		return resolved, nil
	default:
		return value, nil
	}
}

// ResolveConfig resolves a whole node configuration object.
func ResolveConfig(ctx context.Context, config map[string]any, rctx *Context) (map[string]any, error) {
	resolved, err := Resolve(ctx, config, rctx)
	if err != nil {
		return nil, err
	}

	if resolved == nil {
		return map[string]any{}, nil
	}

	asMap, ok := resolved.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resolved configuration is %T, not an object", resolved)
	}

	return asMap, nil
}

// ReferencedNodes collects the node ids named by ={{ref:...}} tokens
// anywhere in a configuration value. Save-time validation checks these
// against the workflow graph; resolution itself stays in Resolve.
func ReferencedNodes(value any) []string {
	var ids []string

	collectRefs(value, &ids)

	return ids
}

func collectRefs(value any, ids *[]string) {
	switch typed := value.(type) {
	case string:
		remaining := typed

		for {
			idx := strings.Index(remaining, tokenOpen)
			if idx < 0 {
				return
			}

			token, rest, ok := scanToken(remaining[idx:])
			if !ok {
				return
			}

			body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(token, tokenOpen), tokenClose))
			if strings.HasPrefix(body, kindRef) {
				*ids = append(*ids, strings.TrimSpace(strings.TrimPrefix(body, kindRef)))
			}

			remaining = rest
		}
	case map[string]any:
		for _, item := range typed {
			collectRefs(item, ids)
		}
	case []any:
		for _, item := range typed {
			collectRefs(item, ids)
		}
	}
}

func resolveString(ctx context.Context, input string, rctx *Context) (any, error) {
	first := strings.Index(input, tokenOpen)
	if first < 0 {
		return input, nil
	}

	// Whole-string token: preserve the referenced value's type.
	if token, rest, ok := scanToken(input[first:]); ok && first == 0 && rest == "" {
		return lookupToken(ctx, token, rctx)
	}

	var builder strings.Builder

	remaining := input

	for {
		idx := strings.Index(remaining, tokenOpen)
		if idx < 0 {
			builder.WriteString(remaining)

			break
		}

		builder.WriteString(remaining[:idx])

		token, rest, ok := scanToken(remaining[idx:])
		if !ok {
			// Unterminated opener is literal text.
			builder.WriteString(remaining[idx:])

			break
		}

		resolved, err := lookupToken(ctx, token, rctx)
		if err != nil {
			return nil, err
		}

		builder.WriteString(stringify(resolved))

		remaining = rest
	}

	return builder.String(), nil
}

// scanToken reads one token at the start of input, which must begin with
// the opener. Returns the full token text and the remainder after it.
func scanToken(input string) (token, rest string, ok bool) {
	if !strings.HasPrefix(input, tokenOpen) {
		return "", "", false
	}

	end := strings.Index(input, tokenClose)
	if end < 0 {
		return "", "", false
	}

	return input[:end+len(tokenClose)], input[end+len(tokenClose):], true
}

func lookupToken(ctx context.Context, token string, rctx *Context) (any, error) {
	body := strings.TrimSuffix(strings.TrimPrefix(token, tokenOpen), tokenClose)
	body = strings.TrimSpace(body)

	switch {
	case strings.HasPrefix(body, kindRef):
		nodeID := strings.TrimSpace(strings.TrimPrefix(body, kindRef))

		output, ok := rctx.Outputs[nodeID]
		if !ok {
			return nil, &ReferenceResolutionError{Token: token, Err: fmt.Errorf("no output for node %s", nodeID)}
		}

		return output, nil
	case strings.HasPrefix(body, kindVar):
		variableID := strings.TrimSpace(strings.TrimPrefix(body, kindVar))

		if rctx.Variables == nil {
			return nil, &ReferenceResolutionError{Token: token, Err: fmt.Errorf("no variable resolver for variable %s", variableID)}
		}

		value, err := rctx.Variables.Resolve(ctx, variableID, rctx.ProjectID)
		if err != nil {
			return nil, &ReferenceResolutionError{Token: token, Err: err}
		}

		return value, nil
	default:
		return nil, &ReferenceResolutionError{Token: token, Err: fmt.Errorf("unknown reference kind")}
	}
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}
