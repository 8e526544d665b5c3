// Package ordering computes the execution order of a job's sources. A later
// source may reference an earlier one, so the order must be deterministic and
// must respect the declared order hints.
package ordering

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vitalis-app/hwmon/internal/connector"
	"github.com/vitalis-app/hwmon/internal/sourcetable"
)

// ConfigError reports an inconsistent order declaration. It is fatal for the
// job and is not retried.
type ConfigError struct {
	Job    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Job == "" {
		return "invalid source order: " + e.Reason
	}
	return fmt.Sprintf("invalid source order for job %s: %s", e.Job, e.Reason)
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Order returns the sources in execution order.
//
// With explicit, every source name must appear exactly once. Without
// explicit, a dependency tree is flattened level by level and checked the
// same way. With neither, mapOrder (the declaration order) is used, then any
// remaining names in sorted order.
func Order(sources map[string]connector.Source, mapOrder, explicit []string, tree [][]string) ([]connector.Source, error) {
	if len(explicit) == 0 && len(tree) > 0 {
		explicit = Flatten(tree)
	}
	if len(explicit) > 0 {
		return orderExplicit(sources, explicit)
	}
	return orderDeclared(sources, mapOrder), nil
}

// OrderJob orders the sources of job using its own hints. Without an
// explicit order or dependency tree, the declaration order is kept when it
// runs every source after the sources it references; otherwise the order is
// derived from those references. A reference cycle is a *ConfigError.
func OrderJob(job *connector.Job) ([]connector.Source, error) {
	if len(job.ExecutionOrder) > 0 || len(job.DependencyTree) > 0 {
		out, err := Order(job.Sources, job.SourceOrder, job.ExecutionOrder, job.DependencyTree)
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Job = job.Key()
		}
		return out, err
	}

	deps, err := dependencies(job)
	if err != nil {
		return nil, err
	}
	names := declaredNames(job.Sources, job.SourceOrder)
	if !runsAfterDependencies(names, deps) {
		tree, err := treeOf(job, deps)
		if err != nil {
			return nil, err
		}
		names = Flatten(tree)
	}
	return orderExplicit(job.Sources, names)
}

// Flatten turns a dependency tree into an order list, level after level.
// Names inside a level keep their declared order.
func Flatten(tree [][]string) []string {
	var out []string
	for _, level := range tree {
		out = append(out, level...)
	}
	return out
}

func orderExplicit(sources map[string]connector.Source, names []string) ([]connector.Source, error) {
	if len(names) != len(sources) {
		return nil, &ConfigError{Reason: fmt.Sprintf("%d names declared for %d sources", len(names), len(sources))}
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]connector.Source, 0, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return nil, &ConfigError{Reason: fmt.Sprintf("source %q declared twice", name)}
		}
		seen[name] = struct{}{}

		src, ok := sources[name]
		if !ok {
			return nil, &ConfigError{Reason: fmt.Sprintf("unknown source %q", name)}
		}
		out = append(out, src)
	}
	return out, nil
}

func orderDeclared(sources map[string]connector.Source, mapOrder []string) []connector.Source {
	names := declaredNames(sources, mapOrder)
	out := make([]connector.Source, 0, len(names))
	for _, name := range names {
		out = append(out, sources[name])
	}
	return out
}

// declaredNames returns the names of mapOrder that are sources, without
// duplicates, followed by the remaining names sorted.
func declaredNames(sources map[string]connector.Source, mapOrder []string) []string {
	out := make([]string, 0, len(sources))
	used := make(map[string]struct{}, len(sources))
	for _, name := range mapOrder {
		if _, ok := sources[name]; !ok {
			continue
		}
		if _, dup := used[name]; dup {
			continue
		}
		used[name] = struct{}{}
		out = append(out, name)
	}

	var rest []string
	for name := range sources {
		if _, ok := used[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func runsAfterDependencies(names []string, deps map[string][]string) bool {
	position := make(map[string]int, len(names))
	for i, name := range names {
		position[name] = i
	}
	for name, ds := range deps {
		for _, d := range ds {
			if position[d] > position[name] {
				return false
			}
		}
	}
	return true
}

// References returns the source paths src depends on: its ${source::...}
// references and the table driving an execute-for-each directive.
func References(src connector.Source) []string {
	var refs []string
	src.Update(func(s string) string {
		refs = append(refs, sourcetable.ReferencePaths(s)...)
		return s
	})
	if each := src.Base().ExecuteForEachEntryOf; each != nil {
		refs = append(refs, sourcetable.ReferencePaths(each.Source)...)
	}
	return refs
}

// DependencyTree derives a dependency tree for job from the references
// between its sources. Level 0 holds sources with no dependency inside the
// job; each following level only depends on earlier levels. A reference
// cycle is a *ConfigError.
func DependencyTree(job *connector.Job) ([][]string, error) {
	deps, err := dependencies(job)
	if err != nil {
		return nil, err
	}
	return treeOf(job, deps)
}

// dependencies maps every source name of job to the names of the sources of
// the same job it references.
func dependencies(job *connector.Job) (map[string][]string, error) {
	byKey := make(map[string]string, 2*len(job.Sources))
	for name := range job.Sources {
		byKey[job.SourceKey(name)] = name
		byKey[name] = name
	}

	deps := make(map[string][]string, len(job.Sources))
	for name, src := range job.Sources {
		for _, ref := range References(src) {
			dep, ok := byKey[ref]
			if !ok {
				continue
			}
			if dep == name {
				return nil, &ConfigError{Job: job.Key(), Reason: fmt.Sprintf("source %q references itself", name)}
			}
			deps[name] = append(deps[name], dep)
		}
	}
	return deps, nil
}

func treeOf(job *connector.Job, deps map[string][]string) ([][]string, error) {
	g := newGraph()
	for name := range job.Sources {
		g.addNode(name)
	}
	for name, ds := range deps {
		for _, d := range ds {
			g.addEdge(d, name)
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, &ConfigError{Job: job.Key(), Reason: err.Error()}
	}
	return g.levels(), nil
}
