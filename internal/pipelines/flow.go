// Package pipelines provides a small dependency-ordered task runner used
// to wire together the discrete steps of a submission run.
package pipelines

import (
	"context"
	"fmt"
)

type contextKey string

// SkipStepsKey, set on a context to a []string of task names, causes Run
// to skip executing those tasks. A skipped task's dependents still run;
// the skipped task is treated as satisfied for dependency purposes.
const SkipStepsKey contextKey = "skip_steps"

type task struct {
	name string
	fn   func() error
	deps []string
}

// Flow is a named set of tasks with dependency edges, run in an order
// that respects those edges.
type Flow struct {
	name  string
	tasks []*task
}

// NewFlow creates an empty, named Flow.
func NewFlow(name string) *Flow {
	return &Flow{name: name}
}

// AddTask registers a task under name, depending on the named deps
// (which must themselves have been or be added via AddTask).
func (f *Flow) AddTask(name string, fn func() error, deps ...string) {
	f.tasks = append(f.tasks, &task{name: name, fn: fn, deps: deps})
}

// Run executes every task in dependency order, skipping any task named
// in the context's SkipStepsKey value. It returns the first task error
// encountered, or an error immediately if ctx is already done.
func (f *Flow) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("flow %q: context already done: %w", f.name, err)
	}

	skip := map[string]bool{}
	if names, ok := ctx.Value(SkipStepsKey).([]string); ok {
		for _, n := range names {
			skip[n] = true
		}
	}

	byName := make(map[string]*task, len(f.tasks))
	for _, t := range f.tasks {
		byName[t.name] = t
	}

	satisfied := map[string]bool{}
	order, err := topoOrder(f.tasks)
	if err != nil {
		return fmt.Errorf("flow %q: %w", f.name, err)
	}

	for _, name := range order {
		t := byName[name]
		for _, dep := range t.deps {
			if !satisfied[dep] {
				return fmt.Errorf("flow %q: task %q ran before dependency %q", f.name, name, dep)
			}
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("flow %q: context cancelled before task %q: %w", f.name, name, err)
		}

		if skip[name] {
			satisfied[name] = true
			continue
		}

		if err := t.fn(); err != nil {
			return fmt.Errorf("flow %q: task %q failed: %w", f.name, name, err)
		}
		satisfied[name] = true
	}

	return nil
}

// topoOrder returns task names in an order where every task follows all
// of its dependencies, using each task's registration order to break
// ties deterministically.
func topoOrder(tasks []*task) ([]string, error) {
	visited := map[string]int{} // 0 unvisited, 1 in-progress, 2 done
	var order []string

	byName := make(map[string]*task, len(tasks))
	for _, t := range tasks {
		byName[t.name] = t
	}

	var visit func(name string) error
	visit = func(name string) error {
		switch visited[name] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("cycle detected at task %q", name)
		}
		visited[name] = 1

		t, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown dependency %q", name)
		}
		for _, dep := range t.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visited[name] = 2
		order = append(order, name)
		return nil
	}

	for _, t := range tasks {
		if err := visit(t.name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
