package conditions

import "strings"

// BuiltinNames is the fixed allow-list of functions available inside
// condition expressions. The dry-run validator treats these names as
// always defined.
var BuiltinNames = []string{
	"task_tree_complete",
	"tasks_remaining",
	"glob_match",
}

// builtinEnv returns a fresh environment map holding the builtin
// functions. A fresh map per call keeps engines free to overlay
// context keys without sharing state.
func builtinEnv() map[string]any {
	return map[string]any{
		"task_tree_complete": taskTreeComplete,
		"tasks_remaining":    tasksRemaining,
		"glob_match":         globMatch,
	}
}

// taskTreeComplete walks a task tree (a list of task maps, each with an
// optional "status" and "children") and reports whether every task is
// in a terminal completed state.
func taskTreeComplete(tree any) bool {
	return tasksRemaining(tree) == 0
}

// tasksRemaining counts tasks in the tree that are not completed.
func tasksRemaining(tree any) int {
	switch v := tree.(type) {
	case []any:
		n := 0
		for _, item := range v {
			n += tasksRemaining(item)
		}
		return n
	case map[string]any:
		n := 0
		status, _ := v["status"].(string)
		if status != "completed" && status != "cancelled" {
			n++
		}
		if children, ok := v["children"]; ok {
			n += tasksRemaining(children)
		}
		return n
	default:
		return 0
	}
}

// globMatch matches a name against a simple glob pattern where "*"
// matches any run of characters. Used for tool-name predicates.
func globMatch(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == name
	}

	if !strings.HasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]

	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(name, part)
		if idx < 0 {
			return false
		}
		name = name[idx+len(part):]
	}

	return strings.HasSuffix(name, parts[len(parts)-1])
}
