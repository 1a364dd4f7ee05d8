package servicebus

import (
	"os"
	"strings"
)

// MaxPathLength is the maximum length of a queue path.
const MaxPathLength = 124

const privateSegment = `private$`

// FormatPath turns a queue name into a full queue path.
//
// Rules:
//   - a bare name (no `\` and no `@`) becomes a private queue on the local machine: `.\private$\name`
//   - a private path without a machine gets the local machine prefix: `private$\name` → `.\private$\name`
//   - remote paths (`machine\name`, `machine\private$\name`) and `name@machine` are kept as-is
func FormatPath(name string) string {
	path := name

	if !strings.Contains(path, `\`) && !strings.Contains(path, "@") {
		path = privateSegment + `\` + path
	}

	if IsPrivatePath(path) && MachineNameFromPath(path) == "" {
		path = `.\` + path
	}

	return path
}

// IsPrivatePath reports whether path addresses a private queue.
func IsPrivatePath(path string) bool {
	return strings.Contains(strings.ToLower(path), privateSegment)
}

// MachineNameFromPath returns the machine part of a queue path.
// The local machine is reported as ".". An empty result means the path has no machine.
func MachineNameFromPath(path string) string {
	if host, err := os.Hostname(); err == nil && host != "" && strings.HasPrefix(path, host) {
		return "."
	}

	if i := strings.Index(path, "@"); i >= 0 {
		return path[i+1:]
	}

	if i := strings.Index(path, `\`); i >= 0 {
		machine := path[:i]
		if strings.Contains(strings.ToLower(machine), privateSegment) {
			return ""
		}
		return machine
	}

	return ""
}

// QueueNameFromPath returns the short queue name of a path (the last path segment, or
// the part before `@`). The short name is what publisher patterns are matched against.
func QueueNameFromPath(path string) string {
	path = strings.TrimSuffix(path, `\`)
	name := path

	if i := strings.Index(path, "@"); i >= 0 {
		name = path[:i]
	}

	if i := strings.LastIndex(path, `\`); i >= 0 {
		name = path[i+1:]
	}

	return name
}
