package dvid

import (
	"strings"
)

// Command is a command line split into words.  The first item is the command name.
// Other arguments are either positional or optional settings of the form
// "<key>=<value>".
type Command []string

// String returns a space-separated command line
func (cmd Command) String() string {
	return strings.Join([]string(cmd), " ")
}

// Name returns the first argument which is assumed to be the name of the command.
func (cmd Command) Name() string {
	if len(cmd) == 0 {
		return ""
	}
	return cmd[0]
}

// Argument returns the nth positional argument, skipping settings, where the command
// name is argument 0.  It returns the empty string if there is no such argument.
func (cmd Command) Argument(pos int) string {
	var n int
	for i, arg := range cmd {
		if i > 0 && strings.Contains(arg, "=") {
			continue
		}
		if n == pos {
			return arg
		}
		n++
	}
	return ""
}

// Parameter scans a command for any "key=value" argument and returns
// the value of the passed 'key'.
func (cmd Command) Parameter(key string) (value string, found bool) {
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			elems := strings.SplitN(arg, "=", 2)
			if len(elems) == 2 && elems[0] == key {
				value = elems[1]
				found = true
				return
			}
		}
	}
	return
}

// Settings returns all "key=value" arguments as a Config.
func (cmd Command) Settings() Config {
	config := NewConfig()
	if len(cmd) > 1 {
		for _, arg := range cmd[1:] {
			elems := strings.SplitN(arg, "=", 2)
			if len(elems) == 2 {
				config.Set(elems[0], elems[1])
			}
		}
	}
	return config
}
