// ABOUTME: Minimal flag parsing for subcommands
// ABOUTME: Accepts --name value and --name=value, rejects flags a command does not know

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parsedArgs holds a command's flags and positional arguments.
type parsedArgs struct {
	flags      map[string]string
	positional []string
}

// parseArgs parses args against the allowed flag names. Names listed in boolFlags
// take no value.
func parseArgs(args []string, allowed []string, boolFlags ...string) (*parsedArgs, error) {
	known := make(map[string]bool, len(allowed)+len(boolFlags))
	for _, name := range allowed {
		known[name] = false
	}
	for _, name := range boolFlags {
		known[name] = true
	}

	out := &parsedArgs{flags: make(map[string]string)}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			out.positional = append(out.positional, arg)
			continue
		}

		name := strings.TrimPrefix(arg, "--")
		value, hasValue := "", false
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name, value, hasValue = name[:eq], name[eq+1:], true
		}

		isBool, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown flag: --%s", name)
		}
		switch {
		case isBool && !hasValue:
			value = "true"
		case !hasValue:
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		out.flags[name] = value
	}
	return out, nil
}

func (p *parsedArgs) get(name string) (string, bool) {
	v, ok := p.flags[name]
	return v, ok
}

func (p *parsedArgs) bool(name string) bool {
	v, err := strconv.ParseBool(p.flags[name])
	return err == nil && v
}

// id returns positional argument i as a record id.
func (p *parsedArgs) id(i int, what string) (int64, error) {
	if i >= len(p.positional) {
		return 0, fmt.Errorf("%s id is required", what)
	}
	id, err := strconv.ParseInt(p.positional[i], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, p.positional[i])
	}
	return id, nil
}
