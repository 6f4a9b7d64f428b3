package server

import (
	"errors"
	"fmt"
	"sort"
)

// Handler executes one command. The returned value becomes the OK payload; nil is sent as null.
type Handler func(args Args) (any, error)

// Command binds a wire command name to its handler and declared arity.
type Command struct {
	Name    string
	Arity   int
	Handler Handler
}

// Registry maps command names to commands. It is immutable once built.
type Registry struct {
	cmds  map[string]Command
	names []string
}

// NewRegistry builds a registry from an explicit command list.
// It rejects empty names, nil handlers, negative arities and duplicate names.
func NewRegistry(cmds ...Command) (*Registry, error) {
	r := &Registry{cmds: make(map[string]Command, len(cmds))}

	for _, cmd := range cmds {
		switch {
		case cmd.Name == "":
			return nil, errors.New("command with empty name")
		case cmd.Handler == nil:
			return nil, fmt.Errorf("command %s has no handler", cmd.Name)
		case cmd.Arity < 0:
			return nil, fmt.Errorf("command %s has negative arity", cmd.Name)
		}

		if _, dup := r.cmds[cmd.Name]; dup {
			return nil, fmt.Errorf("command %s registered twice", cmd.Name)
		}
		r.cmds[cmd.Name] = cmd
		r.names = append(r.names, cmd.Name)
	}
	sort.Strings(r.names)

	return r, nil
}

// Lookup returns the command registered under name, or an error wrapping ErrUnknownCommand.
func (r *Registry) Lookup(name string) (Command, error) {
	cmd, ok := r.cmds[name]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	return cmd, nil
}

// Names returns the sorted command names.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.cmds)
}
