package main

import (
	"fmt"

	"github.com/faiproject/fai/pkg/transport"
	"github.com/faiproject/fai/pkg/transport/quic"
	"github.com/faiproject/fai/pkg/transport/tcp"
)

func init() {
	transport.DefaultRegistry.Register(tcp.New().Name(), tcp.New())
	transport.DefaultRegistry.Register(quic.New().Name(), quic.New())
}

// selectTransport scans args for a "--transport <name>" pair (default
// "tcp"), resolves it against transport.DefaultRegistry, and returns the
// transport plus args with the flag removed.
func selectTransport(args []string) (transport.Transport, []string, error) {
	name := "tcp"
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--transport" {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--transport requires a value")
			}
			name = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}

	t, ok := transport.DefaultRegistry.Get(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown transport %q (known: %v)", name, transport.DefaultRegistry.List())
	}
	return t, rest, nil
}
