// Command fai is the command-line surface over pkg/repo and pkg/sync: a
// bare os.Args dispatcher in the style of beenet's own cmd/bee, not a
// framework-driven CLI.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = initCommand()
	case "add":
		err = addCommand()
	case "commit":
		err = commitCommand()
	case "status":
		err = statusCommand()
	case "log":
		err = logCommand()
	case "diff":
		err = diffCommand()
	case "peers":
		err = peersCommand()
	case "fetch":
		err = fetchCommand()
	case "serve":
		err = serveCommand()
	case "chunks":
		err = chunksCommand()
	case "push":
		err = pushCommand()
	case "pull":
		err = pullCommand()
	case "clone":
		err = cloneCommand()
	case "trust":
		err = trustCommand()
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "fai: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "fai: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `fai - peer-to-peer content-addressed artifact version control

Usage:
  fai <command> [arguments]

Local repository commands:
  init                        Initialize a repository in the current directory
  add <path>                  Stage a file
  commit -m <msg>             Commit staged files
  status                      List staged files
  log                         List commits, newest first
  diff <hash1> <hash2>        Compare two commits ("" for the empty tree)
  chunks <hash>                List the chunk digests of a manifest

Sync commands (peer is "addr,signing-hex,ka-hex", printed by "serve";
all accept an optional "--transport tcp|quic" before the peer, default tcp):
  serve [--transport ...]                 Listen for incoming peer connections
  peers [--transport ...]                 Show peers discovered on the local network
  fetch [--transport ...] <peer> <hash>   Fetch and print one object by digest
  push [--transport ...] <peer>           Send commits and objects HEAD holds that peer lacks
  pull [--transport ...] <peer> [<hash>]  Fetch commits and objects into the current repository
  clone [--transport ...] <peer> [<dir>]  Clone a remote repository into a new directory
  trust <peer>                            Remember a peer's keys so "serve" accepts its connections
`)
}

func background() context.Context {
	return context.Background()
}
