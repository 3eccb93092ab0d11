// Command kvforge-cli is a thin TCP client for a running kvforge-server,
// the Go analogue of original_source/src/bin/kvs-client.rs's set/get/rm
// subcommands.
package main

import (
	"flag"
	"fmt"
	"os"

	"kvforge/internal/client"
	"kvforge/internal/kverrors"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	fs := flag.NewFlagSet(sub, flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:4000", "server address")

	switch sub {
	case "set":
		fs.Parse(os.Args[2:])
		args := fs.Args()
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: kvforge-cli set [-addr addr] KEY VALUE")
			os.Exit(1)
		}
		run(*addr, func(c *client.Client) error {
			return c.Set(args[0], args[1])
		})

	case "get":
		fs.Parse(os.Args[2:])
		args := fs.Args()
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: kvforge-cli get [-addr addr] KEY")
			os.Exit(1)
		}
		run(*addr, func(c *client.Client) error {
			value, found, err := c.Get(args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("Key not found")
				return nil
			}
			fmt.Println(value)
			return nil
		})

	case "rm":
		fs.Parse(os.Args[2:])
		args := fs.Args()
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: kvforge-cli rm [-addr addr] KEY")
			os.Exit(1)
		}
		run(*addr, func(c *client.Client) error {
			return c.Remove(args[0])
		})

	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kvforge-cli <set|get|rm> [-addr addr] ...")
}

func run(addr string, op func(*client.Client) error) {
	c, err := client.Dial(addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvforge-cli:", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := op(c); err != nil {
		if kind, ok := kverrors.KindOf(err); ok && kind == kverrors.KeyNotFound {
			fmt.Fprintln(os.Stderr, "Key not found")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
