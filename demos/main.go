package main

import (
	"fmt"
	"os"
	"strings"

	// Sizes the default pool by the container's CPU quota, not the host's
	// core count.
	_ "go.uber.org/automaxprocs"
)

// Demo represents a runnable demonstration
type Demo struct {
	Name        string
	Description string
	Run         func()
}

var demos []Demo

func init() {
	demos = []Demo{
		{
			Name:        "fib",
			Description: "Recursive fork/merge with Join",
			Run:         runFibDemo,
		},
		{
			Name:        "scope",
			Description: "Scoped task groups fanning out over a shared index",
			Run:         runScopeDemo,
		},
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	name := strings.ToLower(os.Args[1])
	for _, d := range demos {
		if d.Name == name {
			d.Run()
			return
		}
	}
	fmt.Printf("unknown demo %q\n\n", name)
	usage()
}

func usage() {
	fmt.Println("usage: demos <name>")
	fmt.Println()
	fmt.Println("available demos:")
	for _, d := range demos {
		fmt.Printf("  %-8s %s\n", d.Name, d.Description)
	}
}
