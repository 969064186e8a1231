// Command gendevlist regenerates drivers/devnames.go, the list of
// built-in device names drivers.RegisterAll creates, from a single
// source list kept in this file. It exists so the device roster has one
// place to edit instead of staying in sync by hand between register.go
// and anything that wants to enumerate devfs's built-ins (tests, docs).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/tools/imports"
)

// names mirrors the device names drivers.RegisterAll creates; keep this
// list and register.go's CreateEntry calls in sync by hand until both
// are driven from here.
var names = []string{"null", "console", "kmemstat", "kmemprofile", "disasm"}

func main() {
	out := flag.String("out", "", "output file (default: stdout)")
	flag.Parse()

	var b strings.Builder
	fmt.Fprintln(&b, "package drivers")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "// Code generated by cmd/gendevlist. DO NOT EDIT.")
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "// BuiltinNames lists every device drivers.RegisterAll creates.")
	fmt.Fprintln(&b, "var BuiltinNames = []string{")
	for _, n := range names {
		fmt.Fprintf(&b, "\t%q,\n", n)
	}
	fmt.Fprintln(&b, "}")

	formatted, err := imports.Process("devnames.go", []byte(b.String()), nil)
	if err != nil {
		log.Fatalf("gendevlist: formatting generated source: %v", err)
	}

	if *out == "" {
		os.Stdout.Write(formatted)
		return
	}
	if err := os.WriteFile(*out, formatted, 0644); err != nil {
		log.Fatalf("gendevlist: writing %s: %v", *out, err)
	}
}
