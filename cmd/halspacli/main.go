package main

import (
	"flag"

	"github.com/halspa/halspa.go/pkg/cli/sh"
	"github.com/halspa/halspa.go/pkg/env"

	_ "github.com/halspa/halspa.go/pkg/cli/cmds/jig"
)

//go-build: CGO_ENABLED=0

var flags *env.Flags

func init() {
	flags = env.SetupFlags(flag.CommandLine)
}

func main() {
	sh.Main(flags)
}
