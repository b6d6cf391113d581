package main

import (
	"github.com/robotalks/ttyio/pkg/cli/sh"
	"github.com/robotalks/ttyio/pkg/config"
)

//go-build: CGO_ENABLED=0

func init() {
	config.SetupFlags()
}

func main() {
	sh.Main()
}
