package main

import (
	"github.com/robotalks/eeprom.go/pkg/cli/sh"
	"github.com/robotalks/eeprom.go/pkg/eeprom/env"

	_ "github.com/robotalks/eeprom.go/pkg/cli/cmds/memory"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
