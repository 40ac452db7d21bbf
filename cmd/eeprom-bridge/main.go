package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/bridge"
	"github.com/robotalks/eeprom.go/pkg/eeprom/env"
	fx "github.com/robotalks/eeprom.go/pkg/framework"
)

func init() {
	env.SetupFlags()
	bridge.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.NewConfig()
	device, err := conf.Open()
	if err != nil {
		glog.Exitf("open %s: %v", conf.Port, err)
	}
	defer device.Close()

	runners, err := bridge.NewConfig().Runnables(device, conf.DialTimeout)
	if err != nil {
		glog.Exit(err)
	}
	if err := fx.NewRunner().HandleSignals().Go(runners...).Wait(); err != nil {
		glog.Error(err)
	}
}
