package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/halspa/halspa.go/pkg/env"
	fx "github.com/halspa/halspa.go/pkg/framework"
	"github.com/halspa/halspa.go/pkg/jig"
)

var flags *env.Flags

func init() {
	flags = env.SetupFlags(flag.CommandLine)
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := flags.Resolve()
	if err != nil {
		glog.Exit(err)
	}
	session := conf.NewSession()
	if err = session.Connect(); err != nil {
		glog.Exitf("connect jig: %v", err)
	}
	var firmware string
	if info, err := jig.ReadDeviceInfo(session); err != nil {
		glog.Warningf("read device info: %v", err)
	} else {
		firmware = info.Firmware
		glog.Infof("jig %s: %s, %s", conf.JigID, info.Machine, firmware)
	}
	srv, err := conf.NewServer(session, firmware)
	if err != nil {
		session.Close()
		glog.Exit(err)
	}

	var errs fx.AggregatedError
	errs.Add(fx.NewRunner().HandleSignals().Go(fx.NamedRun("bridge", srv)).Wait())
	errs.Add(session.Close())
	if err = errs.Aggregate(); err != nil {
		glog.Exit(err)
	}
}
