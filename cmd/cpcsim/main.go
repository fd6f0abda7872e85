package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/lowpanio/cpclink.go/pkg/rcpsim"
	"github.com/lowpanio/cpclink.go/pkg/run"
)

func init() {
	rcpsim.SetupFlags()
}

func main() {
	flag.Parse()

	sim, err := rcpsim.NewConfig().NewSim()
	if err != nil {
		log.Fatalln(err)
	}
	if err := run.NewRunner().HandleSignals().Go(sim).Wait(); err != nil {
		log.Fatalln(err)
	}
}
