package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
	"github.com/lowpanio/cpclink.go/pkg/cpc/socklink"
	"github.com/lowpanio/cpclink.go/pkg/monitor"
	"github.com/lowpanio/cpclink.go/pkg/spinel"
	"github.com/lowpanio/cpclink.go/pkg/transport"
)

var (
	mqttURL   = "mqtt://localhost:1883/cpc/"
	socketDir = "/tmp/cpcd"
	endpoint  uint
)

func init() {
	if val := os.Getenv("CPC_MQTT_URL"); val != "" {
		mqttURL = val
	}
	if val := os.Getenv("CPC_SOCKET_DIR"); val != "" {
		socketDir = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&socketDir, "socket-dir", socketDir, "Directory of endpoint sockets.")
	flag.UintVar(&endpoint, "endpoint", 5, "Endpoint id.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	mon, err := monitor.New(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err = mon.Connect(); err != nil {
		log.Fatalln(err)
	}
	defer mon.Close()

	conn := socklink.New(socketDir)
	rxBuf := spinel.NewRxFrameBuffer(transport.MaxFrameSize)
	host := transport.NewHost(conn, rxBuf, mon.PublishRx)
	if err = host.Init(cpc.EndpointID(endpoint)); err != nil {
		log.Fatalln(err)
	}
	defer host.Deinit()

	err = mon.SubscribeInject(func(frame []byte) {
		if err := host.SendFrame(frame); err != nil {
			log.Printf("inject: %v", err)
			return
		}
		mon.PublishTx(frame)
	})
	if err != nil {
		log.Fatalln(err)
	}

	log.Printf("monitoring endpoint %d via %s", endpoint, socketDir)
	for {
		err := host.WaitForFrame(time.Second)
		if err == transport.ErrResponseTimeout {
			continue
		}
		if err != nil {
			log.Fatalln(err)
		}
	}
}
