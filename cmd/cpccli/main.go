package main

//go-build: CGO_ENABLED=0

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
	"github.com/lowpanio/cpclink.go/pkg/cpc/socklink"
	"github.com/lowpanio/cpclink.go/pkg/spinel"
	"github.com/lowpanio/cpclink.go/pkg/transport"
)

var (
	socketDir = "/tmp/cpcd"
	endpoint  uint
)

func init() {
	if val := os.Getenv("CPC_SOCKET_DIR"); val != "" {
		socketDir = val
	}
	flag.StringVar(&socketDir, "socket-dir", socketDir, "Directory of endpoint sockets.")
	flag.UintVar(&endpoint, "endpoint", 5, "Endpoint id.")
}

type session struct {
	host *transport.Host
}

func (s *session) mustBeConnected(c *ishell.Context) bool {
	if s.host == nil {
		c.Err(fmt.Errorf("not connected, use 'connect' first"))
		return false
	}
	return true
}

func main() {
	flag.Parse()

	sess := &session{}
	shell := ishell.New()
	shell.SetPrompt(fmt.Sprintf("ep%d > ", endpoint))

	shell.AddCmd(&ishell.Cmd{
		Name: "connect",
		Help: "open the endpoint",
		Func: func(c *ishell.Context) {
			if sess.host != nil {
				c.Err(fmt.Errorf("already connected"))
				return
			}
			conn := socklink.New(socketDir)
			rxBuf := spinel.NewRxFrameBuffer(transport.MaxFrameSize)
			host := transport.NewHost(conn, rxBuf, func(frame []byte) {
				shell.Printf("< %s\n", hex.EncodeToString(frame))
			})
			if err := host.Init(cpc.EndpointID(endpoint)); err != nil {
				c.Err(err)
				return
			}
			sess.host = host
			c.Println("connected")
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send <hex-frame>",
		Func: func(c *ishell.Context) {
			if !sess.mustBeConnected(c) {
				return
			}
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: send <hex-frame>"))
				return
			}
			frame, err := hex.DecodeString(strings.ReplaceAll(c.Args[0], ":", ""))
			if err != nil {
				c.Err(err)
				return
			}
			if err = sess.host.SendFrame(frame); err != nil {
				c.Err(err)
				return
			}
			c.Printf("> %s\n", hex.EncodeToString(frame))
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "wait",
		Help: "wait [milliseconds] for an inbound frame",
		Func: func(c *ishell.Context) {
			if !sess.mustBeConnected(c) {
				return
			}
			ms := 1000
			if len(c.Args) > 0 {
				var err error
				if ms, err = strconv.Atoi(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}
			err := sess.host.WaitForFrame(time.Duration(ms) * time.Millisecond)
			if err == transport.ErrResponseTimeout {
				c.Println("timeout")
			} else if err != nil {
				c.Err(err)
			}
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "reset",
		Help: "reset client-side transient state",
		Func: func(c *ishell.Context) {
			if !sess.mustBeConnected(c) {
				return
			}
			sess.host.OnRcpReset()
			c.Println("OK")
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "speed",
		Help: "report link bus speed",
		Func: func(c *ishell.Context) {
			if !sess.mustBeConnected(c) {
				return
			}
			c.Printf("%d bps\n", sess.host.GetBusSpeed())
		},
	})
	shell.AddCmd(&ishell.Cmd{
		Name: "disconnect",
		Help: "close the endpoint",
		Func: func(c *ishell.Context) {
			if !sess.mustBeConnected(c) {
				return
			}
			sess.host.Deinit()
			sess.host = nil
			c.Println("disconnected")
		},
	})

	defer func() {
		if sess.host != nil {
			sess.host.Deinit()
		}
	}()
	shell.Run()
}
