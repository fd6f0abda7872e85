// Package rcpsim runs a simulated radio co-processor: the device-side
// transport over an in-memory link, bridged to a unix seqpacket
// socket so host-side tools have a real endpoint to talk to.
package rcpsim

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/lowpanio/cpclink.go/pkg/cpc"
	"github.com/lowpanio/cpclink.go/pkg/cpc/memlink"
	"github.com/lowpanio/cpclink.go/pkg/run"
	"github.com/lowpanio/cpclink.go/pkg/spinel"
	"github.com/lowpanio/cpclink.go/pkg/transport"
)

// Config configures the simulated co-processor.
type Config struct {
	SocketDir string
	Endpoint  uint
	TxBufSize int
}

var defaultConfig = Config{
	SocketDir: "/tmp/cpcd",
	Endpoint:  5,
	TxBufSize: 4096,
}

// SetupFlags registers command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.SocketDir, "socket-dir", defaultConfig.SocketDir, "Directory of endpoint sockets.")
	flag.UintVar(&defaultConfig.Endpoint, "endpoint", defaultConfig.Endpoint, "Endpoint id to expose.")
	flag.IntVar(&defaultConfig.TxBufSize, "txbuf", defaultConfig.TxBufSize, "Outbound frame buffer size in bytes.")
}

// NewConfig creates a Config from flags.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Sim is the simulated co-processor. The upper layer echoes every
// received frame back through the outbound buffer.
type Sim struct {
	conf Config

	link *memlink.Link
	loop *run.Loop
	dev  *transport.Device

	listenFd int
	path     string

	lock     sync.Mutex
	clientFd int
}

// NewSim creates a Sim listening at <dir>/ep<id>.sock.
func (c *Config) NewSim() (*Sim, error) {
	s := &Sim{
		conf:     *c,
		link:     memlink.New(),
		loop:     run.NewLoop(),
		listenFd: -1,
		clientFd: -1,
	}
	txBuffer := spinel.NewBuffer(c.TxBufSize)
	dev, err := transport.NewDevice(s.link.Endpoint(), txBuffer, s.loop, func(frame []byte) {
		// echo upper layer
		if err := s.dev.SendFrame(frame); err != nil {
			glog.Errorf("echo frame: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if err = dev.Init(cpc.EndpointID(c.Endpoint)); err != nil {
		return nil, err
	}
	s.dev = dev

	if err = os.MkdirAll(c.SocketDir, 0o755); err != nil {
		return nil, err
	}
	s.path = filepath.Join(c.SocketDir, fmt.Sprintf("ep%d.sock", c.Endpoint))
	os.Remove(s.path)
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err = unix.Bind(fd, &unix.SockaddrUnix{Name: s.path}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err = unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	s.listenFd = fd
	return s, nil
}

// Run implements run.Runnable. The first runnable to stop takes the
// rest down with it: a fatal device error cancels the bridge, a
// canceled context unblocks the accept loop.
func (s *Sim) Run(ctx context.Context) error {
	glog.Infof("rcpsim listening at %s", s.path)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	wrap := func(name string, fn func(context.Context) error) run.Runnable {
		return run.NamedRun(name, runFunc(func(c context.Context) error {
			defer cancel()
			return fn(c)
		}))
	}
	runner := run.NewRunnerWith(subCtx)
	runner.Go(
		wrap("loop", s.loop.Run),
		wrap("pump", s.pump),
		wrap("accept", s.acceptLoop),
	)
	err := runner.Wait()
	s.close()
	return err
}

type runFunc func(context.Context) error

func (f runFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// pump forwards frames transmitted by the device to the connected
// client.
func (s *Sim) pump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-s.link.Port().Frames():
			s.lock.Lock()
			fd := s.clientFd
			s.lock.Unlock()
			if fd < 0 {
				continue
			}
			if err := unix.Send(fd, frame, 0); err != nil {
				glog.Warningf("client send: %v", err)
			}
		}
	}
}

// fdCloser adapts a raw descriptor to io.Closer for the runner
// helpers.
type fdCloser int

func (fd fdCloser) Close() error {
	return unix.Close(int(fd))
}

func (s *Sim) acceptLoop(ctx context.Context) error {
	return run.WithContextCloser(ctx, fdCloser(s.listenFd), func() error {
		for {
			cfd, _, err := unix.Accept(s.listenFd)
			if err != nil {
				return err
			}
			s.setClient(cfd)
			go s.serveClient(cfd)
		}
	})
}

func (s *Sim) setClient(fd int) {
	s.lock.Lock()
	old := s.clientFd
	s.clientFd = fd
	s.lock.Unlock()
	if old >= 0 {
		unix.Close(old)
	}
}

func (s *Sim) clearClient(fd int) {
	s.lock.Lock()
	if s.clientFd == fd {
		s.clientFd = -1
	}
	s.lock.Unlock()
	unix.Close(fd)
}

// serveClient injects client frames into the device endpoint.
func (s *Sim) serveClient(fd int) {
	defer s.clearClient(fd)
	buf := make([]byte, transport.MaxFrameSize)
	for {
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			return
		}
		s.link.Port().SendToDevice(buf[:n])
	}
}

func (s *Sim) close() {
	s.lock.Lock()
	fd := s.clientFd
	s.clientFd = -1
	s.lock.Unlock()
	if fd >= 0 {
		unix.Close(fd)
	}
	s.dev.Deinit()
	s.link.Close()
	os.Remove(s.path)
}
