package link

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/devagent/internal/infrastructure/config"
)

// Transport is the network collaborator beneath the broker session.
type Transport interface {
	// Connect attempts to bring the link up once.
	Connect(ctx context.Context) error

	// Status reports whether the link is currently up. It must not block.
	Status() bool

	// LocalAddr returns the device address acquired on the last successful
	// Connect, or "" if none.
	LocalAddr() string
}

// defaultProbeTimeout bounds a probe when config leaves it unset.
const defaultProbeTimeout = 2 * time.Second

// NetTransport is a Transport backed by the host's network interfaces.
type NetTransport struct {
	iface        string
	probeAddress string
	probeTimeout time.Duration

	// interfaces lists the host interfaces; replaced in tests.
	interfaces func() ([]netInterface, error)
	dial       func(ctx context.Context, network, address string) (net.Conn, error)

	mu   sync.RWMutex
	addr string
}

// netInterface is the part of net.Interface the transport inspects.
type netInterface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// NewNetTransport builds a transport from the link configuration.
func NewNetTransport(cfg config.LinkConfig) *NetTransport {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	dialer := &net.Dialer{}
	return &NetTransport{
		iface:        cfg.Interface,
		probeAddress: cfg.ProbeAddress,
		probeTimeout: timeout,
		interfaces:   hostInterfaces,
		dial:         dialer.DialContext,
	}
}

// Connect checks the interface and, if configured, dials the probe address.
func (t *NetTransport) Connect(ctx context.Context) error {
	addr, err := t.findAddress()
	if err != nil {
		t.setAddr("")
		return err
	}

	if t.probeAddress != "" {
		probeCtx, cancel := context.WithTimeout(ctx, t.probeTimeout)
		defer cancel()

		conn, err := t.dial(probeCtx, "tcp", t.probeAddress)
		if err != nil {
			t.setAddr("")
			return fmt.Errorf("%w: %s: %w", ErrProbeFailed, t.probeAddress, err)
		}
		conn.Close() //nolint:errcheck // probe only
	}

	t.setAddr(addr)
	return nil
}

// Status re-reads interface state. The probe is not repeated.
func (t *NetTransport) Status() bool {
	if t.LocalAddr() == "" {
		return false
	}
	_, err := t.findAddress()
	return err == nil
}

// LocalAddr returns the address found by the last successful Connect.
func (t *NetTransport) LocalAddr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.addr
}

func (t *NetTransport) setAddr(addr string) {
	t.mu.Lock()
	t.addr = addr
	t.mu.Unlock()
}

// findAddress returns the first usable address on the configured interface,
// or on any up non-loopback interface when none is configured.
func (t *NetTransport) findAddress() (string, error) {
	ifaces, err := t.interfaces()
	if err != nil {
		return "", fmt.Errorf("listing interfaces: %w", err)
	}

	sawUp := false
	for _, iface := range ifaces {
		if t.iface != "" && iface.Name != t.iface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if t.iface == "" && iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		sawUp = true

		if addr := firstAddress(iface.Addrs); addr != "" {
			return addr, nil
		}
	}

	if !sawUp {
		if t.iface != "" {
			return "", fmt.Errorf("%w: %s", ErrNoInterface, t.iface)
		}
		return "", ErrNoInterface
	}
	return "", ErrNoAddress
}

// firstAddress prefers an IPv4 address, falling back to a global IPv6 one.
func firstAddress(addrs []net.Addr) string {
	var v6 string
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
		if v6 == "" {
			v6 = ipNet.IP.String()
		}
	}
	return v6
}

func hostInterfaces() ([]netInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]netInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, netInterface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return out, nil
}
