// ABOUTME: UDP multicast transport shared by every agent on the segment.
// ABOUTME: One socket joins the group, sends datagrams, and feeds the receive loop.

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// MaxPayload is the largest datagram Send accepts. It keeps envelopes under
// the common 1500-byte ethernet MTU with headroom for IP and UDP headers.
const MaxPayload = 1400

// bufferSize is the receive buffer handed to the kernel per read.
const bufferSize = 65536

// ErrPayloadTooLarge is returned by Send for datagrams over MaxPayload.
var ErrPayloadTooLarge = errors.New("payload too large")

// Conn is a joined multicast group endpoint. Datagrams sent by any member,
// this process included, are delivered to the receive loop.
type Conn struct {
	udp    *net.UDPConn
	packet *ipv4.PacketConn
	group  *net.UDPAddr
	iface  *net.Interface
	logger *slog.Logger
	closed atomic.Bool
}

// Join binds a reusable UDP socket on the group's port and joins the
// multicast group. Several agents on one host share the port, so the socket
// carries SO_REUSEADDR and SO_REUSEPORT. A failure here is fatal to the
// caller; there is no swarm without the group.
func Join(ctx context.Context, group, ifaceName string, logger *slog.Logger) (*Conn, error) {
	groupAddr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, fmt.Errorf("resolve group address %q: %w", group, err)
	}
	if groupAddr.IP == nil || groupAddr.IP.To4() == nil || !groupAddr.IP.IsMulticast() {
		return nil, fmt.Errorf("address %q is not an IPv4 multicast group", group)
	}

	iface, err := resolveInterface(ifaceName)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", groupAddr.Port))
	if err != nil {
		return nil, fmt.Errorf("bind multicast socket: %w", err)
	}
	udp := pc.(*net.UDPConn)

	packet := ipv4.NewPacketConn(udp)
	if err := packet.JoinGroup(iface, &net.UDPAddr{IP: groupAddr.IP}); err != nil {
		_ = udp.Close()
		return nil, fmt.Errorf("join multicast group %s: %w", groupAddr, err)
	}
	// Loopback delivery lets agents on the same host hear each other.
	if err := packet.SetMulticastLoopback(true); err != nil {
		logger.Warn("could not enable multicast loopback", "error", err)
	}
	if iface != nil {
		if err := packet.SetMulticastInterface(iface); err != nil {
			logger.Warn("could not pin multicast interface", "interface", iface.Name, "error", err)
		}
	}

	logger.Info("joined multicast group", "group", groupAddr.String(), "interface", interfaceName(iface))

	return &Conn{
		udp:    udp,
		packet: packet,
		group:  groupAddr,
		iface:  iface,
		logger: logger,
	}, nil
}

// reuseControl sets the address and port reuse options before bind.
func reuseControl(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if opErr != nil {
			return
		}
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}

// resolveInterface finds a network interface by name or by one of its IP
// addresses. Empty input selects the system default.
func resolveInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, nil
	}
	if iface, err := net.InterfaceByName(name); err == nil {
		return iface, nil
	}
	ip := net.ParseIP(name)
	if ip == nil {
		return nil, fmt.Errorf("unknown network interface %q", name)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list network interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no network interface has address %q", name)
}

func interfaceName(iface *net.Interface) string {
	if iface == nil {
		return "default"
	}
	return iface.Name
}

// Group returns the multicast address this connection is joined to.
func (c *Conn) Group() *net.UDPAddr { return c.group }

// LocalAddr returns the bound local address.
func (c *Conn) LocalAddr() net.Addr { return c.udp.LocalAddr() }

// Send writes one datagram to the group. Payloads over MaxPayload are
// rejected before touching the socket.
func (c *Conn) Send(payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(payload), MaxPayload)
	}
	n, err := c.udp.WriteToUDP(payload, c.group)
	if err != nil {
		return fmt.Errorf("send to %s: %w", c.group, err)
	}
	c.logger.Debug("sent datagram", "bytes", n, "group", c.group.String())
	return nil
}

// ReceiveLoop reads datagrams until the connection closes or ctx is done,
// invoking handler with a private copy of each payload. Read errors are
// logged and skipped; only closing the socket ends the loop.
func (c *Conn) ReceiveLoop(ctx context.Context, handler func(payload []byte, from net.Addr)) error {
	buf := make([]byte, bufferSize)
	for {
		n, from, err := c.udp.ReadFromUDP(buf)
		if err != nil {
			if c.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("receive failed", "error", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		handler(payload, from)
	}
}

// Close leaves the group and closes the socket, which unblocks ReceiveLoop.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = c.packet.LeaveGroup(c.iface, &net.UDPAddr{IP: c.group.IP})
	return c.udp.Close()
}
