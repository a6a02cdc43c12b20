// Package discovery broadcasts a periodic UDP beacon so sink devices
// on the same LAN can find this source without the user typing an IP
// address (§6: "out-of-scope component mentioned for completeness" —
// documented in the wire format, so implemented here rather than
// skipped, per the spec's own distinction between Non-goals and
// merely-undetailed features).
package discovery

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"syscall"
	"time"
)

// BroadcastAddr and Interval match §6's documented beacon contract.
const (
	BroadcastAddr = "255.255.255.255:8081"
	Interval      = 2 * time.Second
	messageType   = "FITNESS_MIRROR_DISCOVERY"
)

// beacon is the JSON payload broadcast every Interval.
type beacon struct {
	Type string `json:"type"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
	Name string `json:"name"`
}

// Beacon periodically broadcasts this device's reachability.
type Beacon struct {
	httpPort   int
	deviceName string

	stop chan struct{}
	done chan struct{}
}

// New creates a Beacon advertising httpPort (the signaling server's
// port) under deviceName.
func New(httpPort int, deviceName string) *Beacon {
	return &Beacon{httpPort: httpPort, deviceName: deviceName, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start begins broadcasting on a background goroutine. It returns
// immediately; call Stop to end broadcasting.
func (b *Beacon) Start() error {
	addr, err := net.ResolveUDPAddr("udp4", BroadcastAddr)
	if err != nil {
		return fmt.Errorf("discovery: resolve broadcast addr: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("discovery: dial broadcast socket: %w", err)
	}
	if err := setBroadcast(conn); err != nil {
		conn.Close()
		return fmt.Errorf("discovery: set SO_BROADCAST: %w", err)
	}

	go func() {
		defer close(b.done)
		defer conn.Close()
		ticker := time.NewTicker(Interval)
		defer ticker.Stop()
		for {
			b.sendOnce(conn)
			select {
			case <-b.stop:
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

func (b *Beacon) sendOnce(conn *net.UDPConn) {
	payload := beacon{
		Type: messageType,
		IP:   localIP(),
		Port: b.httpPort,
		Name: b.deviceName,
	}
	msg, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[discovery] encode beacon: %v", err)
		return
	}
	if _, err := conn.Write(msg); err != nil {
		log.Printf("[discovery] send beacon: %v", err)
	}
}

// Stop ends broadcasting and waits for the goroutine to exit.
func (b *Beacon) Stop() {
	close(b.stop)
	<-b.done
}

// setBroadcast sets SO_BROADCAST on conn's underlying socket. Without
// it, sendto() to a limited-broadcast address (255.255.255.255) fails
// with EACCES on Linux; net.DialUDP never sets this option itself.
func setBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return sockErr
}

// localIP returns this host's outbound IPv4 address, falling back to
// "0.0.0.0" if none can be determined (a beacon with no usable address
// is still informational and must not crash the caller).
func localIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "0.0.0.0"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "0.0.0.0"
	}
	return addr.IP.String()
}
