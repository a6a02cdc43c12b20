// cmd/mirror/main.go
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomeksn/fitnessmirror/discovery"
	"github.com/tomeksn/fitnessmirror/pipeline"
	"github.com/tomeksn/fitnessmirror/store"
	"github.com/tomeksn/fitnessmirror/web"
)

func main() {
	addr := flag.String("addr", ":8080", "signaling server listen address")
	dbPath := flag.String("db", "fitnessmirror.db", "path to the device preference database")
	deviceName := flag.String("name", "fitnessmirror", "device name advertised by the discovery beacon")
	noDiscovery := flag.Bool("no-discovery", false, "disable the UDP discovery beacon")
	flag.Parse()

	prefs, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open preference store: %v", err)
	}
	defer prefs.Close()

	lens, err := prefs.LoadLens()
	if err != nil {
		log.Fatalf("load lens preference: %v", err)
	}

	listenAddr := *addr
	if !flagPassed("addr") {
		if lastPort, err := prefs.LoadLastPort(); err != nil {
			log.Printf("load last port preference: %v", err)
		} else if lastPort != 0 {
			listenAddr = fmt.Sprintf(":%d", lastPort)
		}
	}

	cfg := pipeline.DefaultConfig()
	cfg.Signaling.Addr = listenAddr
	cfg.Signaling.SinkPage = web.IndexHTML()
	cfg.InitialLens = lens
	cfg.Store = prefs

	ctrl := pipeline.New(cfg)
	ctrl.OnStateChange = func(s pipeline.State) { log.Printf("pipeline state -> %s", s) }
	ctrl.OnError = func(kind string, err error) { log.Printf("pipeline error [%s]: %v", kind, err) }

	if err := ctrl.Start(); err != nil {
		log.Fatalf("start pipeline: %v", err)
	}

	var beacon *discovery.Beacon
	if !*noDiscovery {
		beacon = discovery.New(portFromAddr(listenAddr), *deviceName)
		if err := beacon.Start(); err != nil {
			log.Printf("discovery beacon disabled: %v", err)
			beacon = nil
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")

	if beacon != nil {
		beacon.Stop()
	}
	if err := ctrl.Stop(); err != nil {
		log.Printf("stop pipeline: %v", err)
	}
}

// flagPassed reports whether the named flag was explicitly set on the
// command line, so a saved preference can be used as a fallback
// default without overriding an explicit -addr.
func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}

// portFromAddr extracts the numeric port from a ":8080"-style listen
// address for the discovery beacon's payload.
func portFromAddr(addr string) int {
	port := 8080
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			n := 0
			for _, c := range addr[i+1:] {
				if c < '0' || c > '9' {
					return port
				}
				n = n*10 + int(c-'0')
			}
			return n
		}
	}
	return port
}
