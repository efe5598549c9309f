package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"

	"github.com/digitloom/digitloom/blockstore"
	"github.com/digitloom/digitloom/blockstore/grpcstore"
	"github.com/digitloom/digitloom/blockstore/registry"
	"github.com/digitloom/digitloom/blockstore/storeconfig"

	_ "github.com/digitloom/digitloom/blockstore/fsstore"
)

func main() {
	fs := flag.NewFlagSet("digitloom-blockd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7355", "listen address")
	backend := fs.String("backend", "fs", "block store backend name")
	storeConfig := fs.String("store-config", "", "JSON store config file (overrides backend flags)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	registry.RegisterFlags(fs, registry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	var (
		store   blockstore.Store
		closeFn func() error
		err     error
	)
	if *storeConfig != "" {
		var cfg storeconfig.Config
		cfg, err = storeconfig.LoadFile(*storeConfig)
		if err == nil {
			store, closeFn, err = cfg.Open(registry.UsageDaemon, "")
		}
	} else {
		store, closeFn, err = registry.Open(*backend, registry.UsageDaemon)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcstore.RegisterBlockStoreServer(s, &grpcstore.Server{Store: store})

	fmt.Fprintf(os.Stderr, "digitloom-blockd listening on %s (backend=%s)\n", lis.Addr().String(), *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
