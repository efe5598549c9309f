package fsstore

import (
	"flag"
	"fmt"

	"github.com/digitloom/digitloom/blockstore"
	"github.com/digitloom/digitloom/blockstore/registry"
)

var (
	flagDir string
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "fs",
		Description: "Local filesystem block store (directory)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "fs-dir", "", "Filesystem store directory (for --backend=fs)")
		},
		Open: func() (blockstore.Store, func() error, error) {
			if flagDir == "" {
				return nil, nil, fmt.Errorf("missing --fs-dir")
			}
			s, err := New(flagDir)
			return s, nil, err
		},
	})
}
