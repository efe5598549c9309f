package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"github.com/digitloom/digitloom/attest"
	"github.com/digitloom/digitloom/bbp"
	"github.com/digitloom/digitloom/blockstore/bundle"
	"github.com/digitloom/digitloom/blockstore"
	"github.com/digitloom/digitloom/blockstore/registry"
	"github.com/digitloom/digitloom/blockstore/storeconfig"
	"github.com/digitloom/digitloom/dloom"
	"github.com/digitloom/digitloom/formats"
	"github.com/digitloom/digitloom/pipeline"
	"github.com/digitloom/digitloom/scatter"

	_ "github.com/digitloom/digitloom/blockstore/fsstore"
	_ "github.com/digitloom/digitloom/blockstore/grpcstore"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "compute":
		return cmdCompute(args[1:], out, errOut)
	case "hexdigit":
		return cmdHexDigit(args[1:], out, errOut)
	case "info":
		return cmdInfo(args[1:], out, errOut)
	case "unpack":
		return cmdUnpack(args[1:], out, errOut)
	case "scatter":
		return cmdScatter(args[1:], out, errOut)
	case "gather":
		return cmdGather(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "attest":
		return cmdAttest(args[1:], out, errOut)
	case "attest-verify":
		return cmdAttestVerify(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "digitloom: arbitrary-precision digit computation and packaging")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  digitloom compute --spec <expr> --digits <n> [--base 10|16] [--stream] [--verify]")
	fmt.Fprintln(w, "                    [--format txt|json|csv|tsv|ndjson|bin|packed|sqlite|zip] [--out <file>]")
	fmt.Fprintln(w, "                    [--pack <file.dloom>] [--chunk-size <n>] [--hash sha256|blake3]")
	fmt.Fprintln(w, "                    [--compress none|gzip|zstd|lz4] [--encrypt none|aes256gcm|chacha20poly1305]")
	fmt.Fprintln(w, "                    [--password-file <path>]")
	fmt.Fprintln(w, "  digitloom hexdigit --offset <n> [--count <n>]")
	fmt.Fprintln(w, "  digitloom info <file.dloom> [--password-file <path>]")
	fmt.Fprintln(w, "  digitloom unpack <file.dloom> [--offset <n>] [--count <n>] [--format <f>] [--out <file>]")
	fmt.Fprintln(w, "  digitloom scatter <file.dloom> (--backend <name> [backend flags] | --store-config <file>)")
	fmt.Fprintln(w, "  digitloom gather --manifest <CID> --out <file.dloom> (--backend <name> [backend flags] | --store-config <file>)")
	fmt.Fprintln(w, "  digitloom bundle export --manifest <CID> --out <file.tar> (--backend <name> [backend flags] | --store-config <file>)")
	fmt.Fprintln(w, "  digitloom bundle import <file.tar> (--backend <name> [backend flags] | --store-config <file>)")
	fmt.Fprintln(w, "  digitloom key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  digitloom key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  digitloom key list")
	fmt.Fprintln(w, "  digitloom key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  digitloom attest <file.dloom> (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>)")
	fmt.Fprintln(w, "                   [--alg ed25519|dilithium3] [--hash sha256|sha512|sha3-256] [--out <file.att>]")
	fmt.Fprintln(w, "  digitloom attest-verify --att <file.att> [--container <file.dloom>] [--password-file <path>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - --spec accepts a constant name (pi, tau, e, sqrt2, phi, ln2, gamma, catalan,")
	fmt.Fprintln(w, "    zeta2, zeta3) or an expression over them, e.g. 'pi/2 + ln2'")
	fmt.Fprintln(w, "  - --digits -1 streams indefinitely (pi, base 10 only; requires --stream)")
	fmt.Fprintln(w, "  - keys live under ~/.digitloom/keys (0600 seed files)")
	fmt.Fprintln(w, "  - hexdigit extracts isolated hexadecimal digits of pi without computing the prefix")
	fmt.Fprintln(w, "  - --store-config composes several backends from a JSON file; write_policy \"all\"")
	fmt.Fprintln(w, "    replicates every block and requires the backends to agree on its CID")
}

// readPasswordFile loads an encryption password from a file, trimming
// the trailing newline an editor leaves behind.
func readPasswordFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM, so
// interrupted streams still finalize their container as incomplete.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func cmdCompute(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("compute", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var spec string
	var base int
	var digitCount int64
	var stream bool
	var workers int
	var guard int
	var doVerify bool
	var verifySamples int
	var formatName string
	var outPath string
	var packPath string
	var chunkSize int
	var hashName string
	var compressName string
	var encryptName string
	var passwordFile string
	var verbose bool

	fs.StringVar(&spec, "spec", "pi", "Constant name or expression")
	fs.IntVar(&base, "base", 10, "Digit base (10 or 16)")
	fs.Int64Var(&digitCount, "digits", 100, "Fractional digit count (-1 = unbounded, needs --stream)")
	fs.BoolVar(&stream, "stream", false, "Stream digits with the spigot (pi, base 10 only)")
	fs.IntVar(&workers, "workers", 0, "Parallel workers (0 = all CPUs)")
	fs.IntVar(&guard, "guard", 0, "Guard digit override (0 = default)")
	fs.BoolVar(&doVerify, "verify", false, "Cross-check output with an independent algorithm")
	fs.IntVar(&verifySamples, "verify-samples", 0, "Verification sample count (0 = default)")
	fs.StringVar(&formatName, "format", "txt", "Output format")
	fs.StringVar(&outPath, "out", "", "Output file (default stdout; required for sqlite/zip/packed)")
	fs.StringVar(&packPath, "pack", "", "Also write a .dloom container to this path")
	fs.IntVar(&chunkSize, "chunk-size", 1_000_000, "Container digits per chunk")
	fs.StringVar(&hashName, "hash", "sha256", "Container chunk hash (sha256, blake3)")
	fs.StringVar(&compressName, "compress", "none", "Container compression (none, gzip, zstd, lz4)")
	fs.StringVar(&encryptName, "encrypt", "none", "Container encryption (none, aes256gcm, chacha20poly1305)")
	fs.StringVar(&passwordFile, "password-file", "", "File holding the container password")
	fs.BoolVar(&verbose, "v", false, "Verbose progress logging")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	f, err := formats.Parse(formatName)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --format: %v\n", err)
		return 2
	}

	req := pipeline.Request{
		Spec:          spec,
		Base:          base,
		Digits:        digitCount,
		Stream:        stream,
		Workers:       workers,
		Guard:         guard,
		Verify:        doVerify,
		VerifySamples: verifySamples,
	}

	if verbose {
		log, lerr := zap.NewDevelopment()
		if lerr != nil {
			fmt.Fprintf(errOut, "logger: %v\n", lerr)
			return 1
		}
		defer func() { _ = log.Sync() }()
		req.Logger = log
	}

	if packPath != "" {
		password, perr := readPasswordFile(passwordFile)
		if perr != nil {
			fmt.Fprintf(errOut, "read --password-file: %v\n", perr)
			return 1
		}
		hash, herr := dloom.ParseHashID(hashName)
		if herr != nil {
			fmt.Fprintf(errOut, "invalid --hash: %v\n", herr)
			return 2
		}
		comp, cerr := dloom.ParseCompressionID(compressName)
		if cerr != nil {
			fmt.Fprintf(errOut, "invalid --compress: %v\n", cerr)
			return 2
		}
		enc, eerr := dloom.ParseEncryptionID(encryptName)
		if eerr != nil {
			fmt.Fprintf(errOut, "invalid --encrypt: %v\n", eerr)
			return 2
		}
		if enc != dloom.EncryptionNone && password == "" {
			fmt.Fprintln(errOut, "--encrypt requires --password-file")
			return 2
		}
		req.Container = &pipeline.ContainerConfig{
			Path:        packPath,
			ChunkSize:   chunkSize,
			Hash:        hash,
			Compression: comp,
			Encryption:  enc,
			Password:    password,
		}
	}

	// Unbounded or streaming runs write digits as they arrive; fixed
	// runs format the complete sequence afterwards.
	streamToStdout := stream && outPath == "" && f == formats.FormatTxt
	if stream && !streamToStdout && req.Container == nil {
		fmt.Fprintln(errOut, "--stream emits plain text to stdout or a container via --pack")
		return 2
	}
	if streamToStdout {
		req.Batch = func(p []byte) error {
			_, werr := out.Write(p)
			return werr
		}
		fmt.Fprint(out, "3.")
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := pipeline.Run(ctx, req)
	if err != nil {
		if res != nil && res.Truncated {
			if streamToStdout {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(errOut, "interrupted after %d digits: %v\n", res.Emitted, err)
			return 1
		}
		fmt.Fprintf(errOut, "compute: %v\n", err)
		return 1
	}

	if res.Report != nil {
		fmt.Fprintf(errOut, "verified: strategy=%s samples=%d mismatches=%d\n",
			res.Report.Strategy, len(res.Report.Samples), res.Report.Mismatches)
		if !res.Report.Passed {
			fmt.Fprintln(errOut, "VERIFICATION FAILED")
			return 1
		}
	}
	if res.ContainerPath != "" {
		fmt.Fprintf(errOut, "container: %s\n", res.ContainerPath)
	}
	if streamToStdout {
		fmt.Fprintln(out)
		return 0
	}
	if stream {
		// Digits went to the container; nothing further to format.
		fmt.Fprintf(errOut, "streamed %d digits\n", res.Emitted)
		return 0
	}

	output := formats.Output{Spec: res.Spec, Base: res.Base, IntPart: res.IntPart, Frac: res.Frac}
	if outPath != "" {
		if err := formats.WriteFile(outPath, output, f); err != nil {
			fmt.Fprintf(errOut, "write output: %v\n", err)
			return 1
		}
		return 0
	}
	if err := formats.Write(out, output, f); err != nil {
		fmt.Fprintf(errOut, "write output: %v\n", err)
		return 1
	}
	return 0
}

func cmdHexDigit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("hexdigit", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var offset int
	var count int
	fs.IntVar(&offset, "offset", 0, "0-based hex digit offset after the point")
	fs.IntVar(&count, "count", 1, "Number of digits to extract")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := bbp.Digits(ctx, offset, count)
	if err != nil {
		fmt.Fprintf(errOut, "hexdigit: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, res.Digits)
	return 0
}

// openContainerArg parses the common "<file.dloom> [flags]" shape:
// the container path may come before or after the flags.
func openContainerArg(fs *flag.FlagSet, args []string, passwordFile *string, errOut io.Writer) (*dloom.Reader, int) {
	if err := fs.Parse(args); err != nil {
		return nil, 2
	}
	// flag parsing stops at the first positional, so a leading path
	// leaves the flags unparsed; take the path and parse the rest.
	path := fs.Arg(0)
	if fs.NArg() > 1 {
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			return nil, 2
		}
		if fs.NArg() != 0 {
			fmt.Fprintf(errOut, "expected exactly one container file argument\n")
			return nil, 2
		}
	}
	if path == "" {
		fmt.Fprintf(errOut, "expected exactly one container file argument\n")
		return nil, 2
	}
	password, err := readPasswordFile(*passwordFile)
	if err != nil {
		fmt.Fprintf(errOut, "read --password-file: %v\n", err)
		return nil, 1
	}
	r, err := dloom.OpenFile(path, dloom.ReaderOptions{Password: password})
	if err != nil {
		fmt.Fprintf(errOut, "open container: %v\n", err)
		return nil, 1
	}
	return r, 0
}

func cmdInfo(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(errOut)
	passwordFile := fs.String("password-file", "", "File holding the container password")

	r, code := openContainerArg(fs, args, passwordFile, errOut)
	if r == nil {
		return code
	}
	defer r.Close()

	h := r.Header()
	fmt.Fprintf(out, "spec:         %s\n", h.Spec)
	fmt.Fprintf(out, "base:         %d\n", h.Base)
	fmt.Fprintf(out, "chunk-size:   %d\n", h.ChunkSize)
	if h.Requested == dloom.UnboundedDigits {
		fmt.Fprintf(out, "requested:    unbounded\n")
	} else {
		fmt.Fprintf(out, "requested:    %d\n", h.Requested)
	}
	fmt.Fprintf(out, "digits:       %d\n", r.TotalDigits())
	fmt.Fprintf(out, "chunks:       %d\n", r.ChunkCount())
	fmt.Fprintf(out, "complete:     %v\n", r.Complete())
	fmt.Fprintf(out, "hash:         %s\n", h.Hash)
	fmt.Fprintf(out, "compression:  %s\n", h.Compression)
	fmt.Fprintf(out, "encryption:   %s\n", h.Encryption)
	fmt.Fprintf(out, "info-bytes:   %.0f\n", formats.InfoBytes(h.Base, int64(r.TotalDigits())))
	return 0
}

func cmdUnpack(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("unpack", flag.ContinueOnError)
	fs.SetOutput(errOut)

	passwordFile := fs.String("password-file", "", "File holding the container password")
	offset := fs.Uint64("offset", 0, "First digit offset")
	count := fs.Int64("count", -1, "Digit count (-1 = all remaining)")
	formatName := fs.String("format", "txt", "Output format")
	outPath := fs.String("out", "", "Output file (default stdout)")

	r, code := openContainerArg(fs, args, passwordFile, errOut)
	if r == nil {
		return code
	}
	defer r.Close()

	f, err := formats.Parse(*formatName)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --format: %v\n", err)
		return 2
	}

	n := uint64(0)
	if *count < 0 {
		if *offset > r.TotalDigits() {
			fmt.Fprintf(errOut, "offset %d beyond %d stored digits\n", *offset, r.TotalDigits())
			return 1
		}
		n = r.TotalDigits() - *offset
	} else {
		n = uint64(*count)
	}

	frac, err := r.ReadDigits(*offset, n)
	if err != nil {
		fmt.Fprintf(errOut, "read digits: %v\n", err)
		return 1
	}

	h := r.Header()
	// Containers store fractional digits only; the integer part is
	// implied by the spec string and rendered as unknown here.
	output := formats.Output{Spec: h.Spec, Base: h.Base, IntPart: "-", Frac: frac}
	if *outPath != "" {
		if err := formats.WriteFile(*outPath, output, f); err != nil {
			fmt.Fprintf(errOut, "write output: %v\n", err)
			return 1
		}
		return 0
	}
	if f == formats.FormatTxt {
		// Raw digit characters without the "int." prefix: the slice
		// may start mid-stream.
		if _, err := out.Write(frac); err != nil {
			fmt.Fprintf(errOut, "write output: %v\n", err)
			return 1
		}
		fmt.Fprintln(out)
		return 0
	}
	if err := formats.Write(out, output, f); err != nil {
		fmt.Fprintf(errOut, "write output: %v\n", err)
		return 1
	}
	return 0
}

// openStore opens a block store for a subcommand. With --store-config the
// store is composed from the JSON config file (possibly several backends
// under a write policy); --backend then selects the preferred write backend,
// and only when set explicitly. Without a config file the single named
// backend is opened from its command-line flags.
func openStore(fs *flag.FlagSet, backend, configPath string, errOut io.Writer) (blockstore.Store, func() error, int) {
	if configPath != "" {
		preferred := ""
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "backend" {
				preferred = backend
			}
		})
		cfg, err := storeconfig.LoadFile(configPath)
		if err != nil {
			fmt.Fprintf(errOut, "load store config: %v\n", err)
			return nil, nil, 1
		}
		store, closeFn, err := cfg.Open(registry.UsageCLI, preferred)
		if err != nil {
			fmt.Fprintf(errOut, "open store config: %v\n", err)
			return nil, nil, 1
		}
		return store, closeFn, 0
	}
	store, closeFn, err := registry.Open(backend, registry.UsageCLI)
	if err != nil {
		fmt.Fprintf(errOut, "open backend: %v\n", err)
		return nil, nil, 1
	}
	return store, closeFn, 0
}

func cmdScatter(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("scatter", flag.ContinueOnError)
	fs.SetOutput(errOut)

	backend := fs.String("backend", "fs", "Block store backend")
	storeConfig := fs.String("store-config", "", "JSON store config file (overrides backend flags)")
	passwordFile := fs.String("password-file", "", "File holding the container password")
	registry.RegisterFlags(fs, registry.UsageCLI)

	r, code := openContainerArg(fs, args, passwordFile, errOut)
	if r == nil {
		return code
	}
	defer r.Close()

	store, closeFn, code := openStore(fs, *backend, *storeConfig, errOut)
	if store == nil {
		return code
	}
	if closeFn != nil {
		defer closeFn()
	}

	id, m, err := scatter.Scatter(store, r)
	if err != nil {
		fmt.Fprintf(errOut, "scatter: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "scattered %d chunks (%d digits)\n", len(m.Chunks), m.TotalDigits)
	fmt.Fprintln(out, id)
	return 0
}

func cmdGather(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("gather", flag.ContinueOnError)
	fs.SetOutput(errOut)

	backend := fs.String("backend", "fs", "Block store backend")
	storeConfig := fs.String("store-config", "", "JSON store config file (overrides backend flags)")
	manifest := fs.String("manifest", "", "Manifest CID printed by scatter")
	outPath := fs.String("out", "", "Output container path")
	registry.RegisterFlags(fs, registry.UsageCLI)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *manifest == "" || *outPath == "" {
		fmt.Fprintln(errOut, "usage: digitloom gather --manifest <CID> --out <file.dloom> --backend <name>")
		return 2
	}
	id, err := cid.Decode(*manifest)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --manifest: %v\n", err)
		return 2
	}

	store, closeFn, code := openStore(fs, *backend, *storeConfig, errOut)
	if store == nil {
		return code
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(errOut, "create output: %v\n", err)
		return 1
	}
	m, err := scatter.Gather(store, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(errOut, "gather: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "gathered %d chunks (%d digits) into %s\n", len(m.Chunks), m.TotalDigits, *outPath)
	return 0
}

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: digitloom bundle <export|import> ...")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	backend := fs.String("backend", "fs", "Block store backend")
	storeConfig := fs.String("store-config", "", "JSON store config file (overrides backend flags)")
	manifest := fs.String("manifest", "", "Manifest CID to export with all its blocks")
	outPath := fs.String("out", "", "Output tar path")
	registry.RegisterFlags(fs, registry.UsageCLI)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *manifest == "" || *outPath == "" {
		fmt.Fprintln(errOut, "usage: digitloom bundle export --manifest <CID> --out <file.tar> --backend <name>")
		return 2
	}
	manifestCID, err := cid.Decode(*manifest)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --manifest: %v\n", err)
		return 2
	}

	store, closeFn, code := openStore(fs, *backend, *storeConfig, errOut)
	if store == nil {
		return code
	}
	if closeFn != nil {
		defer closeFn()
	}

	m, err := scatter.LoadManifest(store, manifestCID)
	if err != nil {
		fmt.Fprintf(errOut, "load manifest: %v\n", err)
		return 1
	}
	blocks, err := m.BlockCIDs()
	if err != nil {
		fmt.Fprintf(errOut, "manifest blocks: %v\n", err)
		return 1
	}
	ids := append([]cid.Cid{manifestCID}, blocks...)

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(errOut, "create output: %v\n", err)
		return 1
	}
	err = bundle.Export(f, store, ids, bundle.ExportOptions{
		Labels:       map[string]cid.Cid{"manifest": manifestCID},
		IncludeIndex: true,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(errOut, "export: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "exported %d blocks to %s\n", len(ids), *outPath)
	return 0
}

func cmdBundleImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)

	backend := fs.String("backend", "fs", "Block store backend")
	storeConfig := fs.String("store-config", "", "JSON store config file (overrides backend flags)")
	registry.RegisterFlags(fs, registry.UsageCLI)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	tarPath := fs.Arg(0)
	if fs.NArg() > 1 {
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			return 2
		}
		if fs.NArg() != 0 {
			tarPath = ""
		}
	}
	if tarPath == "" {
		fmt.Fprintln(errOut, "usage: digitloom bundle import <file.tar> --backend <name>")
		return 2
	}

	store, closeFn, code := openStore(fs, *backend, *storeConfig, errOut)
	if store == nil {
		return code
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.Open(tarPath)
	if err != nil {
		fmt.Fprintf(errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()

	if err := bundle.Import(f, store); err != nil {
		fmt.Fprintf(errOut, "import: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "digitloom key: local attestation key management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  digitloom key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  digitloom key derive --from <name> --role <role> [--force]")
	fmt.Fprintln(w, "  digitloom key list")
	fmt.Fprintln(w, "  digitloom key export --name <name> [--role <role>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var seedHex string
	var force bool
	fs.StringVar(&name, "name", "", "Key name (directory under ~/.digitloom/keys)")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional ed25519 seed as 64 hex chars")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := attest.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	ks, err := attest.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}

	var seed []byte
	if seedHex != "" {
		seed, err = attest.ParseSeedHex(seedHex)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	signerKey, path, err := ks.InitializeRootKey(name, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created root key: %s\n", signerKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var from string
	var role string
	var force bool
	fs.StringVar(&from, "from", "", "Root key name")
	fs.StringVar(&role, "role", "", "Role identifier (e.g. publisher, mirror)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if from == "" {
		fmt.Fprintln(errOut, "missing --from")
		return 2
	}
	if role == "" {
		fmt.Fprintln(errOut, "missing --role")
		return 2
	}
	if err := attest.CheckKeyName(from); err != nil {
		fmt.Fprintf(errOut, "invalid --from: %v\n", err)
		return 2
	}
	if err := attest.CheckRole(role); err != nil {
		fmt.Fprintf(errOut, "invalid --role: %v\n", err)
		return 2
	}
	ks, err := attest.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	signerKey, path, err := ks.DeriveKeyFromRole(from, role, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive role key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created role key: %s\n", signerKey)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := attest.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	entries, err := ks.ListKeys()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s\n", e.Identifier)
		for _, r := range e.Roles {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var name string
	var role string
	fs.StringVar(&name, "name", "", "Key name")
	fs.StringVar(&role, "role", "", "Optional role (exports the derived role key)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" {
		fmt.Fprintln(errOut, "missing --name")
		return 2
	}
	if err := attest.CheckKeyName(name); err != nil {
		fmt.Fprintf(errOut, "invalid --name: %v\n", err)
		return 2
	}
	if role != "" {
		if err := attest.CheckRole(role); err != nil {
			fmt.Fprintf(errOut, "invalid --role: %v\n", err)
			return 2
		}
	}
	ks, err := attest.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	signerKey, err := ks.ExportKey(name, role)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, signerKey)
	return 0
}

func cmdAttest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("attest", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var seedHex string
	var signerName string
	var signerRole string
	var keyFile string
	var alg string
	var hashAlg string
	var outPath string
	passwordFile := fs.String("password-file", "", "File holding the container password")
	fs.StringVar(&seedHex, "seed-hex", "", "Seed as 64 hex chars")
	fs.StringVar(&signerName, "signer", "", "Use a stored key by name (from 'digitloom key init')")
	fs.StringVar(&signerRole, "signer-role", "", "When using --signer, use a derived role key")
	fs.StringVar(&keyFile, "key-file", "", "Path to a seed file created by 'digitloom key init/derive'")
	fs.StringVar(&alg, "alg", "ed25519", "Signature algorithm (ed25519, dilithium3)")
	fs.StringVar(&hashAlg, "hash", "sha256", "Statement hash for dilithium3 (sha256, sha512, sha3-256)")
	fs.StringVar(&outPath, "out", "", "Attestation output path (default <container>.att)")

	containerPath, code := openAttestArgs(fs, args, errOut)
	if code != 0 {
		return code
	}

	if seedHex == "" && signerName == "" && keyFile == "" {
		fmt.Fprintln(errOut, "missing signer: use --seed-hex, --signer, or --key-file")
		return 2
	}
	if seedHex != "" && (signerName != "" || keyFile != "") {
		fmt.Fprintln(errOut, "conflicting signer flags: --seed-hex cannot be combined with --signer or --key-file")
		return 2
	}
	if signerName != "" && keyFile != "" {
		fmt.Fprintln(errOut, "conflicting signer flags: --signer cannot be combined with --key-file")
		return 2
	}

	password, err := readPasswordFile(*passwordFile)
	if err != nil {
		fmt.Fprintf(errOut, "read --password-file: %v\n", err)
		return 1
	}

	ks, err := attest.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 1
	}
	seed, err := ks.LoadSeed(seedHex, signerName, signerRole, keyFile)
	if err != nil {
		fmt.Fprintf(errOut, "invalid signer: %v\n", err)
		return 2
	}

	st, err := attest.StatementForFile(containerPath, password)
	if err != nil {
		fmt.Fprintf(errOut, "statement: %v\n", err)
		return 1
	}

	var att *attest.Attestation
	switch alg {
	case "ed25519":
		att, err = attest.SignEd25519(st, ed25519.NewKeyFromSeed(seed))
	case "dilithium3":
		if len(seed) != mode3.SeedSize {
			fmt.Fprintf(errOut, "dilithium3 needs a %d-byte seed\n", mode3.SeedSize)
			return 2
		}
		var s [mode3.SeedSize]byte
		copy(s[:], seed)
		_, priv := mode3.NewKeyFromSeed(&s)
		att, err = attest.SignDilithium3(st, hashAlg, priv)
	default:
		fmt.Fprintf(errOut, "unknown --alg: %s\n", alg)
		return 2
	}
	if err != nil {
		fmt.Fprintf(errOut, "sign: %v\n", err)
		return 1
	}

	encoded, err := att.Encode()
	if err != nil {
		fmt.Fprintf(errOut, "encode: %v\n", err)
		return 1
	}
	if outPath == "" {
		outPath = containerPath + ".att"
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		fmt.Fprintf(errOut, "write attestation: %v\n", err)
		return 1
	}
	fmt.Fprintf(errOut, "signer: %s\n", att.SignerKey)
	fmt.Fprintln(out, outPath)
	return 0
}

// openAttestArgs parses flags and returns the single positional
// container path. An empty path with a nonzero code reports failure.
func openAttestArgs(fs *flag.FlagSet, args []string, errOut io.Writer) (string, int) {
	if err := fs.Parse(args); err != nil {
		return "", 2
	}
	path := fs.Arg(0)
	if fs.NArg() > 1 {
		if err := fs.Parse(fs.Args()[1:]); err != nil {
			return "", 2
		}
		if fs.NArg() != 0 {
			path = ""
		}
	}
	if path == "" {
		fmt.Fprintln(errOut, "expected exactly one container file argument")
		return "", 2
	}
	return path, 0
}

func cmdAttestVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("attest-verify", flag.ContinueOnError)
	fs.SetOutput(errOut)

	attPath := fs.String("att", "", "Attestation file")
	containerPath := fs.String("container", "", "Container to check the statement against")
	passwordFile := fs.String("password-file", "", "File holding the container password")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *attPath == "" {
		fmt.Fprintln(errOut, "missing --att")
		return 2
	}

	raw, err := os.ReadFile(*attPath)
	if err != nil {
		fmt.Fprintf(errOut, "read attestation: %v\n", err)
		return 1
	}
	att, err := attest.Decode(raw)
	if err != nil {
		fmt.Fprintf(errOut, "decode attestation: %v\n", err)
		return 1
	}

	if *containerPath != "" {
		password, perr := readPasswordFile(*passwordFile)
		if perr != nil {
			fmt.Fprintf(errOut, "read --password-file: %v\n", perr)
			return 1
		}
		if err := att.VerifyAgainstFile(*containerPath, password); err != nil {
			fmt.Fprintf(errOut, "verification failed: %v\n", err)
			return 1
		}
	} else if err := att.Verify(); err != nil {
		fmt.Fprintf(errOut, "verification failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(errOut, "signer: %s\n", att.SignerKey)
	fmt.Fprintf(errOut, "spec: %s base: %d digits: %d complete: %v\n",
		att.Statement.Spec, att.Statement.Base, att.Statement.TotalDigits, att.Statement.Complete)
	fmt.Fprintln(out, "OK")
	return 0
}
