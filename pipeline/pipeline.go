// Package pipeline orchestrates a digit computation end to end: parse
// the request spec, dispatch to an engine, extract digits, optionally verify
// them, and optionally pack them into a container.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/digitloom/digitloom/chudnovsky"
	"github.com/digitloom/digitloom/constant"
	"github.com/digitloom/digitloom/digits"
	"github.com/digitloom/digitloom/dloom"
	"github.com/digitloom/digitloom/numeric"
	"github.com/digitloom/digitloom/series"
	"github.com/digitloom/digitloom/spigot"
	"github.com/digitloom/digitloom/verify"
)

// batchSize is the number of digit characters delivered per Batch
// callback and per container write during streaming.
const batchSize = 4096

// ContainerConfig requests container output for the computed digits.
type ContainerConfig struct {
	Path        string
	ChunkSize   int
	Hash        dloom.HashID
	Compression dloom.CompressionID
	Encryption  dloom.EncryptionID
	Password    string
}

// Request describes one digit computation.
type Request struct {
	// Spec is a constant name ("pi", "zeta3") or an arithmetic
	// expression over constants ("pi/2 + ln2").
	Spec string
	// Base is the output digit base, 10 or 16.
	Base int
	// Digits is the fractional digit count. Negative means unbounded
	// and requires Stream.
	Digits int64
	// Stream selects the streaming spigot. Only pi in base 10 can
	// stream.
	Stream bool
	// Workers bounds parallel series summation. Zero means GOMAXPROCS.
	Workers int
	// Guard overrides the default guard digit count when positive.
	Guard int
	// Verify runs an independent cross-check over the output.
	Verify bool
	// VerifySamples overrides the default sample count when positive.
	VerifySamples int
	// Container, when non-nil, packs the digit stream into a container
	// file as it is produced.
	Container *ContainerConfig
	// Batch, when non-nil, receives digit characters in order as they
	// become available.
	Batch func(p []byte) error
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Result is the outcome of a run.
type Result struct {
	Spec string
	Base int
	// IntPart is the integer part rendered in Base. "3" for pi.
	IntPart string
	// Frac holds the fractional digit characters. Nil for unbounded
	// streaming runs, where digits go only to Batch and the container.
	Frac []byte
	// Emitted counts fractional digits produced, including partial
	// output cut short by cancellation.
	Emitted uint64
	// Truncated marks a run stopped before Digits were produced.
	Truncated bool
	// Report is the verification outcome when Verify was requested.
	Report *verify.Report
	// ContainerPath echoes the container location when one was written.
	ContainerPath string
}

// Run executes the request. On cancellation mid-stream the container,
// if any, is finalized as incomplete and the context error is returned
// alongside a truncated Result.
func Run(ctx context.Context, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if err := constant.CheckBase(req.Base); err != nil {
		return nil, err
	}
	node, err := constant.ParseExpr(req.Spec)
	if err != nil {
		return nil, err
	}

	isPi := node.Kind == constant.NodeConst && node.Const == constant.Pi
	if req.Digits < 0 && !req.Stream {
		return nil, fmt.Errorf("pipeline: unbounded digit count requires streaming")
	}
	if req.Stream && !(isPi && req.Base == 10) {
		return nil, fmt.Errorf("pipeline: streaming supports only pi in base 10")
	}

	if req.Stream {
		return runStream(ctx, req, log)
	}
	return runFixed(ctx, req, node, isPi, log)
}

func runFixed(ctx context.Context, req Request, node *constant.Node, isPi bool, log *zap.Logger) (*Result, error) {
	guard := req.Guard
	if guard <= 0 {
		guard = numeric.DefaultGuard
	}
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	budget, err := numeric.NewBudget(int(req.Digits), req.Base, guard)
	if err != nil {
		return nil, err
	}

	log.Info("computing digits",
		zap.String("spec", req.Spec),
		zap.Int("base", req.Base),
		zap.Int64("digits", req.Digits),
		zap.Int("guard", guard),
		zap.Int("workers", workers))

	seq, err := computeAndExtract(ctx, node, isPi, budget, workers, int(req.Digits))
	if errors.Is(err, digits.ErrRecomputeRequired) {
		// One retry with a doubled guard margin.
		log.Warn("guard margin exhausted, recomputing", zap.Int("guard", budget.Widen().Guard))
		seq, err = computeAndExtract(ctx, node, isPi, budget.Widen(), workers, int(req.Digits))
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		Spec:    req.Spec,
		Base:    req.Base,
		IntPart: digits.FormatInt(seq.IntPart, seq.Base),
		Frac:    seq.Frac,
		Emitted: uint64(len(seq.Frac)),
	}

	if req.Verify {
		report, err := verify.Sequence(ctx, node, seq, verify.Options{Samples: req.VerifySamples})
		if err != nil {
			return nil, err
		}
		res.Report = report
		if !report.Passed {
			log.Error("verification failed",
				zap.String("strategy", string(report.Strategy)),
				zap.Int("mismatches", report.Mismatches))
		}
	}

	if req.Batch != nil {
		if err := req.Batch(seq.Frac); err != nil {
			return nil, err
		}
	}

	if req.Container != nil {
		if err := writeContainer(req, seq.Frac, false); err != nil {
			return nil, err
		}
		res.ContainerPath = req.Container.Path
		log.Info("container written",
			zap.String("path", req.Container.Path),
			zap.Uint64("digits", res.Emitted))
	}
	return res, nil
}

func computeAndExtract(ctx context.Context, node *constant.Node, isPi bool, budget numeric.Budget, workers, n int) (*digits.Sequence, error) {
	var x numeric.Real
	var err error
	switch {
	case isPi:
		x, err = chudnovsky.Pi(ctx, budget, workers)
	case node.Kind == constant.NodeConst:
		x, err = series.Compute(node.Const, budget)
	default:
		x, err = series.EvalExpr(node, budget)
	}
	if err != nil {
		return nil, err
	}
	return digits.Extract(x, n)
}

func runStream(ctx context.Context, req Request, log *zap.Logger) (*Result, error) {
	res := &Result{Spec: req.Spec, Base: req.Base, IntPart: "3"}

	var w *dloom.Writer
	var f *os.File
	if req.Container != nil {
		header := dloom.Header{
			Spec:        req.Spec,
			Base:        req.Base,
			ChunkSize:   req.Container.ChunkSize,
			Requested:   req.Digits,
			Hash:        req.Container.Hash,
			Compression: req.Container.Compression,
			Encryption:  req.Container.Encryption,
		}
		if req.Digits < 0 {
			header.Requested = dloom.UnboundedDigits
		}
		var err error
		f, err = os.Create(req.Container.Path)
		if err != nil {
			return nil, err
		}
		w, err = dloom.NewWriter(f, header, dloom.WriterOptions{Password: req.Container.Password})
		if err != nil {
			f.Close()
			return nil, err
		}
		res.ContainerPath = req.Container.Path
	}

	log.Info("streaming digits",
		zap.String("spec", req.Spec),
		zap.Int64("digits", req.Digits))

	buf := make([]byte, 0, batchSize)
	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if req.Batch != nil {
			if err := req.Batch(buf); err != nil {
				return err
			}
		}
		if w != nil {
			if err := w.WriteDigits(buf); err != nil {
				return err
			}
		}
		buf = buf[:0]
		return nil
	}

	s := spigot.New()
	// The spigot's first emitted digit is the integer part 3.
	first := s.Next()
	if first != 3 {
		return nil, fmt.Errorf("pipeline: spigot produced %d as integer part", first)
	}

	streamErr := s.Emit(ctx, req.Digits, func(d int) error {
		buf = append(buf, digits.Alphabet[d])
		res.Emitted++
		if len(buf) == batchSize {
			return flush()
		}
		return nil
	})

	if ferr := flush(); ferr != nil && streamErr == nil {
		streamErr = ferr
	}

	if w != nil {
		if streamErr != nil {
			w.MarkIncomplete()
		}
		closeErr := w.Close()
		if syncErr := f.Close(); closeErr == nil {
			closeErr = syncErr
		}
		if closeErr != nil && streamErr == nil {
			streamErr = closeErr
		}
	}

	if streamErr != nil {
		res.Truncated = true
		log.Warn("stream interrupted",
			zap.Uint64("emitted", res.Emitted),
			zap.Error(streamErr))
		return res, streamErr
	}
	return res, nil
}

func writeContainer(req Request, frac []byte, incomplete bool) error {
	cfg := req.Container
	f, err := os.Create(cfg.Path)
	if err != nil {
		return err
	}
	header := dloom.Header{
		Spec:        req.Spec,
		Base:        req.Base,
		ChunkSize:   cfg.ChunkSize,
		Requested:   req.Digits,
		Hash:        cfg.Hash,
		Compression: cfg.Compression,
		Encryption:  cfg.Encryption,
	}
	w, err := dloom.NewWriter(f, header, dloom.WriterOptions{Password: cfg.Password})
	if err != nil {
		f.Close()
		return err
	}
	if err := w.WriteDigits(frac); err != nil {
		w.MarkIncomplete()
		_ = w.Close()
		f.Close()
		return err
	}
	if incomplete {
		w.MarkIncomplete()
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
