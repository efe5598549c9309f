// Package verify cross-checks produced digit sequences. π digits are
// checked against independent algorithms (the BBP random-access
// extractor in base 16, the streaming spigot in base 10); every other
// constant or expression is checked by stability sampling, recomputing
// a suffix window at increased guard precision to expose undetected
// guard exhaustion. Verification only ever reports: it never mutates
// or discards the sequence under test.
package verify

import (
	"context"
	"fmt"

	"github.com/digitloom/digitloom/bbp"
	"github.com/digitloom/digitloom/constant"
	"github.com/digitloom/digitloom/digits"
	"github.com/digitloom/digitloom/numeric"
	"github.com/digitloom/digitloom/series"
	"github.com/digitloom/digitloom/spigot"
)

// Strategy names the cross-check algorithm used for a report.
type Strategy string

const (
	// StrategyBBP resamples positions through the random-access
	// hexadecimal extractor.
	StrategyBBP Strategy = "bbp"
	// StrategySpigot replays a prefix through the streaming spigot.
	StrategySpigot Strategy = "spigot"
	// StrategyStability recomputes a suffix window at increased
	// guard precision.
	StrategyStability Strategy = "stability"
)

// DefaultSamples is the sample count used when the request does not
// specify one.
const DefaultSamples = 16

// stabilityGuardBoost is the additional guard carried by the
// stability recomputation.
const stabilityGuardBoost = 20

// Sample records one checked position.
type Sample struct {
	// Position is the 0-based fractional digit offset.
	Position int
	// Want is the independently computed digit character.
	Want byte
	// Got is the digit character under test.
	Got byte
	// Match reports Want == Got.
	Match bool
}

// Report is the outcome of a verification pass.
type Report struct {
	Strategy   Strategy
	Samples    []Sample
	Mismatches int
	// Passed is the overall verdict: every sampled position matched.
	Passed bool
}

// Options controls sampling.
type Options struct {
	// Samples is the number of positions to check. Zero selects
	// DefaultSamples. Positions are evenly spaced across the
	// sequence, deterministic for a given length and count.
	Samples int
}

// Sequence verifies a produced digit sequence for the given source
// expression. A mismatch never returns an error: errors report only
// the inability to run the cross-check itself.
func Sequence(ctx context.Context, node *constant.Node, seq *digits.Sequence, opts Options) (*Report, error) {
	if seq == nil {
		return nil, fmt.Errorf("verify: nil sequence")
	}
	samples := opts.Samples
	if samples <= 0 {
		samples = DefaultSamples
	}
	if samples > len(seq.Frac) {
		samples = len(seq.Frac)
	}
	if samples == 0 {
		return &Report{Strategy: StrategyStability, Passed: true}, nil
	}

	if node.Kind == constant.NodeConst && node.Const == constant.Pi {
		switch seq.Base {
		case 16:
			return checkBBP(ctx, seq, samples)
		case 10:
			return checkSpigot(ctx, seq, samples)
		}
	}
	return checkStability(ctx, node, seq, samples)
}

// checkBBP resamples evenly spaced positions via the random-access
// extractor. Positions are exact: a mismatch at any offset is a real
// disagreement between two independent algorithms.
func checkBBP(ctx context.Context, seq *digits.Sequence, samples int) (*Report, error) {
	rep := &Report{Strategy: StrategyBBP, Passed: true}
	step := len(seq.Frac) / samples
	if step == 0 {
		step = 1
	}
	for pos := 0; pos < len(seq.Frac) && len(rep.Samples) < samples; pos += step {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, _, err := bbp.Digit(pos)
		if err != nil {
			return nil, fmt.Errorf("verify: bbp digit %d: %w", pos, err)
		}
		want := lowerHex(bbp.HexAlphabet[d])
		rep.record(pos, want, seq.Frac[pos])
	}
	return rep, nil
}

// checkSpigot replays the sequence prefix through the streaming
// spigot. The spigot yields digits in order, so the "samples" budget
// bounds the prefix length rather than scattering positions.
func checkSpigot(ctx context.Context, seq *digits.Sequence, samples int) (*Report, error) {
	rep := &Report{Strategy: StrategySpigot, Passed: true}
	s := spigot.New()
	s.Next() // integer digit 3
	for pos := 0; pos < samples; pos++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		want := digits.Alphabet[s.Next()]
		rep.record(pos, want, seq.Frac[pos])
	}
	return rep, nil
}

// checkStability recomputes the value at boosted guard precision and
// compares a suffix window ending at the last produced digit, where
// guard exhaustion in the original run would surface first.
func checkStability(ctx context.Context, node *constant.Node, seq *digits.Sequence, samples int) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep := &Report{Strategy: StrategyStability, Passed: true}
	n := len(seq.Frac)
	budget, err := numeric.NewBudget(n, seq.Base, numeric.DefaultGuard+stabilityGuardBoost)
	if err != nil {
		return nil, err
	}
	val, err := series.EvalExpr(node, budget)
	if err != nil {
		return nil, fmt.Errorf("verify: stability recompute: %w", err)
	}
	ref, err := digits.Extract(val, n)
	if err != nil {
		return nil, fmt.Errorf("verify: stability extract: %w", err)
	}
	start := n - samples
	for pos := start; pos < n; pos++ {
		rep.record(pos, ref.Frac[pos], seq.Frac[pos])
	}
	return rep, nil
}

func (r *Report) record(pos int, want, got byte) {
	match := want == got
	if !match {
		r.Mismatches++
		r.Passed = false
	}
	r.Samples = append(r.Samples, Sample{Position: pos, Want: want, Got: got, Match: match})
}

func lowerHex(c byte) byte {
	if c >= 'A' && c <= 'F' {
		return c - 'A' + 'a'
	}
	return c
}
