package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/digitloom/digitloom/dloom"
)

const pi50 = "14159265358979323846264338327950288419716939937510"

func TestRunPiBase10(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Spec:   "pi",
		Base:   10,
		Digits: 50,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.IntPart != "3" {
		t.Errorf("integer part = %q", res.IntPart)
	}
	if string(res.Frac) != pi50 {
		t.Errorf("digits = %q, want %q", res.Frac, pi50)
	}
	if res.Emitted != 50 || res.Truncated {
		t.Errorf("emitted = %d, truncated = %v", res.Emitted, res.Truncated)
	}
}

func TestRunPiBase16(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Spec:   "pi",
		Base:   16,
		Digits: 8,
		Verify: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(res.Frac) != "243f6a88" {
		t.Errorf("hex digits = %q, want 243f6a88", res.Frac)
	}
	if res.Report == nil || !res.Report.Passed {
		t.Errorf("verification report: %+v", res.Report)
	}
}

func TestRunExpression(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Spec:   "pi/2 + pi/2",
		Base:   10,
		Digits: 30,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(res.Frac) != pi50[:30] {
		t.Errorf("pi/2 + pi/2 digits = %q, want %q", res.Frac, pi50[:30])
	}
}

func TestRunWithVerification(t *testing.T) {
	res, err := Run(context.Background(), Request{
		Spec:   "pi",
		Base:   10,
		Digits: 100,
		Verify: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Report == nil {
		t.Fatal("expected verification report")
	}
	if !res.Report.Passed || res.Report.Mismatches != 0 {
		t.Errorf("report: %+v", res.Report)
	}
}

func TestStreamMatchesFixedComputation(t *testing.T) {
	var streamed bytes.Buffer
	res, err := Run(context.Background(), Request{
		Spec:   "pi",
		Base:   10,
		Digits: 50,
		Stream: true,
		Batch:  func(p []byte) error { streamed.Write(p); return nil },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if streamed.String() != pi50 {
		t.Errorf("streamed digits = %q", streamed.String())
	}
	if res.Emitted != 50 {
		t.Errorf("emitted = %d", res.Emitted)
	}
}

func TestRunPacksContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi.dloom")
	res, err := Run(context.Background(), Request{
		Spec:   "pi",
		Base:   10,
		Digits: 50,
		Container: &ContainerConfig{
			Path:        path,
			ChunkSize:   10,
			Compression: dloom.CompressionZstd,
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ContainerPath != path {
		t.Errorf("container path = %q", res.ContainerPath)
	}

	r, err := dloom.OpenFile(path, dloom.ReaderOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer r.Close()
	if r.ChunkCount() != 5 || !r.Complete() {
		t.Errorf("chunks = %d, complete = %v", r.ChunkCount(), r.Complete())
	}
	got, err := r.ReadDigits(0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != pi50 {
		t.Errorf("container digits = %q", got)
	}
}

func TestStreamCancellationFinalizesContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.dloom")
	ctx, cancel := context.WithCancel(context.Background())

	res, err := Run(ctx, Request{
		Spec:   "pi",
		Base:   10,
		Digits: -1,
		Stream: true,
		Container: &ContainerConfig{
			Path:      path,
			ChunkSize: 10,
		},
		Batch: func(p []byte) error {
			// Cancel after the first flushed batch.
			cancel()
			return nil
		},
	})
	if err == nil {
		t.Fatal("expected context error")
	}
	if !res.Truncated {
		t.Error("expected truncated result")
	}
	if res.Emitted == 0 {
		t.Error("expected some digits before cancellation")
	}

	r, err := dloom.OpenFile(path, dloom.ReaderOptions{})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer r.Close()
	if r.Complete() {
		t.Error("cancelled stream must not read back complete")
	}
	if r.TotalDigits() < 50 {
		t.Fatalf("container holds %d digits, want at least one batch", r.TotalDigits())
	}
	got, err := r.ReadDigits(0, 50)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != pi50 {
		t.Errorf("partial digits disagree with pi: %q", got)
	}
}

func TestRunRejectsBadRequests(t *testing.T) {
	if _, err := Run(context.Background(), Request{Spec: "pi", Base: 7, Digits: 10}); err == nil {
		t.Error("expected base error")
	}
	if _, err := Run(context.Background(), Request{Spec: "e", Base: 10, Digits: 10, Stream: true}); err == nil {
		t.Error("expected streaming error for non-pi")
	}
	if _, err := Run(context.Background(), Request{Spec: "pi", Base: 10, Digits: -1}); err == nil {
		t.Error("expected error for unbounded without streaming")
	}
	if _, err := Run(context.Background(), Request{Spec: "pi +", Base: 10, Digits: 10}); err == nil {
		t.Error("expected parse error")
	}
}
