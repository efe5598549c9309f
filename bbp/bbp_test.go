package bbp

import (
	"context"
	"errors"
	"testing"
)

// π = 3.243F6A8885A308D31319...
const piHex = "243F6A8885A308D313198A2E03707344" +
	"A4093822299F31D0082EFA98EC4E6C89"

func TestDigit(t *testing.T) {
	for pos := 0; pos < len(piHex); pos++ {
		d, margin, err := Digit(pos)
		if err != nil {
			t.Fatalf("Digit(%d): %v", pos, err)
		}
		if want := hexValue(piHex[pos]); d != want {
			t.Errorf("Digit(%d) = %x, want %x", pos, d, want)
		}
		if margin < boundaryMargin {
			t.Errorf("Digit(%d) margin = %g below trust threshold", pos, margin)
		}
	}
}

func TestDigitDeepOffset(t *testing.T) {
	// The next eight digits after piHex are 452821E6.
	res, err := Digits(context.Background(), len(piHex), 8)
	if err != nil {
		t.Fatal(err)
	}
	if res.Digits != "452821E6" {
		t.Errorf("Digits(%d,8) = %q, want 452821E6", len(piHex), res.Digits)
	}
}

func TestDigits(t *testing.T) {
	res, err := Digits(context.Background(), 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if res.Digits != "243F" {
		t.Errorf("Digits(0,4) = %q, want 243F", res.Digits)
	}
	if res.Margin <= 0 || res.Margin > 1 {
		t.Errorf("margin = %g", res.Margin)
	}

	res, err = Digits(context.Background(), 10, 6)
	if err != nil {
		t.Fatal(err)
	}
	if res.Digits != piHex[10:16] {
		t.Errorf("Digits(10,6) = %q, want %q", res.Digits, piHex[10:16])
	}
}

func TestDigitsEmpty(t *testing.T) {
	res, err := Digits(context.Background(), 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Digits != "" {
		t.Errorf("empty range produced %q", res.Digits)
	}
}

func TestDigitsRejectsNegative(t *testing.T) {
	if _, _, err := Digit(-1); err == nil {
		t.Error("negative offset should fail")
	}
	if _, err := Digits(context.Background(), -1, 4); err == nil {
		t.Error("negative start should fail")
	}
	if _, err := Digits(context.Background(), 0, -4); err == nil {
		t.Error("negative count should fail")
	}
}

func TestDigitsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Digits(ctx, 0, 8); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func hexValue(c byte) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	return int(c-'A') + 10
}
