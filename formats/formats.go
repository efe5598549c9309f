// Package formats exports computed digit sequences to interchange
// formats: plain text, JSON, CSV/TSV tables, NDJSON runs, raw and
// nibble-packed binary, a SQLite table, and a zip archive.
package formats

import (
	"archive/zip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/digitloom/digitloom/digits"
)

// Format identifies an export encoding.
type Format string

const (
	FormatTxt    Format = "txt"
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatTSV    Format = "tsv"
	FormatNDJSON Format = "ndjson"
	FormatBin    Format = "bin"
	FormatPacked Format = "packed"
	FormatSQLite Format = "sqlite"
	FormatZip    Format = "zip"
)

// All lists every supported format.
func All() []Format {
	return []Format{
		FormatTxt, FormatJSON, FormatCSV, FormatTSV,
		FormatNDJSON, FormatBin, FormatPacked, FormatSQLite, FormatZip,
	}
}

// Parse resolves a format by name.
func Parse(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range All() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("formats: unknown format %q", name)
}

// Output carries one computed sequence for export.
type Output struct {
	Spec    string
	Base    int
	IntPart string
	Frac    []byte
}

// ndjsonRun is the run length per NDJSON line.
const ndjsonRun = 64

// packedMagic begins every nibble-packed file.
var packedMagic = [4]byte{'D', 'L', 'P', 'K'}

// Write encodes out to w. FormatSQLite needs a file and is only
// available through WriteFile.
func Write(w io.Writer, out Output, f Format) error {
	switch f {
	case FormatTxt:
		_, err := fmt.Fprintf(w, "%s.%s\n", out.IntPart, out.Frac)
		return err
	case FormatJSON:
		return writeJSON(w, out)
	case FormatCSV:
		return writeTable(w, out, ',')
	case FormatTSV:
		return writeTable(w, out, '\t')
	case FormatNDJSON:
		return writeNDJSON(w, out)
	case FormatBin:
		return writeBin(w, out)
	case FormatPacked:
		return writePacked(w, out)
	case FormatZip:
		return writeZip(w, out)
	case FormatSQLite:
		return fmt.Errorf("formats: sqlite export requires WriteFile")
	default:
		return fmt.Errorf("formats: unknown format %q", f)
	}
}

// WriteFile encodes out to a file at path.
func WriteFile(path string, out Output, f Format) error {
	if f == FormatSQLite {
		return writeSQLite(path, out)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(file, out, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

type jsonDoc struct {
	Spec    string `json:"spec"`
	Base    int    `json:"base"`
	Integer string `json:"integer"`
	Digits  string `json:"digits"`
	Count   int    `json:"count"`
}

func writeJSON(w io.Writer, out Output) error {
	enc := json.NewEncoder(w)
	return enc.Encode(jsonDoc{
		Spec:    out.Spec,
		Base:    out.Base,
		Integer: out.IntPart,
		Digits:  string(out.Frac),
		Count:   len(out.Frac),
	})
}

func writeTable(w io.Writer, out Output, sep byte) error {
	var sb strings.Builder
	sb.WriteString("position")
	sb.WriteByte(sep)
	sb.WriteString("digit\n")
	for i, c := range out.Frac {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteByte(sep)
		sb.WriteByte(c)
		sb.WriteByte('\n')
		if sb.Len() >= 1<<16 {
			if _, err := io.WriteString(w, sb.String()); err != nil {
				return err
			}
			sb.Reset()
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

type ndjsonLine struct {
	Offset int    `json:"offset"`
	Digits string `json:"digits"`
}

func writeNDJSON(w io.Writer, out Output) error {
	enc := json.NewEncoder(w)
	for off := 0; off < len(out.Frac); off += ndjsonRun {
		end := off + ndjsonRun
		if end > len(out.Frac) {
			end = len(out.Frac)
		}
		if err := enc.Encode(ndjsonLine{Offset: off, Digits: string(out.Frac[off:end])}); err != nil {
			return err
		}
	}
	return nil
}

// writeBin emits one byte per digit holding the digit's numeric value.
func writeBin(w io.Writer, out Output) error {
	buf := make([]byte, len(out.Frac))
	for i, c := range out.Frac {
		v := digits.DigitValue(c, out.Base)
		if v < 0 {
			return fmt.Errorf("formats: invalid digit %q at position %d", c, i)
		}
		buf[i] = byte(v)
	}
	_, err := w.Write(buf)
	return err
}

// writePacked emits a self-describing nibble-packed stream: a 4-byte
// magic, the base, a big-endian digit count, then two digits per byte
// (high nibble first, zero-padded). Only bases up to 16 pack.
func writePacked(w io.Writer, out Output) error {
	if out.Base > 16 {
		return fmt.Errorf("formats: packed export supports bases up to 16, got %d", out.Base)
	}
	header := make([]byte, 0, 13)
	header = append(header, packedMagic[:]...)
	header = append(header, byte(out.Base))
	header = binary.BigEndian.AppendUint64(header, uint64(len(out.Frac)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	buf := make([]byte, (len(out.Frac)+1)/2)
	for i, c := range out.Frac {
		v := digits.DigitValue(c, out.Base)
		if v < 0 {
			return fmt.Errorf("formats: invalid digit %q at position %d", c, i)
		}
		if i%2 == 0 {
			buf[i/2] = byte(v) << 4
		} else {
			buf[i/2] |= byte(v)
		}
	}
	_, err := w.Write(buf)
	return err
}

// ReadPacked decodes a nibble-packed stream back into digit characters.
func ReadPacked(r io.Reader) (base int, frac []byte, err error) {
	header := make([]byte, 13)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("formats: short packed header: %w", err)
	}
	if [4]byte(header[:4]) != packedMagic {
		return 0, nil, fmt.Errorf("formats: bad packed magic")
	}
	base = int(header[4])
	if base < 2 || base > 16 {
		return 0, nil, fmt.Errorf("formats: invalid packed base %d", base)
	}
	count := binary.BigEndian.Uint64(header[5:])
	packed := make([]byte, (count+1)/2)
	if _, err := io.ReadFull(r, packed); err != nil {
		return 0, nil, fmt.Errorf("formats: short packed payload: %w", err)
	}

	frac = make([]byte, count)
	for i := range frac {
		var v byte
		if i%2 == 0 {
			v = packed[i/2] >> 4
		} else {
			v = packed[i/2] & 0x0F
		}
		if int(v) >= base {
			return 0, nil, fmt.Errorf("formats: packed digit %d out of range at position %d", v, i)
		}
		frac[i] = digits.Alphabet[v]
	}
	return base, frac, nil
}

// writeZip produces an archive holding digits.txt and meta.json.
func writeZip(w io.Writer, out Output) error {
	zw := zip.NewWriter(w)

	tf, err := zw.Create("digits.txt")
	if err != nil {
		return err
	}
	if err := Write(tf, out, FormatTxt); err != nil {
		return err
	}

	mf, err := zw.Create("meta.json")
	if err != nil {
		return err
	}
	meta := map[string]interface{}{
		"spec":  out.Spec,
		"base":  out.Base,
		"count": len(out.Frac),
	}
	if err := json.NewEncoder(mf).Encode(meta); err != nil {
		return err
	}
	return zw.Close()
}

// EstimateSize predicts the output size in bytes for n digits, ignoring
// per-format constant overhead. SQLite and zip grow with storage
// internals and are estimated at their dominant term.
func EstimateSize(f Format, n int64) int64 {
	switch f {
	case FormatTxt, FormatBin, FormatZip:
		return n
	case FormatJSON:
		return n
	case FormatCSV, FormatTSV:
		// "position,digit\n" rows: digit + separator + newline + index
		// text that averages under ten characters for practical sizes.
		return n * 12
	case FormatNDJSON:
		return n + (n/ndjsonRun+1)*32
	case FormatPacked:
		return (n + 1) / 2
	case FormatSQLite:
		return n * 16
	default:
		return n
	}
}

// InfoBytes returns the information content of n base-b digits in
// bytes: n·log2(b)/8. The gap between an export's size and this bound
// is its encoding overhead.
func InfoBytes(base int, n int64) float64 {
	return float64(n) * math.Log2(float64(base)) / 8
}
