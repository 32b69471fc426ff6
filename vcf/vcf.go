// Package vcf reads and writes VCF text files, exposing each record's GT
// entries as a flat int8 array shaped samples x ploidy.
package vcf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/exp/slices"
)

// Reserved int8 genotype values, following the BCF encoding convention.
// EndOfVector marks positions past a sample's last real copy when calls of
// different ploidy share one fixed-stride array.
const (
	Missing     int8 = -128
	EndOfVector int8 = -127
)

const (
	chromIdx int = iota
	posIdx
	idIdx
	refIdx
	altIdx
	qualIdx
	filterIdx
	infoIdx
	formatIdx
)

const fileFormatPrefix = "##fileformat=VCF"

// ErrNoGT is returned for records whose FORMAT column has no GT entry.
var ErrNoGT = errors.New("no GT entry in FORMAT column")

// Record is one data line of a VCF file. The identity fields are carried
// through untouched; only the GT entry of the sample columns is rewritten,
// via SetGenotypes.
type Record struct {
	Chrom  string
	Pos    string
	ID     string
	Ref    string
	Alt    []string
	Qual   string
	Filter string
	Info   string
	Format []string

	samples []string // raw sample columns, colon-delimited per FORMAT
	phased  []bool   // phase separator seen per sample, set by Genotypes
}

// Genotypes parses the GT entry of every sample column into one flat int8
// array, row-major by sample. The stride is the largest ploidy seen in the
// record; shorter calls are padded with EndOfVector, and "." becomes
// Missing.
func (rec *Record) Genotypes() ([]int8, int, error) {
	gtIdx := slices.Index(rec.Format, "GT")
	if gtIdx < 0 {
		return nil, 0, ErrNoGT
	}

	calls := make([][]int8, len(rec.samples))
	rec.phased = make([]bool, len(rec.samples))
	stride := 1
	for i, field := range rec.samples {
		call, phased, err := rec.parseCall(field, gtIdx)
		if err != nil {
			return nil, 0, err
		}
		calls[i] = call
		rec.phased[i] = phased
		if len(call) > stride {
			stride = len(call)
		}
	}

	gt := make([]int8, len(rec.samples)*stride)
	for i, call := range calls {
		copy(gt[i*stride:], call)
		for j := len(call); j < stride; j++ {
			gt[i*stride+j] = EndOfVector
		}
	}
	return gt, stride, nil
}

func (rec *Record) parseCall(field string, gtIdx int) ([]int8, bool, error) {
	sub := strings.Split(field, ":")
	if gtIdx >= len(sub) {
		return nil, false, fmt.Errorf("sample field %q has no GT entry", field)
	}
	call := sub[gtIdx]
	phased := strings.ContainsRune(call, '|')
	parts := strings.FieldsFunc(call, func(r rune) bool { return r == '/' || r == '|' })
	if len(parts) == 0 {
		return nil, false, fmt.Errorf("empty GT entry in sample field %q", field)
	}
	alleles := make([]int8, len(parts))
	for i, p := range parts {
		if p == "." {
			alleles[i] = Missing
			continue
		}
		n, err := strconv.ParseInt(p, 10, 8)
		if err != nil {
			return nil, false, fmt.Errorf("invalid allele %q in GT entry %q", p, call)
		}
		if n > int64(len(rec.Alt)) {
			return nil, false, fmt.Errorf("allele %d out of range in GT entry %q", n, call)
		}
		alleles[i] = int8(n)
	}
	return alleles, phased, nil
}

// SetGenotypes rewrites the GT entry of every sample column from a flat
// int8 array. EndOfVector terminates a sample's call, Missing becomes ".",
// and the phase separator seen by Genotypes is kept. All other FORMAT
// entries are left verbatim.
func (rec *Record) SetGenotypes(gt []int8, stride int) error {
	gtIdx := slices.Index(rec.Format, "GT")
	if gtIdx < 0 {
		return ErrNoGT
	}
	if stride < 1 || len(gt) != len(rec.samples)*stride {
		return fmt.Errorf("genotype array of length %d does not fit %d samples with stride %d",
			len(gt), len(rec.samples), stride)
	}

	var call strings.Builder
	for i := range rec.samples {
		sep := "/"
		if i < len(rec.phased) && rec.phased[i] {
			sep = "|"
		}
		call.Reset()
		for j := 0; j < stride; j++ {
			v := gt[i*stride+j]
			if v == EndOfVector {
				break
			}
			if j > 0 {
				call.WriteString(sep)
			}
			if v == Missing {
				call.WriteByte('.')
			} else {
				call.WriteString(strconv.Itoa(int(v)))
			}
		}
		sub := strings.Split(rec.samples[i], ":")
		sub[gtIdx] = call.String()
		rec.samples[i] = strings.Join(sub, ":")
	}
	return nil
}

// Reader reads the header of a VCF file and then its records one at a
// time.
type Reader struct {
	buf     *bufio.Reader
	closers []io.Closer
	header  []string
	columns []string
	line    int
}

// Open opens a VCF file for reading, transparently decompressing gzip
// input. An empty path or "-" reads from standard input.
func Open(path string) (*Reader, error) {
	if path == "" || path == "-" {
		return NewReader(os.Stdin)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var src io.Reader = fh
	closers := []io.Closer{fh}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, err
		}
		src = gz
		closers = []io.Closer{gz, fh}
	}
	r, err := NewReader(src)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}
	r.closers = closers
	return r, nil
}

// NewReader parses the header of in and returns a reader positioned at the
// first record.
func NewReader(in io.Reader) (*Reader, error) {
	r := &Reader{buf: bufio.NewReaderSize(in, 64*1024)}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	line, err := r.getLine()
	if err != nil || !strings.HasPrefix(line, fileFormatPrefix) {
		return errors.New("invalid first line in a VCF file")
	}
	r.header = append(r.header, line)
	for {
		line, err = r.getLine()
		if err != nil {
			return errors.New("unexpected end of VCF header")
		}
		if strings.HasPrefix(line, "##") {
			r.header = append(r.header, line)
			continue
		}
		if !strings.HasPrefix(line, "#CHROM") {
			return fmt.Errorf("line %d: missing #CHROM header line", r.line)
		}
		r.columns = strings.Split(line, "\t")
		if len(r.columns) < formatIdx {
			return fmt.Errorf("line %d: truncated #CHROM header line", r.line)
		}
		return nil
	}
}

func (r *Reader) getLine() (string, error) {
	line, err := r.buf.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	r.line++
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// Samples returns the sample IDs from the #CHROM header line, in column
// order. The order is fixed for the lifetime of the reader.
func (r *Reader) Samples() []string {
	if len(r.columns) <= formatIdx+1 {
		return nil
	}
	return r.columns[formatIdx+1:]
}

// HeaderLines returns the meta-information lines, verbatim.
func (r *Reader) HeaderLines() []string { return r.header }

// Columns returns the fields of the #CHROM header line.
func (r *Reader) Columns() []string { return r.columns }

// Read returns the next record, or io.EOF when the input is exhausted.
func (r *Reader) Read() (*Record, error) {
	line, err := r.getLine()
	for err == nil && line == "" {
		line, err = r.getLine()
	}
	if err != nil {
		return nil, err
	}
	fields := strings.Split(line, "\t")
	if len(fields) != len(r.columns) {
		return nil, fmt.Errorf("line %d: %d fields, expected %d", r.line, len(fields), len(r.columns))
	}
	rec := &Record{
		Chrom:  fields[chromIdx],
		Pos:    fields[posIdx],
		ID:     fields[idIdx],
		Ref:    fields[refIdx],
		Alt:    strings.Split(fields[altIdx], ","),
		Qual:   fields[qualIdx],
		Filter: fields[filterIdx],
		Info:   fields[infoIdx],
	}
	if len(fields) > formatIdx {
		rec.Format = strings.Split(fields[formatIdx], ":")
		rec.samples = fields[formatIdx+1:]
	}
	return rec, nil
}

// Close closes the underlying file and decompressor, if any.
func (r *Reader) Close() error {
	var err error
	for _, c := range r.closers {
		if e := c.Close(); err == nil {
			err = e
		}
	}
	return err
}

// Writer serializes a VCF header and records. Write errors are sticky: the
// first one is kept and reported by Err and Close.
type Writer struct {
	buf    *bufio.Writer
	gz     *gzip.Writer
	closer io.Closer
	err    error
}

// Create opens path for writing, an empty path or "-" meaning standard
// output. With compress set, the stream is gzip-encoded.
func Create(path string, compress bool) (*Writer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer
	if path != "" && path != "-" {
		fh, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		out = fh
		closer = fh
	}
	var w *Writer
	if compress {
		w = NewGzipWriter(out)
	} else {
		w = NewWriter(out)
	}
	w.closer = closer
	return w, nil
}

// NewWriter returns a writer emitting plain VCF text to out.
func NewWriter(out io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriterSize(out, 64*1024)}
}

// NewGzipWriter returns a writer emitting gzip-compressed VCF text to out.
func NewGzipWriter(out io.Writer) *Writer {
	gz := gzip.NewWriter(out)
	return &Writer{buf: bufio.NewWriterSize(gz, 64*1024), gz: gz}
}

// WriteHeader writes the meta-information lines and the #CHROM line.
func (w *Writer) WriteHeader(header []string, columns []string) error {
	for _, line := range header {
		w.writeString(line)
		w.writeString("\n")
	}
	w.writeString(strings.Join(columns, "\t"))
	w.writeString("\n")
	return w.err
}

// Write serializes one record.
func (w *Writer) Write(rec *Record) error {
	w.writeString(rec.Chrom)
	w.writeString("\t")
	w.writeString(rec.Pos)
	w.writeString("\t")
	w.writeString(rec.ID)
	w.writeString("\t")
	w.writeString(rec.Ref)
	w.writeString("\t")
	w.writeString(strings.Join(rec.Alt, ","))
	w.writeString("\t")
	w.writeString(rec.Qual)
	w.writeString("\t")
	w.writeString(rec.Filter)
	w.writeString("\t")
	w.writeString(rec.Info)
	if rec.Format != nil {
		w.writeString("\t")
		w.writeString(strings.Join(rec.Format, ":"))
		for _, s := range rec.samples {
			w.writeString("\t")
			w.writeString(s)
		}
	}
	w.writeString("\n")
	return w.err
}

func (w *Writer) writeString(s string) {
	if w.err != nil {
		return
	}
	_, w.err = w.buf.WriteString(s)
}

// Err reports the first write error encountered.
func (w *Writer) Err() error { return w.err }

// Close flushes buffered output and closes the compressor and the
// underlying file, if any.
func (w *Writer) Close() error {
	if e := w.buf.Flush(); w.err == nil {
		w.err = e
	}
	if w.gz != nil {
		if e := w.gz.Close(); w.err == nil {
			w.err = e
		}
	}
	if w.closer != nil {
		if e := w.closer.Close(); w.err == nil {
			w.err = e
		}
	}
	return w.err
}
