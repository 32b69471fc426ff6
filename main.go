// di2hap converts diploid genotype calls to haploid calls, per sample,
// over a stream of VCF records. Sample classification comes from a sex
// map file; samples not listed are presumed haploid.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/bystrogenomics/di2hap/arrow"
	"github.com/bystrogenomics/di2hap/vcf"
)

const version = "1.1.0"

const (
	formatVCF     = "vcf"
	formatVCFGz   = "vcf.gz"
	formatFeather = "feather"
)

const featherChunkSize = 5000

var errNoSamples = errors.New("no samples in input file")

type Config struct {
	inPath      string
	outPath     string
	outFormat   string
	sexMapPath  string
	haploidCode string
	verify      bool
	showVersion bool
}

func setup(args []string) *Config {
	config := &Config{}
	flag.StringVar(&config.haploidCode, "haploid-code", "0", "Code used for haploid samples in the sex map")
	flag.StringVar(&config.haploidCode, "c", "0", "Code used for haploid samples in the sex map (shorthand)")
	flag.StringVar(&config.outPath, "output", "", "Output path (default is stdout)")
	flag.StringVar(&config.outPath, "o", "", "Output path (shorthand)")
	flag.StringVar(&config.outFormat, "output-format", formatVCF, "Output file format (vcf, vcf.gz, feather)")
	flag.StringVar(&config.outFormat, "O", formatVCF, "Output file format (shorthand)")
	flag.StringVar(&config.sexMapPath, "sex-map", "", "Sex map file path (default: all samples are presumed haploid)")
	flag.StringVar(&config.sexMapPath, "m", "", "Sex map file path (shorthand)")
	flag.BoolVar(&config.verify, "verify", false, "Verify genotypes are homozygous before converting")
	flag.BoolVar(&config.verify, "V", false, "Verify genotypes are homozygous before converting (shorthand)")
	flag.BoolVar(&config.showVersion, "version", false, "Print version")
	flag.BoolVar(&config.showVersion, "v", false, "Print version (shorthand)")

	// allows args to be mocked
	// can only run 1 such test, else, redefined flags error
	a := os.Args[1:]
	if args != nil {
		a = args
	}
	flag.CommandLine.Parse(a)

	if flag.NArg() > 1 {
		log.Fatal("Error: invalid number of arguments")
	}
	config.inPath = flag.Arg(0)

	return config
}

func init() {
	log.SetFlags(0)
}

func main() {
	config := setup(nil)

	if config.showVersion {
		fmt.Printf("di2hap v%s\n", version)
		return
	}

	if err := run(config); err != nil {
		log.Fatal("Error: ", err)
	}
}

func run(config *Config) error {
	in, err := vcf.Open(config.inPath)
	if err != nil {
		return fmt.Errorf("could not open input file: %w", err)
	}
	defer in.Close()

	samples := in.Samples()
	if len(samples) == 0 {
		return errNoSamples
	}

	pm, err := loadPloidyMap(samples, config.sexMapPath, config.haploidCode)
	if err != nil {
		return err
	}
	log.Printf("Notice: converting %d samples to haploid", pm.haploidCount)

	mode := partialReduction
	if pm.allHaploid() {
		mode = fullReduction
	}

	sink, err := openSink(config, in, mode)
	if err != nil {
		return err
	}

	if err := convert(in, sink, pm, mode, config.verify); err != nil {
		sink.close()
		return err
	}
	return sink.close()
}

// convert streams records one at a time: read, fetch the genotype array,
// optionally verify, reduce, write. The first error aborts the stream;
// records already written stay written.
func convert(in *vcf.Reader, sink recordSink, pm *ploidyMap, mode reductionMode, verify bool) error {
	samples := in.Samples()
	for {
		rec, err := in.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		gt, stride, err := rec.Genotypes()
		if err != nil {
			return fmt.Errorf("%s:%s: %w", rec.Chrom, rec.Pos, err)
		}

		if verify {
			if err := verifyHomozygous(gt, stride, pm, rec, samples); err != nil {
				return err
			}
		}

		if mode == fullReduction {
			gt = reduceFull(gt, stride)
			stride = 1
		} else {
			reducePartial(gt, stride, pm)
		}

		if err := sink.write(rec, gt, stride); err != nil {
			return err
		}
	}
}

// recordSink accepts one transformed record at a time.
type recordSink interface {
	write(rec *vcf.Record, gt []int8, stride int) error
	close() error
}

type vcfSink struct {
	w *vcf.Writer
}

func (s vcfSink) write(rec *vcf.Record, gt []int8, stride int) error {
	if err := rec.SetGenotypes(gt, stride); err != nil {
		return err
	}
	return s.w.Write(rec)
}

func (s vcfSink) close() error { return s.w.Close() }

type featherSink struct {
	w *arrow.ArrowWriter
}

func (s featherSink) write(rec *vcf.Record, gt []int8, stride int) error {
	return s.w.Write(gt)
}

func (s featherSink) close() error { return s.w.Close() }

func openSink(config *Config, in *vcf.Reader, mode reductionMode) (recordSink, error) {
	switch config.outFormat {
	case formatVCF, formatVCFGz:
		w, err := vcf.Create(config.outPath, config.outFormat == formatVCFGz)
		if err != nil {
			return nil, fmt.Errorf("could not open output file: %w", err)
		}
		if err := w.WriteHeader(in.HeaderLines(), in.Columns()); err != nil {
			w.Close()
			return nil, err
		}
		return vcfSink{w}, nil
	case formatFeather:
		if mode != fullReduction {
			return nil, errors.New("feather output requires all samples to be haploid")
		}
		if config.outPath == "" || config.outPath == "-" {
			return nil, errors.New("feather output requires -output")
		}
		aw, err := arrow.NewArrowWriter(config.outPath, in.Samples(), featherChunkSize)
		if err != nil {
			return nil, fmt.Errorf("could not open output file: %w", err)
		}
		return featherSink{aw}, nil
	default:
		return nil, fmt.Errorf("invalid output format %q (supported: vcf, vcf.gz, feather)", config.outFormat)
	}
}
