package main

import (
	"io"
	"strings"
	"testing"

	"github.com/bystrogenomics/di2hap/vcf"
)

const benchSamples = 10000

func BenchmarkReduceFull(b *testing.B) {
	src := make([]int8, benchSamples*2)
	for i := range src {
		src[i] = int8(i % 2)
	}
	gt := make([]int8, len(src))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		copy(gt, src)
		reduceFull(gt, 2)
	}
}

func BenchmarkReducePartial(b *testing.B) {
	flags := make([]bool, benchSamples)
	for i := range flags {
		flags[i] = i%2 == 0
	}
	pm := &ploidyMap{flags: flags, haploidCount: benchSamples / 2}
	gt := make([]int8, benchSamples*2)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		reducePartial(gt, 2, pm)
	}
}

func BenchmarkConvert(b *testing.B) {
	var sb strings.Builder
	sb.WriteString(testHeader)
	for i := 0; i < 1000; i++ {
		sb.WriteString("1\t100\t.\tA\tG\t.\tPASS\t.\tGT\t1/1\t0/0\n")
	}
	input := sb.String()

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		in, err := vcf.NewReader(strings.NewReader(input))
		if err != nil {
			b.Fatal(err)
		}
		pm, err := buildPloidyMap(in.Samples(), nil, "0")
		if err != nil {
			b.Fatal(err)
		}
		w := vcf.NewWriter(io.Discard)
		if err := w.WriteHeader(in.HeaderLines(), in.Columns()); err != nil {
			b.Fatal(err)
		}
		if err := convert(in, vcfSink{w}, pm, fullReduction, false); err != nil {
			b.Fatal(err)
		}
		if err := w.Close(); err != nil {
			b.Fatal(err)
		}
	}
}
