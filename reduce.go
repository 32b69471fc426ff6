package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bystrogenomics/di2hap/vcf"
)

// reductionMode is fixed once per run: full when every sample converts to
// haploid (the output stride collapses to 1), partial when only a subset
// does (the stride is kept and trailing copies are masked).
type reductionMode int

const (
	fullReduction reductionMode = iota
	partialReduction
)

var errHeterozygous = errors.New("cannot convert heterozygous to haploid")

// verifyHomozygous checks that every sample marked haploid carries the
// same value in all of its copies. Samples left diploid are not checked.
// Records with stride 1 pass trivially.
func verifyHomozygous(gt []int8, stride int, pm *ploidyMap, rec *vcf.Record, samples []string) error {
	for i, haploid := range pm.flags {
		if !haploid {
			continue
		}
		for j := 1; j < stride; j++ {
			if gt[i*stride+j] != gt[i*stride] {
				return fmt.Errorf("%w at %s:%s:%s:%s:%s", errHeterozygous,
					rec.Chrom, rec.Pos, rec.Ref, strings.Join(rec.Alt, ","), samples[i])
			}
		}
	}
	return nil
}

// reduceFull keeps only the first copy of every sample and truncates the
// array to one value per sample. Stride 1 input is returned unchanged.
func reduceFull(gt []int8, stride int) []int8 {
	if stride == 1 {
		return gt
	}
	n := len(gt) / stride
	for i := 0; i < n; i++ {
		gt[i] = gt[i*stride]
	}
	return gt[:n]
}

// reducePartial masks copies past the first with the end-of-vector value
// for every sample marked haploid, in place. Samples left diploid keep
// their span untouched.
func reducePartial(gt []int8, stride int, pm *ploidyMap) {
	for i, haploid := range pm.flags {
		if !haploid {
			continue
		}
		for j := 1; j < stride; j++ {
			gt[i*stride+j] = vcf.EndOfVector
		}
	}
}
