package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

var errMalformedSexMap = errors.New("malformed sex map")

// ploidyMap marks, per sample ordinal, whether that sample converts to
// haploid. It is built once per run and read-only afterwards.
type ploidyMap struct {
	flags        []bool
	haploidCount int
}

func (pm *ploidyMap) allHaploid() bool {
	return pm.haploidCount == len(pm.flags)
}

// buildPloidyMap classifies every sample as haploid or diploid. With no
// sex map every sample is presumed haploid. Each sex map line holds a
// tab-delimited (sample ID, code) pair; a sample is haploid when its code
// equals haploidCode. Later lines for the same ID win. IDs not in samples
// are warned about and skipped.
func buildPloidyMap(samples []string, sexMap io.Reader, haploidCode string) (*ploidyMap, error) {
	flags := make([]bool, len(samples))
	for i := range flags {
		flags[i] = true
	}

	if sexMap != nil {
		idToIdx := make(map[string]int, len(samples))
		for i, id := range samples {
			idToIdx[id] = i
		}

		scanner := bufio.NewScanner(sexMap)
		for scanner.Scan() {
			fields := strings.Split(scanner.Text(), "\t")
			if len(fields) < 2 {
				return nil, fmt.Errorf("%w: %q", errMalformedSexMap, scanner.Text())
			}
			idx, ok := idToIdx[fields[0]]
			if !ok {
				log.Printf("Warning: sex map ID not in VCF (%s)", fields[0])
				continue
			}
			flags[idx] = fields[1] == haploidCode
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	count := 0
	for _, f := range flags {
		if f {
			count++
		}
	}
	return &ploidyMap{flags: flags, haploidCount: count}, nil
}

// loadPloidyMap builds the ploidy map from the sex map file at path, or
// from nothing when path is empty.
func loadPloidyMap(samples []string, path, haploidCode string) (*ploidyMap, error) {
	if path == "" {
		return buildPloidyMap(samples, nil, haploidCode)
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open sex map: %w", err)
	}
	defer fh.Close()
	return buildPloidyMap(samples, fh, haploidCode)
}
