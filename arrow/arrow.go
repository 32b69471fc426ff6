// Package arrow writes a genotype matrix as an Arrow IPC (feather) file,
// one Int8 column per sample and one row per variant record.
package arrow

import (
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

type ArrowWriter struct {
	filePath       string
	schema         *arrow.Schema
	writer         *ipc.FileWriter
	builders       []*array.Int8Builder
	pool           *memory.GoAllocator
	chunkSize      int
	numRowsInChunk int
}

// NewArrowWriter creates a feather file at filePath with one Int8 column
// per sample ID. Rows are buffered and flushed in chunks of chunkSize.
func NewArrowWriter(filePath string, sampleIDs []string, chunkSize int) (*ArrowWriter, error) {
	pool := memory.NewGoAllocator()
	fields := make([]arrow.Field, len(sampleIDs))

	for i, name := range sampleIDs {
		fields[i] = arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Int8}
	}

	schema := arrow.NewSchema(fields, nil)
	file, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}

	writer, err := ipc.NewFileWriter(file, ipc.WithSchema(schema))
	if err != nil {
		return nil, err
	}

	builders := make([]*array.Int8Builder, len(fields))
	for i := range fields {
		builders[i] = array.NewInt8Builder(pool)
	}

	return &ArrowWriter{
		filePath:       filePath,
		schema:         schema,
		writer:         writer,
		builders:       builders,
		pool:           pool,
		chunkSize:      chunkSize,
		numRowsInChunk: 0,
	}, nil
}

// Write appends one row, holding one genotype value per sample.
func (aw *ArrowWriter) Write(row []int8) error {
	if len(row) != len(aw.builders) {
		return fmt.Errorf("mismatch in number of samples: expected %d, got %d", len(aw.builders), len(row))
	}

	for i, val := range row {
		aw.builders[i].Append(val)
	}

	aw.numRowsInChunk++

	if aw.numRowsInChunk == aw.chunkSize {
		if err := aw.writeChunk(); err != nil {
			return err
		}
	}

	return nil
}

func (aw *ArrowWriter) writeChunk() error {
	var cols []arrow.Array
	for _, b := range aw.builders {
		// NewArray resets the builder for the next chunk
		cols = append(cols, b.NewArray())
	}

	record := array.NewRecord(aw.schema, cols, int64(aw.numRowsInChunk))
	defer record.Release()

	if err := aw.writer.Write(record); err != nil {
		return err
	}

	aw.numRowsInChunk = 0

	return nil
}

// Close flushes any buffered rows and finalizes the file.
func (aw *ArrowWriter) Close() error {
	if aw.numRowsInChunk > 0 {
		if err := aw.writeChunk(); err != nil {
			return err
		}
	}
	return aw.writer.Close()
}
