// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package sortmerge

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/colexdb/colex/compr"
)

func init() {
	gob.Register(int32(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register(false)
	gob.Register("")
}

// runFile is one spilled, already-sorted run of rows, s2-compressed
// on disk. Rows are decoded back into memory as a whole (a run is
// bounded to roughly Sorter.runBytes, so this keeps a bounded amount
// of the run resident during the final merge without the complexity
// of a row-at-a-time decompressing reader).
type runFile struct {
	path string
}

// spillRun writes rows (already sorted) to a new temp file under dir,
// compressed with s2, and returns the resulting runFile.
func spillRun(dir string, rows []Row) (*runFile, error) {
	var plain bytes.Buffer
	enc := gob.NewEncoder(&plain)
	if err := enc.Encode(rows); err != nil {
		return nil, fmt.Errorf("sortmerge: encoding run: %w", err)
	}

	compressed := compr.Compression("s2").Compress(plain.Bytes(), nil)

	path := filepath.Join(dir, "colex-run-"+uuid.NewString()+".s2")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sortmerge: creating run file: %w", err)
	}
	defer f.Close()

	var header [16]byte
	binary.LittleEndian.PutUint64(header[0:8], uint64(plain.Len()))
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(compressed)))
	if _, err := f.Write(header[:]); err != nil {
		return nil, err
	}
	if _, err := f.Write(compressed); err != nil {
		return nil, err
	}
	return &runFile{path: path}, nil
}

// load reads the run back into memory in its original sorted order.
func (r *runFile) load() ([]Row, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("sortmerge: opening run file: %w", err)
	}
	defer f.Close()

	var header [16]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return nil, fmt.Errorf("sortmerge: reading run header: %w", err)
	}
	plainLen := binary.LittleEndian.Uint64(header[0:8])
	compLen := binary.LittleEndian.Uint64(header[8:16])

	compressed := make([]byte, compLen)
	if _, err := io.ReadFull(f, compressed); err != nil {
		return nil, fmt.Errorf("sortmerge: reading run body: %w", err)
	}

	plain := make([]byte, plainLen)
	if err := compr.Decompression("s2").Decompress(compressed, plain); err != nil {
		return nil, fmt.Errorf("sortmerge: decompressing run: %w", err)
	}

	var rows []Row
	dec := gob.NewDecoder(bytes.NewReader(plain))
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("sortmerge: decoding run: %w", err)
	}
	return rows, nil
}

// close removes the run's backing temp file.
func (r *runFile) close() error { return os.Remove(r.path) }
