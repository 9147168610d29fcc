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

// Package blockcache implements colex's optional on-disk materialization
// cache (spec.md §6): a full scan's parsed chunks may be persisted to
// disk, keyed by the content address of the source file's path, mtime,
// and an optional query signature, so a repeated query over an
// unchanged file can skip re-parsing entirely.
//
// Entries are content-addressed the way the teacher's ion/blockfmt
// indexes blob content (golang.org/x/crypto/blake2b), without carrying
// over that package's encryption-at-rest feature (out of scope here;
// see DESIGN.md).
package blockcache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/colexdb/colex/compr"
	"github.com/colexdb/colex/schema"
)

const (
	magic        = "COLX"
	formatVer    = uint32(1)
	blockCompr   = "zstd" // favor ratio: blocks are rarely rewritten.
)

// Key computes the content address for an entry: blake2b-256 of the
// source path, its modification time, and an optional caller-supplied
// query signature (e.g. a hash of the projected columns and pushdown
// predicates), hex-encoded for use as a filesystem-safe name.
func Key(path string, mtime time.Time, querySignature string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(path))
	h.Write([]byte{0})
	var tb [8]byte
	binary.LittleEndian.PutUint64(tb[:], uint64(mtime.UnixNano()))
	h.Write(tb[:])
	h.Write([]byte{0})
	h.Write([]byte(querySignature))
	return hex.EncodeToString(h.Sum(nil))
}

// meta is the small sidecar record kept alongside each entry's block
// file, used both to validate a Get's mtime match and to drive
// Evict's retention scan without reading every block file.
type meta struct {
	Path             string
	ModTimeUnixNano  int64
	QuerySignature   string
	WrittenAtUnixNano int64
	SizeBytes        int64
}

// Logger is the minimal logging contract non-fatal conditions are
// reported through; see package cache's Logger doc for the shared
// rationale. A nil Logger is valid.
type Logger interface {
	Printf(format string, args ...any)
}

func logf(l Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}

// Store is one on-disk materialization cache directory.
type Store struct {
	dir          string
	maxAgeMs     int64
	maxSizeBytes int64

	// Logger reports stale-entry and retention evictions when
	// non-nil.
	Logger Logger
}

// Open prepares dir (creating it if necessary) as a materialization
// cache with the given retention policy. Either limit may be zero to
// disable that dimension of retention.
func Open(dir string, maxAgeMs, maxSizeBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blockcache: creating cache dir: %w", err)
	}
	return &Store{dir: dir, maxAgeMs: maxAgeMs, maxSizeBytes: maxSizeBytes}, nil
}

func (s *Store) blkPath(key string) string  { return filepath.Join(s.dir, key+".blk") }
func (s *Store) metaPath(key string) string { return filepath.Join(s.dir, key+".meta") }

// Get returns the previously-materialized chunks for (path, mtime,
// querySignature), or ok=false on a cache miss (including a stale
// meta record whose recorded mtime no longer matches).
func (s *Store) Get(path string, mtime time.Time, querySignature string) ([]*schema.Chunk, bool, error) {
	key := Key(path, mtime, querySignature)
	m, ok, err := s.readMeta(key)
	if err != nil || !ok {
		return nil, false, err
	}
	if m.ModTimeUnixNano != mtime.UnixNano() || m.Path != path {
		return nil, false, nil
	}

	body, err := os.ReadFile(s.blkPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blockcache: reading entry: %w", err)
	}

	chunks, err := decodeEntry(bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	return chunks, true, nil
}

// Put persists chunks as the materialization for (path, mtime,
// querySignature), overwriting any existing entry under that key.
func (s *Store) Put(path string, mtime time.Time, querySignature string, chunks []*schema.Chunk) error {
	key := Key(path, mtime, querySignature)

	var body bytes.Buffer
	if err := encodeEntry(&body, chunks); err != nil {
		return err
	}
	if err := os.WriteFile(s.blkPath(key), body.Bytes(), 0o600); err != nil {
		return fmt.Errorf("blockcache: writing entry: %w", err)
	}

	m := meta{
		Path:              path,
		ModTimeUnixNano:   mtime.UnixNano(),
		QuerySignature:    querySignature,
		WrittenAtUnixNano: time.Now().UnixNano(),
		SizeBytes:         int64(body.Len()),
	}
	var mb bytes.Buffer
	if err := gob.NewEncoder(&mb).Encode(m); err != nil {
		return fmt.Errorf("blockcache: encoding meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(key), mb.Bytes(), 0o600); err != nil {
		return fmt.Errorf("blockcache: writing meta: %w", err)
	}
	return nil
}

func (s *Store) readMeta(key string) (meta, bool, error) {
	mb, err := os.ReadFile(s.metaPath(key))
	if os.IsNotExist(err) {
		return meta{}, false, nil
	}
	if err != nil {
		return meta{}, false, err
	}
	var m meta
	if err := gob.NewDecoder(bytes.NewReader(mb)).Decode(&m); err != nil {
		return meta{}, false, fmt.Errorf("blockcache: decoding meta: %w", err)
	}
	return m, true, nil
}

// Evict enforces retention: entries whose source file's current mtime
// no longer matches the entry's recorded mtime are stale and removed
// first (spec.md §6); remaining entries older than maxAgeMs are
// removed; if the cache still exceeds maxSizeBytes, the oldest
// surviving entries (by write time) are removed until it fits.
func (s *Store) Evict() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("blockcache: listing cache dir: %w", err)
	}

	type live struct {
		key  string
		meta meta
	}
	var all []live
	seen := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".meta" {
			continue
		}
		key := name[:len(name)-len(".meta")]
		if seen[key] {
			continue
		}
		seen[key] = true
		m, ok, err := s.readMeta(key)
		if err != nil || !ok {
			continue
		}
		all = append(all, live{key: key, meta: m})
	}

	now := time.Now()
	var kept []live
	for _, e := range all {
		if st, statErr := os.Stat(e.meta.Path); statErr == nil {
			if st.ModTime().UnixNano() != e.meta.ModTimeUnixNano {
				logf(s.Logger, "blockcache: evicting stale entry for %s (source file changed)", e.meta.Path)
				s.remove(e.key)
				continue
			}
		}
		if s.maxAgeMs > 0 {
			ageMs := now.Sub(time.Unix(0, e.meta.WrittenAtUnixNano)).Milliseconds()
			if ageMs > s.maxAgeMs {
				logf(s.Logger, "blockcache: evicting aged-out entry for %s (%dms old)", e.meta.Path, ageMs)
				s.remove(e.key)
				continue
			}
		}
		kept = append(kept, e)
	}

	if s.maxSizeBytes > 0 {
		var total int64
		for _, e := range kept {
			total += e.meta.SizeBytes
		}
		if total > s.maxSizeBytes {
			sort.Slice(kept, func(i, j int) bool {
				return kept[i].meta.WrittenAtUnixNano < kept[j].meta.WrittenAtUnixNano
			})
			for _, e := range kept {
				if total <= s.maxSizeBytes {
					break
				}
				logf(s.Logger, "blockcache: evicting %s to stay under the size budget", e.meta.Path)
				s.remove(e.key)
				total -= e.meta.SizeBytes
			}
		}
	}
	return nil
}

func (s *Store) remove(key string) {
	os.Remove(s.blkPath(key))
	os.Remove(s.metaPath(key))
}

// encodeEntry writes the fixed header followed by one block per chunk,
// per spec.md §6's layout: { magic, version, blockCount, totalRows }
// then { blockId, rowCount, columns:[{dtype,data,hasNulls,nullBitmap?}] }.
// Each column's payload within a block is zstd-compressed separately
// (package compr), favoring ratio over speed for this rarely-rewritten
// cache.
func encodeEntry(w *bytes.Buffer, chunks []*schema.Chunk) error {
	var sc *schema.Schema
	if len(chunks) > 0 {
		sc = chunks[0].Schema
	}
	w.WriteString(magic)
	writeUint32(w, formatVer)
	writeUint32(w, uint32(len(chunks)))

	var totalRows int64
	for _, c := range chunks {
		totalRows += int64(c.RowCount)
	}
	writeUint64(w, uint64(totalRows))

	writeUint32(w, uint32(schemaLen(sc)))
	for i := 0; i < schemaLen(sc); i++ {
		col := sc.Columns[i]
		writeUint16(w, uint16(len(col.Name)))
		w.WriteString(col.Name)
		w.WriteByte(byte(col.DType))
	}

	for blockID, c := range chunks {
		writeUint64(w, uint64(blockID))
		writeUint32(w, uint32(c.RowCount))
		for i := range c.Columns {
			v := &c.Columns[i]
			raw := encodeColumn(v, c.RowCount)
			compressed := compr.Compression(blockCompr).Compress(raw, nil)

			hasNulls := v.NullBitmap != nil
			if hasNulls {
				w.WriteByte(1)
				writeUint32(w, uint32(len(v.NullBitmap)))
				w.Write(v.NullBitmap)
			} else {
				w.WriteByte(0)
			}
			writeUint64(w, uint64(len(raw)))   // decompressed length, for Decompress's sized dst
			writeUint64(w, uint64(len(compressed)))
			w.Write(compressed)
		}
	}
	return nil
}

func schemaLen(sc *schema.Schema) int {
	if sc == nil {
		return 0
	}
	return sc.Len()
}

func decodeEntry(r *bytes.Reader) ([]*schema.Chunk, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("blockcache: reading magic: %w", err)
	}
	if string(hdr[:]) != magic {
		return nil, fmt.Errorf("blockcache: bad magic %q", hdr)
	}
	ver, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if ver != formatVer {
		return nil, fmt.Errorf("blockcache: unsupported version %d", ver)
	}
	blockCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if _, err := readUint64(r); err != nil { // totalRows, informational only
		return nil, err
	}

	colCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	cols := make([]schema.Column, colCount)
	for i := range cols {
		nameLen, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return nil, err
		}
		dt, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		cols[i] = schema.Column{Name: string(nameBuf), DType: schema.DType(dt)}
	}
	sc, err := schema.New(cols)
	if err != nil {
		return nil, err
	}

	chunks := make([]*schema.Chunk, 0, blockCount)
	startRow := 0
	for b := uint32(0); b < blockCount; b++ {
		if _, err := readUint64(r); err != nil { // blockId, unused on read
			return nil, err
		}
		rowCount32, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		rowCount := int(rowCount32)

		vecs := make([]schema.Vector, len(cols))
		var chunkRaw []byte
		for i, col := range cols {
			hasNulls, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			var nullBitmap []byte
			if hasNulls == 1 {
				n, err := readUint32(r)
				if err != nil {
					return nil, err
				}
				nullBitmap = make([]byte, n)
				if _, err := io.ReadFull(r, nullBitmap); err != nil {
					return nil, err
				}
			}
			plainLen, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			compLen, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			compData := make([]byte, compLen)
			if _, err := io.ReadFull(r, compData); err != nil {
				return nil, err
			}
			plain := make([]byte, plainLen)
			if err := compr.Decompression(blockCompr).Decompress(compData, plain); err != nil {
				return nil, fmt.Errorf("blockcache: decompressing column %q: %w", col.Name, err)
			}

			v, err := decodeColumn(col.DType, rowCount, plain, &chunkRaw)
			if err != nil {
				return nil, err
			}
			v.NullBitmap = nullBitmap
			vecs[i] = v
		}

		chunks = append(chunks, schema.NewChunk(sc, startRow, rowCount, vecs, chunkRaw))
		startRow += rowCount
	}
	return chunks, nil
}

// encodeColumn serializes a vector's n values to a flat byte slice,
// independent of compression. String values are stored fully
// unescaped (DecodeString), so decode never needs escape metadata.
func encodeColumn(v *schema.Vector, n int) []byte {
	switch v.DType {
	case schema.Int32:
		buf := make([]byte, 4*n)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v.Int32s[i]))
		}
		return buf
	case schema.Float64:
		buf := make([]byte, 8*n)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v.Float64s[i]))
		}
		return buf
	case schema.Bool:
		buf := make([]byte, n)
		for i := 0; i < n; i++ {
			if v.Bools[i] {
				buf[i] = 1
			}
		}
		return buf
	case schema.Date, schema.DateTime:
		buf := make([]byte, 8*n)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(v.Int64s[i]))
		}
		return buf
	case schema.String:
		var buf bytes.Buffer
		var lenPrefix [4]byte
		for i := 0; i < n; i++ {
			s := v.DecodeString(i)
			binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(s)))
			buf.Write(lenPrefix[:])
			buf.WriteString(s)
		}
		return buf.Bytes()
	default:
		return nil
	}
}

// decodeColumn is encodeColumn's inverse. String columns append their
// decoded bytes to *sharedRaw (shared across every string column in
// the same block, matching schema.NewChunk's one-shared-buffer
// convention) rather than allocating a private buffer per column.
func decodeColumn(dt schema.DType, n int, data []byte, sharedRaw *[]byte) (schema.Vector, error) {
	v := schema.Vector{DType: dt}
	switch dt {
	case schema.Int32:
		v.Int32s = make([]int32, n)
		for i := 0; i < n; i++ {
			v.Int32s[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
	case schema.Float64:
		v.Float64s = make([]float64, n)
		for i := 0; i < n; i++ {
			v.Float64s[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case schema.Bool:
		v.Bools = make([]bool, n)
		for i := 0; i < n; i++ {
			v.Bools[i] = data[i] != 0
		}
	case schema.Date, schema.DateTime:
		v.Int64s = make([]int64, n)
		for i := 0; i < n; i++ {
			v.Int64s[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case schema.String:
		v.Offsets = make([]uint32, n)
		v.Lengths = make([]uint32, n)
		v.NeedsUnescape = make([]bool, n)
		pos := 0
		for i := 0; i < n; i++ {
			ln := binary.LittleEndian.Uint32(data[pos:])
			pos += 4
			v.Offsets[i] = uint32(len(*sharedRaw))
			v.Lengths[i] = ln
			*sharedRaw = append(*sharedRaw, data[pos:pos+int(ln)]...)
			pos += int(ln)
		}
	default:
		return v, fmt.Errorf("blockcache: unsupported dtype %s", dt)
	}
	return v, nil
}

func writeUint16(w *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.Write(b[:])
}

func writeUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
