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

// Package compr provides a unified interface wrapping the two
// third-party compression algorithms colex uses: s2 for external
// sort-run files (many small writes, favor speed) and zstd for the
// on-disk materialization cache (infrequently rewritten, favor ratio).
package compr

import (
	"fmt"
	"runtime"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Compressor appends the compressed contents of src to dst.
type Compressor interface {
	Name() string
	Compress(src, dst []byte) []byte
}

// Decompressor decompresses src into dst, which must already be sized
// to the expected decompressed length.
type Decompressor interface {
	Name() string
	Decompress(src, dst []byte) error
}

type zstdCompressor struct{ enc *zstd.Encoder }

func (z zstdCompressor) Name() string { return "zstd" }

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

var zstdDecoder *zstd.Decoder

func init() {
	d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = d
}

type zstdDecompressor struct{}

func (zstdDecompressor) Name() string { return "zstd" }

func (zstdDecompressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := zstdDecoder.DecodeAll(src, into)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("zstd: expected %d bytes decompressed, got %d", len(dst), len(ret))
	}
	return nil
}

type s2Compressor struct{}

func (s2Compressor) Name() string { return "s2" }

func (s2Compressor) Compress(src, dst []byte) []byte {
	got := s2.Encode(nil, src)
	return append(dst, got...)
}

func (s2Compressor) Decompress(src, dst []byte) error {
	into := dst[:0:len(dst)]
	ret, err := s2.Decode(into, src)
	if err != nil {
		return err
	}
	if len(ret) != len(dst) {
		return fmt.Errorf("s2: expected %d bytes decompressed, got %d", len(dst), len(ret))
	}
	return nil
}

// Compression selects a compression algorithm by name ("zstd" or
// "s2"). It returns nil for an unrecognized name.
func Compression(name string) Compressor {
	switch name {
	case "zstd":
		w, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return zstdCompressor{w}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}

// Decompression selects a decompression algorithm by name.
func Decompression(name string) Decompressor {
	switch name {
	case "zstd":
		return zstdDecompressor{}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}
