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

package compr

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"zstd", "s2"} {
		t.Run(name, func(t *testing.T) {
			src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

			c := Compression(name)
			if c == nil {
				t.Fatalf("Compression(%q) returned nil", name)
			}
			if c.Name() != name {
				t.Errorf("got Name()=%q, want %q", c.Name(), name)
			}
			compressed := c.Compress(src, nil)

			d := Decompression(name)
			if d == nil {
				t.Fatalf("Decompression(%q) returned nil", name)
			}
			dst := make([]byte, len(src))
			if err := d.Decompress(compressed, dst); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(dst, src) {
				t.Errorf("round trip mismatch for %s", name)
			}
		})
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	if Compression("lz4") != nil {
		t.Error("expected nil Compressor for an unknown algorithm")
	}
	if Decompression("lz4") != nil {
		t.Error("expected nil Decompressor for an unknown algorithm")
	}
}

func TestCompressAppendsToDst(t *testing.T) {
	c := Compression("s2")
	prefix := []byte("prefix:")
	out := c.Compress([]byte("hello world"), append([]byte(nil), prefix...))
	if !bytes.HasPrefix(out, prefix) {
		t.Error("Compress should append to the provided dst, preserving its prefix")
	}
}
