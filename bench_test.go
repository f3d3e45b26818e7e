package disklru

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

func BenchmarkGet(b *testing.B) {
	cases := []struct {
		name      string
		entries   int
		valueSize int
	}{
		{name: "entries=64/size=1k", entries: 64, valueSize: 1 << 10},
		{name: "entries=64/size=64k", entries: 64, valueSize: 64 << 10},
		{name: "entries=1024/size=1k", entries: 1024, valueSize: 1 << 10},
	}

	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			c, err := Open(b.TempDir(), 1, 1, int64(bc.entries*bc.valueSize*2))
			if err != nil {
				b.Fatal(err)
			}
			defer c.Close()

			value := strings.Repeat("v", bc.valueSize)
			keys := make([]string, bc.entries)
			for i := range keys {
				keys[i] = fmt.Sprintf("key-%d", i)
				ed, err := c.Edit(keys[i])
				if err != nil {
					b.Fatal(err)
				}
				if err := ed.Set(0, value); err != nil {
					b.Fatal(err)
				}
				if err := ed.Commit(); err != nil {
					b.Fatal(err)
				}
			}

			b.SetBytes(int64(bc.valueSize))
			b.ResetTimer()
			i := 0
			for b.Loop() {
				snap, err := c.Get(keys[i%len(keys)])
				if err != nil {
					b.Fatal(err)
				}
				if _, err := io.Copy(io.Discard, snap.Reader(0)); err != nil {
					b.Fatal(err)
				}
				_ = snap.Close()
				i++
			}
		})
	}
}

func BenchmarkEditCommit(b *testing.B) {
	for _, size := range []int{1 << 10, 64 << 10} {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			// Small bound so eviction and compaction run during the benchmark.
			c, err := Open(b.TempDir(), 1, 1, int64(size*32))
			if err != nil {
				b.Fatal(err)
			}
			defer c.Close()

			value := strings.Repeat("v", size)
			b.SetBytes(int64(size))
			i := 0
			for b.Loop() {
				ed, err := c.Edit(fmt.Sprintf("key-%d", i%256))
				if err != nil {
					b.Fatal(err)
				}
				if err := ed.Set(0, value); err != nil {
					b.Fatal(err)
				}
				if err := ed.Commit(); err != nil {
					b.Fatal(err)
				}
				i++
			}
		})
	}
}
