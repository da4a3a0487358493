package codec

import (
	"testing"
)

type benchBox struct {
	Kind     string       `json:"kind"`
	Depth    int          `json:"depth"`
	Extents  [][2]float64 `json:"extents"`
	Masked   bool         `json:"masked,omitempty"`
	Children int          `json:"children,omitempty"`
	Offset   uint64       `json:"offset,omitempty"`
	Count    uint64       `json:"count,omitempty"`
}

type benchManifest struct {
	ID    string     `json:"id"`
	Dims  []string   `json:"dims"`
	Boxes []benchBox `json:"boxes"`
}

func benchManifestPayload(n int) benchManifest {
	m := benchManifest{ID: "bench", Dims: []string{"Qx", "Qy", "Qz"}}
	for i := range n {
		m.Boxes = append(m.Boxes, benchBox{
			Kind:    "leaf",
			Depth:   1 + i%3,
			Extents: [][2]float64{{-10, 10}, {-10, 10}, {-10, 10}},
			Offset:  uint64(i * 100),
			Count:   100,
		})
	}
	return m
}

func BenchmarkCodec_Marshal_Manifest(b *testing.B) {
	payload := benchManifestPayload(1000)

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		b.Run(c.Name(), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				if _, err := c.Marshal(payload); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCodec_Unmarshal_Manifest(b *testing.B) {
	data := MustMarshal(JSON{}, benchManifestPayload(1000))

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		b.Run(c.Name(), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for b.Loop() {
				var m benchManifest
				if err := c.Unmarshal(data, &m); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
