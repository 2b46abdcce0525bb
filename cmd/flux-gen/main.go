// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command flux-gen produces a synthetic flux stream, optionally through a
// compressing sink chain or a ring-of-sections buffer. It exists to
// exercise viewers and to provide sample streams for tests.
package main

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"code.hybscloud.com/flux"
)

func main() {
	var (
		out      string
		compress string
		sections int
		signals  int
		samples  int
	)

	cmd := &cobra.Command{
		Use:          "flux-gen",
		Short:        "generate a synthetic flux stream",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := os.Stdout
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return generate(w, compress, sections, signals, samples)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&compress, "compress", "none", "pack mode: none, lz4 or flz")
	cmd.Flags().IntVar(&sections, "sections", 0, "use a ring buffer with this many sections")
	cmd.Flags().IntVar(&signals, "signals", 4, "number of signals")
	cmd.Flags().IntVar(&samples, "samples", 256, "number of samples per signal")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func generate(w *os.File, compress string, sections, signals, samples int) error {
	final := flux.NewLinearBuffer(1<<16, flux.WriteTo(w))

	var buffer flux.Buffer
	var ring *flux.RingBuffer
	switch {
	case sections > 0:
		ring = flux.NewRingBuffer(1<<16, func(b *flux.RingBuffer, t *flux.Trace) {
			if t != nil {
				_ = t.AddHead("gen", "synthetic")
			}
		})
		buffer = ring
	case compress == "lz4":
		buffer = flux.NewLinearBuffer(1<<15, flux.CompressLZ4(final))
	case compress == "flz":
		buffer = flux.NewLinearBuffer(1<<15, flux.CompressFLZ(final))
	case compress == "none":
		buffer = final
	default:
		return fmt.Errorf("unknown pack mode %q", compress)
	}

	trace, err := flux.NewTrace(0, uint32(signals+1), flux.WithBuffer(buffer))
	if err != nil {
		return err
	}
	if err := trace.AddHead("gen", "synthetic"); err != nil {
		return err
	}
	if sections > 0 {
		if err := trace.AddSections(sections); err != nil {
			return err
		}
	}

	if err := trace.AddScope(1, 0, "top", "module"); err != nil {
		return err
	}
	for n := 0; n < signals; n++ {
		id := uint32(n + 2)
		var err error
		switch n % 4 {
		case 0:
			err = trace.AddSignal(id, 1, "bit"+strconv.Itoa(n), "", flux.TypeLogic, "")
		case 1:
			err = trace.AddSignal(id, 1, "wave"+strconv.Itoa(n), "", flux.TypeFloat, "")
		case 2:
			err = trace.AddSignal(id, 1, "count"+strconv.Itoa(n), "", flux.TypeInteger, "")
		default:
			err = trace.AddSignal(id, 1, "word"+strconv.Itoa(n), "", flux.TypeText, "")
		}
		if err != nil {
			return err
		}
	}

	if err := trace.Open(0, "ns", 0, 0); err != nil {
		return err
	}
	for i := 0; i < samples; i++ {
		pos := int64(i) * 5
		for n := 0; n < signals; n++ {
			id := uint32(n + 2)
			var err error
			switch n % 4 {
			case 0:
				err = trace.WriteLogicTextAt(id, false, pos, false, '0', strconv.FormatInt(int64(i>>n&1), 2))
			case 1:
				err = trace.WriteFloatAt(id, false, pos, false, math.Sin(float64(i)/16), 8)
			case 2:
				err = trace.WriteIntAt(id, false, pos, false, int64(i), 4, false)
			default:
				err = trace.WriteTextAt(id, false, pos, false, "s"+strconv.Itoa(i))
			}
			if err != nil {
				return err
			}
		}
	}
	if err := trace.Close(0, int64(samples)*5); err != nil {
		return err
	}

	if ring != nil {
		// Ring content has no sink; dump the arena as-is.
		_, err := w.Write(ring.Bytes())
		return err
	}
	return trace.Flush()
}
