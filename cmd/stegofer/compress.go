package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"

	"github.com/nkoppel/llama-cpp-steganography/internal/compressor"
)

// newCompressCmd reports stdin's size before and after the model's own
// predictive compression, with no steganographic channel involved —
// grounded on the reference tool's bare Command::Compress arm. The
// optional --baseline flag adds a general-purpose xz comparison so the
// model's compression ratio can be judged against a standard codec.
func newCompressCmd(root *rootFlags) *cobra.Command {
	var baseline bool

	cmd := &cobra.Command{
		Use:   "compress",
		Short: "Report the bit length of stdin before and after model-driven compression",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log, err := newLogger(root.logLevel)
			if err != nil {
				return err
			}
			adapter, cleanup, err := openModel(root, log)
			if err != nil {
				return err
			}
			defer cleanup()

			input, err := readInput(root)
			if err != nil {
				return err
			}

			bits, err := compressor.Compress(ctx, adapter, input)
			if err != nil {
				return fmt.Errorf("stegofer: compress: %w", err)
			}

			report := fmt.Sprintf("Normal: %d\nCompressed: %d\n", len(input)*8, len(bits))
			if baseline {
				n, err := xzCompressedSize(input)
				if err != nil {
					return fmt.Errorf("stegofer: xz baseline: %w", err)
				}
				report += fmt.Sprintf("XZ baseline: %d\n", n*8)
			}
			return writeOutput(root, report)
		},
	}
	cmd.Flags().BoolVar(&baseline, "baseline", false, "also report xz-compressed size as a non-model baseline")
	return cmd
}

func xzCompressedSize(s string) (int, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}
