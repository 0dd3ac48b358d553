package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nkoppel/llama-cpp-steganography/internal/shaper"
	"github.com/nkoppel/llama-cpp-steganography/internal/stego"
)

// decodeFlags mirrors the reference tool's DecodeArgs: the same filter
// knobs as encode, minus the prompt, since the carrier text alone drives
// decoding.
type decodeFlags struct {
	skipStart int
	minP      float64
	topK      int
	temp      float64
	policy    string
	threshold float64
	compress  bool
}

func newDecodeCmd(root *rootFlags) *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Recover a message hidden in the text sent on stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(cmd.Context(), root, flags)
		},
	}
	cmd.Flags().IntVarP(&flags.skipStart, "skip-start", "k", 8, "tokens skipped at the start of generation")
	cmd.Flags().Float64Var(&flags.minP, "min-p", 0.02, "min-p filtering value for sampling")
	cmd.Flags().IntVar(&flags.topK, "top-k", 0, "top-k filtering value for sampling (0 disables it)")
	cmd.Flags().Float64Var(&flags.temp, "temp", 1.0, "temperature sampling value")
	cmd.Flags().StringVar(&flags.policy, "policy", "coding-window", "steganographic policy: coding-window or auxiliary-gate")
	cmd.Flags().Float64Var(&flags.threshold, "threshold", 0.2, "KL-divergence gate threshold (auxiliary-gate policy only)")
	cmd.Flags().BoolVar(&flags.compress, "compress", true, "decompress the recovered bit stream as a prior Compress payload")
	return cmd
}

func runDecode(ctx context.Context, root *rootFlags, flags *decodeFlags) error {
	log, err := newLogger(root.logLevel)
	if err != nil {
		return err
	}
	adapter, cleanup, err := openModel(root, log)
	if err != nil {
		return err
	}
	defer cleanup()

	policy, err := parsePolicy(flags.policy)
	if err != nil {
		return err
	}

	params := stego.Params{
		Policy:    policy,
		SkipStart: flags.skipStart,
		Filter:    shaper.FilterParams{MinP: flags.minP, TopK: flags.topK, Temp: flags.temp},
		Threshold: flags.threshold,
	}

	input, err := readInput(root)
	if err != nil {
		return err
	}

	var out string
	if flags.compress {
		out, err = stego.DecodeCompressed(ctx, adapter, input, params, log)
	} else {
		var msg []byte
		msg, err = stego.DecodeMessage(ctx, adapter, input, params, log)
		out = string(msg)
	}
	if err != nil {
		return fmt.Errorf("stegofer: decode: %w", err)
	}
	return writeOutput(root, out)
}
