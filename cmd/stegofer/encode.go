package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nkoppel/llama-cpp-steganography/internal/shaper"
	"github.com/nkoppel/llama-cpp-steganography/internal/stego"
)

// encodeFlags mirrors the reference tool's EncodeArgs, plus --policy and
// --threshold, which the reference hard-codes to a single call site.
type encodeFlags struct {
	skipStart  int
	tokenCount int
	minP       float64
	topK       int
	temp       float64
	policy     string
	threshold  float64
	compress   bool
}

func newEncodeCmd(root *rootFlags) *cobra.Command {
	flags := &encodeFlags{}

	cmd := &cobra.Command{
		Use:   "encode <prompt>",
		Short: "Hide the message sent on stdin inside generated text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(cmd.Context(), root, flags, args[0])
		},
	}
	cmd.Flags().IntVarP(&flags.skipStart, "skip-start", "k", 8, "tokens to generate before encoding begins")
	cmd.Flags().IntVarP(&flags.tokenCount, "token-count", "t", 1024, "maximum number of tokens to generate")
	cmd.Flags().Float64Var(&flags.minP, "min-p", 0.02, "min-p filtering value for sampling")
	cmd.Flags().IntVar(&flags.topK, "top-k", 0, "top-k filtering value for sampling (0 disables it)")
	cmd.Flags().Float64Var(&flags.temp, "temp", 1.0, "temperature sampling value")
	cmd.Flags().StringVar(&flags.policy, "policy", "coding-window", "steganographic policy: coding-window or auxiliary-gate")
	cmd.Flags().Float64Var(&flags.threshold, "threshold", 0.2, "KL-divergence gate threshold (auxiliary-gate policy only)")
	cmd.Flags().BoolVar(&flags.compress, "compress", true, "compress the message before hiding it")
	return cmd
}

func runEncode(ctx context.Context, root *rootFlags, flags *encodeFlags, prompt string) error {
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
		Policy:     policy,
		Prompt:     prompt,
		TokenCount: flags.tokenCount,
		SkipStart:  flags.skipStart,
		Filter:     shaper.FilterParams{MinP: flags.minP, TopK: flags.topK, Temp: flags.temp},
		Threshold:  flags.threshold,
	}

	input, err := readInput(root)
	if err != nil {
		return err
	}

	var out string
	if flags.compress {
		out, err = stego.EncodeCompressed(ctx, adapter, input, params, log)
	} else {
		out, err = stego.EncodeMessage(ctx, adapter, []byte(input), params, log)
	}
	if err != nil {
		return fmt.Errorf("stegofer: encode: %w", err)
	}
	return writeOutput(root, out)
}

func parsePolicy(s string) (stego.Policy, error) {
	switch s {
	case "coding-window":
		return stego.PolicyCodingWindow, nil
	case "auxiliary-gate":
		return stego.PolicyAuxiliaryGate, nil
	default:
		return 0, fmt.Errorf("stegofer: unknown --policy %q (want coding-window or auxiliary-gate)", s)
	}
}
