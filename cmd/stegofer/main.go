// Command stegofer hides messages inside LLM-generated text, or recovers
// them, by steering the model's own token choices through an arithmetic
// coder. It mirrors the reference tool's three operations: encode, decode,
// and compress (a standalone report on the model's own predictive
// compression of stdin, with no steganographic channel involved).
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nkoppel/llama-cpp-steganography/internal/llm"
)

// rootFlags holds the flags shared by every subcommand, grounded on the
// reference CLI's top-level Cli struct (model/gpu/infile/outfile).
type rootFlags struct {
	model    string
	nCtx     int
	gpu      bool
	infile   string
	outfile  string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "stegofer",
		Short:         "Hide and recover messages in LLM-generated text",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&flags.model, "model", "m", "", "GGUF model file to use during inference")
	root.PersistentFlags().IntVar(&flags.nCtx, "n-ctx", 8192, "context window size to allocate")
	root.PersistentFlags().BoolVarP(&flags.gpu, "gpu", "g", false, "offload inference to the GPU")
	root.PersistentFlags().StringVarP(&flags.infile, "infile", "i", "", "input file (defaults to stdin)")
	root.PersistentFlags().StringVarP(&flags.outfile, "outfile", "o", "", "output file (defaults to stdout)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(newEncodeCmd(flags))
	root.AddCommand(newDecodeCmd(flags))
	root.AddCommand(newCompressCmd(flags))
	return root
}

// newLogger builds a request-scoped logger the way swdunlop/ollama threads
// a *zerolog.Logger down through its llama adapter: one console writer, one
// correlation id per invocation.
func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("stegofer: invalid --log-level %q: %w", level, err)
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().
		Timestamp().
		Str("request_id", uuid.NewString()).
		Logger(), nil
}

func readInput(flags *rootFlags) (string, error) {
	if flags.infile == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("stegofer: reading stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(flags.infile)
	if err != nil {
		return "", fmt.Errorf("stegofer: reading %s: %w", flags.infile, err)
	}
	return string(b), nil
}

func writeOutput(flags *rootFlags, s string) error {
	if flags.outfile == "" {
		_, err := fmt.Fprint(os.Stdout, s)
		return err
	}
	return os.WriteFile(flags.outfile, []byte(s), 0o644)
}

// openModel validates the shared flags and loads the backing model, giving
// the caller a cleanup func it must defer.
func openModel(flags *rootFlags, log zerolog.Logger) (llm.Adapter, func(), error) {
	if flags.model == "" {
		return nil, nil, fmt.Errorf("stegofer: --model is required")
	}
	return loadModel(log, flags.model, flags.nCtx, flags.gpu)
}
