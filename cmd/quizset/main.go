// quizset composes an assessment set offline from a snapshot file (.xlsx,
// .json or .jsonc) and prints it as JSON.
//
// Usage:
//
//	quizset --snapshot bank.xlsx --grade 중2 --subject 영어 --categories 어휘,문법 --count 20
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/p-n-ai/pai-quizset/internal/apierr"
	"github.com/p-n-ai/pai-quizset/internal/bank"
	"github.com/p-n-ai/pai-quizset/internal/compose"
	"github.com/p-n-ai/pai-quizset/internal/platform/config"
	"github.com/p-n-ai/pai-quizset/internal/platform/logging"
	"github.com/p-n-ai/pai-quizset/internal/request"
	"github.com/p-n-ai/pai-quizset/internal/taxonomy"
)

// Exit codes.
const (
	exitFailure      = 1
	exitInvalid      = 2
	exitNoCandidates = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.ExitCode())
		}
		os.Exit(exitFailure)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		snapshot     string
		taxonomyPath string
		raw          request.RawRequest
		categories   []string
		plan         map[string]int
		seed         uint64
		logLevel     string
		indent       bool
	)

	flagSet := pflag.NewFlagSet("quizset", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&snapshot, "snapshot", "", "item bank snapshot (.xlsx, .json or .jsonc)")
	flagSet.StringVar(&taxonomyPath, "taxonomy", "", "taxonomy YAML overriding the built-in tables")
	flagSet.StringVar(&raw.Grade, "grade", "", "grade, e.g. 2, 중2, 2학년")
	flagSet.StringVar(&raw.Subject, "subject", "", "subject code or alias, e.g. english, 영어")
	flagSet.StringSliceVar(&categories, "categories", nil, "category labels, comma-separated")
	flagSet.IntVar(&raw.Count, "count", 0, "target item count (default from limits)")
	flagSet.StringVar(&raw.Preset, "preset", "", "named count plan, e.g. balanced")
	flagSet.StringToIntVar(&plan, "plan", nil, "explicit counts, e.g. vocab=5,grammar=3")
	flagSet.Uint64Var(&seed, "seed", 0, "selection seed (0 picks a random one)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flagSet.BoolVar(&indent, "indent", true, "indent JSON output")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return &exitError{code: exitInvalid, err: err}
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return &exitError{code: exitInvalid, err: fmt.Errorf("unexpected argument: %s", rest[0])}
	}
	if snapshot == "" {
		return &exitError{code: exitInvalid, err: errors.New("--snapshot is required")}
	}
	raw.Categories = categories
	raw.Plan = plan

	slog.SetDefault(logging.New(stderr, config.LogConfig{Level: logLevel, Format: "text"}))

	tax, err := taxonomy.Load(taxonomyPath)
	if err != nil {
		return err
	}
	store, err := bank.OpenSnapshot(snapshot, tax)
	if err != nil {
		return err
	}

	if seed == 0 {
		seed = rand.Uint64()
	}
	engine := compose.NewEngine(store, tax, compose.Config{
		Limits: request.DefaultLimits(),
		Rand:   rand.New(rand.NewPCG(seed, seed)),
	})
	slog.Debug("composing", "snapshot", snapshot, "items", store.Len(), "seed", seed)

	res, err := engine.Compose(ctx, raw)
	switch {
	case errors.Is(err, apierr.ErrInvalidRequest):
		return &exitError{code: exitInvalid, err: err}
	case errors.Is(err, apierr.ErrNoCandidates):
		return &exitError{code: exitNoCandidates, err: err}
	case err != nil:
		return err
	}

	enc := json.NewEncoder(stdout)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(res)
}
