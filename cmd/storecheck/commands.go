package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/liamcoop/storecheck/internal/config"
	"github.com/liamcoop/storecheck/purchase"
	"github.com/liamcoop/storecheck/report"
	"github.com/liamcoop/storecheck/rules"
	"github.com/liamcoop/storecheck/unlock"
)

const sampleListing = `About This Game: Test description...
Early Access: Yes
Pricing: $19.99`

// commonFlags are accepted by every subcommand
type commonFlags struct {
	configPath string
	statePath  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", config.DefaultConfigPath(), "Path to configuration file")
	fs.StringVar(&c.statePath, "state", "", "Path to the unlock state database")
}

// session is the loaded config plus the local unlock state
type session struct {
	cfg   *config.Config
	state *unlock.State
	path  string
	store *unlock.SQLStore
}

func (c *commonFlags) open(ctx context.Context) (*session, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path := cfg.Unlock.SQLitePath
	if c.statePath != "" {
		path = c.statePath
	}
	store, err := unlock.NewSQLiteStore(path, cfg.Unlock.Key)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:   cfg,
		state: unlock.Load(ctx, store),
		path:  path,
		store: store,
	}, nil
}

func (s *session) Close() {
	s.store.Close()
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func readListing(path string, stdin io.Reader) (string, error) {
	if path == "" {
		return "", nil
	}
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read listing: %w", err)
	}
	return string(data), nil
}

func runCheckCmd(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := newFlagSet("check", stderr)
	var common commonFlags
	common.register(fs)

	var (
		file       string
		reference  string
		sample     bool
		copyOutput bool
		jsonOutput bool
		strict     bool
	)
	fs.StringVar(&file, "file", "", "Read listing text from a file (\"-\" for stdin)")
	fs.StringVar(&reference, "url", "", "Store page URL")
	fs.BoolVar(&sample, "sample", false, "Check a built-in sample listing")
	fs.BoolVar(&copyOutput, "copy", false, "Plain text output suitable for pasting")
	fs.BoolVar(&jsonOutput, "json", false, "JSON output")
	fs.BoolVar(&strict, "strict", false, "Exit 1 when any rule fails")

	if err := fs.Parse(args); err != nil {
		return exitError
	}

	text, err := readListing(file, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if sample {
		text = sampleListing
	}

	s, err := common.open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer s.Close()

	text, err = rules.PrepareInput(text, reference, s.cfg.ReferencePolicy())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	engine, err := rules.NewEngine(nil, s.state)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if s.cfg.Rules.File != "" {
		defs, err := rules.LoadDefinitions(s.cfg.Rules.File)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
		if _, err := engine.Seed(defs); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	}

	rep, err := engine.Check(text)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	switch {
	case jsonOutput:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitError
		}
	case copyOutput:
		fmt.Fprint(stdout, report.Text(rep))
	default:
		fmt.Fprint(stdout, report.Terminal(rep))
	}

	if strict && rep.Counts.Fail > 0 {
		return exitFindings
	}
	return exitOK
}

func runUnlockCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("unlock", stderr)
	var common commonFlags
	common.register(fs)
	var email string
	fs.StringVar(&email, "email", "", "Email address used at checkout (REQUIRED)")

	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if email == "" {
		fmt.Fprintln(stderr, "Error: -email is required")
		return exitError
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if !secrets.HasPaddle() {
		fmt.Fprintln(stderr, "Error: PADDLE_API_KEY is not set")
		return exitError
	}

	s, err := common.open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer s.Close()

	verifier, err := purchase.NewPaddleVerifier(purchase.PaddleConfig{
		BaseURL:    s.cfg.Purchase.BaseURL,
		APIKey:     secrets.PaddleAPIKey,
		Timeout:    time.Duration(s.cfg.Purchase.Timeout) * time.Second,
		MaxRetries: uint64(s.cfg.Purchase.MaxRetries),
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	v, err := purchase.NewCompleter(s.state, verifier).Restore(ctx, email)
	switch {
	case errors.Is(err, purchase.ErrPurchaseNotFound):
		fmt.Fprintln(stdout, v.Message)
		return exitFindings
	case err != nil:
		fmt.Fprintf(stderr, "Error: unable to verify purchase: %v\n", err)
		return exitError
	}

	fmt.Fprintf(stdout, "%s (%d transactions). Premium rules unlocked.\n", v.Message, v.TransactionCount)
	return exitOK
}

func runLockCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("lock", stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	s, err := common.open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer s.Close()

	if err := s.state.Reset(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	fmt.Fprintln(stdout, "Premium rules locked.")
	return exitOK
}

func runStatusCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("status", stderr)
	var common commonFlags
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	s, err := common.open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	defer s.Close()

	premium := len(rules.DefaultCatalogue()) - len(rules.DefaultCatalogue().Free())
	if s.state.Unlocked() {
		fmt.Fprintf(stdout, "Premium rules: unlocked (%d premium rules available)\n", premium)
	} else {
		fmt.Fprintf(stdout, "Premium rules: locked (%d premium rules gated)\n", premium)
	}
	fmt.Fprintf(stdout, "State: %s\n", s.path)
	return exitOK
}
