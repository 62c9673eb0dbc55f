// Command storecheck checks storefront listing text from the terminal and
// manages the local premium unlock.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/liamcoop/storecheck/internal/logger"
)

// Exit codes
const (
	exitOK       = 0
	exitFindings = 1 // check -strict found failures, or no purchase was found
	exitError    = 2
)

func main() {
	ctx := context.Background()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger.SetOutput(stderr)
	logger.SetLevel(slog.LevelWarn)

	if len(args) == 0 {
		printUsage(stderr)
		return exitError
	}

	switch args[0] {
	case "check":
		return runCheckCmd(ctx, args[1:], stdin, stdout, stderr)
	case "unlock":
		return runUnlockCmd(ctx, args[1:], stdout, stderr)
	case "lock":
		return runLockCmd(ctx, args[1:], stdout, stderr)
	case "status":
		return runStatusCmd(ctx, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `storecheck - Steam store page compliance checker

Usage:
  storecheck check [flags]        Check listing text against every rule
  storecheck unlock -email <e>    Restore a previous purchase and unlock premium rules
  storecheck lock                 Forget the local unlock
  storecheck status               Show whether premium rules are unlocked
  storecheck help                 Show this help message

Check Flags:
  -file string     Read listing text from a file ("-" for stdin)
  -url string      Store page URL (cannot be fetched; see checker.reference_policy)
  -sample          Check a built-in sample listing
  -copy            Plain text output suitable for pasting
  -json            JSON output
  -strict          Exit 1 when any rule fails

Common Flags:
  -config string   Path to configuration file (default ~/.storecheck/config.yaml)
  -state string    Path to the unlock state database (default from config)

Environment Variables:
  PADDLE_API_KEY   Paddle API key used by unlock`)
}
