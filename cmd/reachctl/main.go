// Command reachctl is a journal-inspection CLI, grounded on the
// teacher's cmd/reachctl subcommand style (flag-based dispatch, a
// run(ctx, args, out, errOut) int entrypoint kept separate from main for
// testability) but trimmed to the journal-facing subcommands this core
// actually owns — verify, compact, and tail. The teacher's
// proofbundle/trust/historical/bugreport/mcp subcommands belonged to the
// out-of-scope swarm/attestation/API layer (spec.md §1) and are dropped.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"reach/core/internal/journal"
	"reach/core/internal/reacherr"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) < 1 {
		usage(errOut)
		return 2
	}

	switch args[0] {
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "compact":
		return cmdCompact(args[1:], out, errOut)
	case "tail":
		return cmdTail(args[1:], out, errOut)
	case "-h", "--help", "help":
		usage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "reachctl: unknown subcommand %q\n", args[0])
		usage(errOut)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: reachctl <subcommand> [flags]

subcommands:
  verify   -journal <path>              re-walk the hash chain and report the first broken link, if any
  compact  -journal <path> [-session id ...]   rebuild the journal, optionally retaining only the named sessions
  tail     -journal <path> -session id [-offset N] [-limit N]   print a session's events as JSON lines`)
}

func cmdVerify(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	path := fs.String("journal", "", "journal file path")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" {
		fmt.Fprintln(errOut, "reachctl verify: -journal is required")
		return 2
	}

	j, err := journal.Open(*path, journal.Options{})
	if err != nil {
		// Open refuses a broken chain; its error carries the broken index.
		var re *reacherr.Error
		if errors.As(err, &re) && re.Code == reacherr.CodeJournalHashMismatch {
			if brokenAt, ok := re.Details["broken_at"].(int); ok {
				fmt.Fprintf(out, "invalid: broken at index %d\n", brokenAt)
				return 1
			}
		}
		fmt.Fprintf(errOut, "reachctl verify: open: %v\n", err)
		return 1
	}
	defer j.Close()

	result, err := j.VerifyIntegrity()
	if err != nil {
		fmt.Fprintf(errOut, "reachctl verify: %v\n", err)
		return 1
	}
	if result.Valid {
		fmt.Fprintln(out, "valid")
		return 0
	}
	fmt.Fprintf(out, "invalid: broken at index %d\n", result.BrokenAt)
	return 1
}

func cmdCompact(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("compact", flag.ContinueOnError)
	fs.SetOutput(errOut)
	path := fs.String("journal", "", "journal file path")
	var sessions stringSliceFlag
	fs.Var(&sessions, "session", "session id to retain (repeatable); omit to retain every session")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" {
		fmt.Fprintln(errOut, "reachctl compact: -journal is required")
		return 2
	}

	j, err := journal.Open(*path, journal.Options{})
	if err != nil {
		fmt.Fprintf(errOut, "reachctl compact: open: %v\n", err)
		return 1
	}
	defer j.Close()

	var retain []string
	if len(sessions) > 0 {
		retain = []string(sessions)
	}
	result, err := j.Compact(retain)
	if err != nil {
		fmt.Fprintf(errOut, "reachctl compact: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "compacted: %d -> %d events\n", result.BeforeCount, result.AfterCount)
	return 0
}

func cmdTail(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	fs.SetOutput(errOut)
	path := fs.String("journal", "", "journal file path")
	session := fs.String("session", "", "session id")
	offset := fs.Int("offset", 0, "starting offset within the session")
	limit := fs.Int("limit", 0, "maximum events to print (0 = no limit)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" || *session == "" {
		fmt.Fprintln(errOut, "reachctl tail: -journal and -session are required")
		return 2
	}

	j, err := journal.Open(*path, journal.Options{})
	if err != nil {
		fmt.Fprintf(errOut, "reachctl tail: open: %v\n", err)
		return 1
	}
	defer j.Close()

	enc := json.NewEncoder(out)
	for _, e := range j.ReadSession(*session, *offset, *limit) {
		if err := enc.Encode(e); err != nil {
			fmt.Fprintf(errOut, "reachctl tail: encode event: %v\n", err)
			return 1
		}
	}
	return 0
}

// stringSliceFlag collects repeated -flag values into a slice.
type stringSliceFlag []string

func (s *stringSliceFlag) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringSliceFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}
