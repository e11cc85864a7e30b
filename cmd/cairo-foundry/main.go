// Cairo-foundry CLI - executes compiled Cairo programs.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"

	"github.com/gaetbout/cairo-foundry/manifest"
	"github.com/gaetbout/cairo-foundry/store"
	"github.com/gaetbout/cairo-foundry/vm"
	"github.com/gaetbout/cairo-foundry/wire"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	programPath := flag.String("program", "", "Path to a compiled program JSON file")
	entrypoint := flag.String("entrypoint", "", "Function to execute (defaults to foundry.toml or 'main')")
	strictHints := flag.Bool("strict-hints", false, "Fail on hints with no registered implementation")
	journalPath := flag.String("journal", "", "Record the run in the journal at this path")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cairo-foundry [options]\n\n")
		fmt.Fprintf(os.Stderr, "Executes a compiled Cairo program and prints its output.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cairo-foundry -program build/fib.json\n")
		fmt.Fprintf(os.Stderr, "  cairo-foundry -program build/fib.json -entrypoint fib -strict-hints\n")
		fmt.Fprintf(os.Stderr, "  cairo-foundry -program build/fib.json -journal .foundry/runs.db\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if *programPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := manifest.FindAndLoad(filepath.Dir(*programPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	entry := *entrypoint
	if entry == "" {
		entry = cfg.Execution.Entrypoint
	}
	strict := *strictHints || cfg.Execution.StrictHints

	journal := *journalPath
	if journal == "" && cfg.Journal.Enabled {
		journal = cfg.JournalPath()
	}

	if err := run(*programPath, entry, strict, journal); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(programPath, entrypoint string, strict bool, journalPath string) error {
	if err := vm.ValidateProgramPath(programPath); err != nil {
		return err
	}

	data, err := os.ReadFile(programPath)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", programPath, err)
	}

	program, err := vm.ParseProgram(data)
	if err != nil {
		return fmt.Errorf("loading program %q: %w", programPath, err)
	}

	registry := vm.DefaultHintRegistry()
	if strict {
		registry = vm.NewStrictHintRegistry()
		if err := vm.RegisterBuiltins(registry); err != nil {
			return err
		}
	}

	runner := vm.NewRunner(program, registry)
	out, runErr := runner.Run(entrypoint)
	if runErr == nil {
		fmt.Print(out.String())
	}

	if journalPath != "" {
		if err := record(journalPath, programPath, entrypoint, data, out, runner, runErr); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("failed to run %q: %w", programPath, runErr)
	}
	return nil
}

func record(journalPath, programPath, entrypoint string, programBytes []byte, out *vm.Output, runner *vm.Runner, runErr error) error {
	if dir := filepath.Dir(journalPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating journal directory: %w", err)
		}
	}

	journal, err := store.Open(journalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	entry := store.Run{
		ProgramPath: programPath,
		Entrypoint:  entrypoint,
		Status:      store.StatusOk,
		CreatedAt:   time.Now().UTC(),
	}
	if runErr != nil {
		entry.Status = store.StatusFailed
		entry.Error = runErr.Error()
	} else {
		artifact := wire.NewRunArtifact(programBytes, entrypoint, out, runner)
		blob, err := wire.MarshalArtifact(artifact)
		if err != nil {
			return fmt.Errorf("encoding run artifact: %w", err)
		}
		entry.Artifact = blob
	}

	if _, err := journal.Record(entry); err != nil {
		return err
	}
	return nil
}
