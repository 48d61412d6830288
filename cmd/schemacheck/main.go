package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/recallkit/recallkit"
	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/schema"
	"github.com/recallkit/recallkit/storage/ram"
)

var (
	versionFlag = flag.Bool("version", false, "Show version information")
	vFlag       = flag.Bool("v", false, "Show version information (short)")
	modeFlag    = flag.String("mode", "error", "Conflict mode: error, warn, repair or ignore")
)

func main() {
	flag.Parse()

	if *versionFlag || *vFlag {
		info := recallkit.GetVersionInfo()
		fmt.Printf("Recallkit schemacheck version %s\n", info.Version)
		fmt.Printf("Git commit: %s\n", info.GitCommit)
		fmt.Printf("Build date: %s\n", info.BuildDate)
		fmt.Printf("Go version: %s\n", info.GoVersion)
		os.Exit(0)
	}

	// Optional .env so CI and local runs can point SCHEMA_FILE somewhere.
	_ = godotenv.Load()

	path := flag.Arg(0)
	if path == "" {
		path = os.Getenv("SCHEMA_FILE")
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: schemacheck [-mode error|warn|repair|ignore] <model.yaml>")
		os.Exit(2)
	}

	mode := errors.Conflicts(*modeFlag)
	if !mode.Valid() {
		fmt.Fprintf(os.Stderr, "unknown conflict mode %q\n", *modeFlag)
		os.Exit(2)
	}

	if err := run(path, mode); err != nil {
		fmt.Fprintf(os.Stderr, "schemacheck: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, mode errors.Conflicts) error {
	model, err := schema.LoadFile(path)
	if err != nil {
		return err
	}

	store := recallkit.New(ram.New(nil))
	ctx := context.Background()
	defer store.Shutdown(ctx)

	classes, err := model.Register(store)
	if err != nil {
		return err
	}
	warnings, err := store.MapAll(ctx, mode)
	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%d class(es) OK\n", len(classes))
	for _, cls := range classes {
		fmt.Printf("  %s: %d field(s)", cls.Name(), len(cls.Fields()))
		if cls.HasIdentifiers() {
			fmt.Printf(", identified by %v", cls.Identifiers())
		}
		fmt.Println()
		for name, a := range cls.Associations() {
			if a.Near == cls {
				fmt.Printf("    -> %s (%s, %s)\n", name, a.Far.Name(), a.Cardinality)
			}
		}
	}
	return nil
}
