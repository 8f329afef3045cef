// Command jsoneval evaluates a schema against a data document and prints
// the evaluated schema, with optional inspection of the parsed artifact.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	log "charm.land/log/v2"
	"github.com/spf13/cobra"

	"github.com/byrizki/jsoneval"
)

type flags struct {
	dataFile    string
	contextFile string
	iterations  int
	outputFile  string
	noOutput    bool
	parallel    bool

	printSorted       bool
	printDependencies bool
	printTables       bool
	printEvaluations  bool
	printAll          bool
}

func main() {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "jsoneval <schema-file>",
		Short: "Evaluate a schema with embedded expressions against a data document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], f)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&f.dataFile, "data", "d", "", "input data file (JSON)")
	cmd.Flags().StringVarP(&f.contextFile, "context", "c", "", "context file (JSON)")
	cmd.Flags().IntVarP(&f.iterations, "iterations", "i", 1, "number of evaluation iterations")
	cmd.Flags().StringVarP(&f.outputFile, "output", "o", "", "output file for the evaluated schema (default stdout)")
	cmd.Flags().BoolVar(&f.noOutput, "no-output", false, "suppress output (for benchmarking)")
	cmd.Flags().BoolVar(&f.parallel, "parallel", false, "enable batch parallelism")
	cmd.Flags().BoolVar(&f.printSorted, "print-sorted-evaluations", false, "print sorted evaluation batches")
	cmd.Flags().BoolVar(&f.printDependencies, "print-dependencies", false, "print the dependency graph")
	cmd.Flags().BoolVar(&f.printTables, "print-tables", false, "print table definitions")
	cmd.Flags().BoolVar(&f.printEvaluations, "print-evaluations", false, "print all evaluations with compiled logic ids")
	cmd.Flags().BoolVar(&f.printAll, "print-all", false, "print all parsed schema information")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, schemaFile string, f *flags) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

	if f.printAll {
		f.printSorted = true
		f.printDependencies = true
		f.printTables = true
		f.printEvaluations = true
	}

	schemaBytes, err := os.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	dataJSON := "{}"
	if f.dataFile != "" {
		dataBytes, err := os.ReadFile(f.dataFile)
		if err != nil {
			return fmt.Errorf("read data: %w", err)
		}
		dataJSON = string(dataBytes)
	}
	contextJSON := "{}"
	if f.contextFile != "" {
		contextBytes, err := os.ReadFile(f.contextFile)
		if err != nil {
			return fmt.Errorf("read context: %w", err)
		}
		contextJSON = string(contextBytes)
	}

	parseStart := time.Now()
	var parsed *jsoneval.ParsedSchema
	if strings.HasSuffix(schemaFile, ".yaml") || strings.HasSuffix(schemaFile, ".yml") {
		parsed, err = jsoneval.ParseSchemaYAML(schemaBytes)
	} else {
		parsed, err = jsoneval.ParseSchemaCached(schemaBytes)
	}
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	logger.Info("schema parsed", "duration", time.Since(parseStart))

	printParsedInfo(parsed, f)

	options := jsoneval.DefaultOptions().SetParallel(f.parallel)
	eval, err := jsoneval.NewWithParsedSchema(parsed, contextJSON, dataJSON, options)
	if err != nil {
		return fmt.Errorf("create evaluator: %w", err)
	}

	evalStart := time.Now()
	for i := 0; i < f.iterations; i++ {
		if err := eval.Evaluate(ctx, dataJSON, contextJSON, nil); err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
	}
	evalTime := time.Since(evalStart)
	logger.Info("evaluation finished", "iterations", f.iterations, "duration", evalTime)
	if f.iterations > 1 {
		logger.Info("per iteration", "avg", evalTime/time.Duration(f.iterations))
	}
	logger.Info("cache", "stats", eval.CacheStats().String())

	if f.noOutput {
		return nil
	}

	output, err := eval.GetEvaluatedSchemaJSON(false)
	if err != nil {
		return fmt.Errorf("serialize output: %w", err)
	}
	if f.outputFile != "" {
		if err := os.WriteFile(f.outputFile, output, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		logger.Info("output written", "file", f.outputFile)
		return nil
	}
	fmt.Println(string(output))
	return nil
}

func printParsedInfo(parsed *jsoneval.ParsedSchema, f *flags) {
	if f.printSorted {
		batches := parsed.SortedEvaluations()
		fmt.Printf("Sorted evaluations: %d batches\n", len(batches))
		for i, batch := range batches {
			fmt.Printf("  batch %d (%d evaluations):\n", i+1, len(batch))
			for _, key := range batch {
				fmt.Printf("    - %s\n", key)
			}
		}
	}
	if f.printDependencies {
		keys := parsed.DependencyKeys()
		fmt.Printf("Dependencies: %d evaluation(s)\n", len(keys))
		for _, key := range keys {
			deps := parsed.Dependencies(key)
			if len(deps) == 0 {
				continue
			}
			fmt.Printf("  %s depends on:\n", key)
			for _, dep := range deps {
				fmt.Printf("    -> %s\n", dep)
			}
		}
	}
	if f.printTables {
		tables := parsed.TableKeys()
		fmt.Printf("Tables: %d defined\n", len(tables))
		for _, key := range tables {
			fmt.Printf("  %s\n", key)
		}
	}
	if f.printEvaluations {
		entries := parsed.Evaluations()
		fmt.Printf("Evaluations: %d compiled\n", len(entries))
		for _, entry := range entries {
			fmt.Printf("  %s -> %d\n", entry.Key, entry.ID)
		}
	}
}
