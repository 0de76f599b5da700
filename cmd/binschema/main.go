// Package main provides the CLI entry point for binschema: schema
// validation, decoding payloads against a schema with the host-side
// interpreter, and generating encoder/decoder source for target
// languages.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"charm.land/log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/binschema/binschema/bitio"
	"github.com/binschema/binschema/codegen"
	"github.com/binschema/binschema/codegen/golang"
	"github.com/binschema/binschema/codegen/typescript"
	"github.com/binschema/binschema/interp"
	"github.com/binschema/binschema/schema"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
		Prefix:          "binschema",
	})

	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "binschema",
		Short:         "Declarative binary-format toolkit",
		Long:          "binschema validates binary-format schemas, decodes payloads against them,\nand generates encoder/decoder modules for target languages.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				logger.SetLevel(log.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newValidateCmd(logger),
		newDecodeCmd(logger),
		newGenerateCmd(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			for _, msg := range verr.Errors {
				logger.Error(msg)
			}
			os.Exit(1)
		}
		logger.Error(err.Error())
		os.Exit(1)
	}
}

// loadSchema reads, parses, and validates one schema document. path "-"
// reads stdin.
func loadSchema(logger *log.Logger, path string) (*schema.Schema, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	s, err := schema.Parse(data)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(s); err != nil {
		return nil, err
	}
	logger.Debug("schema loaded", "path", path, "types", len(s.Types))
	return s, nil
}

func newValidateCmd(logger *log.Logger) *cobra.Command {
	var compact string

	cmd := &cobra.Command{
		Use:   "validate [flags] <schema.(yaml|json)>",
		Short: "Parse and validate a schema document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if compact != "" {
				td, err := schema.ParseCompact("Compact", compact)
				if err != nil {
					return err
				}
				s := &schema.Schema{Types: []*schema.TypeDef{td}}
				if err := schema.Validate(s); err != nil {
					return err
				}
				logger.Info("compact format valid", "format", compact)
				return nil
			}
			if len(args) != 1 {
				return errors.New("a schema path (or --compact) is required")
			}
			s, err := loadSchema(logger, args[0])
			if err != nil {
				return err
			}
			logger.Info("schema valid", "types", len(s.Types))
			return nil
		},
	}

	cmd.Flags().StringVar(&compact, "compact", "",
		"validate an inline compact format string instead of a document")
	return cmd
}

func newDecodeCmd(logger *log.Logger) *cobra.Command {
	var schemaPath, typeName string

	cmd := &cobra.Command{
		Use:   "decode [flags] <payload|->",
		Short: "Decode a payload against a schema and print the value tree as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSchema(logger, schemaPath)
			if err != nil {
				return err
			}
			name := typeName
			if name == "" {
				if len(s.Types) == 0 {
					return errors.New("schema declares no types")
				}
				name = s.Types[0].Name
				logger.Debug("no --type given, using first declared type", "type", name)
			}

			r, cleanup, err := openPayload(logger, s, args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			decoded, err := interp.Decode(s, name, r)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(decoded)
			if err != nil {
				return fmt.Errorf("render decoded value: %w", err)
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}

	flags := cmd.Flags()
	registerSchemaFlags(flags, &schemaPath, &typeName)
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

// registerSchemaFlags wires the flags shared by every command that loads
// a schema and resolves a root type in it.
func registerSchemaFlags(flags *pflag.FlagSet, schemaPath, typeName *string) {
	flags.StringVarP(schemaPath, "schema", "s", "", "schema document path (- for stdin)")
	flags.StringVarP(typeName, "type", "t", "", "root type name (default: first declared type)")
}

// openPayload picks the reader backing for a payload argument: "-" wraps
// stdin in the buffering stream reader, anything else opens a file and
// reads it on demand.
func openPayload(logger *log.Logger, s *schema.Schema, arg string) (r *bitio.Reader, cleanup func(), err error) {
	if arg == "-" {
		warn := func(msg string) { logger.Warn(msg) }
		return interp.StreamReader(s, os.Stdin, warn), func() {}, nil
	}
	f, err := os.Open(arg)
	if err != nil {
		return nil, nil, fmt.Errorf("open payload: %w", err)
	}
	return interp.FileReader(s, f), func() { f.Close() }, nil
}

func newGenerateCmd(logger *log.Logger) *cobra.Command {
	var schemaPath, langs, outDir string

	cmd := &cobra.Command{
		Use:   "generate [flags]",
		Short: "Generate encoder/decoder source for one or more target languages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSchema(logger, schemaPath)
			if err != nil {
				return err
			}
			targets, err := resolveTargets(langs)
			if err != nil {
				return err
			}

			results, err := codegen.GenerateAll(cmd.Context(), s, targets)
			if err != nil {
				return err
			}

			stem := outputStem(schemaPath)
			var failed bool
			for i, res := range results {
				if res.Err != nil {
					failed = true
					logger.Error("generation failed", "target", res.Target, "err", res.Err)
					continue
				}
				if outDir == "" {
					if _, err := os.Stdout.Write(res.Source); err != nil {
						return err
					}
					continue
				}
				name := filepath.Join(outDir, stem+"."+targets[i].FileExtension())
				if err := os.WriteFile(name, res.Source, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", name, err)
				}
				logger.Info("generated", "target", res.Target, "file", name, "bytes", len(res.Source))
			}
			if failed {
				return errors.New("one or more targets failed")
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&schemaPath, "schema", "s", "", "schema document path (- for stdin)")
	flags.StringVarP(&langs, "lang", "l", "go",
		"comma-separated target languages (go, typescript)")
	flags.StringVarP(&outDir, "out", "o", "",
		"output directory (default: write generated source to stdout)")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func resolveTargets(langs string) ([]codegen.Target, error) {
	var targets []codegen.Target
	for _, lang := range strings.Split(langs, ",") {
		switch strings.TrimSpace(lang) {
		case "go":
			targets = append(targets, golang.Target{})
		case "typescript", "ts":
			targets = append(targets, typescript.Target{})
		case "":
		default:
			return nil, fmt.Errorf("unknown target language %q", lang)
		}
	}
	if len(targets) == 0 {
		return nil, errors.New("no target languages selected")
	}
	return targets, nil
}

func outputStem(schemaPath string) string {
	if schemaPath == "" || schemaPath == "-" {
		return "schema"
	}
	base := filepath.Base(schemaPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
