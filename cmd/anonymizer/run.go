package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/lookup"
	"github.com/raaihank/text-anonymizer/internal/textio"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <input> <output> <mode>",
		Short: "Anonymize one text file",
		Long: `Anonymize one text file with a single mode.

Modes: date_to_timestamp, name_to_id, email_to_fake, phone_to_fake, address_to_fake.
For name_to_id the original-to-id table is saved through the configured lookup
sink, by default next to the output as <output>_lookup.json.`,
		Example: `  anonymizer run notes.txt notes_anon.txt name_to_id
  anonymizer run notes.txt out.txt date_to_timestamp --config config.json --log-level DEBUG`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			return a.runFile(cmd.Context(), args[0], args[1], args[2])
		},
	}
}

// runFile loads, anonymizes and saves one file. Lookup persistence
// failures are logged but do not fail the run.
func (a *app) runFile(ctx context.Context, inputPath, outputPath, modeName string) error {
	mode, err := anonymizer.ParseMode(modeName)
	if err != nil {
		a.log.Error("Unsupported format type", zap.String("mode", modeName))
		return err
	}

	doc, err := textio.Load(inputPath)
	if err != nil {
		a.log.Error("Failed to read input", zap.String("path", inputPath), zap.Error(err))
		return err
	}
	if doc.Encoding != "UTF-8" {
		a.log.Debug("Input decoded",
			zap.String("encoding", doc.Encoding),
			zap.Int("confidence", doc.Confidence))
	}

	runID := uuid.NewString()
	log := a.log.WithRunID(runID)
	start := time.Now()

	result, err := anonymizer.New(doc.Text, mode, a.rules,
		anonymizer.WithGenerator(anonymizer.NewFakeGenerator(a.cfg.Generator.Seed)),
		anonymizer.WithLogger(log),
	).Run()
	if err != nil {
		return err
	}

	if err := textio.Save(outputPath, result.Text); err != nil {
		log.Error("Error writing to output file", zap.String("path", outputPath), zap.Error(err))
		return err
	}

	log.Info("Anonymization complete",
		zap.String("output", outputPath),
		zap.String("mode", string(mode)),
		zap.Int("matches", result.Matches),
		zap.Int("replaced", result.Replaced),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("duration", time.Since(start)))

	if mode == anonymizer.ModeNameToID && len(result.Lookup) > 0 {
		a.saveLookup(ctx, lookup.Run{
			ID:         runID,
			Mode:       mode,
			OutputPath: outputPath,
			CreatedAt:  start,
		}, result.Lookup)
	}
	return nil
}

// saveLookup persists a name_to_id table through the configured sink
func (a *app) saveLookup(ctx context.Context, run lookup.Run, table anonymizer.IdentityTable) {
	log := a.log.WithRunID(run.ID)

	sink, err := lookup.New(a.cfg.Lookup, log.Logger)
	if err != nil {
		log.Error("Error saving lookup table", zap.Error(err))
		return
	}
	defer sink.Close()

	location, err := sink.Save(ctx, run, table)
	if err != nil {
		log.Error("Error saving lookup table", zap.Error(err))
		return
	}

	log.Info("Name to ID lookup table saved",
		zap.String("location", location),
		zap.Int("entries", len(table)))
}
