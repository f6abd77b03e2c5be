package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/ticket-workflow/internal/model"
)

// ticketFlags are the ticket input flags shared by process and classify.
type ticketFlags struct {
	file       string
	subject    string
	body       string
	customerID string
	email      string
	ticketID   string
}

func (tf *ticketFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&tf.file, "file", "", "read the ticket as JSON from a file (- for stdin)")
	fs.StringVar(&tf.subject, "subject", "", "ticket subject")
	fs.StringVar(&tf.body, "body", "", "ticket body")
	fs.StringVar(&tf.customerID, "customer-id", "", "customer ID")
	fs.StringVar(&tf.email, "email", "", "customer email")
	fs.StringVar(&tf.ticketID, "ticket-id", "", "ticket ID")
}

// ticket builds the ticket from --file, with explicit flags overriding the
// file's values.
func (tf *ticketFlags) ticket(stdin io.Reader) (model.Ticket, error) {
	var t model.Ticket
	if tf.file != "" {
		var r io.Reader = stdin
		if tf.file != "-" {
			f, err := os.Open(tf.file)
			if err != nil {
				return t, eris.Wrap(err, "open ticket file")
			}
			defer f.Close() //nolint:errcheck
			r = f
		}
		if err := json.NewDecoder(r).Decode(&t); err != nil {
			return t, eris.Wrap(err, "decode ticket file")
		}
	}
	if tf.subject != "" {
		t.Subject = tf.subject
	}
	if tf.body != "" {
		t.Body = tf.body
	}
	if tf.customerID != "" {
		t.CustomerID = tf.customerID
	}
	if tf.email != "" {
		t.CustomerEmail = tf.email
	}
	if tf.ticketID != "" {
		t.ID = tf.ticketID
	}
	return t, nil
}

var (
	processTicket     ticketFlags
	processTone       string
	processSkip       []string
	processNoDedupe   bool
	processSequential bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the full workflow for a single ticket",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ticket, err := processTicket.ticket(cmd.InOrStdin())
		if err != nil {
			return err
		}
		opts, err := processOptions(processTone, processSkip, processNoDedupe, processSequential)
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Execute(ctx, ticket, opts)
		if err != nil {
			return eris.Wrap(err, "process ticket")
		}

		zap.L().Info("ticket processed",
			zap.String("run_id", result.RunID),
			zap.String("category", string(result.Classification.Category)),
			zap.String("team", string(result.Routing.Team)),
			zap.Bool("partial", result.Partial),
			zap.Int("total_tokens", result.TotalTokens),
		)

		return writeJSON(cmd.OutOrStdout(), result)
	},
}

// processOptions builds run options from the process flags.
func processOptions(tone string, skip []string, noDedupe, sequential bool) (model.Options, error) {
	opts := model.DefaultOptions()
	if tone != "" {
		opts.Tone = model.Tone(tone)
		if !opts.Tone.Valid() {
			return opts, eris.Errorf("unknown tone %q (formal, friendly, technical)", tone)
		}
	}
	for _, s := range skip {
		switch model.StepName(s) {
		case model.StepClassification:
			opts.SkipClassification = true
		case model.StepExtraction:
			opts.SkipExtraction = true
		case model.StepResponseGeneration:
			opts.SkipResponse = true
		case model.StepRouting:
			opts.SkipRouting = true
		default:
			return opts, eris.Errorf("cannot skip step %q", s)
		}
	}
	opts.EnableDuplicateDetection = !noDedupe
	opts.EnableParallel = !sequential
	return opts, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	processTicket.register(processCmd.Flags())
	processCmd.Flags().StringVar(&processTone, "tone", "", "response tone: formal, friendly or technical")
	processCmd.Flags().StringSliceVar(&processSkip, "skip", nil, "steps to skip (classification, extraction, response_generation, routing)")
	processCmd.Flags().BoolVar(&processNoDedupe, "no-dedupe", false, "disable duplicate detection")
	processCmd.Flags().BoolVar(&processSequential, "sequential", false, "run steps one at a time")
	rootCmd.AddCommand(processCmd)
}
