package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tbourn/support-router/internal/rules"
	"github.com/tbourn/support-router/internal/sysutil"
)

type evaluateFlags struct {
	rulesPath  string
	history    []string
	attachment bool
	confidence float64
	company    string
	market     string
	product    string
}

func newEvaluateCmd() *cobra.Command {
	var f evaluateFlags

	cmd := &cobra.Command{
		Use:   "evaluate [message]",
		Short: "Run the rule ladder on one message and print the decision as JSON",
		Example: `  supportrouter evaluate "Can you guarantee FDA approval?"
  supportrouter evaluate --confidence 0.4 "How long does shipping take?"
  supportrouter evaluate --rules rules.yaml --history "we make snacks" "what next?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := rules.Default()
			if path := sysutil.FirstNonEmpty(f.rulesPath, os.Getenv("RULES_PATH")); path != "" {
				e, err := rules.LoadFile(path)
				if err != nil {
					return err
				}
				engine = e
			}

			in := rules.MessageContext{
				Text:          strings.Join(args, " "),
				History:       f.history,
				HasAttachment: f.attachment,
				Hints: rules.Hints{
					CompanyName:  f.company,
					TargetMarket: f.market,
					Product:      f.product,
				},
			}
			if cmd.Flags().Changed("confidence") {
				c := f.confidence
				in.AIConfidence = &c
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(engine.Evaluate(in))
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.rulesPath, "rules", "", "YAML rule file (default $RULES_PATH, else the built-in ladder)")
	fl.StringArrayVar(&f.history, "history", nil, "earlier customer message, oldest first (repeatable)")
	fl.BoolVar(&f.attachment, "attachment", false, "the message carries an attachment")
	fl.Float64Var(&f.confidence, "confidence", 0, "generator confidence for the post-generation check")
	fl.StringVar(&f.company, "company", "", "company name hint")
	fl.StringVar(&f.market, "market", "", "target market hint")
	fl.StringVar(&f.product, "product", "", "product hint")
	return cmd
}
