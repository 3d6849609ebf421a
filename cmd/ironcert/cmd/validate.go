package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironcert/certificate"
)

var validateJSONOutput bool

type validateResult struct {
	UniqueID    string                   `json:"unique_certificate_id"`
	Valid       bool                     `json:"valid"`
	Outcome     string                   `json:"outcome"`
	Certificate *certificate.Certificate `json:"certificate,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate [unique-id]",
	Short: "Check whether a certificate identifier is valid",
	Long: `Looks the identifier up in the configured storage and reports whether the
certificate is valid, expired, inactive or unknown. Exits 1 when it is not valid.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateJSONOutput, "json", false, "Output results as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	v := certificate.NewValidator(b.certs, certificate.WithLogger(logger))
	res, err := v.Validate(ctx, args[0])
	if err != nil {
		return err
	}

	out := validateResult{
		UniqueID: args[0],
		Valid:    res.Valid(),
		Outcome:  res.Outcome.String(),
	}
	if res.Valid() {
		out.Certificate = res.Certificate
	}

	if validateJSONOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		printValidateResult(cmd, out)
	}

	if !out.Valid {
		b.Close()
		os.Exit(1)
	}
	return nil
}

func printValidateResult(cmd *cobra.Command, out validateResult) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Certificate: %s\n", out.UniqueID)
	if !out.Valid {
		fmt.Fprintf(w, "Result: INVALID (%s)\n", out.Outcome)
		return
	}
	c := out.Certificate
	fmt.Fprintf(w, "Owner:   %d\n", c.UserID)
	fmt.Fprintf(w, "Issued:  %s\n", c.IssuedOn.Format("2006-01-02 15:04:05"))
	if c.ExpiredOn.Never() {
		fmt.Fprintln(w, "Expires: never")
	} else {
		fmt.Fprintf(w, "Expires: %s\n", c.ExpiredOn)
	}
	fmt.Fprintln(w, "Result: VALID")
}
