package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironcert/certificate"
)

var issueFlags struct {
	userID      int64
	templateID  int64
	payload     string
	payloadFile string
	prefix      string
	length      int
	fixed       bool
	expiry      string
	comment     string
	client      string
	clientID    int64
}

// issuedCertificate is the JSON printed by the issue command.
type issuedCertificate struct {
	*certificate.Certificate
	Fingerprint string `json:"fingerprint"`
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a certificate from a template",
	Long: `Renders the template with the given JSON payload, reserves a unique
identifier and stores the certificate. The result is printed as JSON.

Example:
  ironcert issue --user 7 --template 1 --payload '{"user":{"name":"Ann"}}' --expiry 2030-12-31`,
	Args: cobra.NoArgs,
	RunE: runIssue,
}

func init() {
	rootCmd.AddCommand(issueCmd)
	f := issueCmd.Flags()
	f.Int64Var(&issueFlags.userID, "user", 0, "Owner user id (required)")
	f.Int64Var(&issueFlags.templateID, "template", 0, "Template id (required)")
	f.StringVar(&issueFlags.payload, "payload", "", "JSON object resolved against the template tags")
	f.StringVar(&issueFlags.payloadFile, "payload-file", "", "File containing the JSON payload")
	f.StringVar(&issueFlags.prefix, "prefix", "", "Identifier prefix (default from configuration)")
	f.IntVar(&issueFlags.length, "length", 0, "Number of random digits (default from configuration)")
	f.BoolVar(&issueFlags.fixed, "fixed", true, "Use exactly --length digits instead of a random length up to it")
	f.StringVar(&issueFlags.expiry, "expiry", "", "Expiry as YYYY-MM-DD or YYYY-MM-DD HH:MM:SS (UTC)")
	f.StringVar(&issueFlags.comment, "comment", "", "Free-text comment")
	f.StringVar(&issueFlags.client, "client", "", "Issuing client name")
	f.Int64Var(&issueFlags.clientID, "client-id", 0, "Issuing client id")
	issueCmd.MarkFlagsMutuallyExclusive("payload", "payload-file")
}

func runIssue(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	ctx := cmd.Context()

	payload, err := readPayload(issueFlags.payload, issueFlags.payloadFile)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	certOpts, err := certificateOptions(ctx, cfg, logger, b)
	if err != nil {
		return err
	}
	issuer := certificate.NewIssuer(b.certs, b.templates, certOpts...)

	var opts []certificate.IssueOption
	flags := cmd.Flags()
	if flags.Changed("prefix") {
		opts = append(opts, certificate.WithPrefix(issueFlags.prefix))
	}
	if flags.Changed("length") {
		opts = append(opts, certificate.WithRandomLength(issueFlags.length))
	}
	if flags.Changed("fixed") {
		opts = append(opts, certificate.WithFixedLength(issueFlags.fixed))
	}
	if issueFlags.expiry != "" {
		opts = append(opts, certificate.WithExpiry(issueFlags.expiry))
	}
	if issueFlags.comment != "" {
		opts = append(opts, certificate.WithComment(issueFlags.comment))
	}
	if issueFlags.client != "" || issueFlags.clientID != 0 {
		opts = append(opts, certificate.WithClient(issueFlags.client, issueFlags.clientID))
	}

	cert, err := issuer.Issue(ctx, issueFlags.userID, issueFlags.templateID, payload, opts...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(issuedCertificate{Certificate: cert, Fingerprint: certificate.Fingerprint(cert)})
}

// readPayload decodes the payload from an inline JSON string or a file.
// Numbers keep their textual form.
func readPayload(inline, file string) (certificate.Payload, error) {
	data := []byte(inline)
	if file != "" {
		var err error
		data, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return certificate.Payload{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload certificate.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid payload JSON: %w", err)
	}
	return payload, nil
}
