package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironcert/certificate"
)

// ---------------------------------------------------------------------------
// Local type matching the certificate JSON returned by the API and by
// `ironcert issue`.
// ---------------------------------------------------------------------------

type certificateDocument struct {
	UniqueID      string             `json:"unique_certificate_id"`
	UserID        int64              `json:"user_id"`
	GeneratedBody string             `json:"generated_body"`
	State         int                `json:"state"`
	IssuedOn      time.Time          `json:"issued_on"`
	ExpiredOn     certificate.Expiry `json:"expired_on"`
	Fingerprint   string             `json:"fingerprint"`
}

// ---------------------------------------------------------------------------
// Check result types
// ---------------------------------------------------------------------------

type checkReport struct {
	File     string        `json:"file"`
	UniqueID string        `json:"unique_certificate_id"`
	Valid    bool          `json:"valid"`
	Checks   []checkResult `json:"checks"`
	Note     string        `json:"note,omitempty"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "pass", "fail", "warn"
	Detail string `json:"detail,omitempty"`
}

var identifierPattern = regexp.MustCompile(`^[^\s-]+-\d{1,30}$`)

const offlineNote = "offline check only; the issuing service decides whether the certificate is currently valid (see `ironcert validate`)"

// ---------------------------------------------------------------------------
// Core check logic
// ---------------------------------------------------------------------------

func checkCertificate(doc certificateDocument, now time.Time) checkReport {
	report := checkReport{
		UniqueID: doc.UniqueID,
		Valid:    true,
		Note:     offlineNote,
	}
	fail := func(name, detail string) {
		report.Valid = false
		report.Checks = append(report.Checks, checkResult{Name: name, Status: "fail", Detail: detail})
	}

	// 1. Identifier shape.
	if identifierPattern.MatchString(doc.UniqueID) {
		report.Checks = append(report.Checks, checkResult{Name: "identifier_format", Status: "pass"})
	} else {
		fail("identifier_format", fmt.Sprintf("%q is not PREFIX-DIGITS", doc.UniqueID))
	}

	// 2. Fingerprint over identifier, issue time and body.
	expected := certificate.Fingerprint(&certificate.Certificate{
		UniqueID:      doc.UniqueID,
		IssuedOn:      doc.IssuedOn,
		GeneratedBody: doc.GeneratedBody,
	})
	switch {
	case doc.Fingerprint == "":
		fail("fingerprint", "document carries no fingerprint")
	case doc.Fingerprint != expected:
		fail("fingerprint", fmt.Sprintf("fingerprint=%s but content hashes to %s", doc.Fingerprint, expected))
	default:
		report.Checks = append(report.Checks, checkResult{Name: "fingerprint", Status: "pass"})
	}

	// 3. State at export time. Deactivation can be undone, so this only warns.
	if doc.State == certificate.StateActive {
		report.Checks = append(report.Checks, checkResult{Name: "state", Status: "pass"})
	} else {
		report.Checks = append(report.Checks, checkResult{
			Name: "state", Status: "warn", Detail: "certificate was inactive when exported",
		})
	}

	// 4. Expiry.
	switch {
	case doc.ExpiredOn.Never():
		report.Checks = append(report.Checks, checkResult{Name: "expiry", Status: "pass", Detail: "never expires"})
	case doc.ExpiredOn.PassedAt(now):
		report.Checks = append(report.Checks, checkResult{
			Name: "expiry", Status: "warn", Detail: fmt.Sprintf("expired on %s", doc.ExpiredOn),
		})
	default:
		report.Checks = append(report.Checks, checkResult{
			Name: "expiry", Status: "pass", Detail: fmt.Sprintf("expires on %s", doc.ExpiredOn),
		})
	}

	return report
}

// ---------------------------------------------------------------------------
// Output formatting
// ---------------------------------------------------------------------------

func printHumanReport(report checkReport) {
	fmt.Printf("Certificate check: %s\n", report.File)
	fmt.Printf("Identifier: %s\n\n", report.UniqueID)

	for _, c := range report.Checks {
		tag := "[PASS]"
		switch c.Status {
		case "fail":
			tag = "[FAIL]"
		case "warn":
			tag = "[WARN]"
		}
		if c.Detail != "" {
			fmt.Printf("%s %s: %s\n", tag, c.Name, c.Detail)
		} else {
			fmt.Printf("%s %s\n", tag, c.Name)
		}
	}
	if report.Note != "" {
		fmt.Printf("[INFO] %s\n", report.Note)
	}

	fmt.Println()
	if report.Valid {
		fmt.Println("Result: INTACT")
		return
	}
	failures, warnings := 0, 0
	for _, c := range report.Checks {
		switch c.Status {
		case "fail":
			failures++
		case "warn":
			warnings++
		}
	}
	fmt.Printf("Result: TAMPERED (%d error(s), %d warning(s))\n", failures, warnings)
}

func printJSONReport(report checkReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// ---------------------------------------------------------------------------
// Cobra command
// ---------------------------------------------------------------------------

var fingerprintJSONOutput bool

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Certificate integrity tools",
}

var fingerprintCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Check an exported certificate JSON for tampering",
	Long: `Reads a certificate JSON document (from GET /api/v1/verify/{id} or
` + "`ironcert issue`" + `) and recomputes its fingerprint over the identifier, the
issue time and the rendered body.`,
	Args: cobra.ExactArgs(1),
	RunE: runFingerprintCheck,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)
	fingerprintCmd.AddCommand(fingerprintCheckCmd)
	fingerprintCheckCmd.Flags().BoolVar(&fingerprintJSONOutput, "json", false, "Output results as JSON")
}

func runFingerprintCheck(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot read file: %v\n", err)
		os.Exit(2)
	}

	doc, err := parseCertificateDocument(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	report := checkCertificate(doc, time.Now())
	report.File = filePath

	if fingerprintJSONOutput {
		if err := printJSONReport(report); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
	} else {
		printHumanReport(report)
	}

	if !report.Valid {
		os.Exit(1)
	}
	return nil
}

// parseCertificateDocument accepts either a bare certificate or a verify
// response wrapping one under "certificate".
func parseCertificateDocument(data []byte) (certificateDocument, error) {
	var wrapper struct {
		Certificate *certificateDocument `json:"certificate"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return certificateDocument{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if wrapper.Certificate != nil {
		return *wrapper.Certificate, nil
	}
	var doc certificateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return certificateDocument{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return doc, nil
}
