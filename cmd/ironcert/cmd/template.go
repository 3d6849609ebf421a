package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ironcert/storage"
)

var templateFlags struct {
	title        string
	body         string
	bodyFile     string
	cssFile      string
	pageSize     string
	orientation  string
	font         string
	customWidth  float64
	customHeight float64
	customFont   string
}

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage certificate templates",
}

var templateAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store a new certificate template",
	Long: `Stores an HTML template. Tags such as {user.name} are resolved against the
payload given at issue time. Prints the new template id.`,
	Args: cobra.NoArgs,
	RunE: runTemplateAdd,
}

var templateShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a stored template as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateAddCmd, templateShowCmd)

	f := templateAddCmd.Flags()
	f.StringVar(&templateFlags.title, "title", "", "Template title")
	f.StringVar(&templateFlags.body, "body", "", "Template HTML")
	f.StringVar(&templateFlags.bodyFile, "body-file", "", "File containing the template HTML")
	f.StringVar(&templateFlags.cssFile, "css-file", "", "CSS inlined into the rendered body")
	f.StringVar(&templateFlags.pageSize, "page-size", "", "Page size (A4, Letter, ... or custom)")
	f.StringVar(&templateFlags.orientation, "orientation", "", "portrait or landscape")
	f.StringVar(&templateFlags.font, "font", "", "Font family, or custom to use --custom-font")
	f.Float64Var(&templateFlags.customWidth, "custom-width", 0, "Page width in cm for custom page size")
	f.Float64Var(&templateFlags.customHeight, "custom-height", 0, "Page height in cm for custom page size")
	f.StringVar(&templateFlags.customFont, "custom-font", "", "Font family when --font is custom")
	templateAddCmd.MarkFlagsMutuallyExclusive("body", "body-file")
	templateAddCmd.MarkFlagsOneRequired("body", "body-file")
}

func runTemplateAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	body := templateFlags.body
	if templateFlags.bodyFile != "" {
		data, err := os.ReadFile(templateFlags.bodyFile)
		if err != nil {
			return fmt.Errorf("reading template body: %w", err)
		}
		body = string(data)
	}
	var css string
	if templateFlags.cssFile != "" {
		data, err := os.ReadFile(templateFlags.cssFile)
		if err != nil {
			return fmt.Errorf("reading template css: %w", err)
		}
		css = string(data)
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	id, err := b.templates.PutTemplate(ctx, &storage.TemplateRecord{
		Title:        templateFlags.title,
		Body:         body,
		TemplateCSS:  css,
		PageSize:     templateFlags.pageSize,
		Orientation:  templateFlags.orientation,
		Font:         templateFlags.font,
		CustomWidth:  templateFlags.customWidth,
		CustomHeight: templateFlags.customHeight,
		CustomFont:   templateFlags.customFont,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid template id %q", args[0])
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	tmpl, err := b.templates.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tmpl)
}
