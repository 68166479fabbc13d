package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flanksource/certify"
	"github.com/flanksource/certify/api"
	"github.com/flanksource/certify/store"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func formatOf(output, format string) string {
	if format != "" {
		return format
	}
	if ext := strings.TrimPrefix(filepath.Ext(output), "."); ext != "" {
		return ext
	}
	return api.FormatPNG
}

func printWarnings(warnings []api.Warning) {
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, warnStyle.Render(w.String()))
	}
}

func newRenderCommand() *cobra.Command {
	var templateFile, payloadFile, output, format string
	var values map[string]string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a template file with a payload to PNG or PDF",
		Example: `  certify render --template template.yaml --payload student.yaml -o out.png
  certify render --template template.yaml --set name="Jane Doe" --set date=1/2/2025 -o out.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := certify.Flags.UseFlags()
			if err != nil {
				return err
			}

			var tpl api.TemplateDescriptor
			if err := readYAML(templateFile, &tpl); err != nil {
				return err
			}
			if tpl.ID == "" {
				tpl.ID = strings.TrimSuffix(filepath.Base(templateFile), filepath.Ext(templateFile))
			}

			payload := api.Payload{}
			if payloadFile != "" {
				raw := map[string]any{}
				if err := readYAML(payloadFile, &raw); err != nil {
					return err
				}
				payload = api.PayloadFromValues(raw)
			}
			payload = payload.Merge(values)

			svc, err := certify.NewRenderService(config)
			if err != nil {
				return err
			}
			defer svc.Close()

			start := time.Now()
			cert, err := svc.Render(cmd.Context(), tpl, payload, formatOf(output, format))
			if err != nil {
				return err
			}
			printWarnings(cert.Warnings)

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(cert.Data)
				return err
			}
			if err := os.WriteFile(output, cert.Data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %s (%s, %d bytes, %s)\n", okStyle.Render("wrote"), output,
				cert.Strategy, len(cert.Data), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&templateFile, "template", "t", "", "Template descriptor YAML file (required)")
	cmd.Flags().StringVarP(&payloadFile, "payload", "p", "", "YAML file of field values")
	cmd.Flags().StringToStringVar(&values, "set", nil, "Field value, overrides the payload file (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, stdout when empty")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: png or pdf (default from the output extension)")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func newBatchCommand() *cobra.Command {
	var course, batch, outDir, format string

	cmd := &cobra.Command{
		Use:     "batch",
		Short:   "Render the certificates of every eligible student of a course batch",
		Example: `  certify batch --course WD --batch 2025A --format pdf --out certificates/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := certify.Flags.UseFlags()
			if err != nil {
				return err
			}
			svc, err := certify.NewService(config)
			if err != nil {
				return err
			}
			defer svc.Close()

			students, err := svc.Store.Students(cmd.Context(), course, batch, store.StatusComplete)
			if err != nil {
				return err
			}
			if len(students) == 0 {
				logger.Warnf("no eligible students in %s", store.TemplateID(course, batch))
				return nil
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(config.Concurrency, 1))
			for _, st := range students {
				g.Go(func() error {
					return renderStudent(ctx, svc, st.PublicID, format, outDir)
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s %d certificates to %s\n", okStyle.Render("rendered"), len(students), outDir)
			return nil
		},
	}

	cmd.Flags().StringVar(&course, "course", "", "Course code (required)")
	cmd.Flags().StringVar(&batch, "batch", "", "Batch code (required)")
	cmd.Flags().StringVar(&outDir, "out", ".", "Output directory")
	cmd.Flags().StringVarP(&format, "format", "f", api.FormatPDF, "Output format: png or pdf")
	_ = cmd.MarkFlagRequired("course")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func renderStudent(ctx context.Context, svc *certify.Service, publicID, format, outDir string) error {
	cert, err := svc.Certificate(ctx, publicID, format)
	if err != nil {
		return fmt.Errorf("%s: %w", publicID, err)
	}
	printWarnings(cert.Warnings)
	path := filepath.Join(outDir, cert.Filename)
	if err := os.WriteFile(path, cert.Data, 0o644); err != nil {
		return err
	}
	logger.Infof("%s: %s (%s)", publicID, path, cert.Strategy)
	return nil
}
