package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/overmindtech/cloudmeta/discovery"
	"github.com/overmindtech/cloudmeta/metadata"
	"github.com/overmindtech/cloudmeta/tracing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.yaml.in/yaml/v3"
)

// exitNotInCloud is the exit code used with --fail-if-not-in-cloud
const exitNotInCloud = 3

var outputFormats = []string{"json", "yaml", "table"}

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Prints the metadata of the cloud this machine runs in",
	Long: `Probes the AWS (IMDSv1 and IMDSv2), Azure and GCP metadata services at the
same time and prints the first answer.

If no provider answers nothing is printed and the command succeeds, unless
--fail-if-not-in-cloud is set, in which case it exits with code 3.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		// Bind these to viper
		err := viper.BindPFlags(cmd.Flags())
		if err != nil {
			log.WithError(err).Fatal("could not bind `discover` flags")
		}
	},
	RunE: Discover,
}

func Discover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ctx, span := tracing.Tracer().Start(ctx, "CLI Discover", trace.WithAttributes(
		attribute.String("cloudmeta.config", fmt.Sprintf("%v", tracedSettings())),
	))
	defer span.End()
	defer tracing.LogRecoverToReturn(ctx, "cloudmeta.discover")

	format := strings.ToLower(viper.GetString("output"))
	if !validOutput(format) {
		return fmt.Errorf("invalid --output %q, must be one of %v", format, strings.Join(outputFormats, ", "))
	}

	hint, cfg, err := discovery.ConfigFromViper()
	if err != nil {
		return err
	}

	record, err := discovery.Discover(ctx, hint, cfg)
	if discovery.IsNotInCloud(err) {
		if viper.GetBool("fail-if-not-in-cloud") {
			return &exitError{
				code: exitNotInCloud,
				err:  fmt.Errorf("not running in a recognised cloud: %w", err),
			}
		}

		return nil
	}
	if err != nil {
		return err
	}

	return writeRecord(cmd.OutOrStdout(), record, format)
}

func validOutput(format string) bool {
	for _, f := range outputFormats {
		if f == format {
			return true
		}
	}

	return false
}

// writeRecord prints the record in one of outputFormats
func writeRecord(w io.Writer, record *metadata.Record, format string) error {
	switch format {
	case "json":
		b, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(record); err != nil {
			return err
		}

		return enc.Close()
	case "table":
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"Field", "Value"})

		for _, row := range []struct {
			field string
			value string
		}{
			{"provider", record.Provider.String()},
			{"account.id", record.Account.ID},
			{"instance.id", record.Instance.ID},
			{"instance.name", record.Instance.Name},
			{"availability_zone", record.AvailabilityZone},
			{"region", record.Region},
			{"machine.type", record.Machine.Type},
			{"project.id", record.Project.ID},
			{"project.name", record.Project.Name},
		} {
			if row.value != "" {
				t.AppendRow(table.Row{row.field, row.value})
			}
		}

		t.Render()

		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// tracedSettings returns the settings worth recording on the span
func tracedSettings() map[string]any {
	return map[string]any{
		"cloud-provider":       viper.GetString("cloud-provider"),
		"output":               viper.GetString("output"),
		"fail-if-not-in-cloud": viper.GetBool("fail-if-not-in-cloud"),
		"connect-timeout":      viper.GetDuration("connect-timeout").String(),
		"response-timeout":     viper.GetDuration("response-timeout").String(),
		"coordination-timeout": viper.GetDuration("coordination-timeout").String(),
	}
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discovery.AddDiscoveryFlags(discoverCmd)

	discoverCmd.PersistentFlags().StringP("output", "o", "json", "Output format, one of: json, yaml, table")
	discoverCmd.PersistentFlags().Bool("fail-if-not-in-cloud", false, fmt.Sprintf("Exit with code %v when no cloud provider answers", exitNotInCloud))
}
