package discovery

import (
	"fmt"
	"strings"

	"github.com/overmindtech/cloudmeta/providers"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AddDiscoveryFlags adds the flags that ConfigFromViper reads, each with a
// matching environment variable
func AddDiscoveryFlags(command *cobra.Command) {
	defaults := DefaultConfig()

	command.PersistentFlags().String("cloud-provider", HintAuto.String(), fmt.Sprintf("Which cloud to look for, one of: %v", strings.Join(HintValues(), ", ")))
	cobra.CheckErr(viper.BindEnv("cloud-provider", "CLOUD_PROVIDER"))

	command.PersistentFlags().String("aws-metadata-url", defaults.AWS.Endpoint.BaseURL(), "The AWS instance metadata service, as protocol://host:port")
	cobra.CheckErr(viper.BindEnv("aws-metadata-url", "AWS_METADATA_URL"))
	command.PersistentFlags().String("azure-metadata-url", defaults.Azure.Endpoint.BaseURL(), "The Azure instance metadata service, as protocol://host:port")
	cobra.CheckErr(viper.BindEnv("azure-metadata-url", "AZURE_METADATA_URL"))
	command.PersistentFlags().String("gcp-metadata-url", defaults.GCP.Endpoint.BaseURL(), "The GCP metadata server, as protocol://host:port")
	cobra.CheckErr(viper.BindEnv("gcp-metadata-url", "GCP_METADATA_URL"))

	command.PersistentFlags().Duration("connect-timeout", DefaultConnectTimeout, "How long to wait for a connection to each metadata service")
	cobra.CheckErr(viper.BindEnv("connect-timeout", "CONNECT_TIMEOUT"))
	command.PersistentFlags().Duration("response-timeout", 0, fmt.Sprintf("How long a metadata service may take to respond once connected. 0 uses the provider defaults (%v for AWS, %v otherwise)", DefaultAWSResponseTimeout, DefaultResponseTimeout))
	cobra.CheckErr(viper.BindEnv("response-timeout", "RESPONSE_TIMEOUT"))
	command.PersistentFlags().Duration("coordination-timeout", DefaultTimeout, "How long to wait for any provider to answer. 0 disables the overall timeout")
	cobra.CheckErr(viper.BindEnv("coordination-timeout", "COORDINATION_TIMEOUT"))
}

// ConfigFromViper builds the hint and config from the flags added by
// AddDiscoveryFlags. The config is validated.
func ConfigFromViper() (Hint, Config, error) {
	hint, err := ParseHint(viper.GetString("cloud-provider"))
	if err != nil {
		return "", Config{}, err
	}

	cfg := DefaultConfig()

	for _, p := range []struct {
		key    string
		target *ProviderConfig
	}{
		{"aws-metadata-url", &cfg.AWS},
		{"azure-metadata-url", &cfg.Azure},
		{"gcp-metadata-url", &cfg.GCP},
	} {
		raw := viper.GetString(p.key)
		if raw == "" {
			continue
		}

		endpoint, err := providers.ParseEndpoint(raw)
		if err != nil {
			return "", Config{}, fmt.Errorf("%v: %w", p.key, err)
		}
		p.target.Endpoint = endpoint
	}

	if viper.IsSet("connect-timeout") {
		connect := viper.GetDuration("connect-timeout")
		cfg.AWS.ConnectTimeout = connect
		cfg.Azure.ConnectTimeout = connect
		cfg.GCP.ConnectTimeout = connect
	}

	if response := viper.GetDuration("response-timeout"); response > 0 {
		cfg.AWS.ResponseTimeout = response
		cfg.Azure.ResponseTimeout = response
		cfg.GCP.ResponseTimeout = response
	}

	if viper.IsSet("coordination-timeout") {
		cfg.Timeout = viper.GetDuration("coordination-timeout")
	}

	if err := cfg.Validate(); err != nil {
		return "", Config{}, err
	}

	return hint, cfg, nil
}
