// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pharos-dev/pharos/internal/config"
	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Long: `Write a pharos.yaml to the default config path (~/.config/pharos/pharos.yaml).

Without flags the file contains the built-in defaults, fully commented.
Gateways and targets can be seeded directly:

  pharos init \
    --gateway openrouter=https://openrouter.ai/api/v1 \
    --target anthropic/claude-sonnet-4-5@openrouter

Seeded gateways reference their API key via a keyring:// URI; no secret is
written to the file. A target seeded without @gateway binds to the single
seeded gateway. After completion, run:

  pharos secret set <gateway>-api-key   — store the gateway API key
  pharos start                          — start the monitor
  pharos doctor                         — verify your setup`,
		RunE: runInit,
	}

	cmd.Flags().StringP("output", "o", "", "write the config to this path instead of the default")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	cmd.Flags().StringArray("gateway", nil, "seed a gateway as name=base_url (repeatable)")
	cmd.Flags().StringArray("target", nil, "seed a target as provider/model[@gateway] (repeatable)")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	output, _ := cmd.Flags().GetString("output")
	gatewayFlags, _ := cmd.Flags().GetStringArray("gateway")
	targetFlags, _ := cmd.Flags().GetStringArray("target")

	gateways, err := parseGatewaySeeds(gatewayFlags)
	if err != nil {
		return err
	}
	targets, err := parseTargetSeeds(targetFlags)
	if err != nil {
		return err
	}
	if err := bindTargetGateways(targets, gateways); err != nil {
		return err
	}

	cfgPath := output
	if cfgPath == "" {
		cfgPath, err = configPathForWrite()
		if err != nil {
			return err
		}
	}

	if !force {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return pharoserr.Errorf(pharoserr.CodeConfigAlreadyExists,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return pharoserr.Errorf(pharoserr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}

	content := config.DefaultConfigYAML
	if len(gateways) > 0 || len(targets) > 0 {
		rendered, rerr := generateConfigYAML(gateways, targets)
		if rerr != nil {
			return rerr
		}
		content = []byte(rendered)
	}
	if err := os.WriteFile(cfgPath, content, 0o600); err != nil {
		return pharoserr.Errorf(pharoserr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Wrote config to %s\n", cfgPath)
	for _, gw := range gateways {
		_, _ = fmt.Fprintf(out, "Store the %s API key with: pharos secret set %s-api-key\n", gw.Name, gw.Name)
	}
	_, _ = fmt.Fprintln(out, "Start the monitor with: pharos start")
	return nil
}

// gatewaySeed is one --gateway flag value, parsed.
type gatewaySeed struct {
	Name    string
	BaseURL string
}

// targetSeed is one --target flag value, parsed.
type targetSeed struct {
	Provider string
	Model    string
	Gateway  string
}

func parseGatewaySeeds(flags []string) ([]gatewaySeed, error) {
	out := make([]gatewaySeed, 0, len(flags))
	for _, f := range flags {
		name, baseURL, ok := strings.Cut(f, "=")
		if !ok || name == "" || baseURL == "" {
			return nil, pharoserr.Errorf(pharoserr.CodeCLIInputInvalid,
				"invalid --gateway %q: expected name=base_url", f)
		}
		out = append(out, gatewaySeed{Name: name, BaseURL: baseURL})
	}
	return out, nil
}

func parseTargetSeeds(flags []string) ([]targetSeed, error) {
	out := make([]targetSeed, 0, len(flags))
	for _, f := range flags {
		pair, gateway, _ := strings.Cut(f, "@")
		provider, model, ok := strings.Cut(pair, "/")
		if !ok || provider == "" || model == "" {
			return nil, pharoserr.Errorf(pharoserr.CodeCLIInputInvalid,
				"invalid --target %q: expected provider/model[@gateway]", f)
		}
		out = append(out, targetSeed{Provider: provider, Model: model, Gateway: gateway})
	}
	return out, nil
}

// bindTargetGateways fills in the gateway for targets seeded without an
// explicit @gateway. With exactly one seeded gateway the binding is
// unambiguous; otherwise the target must name one, because a target with
// no gateway can never be probed and the config would fail validation at
// start.
func bindTargetGateways(targets []targetSeed, gateways []gatewaySeed) error {
	for i := range targets {
		if targets[i].Gateway != "" {
			continue
		}
		if len(gateways) == 1 {
			targets[i].Gateway = gateways[0].Name
			continue
		}
		return pharoserr.Errorf(pharoserr.CodeCLIInputInvalid,
			"target %s/%s has no @gateway and %d gateways were seeded; bind it as provider/model@gateway",
			targets[i].Provider, targets[i].Model, len(gateways))
	}
	return nil
}

// initFile mirrors the config keys `pharos init` writes. The yaml tags
// match the mapstructure keys in internal/config so the file loads back
// without translation.
type initFile struct {
	Server struct {
		Listen     string `yaml:"listen"`
		AdminToken string `yaml:"admin_token"`
	} `yaml:"server"`
	Storage struct {
		Backend string `yaml:"backend"`
	} `yaml:"storage"`
	Gateways map[string]initGateway `yaml:"gateways,omitempty"`
	Targets  []initTarget           `yaml:"targets,omitempty"`
	Logging  struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

type initGateway struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type initTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Gateway  string `yaml:"gateway,omitempty"`
}

// generateConfigYAML produces a pharos.yaml with the seeded gateways and
// targets. API keys are referenced via keyring:// URIs; the secrets
// themselves are stored separately with `pharos secret set`.
func generateConfigYAML(gateways []gatewaySeed, targets []targetSeed) (string, error) {
	var f initFile
	f.Server.Listen = "127.0.0.1:8787"
	f.Storage.Backend = "sqlite"
	f.Logging.Level = "info"
	f.Logging.Format = "text"

	if len(gateways) > 0 {
		f.Gateways = make(map[string]initGateway, len(gateways))
		for _, gw := range gateways {
			f.Gateways[gw.Name] = initGateway{
				BaseURL: gw.BaseURL,
				APIKey:  fmt.Sprintf("keyring://pharos/%s-api-key", gw.Name),
			}
		}
	}
	for _, t := range targets {
		f.Targets = append(f.Targets, initTarget(t))
	}

	body, err := yaml.Marshal(&f)
	if err != nil {
		return "", pharoserr.Errorf(pharoserr.CodeCLISetupFailure, "rendering config: %w", err)
	}
	return "# Pharos configuration - generated by pharos init\n" +
		"# Omitted keys fall back to built-in defaults.\n\n" + string(body), nil
}

// configPathForWrite returns the default config path. Declared as a
// variable so tests can override it.
var configPathForWrite = config.DefaultConfigPath
