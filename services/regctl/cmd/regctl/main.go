package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"trustreg/services/regctl"
	"trustreg/services/registry"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var apiBase string

	cmd := &cobra.Command{
		Use:           "regctl",
		Short:         "Utility for submitting and inspecting registry artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&apiBase, "api", envOr("REGISTRY_API", "http://localhost:8080"),
		"Base URL of the registry API")

	cmd.AddCommand(newSubmitCommand(&apiBase))
	cmd.AddCommand(newGetCommand(&apiBase))
	cmd.AddCommand(newRatingCommand(&apiBase))
	return cmd
}

func newSubmitCommand(apiBase *string) *cobra.Command {
	var (
		artifactType string
		revision     string
		name         string
	)

	cmd := &cobra.Command{
		Use:   "submit <source-url>",
		Short: "Register a repository for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := regctl.NewClient(*apiBase, nil)
			resp, err := client.Submit(cmdContext(cmd), registry.SubmitRequest{
				Name:      name,
				Type:      artifactType,
				SourceURL: args[0],
				Revision:  revision,
			})
			if err != nil {
				return err
			}
			fmt.Printf("accepted %s (%s)\n", resp.ArtifactID, resp.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&artifactType, "type", "model", "Artifact type: model, dataset, or code")
	cmd.Flags().StringVar(&revision, "revision", "", "Revision to ingest (default main)")
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the repository name)")
	return cmd
}

func newGetCommand(apiBase *string) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "get <artifact-id>",
		Short: "Fetch an artifact, optionally waiting for it to become ready",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := regctl.NewClient(*apiBase, nil)
			artifact, err := client.Get(cmdContext(cmd), args[0], wait)
			if err != nil {
				return err
			}
			return printJSON(artifact)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "How long to wait for the artifact to settle")
	return cmd
}

func newRatingCommand(apiBase *string) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "rating <artifact-id>",
		Short: "Show an artifact's per-metric scores and net score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := regctl.NewClient(*apiBase, nil)
			rating, err := client.GetRating(cmdContext(cmd), args[0], wait)
			if err != nil {
				return err
			}
			return printJSON(rating)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "How long to wait for the artifact to settle")
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
