package main

import (
	"fmt"
	"os"

	"github.com/loqalabs/akira/internal/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var addr string
	root := &cobra.Command{
		Use:           "akiractl",
		Short:         "Control and exercise a running akira assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&addr, "addr", "http://127.0.0.1:5001", "Base URL of the assistant")

	root.AddCommand(validateCmd(), versionCmd())
	root.AddCommand(sayCmd(&addr), transcribeCmd(&addr))
	root.AddCommand(startCmd(&addr), stopCmd(&addr), statusCmd(&addr))
	return root
}

func validateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "akira.yaml", "Path to configuration file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func sayCmd(addr *string) *cobra.Command {
	var text, out string
	cmd := &cobra.Command{
		Use:   "say",
		Short: "Synthesize text and optionally download the audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient(*addr)
			url, err := c.synthesize(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			if out == "" {
				return nil
			}
			return c.download(cmd.Context(), url, out)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Text to speak")
	cmd.Flags().StringVar(&out, "out", "", "Write the audio to this file (consumes the single download)")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func transcribeCmd(addr *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Upload a 16kHz mono WAV file for transcription",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := newClient(*addr).transcribe(cmd.Context(), file)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Path to a WAV file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func startCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the voice listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := newClient(*addr).post(cmd.Context(), "/start-assistant")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func stopCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the voice listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := newClient(*addr).post(cmd.Context(), "/stop-assistant")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func statusCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the voice listener is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := newClient(*addr).status(cmd.Context())
			if err != nil {
				return err
			}
			if st.SessionID != 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (session %d)\n", st.State, st.SessionID)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), st.State)
			return nil
		},
	}
}
