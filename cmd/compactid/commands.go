package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rl1809/versioned-store/internal/core/compactid"
)

type rootOptions struct {
	JSON bool
}

// NewRootCommand creates the compactid CLI.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "compactid",
		Short:         "Convert between UUIDs and 22-character compact ids",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print results as JSON")

	cmd.AddCommand(newEncodeCommand(opts))
	cmd.AddCommand(newDecodeCommand(opts))
	cmd.AddCommand(newNewCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))

	return cmd
}

func newEncodeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <uuid>",
		Short: "Encode a canonical UUID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := compactid.Default().FromString(args[0])
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, map[string]string{"uuid": args[0], "id": id}, id)
		},
	}
}

func newDecodeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <id>",
		Short: "Decode a compact id back to its UUID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := compactid.Default().Decode(args[0])
			if err != nil {
				return err
			}
			return output(cmd.OutOrStdout(), opts, map[string]string{"id": args[0], "uuid": u.String()}, u.String())
		},
	}
}

func newNewCommand(opts *rootOptions) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Mint fresh compact ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", count)
			}
			codec := compactid.Default()
			ids := make([]string, count)
			for i := range ids {
				ids[i] = codec.New()
			}
			if opts.JSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(ids)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of ids to mint")

	return cmd
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <id>",
		Short: "Report whether an id is well-formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok := compactid.Default().IsWellFormed(args[0])
			text := "valid"
			if !ok {
				text = "invalid"
			}
			if err := output(cmd.OutOrStdout(), opts, map[string]any{"id": args[0], "valid": ok}, text); err != nil {
				return err
			}
			if !ok {
				return compactid.ErrFormat
			}
			return nil
		},
	}
}

func output(w io.Writer, opts *rootOptions, structured any, text string) error {
	if opts.JSON {
		return json.NewEncoder(w).Encode(structured)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
