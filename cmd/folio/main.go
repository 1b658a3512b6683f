// Command folio is a command-line client for a folio-stored daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/folio-dev/folio/internal/auth"
	"github.com/folio-dev/folio/pkg/schema"
	"github.com/folio-dev/folio/pkg/sdk"
)

const defaultAddr = "http://127.0.0.1:1234"

type rootOptions struct {
	addr      string
	tokenFile string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "folio",
		Short:         "Manage the folio catalogue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", envOr(sdk.AddrEnv, defaultAddr), "daemon address")
	cmd.PersistentFlags().StringVar(&opts.tokenFile, "token-file", envOr(sdk.TokenFileEnv, auth.DefaultPasskeyPath), "file holding the bearer token")

	cmd.AddCommand(
		newListCommand(opts),
		newAddCommand(opts),
		newUpdateCommand(opts),
		newDeleteCommand(opts),
		newStatusCommand(opts),
	)
	return cmd
}

func (o *rootOptions) reader() *sdk.Client {
	return sdk.Connect(o.addr)
}

func (o *rootOptions) writer() (*sdk.Client, error) {
	token, err := auth.FilePasskey{Path: o.tokenFile}.Read()
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	return sdk.Connect(o.addr, sdk.WithToken(token)), nil
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the catalogue as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			collections, err := opts.reader().List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), collections)
		},
	}
}

func newAddCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <json|@file>",
		Short: "Append a record, or replace the record with the same id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, opts, args[0], "Added", (*sdk.Client).Upsert)
		},
	}
}

func newUpdateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <json|@file>",
		Short: "Replace the record with the same id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, opts, args[0], "Updated", (*sdk.Client).Update)
		},
	}
}

func runWrite(cmd *cobra.Command, opts *rootOptions, arg, verb string,
	op func(*sdk.Client, context.Context, schema.Collection) ([]schema.Collection, error)) error {
	record, err := readRecord(arg)
	if err != nil {
		return err
	}
	client, err := opts.writer()
	if err != nil {
		return err
	}
	if _, err := op(client, cmd.Context(), record); err != nil {
		return describe(err)
	}
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "%s %q\n", verb, record.Title)
	return nil
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a record; later records are renumbered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			client, err := opts.writer()
			if err != nil {
				return err
			}
			if _, err := client.Delete(cmd.Context(), id); err != nil {
				return describe(err)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Deleted %d\n", id)
			return nil
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check that the daemon is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := opts.reader().Status(cmd.Context())
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprint(cmd.OutOrStdout(), "● ")
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", msg, opts.addr)
			return nil
		},
	}
}

// readRecord accepts inline JSON or @path to a JSON file.
func readRecord(arg string) (schema.Collection, error) {
	var record schema.Collection
	data := []byte(arg)
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		content, err := os.ReadFile(path)
		if err != nil {
			return record, fmt.Errorf("reading record: %w", err)
		}
		data = content
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("decoding record: %w", err)
	}
	return record, nil
}

func describe(err error) error {
	if errors.Is(err, sdk.ErrUnauthorized) {
		return fmt.Errorf("%w: check --token-file", err)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
