package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"

	"github.com/nicolagi/blogd/client"
	"github.com/spf13/cobra"
)

type flags struct {
	server   string
	password string
}

func newRootCommand(getenv func(string) string) *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:          "blogctl",
		Short:        "Read and write the posts of a blog server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.server, "server", "localhost:5000", "blog server address")
	root.PersistentFlags().StringVar(&f.password, "password", "", "admin password, if not set in $ADMIN_PASSWORD")
	root.PersistentPreRun = func(*cobra.Command, []string) {
		if f.password == "" {
			f.password = getenv("ADMIN_PASSWORD")
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the posts document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := client.New(f.server).Posts()
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, doc, "", "  "); err != nil {
				return fmt.Errorf("server sent invalid JSON: %w", err)
			}
			out.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(out.Bytes())
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "save FILE",
		Short: "Replace the posts document with the contents of FILE (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc []byte
			var err error
			if args[0] == "-" {
				doc, err = ioutil.ReadAll(cmd.InOrStdin())
			} else {
				doc, err = ioutil.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			err = client.New(f.server).SavePosts(doc, f.password)
			if errors.Is(err, client.ErrUnauthorized) {
				return errors.New("wrong password")
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Posts saved successfully")
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check the password against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := client.New(f.server).VerifyPassword(f.password)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("wrong password")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Password accepted")
			return err
		},
	})

	return root
}
