package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensync/syncd/internal/config"
)

// newReloadCmd builds the `reload` command, which signals a running
// `sync --watch` daemon to re-read its config file (see reloadConfig in
// sync.go and the SIGHUP handling it was added alongside).
func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "reload",
		Short:       "Ask a running syncd daemon to reload its config",
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE:        runReload,
	}
}

func runReload(cmd *cobra.Command, _ []string) error {
	pidPath := pidFilePath(config.DefaultDataDir())

	if err := sendSIGHUP(pidPath); err != nil {
		return err
	}

	fmt.Println("reload signal sent")

	return nil
}
