package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/sfisum/pkg/sfisum/config"
	"github.com/jamesainslie/sfisum/pkg/sfisum/engine"
	"github.com/jamesainslie/sfisum/pkg/sfisum/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate <manifest> [dir]",
	Short: "Re-hash every file in a manifest and compare",
	Long: `Hash every file listed in the manifest and report files whose content no
longer matches, or that could not be read. Paths in the manifest are
resolved against dir, which defaults to the manifest's directory.

The hash algorithm is taken from the manifest's suffix or its "Hash:" header.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("strict", false, "exit with status 2 when files are invalid or unreadable")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	req, err := manifestRequest(args)
	if err != nil {
		return err
	}
	req.mode = engine.ModeValidate
	req.strict, _ = cmd.Flags().GetBool("strict")
	return runMode(cmd, req)
}

// manifestRequest resolves the <manifest> [dir] arguments and detects the
// manifest's hash type.
func manifestRequest(args []string) (runRequest, error) {
	path, err := config.ExpandPath(args[0])
	if err != nil {
		return runRequest{}, err
	}
	var base string
	if len(args) > 1 {
		if base, err = config.ExpandPath(args[1]); err != nil {
			return runRequest{}, err
		}
	}

	typ, err := manifest.DetectHashType(path)
	if err != nil {
		return runRequest{}, fmt.Errorf("reading %s: %w", path, err)
	}
	printVerbose("Manifest %s uses %s", path, typ)

	return runRequest{hash: typ, manifest: path, base: base}, nil
}
