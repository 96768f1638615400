package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/sfisum/pkg/sfisum/engine"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh <manifest> [dir]",
	Short: "Compare a directory with a manifest, hashing only what changed",
	Long: `Walk the directory and compare it with the manifest by path, size and
modification time. Only new files and files whose metadata changed are
hashed; unchanged files keep their recorded digest. Moved or renamed files
are recognised by content.

A fresh manifest is written afterwards unless --no-save is given.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().Bool("full", false, "re-hash every file (not implemented yet)")
	refreshCmd.Flags().Bool("no-save", false, "report only, do not write a manifest")
	refreshCmd.Flags().Bool("strict", false, "exit with status 2 when files are corrupted or unreadable")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	req, err := manifestRequest(args)
	if err != nil {
		return err
	}

	full, _ := cmd.Flags().GetBool("full")
	noSave, _ := cmd.Flags().GetBool("no-save")

	req.mode = engine.ModeFastRefresh
	if full {
		req.mode = engine.ModeFullRefresh
	}
	req.save = !noSave
	req.strict, _ = cmd.Flags().GetBool("strict")
	return runMode(cmd, req)
}
