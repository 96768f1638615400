package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/sfisum/pkg/sfisum/config"
	"github.com/jamesainslie/sfisum/pkg/sfisum/engine"
)

var generateCmd = &cobra.Command{
	Use:   "generate [dir]",
	Short: "Hash every file and write a new manifest",
	Long: `Walk a directory, hash every regular file and write a manifest named
<date>_<time>.<suffix> into the directory (or --output).

The hash algorithm comes from --hash or the "hash" config setting:
md5, sha256, b2 (BLAKE2b-256) or xxh128.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringP("hash", "H", "", "hash algorithm: md5, sha256, b2, xxh128")
	generateCmd.Flags().Bool("no-save", false, "report only, do not write a manifest")
	generateCmd.Flags().Bool("strict", false, "exit with status 2 when any file fails to hash")
	_ = viper.BindPFlag("hash", generateCmd.Flags().Lookup("hash"))

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := config.ExpandPath(dir)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	typ, err := cfg.HashType()
	if err != nil {
		return err
	}

	noSave, _ := cmd.Flags().GetBool("no-save")
	strict, _ := cmd.Flags().GetBool("strict")

	return runMode(cmd, runRequest{
		mode:   engine.ModeGenerate,
		hash:   typ,
		base:   dir,
		save:   !noSave,
		strict: strict,
	})
}
