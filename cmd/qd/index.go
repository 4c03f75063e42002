package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/qoldau/qoldau/internal/respbank"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the response-bank similarity index",
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-embed the response bank and rewrite the disk cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Drop the stale cache first so Build embeds from scratch.
		for _, name := range []string{"index.bin", "meta.json"} {
			if err := os.Remove(filepath.Join(cfg.Bank.CacheDir, name)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		bank := respbank.New(cfg.Bank.Path, cfg.Bank.CacheDir, buildEncoder(), logger)
		if err := bank.Build(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("index rebuilt: %d templates\n", bank.Len())
		return nil
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the disk cache matches the bank file",
	RunE: func(cmd *cobra.Command, args []string) error {
		srcHash, err := fileSHA256(cfg.Bank.Path)
		if err != nil {
			return fmt.Errorf("bank file: %w", err)
		}

		raw, err := os.ReadFile(filepath.Join(cfg.Bank.CacheDir, "meta.json"))
		if err != nil {
			fmt.Println("cache: absent (first Build will embed from scratch)")
			return nil
		}
		var meta struct {
			SourceHash string `json:"source_hash"`
			Dims       int    `json:"dims"`
			Items      []any  `json:"items"`
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			fmt.Println("cache: corrupt meta.json (will rebuild)")
			return nil
		}

		state := "stale (source changed, will rebuild)"
		if meta.SourceHash == srcHash {
			state = "fresh"
		}
		fmt.Printf("cache: %s\n  items: %d\n  dims:  %d\n  source: %s\n", state, len(meta.Items), meta.Dims, cfg.Bank.Path)
		return nil
	},
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func init() {
	indexCmd.AddCommand(indexRebuildCmd, indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}
