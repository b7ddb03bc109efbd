// pricesync refreshes the pricing and context limits in
// internal/catalog/models.json from the models.dev dataset.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/wayfarelabs/faregate/internal/catalog"
	"github.com/wayfarelabs/faregate/internal/config"
)

// catalogFile mirrors the structure of models.json.
type catalogFile struct {
	Models []catalog.ModelDefinition `json:"models"`
}

func main() {
	modelsPath := flag.String("models", "internal/catalog/models.json", "catalog file to update")
	cacheDir := flag.String("cache-dir", "internal/catalog/.cache", "cache directory for downloaded sources")
	refresh := flag.Bool("refresh", false, "force re-fetch from remotes, ignore cache")
	offline := flag.Bool("offline", false, "use cache only, fail if missing")
	dryRun := flag.Bool("dry-run", false, "report changes without writing the catalog")
	restore := flag.Int("restore", -1, "restore the catalog from backup N (0 = newest) and exit")
	backups := flag.Bool("backups", false, "list catalog backups and exit")
	flag.Parse()

	if *backups {
		listBackups(*modelsPath)
		return
	}

	if *restore >= 0 {
		if err := config.RestoreBackup(*modelsPath, *restore); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: restore: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "pricesync: restored %s from backup %d\n", *modelsPath, *restore)
		return
	}

	raw, err := os.ReadFile(*modelsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", *modelsPath, err)
		os.Exit(1)
	}

	var cat catalogFile
	if err := json.Unmarshal(raw, &cat); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse %s: %v\n", *modelsPath, err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "pricesync: %d catalog models, fetching models.dev...\n", len(cat.Models))
	fetched := fetchBatch(cat.Models, *cacheDir, *refresh, *offline)

	updated, unchanged, missing := applyPricing(cat.Models, fetched)
	fmt.Fprintf(os.Stderr, "pricesync: %d updated, %d unchanged, %d not on models.dev\n", updated, unchanged, missing)

	if *dryRun {
		fmt.Fprintln(os.Stderr, "pricesync: dry run, catalog not written")
		return
	}
	if updated == 0 {
		fmt.Fprintln(os.Stderr, "pricesync: nothing to write")
		return
	}

	if err := config.BackupAndWriteJSON(*modelsPath, cat, config.DefaultBackupCount); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: write %s: %v\n", *modelsPath, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "pricesync: wrote %s\n", *modelsPath)
}

func listBackups(path string) {
	infos := config.ListBackups(path)
	if len(infos) == 0 {
		fmt.Fprintf(os.Stderr, "pricesync: no backups for %s\n", path)
		return
	}
	for _, b := range infos {
		fmt.Printf("%d\t%s\t%d bytes\t%s\n", b.Index, b.Path, b.Size, b.ModTime.Format("2006-01-02 15:04:05"))
	}
}
