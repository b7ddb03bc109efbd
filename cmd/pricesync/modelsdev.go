package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/wayfarelabs/faregate/internal/catalog"
)

const modelsDevBaseURL = "https://raw.githubusercontent.com/anomalyco/models.dev/dev/providers/"

// modelsDevDirs maps catalog providers to models.dev directory names.
// Providers missing here are skipped during sync.
var modelsDevDirs = map[catalog.Provider]string{
	catalog.ProviderAnthropic: "anthropic",
	catalog.ProviderOpenAI:    "openai",
	catalog.ProviderGoogle:    "google",
	catalog.ProviderMeta:      "meta",
	catalog.ProviderMistral:   "mistral",
}

// modelsDevModel is the subset of a models.dev TOML file this tool
// reads. Costs are USD per million tokens.
type modelsDevModel struct {
	Name  string         `toml:"name"`
	Cost  modelsDevCost  `toml:"cost"`
	Limit modelsDevLimit `toml:"limit"`
}

type modelsDevCost struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

type modelsDevLimit struct {
	Context int `toml:"context"`
	Output  int `toml:"output"`
}

// lookupKey resolves a catalog model to its models.dev provider
// directory and file name. Returns ("", "") when the provider has no
// models.dev mapping.
func lookupKey(m catalog.ModelDefinition) (dir, file string) {
	dir, ok := modelsDevDirs[m.Provider]
	if !ok {
		return "", ""
	}
	return dir, m.NativeModelID()
}

func modelsDevURL(dir, file string) string {
	return modelsDevBaseURL + dir + "/models/" + file + ".toml"
}

func modelsDevCachePath(cacheDir, dir, file string) string {
	return filepath.Join(cacheDir, "models.dev", dir, file+".toml")
}

// fetchModelsDevModel fetches and parses a single models.dev TOML file.
// Returns nil if the model doesn't exist in models.dev (404).
func fetchModelsDevModel(dir, file, cacheDir string, refresh, offline bool) *modelsDevModel {
	url := modelsDevURL(dir, file)
	cachePath := modelsDevCachePath(cacheDir, dir, file)

	data, err := fetchCached(url, cachePath, refresh, offline)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARN: models.dev fetch %s/%s: %v\n", dir, file, err)
		return nil
	}
	if data == nil {
		return nil
	}

	var m modelsDevModel
	if err := toml.Unmarshal(data, &m); err != nil {
		fmt.Fprintf(os.Stderr, "WARN: models.dev parse %s/%s: %v\n", dir, file, err)
		return nil
	}

	return &m
}

// fetchBatch concurrently fetches models.dev data for every catalog
// model with a models.dev mapping. Fetches are deduped per TOML file
// so catalog aliases sharing a native ID hit the network once. The
// result is keyed by catalog model ID.
func fetchBatch(models []catalog.ModelDefinition, cacheDir string, refresh, offline bool) map[string]*modelsDevModel {
	type lookup struct{ Dir, File string }

	keys := make(map[string]lookup, len(models))
	seen := make(map[lookup]bool)
	var unique []lookup

	for _, m := range models {
		dir, file := lookupKey(m)
		if dir == "" || file == "" {
			continue
		}
		l := lookup{dir, file}
		keys[m.ID] = l
		if !seen[l] {
			seen[l] = true
			unique = append(unique, l)
		}
	}

	fmt.Fprintf(os.Stderr, "  models.dev: %d files to fetch\n", len(unique))

	byFile := make(map[lookup]*modelsDevModel)
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, 10)

	for _, l := range unique {
		wg.Add(1)
		go func(l lookup) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			model := fetchModelsDevModel(l.Dir, l.File, cacheDir, refresh, offline)
			if model != nil {
				mu.Lock()
				byFile[l] = model
				mu.Unlock()
			}
		}(l)
	}

	wg.Wait()

	results := make(map[string]*modelsDevModel, len(keys))
	for id, l := range keys {
		if m, ok := byFile[l]; ok {
			results[id] = m
		}
	}
	return results
}
