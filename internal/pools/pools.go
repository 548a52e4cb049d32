// Package pools provides the commodity pool registry: named sets of
// commodity codes (e.g. "black" = {rb, hc, i, j, jm}) the operator-facing
// API accepts as a symbol-selector shorthand, and which the Portfolio Risk
// Manager uses as its sector-concentration lookup.
package pools

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultPools are the built-in commodity pools; override_path in config may
// add to or replace entries.
func defaultPools() map[string][]string {
	return map[string][]string{
		"black":          {"rb", "hc", "i", "j", "jm"},
		"metal":          {"cu", "al", "zn", "pb", "ni", "sn"},
		"precious_metal": {"au", "ag"},
		"agriculture":    {"a", "c", "m", "y", "p", "cf", "sr"},
		"chemical":       {"ta", "pp", "l", "v", "eg", "ru"},
		"financial":      {"if", "ic", "ih", "t", "tf", "ts"},
	}
}

// Registry resolves commodity codes to their pool ("sector") and expands
// pool names back into their member commodity codes.
type Registry struct {
	pools      map[string][]string // pool name -> commodity codes
	sectorOf   map[string]string   // commodity code -> pool name
}

// Load builds a Registry from the built-in pools, optionally merged with a
// YAML override file (pool name -> list of commodity codes). A missing
// override file is not an error; the built-in pools are used as-is.
func Load(overridePath string) (*Registry, error) {
	pools := defaultPools()

	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading pool override %s: %w", overridePath, err)
			}
		} else {
			var override map[string][]string
			if err := yaml.Unmarshal(data, &override); err != nil {
				return nil, fmt.Errorf("parsing pool override %s: %w", overridePath, err)
			}
			for name, codes := range override {
				pools[name] = codes
			}
		}
	}

	return newRegistry(pools), nil
}

func newRegistry(pools map[string][]string) *Registry {
	sectorOf := make(map[string]string)
	for name, codes := range pools {
		for _, code := range codes {
			sectorOf[strings.ToLower(code)] = name
		}
	}
	return &Registry{pools: pools, sectorOf: sectorOf}
}

// Expand returns the commodity codes in a named pool, or an error if the
// pool name is unknown. "all" expands to every commodity code across every
// pool.
func (r *Registry) Expand(poolName string) ([]string, error) {
	if poolName == "all" {
		var all []string
		for _, codes := range r.pools {
			all = append(all, codes...)
		}
		return all, nil
	}
	codes, ok := r.pools[poolName]
	if !ok {
		return nil, fmt.Errorf("pools: unknown pool %q", poolName)
	}
	return codes, nil
}

// SectorOf resolves a symbol or commodity code to its pool name, by matching
// on the commodity-code prefix (e.g. "rb2410" -> "rb" -> "black"). Returns
// "" if the code belongs to no known pool.
func (r *Registry) SectorOf(symbol string) string {
	code := commodityCode(symbol)
	return r.sectorOf[code]
}

// commodityCode strips a trailing contract-month suffix (digits, or "-dom"
// for the simulated market-data source) from a futures symbol, leaving the
// commodity code, e.g. "rb2410" -> "rb", "au-dom" -> "au".
func commodityCode(symbol string) string {
	symbol = strings.ToLower(symbol)
	symbol = strings.TrimSuffix(symbol, "-dom")
	end := len(symbol)
	for end > 0 && symbol[end-1] >= '0' && symbol[end-1] <= '9' {
		end--
	}
	return symbol[:end]
}
