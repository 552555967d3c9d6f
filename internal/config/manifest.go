package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const DefaultManifestFile = "autoshard.yaml"

// Manifest lists which tables are partitioned across shards. It is the
// classification the reconciler uses to skip tables.
type Manifest struct {
	Sharded      []string `koanf:"sharded"`
	ShardRelated []string `koanf:"shard_related"`
}

// LoadManifest builds the manifest from defaults, the YAML file at path,
// AUTOSHARD_MANIFEST_* env vars and the --sharded/--shard-related flags.
// Flag values are added to the lists from the other sources. A missing file
// is an error unless path is the default file name.
func LoadManifest(path string, flags *pflag.FlagSet) (*Manifest, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"sharded":       []string{},
		"shard_related": []string{},
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load manifest defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error reading manifest %s: %w", path, err)
			}
		} else if path != DefaultManifestFile {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	}

	// AUTOSHARD_MANIFEST_SHARD_RELATED -> shard_related
	if err := k.Load(env.Provider("AUTOSHARD_MANIFEST_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "AUTOSHARD_MANIFEST_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load manifest env vars: %w", err)
	}

	var flagSharded, flagShardRelated []string
	if flags != nil {
		kf := koanf.New(".")
		if err := kf.Load(posflag.ProviderWithFlag(flags, ".", kf, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load manifest flags: %w", err)
		}
		flagSharded = stringList(kf, "sharded")
		flagShardRelated = stringList(kf, "shard_related")
	}

	return &Manifest{
		Sharded:      union(stringList(k, "sharded"), flagSharded),
		ShardRelated: union(stringList(k, "shard_related"), flagShardRelated),
	}, nil
}

// stringList reads key as a list. Env vars arrive as comma-separated strings.
func stringList(k *koanf.Koanf, key string) []string {
	var raw []string
	switch v := k.Get(key).(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []interface{}:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := []string{}
	for _, s := range append(append([]string{}, a...), b...) {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
