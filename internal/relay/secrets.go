package relay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// SecretProvider supplies extra environment variables for a wrapped service
type SecretProvider interface {
	ServiceEnv(service string) (map[string]string, error)
}

// ProviderFunc adapts a function to SecretProvider
type ProviderFunc func(service string) (map[string]string, error)

func (f ProviderFunc) ServiceEnv(service string) (map[string]string, error) {
	return f(service)
}

// EnvFileProvider reads <Dir>/<service>.env in dotenv format. A missing
// file or an empty Dir yields no variables.
type EnvFileProvider struct {
	Dir string
}

func (p EnvFileProvider) ServiceEnv(service string) (map[string]string, error) {
	if p.Dir == "" {
		return nil, nil
	}
	if service == "" || filepath.Base(service) != service || strings.HasPrefix(service, ".") {
		return nil, fmt.Errorf("invalid service name for secrets lookup: %q", service)
	}
	path := filepath.Join(p.Dir, service+".env")
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read secrets %s: %w", path, err)
	}
	return env, nil
}

// mergeEnv overlays extra onto base, replacing variables that already exist.
// Added variables are appended in key order.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
