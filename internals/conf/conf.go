package conf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	z "github.com/Oudwins/zog"
	"github.com/tidwall/jsonc"

	"github.com/Oudwins/verstamp/internals/repo"
	"github.com/Oudwins/verstamp/internals/timeouts"
)

// FileName is looked up in the project directory. Comments and trailing
// commas are allowed.
const FileName = "verstamp.json"

type Config struct {
	VCS            repo.Kind `json:"vcs" zog:"vcs"`
	RewriteTimeout string    `json:"rewrite_timeout" zog:"rewrite_timeout"`
	// Timeout is RewriteTimeout parsed.
	Timeout time.Duration `json:"-"`
}

var ConfigSchema = z.Struct(z.Shape{
	"VCS":            z.StringLike[repo.Kind]().Default(repo.KindAuto).OneOf(repo.Kinds()),
	"RewriteTimeout": z.String().Trim().Default(timeouts.Rewrite.String()),
})

func Default() *Config {
	cfg, err := parse(map[string]any{})
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads dir/verstamp.json. A missing or blank file yields defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return Default(), nil
	}

	var payload map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg, err := parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func parse(payload map[string]any) (*Config, error) {
	cfg := &Config{}
	if errs := ConfigSchema.Parse(payload, cfg); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config:\n%s", z.Issues.Prettify(errs))
	}
	timeout, err := time.ParseDuration(cfg.RewriteTimeout)
	if err != nil || timeout < 0 {
		return nil, fmt.Errorf("invalid config: rewrite_timeout %q is not a duration", cfg.RewriteTimeout)
	}
	cfg.Timeout = timeout
	return cfg, nil
}
