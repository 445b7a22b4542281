package env

import (
	"fmt"
	"os"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zenv"
	"github.com/joho/godotenv"
)

const (
	MajorVar       = "VERSTAMP_MAJOR"
	MinorVar       = "VERSTAMP_MINOR"
	VCSVar         = "VERSTAMP_VCS"
	RewriteVar     = "MESONREWRITE"
	RewriteRootVar = "MESON_PROJECT_DIST_ROOT"
)

// EnvStruct is the environment verstamp understands. Empty values count as
// unset. Major and Minor stay raw so they go through strict version parsing.
type EnvStruct struct {
	Major       string `zog:"VERSTAMP_MAJOR"`
	Minor       string `zog:"VERSTAMP_MINOR"`
	VCS         string `zog:"VERSTAMP_VCS"`
	Rewrite     string `zog:"MESONREWRITE"`
	RewriteRoot string `zog:"MESON_PROJECT_DIST_ROOT"`
}

var EnvSchema = z.Struct(z.Shape{
	"Major":       z.String().Optional(),
	"Minor":       z.String().Optional(),
	"VCS":         z.String().Optional().Trim(),
	"Rewrite":     z.String().Optional().Trim(),
	"RewriteRoot": z.String().Optional().Trim(),
})

func names() []string {
	return []string{MajorVar, MinorVar, VCSVar, RewriteVar, RewriteRootVar}
}

// Get reads the process environment.
func Get() (*EnvStruct, error) {
	return parse(zenv.NewDataProvider())
}

// Load reads the process environment on top of a dotenv file. Variables
// already set in the process win over the file. An empty path is the same
// as Get.
func Load(path string) (*EnvStruct, error) {
	if path == "" {
		return Get()
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	data := map[string]any{}
	for _, name := range names() {
		if v, ok := values[name]; ok {
			data[name] = v
		}
		if v, ok := os.LookupEnv(name); ok {
			data[name] = v
		}
	}
	return parse(data)
}

// FromMap builds the environment from explicit values, mainly for tests.
func FromMap(values map[string]string) (*EnvStruct, error) {
	data := map[string]any{}
	for k, v := range values {
		data[k] = v
	}
	return parse(data)
}

func parse(data any) (*EnvStruct, error) {
	out := &EnvStruct{}
	if errs := EnvSchema.Parse(data, out); len(errs) > 0 {
		return nil, fmt.Errorf("invalid environment:\n%s", z.Issues.Prettify(errs))
	}
	return out, nil
}
