package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// Environment is the set of variables a plan runs with.
type Environment struct {
	Name      string
	Variables map[string]any
}

// LoadEnvironment builds the variables for envName. Sources are applied in
// order of increasing precedence: prefixed OS variables, dotenv files in dir,
// the plan's top-level variables, then the named environment block.
func LoadEnvironment(dir, envName string, planVars map[string]any, planEnvs map[string]map[string]any) (*Environment, error) {
	dotenv, err := LoadDotEnvFiles(dir)
	if err != nil {
		return nil, err
	}

	var selected map[string]any
	if envName != "" {
		vars, ok := planEnvs[envName]
		if !ok {
			return nil, fmt.Errorf("environment %q is not defined (available: %s)", envName, strings.Join(environmentNames(planEnvs), ", "))
		}
		selected = vars
	}

	fromDotEnv := make(map[string]any, len(dotenv))
	for k, v := range dotenv {
		fromDotEnv[k] = v
	}

	return &Environment{
		Name:      envName,
		Variables: MergeVariables(LoadSystemEnv(SystemPrefix), fromDotEnv, planVars, selected),
	}, nil
}

// SystemPrefix selects OS variables exposed to plans without the $ syntax:
// HITRUN_VAR_token becomes {{token}}.
const SystemPrefix = "HITRUN_VAR_"

func environmentNames(envs map[string]map[string]any) []string {
	names := make([]string, 0, len(envs))
	for name := range envs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// LoadSystemEnv returns the OS variables starting with prefix, with the prefix
// removed. An empty prefix returns everything.
func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if len(key) > len(prefix) && strings.HasPrefix(key, prefix) {
			result[key[len(prefix):]] = value
		}
	}
	return result
}
