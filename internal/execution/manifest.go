package execution

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
)

const ManifestFile = "zemog.json"

// TestDefinition is one named entry of the manifest.
type TestDefinition struct {
	LaunchParameters []string `json:"launchParameters"`
}

// Manifest maps test names to their launch parameters.
type Manifest map[string]TestDefinition

// relativeRef matches "=./path" or "= .\path" inside a launch parameter.
var relativeRef = regexp.MustCompile(`(=\s?)(\.(?:/|\\))(.*)`)

// LoadManifest reads the manifest at path (or path/zemog.json for a directory)
// and rewrites relative file references to file URIs under the manifest's
// directory.
func LoadManifest(path string) (Manifest, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err,
			fmt.Sprintf("Can't open tests directory %q", path))
	}

	manifestPath := path
	if st.IsDir() {
		manifestPath = filepath.Join(path, ManifestFile)
	}
	root, err := filepath.Abs(filepath.Dir(manifestPath))
	if err != nil {
		return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err, "can't resolve tests directory")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err,
			fmt.Sprintf("Can't read %s configuration from %q", ManifestFile, manifestPath))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err,
			fmt.Sprintf("Can't read %s configuration from %q", ManifestFile, manifestPath))
	}

	if _, legacy := raw["launchParameters"]; legacy {
		return nil, errorutil.New(errorutil.KindConfigurationParse,
			"Incompatible config format, tests names must be specified")
	}

	manifest := make(Manifest, len(raw))
	for name, body := range raw {
		if name == "version" {
			continue
		}

		var def TestDefinition
		if err := json.Unmarshal(body, &def); err != nil {
			return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err,
				fmt.Sprintf("invalid definition for test %q", name))
		}
		for i, param := range def.LaunchParameters {
			def.LaunchParameters[i] = RewriteParameter(param, root)
		}
		manifest[name] = def
	}

	return manifest, nil
}

// RewriteParameter turns the first "=./rest" reference in param into
// "=file://<root>/rest".
func RewriteParameter(param, root string) string {
	m := relativeRef.FindStringSubmatchIndex(param)
	if m == nil {
		return param
	}
	prefix := param[m[2]:m[3]]
	rest := param[m[6]:m[7]]
	abs := filepath.ToSlash(filepath.Join(root, filepath.FromSlash(rest)))
	return param[:m[0]] + prefix + "file://" + abs + param[m[1]:]
}
