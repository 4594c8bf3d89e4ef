package materialize

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/docc-labs/docc-api/internal/apperr"
	"github.com/docc-labs/docc-api/internal/models"
)

// profileName is the dbt profile the project file refers to.
const profileName = "docc"

type profileOutput struct {
	Type    string `yaml:"type"`
	Threads int    `yaml:"threads"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Pass    string `yaml:"pass"`
	DBName  string `yaml:"dbname"`
	Schema  string `yaml:"schema"`
}

type profileEntry struct {
	Target  string                   `yaml:"target"`
	Outputs map[string]profileOutput `yaml:"outputs"`
}

// targetName is the per-connection output key inside a profile document.
func targetName(conn models.Connection) string {
	return fmt.Sprintf("id_%d", conn.ID)
}

// buildProfile renders an ephemeral single-connection profile document.
// Each invocation gets its own document instead of editing a shared
// profiles file, so concurrent joins on different connections cannot stomp
// each other.
func buildProfile(conn models.Connection) ([]byte, error) {
	doc := map[string]profileEntry{
		profileName: {
			Target: targetName(conn),
			Outputs: map[string]profileOutput{
				targetName(conn): {
					Type:    string(conn.Source),
					Threads: 1,
					Host:    conn.Host,
					Port:    conn.Port,
					User:    conn.User,
					Pass:    conn.Password,
					DBName:  conn.Database,
					Schema:  "public",
				},
			},
		},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, apperr.Wrap(apperr.Tool, err, "encode profile document")
	}
	return out, nil
}
