// Package credentials looks up service credentials from .env files in a
// single operator-controlled directory, so a worker that reports
// credentials_needed can be answered without the harness ever persisting
// secrets itself.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sandoak/gsdharness/pkg/apierr"
)

// DefaultDir is used when Lookup.Dir is empty.
const DefaultDir = "/mnt/dev-linux/projects/server-maintenance/docs/servers/"

// Lookup resolves service credentials from .env files under Dir.
type Lookup struct {
	Dir string
}

// New builds a Lookup rooted at dir, or DefaultDir if dir is empty.
func New(dir string) *Lookup {
	if dir == "" {
		dir = DefaultDir
	}
	return &Lookup{Dir: dir}
}

// Get reads the credentials for service, optionally narrowed by context
// (e.g. "staging"). It tries "<service>-<context>.env" first, then
// "<service>.env". The resolved file must live directly inside Dir — a
// service or context value containing a path separator is rejected rather
// than silently escaping the credentials directory.
func (l *Lookup) Get(service, context string) (map[string]string, error) {
	if strings.ContainsRune(service, os.PathSeparator) || strings.ContainsRune(context, os.PathSeparator) {
		return nil, apierr.InvalidArgumentf("invalid_credential_ref", "service/context must not contain a path separator")
	}

	candidates := []string{}
	if context != "" {
		candidates = append(candidates, fmt.Sprintf("%s-%s.env", service, context))
	}
	candidates = append(candidates, fmt.Sprintf("%s.env", service))

	for _, name := range candidates {
		path := filepath.Join(l.Dir, name)
		vals, err := godotenv.Read(path)
		if err == nil {
			return vals, nil
		}
		if !os.IsNotExist(err) {
			return nil, apierr.Wrap(apierr.IOFailure, "credential_read_failed", "failed to read "+name, err)
		}
	}

	return nil, apierr.NotFoundf("credentials_not_found", "no credentials for service %q (context %q)", service, context)
}
