// Package install runs the npm CLI to fetch packages into a staging
// directory.
//
// Installs are never retried and never run concurrently within one shelf
// process; the resolver calls [NPM.Install] one package at a time.
package install

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	errs "github.com/matzehuels/shelf/pkg/errors"
	"github.com/matzehuels/shelf/pkg/observability"
)

// DefaultBinary is the npm executable looked up on PATH.
const DefaultBinary = "npm"

// maxOutput bounds how much npm output is quoted in an error.
const maxOutput = 4 << 10

// NPM installs packages with the npm command line client.
type NPM struct {
	Binary   string      // npm executable, DefaultBinary when empty
	Registry string      // passed as --registry when set
	Args     []string    // extra arguments appended to every install
	Logger   *log.Logger // debug output, discarded when nil
}

func (n *NPM) logger() *log.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return log.New(io.Discard)
}

func (n *NPM) binary() string {
	if n.Binary != "" {
		return n.Binary
	}
	return DefaultBinary
}

// args builds the npm command line. The shallow strategy keeps a package's
// own dependencies nested under its directory, so the package directory is
// self-contained once moved out of the staging tree.
func (n *NPM) args(stagingDir, name, spec string) []string {
	args := []string{
		"install",
		"--prefix", stagingDir,
		"--no-save",
		"--no-package-lock",
		"--install-strategy=shallow",
		"--no-audit",
		"--no-fund",
		"--loglevel=error",
	}
	if n.Registry != "" {
		args = append(args, "--registry", n.Registry)
	}
	args = append(args, n.Args...)
	return append(args, name+"@"+spec)
}

// Install runs "npm install name@spec" into stagingDir and returns the
// installed package directory, stagingDir/node_modules/<name>.
func (n *NPM) Install(ctx context.Context, stagingDir, name, spec string) (string, error) {
	if err := errs.ValidateNpmPackageName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return "", errs.Wrap(errs.ErrCodeInstall, err, "create staging directory")
	}

	hooks := observability.Install()
	hooks.OnInstallStart(ctx, name, spec)
	start := time.Now()

	dir, err := n.run(ctx, stagingDir, name, spec)

	version := ""
	if err == nil {
		version, err = n.InstalledVersion(dir)
	}
	hooks.OnInstallComplete(ctx, name, version, time.Since(start), err)
	if err != nil {
		return "", err
	}
	return dir, nil
}

func (n *NPM) run(ctx context.Context, stagingDir, name, spec string) (string, error) {
	args := n.args(stagingDir, name, spec)
	logger := n.logger()
	logger.Debug("running npm", "binary", n.binary(), "args", strings.Join(args, " "))

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, n.binary(), args...)
	cmd.Dir = stagingDir
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := tail(out.String())
		if msg == "" {
			return "", errs.Wrap(errs.ErrCodeInstall, err, "npm install %s@%s", name, spec)
		}
		return "", errs.Wrap(errs.ErrCodeInstall, err, "npm install %s@%s:\n%s", name, spec, msg)
	}
	if s := strings.TrimSpace(out.String()); s != "" {
		logger.Debug("npm output", "name", name, "output", s)
	}

	dir := filepath.Join(stagingDir, "node_modules", filepath.FromSlash(name))
	if _, err := os.Stat(dir); err != nil {
		return "", errs.Wrap(errs.ErrCodeInstall, err, "npm install %s@%s left no package directory", name, spec)
	}
	return dir, nil
}

// InstalledVersion reads the version field of dir/package.json. It is the
// authoritative concrete version of an install.
func (n *NPM) InstalledVersion(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return "", errs.Wrap(errs.ErrCodeInstall, err, "read installed package.json")
	}
	var pkg struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", errs.Wrap(errs.ErrCodeInstall, err, "parse %s", filepath.Join(dir, "package.json"))
	}
	if pkg.Version == "" {
		return "", errs.New(errs.ErrCodeInstall, "installed package %s has no version", pkg.Name)
	}
	return pkg.Version, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxOutput {
		return s
	}
	return fmt.Sprintf("...%s", s[len(s)-maxOutput:])
}
