// Package stackdeploy implements Periphery's compose deploy pipeline
// (spec.md §4.7): materialize working tree, validate files, registry
// login, pre/post-deploy hooks, validate/build/pull/down/up via the
// `docker compose` CLI. Grounded on original_source/bin/periphery/src/
// compose.rs and compose/write.rs for step order and gating; shells out
// to the compose CLI the same way the original does (neither reimplements
// compose) via internal/command, and parses `compose config` output with
// gopkg.in/yaml.v3 (a Pulse indirect dependency) to enumerate services.
package stackdeploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/komodo-run/komodo/internal/command"
	"github.com/komodo-run/komodo/internal/models"
	"github.com/komodo-run/komodo/internal/secrets"
	"gopkg.in/yaml.v3"
)

// MaterializeMode selects how the working tree is produced.
type MaterializeMode string

const (
	ModeFilesOnHost MaterializeMode = "FilesOnHost"
	ModeInlineRepo  MaterializeMode = "InlineRepo"
	ModeUIDefined   MaterializeMode = "UIDefined"
)

// GitSource describes an inline-repo materialization source.
type GitSource struct {
	URL       string
	Branch    string
	ClonePath string
}

// Hook is a pre/post-deploy shell command, run from Path relative to the
// run directory.
type Hook struct {
	Command string
	Path    string
}

// Registry is provider-aware login configuration.
type Registry struct {
	Provider string
	Account  string
	Token    string
}

// Spec is one stack's deploy configuration (spec.md §4.7 "Input").
type Spec struct {
	Name                string
	StackDir            string // {stack_dir} root periphery writes under
	RunDirectory        string // relative run directory under {stack_dir}/{name}
	Mode                MaterializeMode
	Clone               *GitSource
	UIFileName          string // file_paths[0], defaults to "compose.yaml"
	UIFileContents      string
	ComposeFiles        []string // declared compose file names, relative to run dir
	EnvBody             string
	SkipSecretInterp    bool
	DestroyBeforeDeploy bool
	PreDeploy           *Hook
	PostDeploy          *Hook
	RunBuild            bool
	AutoPull            bool
	ExtraArgs           []string
	Services            []string // optional service filter
	PreviousProject     string
	Project             string
	Registry            *Registry
	GitToken            string
}

// Pipeline runs the ten-step deploy sequence against one Spec.
type Pipeline struct {
	Secrets []secrets.Replacer
	Now     func() time.Time
	// Clone fetches/pulls a git repo into dir; production wires this to a
	// git CLI/library call. Left as a hook since VCS plumbing is a
	// separate concern from the compose pipeline itself.
	Clone func(ctx context.Context, src GitSource, dir string) error
	// Login performs provider-aware registry authentication.
	Login func(ctx context.Context, reg Registry) error
}

func New(replacers []secrets.Replacer) *Pipeline {
	return &Pipeline{Secrets: replacers, Now: time.Now}
}

// Deploy runs every step, appending a log entry to update per step and
// stopping as soon as a step fails (spec.md §4.7 "gated by all previous
// logs succeeded").
func (p *Pipeline) Deploy(ctx context.Context, spec Spec, update *models.Update) error {
	runDir := filepath.Join(spec.StackDir, spec.Name, spec.RunDirectory)

	steps := []struct {
		stage string
		run   func() (command.Result, error)
	}{
		{"materialize", func() (command.Result, error) { return p.materialize(spec, runDir) }},
		{"validate_files", func() (command.Result, error) { return p.validateFiles(spec, runDir) }},
		{"registry_login", func() (command.Result, error) { return p.registryLogin(ctx, spec) }},
		{"pre_deploy", func() (command.Result, error) { return p.runHook(ctx, spec.PreDeploy, runDir) }},
		{"validate_compose", func() (command.Result, error) { return p.validateCompose(ctx, spec, runDir) }},
		{"build", func() (command.Result, error) { return p.build(ctx, spec, runDir) }},
		{"pull", func() (command.Result, error) { return p.pull(ctx, spec, runDir) }},
		{"down_previous", func() (command.Result, error) { return p.downPrevious(ctx, spec, runDir) }},
		{"up", func() (command.Result, error) { return p.up(ctx, spec, runDir) }},
		{"post_deploy", func() (command.Result, error) { return p.runHook(ctx, spec.PostDeploy, runDir) }},
	}

	for _, step := range steps {
		if !update.AllLogsSucceeded() {
			break
		}
		result, err := step.run()
		if result.Command == "" && err == nil {
			continue // step was a no-op (e.g. hook not configured); no log emitted
		}
		update.AddLog(p.toLog(step.stage, result))
		if err != nil {
			return err
		}
	}

	if !update.AllLogsSucceeded() {
		return fmt.Errorf("stackdeploy: pipeline failed at stage %q", lastFailedStage(update))
	}
	return nil
}

func lastFailedStage(update *models.Update) string {
	for _, l := range update.Logs {
		if !l.Success {
			return l.Stage
		}
	}
	return ""
}

// toLog redacts every configured secret's literal value out of a step's
// command/stdout/stderr before it is attached to the Update (spec.md §4.7
// "the resulting log's command/stdout/stderr are rewritten").
func (p *Pipeline) toLog(stage string, r command.Result) models.UpdateLog {
	return models.UpdateLog{
		Stage:   stage,
		Command: secrets.Redact(r.Command, p.Secrets),
		Stdout:  secrets.Redact(r.Stdout, p.Secrets),
		Stderr:  secrets.Redact(r.Stderr, p.Secrets),
		Success: r.Success,
		Start:   r.Start,
		End:     r.End,
	}
}

// materialize implements step 1's three paths, then writes the
// interpolated env file and canonicalizes the run directory.
func (p *Pipeline) materialize(spec Spec, runDir string) (command.Result, error) {
	start := p.Now()
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return failResult("materialize", start, p.Now(), err), err
	}

	switch spec.Mode {
	case ModeFilesOnHost:
		// Files already present on the host at runDir; nothing to write.
	case ModeInlineRepo:
		if spec.Clone == nil {
			err := fmt.Errorf("inline repo mode requires a clone source")
			return failResult("materialize", start, p.Now(), err), err
		}
		cloneDir := filepath.Join(spec.StackDir, spec.Name, spec.Clone.ClonePath)
		if p.Clone != nil {
			if err := p.Clone(context.Background(), *spec.Clone, cloneDir); err != nil {
				return failResult("materialize", start, p.Now(), err), err
			}
		}
	case ModeUIDefined:
		name := spec.UIFileName
		if name == "" {
			name = "compose.yaml"
		}
		if err := os.WriteFile(filepath.Join(runDir, name), []byte(spec.UIFileContents), 0o644); err != nil {
			return failResult("materialize", start, p.Now(), err), err
		}
	}

	envBody := spec.EnvBody
	usedSecrets := []secrets.Replacer{}
	if !spec.SkipSecretInterp {
		envBody, usedSecrets = secrets.InterpolateAndTrackRedactions(envBody, p.Secrets)
	}
	if err := os.WriteFile(filepath.Join(runDir, ".env"), []byte(envBody), 0o600); err != nil {
		return failResult("materialize", start, p.Now(), err), err
	}

	canonical, err := filepath.Abs(runDir)
	if err != nil {
		canonical = runDir
	}

	return command.Result{
		Command: "materialize " + string(spec.Mode),
		Stdout:  fmt.Sprintf("run directory: %s (secrets interpolated: %d)", canonical, len(usedSecrets)),
		Success: true,
		Start:   start,
		End:     p.Now(),
	}, nil
}

func (p *Pipeline) validateFiles(spec Spec, runDir string) (command.Result, error) {
	start := p.Now()
	var missing []string
	for _, f := range spec.ComposeFiles {
		if _, err := os.Stat(filepath.Join(runDir, f)); err != nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		err := fmt.Errorf("missing compose files: %v", missing)
		return command.Result{
			Command: "validate_files",
			Stderr:  err.Error(),
			Success: false,
			Start:   start,
			End:     p.Now(),
		}, err
	}
	return command.Result{Command: "validate_files", Stdout: "ok", Success: true, Start: start, End: p.Now()}, nil
}

func (p *Pipeline) registryLogin(ctx context.Context, spec Spec) (command.Result, error) {
	if spec.Registry == nil || spec.Registry.Provider == "" {
		return command.Result{}, nil
	}
	start := p.Now()
	var err error
	if p.Login != nil {
		err = p.Login(ctx, *spec.Registry)
	}
	return command.Result{
		Command: fmt.Sprintf("registry login (%s)", spec.Registry.Provider),
		Success: err == nil,
		Stderr:  errString(err),
		Start:   start,
		End:     p.Now(),
	}, err
}

func (p *Pipeline) runHook(ctx context.Context, hook *Hook, runDir string) (command.Result, error) {
	if hook == nil || hook.Command == "" {
		return command.Result{}, nil
	}
	dir := runDir
	if hook.Path != "" {
		dir = filepath.Join(runDir, hook.Path)
	}
	result := command.Run(ctx, dir, hook.Command)
	if !result.Success {
		return result, fmt.Errorf("hook failed: %s", hook.Command)
	}
	return result, nil
}

func (p *Pipeline) composeArgs(spec Spec, extra ...string) []string {
	args := []string{"-p", spec.Project}
	for _, f := range spec.ComposeFiles {
		args = append(args, "-f", f)
	}
	args = append(args, extra...)
	return args
}

func (p *Pipeline) runCompose(ctx context.Context, runDir string, args []string) command.Result {
	return command.Run(ctx, runDir, "docker compose "+strings.Join(args, " "))
}

func (p *Pipeline) validateCompose(ctx context.Context, spec Spec, runDir string) (command.Result, error) {
	args := p.composeArgs(spec, "config")
	result := p.runCompose(ctx, runDir, args)
	if !result.Success {
		return result, fmt.Errorf("compose config failed")
	}

	services, err := enumerateServices(result.Stdout)
	if err != nil {
		result.Success = false
		result.Stderr = err.Error()
		return result, err
	}
	result.Stdout = fmt.Sprintf("services: %v", services)
	return result, nil
}

// ServiceSpec is the subset of a compose service definition needed to fan
// out replica-suffixed container names.
type ServiceSpec struct {
	Deploy struct {
		Replicas int `yaml:"replicas"`
	} `yaml:"deploy"`
}

type composeFile struct {
	Services map[string]ServiceSpec `yaml:"services"`
}

// enumerateServices parses `compose config` output and fans a service
// with deploy.replicas >= 2 out into suffixed names svc-1..svc-N.
func enumerateServices(yamlOutput string) ([]string, error) {
	var parsed composeFile
	if err := yaml.Unmarshal([]byte(yamlOutput), &parsed); err != nil {
		return nil, fmt.Errorf("parse compose config: %w", err)
	}

	var out []string
	for name, svc := range parsed.Services {
		if svc.Deploy.Replicas >= 2 {
			for i := 1; i <= svc.Deploy.Replicas; i++ {
				out = append(out, name+"-"+strconv.Itoa(i))
			}
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func (p *Pipeline) build(ctx context.Context, spec Spec, runDir string) (command.Result, error) {
	if !spec.RunBuild {
		return command.Result{}, nil
	}
	args := p.composeArgs(spec, "build")
	args = append(args, spec.ExtraArgs...)
	args = append(args, spec.Services...)
	result := p.runCompose(ctx, runDir, args)
	if !result.Success {
		return result, fmt.Errorf("compose build failed")
	}
	return result, nil
}

func (p *Pipeline) pull(ctx context.Context, spec Spec, runDir string) (command.Result, error) {
	if !spec.AutoPull {
		return command.Result{}, nil
	}
	args := p.composeArgs(spec, "pull")
	args = append(args, spec.Services...)
	result := p.runCompose(ctx, runDir, args)
	if !result.Success {
		return result, fmt.Errorf("compose pull failed")
	}
	return result, nil
}

func (p *Pipeline) downPrevious(ctx context.Context, spec Spec, runDir string) (command.Result, error) {
	needsDown := spec.DestroyBeforeDeploy || (spec.PreviousProject != "" && spec.PreviousProject != spec.Project)
	if !needsDown {
		return command.Result{}, nil
	}
	args := []string{"-p", spec.PreviousProject, "down"}
	args = append(args, spec.Services...)
	result := p.runCompose(ctx, runDir, args)
	if !result.Success {
		return result, fmt.Errorf("compose down (previous project) failed")
	}
	return result, nil
}

func (p *Pipeline) up(ctx context.Context, spec Spec, runDir string) (command.Result, error) {
	args := p.composeArgs(spec, "up", "-d")
	args = append(args, spec.ExtraArgs...)
	args = append(args, spec.Services...)
	result := p.runCompose(ctx, runDir, args)
	if !result.Success {
		return result, fmt.Errorf("compose up failed")
	}
	if result.Stdout == "" {
		result.Stdout = "deployed=success"
	} else {
		result.Stdout += "\ndeployed=success"
	}
	return result, nil
}

func failResult(stage string, start, end time.Time, err error) command.Result {
	return command.Result{
		Command: stage,
		Stderr:  err.Error(),
		Success: false,
		Start:   start,
		End:     end,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
