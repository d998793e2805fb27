package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/example/cctx/internal/cctx"
	"github.com/example/cctx/internal/cctx/domain"
	"github.com/example/cctx/internal/cctx/merge"
	"github.com/example/cctx/internal/cctx/paths"
)

// Deps carries the collaborators the command layer needs. Everything
// ambient (filesystem, directories, terminal, clock) is injected so the
// commands can run against an in-memory filesystem in tests.
type Deps struct {
	Fs       afero.Fs
	HomeDir  string
	WorkDir  string
	Prompter Prompter
	Stdin    io.Reader
	Logger   *slog.Logger

	// RunEditor opens a file in the user's editor. Nil means $EDITOR.
	RunEditor func(path string) error

	// Interactive turns the bare `cctx` invocation into a selection
	// prompt instead of a listing.
	Interactive bool
}

type modeFlags struct {
	current      bool
	quiet        bool
	newContext   bool
	deleteCtx    bool
	renameCtx    bool
	edit         bool
	show         bool
	export       bool
	importCtx    bool
	unset        bool
	inProject    bool
	local        bool
	mergeFrom    string
	unmergeFrom  string
	mergeFull    bool
	mergeHistory bool
	pruneBackups string
	force        bool
}

// NewRootCommand constructs the cctx root command. Like kubectx, cctx is a
// single command whose behavior is selected by mode flags plus an optional
// context name argument ("-" switches to the previous context).
func NewRootCommand(deps Deps, stdout, stderr io.Writer) *cobra.Command {
	flags := &modeFlags{}

	cmd := &cobra.Command{
		Use:   "cctx [context]",
		Short: "Claude Code context switcher",
		Long: "cctx maintains named snapshots (contexts) of Claude Code settings\n" +
			"and switches the active settings file between them.",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(deps, flags, args, stdout)
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 && !flags.renameCtx {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			mgr := newManager(deps, flags)
			names, err := mgr.ListContexts()
			if err != nil {
				return nil, cobra.ShellCompDirectiveError
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.BoolVarP(&flags.current, "current", "c", false, "Print the current context name")
	f.BoolVarP(&flags.quiet, "quiet", "q", false, "When listing, print only the current context")
	f.BoolVarP(&flags.newContext, "new", "n", false, "Create a new context from the active settings")
	f.BoolVarP(&flags.deleteCtx, "delete", "d", false, "Delete a context")
	f.BoolVarP(&flags.renameCtx, "rename", "r", false, "Rename a context")
	f.BoolVarP(&flags.edit, "edit", "e", false, "Edit a context with $EDITOR")
	f.BoolVarP(&flags.show, "show", "s", false, "Show context content")
	f.BoolVar(&flags.export, "export", false, "Write context content to stdout")
	f.BoolVar(&flags.importCtx, "import", false, "Import a context from stdin")
	f.BoolVarP(&flags.unset, "unset", "u", false, "Unset the current context (removes the active settings file)")
	f.BoolVar(&flags.inProject, "in-project", false, "Manage project-level contexts (./.claude/settings.json)")
	f.BoolVar(&flags.local, "local", false, "Manage local contexts (./.claude/settings.local.json)")
	f.StringVar(&flags.mergeFrom, "merge-from", "", "Merge permissions from a source (\"user\", a context name, or a file path)")
	f.StringVar(&flags.unmergeFrom, "unmerge", "", "Remove permissions previously merged from a source")
	f.BoolVar(&flags.mergeFull, "full", false, "Merge or unmerge all settings, not just permissions")
	f.BoolVar(&flags.mergeHistory, "merge-history", false, "Show merge history for a context")
	f.StringVar(&flags.pruneBackups, "prune-backups", "", "Remove settings backups older than the given age (e.g. 30d)")
	f.BoolVar(&flags.force, "force", false, "Do not prompt for confirmation")

	return cmd
}

func newManager(deps Deps, flags *modeFlags) *cctx.Manager {
	level := paths.LevelUser
	switch {
	case flags.local:
		level = paths.LevelLocal
	case flags.inProject:
		level = paths.LevelProject
	}
	return cctx.NewManager(deps.Fs, level, deps.HomeDir, deps.WorkDir, deps.Logger)
}

func run(deps Deps, flags *modeFlags, args []string, stdout io.Writer) error {
	mgr := newManager(deps, flags)

	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	switch {
	case flags.current:
		if current := mgr.CurrentContext(); current != "" {
			fmt.Fprintln(stdout, current)
		}
		return nil

	case flags.unset:
		if err := mgr.Unset(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Unset current context")
		return nil

	case flags.pruneBackups != "":
		return runPrune(deps, mgr, flags, stdout)

	case flags.deleteCtx:
		return runDelete(deps, mgr, arg, stdout)

	case flags.renameCtx:
		newName := ""
		if len(args) > 1 {
			newName = args[1]
		}
		return runRename(deps, mgr, arg, newName, stdout)

	case flags.newContext:
		return runCreate(deps, mgr, arg, stdout)

	case flags.edit:
		path, err := mgr.ContextPath(arg)
		if err != nil {
			return err
		}
		return runEditor(deps, path)

	case flags.show, flags.export:
		content, err := mgr.Render(arg)
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, content)
		return nil

	case flags.importCtx:
		if arg == "" {
			return errors.New("context name required for import")
		}
		data, err := io.ReadAll(deps.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		if err := mgr.Import(arg, data); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Context %q imported\n", arg)
		return nil

	case flags.mergeFrom != "":
		target := arg
		if target == "" {
			target = cctx.CurrentTarget
		}
		record, err := mgr.Merge(target, flags.mergeFrom, flags.mergeFull)
		if err != nil {
			return err
		}
		printMergeResult(stdout, record, flags.mergeFrom, target)
		return nil

	case flags.unmergeFrom != "":
		target := arg
		if target == "" {
			target = cctx.CurrentTarget
		}
		record, err := mgr.Unmerge(target, flags.unmergeFrom, flags.mergeFull)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Removed %d entr%s previously merged from %q in %q\n",
			len(record.KeysAdded), pluralY(len(record.KeysAdded)), flags.unmergeFrom, target)
		return nil

	case flags.mergeHistory:
		return runMergeHistory(mgr, arg, stdout)
	}

	switch {
	case arg == "-":
		name, err := mgr.SwitchToPrevious()
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Switched to context %q\n", name)
		return nil
	case arg != "":
		if err := mgr.Switch(arg); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Switched to context %q\n", arg)
		return nil
	case deps.Interactive:
		name, err := selectContext(deps, mgr, "Select context to activate")
		if err != nil {
			return err
		}
		if err := mgr.Switch(name); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Switched to context %q\n", name)
		return nil
	default:
		return runList(deps, mgr, flags.quiet, stdout)
	}
}

func runList(deps Deps, mgr *cctx.Manager, quiet bool, stdout io.Writer) error {
	current := mgr.CurrentContext()
	if quiet {
		if current != "" {
			fmt.Fprintln(stdout, current)
		}
		return nil
	}

	if mgr.Level() == paths.LevelUser {
		if cctx.HasProjectContexts(deps.Fs, deps.WorkDir) {
			fmt.Fprintln(stdout, "Project contexts available: run 'cctx --in-project' to manage")
		}
		if cctx.HasLocalContexts(deps.Fs, deps.WorkDir) {
			fmt.Fprintln(stdout, "Local contexts available: run 'cctx --local' to manage")
		}
	}

	names, err := mgr.ListContexts()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintf(stdout, "%s contexts: none found. Create one with: cctx -n <name>\n", mgr.Level())
		return nil
	}

	fmt.Fprintf(stdout, "%s contexts:\n", mgr.Level())
	for _, name := range names {
		if name == current {
			fmt.Fprintf(stdout, "* [%s] (current)\n", name)
		} else {
			fmt.Fprintf(stdout, "  [%s]\n", name)
		}
	}
	return nil
}

func runDelete(deps Deps, mgr *cctx.Manager, name string, stdout io.Writer) error {
	if name == "" {
		selected, err := selectContext(deps, mgr, "Select context to delete")
		if err != nil {
			return err
		}
		name = selected
	}
	if err := mgr.Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Context %q deleted\n", name)
	return nil
}

func runRename(deps Deps, mgr *cctx.Manager, old, new string, stdout io.Writer) error {
	if old == "" {
		selected, err := selectContext(deps, mgr, "Select context to rename")
		if err != nil {
			return err
		}
		old = selected
	}
	if new == "" {
		entered, err := deps.Prompter.Prompt("New name")
		if err != nil {
			return err
		}
		new = strings.TrimSpace(entered)
	}
	if err := mgr.Rename(old, new); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Context %q renamed to %q\n", old, new)
	return nil
}

func runCreate(deps Deps, mgr *cctx.Manager, name string, stdout io.Writer) error {
	if name == "" {
		entered, err := deps.Prompter.Prompt("New context name")
		if err != nil {
			return err
		}
		name = strings.TrimSpace(entered)
	}
	if err := mgr.Create(name); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Context %q created from current settings\n", name)
	return nil
}

func runPrune(deps Deps, mgr *cctx.Manager, flags *modeFlags, stdout io.Writer) error {
	duration, err := cctx.ParseRetentionInterval(flags.pruneBackups)
	if err != nil {
		return err
	}
	if !flags.force {
		confirm, err := deps.Prompter.Confirm(
			fmt.Sprintf("Delete backups older than %s? (y/N)", flags.pruneBackups), false)
		if err != nil {
			return err
		}
		if !confirm {
			fmt.Fprintln(stdout, "Prune cancelled.")
			return nil
		}
	}
	deleted, err := mgr.PruneBackups(duration)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Deleted %d backup(s).\n", deleted)
	return nil
}

func runMergeHistory(mgr *cctx.Manager, name string, stdout io.Writer) error {
	records, err := mgr.MergeHistory(name)
	if err != nil {
		return err
	}
	label := name
	if label == "" {
		label = cctx.CurrentTarget
	}
	if len(records) == 0 {
		fmt.Fprintf(stdout, "No merge history for %q\n", label)
		return nil
	}
	fmt.Fprintf(stdout, "Merge history for %q:\n", label)
	for _, record := range records {
		suffix := ""
		if record.FullSettings {
			suffix = " (full merge)"
		}
		fmt.Fprintf(stdout, "  %s  from %q: %d entr%s%s\n",
			record.Timestamp, record.SourceID, len(record.KeysAdded),
			pluralY(len(record.KeysAdded)), suffix)
	}
	return nil
}

func printMergeResult(stdout io.Writer, record merge.Record, source, target string) {
	fmt.Fprintf(stdout, "Merged %d entr%s from %q into %q\n",
		len(record.KeysAdded), pluralY(len(record.KeysAdded)), source, target)
	const maxShown = 5
	for i, key := range record.KeysAdded {
		if i == maxShown {
			fmt.Fprintf(stdout, "  ... and %d more\n", len(record.KeysAdded)-maxShown)
			break
		}
		fmt.Fprintf(stdout, "  + %s\n", key)
	}
}

func selectContext(deps Deps, mgr *cctx.Manager, label string) (string, error) {
	names, err := mgr.ListContexts()
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no contexts stored: %w", domain.ErrNotFound)
	}
	_, selected, err := deps.Prompter.Select(label, names, mgr.CurrentContext())
	if err != nil {
		return "", err
	}
	return selected, nil
}

func runEditor(deps Deps, path string) error {
	if deps.RunEditor != nil {
		return deps.RunEditor(path)
	}
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		editor = "vi"
	}
	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}
	return nil
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// ExitCode maps an error to the process exit code: 2 for missing contexts
// or files, 3 for validation failures, 1 for everything else (I/O).
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoPreviousContext),
		errors.Is(err, domain.ErrNoMergeRecord):
		return 2
	case errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrNameConflict),
		errors.Is(err, domain.ErrCannotDeleteActive),
		errors.Is(err, domain.ErrNoActiveConfig),
		errors.Is(err, domain.ErrNameEmpty),
		errors.Is(err, domain.ErrNameDash),
		errors.Is(err, domain.ErrNameDot),
		errors.Is(err, domain.ErrNamePathSep),
		errors.Is(err, domain.ErrNameNonPrintable),
		errors.Is(err, domain.ErrNameInvalidChars),
		errors.Is(err, domain.ErrNameReserved),
		errors.Is(err, domain.ErrNameNullByte):
		return 3
	default:
		return 1
	}
}
