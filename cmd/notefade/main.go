package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/quick"

	"notefade/internal/api"
	"notefade/internal/autosave"
	"notefade/internal/config"
	"notefade/internal/logging"
	"notefade/internal/note"
	"notefade/internal/session"
)

const usage = `usage: notefade [-api <url>] [-v] <command> [args]

commands:
  create [-duration 24] [-mode full] [-markdown] [file|-]
  show <code>
  tasks <code>
  toggle <code> <index>...
  edit <code> <file|->
`

type app struct {
	client   *api.Client
	cfg      config.Config
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	color    bool
	debounce time.Duration
}

func main() {
	os.Exit(runCLI(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func runCLI(args []string, in io.Reader, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("notefade", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() { _, _ = fmt.Fprint(errOut, usage) }
	apiURL := fs.String("api", "", "note service base URL (defaults to $NOTEFADE_API_URL)")
	verbose := fs.Bool("v", false, "log requests to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	closeLog, _ := logging.Setup(errOut, logging.Options{Level: level, Pretty: true})
	defer closeLog()

	cfg, err := config.FromEnvironment()
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	client, err := api.New(cfg.APIURL, api.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}
	a := &app{
		client:   client,
		cfg:      cfg,
		in:       in,
		out:      out,
		errOut:   errOut,
		color:    logging.IsTerminal(out),
		debounce: cfg.AutosaveDebounce,
	}

	ctx := context.Background()
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "create":
		err = a.create(ctx, rest)
	case "show":
		err = a.show(ctx, rest)
	case "tasks":
		err = a.tasks(ctx, rest)
	case "toggle":
		err = a.toggle(ctx, rest)
	case "edit":
		err = a.edit(ctx, rest)
	default:
		_, _ = fmt.Fprintf(errOut, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	var uerr usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &uerr):
		_, _ = fmt.Fprintf(errOut, "usage: notefade %s\n", uerr)
		return 2
	default:
		_, _ = fmt.Fprintf(errOut, "ERROR: %s\n", describe(err))
		return 1
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

// describe adds the category message to backend failures.
func describe(err error) string {
	var (
		netErr   *api.NetworkError
		validErr *api.ValidationError
		nfErr    *api.NotFoundError
		srvErr   *api.ServerError
	)
	if errors.As(err, &netErr) || errors.As(err, &validErr) || errors.As(err, &nfErr) || errors.As(err, &srvErr) {
		return fmt.Sprintf("%s (%v)", api.UserMessage(err), err)
	}
	return err.Error()
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	hours := fs.Int("duration", session.DefaultDurationHours, "lifetime in hours (1, 3, 6, 12, 24, 72, 168 or 720)")
	mode := fs.String("mode", string(note.ModeFull), "edit mode: full, checkbox-only or read-only")
	markdown := fs.Bool("markdown", false, "treat the input as Markdown")
	if err := fs.Parse(args); err != nil {
		return usageError("create [-duration 24] [-mode full] [-markdown] [file|-]")
	}
	if fs.NArg() > 1 {
		return usageError("create [-duration 24] [-mode full] [-markdown] [file|-]")
	}
	content, err := a.readInput(fs.Arg(0))
	if err != nil {
		return err
	}
	if *markdown {
		if content, err = note.FromMarkdown(content); err != nil {
			return err
		}
	}
	created, err := session.Create(ctx, a.client, session.Draft{
		Content:       content,
		DurationHours: *hours,
		EditMode:      note.EditMode(*mode),
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "code:    %s\n", created.URLCode)
	_, _ = fmt.Fprintf(a.out, "link:    %s\n", session.ShareURL(a.cfg.PublicURL, created))
	if !created.ExpiresAt.IsZero() {
		_, _ = fmt.Fprintf(a.out, "expires: %s\n", note.FormatDateTime(created.ExpiresAt))
	}
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("show <code>")
	}
	n, err := a.client.GetNote(ctx, args[0])
	if err != nil {
		return err
	}
	a.header(n)
	text, err := note.Text(n.Content, note.TextOptions{Code: a.highlight})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(a.out, text)
	return nil
}

func (a *app) header(n note.Note) {
	now := time.Now()
	state := note.ResolveView(n, false)
	line := fmt.Sprintf("%s · %s", n.URLCode, state.Mode.Label())
	switch {
	case state.ShowExpiredBadge:
		line += " · expired"
	case !n.ExpiresAt.IsZero():
		line += " · expires " + note.FormatRelative(n.ExpiresAt, now)
	}
	if n.Edited() {
		line += " · edited " + note.FormatRelative(n.UpdatedAt, now)
	}
	_, _ = fmt.Fprintf(a.out, "%s\n\n", line)
}

// highlight colours code blocks when writing to a terminal.
func (a *app) highlight(lang, code string) string {
	if !a.color {
		return code
	}
	var b strings.Builder
	if err := quick.Highlight(&b, code, lang, "terminal256", "monokai"); err != nil {
		return code
	}
	return b.String()
}

func (a *app) tasks(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("tasks <code>")
	}
	n, err := a.client.GetNote(ctx, args[0])
	if err != nil {
		return err
	}
	return a.printTasks(n.Content)
}

func (a *app) printTasks(content string) error {
	tasks, err := note.Tasks(content)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(a.out, "no tasks")
		return nil
	}
	for _, task := range tasks {
		mark := " "
		if task.Checked {
			mark = "x"
		}
		_, _ = fmt.Fprintf(a.out, "%3d %s[%s] %s\n", task.Index, strings.Repeat("  ", task.Depth), mark, task.Text)
	}
	return nil
}

// toggle flips the given checkboxes through one view session. The changes
// are debounced into a single save that happens when the session closes.
func (a *app) toggle(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageError("toggle <code> <index>...")
	}
	indexes := make([]int, 0, len(args)-1)
	for _, raw := range args[1:] {
		i, err := strconv.Atoi(raw)
		if err != nil || i < 0 {
			return usageError("toggle <code> <index>... (indexes are numbers from `notefade tasks`)")
		}
		indexes = append(indexes, i)
	}
	v, err := session.Open(ctx, a.client, args[0], session.WithAutosave(autosave.WithDebounce(a.debounce)))
	if err != nil {
		return err
	}
	var toggleErr error
	for _, i := range indexes {
		if _, err := v.ToggleTask(i); err != nil {
			toggleErr = err
			break
		}
	}
	closeCtx, cancel := context.WithTimeout(ctx, a.cfg.HTTPTimeout)
	defer cancel()
	if err := v.Close(closeCtx); err != nil {
		return errors.Join(toggleErr, err)
	}
	if toggleErr != nil {
		return toggleErr
	}
	return a.printTasks(v.Note().Content)
}

func (a *app) edit(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("edit <code> <file|->")
	}
	content, err := a.readInput(args[1])
	if err != nil {
		return err
	}
	v, err := session.Open(ctx, a.client, args[0])
	if err != nil {
		return err
	}
	defer func() { _ = v.Close(ctx) }()
	if err := v.EnterFullEdit(); err != nil {
		return fmt.Errorf("%s is %s: %w", args[0], strings.ToLower(v.State().Mode.Label()), err)
	}
	if err := v.SetDraft(content); err != nil {
		return err
	}
	if err := v.Save(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "saved %s\n", v.Code())
	return nil
}

func (a *app) readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(a.in)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
