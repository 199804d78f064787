package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rmax-ai/rigbind/pkg/config"
	"github.com/rmax-ai/rigbind/pkg/engine"
	"github.com/rmax-ai/rigbind/pkg/reports"
	"github.com/rmax-ai/rigbind/pkg/retarget"
)

var (
	Version   = "v1.0.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	exitOK            = 0
	exitError         = 1
	exitMissingRoot   = 2
	exitCountMismatch = 3
)

const usage = `Usage: rigbind <command> [flags] [args]

Commands:
  copy <from> <to>    bind every node under <to> to its counterpart under <from>
  plan <from> <to>    show the pairs copy would bind, without changing the scene
  reset <root>        remove every constraint of a kind under <root>
  describe <root>     print the root name and node count for <root>
  history             print the operation journal
  backups             list the stored backups of the scene
  restore <backup>    replace the scene with a stored backup
  archive             move old journal events into the backup dir
  version             print version information

Roots are slash-separated name paths ("Avatar/Armature/Hips") or "#<id>".
Run "rigbind <command> -h" for the flags of a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "copy":
		err = runCopy(ctx, rest, stdout)
	case "plan":
		err = runPlan(rest, stdout)
	case "reset":
		err = runReset(ctx, rest, stdout)
	case "describe":
		err = runDescribe(rest, stdout)
	case "history":
		err = runHistory(ctx, rest, stdout)
	case "backups":
		err = runBackups(ctx, rest, stdout)
	case "restore":
		err = runRestore(ctx, rest, stdout)
	case "archive":
		err = runArchive(ctx, rest, stdout)
	case "version":
		fmt.Fprintf(stdout, "rigbind %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		return exitOK
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n%s", cmd, usage)
		return exitError
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, retarget.ErrMissingRoot):
		return exitMissingRoot
	case errors.Is(err, retarget.ErrCountMismatch):
		return exitCountMismatch
	default:
		return exitError
	}
}

// session is the state shared by the commands once flags are parsed.
type session struct {
	cfg      config.Config
	backends *config.Backends
	editor   *engine.Editor
}

func openSession(ctx context.Context, cfg config.Config, needScene bool) (*session, error) {
	slog.SetDefault(cfg.NewLogger(os.Stderr))
	if needScene && cfg.ScenePath == "" {
		return nil, errors.New("no scene given: use -scene or RIGBIND_SCENE")
	}

	b, err := config.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, backends: b, editor: b.NewEditor(cfg, "cli")}, nil
}

func (s *session) close() {
	if s.cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(s.cfg.MetricsTextfile, prometheus.DefaultGatherer); err != nil {
			slog.Error("Failed to write metrics textfile", "error", err, "path", s.cfg.MetricsTextfile)
		}
	}
	if err := s.backends.Close(); err != nil {
		slog.Error("Failed to close backends", "error", err)
	}
}

func runCopy(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("copy", flag.ContinueOnError)
	flagKind := fs.String("kind", "rotation", "constraint kind: rotation|parent|position")
	flagDryRun := fs.Bool("dry-run", false, "print the plan instead of binding")
	flagFormat := fs.String("format", "csv", "plan output format with -dry-run: csv|json")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("copy takes <from> <to>")
	}
	kind, err := retarget.ParseKind(*flagKind)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	req := engine.CopyRequest{Scene: cfg.ScenePath, From: fs.Arg(0), To: fs.Arg(1), Kind: kind}
	if *flagDryRun {
		return printPlan(s.editor, req, *flagFormat, stdout)
	}

	res, err := s.editor.Copy(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Copied %s constraints: %d pairs, %d newly bound\n", kind, res.Pairs, res.Bound)
	return nil
}

func runPlan(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	flagKind := fs.String("kind", "rotation", "constraint kind: rotation|parent|position")
	flagFormat := fs.String("format", "csv", "output format: csv|json")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("plan takes <from> <to>")
	}
	kind, err := retarget.ParseKind(*flagKind)
	if err != nil {
		return err
	}

	s, err := openSession(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	return printPlan(s.editor, engine.CopyRequest{Scene: cfg.ScenePath, From: fs.Arg(0), To: fs.Arg(1), Kind: kind}, *flagFormat, stdout)
}

func printPlan(editor *engine.Editor, req engine.CopyRequest, format string, stdout io.Writer) error {
	f, err := reports.ParseFormat(format)
	if err != nil {
		return err
	}
	entries, err := editor.Plan(req)
	if err != nil {
		return err
	}
	r, err := reports.WritePlan(entries, f)
	if err != nil {
		return err
	}
	_, err = io.Copy(stdout, r)
	return err
}

func runReset(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	flagKind := fs.String("kind", "rotation", "constraint kind: rotation|parent|position")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("reset takes <root>")
	}
	kind, err := retarget.ParseKind(*flagKind)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.editor.Reset(ctx, engine.ResetRequest{Scene: cfg.ScenePath, Root: fs.Arg(0), Kind: kind})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Removed %d %s constraints\n", res.Removed, kind)
	return nil
}

func runDescribe(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	flagFormat := fs.String("format", "text", "output format: text|csv|json")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return errors.New("describe takes at most one <root>")
	}
	text := strings.EqualFold(strings.TrimSpace(*flagFormat), "text")
	var format reports.ReportFormat
	if !text {
		if format, err = reports.ParseFormat(*flagFormat); err != nil {
			return err
		}
	}

	s, err := openSession(context.Background(), cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	d, err := s.editor.Describe(cfg.ScenePath, fs.Arg(0))
	if err != nil {
		return err
	}
	if text {
		fmt.Fprintf(stdout, "Root: %s\nNodes: %d\n", d.RootName, d.NodeCount)
		return nil
	}
	r, err := reports.WriteDescription(d, format)
	if err != nil {
		return err
	}
	_, err = io.Copy(stdout, r)
	return err
}

func runHistory(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	flagType := fs.String("type", string(reports.ReportTypeHistory), "report type: history|failures")
	flagFormat := fs.String("format", "csv", "output format: csv|json")
	flagLimit := fs.Int("limit", 50, "maximum number of events, 0 for all")
	flagSince := fs.Duration("since", 0, "only events newer than this, e.g. 24h")
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	format, err := reports.ParseFormat(*flagFormat)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer s.close()

	gen, err := reports.NewReportGenerator(reports.ReportType(*flagType), s.backends.Journal)
	if err != nil {
		return err
	}
	params := reports.ReportParams{
		Scene:  cfg.ScenePath,
		Limit:  *flagLimit,
		Format: format,
	}
	if *flagSince > 0 {
		params.Start = time.Now().Add(-*flagSince)
	}
	r, err := gen.Generate(ctx, params)
	if err != nil {
		return err
	}
	_, err = io.Copy(stdout, r)
	return err
}

func runBackups(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("backups", flag.ContinueOnError)
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	keys, err := s.editor.Backups(ctx, cfg.ScenePath)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(stdout, k)
	}
	return nil
}

func runRestore(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("restore takes <backup>")
	}

	s, err := openSession(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.editor.Restore(ctx, cfg.ScenePath, fs.Arg(0)); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Restored %s from %s\n", cfg.ScenePath, fs.Arg(0))
	return nil
}

func runArchive(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer s.close()

	archiver, err := s.backends.NewArchiver(cfg)
	if err != nil {
		return err
	}
	n, err := archiver.ArchiveAll(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Archived %d events older than %s\n", n, cfg.ArchiveAfter)
	return nil
}
