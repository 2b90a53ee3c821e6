// Command sleepctl edits the sleep-mode configuration and asks sleepd to reload it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	u "github.com/gofrs/uuid/v5"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/and161185/sleep-keeper/internal/convert"
	"github.com/and161185/sleep-keeper/internal/enforce"
	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
	"github.com/and161185/sleep-keeper/internal/service"
	"github.com/and161185/sleep-keeper/internal/storage"
	"github.com/and161185/sleep-keeper/internal/window"
)

// ---- utils ----

var stdout io.Writer = os.Stdout

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// splitList parses a comma separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseDays parses "1,2,3" into weekday numbers, 0 = Sunday.
func parseDays(s string) ([]int, error) {
	var days []int
	for _, part := range splitList(s) {
		d, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("day %q: %w", part, errs.ErrInvalidWeekday)
		}
		days = append(days, d)
	}
	if _, err := model.WeekdaysOf(days...); err != nil {
		return nil, err
	}
	return days, nil
}

// ---- daemon reload ----

type killFunc func(pid int, sig syscall.Signal) error

// reloadDaemon sends SIGHUP to the sleepd recorded in pidPath.
// A missing pid file is not an error: the change is picked up at the next start.
func reloadDaemon(fsys afero.Fs, pidPath string, kill killFunc) (bool, error) {
	pid, err := storage.ReadPID(fsys, pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := kill(pid, syscall.SIGHUP); err != nil {
		return false, fmt.Errorf("signal sleepd (pid %d): %w", pid, err)
	}
	return true, nil
}

// ---- status ----

type statusView struct {
	Enabled        bool            `json:"enabled"`
	Start          string          `json:"start"`
	End            string          `json:"end"`
	Days           []int           `json:"days"`
	BlockSet       model.BlockSet  `json:"block_set"`
	SelectedTrack  *model.TrackRef `json:"selected_track,omitempty"`
	SelectedPlanID string          `json:"selected_plan_id,omitempty"`
	InsideWindow   bool            `json:"inside_window"`
	Duration       string          `json:"duration"`
	NextStart      *time.Time      `json:"next_start,omitempty"`
	Defaulted      []string        `json:"defaulted,omitempty"`
	// Applied is what sleepd last published to the block file.
	Applied        *model.BlockSet `json:"applied,omitempty"`
}

func buildStatus(st model.Settings, bad []string, now time.Time) statusView {
	w := st.Window()
	v := statusView{
		Enabled:       st.Enabled,
		Start:         st.Start.String(),
		End:           st.End.String(),
		Days:          st.Days.Days(),
		BlockSet:      st.BlockSet,
		SelectedTrack: st.SelectedTrack,
		InsideWindow:  window.Contains(now, w),
		Duration:      window.Duration(w).String(),
		Defaulted:     bad,
	}
	if st.SelectedPlanID != u.Nil {
		v.SelectedPlanID = st.SelectedPlanID.String()
	}
	if next, ok := window.NextStartWithin(now, w); ok {
		v.NextStart = &next
	}
	return v
}

// ---- commands ----

type app struct {
	editor *service.ConfigEditor
	plans  service.PlanService
	store  *storage.Store
	blocks *enforce.FileEnforcer // nil without a block file
	now    func() time.Time
}

// cmdSettings runs the commands that edit the Config Store. It reports whether
// anything was saved.
func cmdSettings(ctx context.Context, a *app, cmd string, args []string) (bool, error) {
	switch cmd {
	case "status":
		st, bad, err := a.editor.Load(ctx)
		if err != nil {
			return false, err
		}
		v := buildStatus(st, bad, a.now())
		if a.blocks != nil {
			bs, ok, err := a.blocks.Current()
			if err != nil {
				return false, err
			}
			if ok {
				v.Applied = &bs
			}
		}
		printJSON(v)
		return false, nil

	case "enable", "disable":
		enabled := cmd == "enable"
		_, err := a.editor.Update(ctx, func(st *model.Settings) error {
			st.Enabled = enabled
			return nil
		})
		return err == nil, err

	case "start", "end":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: %s HH:MM", cmd)
		}
		t, err := model.ParseTimeOfDay(args[0])
		if err != nil {
			return false, err
		}
		_, err = a.editor.Update(ctx, func(st *model.Settings) error {
			if cmd == "start" {
				st.Start = t
			} else {
				st.End = t
			}
			return nil
		})
		return err == nil, err

	case "day":
		if len(args) != 1 {
			return false, errors.New("usage: day N (0 = Sunday)")
		}
		d, err := strconv.Atoi(args[0])
		if err != nil || d < 0 || d > 6 {
			return false, fmt.Errorf("day %q: %w", args[0], errs.ErrInvalidWeekday)
		}
		st, err := a.editor.Update(ctx, func(st *model.Settings) error {
			st.Days = st.Days.Toggle(time.Weekday(d))
			return nil
		})
		if err != nil {
			return false, err
		}
		printJSON(st.Days.Days())
		return true, nil

	case "block":
		fs := flag.NewFlagSet("block", flag.ContinueOnError)
		apps := fs.String("apps", "", "comma separated application tokens")
		domains := fs.String("domains", "", "comma separated web domain tokens")
		if err := fs.Parse(args); err != nil {
			return false, err
		}
		bs := model.BlockSet{Applications: splitList(*apps), WebDomains: splitList(*domains)}
		_, err := a.editor.Update(ctx, func(st *model.Settings) error {
			st.BlockSet = bs
			return nil
		})
		return err == nil, err

	case "track":
		fs := flag.NewFlagSet("track", flag.ContinueOnError)
		id := fs.Int("id", 0, "catalog track id")
		title := fs.String("title", "", "track title")
		artist := fs.String("artist", "", "track artist")
		clearTrack := fs.Bool("clear", false, "remove the selected track")
		if err := fs.Parse(args); err != nil {
			return false, err
		}
		var track *model.TrackRef
		if !*clearTrack {
			if *title == "" {
				return false, fmt.Errorf("%w: need -title or -clear", errs.ErrValidation)
			}
			track = &model.TrackRef{ID: *id, Title: *title, Artist: *artist}
		}
		_, err := a.editor.Update(ctx, func(st *model.Settings) error {
			st.SelectedTrack = track
			return nil
		})
		return err == nil, err
	}
	return false, fmt.Errorf("unknown command %q", cmd)
}

// cmdPlan runs "plan <sub>". It reports whether the Config Store changed.
func cmdPlan(ctx context.Context, a *app, args []string) (bool, error) {
	if len(args) < 1 {
		return false, errors.New("usage: plan list|add|activate|rm")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		plans, err := a.plans.List(ctx)
		if err != nil {
			return false, err
		}
		recs := make([]convert.PlanRecord, len(plans))
		for i := range plans {
			recs[i] = convert.ToRecord(plans[i])
		}
		printJSON(recs)
		return false, nil

	case "add":
		fs := flag.NewFlagSet("plan add", flag.ContinueOnError)
		start := fs.String("start", "", "start HH:MM")
		end := fs.String("end", "", "end HH:MM")
		days := fs.String("days", "", "comma separated weekdays, 0 = Sunday (default Mon..Fri)")
		apps := fs.String("apps", "", "comma separated application tokens")
		if err := fs.Parse(rest); err != nil {
			return false, err
		}
		s, err := model.ParseTimeOfDay(*start)
		if err != nil {
			return false, err
		}
		e, err := model.ParseTimeOfDay(*end)
		if err != nil {
			return false, err
		}
		d, err := parseDays(*days)
		if err != nil {
			return false, err
		}
		p, err := a.plans.Create(ctx, s, e, d, splitList(*apps))
		if err != nil {
			return false, err
		}
		printJSON(convert.ToRecord(*p))
		return false, nil

	case "activate", "rm":
		fs := flag.NewFlagSet("plan "+sub, flag.ContinueOnError)
		idStr := fs.String("id", "", "plan uuid")
		if err := fs.Parse(rest); err != nil {
			return false, err
		}
		id, err := u.FromString(*idStr)
		if err != nil {
			return false, fmt.Errorf("%w: plan id %q", errs.ErrValidation, *idStr)
		}
		if sub == "rm" {
			return false, a.plans.Delete(ctx, id)
		}
		if _, err := a.plans.Activate(ctx, id); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, fmt.Errorf("unknown plan command %q", sub)
}

// cmdExport writes all plans as a JSON array to file, or stdout when file is empty.
func cmdExport(ctx context.Context, a *app, file string) error {
	plans, err := a.plans.List(ctx)
	if err != nil {
		return err
	}
	b, err := convert.EncodePlans(plans)
	if err != nil {
		return err
	}
	if file == "" {
		_, err = fmt.Fprintln(stdout, string(b))
		return err
	}
	return os.WriteFile(file, b, 0o600)
}

// cmdImport stores every plan of a JSON array; existing ids are skipped.
func cmdImport(ctx context.Context, a *app, data []byte) (imported, skipped int, err error) {
	plans, err := convert.DecodePlansAt(data, a.now())
	if err != nil {
		return 0, 0, err
	}
	for i := range plans {
		err := a.store.Plans.Create(ctx, &plans[i])
		switch {
		case errors.Is(err, errs.ErrAlreadyExists):
			skipped++
		case err != nil:
			return imported, skipped, fmt.Errorf("plan %s: %w", plans[i].ID, err)
		default:
			imported++
		}
	}
	return imported, skipped, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `sleepctl
Usage:
  sleepctl [-driver sqlite|postgres] [-db file | -dsn DSN] [-pid-file file] [-block-file file] <cmd> [args]

Commands:
  version
  status
  enable | disable
  start HH:MM | end HH:MM
  day N                                      (toggle weekday, 0 = Sunday)
  block -apps a,b -domains x,y
  track -id N -title T [-artist A] | track -clear
  plan list
  plan add -start HH:MM -end HH:MM [-days 1,2] [-apps a,b]
  plan activate -id <uuid>
  plan rm -id <uuid>
  export [-file out.json]
  import -file in.json                       ("-" reads stdin)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main opens the store, runs one command and signals sleepd when the configuration changed.
func main() {
	// global flags
	driver := flag.String("driver", storage.DriverSQLite, "store driver: sqlite|postgres")
	dbPath := flag.String("db", filepath.Join(storage.DefaultDir(), "sleep.db"), "sqlite database path")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (driver=postgres)")
	pidFile := flag.String("pid-file", storage.DefaultPIDFile(), "sleepd pid file")
	blockFile := flag.String("block-file", filepath.Join(storage.DefaultDir(), "blocked.json"), "block file published by sleepd (empty skips it in status)")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("sleepctl %s (%s)\n", version, buildDate)
		return
	}

	logger := zap.NewNop()
	if *verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := storage.Open(ctx, storage.Config{Driver: *driver, Path: *dbPath, DSN: *dsn})
	if err != nil {
		fail(err)
	}
	defer func() { _ = st.Close() }()

	editor := service.NewConfigEditor(st.Settings)
	a := &app{
		editor: editor,
		plans:  service.NewPlanService(st.Plans, editor, logger),
		store:  st,
		now:    time.Now,
	}
	if *blockFile != "" {
		a.blocks = enforce.NewFileEnforcer(afero.NewOsFs(), *blockFile, logger)
	}

	var changed bool
	switch cmd {
	case "plan":
		changed, err = cmdPlan(ctx, a, args)

	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		file := fs.String("file", "", "output file (default stdout)")
		_ = fs.Parse(args)
		err = cmdExport(ctx, a, *file)

	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		file := fs.String("file", "-", "input file")
		_ = fs.Parse(args)
		var data []byte
		if data, err = readAll(*file); err == nil {
			var imported, skipped int
			imported, skipped, err = cmdImport(ctx, a, data)
			fmt.Printf("imported=%d skipped=%d\n", imported, skipped)
		}

	default:
		changed, err = cmdSettings(ctx, a, cmd, args)
	}
	if err != nil {
		fail(err)
	}

	if changed {
		ok, err := reloadDaemon(afero.NewOsFs(), *pidFile, syscall.Kill)
		switch {
		case err != nil:
			fmt.Fprintln(os.Stderr, "saved; reload failed:", err)
		case !ok:
			fmt.Fprintln(os.Stderr, "saved; sleepd is not running")
		}
	}
}
