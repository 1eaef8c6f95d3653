package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spaceisawaste/groupme-backup/internal/app"
	"github.com/spaceisawaste/groupme-backup/internal/config"
	"github.com/spaceisawaste/groupme-backup/internal/groupme"
	"github.com/spaceisawaste/groupme-backup/internal/lock"
	"github.com/spaceisawaste/groupme-backup/internal/store"
	intsync "github.com/spaceisawaste/groupme-backup/internal/sync"
	"go.uber.org/fx"
)

const version = "0.1.0"

type groupIDs []string

func (g *groupIDs) String() string { return strings.Join(*g, ",") }

func (g *groupIDs) Set(v string) error {
	*g = append(*g, v)
	return nil
}

func main() {
	var groups groupIDs
	configFlag := flag.String("config", "", "config file path (default: ~/.groupme-backup/config.toml)")
	verboseFlag := flag.Bool("verbose", false, "log debug detail to the console")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	remoteFlag := flag.Bool("remote", false, "groups: list from the API instead of the local archive")
	allFlag := flag.Bool("all", false, "backup: back up every group the token can see")
	forceFlag := flag.Bool("force", false, "backup: discard sync state and re-fetch full history")
	concurrencyFlag := flag.Int("concurrency", 0, "backup: parallel group syncs (overrides config)")
	flag.Var(&groups, "group", "group id (repeatable)")
	sinceFlag := flag.String("since", "", "stats: start date, YYYY-MM-DD")
	untilFlag := flag.String("until", "", "stats: end date, YYYY-MM-DD")
	limitFlag := flag.Int("limit", 10, "stats: number of rows")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "version" {
		fmt.Printf("groupme-backup %s\n", version)
		return
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt := start(configPath, *verboseFlag)
	defer rt.stop()

	switch args[0] {
	case "groups":
		cmdGroups(ctx, rt, *remoteFlag, *jsonFlag)
	case "backup":
		cmdBackup(ctx, rt, groups, *allFlag, *forceFlag, *concurrencyFlag)
	case "stats":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: groupme-backup stats <popular|active|liked|summary|heatmap> --group <id>")
			rt.exit(1)
		}
		cmdStats(rt, args[1], groups, *sinceFlag, *untilFlag, *limitFlag, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		rt.exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: groupme-backup [flags] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  groups           List archived groups (--remote lists from the API)")
	fmt.Fprintln(os.Stderr, "  backup           Back up groups (--group <id>... or --all)")
	fmt.Fprintln(os.Stderr, "  stats <report>   Analytics: popular, active, liked, summary, heatmap")
	fmt.Fprintln(os.Stderr, "  version          Print version")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "flags:")
	flag.PrintDefaults()
}

// runtime bundles the fx-provided components the commands work with.
type runtime struct {
	cfg    *config.Config
	db     *store.DB
	client *groupme.Client
	engine *intsync.Engine
	app    *fx.App
}

func start(configPath string, verbose bool) *runtime {
	rt := &runtime{}
	rt.app = fx.New(
		app.Module(app.Params{
			ConfigPath: configPath,
			Verbose:    verbose,
			Reporter:   progressPrinter{},
		}),
		fx.Populate(&rt.cfg, &rt.db, &rt.client, &rt.engine),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.app.Start(startCtx); err != nil {
		var held *lock.HeldError
		if errors.As(err, &held) {
			fmt.Fprintf(os.Stderr, "error: data directory is in use by pid %d\n", held.PID)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
	return rt
}

func (rt *runtime) stop() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = rt.app.Stop(stopCtx)
}

// exit stops the app before exiting so the lock is released.
func (rt *runtime) exit(code int) {
	rt.stop()
	os.Exit(code)
}

// progressPrinter streams per-page sync progress to stdout.
type progressPrinter struct{}

func (progressPrinter) SyncStarted(groupID, name, syncType string) {
	fmt.Printf("%s (%s): starting %s sync\n", name, groupID, syncType)
}

func (progressPrinter) PageSynced(groupID string, pageSize, totalWritten int) {
	fmt.Printf("  %s: +%d messages (%d this run)\n", groupID, pageSize, totalWritten)
}

func cmdGroups(ctx context.Context, rt *runtime, remote, jsonOut bool) {
	if remote {
		groups, err := rt.client.ListGroups(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.exit(1)
		}
		// Listing remotely also refreshes stored metadata.
		for _, g := range groups {
			if err := rt.db.UpsertGroup(&store.Group{
				ID:            g.ID,
				Name:          g.Name,
				Description:   g.Description,
				ImageURL:      g.ImageURL,
				CreatorUserID: g.CreatorUserID,
				Type:          g.Type,
				ShareURL:      g.ShareURL,
				MemberCount:   len(g.Members),
				CreatedAt:     g.CreatedAt,
				UpdatedAt:     g.UpdatedAt,
			}); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				rt.exit(1)
			}
		}
		if jsonOut {
			outputJSON(groups)
			return
		}
		for _, g := range groups {
			fmt.Printf("%-16s %-30s %d members\n", g.ID, g.Name, len(g.Members))
		}
		return
	}

	groups, err := rt.db.ListGroups()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		rt.exit(1)
	}
	if jsonOut {
		outputJSON(groups)
		return
	}
	if len(groups) == 0 {
		fmt.Println("No groups archived yet. Run `groupme-backup backup --all` first.")
		return
	}
	for _, g := range groups {
		n, err := rt.db.CountMessages(g.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.exit(1)
		}
		synced := "never"
		if g.LastSyncedAt > 0 {
			synced = time.Unix(g.LastSyncedAt, 0).Format("2006-01-02 15:04")
		}
		fmt.Printf("%-16s %-30s %6d messages  last synced %s\n", g.ID, g.Name, n, synced)
	}
}

func cmdBackup(ctx context.Context, rt *runtime, groups groupIDs, all, force bool, concurrency int) {
	ids := []string(groups)
	if all {
		remote, err := rt.client.ListGroups(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.exit(1)
		}
		// backup_group_ids, when configured, restricts --all.
		allowed := make(map[string]bool, len(rt.cfg.BackupGroupIDs))
		for _, id := range rt.cfg.BackupGroupIDs {
			allowed[id] = true
		}
		ids = ids[:0]
		for _, g := range remote {
			if len(allowed) > 0 && !allowed[g.ID] {
				continue
			}
			ids = append(ids, g.ID)
		}
	}
	if len(ids) == 0 {
		ids = rt.cfg.BackupGroupIDs
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "error: no groups selected; pass --group, --all, or set backup_group_ids in config")
		rt.exit(1)
	}

	if force {
		for _, id := range ids {
			if err := rt.db.ClearWatermark(id); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				rt.exit(1)
			}
		}
	}

	if concurrency <= 0 {
		concurrency = rt.cfg.Concurrency
	}

	results := rt.engine.SyncAll(ctx, ids, concurrency)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: sync failed: %v\n", r.GroupID, r.Err)
			continue
		}
		fmt.Printf("%s (%s): %s sync complete, %d fetched, %d written\n",
			r.GroupName, r.GroupID, r.Type, r.Fetched, r.Written)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d groups failed\n", failed, len(results))
		rt.exit(1)
	}
}

func cmdStats(rt *runtime, report string, groups groupIDs, since, until string, limit int, jsonOut bool) {
	if len(groups) != 1 {
		fmt.Fprintln(os.Stderr, "error: stats requires exactly one --group")
		rt.exit(1)
	}
	groupID := groups[0]

	tr, err := parseRange(since, until)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		rt.exit(1)
	}

	switch report {
	case "popular":
		msgs, err := rt.db.MostPopularMessages(groupID, tr, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.exit(1)
		}
		if jsonOut {
			outputJSON(msgs)
			return
		}
		for i, m := range msgs {
			fmt.Printf("%2d. %3d likes  %-20s %s  %s\n",
				i+1, m.LikeCount, m.SenderName,
				time.Unix(m.CreatedAt, 0).Format("2006-01-02"), truncate(m.Text, 60))
		}
	case "active":
		users, err := rt.db.MostActiveUsers(groupID, tr, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.exit(1)
		}
		printUserCounts(users, "messages", jsonOut)
	case "liked":
		users, err := rt.db.MostLikedUsers(groupID, tr, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.exit(1)
		}
		printUserCounts(users, "likes received", jsonOut)
	case "summary":
		s, err := rt.db.GroupStatistics(groupID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.exit(1)
		}
		if jsonOut {
			outputJSON(s)
			return
		}
		fmt.Printf("Messages:       %d\n", s.TotalMessages)
		fmt.Printf("Unique senders: %d\n", s.UniqueSenders)
		fmt.Printf("Likes:          %d\n", s.TotalLikes)
		if s.TotalMessages > 0 {
			fmt.Printf("First message:  %s\n", time.Unix(s.FirstMessageAt, 0).Format("2006-01-02 15:04"))
			fmt.Printf("Last message:   %s\n", time.Unix(s.LastMessageAt, 0).Format("2006-01-02 15:04"))
		}
	case "heatmap":
		cells, err := rt.db.HourlyActivityHeatmap(groupID, tr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.exit(1)
		}
		if jsonOut {
			outputJSON(cells)
			return
		}
		printHeatmap(cells)
	default:
		fmt.Fprintf(os.Stderr, "unknown stats report: %s\n", report)
		rt.exit(1)
	}
}

func parseRange(since, until string) (store.TimeRange, error) {
	var tr store.TimeRange
	if since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return tr, fmt.Errorf("invalid --since %q: expected YYYY-MM-DD", since)
		}
		tr.Since = t.Unix()
	}
	if until != "" {
		t, err := time.Parse("2006-01-02", until)
		if err != nil {
			return tr, fmt.Errorf("invalid --until %q: expected YYYY-MM-DD", until)
		}
		// Inclusive through the end of the day.
		tr.Until = t.Add(24*time.Hour - time.Second).Unix()
	}
	return tr, nil
}

func printUserCounts(users []store.UserCount, unit string, jsonOut bool) {
	if jsonOut {
		outputJSON(users)
		return
	}
	for i, u := range users {
		fmt.Printf("%2d. %-24s %d %s\n", i+1, u.Name, u.Count, unit)
	}
}

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func printHeatmap(cells []store.HeatmapCell) {
	var grid [7][24]int
	max := 0
	for _, c := range cells {
		grid[c.DayOfWeek][c.Hour] = c.Count
		if c.Count > max {
			max = c.Count
		}
	}
	if max == 0 {
		fmt.Println("No messages in range.")
		return
	}

	shades := []rune{' ', '░', '▒', '▓', '█'}
	fmt.Println("    0         6         12        18      23")
	for day := 0; day < 7; day++ {
		var b strings.Builder
		for hour := 0; hour < 24; hour++ {
			idx := grid[day][hour] * (len(shades) - 1) / max
			b.WriteRune(shades[idx])
		}
		fmt.Printf("%s %s\n", dayNames[day], b.String())
	}
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
