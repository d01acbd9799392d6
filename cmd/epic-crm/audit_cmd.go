// ABOUTME: Audit log viewer, newest entries first
// ABOUTME: Reading the log needs user:read since it exposes who did what

package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/epicevents/crm/internal/policy"
	"github.com/epicevents/crm/internal/store"
)

func (a *app) cmdAudit(ctx context.Context, args []string) error {
	parsed, err := parseArgs(args, []string{"limit", "action", "actor", "principal", "since", "target"}, "failures")
	if err != nil {
		return err
	}
	filter, err := a.auditFilter(parsed)
	if err != nil {
		return err
	}

	list := policy.RequirePermission(a.engine, "user:read", func(ctx context.Context, _ policy.Token) ([]store.AuditEntry, error) {
		return a.db.ListAuditLog(ctx, filter)
	})

	entries, err := guarded(ctx, a, list)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(a.out)
	cyan.Fprintln(a.out, "  Audit Log")
	cyan.Fprintln(a.out, "  ---------")

	if len(entries) == 0 {
		fmt.Fprintln(a.out, "  (no entries)")
		fmt.Fprintln(a.out)
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tACTOR\tACTION\tTARGET\tDETAIL")
	fmt.Fprintln(w, "  ----\t-----\t------\t------\t------")
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("Jan 02 15:04:05"),
			formatAuditID(e.ActorPrincipalID),
			e.Action,
			string(e.TargetType)+"/"+formatAuditID(e.TargetID),
			truncate(formatDetail(e.Detail), 40),
		)
	}
	w.Flush()
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) auditFilter(parsed *parsedArgs) (store.AuditFilter, error) {
	var f store.AuditFilter

	if v, ok := parsed.get("limit"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid --limit %q", v)
		}
		f.Limit = n
	}
	if v, ok := parsed.get("action"); ok {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				f.Actions = append(f.Actions, store.AuditAction(name))
			}
		}
	}
	f.FailuresOnly = parsed.bool("failures")
	if v, ok := parsed.get("actor"); ok {
		id, err := parseID(v)
		if err != nil {
			return f, fmt.Errorf("--actor: %w", err)
		}
		f.ActorPrincipalID = &id
	}
	if v, ok := parsed.get("principal"); ok {
		id, err := parseID(v)
		if err != nil {
			return f, fmt.Errorf("--principal: %w", err)
		}
		f.Involving = &id
	}
	if v, ok := parsed.get("since"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return f, fmt.Errorf("invalid --since %q (use a duration such as 24h)", v)
		}
		since := a.now().Add(-d)
		f.Since = &since
	}
	if v, ok := parsed.get("target"); ok {
		rawType, rawID, found := strings.Cut(v, "/")
		target, err := store.ParseAuditTarget(rawType)
		if err != nil {
			return f, fmt.Errorf("--target: %w", err)
		}
		f.TargetType = &target
		if found {
			if f.TargetID, err = parseID(rawID); err != nil {
				return f, fmt.Errorf("--target: %w", err)
			}
		}
	}
	return f, nil
}

func formatAuditID(id int64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func formatDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return ""
	}
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, detail[k])
	}
	return strings.Join(parts, " ")
}
