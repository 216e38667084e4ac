package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/prove/internal/prove"
)

// killSwitch requires every feature flag registered on a changed line to
// have a kill switch registered somewhere in the changed files.
type killSwitch struct{}

func (killSwitch) Preflight(pctx *prove.Context) error {
	_, _, err := compileKillSwitch(pctx.Settings)
	return err
}

func compileKillSwitch(s prove.Settings) (flag, kill *regexp.Regexp, err error) {
	if flag, err = regexp.Compile(s.FlagPattern); err != nil {
		return nil, nil, fmt.Errorf("invalid flag_pattern: %w", err)
	}
	if kill, err = regexp.Compile(s.KillPattern); err != nil {
		return nil, nil, fmt.Errorf("invalid kill_switch_pattern: %w", err)
	}
	if flag.NumSubexp() < 1 || kill.NumSubexp() < 1 {
		return nil, nil, errors.New("flag and kill switch patterns must capture the flag name")
	}
	return flag, kill, nil
}

func (killSwitch) Run(ctx context.Context, pctx *prove.Context) (prove.Outcome, error) {
	flagRe, killRe, err := compileKillSwitch(pctx.Settings)
	if err != nil {
		return prove.Outcome{}, err
	}

	flags := map[string]string{}
	kills := map[string]bool{}
	for _, file := range pctx.VCS.ChangedFiles {
		if err := ctx.Err(); err != nil {
			return prove.Outcome{}, err
		}
		content, err := pctx.ReadFile(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return prove.Outcome{}, fmt.Errorf("reading %s: %w", file, err)
		}

		for _, m := range killRe.FindAllSubmatch(content, -1) {
			kills[string(m[1])] = true
		}

		added := make(map[int]bool, len(pctx.VCS.ChangedLines[file]))
		for _, n := range pctx.VCS.ChangedLines[file] {
			added[n] = true
		}
		for n, line := range bytes.Split(content, []byte("\n")) {
			if !added[n+1] {
				continue
			}
			for _, m := range flagRe.FindAllSubmatch(line, -1) {
				if _, seen := flags[string(m[1])]; !seen {
					flags[string(m[1])] = fmt.Sprintf("%s:%d", file, n+1)
				}
			}
		}
	}

	var missing []string
	for name := range flags {
		if !kills[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	details := map[string]interface{}{"flags": len(flags)}
	if len(missing) == 0 {
		return prove.Pass(details), nil
	}
	locations := make([]string, len(missing))
	for i, name := range missing {
		locations[i] = name + " (" + flags[name] + ")"
	}
	details["missing"] = missing
	return prove.Fail("feature flags without a kill switch: "+strings.Join(locations, ", "), details), nil
}
