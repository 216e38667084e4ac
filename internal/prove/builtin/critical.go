package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/prove/internal/prove"
)

func trunkBranch(_ context.Context, pctx *prove.Context) (prove.Outcome, error) {
	details := map[string]interface{}{
		"branch": pctx.VCS.Branch,
		"trunk":  pctx.Settings.TrunkBranches,
	}
	if pctx.VCS.Detached {
		return prove.Fail("HEAD is detached", details), nil
	}
	for _, b := range pctx.Settings.TrunkBranches {
		if b == pctx.VCS.Branch {
			return prove.Pass(details), nil
		}
	}
	return prove.Fail(fmt.Sprintf("branch %q is not a trunk branch (%s)",
		pctx.VCS.Branch, strings.Join(pctx.Settings.TrunkBranches, ", ")), details), nil
}

func envSnapshot(_ context.Context, pctx *prove.Context) (prove.Outcome, error) {
	var missing []string
	for _, key := range pctx.Settings.RequiredEnv {
		if strings.TrimSpace(pctx.Getenv(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return prove.Pass(map[string]interface{}{"required": len(pctx.Settings.RequiredEnv)}), nil
	}
	sort.Strings(missing)
	return prove.Fail("missing required environment variables: "+strings.Join(missing, ", "),
		map[string]interface{}{"missing": missing}), nil
}

func cleanTree(_ context.Context, pctx *prove.Context) (prove.Outcome, error) {
	if pctx.VCS.Uncommitted {
		return prove.Fail("working tree has uncommitted changes", nil), nil
	}
	return prove.Pass(nil), nil
}
