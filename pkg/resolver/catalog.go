package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"climdash/pkg/dataset"
	"climdash/pkg/storage"

	"golang.org/x/sync/errgroup"
)

// CatalogEntry 是合并后的目录项，Backend 是按优先级第一个提供它的后端
type CatalogEntry struct {
	storage.Entry
	Backend string `json:"backend"`
}

// Listing 是一次目录枚举的结果
type Listing struct {
	Dir      string         `json:"dir"`
	Entries  []CatalogEntry `json:"entries"`
	Attempts []Attempt      `json:"attempts,omitempty"`
}

type listResult struct {
	entries  []storage.Entry
	err      error
	duration time.Duration
}

// Catalog 枚举所有后端上某个目录的内容 (比如某个项目下有哪些变量)
// 同名条目归属于优先级最高的后端；不可达的后端被跳过并记录在 Attempts 中。
func (r *Resolver) Catalog(ctx context.Context, dir string) (*Listing, error) {
	clean, err := dataset.CleanDir(dir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	// 1. 并发列举，单个后端的失败不取消其他后端
	results := make([]listResult, len(r.backends))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range r.backends {
		g.Go(func() error {
			lctx, lcancel := context.WithTimeout(gctx, r.cfg.ProbeTimeout)
			defer lcancel()

			began := r.clock.Now()
			entries, err := b.List(lctx, clean)
			results[i] = listResult{entries: entries, err: err, duration: r.clock.Since(began)}
			return nil
		})
	}
	_ = g.Wait()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}

	// 2. 按优先级合并
	listing := &Listing{Dir: clean}
	seen := make(map[string]bool)
	anyListed := false
	for i, b := range r.backends {
		res := results[i]
		a := Attempt{Backend: b.Name(), Kind: b.Kind(), Duration: res.duration}

		switch {
		case res.err == nil:
			a.Outcome = OutcomeFound
			anyListed = true
			for _, e := range res.entries {
				if !storage.ValidEntryName(e.Name) {
					r.logger.WarnContext(ctx, "ignoring invalid catalog entry", "backend", b.Name(), "dir", clean, "name", e.Name)
					continue
				}
				if seen[e.Name] {
					continue
				}
				seen[e.Name] = true
				listing.Entries = append(listing.Entries, CatalogEntry{Entry: e, Backend: b.Name()})
			}
		case errors.Is(res.err, storage.ErrNotFound):
			a.Outcome = OutcomeAbsent
		case errors.Is(res.err, context.DeadlineExceeded):
			a.Outcome, a.Err = OutcomeTimeout, res.err
		default:
			a.Outcome, a.Err = OutcomeUnavailable, res.err
		}
		if a.Err != nil {
			a.Reason = a.Err.Error()
			r.logger.WarnContext(ctx, "backend skipped during catalog",
				"backend", b.Name(), "dir", clean, "outcome", a.Outcome, "error", a.Reason)
		}
		listing.Attempts = append(listing.Attempts, a)
	}

	if !anyListed {
		for _, a := range listing.Attempts {
			if a.Outcome.Skipped() {
				return nil, &UnavailableError{Path: clean, Attempts: listing.Attempts}
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}

	sort.Slice(listing.Entries, func(i, j int) bool { return listing.Entries[i].Name < listing.Entries[j].Name })
	return listing, nil
}

// Skipped 返回被跳过的后端
func (l *Listing) Skipped() []Attempt {
	var out []Attempt
	for _, a := range l.Attempts {
		if a.Outcome.Skipped() {
			out = append(out, a)
		}
	}
	return out
}
