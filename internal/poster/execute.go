package poster

import (
	"context"
	"errors"

	"autopost/internal/eventbus"
	"autopost/internal/lock"
	"autopost/internal/quota"
	logx "autopost/pkg/logx"
)

// Execute runs one channel immediately. Manual triggers bypass the frequency
// schedule and the disabled flag but still respect configuration, quota and
// the per-channel lock; contention and quota exhaustion are surfaced to the
// caller instead of silently skipped.
func (s *Service) Execute(ctx context.Context, channelID string) (ExecutionReport, error) {
	ch, ok, err := s.settings.Channel(ctx, channelID)
	if err != nil {
		return ExecutionReport{ChannelID: channelID}, err
	}
	if !ok {
		return ExecutionReport{ChannelID: channelID}, ErrUnknownChannel
	}
	if len(ch.Keywords) == 0 || len(ch.Sources) == 0 {
		rep := s.skip(ch.ID, SkipConfiguration)
		return rep, ErrMissingConfig
	}

	lease, err := s.locks.Acquire(ctx, lock.ChannelKey(ch.ID), s.opt.ChannelLockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrContended) {
			rep := s.skip(ch.ID, SkipLockHeld)
			return rep, err
		}
		return ExecutionReport{ChannelID: ch.ID}, err
	}
	defer lease.Release(ctx)

	rep, err := s.runChannel(ctx, ch)
	if rep.SkippedReason == SkipQuota && err == nil {
		err = quota.ErrExceeded
	}
	return rep, err
}

// ExecuteAll sweeps every configured channel in sequence under the global
// lock, pacing between channels. force bypasses the schedule and candidate
// gates ("run everything now") but never quota or locks; disabled channels
// stay skipped either way.
func (s *Service) ExecuteAll(ctx context.Context, force bool) (SweepReport, error) {
	lease, err := s.locks.Acquire(ctx, lock.GlobalKey, s.opt.GlobalLockTTL)
	if err != nil {
		return SweepReport{}, err
	}
	defer lease.Release(ctx)

	ctx, cancel := context.WithTimeout(ctx, s.opt.SweepTimeout)
	defer cancel()

	channels, err := s.settings.Channels(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	var sweep SweepReport
	for i, ch := range channels {
		if ctx.Err() != nil {
			s.log.Warn("sweep deadline reached, remaining channels skipped",
				logx.Int("remaining", len(channels)-i))
			break
		}
		if i > 0 {
			if err := s.sleep(ctx, s.opt.ChannelPacing); err != nil {
				break
			}
		}

		rep := s.sweepChannel(ctx, ch, force)
		sweep.Reports = append(sweep.Reports, rep)
		if rep.attempted() {
			sweep.Executed++
			sweep.PostsCreated += rep.PostsCreated
		} else {
			sweep.Skipped++
		}
	}
	return sweep, nil
}

// sweepChannel applies the pre-execution gates in order and runs the crawl
// for a channel that passes them all. Gate failures are recorded as skips,
// never errors; a sweep keeps going.
func (s *Service) sweepChannel(ctx context.Context, ch Channel, force bool) ExecutionReport {
	if !ch.AutoPostingEnabled {
		return s.skip(ch.ID, SkipDisabled)
	}
	if len(ch.Keywords) == 0 || len(ch.Sources) == 0 {
		s.log.Warn("channel misconfigured, skipping",
			logx.String("channel", ch.ID),
			logx.Int("keywords", len(ch.Keywords)),
			logx.Int("sources", len(ch.Sources)))
		return s.skip(ch.ID, SkipConfiguration)
	}

	if !force {
		due, next, err := s.sched.Eligible(ctx, ch.ID, ch.Frequency, ch.CustomDays)
		if err != nil {
			s.log.Error("schedule lookup failed", logx.String("channel", ch.ID), logx.Err(err))
			return s.skip(ch.ID, SkipConfiguration)
		}
		if !due {
			s.log.Debug("channel not due", logx.String("channel", ch.ID), logx.Time("next", next))
			return s.skip(ch.ID, SkipNotDue)
		}
	}

	avail, err := s.quotas.Available(ctx, ch.provider())
	if err != nil {
		s.log.Error("quota lookup failed", logx.String("channel", ch.ID), logx.Err(err))
		return s.skip(ch.ID, SkipQuota)
	}
	if !avail {
		return s.skip(ch.ID, SkipQuota)
	}

	if !force {
		n, err := s.cache.GetOrProbe(ctx, ch.ID, ch.Sources, ch.Keywords, s.probe.Probe)
		if err != nil {
			s.log.Warn("candidate probe failed", logx.String("channel", ch.ID), logx.Err(err))
			return s.skip(ch.ID, SkipNoCandidates)
		}
		if n == 0 {
			return s.skip(ch.ID, SkipNoCandidates)
		}
	}

	lease, err := s.locks.Acquire(ctx, lock.ChannelKey(ch.ID), s.opt.ChannelLockTTL)
	if err != nil {
		if !errors.Is(err, lock.ErrContended) {
			s.log.Error("channel lock acquire failed", logx.String("channel", ch.ID), logx.Err(err))
		}
		return s.skip(ch.ID, SkipLockHeld)
	}
	defer lease.Release(ctx)

	rep, err := s.runChannel(ctx, ch)
	if err != nil {
		s.log.Error("channel run finished with error", logx.String("channel", ch.ID), logx.Err(err))
	}
	return rep
}

func (s *Service) skip(channelID string, reason SkipReason) ExecutionReport {
	rep := ExecutionReport{ChannelID: channelID, SkippedReason: reason, StartedAt: s.now()}
	s.record(rep)
	s.publishEvent(eventbus.TypeRunSkipped, rep)
	return rep
}

// runChannel is the crawl loop for one channel, entered with the channel
// lock held and all gates passed. The schedule advances whenever at least
// one fetch was started, including failed runs, so a failing channel is not
// retried on every sweep tick.
func (s *Service) runChannel(ctx context.Context, ch Channel) (ExecutionReport, error) {
	start := s.now()
	rep := ExecutionReport{ChannelID: ch.ID, StartedAt: start}
	s.publishEvent(eventbus.TypeRunStarted, map[string]string{"channel": ch.ID})

	provider := ch.provider()
	remaining := ch.maxPosts()
	attempted := false
	var surfaced error

crawl:
	for _, source := range ch.Sources {
		if remaining <= 0 {
			break
		}
		if ctx.Err() != nil {
			surfaced = ctx.Err()
			break
		}

		if err := s.quotas.CheckAndReserve(ctx, provider); err != nil {
			if errors.Is(err, quota.ErrExceeded) && !attempted {
				rep.SkippedReason = SkipQuota
			} else {
				rep.Errors = append(rep.Errors, err.Error())
				surfaced = err
			}
			break
		}
		if err := s.quotas.Pace(ctx, provider); err != nil {
			surfaced = err
			break
		}

		attempted = true
		var items []RawItem
		fetchErr := s.retry.Do(ctx, "fetch "+source, func(ctx context.Context) error {
			fctx, cancel := context.WithTimeout(ctx, s.opt.FetchTimeout)
			defer cancel()
			got, err := s.fetcher.Fetch(fctx, source, ch.maxItems())
			if err != nil {
				return err
			}
			items = got
			return nil
		})
		if fetchErr != nil {
			rep.Errors = append(rep.Errors, fetchErr.Error())
			if errors.Is(fetchErr, quota.ErrExceeded) {
				// The provider knows better than our local counter.
				if merr := s.quotas.MarkExceeded(ctx, provider); merr != nil {
					s.log.Error("quota mark-exceeded failed", logx.String("provider", provider), logx.Err(merr))
				}
			}
			surfaced = fetchErr
			break
		}

		for _, item := range items {
			if remaining <= 0 {
				break crawl
			}
			if item.ExternalID == "" || !ch.matches(item) {
				continue
			}
			dup, err := s.dedup.IsDuplicate(ctx, string(ch.ContentType), item.ExternalID)
			if err != nil {
				rep.Errors = append(rep.Errors, err.Error())
				continue
			}
			if dup {
				continue
			}

			postID, err := s.publisher.Create(ctx, item, ch)
			if err != nil {
				if errors.Is(err, ErrAuth) {
					rep.Errors = append(rep.Errors, err.Error())
					surfaced = err
					break crawl
				}
				perr := &PublishError{ChannelID: ch.ID, Title: item.Title, Cause: err}
				rep.Errors = append(rep.Errors, perr.Error())
				continue
			}
			if err := s.dedup.Remember(ctx, string(ch.ContentType), item.ExternalID); err != nil {
				s.log.Warn("dedup record failed", logx.String("channel", ch.ID), logx.Err(err))
			}
			rep.PostsCreated++
			remaining--
			s.publishEvent(eventbus.TypePostCreated, map[string]string{
				"channel": ch.ID,
				"post_id": postID,
				"title":   item.Title,
			})
			s.generateImage(postID, item.Title, ch.Keywords, ch.ImageMethod)
		}
	}

	if attempted {
		if err := s.sched.Advance(ctx, ch.ID, ch.Frequency, ch.CustomDays); err != nil {
			rep.Errors = append(rep.Errors, err.Error())
		}
		// Availability changed: the run consumed candidates.
		s.cache.Invalidate(ch.ID)
	}

	rep.Duration = s.now().Sub(start)
	s.record(rep)
	s.publishEvent(eventbus.TypeRunFinished, rep)
	s.log.Info("channel run finished",
		logx.String("channel", ch.ID),
		logx.Int("posts", rep.PostsCreated),
		logx.Int("errors", len(rep.Errors)),
		logx.Duration("took", rep.Duration))
	return rep, surfaced
}

// generateImage is fire-and-forget: a missing featured image never fails the
// post that was already created.
func (s *Service) generateImage(postID, title string, keywords []string, method string) {
	if s.images == nil {
		return
	}
	go func() {
		ictx, cancel := context.WithTimeout(context.Background(), s.opt.FetchTimeout)
		defer cancel()
		if _, err := s.images.Generate(ictx, postID, title, keywords, method); err != nil {
			s.log.Warn("image generation failed", logx.String("post_id", postID), logx.Err(err))
		}
	}()
}
