package app

import (
	"time"

	"autopost/internal/config"
	"autopost/internal/server"
)

type engineDurs struct {
	sweepTimeout   time.Duration
	globalLockTTL  time.Duration
	channelLockTTL time.Duration
	channelPacing  time.Duration
	candidateTTL   time.Duration
	articleDedup   time.Duration
	videoDedup     time.Duration
	fetchTimeout   time.Duration
	retryBase      time.Duration
	jobTTL         time.Duration
}

// engineDurations parses every duration field once, up front, so a typo
// fails at startup rather than mid-sweep.
func engineDurations(eng config.EngineConfig) (engineDurs, error) {
	var d engineDurs
	var err error
	fields := []struct {
		dst  *time.Duration
		path string
		raw  string
		def  time.Duration
	}{
		{&d.sweepTimeout, "engine.sweep_timeout", eng.SweepTimeout, 10 * time.Minute},
		{&d.globalLockTTL, "engine.global_lock_ttl", eng.GlobalLockTTL, 300 * time.Second},
		{&d.channelLockTTL, "engine.channel_lock_ttl", eng.SpotLockTTL, 120 * time.Second},
		{&d.channelPacing, "engine.channel_pacing", eng.ChannelPacing, 15 * time.Second},
		{&d.candidateTTL, "engine.candidate_ttl", eng.CandidateTTL, 5 * time.Minute},
		{&d.articleDedup, "engine.article_dedup_window", eng.ArticleDedupWindow, 168 * time.Hour},
		{&d.videoDedup, "engine.video_dedup_window", eng.VideoDedupWindow, time.Hour},
		{&d.fetchTimeout, "engine.fetch_timeout", eng.FetchTimeout, 30 * time.Second},
		{&d.retryBase, "engine.retry_base", eng.RetryBase, 2 * time.Second},
		{&d.jobTTL, "engine.job_ttl", eng.JobTTL, 15 * time.Minute},
	}
	for _, f := range fields {
		if *f.dst, err = config.ParseDurationOrDefault(f.path, f.raw, f.def); err != nil {
			return engineDurs{}, err
		}
	}
	return d, nil
}

func serverConfig(sc *config.ServerConfig) (server.Config, error) {
	read, err := config.ParseDurationOrDefault("server.read_timeout", sc.ReadTimeout, 10*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", sc.WriteTimeout, 30*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", sc.IdleTimeout, time.Minute)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Enabled:       sc.Enabled,
		Addr:          sc.Addr,
		Token:         sc.Token,
		AllowInsecure: sc.AllowInsecure,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
