package offlinecache

// QuotaConfig bounds the storage used by the worker.
type QuotaConfig struct {
	// MaxBytes is the storage quota. Zero disables eviction.
	MaxBytes int64 `yaml:"maxBytes"`
	// Threshold is the usage/quota ratio that triggers eviction.
	// Defaults to 0.9.
	Threshold float64 `yaml:"threshold"`
	// KeepAudioEntries is how many of the newest audio entries survive
	// an eviction pass. Defaults to 40.
	KeepAudioEntries int `yaml:"keepAudioEntries"`
}

// QuotaState is a point-in-time usage snapshot. It is recomputed on
// demand and never persisted.
type QuotaState struct {
	Usage int64
	Quota int64
}

// Ratio returns usage as a fraction of quota, zero when no quota is set.
func (q QuotaState) Ratio() float64 {
	if q.Quota <= 0 {
		return 0
	}
	return float64(q.Usage) / float64(q.Quota)
}

// CheckQuota recomputes the usage snapshot from the store.
func (w *Worker) CheckQuota() (QuotaState, error) {
	usage, err := w.store.Usage()
	return QuotaState{Usage: usage, Quota: w.quota.MaxBytes}, err
}

// enforceQuota deletes the oldest audio entries when usage crosses the
// threshold, keeping only the newest ones. Oldest is by recorded write
// time. Best effort: eviction may lag actual usage by one write cycle,
// and failures only get logged.
func (w *Worker) enforceQuota() {
	if w.quota.MaxBytes <= 0 {
		return
	}
	state, err := w.CheckQuota()
	if err != nil {
		w.log.Error().Err(err).Msg("Could not read storage usage")
		return
	}
	if state.Ratio() < w.quota.Threshold {
		return
	}
	audioCache := w.physicalName(CacheAudio)
	keys, err := w.store.Keys(audioCache)
	if err != nil {
		w.log.Error().Err(err).Msg("Could not list audio entries")
		return
	}
	if len(keys) <= w.quota.KeepAudioEntries {
		return
	}
	w.log.Info().
		Int64("usage", state.Usage).
		Int64("quota", state.Quota).
		Int("entries", len(keys)).
		Msg("Storage quota crossed, evicting oldest audio entries")
	for _, key := range keys[:len(keys)-w.quota.KeepAudioEntries] {
		if err := w.store.Delete(audioCache, key); err != nil {
			w.log.Error().Err(err).Str("key", key).Msg("Could not evict audio entry")
			continue
		}
		w.log.Debug().Str("key", key).Msg("Evicted audio entry")
	}
}
