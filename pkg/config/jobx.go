package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// QueueProfile is the operational policy of one queue.
type QueueProfile struct {
	Concurrency  int           `yaml:"concurrency"`
	Attempts     int           `yaml:"attempts"`
	Backoff      string        `yaml:"backoff"`
	BackoffDelay time.Duration `yaml:"backoff_delay"`
	DeadLetter   bool          `yaml:"dead_letter"`
}

// JobxConfig configures the background job queue.
type JobxConfig struct {
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	DequeueTimeout  time.Duration
	MaxBackoff      time.Duration
	Retention       time.Duration
	ProfilesFile    string
	Profiles        map[string]QueueProfile
}

// Profile returns the profile for queue, falling back to a conservative default.
func (c JobxConfig) Profile(queue string) QueueProfile {
	if p, ok := c.Profiles[queue]; ok {
		return p
	}
	return QueueProfile{Concurrency: 1, Attempts: 3, Backoff: "exponential", BackoffDelay: 5 * time.Second}
}

// defaultQueueProfiles mirrors the provider limits of each queue: email sends
// are capped by the provider rate limit, renders serialize on one image API budget.
func defaultQueueProfiles() map[string]QueueProfile {
	return map[string]QueueProfile{
		"email:send-notification": {Concurrency: 2, Attempts: 5, Backoff: "exponential", BackoffDelay: 10 * time.Second, DeadLetter: true},
		"render:generate":         {Concurrency: 1, Attempts: 3, Backoff: "exponential", BackoffDelay: 5 * time.Second, DeadLetter: true},
		"image:optimize":          {Concurrency: 2, Attempts: 3, Backoff: "fixed", BackoffDelay: 2 * time.Second},
		"doc:generate-plan":       {Concurrency: 1, Attempts: 3, Backoff: "exponential", BackoffDelay: 5 * time.Second, DeadLetter: true},
	}
}

func loadJobxConfig() (JobxConfig, error) {
	cfg := JobxConfig{
		PollInterval:    getEnvDuration("JOBX_POLL_INTERVAL", time.Second),
		ShutdownTimeout: getEnvDuration("JOBX_SHUTDOWN_TIMEOUT", 30*time.Second),
		DequeueTimeout:  getEnvDuration("JOBX_DEQUEUE_TIMEOUT", 5*time.Second),
		MaxBackoff:      getEnvDuration("JOBX_MAX_BACKOFF", 10*time.Minute),
		Retention:       getEnvDuration("JOBX_RETENTION", 24*time.Hour),
		ProfilesFile:    getEnv("JOBX_PROFILES_FILE", ""),
		Profiles:        defaultQueueProfiles(),
	}

	if cfg.ProfilesFile != "" {
		if err := mergeProfilesFile(cfg.Profiles, cfg.ProfilesFile); err != nil {
			return cfg, err
		}
	}

	for name, p := range cfg.Profiles {
		prefix := "JOBX_" + envName(name) + "_"
		p.Concurrency = getEnvInt(prefix+"CONCURRENCY", p.Concurrency)
		p.Attempts = getEnvInt(prefix+"ATTEMPTS", p.Attempts)
		p.Backoff = getEnv(prefix+"BACKOFF", p.Backoff)
		p.BackoffDelay = getEnvDuration(prefix+"BACKOFF_DELAY", p.BackoffDelay)
		p.DeadLetter = getEnvBool(prefix+"DEAD_LETTER", p.DeadLetter)
		cfg.Profiles[name] = p
	}

	return cfg, nil
}

// mergeProfilesFile overlays a YAML document of the form
//
//	queues:
//	  render:generate:
//	    concurrency: 1
//	    attempts: 4
//
// on top of the defaults. Zero values in the file keep the default.
func mergeProfilesFile(profiles map[string]QueueProfile, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read queue profiles %s: %w", path, err)
	}

	var doc struct {
		Queues map[string]QueueProfile `yaml:"queues"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse queue profiles %s: %w", path, err)
	}

	for name, override := range doc.Queues {
		p := profiles[name]
		if override.Concurrency > 0 {
			p.Concurrency = override.Concurrency
		}
		if override.Attempts > 0 {
			p.Attempts = override.Attempts
		}
		if override.Backoff != "" {
			p.Backoff = override.Backoff
		}
		if override.BackoffDelay > 0 {
			p.BackoffDelay = override.BackoffDelay
		}
		p.DeadLetter = p.DeadLetter || override.DeadLetter
		profiles[name] = p
	}
	return nil
}
