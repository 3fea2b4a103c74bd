package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior. Failures here are fatal at startup.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.DataDir == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if c.Paths.APIBind == "" {
		problems = append(problems, "paths.api_bind must not be empty")
	}

	for name, backend := range map[string]string{
		"transcription": c.Transcription.Backend,
		"shallow":       c.Shallow.Backend,
		"deep":          c.Deep.Backend,
		"semantic":      c.Semantic.Backend,
	} {
		if backend == "" {
			problems = append(problems, fmt.Sprintf("%s.backend must not be empty", name))
		}
	}

	if c.Shallow.ContextWindow < 1 {
		problems = append(problems, "shallow.context_window must be at least 1")
	}
	if c.Deep.ContextWindow < 1 {
		problems = append(problems, "deep.context_window must be at least 1")
	}
	if c.Deep.RecentFlagLimit < 1 {
		problems = append(problems, "deep.recent_flag_limit must be at least 1")
	}
	if c.Deep.MaxInFlight < 1 {
		problems = append(problems, "deep.max_in_flight must be at least 1")
	}

	if c.Semantic.SimilarityThreshold <= 0 || c.Semantic.SimilarityThreshold > 1 {
		problems = append(problems, fmt.Sprintf(
			"semantic.similarity_threshold must be in (0, 1], got %v", c.Semantic.SimilarityThreshold))
	}
	if c.Semantic.ContextMinutes < 1 {
		problems = append(problems, "semantic.context_minutes must be at least 1")
	}
	if c.Semantic.ContextLimit < 1 {
		problems = append(problems, "semantic.context_limit must be at least 1")
	}

	if c.Pipeline.NearDuplicateThreshold <= 0 || c.Pipeline.NearDuplicateThreshold > 1 {
		problems = append(problems, fmt.Sprintf(
			"pipeline.near_duplicate_threshold must be in (0, 1], got %v", c.Pipeline.NearDuplicateThreshold))
	}
	if c.Pipeline.EmitIntervalMS < 1 {
		problems = append(problems, "pipeline.emit_interval_ms must be at least 1")
	}
	if c.Pipeline.QueuePollTimeoutMS < 1 {
		problems = append(problems, "pipeline.queue_poll_timeout_ms must be at least 1")
	}
	if c.Pipeline.QueueCapacity < 1 {
		problems = append(problems, "pipeline.queue_capacity must be at least 1")
	}
	switch c.Pipeline.OverflowPolicy {
	case "block", "drop_oldest":
	default:
		problems = append(problems, fmt.Sprintf(
			"pipeline.overflow_policy must be %q or %q, got %q", "block", "drop_oldest", c.Pipeline.OverflowPolicy))
	}
	if c.Pipeline.SubscriberMailbox < 1 {
		problems = append(problems, "pipeline.subscriber_mailbox must be at least 1")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
