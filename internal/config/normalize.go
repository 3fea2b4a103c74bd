package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	c.Transcription.Backend = strings.ToLower(strings.TrimSpace(c.Transcription.Backend))
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	c.Shallow.Backend = strings.ToLower(strings.TrimSpace(c.Shallow.Backend))
	c.Shallow.BaseURL = strings.TrimSpace(c.Shallow.BaseURL)
	c.Deep.Backend = strings.ToLower(strings.TrimSpace(c.Deep.Backend))
	c.Deep.BaseURL = strings.TrimSpace(c.Deep.BaseURL)
	c.Semantic.Backend = strings.ToLower(strings.TrimSpace(c.Semantic.Backend))
	c.Semantic.BaseURL = strings.TrimSpace(c.Semantic.BaseURL)

	c.Pipeline.OverflowPolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.OverflowPolicy))
	return nil
}
