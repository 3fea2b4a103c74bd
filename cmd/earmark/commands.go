package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"earmark/internal/archive"
	"earmark/internal/config"
	"earmark/internal/segment"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and queue depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := ctx.client().status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("state: %s\n", status.State)
			fmt.Printf("archived segments: %d\n", status.ArchiveSegments)
			fmt.Printf("stream subscribers: %d\n", status.Subscribers)

			names := make([]string, 0, len(status.Queues))
			for name := range status.Queues {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, fmt.Sprintf("%d", status.Queues[name])})
			}
			fmt.Println(renderTable([]string{"QUEUE", "DEPTH"}, rows))
			return nil
		},
	}
}

func newSegmentsCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List archived transcript segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			segments, err := ctx.client().segments(cmd.Context())
			if err != nil {
				return err
			}
			if !all {
				segments = flaggedOnly(segments)
			}
			if len(segments) == 0 {
				fmt.Println("no segments")
				return nil
			}

			rows := make([][]string, 0, len(segments))
			for _, seg := range segments {
				rows = append(rows, []string{
					shortID(seg.ID),
					fmt.Sprintf("%.1fs", seg.Start),
					string(seg.Status),
					flagSummary(seg),
					truncate(seg.Text, 60),
				})
			}
			fmt.Println(renderTable([]string{"ID", "START", "STATUS", "FLAGS", "TEXT"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include unflagged segments")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Resume transcript ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().start(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ingestion running")
			return nil
		},
	}
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause transcript ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().pause(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ingestion paused")
			return nil
		},
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the live enriched transcript stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.client().watch(cmd.Context(), func(view archive.StreamView) {
				marker := " "
				if len(view.Flags) > 0 {
					marker = "!"
				}
				fmt.Printf("[%7.1fs] %s %-11s %s\n", view.Start, marker, view.Status, view.Transcript)
				for _, flag := range view.Flags {
					fmt.Printf("            %s: %s\n", flag.Source, strings.Join(flag.Matches, " | "))
					if flag.Summary != "" {
						fmt.Printf("            %s (severity %.1f)\n", flag.Summary, flag.Severity)
					}
				}
			})
		},
	}
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(*ctx.configFlag)
			if err != nil {
				return err
			}
			if exists {
				fmt.Printf("# %s\n", path)
			} else {
				fmt.Println("# built-in defaults (no config file found)")
			}
			fmt.Printf("data_dir: %s\n", cfg.Paths.DataDir)
			fmt.Printf("api_bind: %s\n", cfg.Paths.APIBind)
			fmt.Printf("transcription: %s (%s)\n", cfg.Transcription.Backend, cfg.Transcription.BaseURL)
			fmt.Printf("shallow: %s (%s)\n", cfg.Shallow.Backend, cfg.Shallow.BaseURL)
			fmt.Printf("deep: %s (%s)\n", cfg.Deep.Backend, cfg.Deep.BaseURL)
			fmt.Printf("semantic: %s (%s)\n", cfg.Semantic.Backend, cfg.Semantic.BaseURL)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *ctx.configFlag
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	})
	return cmd
}

func flaggedOnly(segments []*segment.Segment) []*segment.Segment {
	out := segments[:0]
	for _, seg := range segments {
		if len(seg.Flags) > 0 {
			out = append(out, seg)
		}
	}
	return out
}

func flagSummary(seg *segment.Segment) string {
	if len(seg.Flags) == 0 {
		return ""
	}
	flag := seg.Flags[len(seg.Flags)-1]
	label := string(flag.Source)
	if flag.ExitReason != "" && flag.ExitReason != segment.ExitNone {
		label += "/" + string(flag.ExitReason)
	}
	return label
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit-1] + "…"
}
