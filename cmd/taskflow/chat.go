package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Joseda-hg/taskflow/internal/agent"
	"github.com/Joseda-hg/taskflow/internal/model"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send one message to the agent and print its reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assistant, err := newAgent(cmd.Context(), env)
		if err != nil {
			return err
		}
		reply, err := assistant.Handle(cmd.Context(), agent.Request{
			Owner: env.cfg.OwnerID,
			Text:  strings.Join(args, " "),
			Kind:  model.KindText,
		})
		if err != nil {
			env.logger.Error("agent turn failed", zap.String("turn", reply.TurnID), zap.Error(err))
		}
		printReply(cmd.OutOrStdout(), reply)
		return err
	},
}

var tipsCmd = &cobra.Command{
	Use:   "tips",
	Short: "Print today's planning tips",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tips, err := env.analyzer().Tips(cmd.Context(), env.cfg.OwnerID)
		if err != nil {
			return err
		}
		for _, tip := range tips {
			fmt.Fprintln(cmd.OutOrStdout(), "- "+tip)
		}
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load [YYYY-MM-DD]",
	Short: "Print the planned load of a day (today by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		analyzer := env.analyzer()
		day := analyzer.Today(cmd.Context(), env.cfg.OwnerID)
		if len(args) == 1 {
			parsed, err := time.ParseInLocation(model.DateLayout, args[0], analyzer.Location(cmd.Context(), env.cfg.OwnerID))
			if err != nil {
				return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
			}
			day = parsed
		}

		dl, err := analyzer.DayLoad(cmd.Context(), env.cfg.OwnerID, day)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d tasks, %d/%d minutes (%d%%)\n", dl.Date, dl.TasksCount, dl.PlannedMinutes, dl.MaxMinutes, dl.LoadPercent)
		if dl.Overloaded {
			fmt.Fprintln(out, "overloaded")
		}
		if dl.CriticalCount > 0 || dl.HighCount > 0 {
			fmt.Fprintf(out, "critical: %d, high: %d\n", dl.CriticalCount, dl.HighCount)
		}
		return nil
	},
}

func printReply(out io.Writer, reply agent.Reply) {
	fmt.Fprintln(out, reply.Message)
	printRefs(out, "created", reply.TasksCreated)
	printRefs(out, "updated", reply.TasksUpdated)
	printRefs(out, "deleted", reply.TasksDeleted)
	if len(reply.MemoriesSaved) > 0 {
		fmt.Fprintf(out, "remembered: %s\n", strings.Join(reply.MemoriesSaved, ", "))
	}
	for _, q := range reply.ClarifyingQuestions {
		fmt.Fprintln(out, "? "+q)
	}
	if reply.LoadWarning != nil {
		fmt.Fprintln(out, "! "+*reply.LoadWarning)
	}
	for _, tip := range reply.Tips {
		fmt.Fprintln(out, "- "+tip)
	}
}

func printRefs(out io.Writer, verb string, refs []model.TaskRef) {
	for _, ref := range refs {
		fmt.Fprintf(out, "%s #%d %s\n", verb, ref.ID, ref.Title)
	}
}
