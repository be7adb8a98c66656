package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"relaybot/internal/domain"
	"relaybot/internal/store"

	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage forwarding rules",
	}

	var guildID string
	var asJSON bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List forwarding rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			rules, err := st.ListRules(context.Background(), guildID)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(rules)
			}
			printRules(rules)
			return nil
		},
	}
	list.Flags().StringVar(&guildID, "guild", "", "only list rules of this guild")
	list.Flags().BoolVar(&asJSON, "json", false, "print rules as JSON")
	cmd.AddCommand(list)

	cmd.AddCommand(addRuleCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "remove [rule-id]",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.DeleteRule(context.Background(), args[0]); err != nil {
				return err
			}
			logger.Info("rule removed", "id", args[0])
			return nil
		},
	})

	cmd.AddCommand(setActiveCmd("enable", true))
	cmd.AddCommand(setActiveCmd("disable", false))

	cmd.AddCommand(&cobra.Command{
		Use:   "import [file.yaml]",
		Short: "Create or update rules from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := store.LoadRulesFile(args[0])
			if err != nil {
				return err
			}
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			n, err := st.ImportRules(context.Background(), rules)
			if err != nil {
				return err
			}
			logger.Info("rules imported", "file", args[0], "count", n)
			return nil
		},
	})

	return cmd
}

func addRuleCmd() *cobra.Command {
	var (
		rule     domain.ForwardingRule
		types    []string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a forwarding rule",
		Example: `  relaybot rules add --guild 123 --name news --from 456 --to 789
  relaybot rules add --guild 123 --from 456 --to 789 --types media,link --style embed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range types {
				rule.Filters.AllowedTypes = append(rule.Filters.AllowedTypes, domain.MessageType(strings.ToLower(strings.TrimSpace(t))))
			}
			rule.Active = !disabled

			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			created, err := st.CreateRule(context.Background(), rule)
			if err != nil {
				return err
			}
			logger.Info("rule created", "id", created.ID, "source", created.SourceChannelID, "destination", created.DestinationChannelID)
			fmt.Println(created.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&rule.GuildID, "guild", "", "guild that owns the rule")
	f.StringVar(&rule.Name, "name", "", "rule name")
	f.StringVar(&rule.SourceChannelID, "from", "", "source channel ID")
	f.StringVar(&rule.DestinationChannelID, "to", "", "destination channel ID")
	f.StringVar(&rule.DestinationGuildID, "to-guild", "", "destination guild ID when it differs from --guild")
	f.StringSliceVar(&types, "types", nil, "allowed message types (text,media,link,embed,file,sticker)")
	f.StringVar(&rule.Filters.ContentPattern, "pattern", "", "regular expression the text must match")
	f.StringSliceVar(&rule.Filters.RequireKeywords, "require", nil, "keywords of which at least one must appear")
	f.StringSliceVar(&rule.Filters.BlockKeywords, "block", nil, "keywords that reject the message")
	f.BoolVar(&rule.Filters.CaseSensitive, "case-sensitive", false, "match keywords case-sensitively")
	f.BoolVar(&rule.Filters.WholeWord, "whole-word", false, "match keywords as whole words")
	f.StringVar((*string)(&rule.Attribution), "attribution", string(domain.AttributionGeneric), "preserve or generic")
	f.StringVar((*string)(&rule.Format.Style), "style", string(domain.StyleNative), "native, text or embed")
	f.StringVar(&rule.Format.Prefix, "prefix", "", "text placed before the content ({author}, {channel}, ...)")
	f.StringVar(&rule.Format.Suffix, "suffix", "", "text placed after the content")
	f.BoolVar(&rule.Format.IncludeSource, "include-source", false, "append a link to the original message")
	f.IntVar(&rule.Format.MaxContentLength, "max-length", 0, "truncate content to this many characters (0 = no limit)")
	f.BoolVar(&rule.Format.DropEmbeds, "drop-embeds", false, "do not forward embeds")
	f.BoolVar(&rule.Format.DropAttachments, "drop-attachments", false, "do not forward attachments")
	f.StringSliceVar(&rule.Format.EmbedFilter, "embed-filter", nil, "embed filters (empty,discord,ad)")
	f.BoolVar(&disabled, "disabled", false, "create the rule inactive")
	_ = cmd.MarkFlagRequired("guild")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func setActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [rule-id]",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SetRuleActive(context.Background(), args[0], active); err != nil {
				return err
			}
			logger.Info("rule updated", "id", args[0], "active", active)
			return nil
		},
	}
}

func printRules(rules []domain.ForwardingRule) {
	if len(rules) == 0 {
		fmt.Println("no rules")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGUILD\tNAME\tSOURCE\tDESTINATION\tACTIVE\tSTYLE")
	for _, r := range rules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			r.ID, r.GuildID, r.Name, r.SourceChannelID, r.DestinationChannelID, r.Active, r.Format.Style)
	}
	tw.Flush()
}

func guildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guild",
		Short: "Show or change per-guild forwarding settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [guild-id]",
		Short: "Show a guild's settings and today's usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			settings, err := guildSettings(ctx, st, args[0], cfg.Forward.DefaultDailyLimit)
			if err != nil {
				return err
			}
			used, err := st.Usage(ctx, args[0], time.Now())
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"guild_id":           settings.GuildID,
				"forwarding_enabled": settings.ForwardingEnabled,
				"daily_limit":        settings.DailyLimit,
				"used_today":         used,
			})
		},
	})

	var enabled string
	var limit int
	set := &cobra.Command{
		Use:   "set [guild-id]",
		Short: "Change a guild's settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := context.Background()
			settings, err := guildSettings(ctx, st, args[0], cfg.Forward.DefaultDailyLimit)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("enabled") {
				switch strings.ToLower(enabled) {
				case "true", "yes", "on":
					settings.ForwardingEnabled = true
				case "false", "no", "off":
					settings.ForwardingEnabled = false
				default:
					return fmt.Errorf("invalid --enabled value %q", enabled)
				}
			}
			if cmd.Flags().Changed("daily-limit") {
				settings.DailyLimit = limit
			}
			if err := st.SaveGuildSettings(ctx, settings); err != nil {
				return err
			}
			logger.Info("guild settings saved", "guild", settings.GuildID,
				"forwarding_enabled", settings.ForwardingEnabled, "daily_limit", settings.DailyLimit)
			return nil
		},
	}
	set.Flags().StringVar(&enabled, "enabled", "", "turn forwarding on or off (true/false)")
	set.Flags().IntVar(&limit, "daily-limit", 0, "forwards allowed per day (0 = unlimited)")
	cmd.AddCommand(set)

	return cmd
}

// guildSettings returns the stored settings or the defaults the engine would use.
func guildSettings(ctx context.Context, st *store.SQLiteStore, guildID string, defaultLimit int) (domain.GuildSettings, error) {
	settings, err := st.GuildSettings(ctx, guildID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.GuildSettings{}, err
	}
	return domain.GuildSettings{GuildID: guildID, ForwardingEnabled: true, DailyLimit: defaultLimit}, nil
}

func logCmd() *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "log [guild-id]",
		Short: "Show recent forward outcomes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			guildID := ""
			if len(args) == 1 {
				guildID = args[0]
			}
			entries, err := st.RecentLog(context.Background(), guildID, limit)
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []store.LogEntry{}
				}
				return printJSON(entries)
			}
			printLog(entries)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func printLog(entries []store.LogEntry) {
	if len(entries) == 0 {
		fmt.Println("no forward log entries")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRULE\tMESSAGE\tDESTINATION\tSTATUS\tREASON\tOMITTED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.RuleID, e.MessageID,
			e.DestinationChannelID, e.Status, e.Reason, e.OmittedCount)
	}
	tw.Flush()
}
