package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ai-reply-assistant/internal/domain/model"
	httpapi "ai-reply-assistant/internal/infra/http"
	"ai-reply-assistant/internal/usecase"
)

// --- dead-letters ---

func newDeadLettersCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List dead-lettered jobs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")
			return e.withApp(cmd, func(ctx context.Context, a *app) error {
				jobs, err := a.operator.ListDeadLetters(ctx, limit)
				if err != nil {
					return err
				}
				if asJSON {
					items := make([]httpapi.DeadLetter, 0, len(jobs))
					for _, j := range jobs {
						items = append(items, httpapi.NewDeadLetter(j))
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(items)
				}
				return printDeadLetters(cmd.OutOrStdout(), jobs)
			})
		},
	}
	cmd.Flags().Int("limit", 50, "maximum number of jobs to list")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	return cmd
}

func printDeadLetters(w io.Writer, jobs []*model.GenerationJob) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tTENANT\tUSER\tKIND\tATTEMPTS\tENQUEUED\tLAST ERROR")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			j.ID, j.TenantID, j.UserID, j.TriggerKind, j.Attempts, j.EnqueuedAt.Format(time.RFC3339), j.LastError)
	}
	return tw.Flush()
}

// --- void ---

func newVoidCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "void <job-id>",
		Short: "Cancel a job that has not finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.operator.Void(ctx, args[0]); err != nil {
					return err
				}
				printSuccess(cmd, "Voided job %s", args[0])
				return nil
			})
		},
	}
}

// --- resend ---

func newResendCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "resend <suggestion-id>",
		Short: "Deliver an undelivered suggestion again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withApp(cmd, func(ctx context.Context, a *app) error {
				out, err := a.operator.Resend(ctx, args[0])
				if err != nil {
					return err
				}
				printSuccess(cmd, "Delivered suggestion %s via %s after %d attempt(s)", args[0], out.Channel, out.Attempts)
				return nil
			})
		},
	}
}

// --- enqueue ---

func newEnqueueCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a trigger envelope",
		Long: `Enqueue a trigger envelope read from --file or stdin.

Example:
  echo '{"kind":"mention","event":{"tenant_id":"T1","user_id":"U1","channel_id":"C1","message_ts":"1700000000.000100","text":"thoughts?"}}' | replyctl enqueue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			var (
				data []byte
				err  error
			)
			if file != "" {
				data, err = os.ReadFile(file)
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("reading trigger: %w", err)
			}
			ev, id, err := usecase.DecodeTrigger(data)
			if err != nil {
				return err
			}
			return e.withApp(cmd, func(ctx context.Context, a *app) error {
				job, created, err := a.ingest.Ingest(ctx, ev, id)
				if err != nil {
					return err
				}
				if !created {
					printSuccess(cmd, "Job %s already queued", job.ID)
				} else {
					printSuccess(cmd, "Queued job %s", job.ID)
				}
				fmt.Fprintln(cmd.OutOrStdout(), job.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("file", "", "path to a JSON trigger envelope (default stdin)")
	return cmd
}

// --- policy ---

func newPolicyCmd(e *env) *cobra.Command {
	policy := &cobra.Command{
		Use:   "policy",
		Short: "Manage tenant guardrail policies",
	}
	set := &cobra.Command{
		Use:   "set <tenant-id>",
		Short: "Replace a tenant's guardrail policy",
		Long: `Replace a tenant's guardrail policy.

Known categories: ` + strings.Join(sortedCategories(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, _ := cmd.Flags().GetStringSlice("categories")
			kws, _ := cmd.Flags().GetStringSlice("keywords")
			mode, _ := cmd.Flags().GetString("mode")

			var tm model.TriggerMode
			switch mode {
			case "block":
				tm = model.TriggerModeBlock
			case "flag":
				tm = model.TriggerModeFlag
			default:
				return fmt.Errorf("--mode must be block or flag, got %q", mode)
			}
			known := map[string]bool{}
			for _, c := range usecase.KnownCategories() {
				known[c] = true
			}
			for _, c := range cats {
				if !known[c] {
					return fmt.Errorf("unknown category %q", c)
				}
			}
			p := &model.GuardrailPolicy{TenantID: args[0], EnabledCategories: cats, BlockedKeywords: kws, TriggerMode: tm}
			return e.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.policies.SetPolicy(ctx, p); err != nil {
					return err
				}
				printSuccess(cmd, "Policy for %s saved (%d categories, %d keywords, %s)", p.TenantID, len(cats), len(kws), mode)
				return nil
			})
		},
	}
	set.Flags().StringSlice("categories", nil, "comma-separated categories to enable")
	set.Flags().StringSlice("keywords", nil, "comma-separated blocked keywords")
	set.Flags().String("mode", "block", "what a match does: block or flag")
	policy.AddCommand(set)
	return policy
}

func sortedCategories() []string {
	cats := usecase.KnownCategories()
	sort.Strings(cats)
	return cats
}

// --- token ---

func newTokenCmd(e *env) *cobra.Command {
	token := &cobra.Command{
		Use:   "token",
		Short: "Admin API tokens",
	}
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint an admin bearer token signed with http.admin_jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			cfg, err := e.config()
			if err != nil {
				return err
			}
			tok, err := httpapi.NewAuthManager(cfg.HTTP.AdminJWTSecret).Mint(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	mint.Flags().String("subject", "operator", "token subject")
	mint.Flags().Duration("ttl", time.Hour, "token lifetime")
	token.AddCommand(mint)
	return token
}
