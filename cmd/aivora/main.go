package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aivora/internal/app"
	"aivora/internal/config"
	"aivora/internal/db"
	"aivora/internal/domain"
	"aivora/internal/flows"
	"aivora/internal/gateway"
	"aivora/internal/session"
	"aivora/internal/stub"
)

var rootCmd = &cobra.Command{
	Use:   "aivora",
	Short: "Aivora CLI",
	Long: `Aivora tracks AI-planned goals day by day.
- Workspace: your .aivora directory holding the local database (session credential).
- Goal: a target with a duration and an AI-generated day-by-day plan.
- Tracking: each day is recorded once; resubmitting a day amends it. A day unlocks
  only when the previous day is completed.
- Streak: consecutive calendar days with completed work, ending today or yesterday.
- Insights: weekly AI analysis of your progress, gated on having completed at least one day.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("AIVORA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("api-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(overviewCmd())
	rootCmd.AddCommand(insightCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(devCmd())
}

func registerCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Session.Register(ctx, name, email, password)
				if err != nil {
					return err
				}
				fmt.Printf("Welcome, %s. You are logged in.\n", u.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Session.Login(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Printf("Logged in as %s <%s>.\n", u.Name, u.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the persisted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				a.Session.Logout(ctx)
				fmt.Println("Logged out.")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, ok := a.Session.User()
				if !ok {
					fmt.Println("Not logged in.")
					return nil
				}
				return printJSONOrTable(u)
			})
		},
	}
}

func goalCmd() *cobra.Command {
	goal := &cobra.Command{
		Use:   "goal",
		Short: "Manage goals",
		Long:  "Goals carry an AI-generated plan, one entry per day. Creating or regenerating a goal waits on plan generation and can take a while.",
	}
	goal.AddCommand(goalCreateCmd())
	goal.AddCommand(goalListCmd())
	goal.AddCommand(goalShowCmd())
	goal.AddCommand(goalUpdateCmd())
	goal.AddCommand(goalDeleteCmd())
	goal.AddCommand(goalRegenerateCmd())
	return goal
}

func goalCreateCmd() *cobra.Command {
	var title, description string
	var duration int
	var hoursPerDay float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a goal with a generated plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w := flows.NewGoalWizard(a.Store, a.Session)
				if err := w.SetTitle(title); err != nil {
					return err
				}
				if description != "" {
					if err := w.SetDescription(description); err != nil {
						return err
					}
				}
				if err := w.SetSchedule(duration, hoursPerDay); err != nil {
					return err
				}
				fmt.Println("Generating plan...")
				g, err := w.Submit(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				fmt.Printf("Created goal %s: %q (%d days, %.1fh/day)\n", g.ID, g.Title, g.Duration, g.HoursPerDay)
				printPlan(g, nil)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "goal title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().IntVar(&duration, "duration", 30, "duration in days (1-365)")
	cmd.Flags().Float64Var(&hoursPerDay, "hours-per-day", 1, "planned hours per day")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func goalListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				goals, err := a.Store.RefreshGoals(ctx, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Days", "Hours/Day", "Created"})
				for _, g := range goals {
					tw.AppendRow(table.Row{g.ID, g.Title, g.Status, g.Duration, g.HoursPerDay, g.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, completed, abandoned)")
	return cmd
}

func goalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <goal-id>",
		Short: "Show a goal and its plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				g, err := a.Store.RefreshGoal(ctx, args[0])
				if err != nil {
					return err
				}
				if _, err := a.Store.RefreshProgress(ctx, g.ID); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				fmt.Printf("%s (%s)\n", g.Title, g.Status)
				if g.Description != "" {
					fmt.Println(g.Description)
				}
				fmt.Printf("%d days, %.1fh/day, %.0fh estimated total\n", g.Duration, g.HoursPerDay, g.EstimatedHours())
				printPlan(g, a.Store)
				return nil
			})
		},
	}
	return cmd
}

func printPlan(g domain.Goal, st planState) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Day", "Task", "Difficulty", "Est. Hours", "State"})
	for _, d := range g.Plan {
		state := ""
		if st != nil {
			switch {
			case dayCompleted(st, g.ID, d.Day):
				state = "completed"
			case st.IsDayUnlocked(g.ID, d.Day):
				state = "unlocked"
			default:
				state = "locked"
			}
		}
		if d.IsRestDay {
			state = strings.TrimSpace(state + " (rest)")
		}
		tw.AppendRow(table.Row{d.Day, d.Task, d.Difficulty, d.EstimatedHours, state})
	}
	tw.Render()
}

// planState is the slice of the store the plan printer needs.
type planState interface {
	IsDayUnlocked(goalID string, day int) bool
	ProgressForDay(goalID string, day int) (domain.Progress, bool)
}

func dayCompleted(st planState, goalID string, day int) bool {
	p, ok := st.ProgressForDay(goalID, day)
	return ok && p.Completed
}

func goalUpdateCmd() *cobra.Command {
	var title, description, status string
	cmd := &cobra.Command{
		Use:   "update <goal-id>",
		Short: "Update goal fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var upd gateway.GoalUpdate
				if cmd.Flags().Changed("title") {
					upd.Title = &title
				}
				if cmd.Flags().Changed("description") {
					upd.Description = &description
				}
				if cmd.Flags().Changed("status") {
					st, known := domain.NormalizeStatus(status)
					if !known {
						return fmt.Errorf("unknown status %q (active, completed, abandoned)", status)
					}
					upd.Status = &st
				}
				g, err := a.Store.UpdateGoal(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	return cmd
}

func goalDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <goal-id>",
		Short: "Delete a goal and all its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Store.DeleteGoal(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("Deleted.")
				return nil
			})
		},
	}
}

func goalRegenerateCmd() *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "regenerate <goal-id>",
		Short: "Regenerate the plan, keeping completed days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Store.RefreshProgress(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("Regenerating plan...")
				g, err := a.Store.Regenerate(ctx, args[0], feedback)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				printPlan(g, a.Store)
				return nil
			})
		},
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "what to change about the plan")
	return cmd
}

func trackCmd() *cobra.Command {
	var completed bool
	var comment string
	var hours float64
	cmd := &cobra.Command{
		Use:   "track <goal-id> <day>",
		Short: "Record a day's progress",
		Long:  "Records one day of a goal. A day unlocks only when the previous day is completed; resubmitting a day amends the existing record.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDay(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Store.RefreshGoal(ctx, args[0]); err != nil {
					return err
				}
				if _, err := a.Store.RefreshProgress(ctx, args[0]); err != nil {
					return err
				}
				flow, err := flows.NewTrackingFlow(a.Store, a.Session, args[0], day)
				if err != nil {
					return err
				}
				if err := flow.Open(); err != nil {
					return err
				}
				if err := flow.SetCompleted(completed); err != nil {
					return err
				}
				if cmd.Flags().Changed("comment") {
					if err := flow.SetComment(comment); err != nil {
						return err
					}
				}
				if cmd.Flags().Changed("hours") {
					if err := flow.SetHours(hours); err != nil {
						return err
					}
				}
				p, err := flow.Submit(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Day %d tracked. Streak: %d, completion: %d%%\n",
					p.Day, a.Store.CurrentStreak(args[0]), a.Store.CompletionRate(args[0]))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", true, "mark the day completed")
	cmd.Flags().StringVar(&comment, "comment", "", "how did it go")
	cmd.Flags().Float64Var(&hours, "hours", 0, "hours spent")
	return cmd
}

func parseDay(s string) (int, error) {
	var day int
	if _, err := fmt.Sscanf(s, "%d", &day); err != nil {
		return 0, fmt.Errorf("day must be a number, got %q", s)
	}
	return day, nil
}

func progressCmd() *cobra.Command {
	progress := &cobra.Command{Use: "progress", Short: "Inspect tracking records"}
	progress.AddCommand(progressListCmd())
	return progress
}

func progressListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <goal-id>",
		Short: "List a goal's tracking records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				records, err := a.Store.RefreshProgress(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Completed", "Hours", "Sentiment", "Comment", "Tracked At"})
				for _, p := range records {
					tw.AppendRow(table.Row{p.Day, p.Completed, fmtFloat(p.HoursSpent), fmtFloat(p.SentimentScore), p.Comment, p.Timestamp})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "stats <goal-id>",
		Short: "Show a goal's progress stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Store.RefreshGoal(ctx, args[0]); err != nil {
					return err
				}
				if _, err := a.Store.RefreshProgress(ctx, args[0]); err != nil {
					return err
				}
				var stats domain.ProgressStats
				if local {
					stats = a.Store.LocalStats(args[0])
				} else {
					if _, err := a.Store.RefreshStats(ctx, args[0]); err != nil {
						a.Logger.Warn().Err(err).Msg("server stats unavailable; computing locally")
					}
					stats = a.Store.Stats(args[0])
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("Days:       %d/%d completed (%d%%)\n", stats.CompletedDays, stats.TotalDays, stats.CompletionRate)
				fmt.Printf("Streak:     %d\n", stats.CurrentStreak)
				fmt.Printf("Sentiment:  %.2f\n", stats.AverageSentiment)
				fmt.Printf("Hours:      %.1f\n", stats.TotalHoursSpent)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "derive stats from the cache instead of asking the server")
	return cmd
}

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Dashboard across all goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				goals, err := a.Store.RefreshGoals(ctx, "")
				if err != nil {
					return err
				}
				for _, g := range goals {
					if _, err := a.Store.RefreshProgress(ctx, g.ID); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					out := make([]map[string]any, 0, len(goals))
					for _, g := range goals {
						out = append(out, map[string]any{
							"goal":            g,
							"completion_rate": a.Store.CompletionRate(g.ID),
							"streak":          a.Store.CurrentStreak(g.ID),
						})
					}
					return printJSON(map[string]any{
						"goals":              out,
						"global_streak":      a.Store.GlobalStreak(),
						"average_completion": a.Store.AverageCompletion(),
					})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Completion", "Streak", "Days Active"})
				for _, g := range goals {
					tw.AppendRow(table.Row{
						g.ID, g.Title, g.Status,
						fmt.Sprintf("%d%%", a.Store.CompletionRate(g.ID)),
						a.Store.CurrentStreak(g.ID),
						a.Store.DaysActive(g),
					})
				}
				tw.Render()
				fmt.Printf("Global streak: %d, average completion: %d%%\n",
					a.Store.GlobalStreak(), a.Store.AverageCompletion())
				return nil
			})
		},
	}
}

func insightCmd() *cobra.Command {
	insight := &cobra.Command{
		Use:   "insight",
		Short: "Weekly AI insights",
		Long:  "Insights analyze your tracked progress. Generation requires at least one completed day and can take a while.",
	}
	insight.AddCommand(insightGenerateCmd())
	insight.AddCommand(insightListCmd())
	insight.AddCommand(insightLatestCmd())
	return insight
}

func insightGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <goal-id>",
		Short: "Generate a fresh insight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Store.RefreshProgress(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("Analyzing progress...")
				ins, err := flows.GenerateInsight(ctx, a.Store, a.Session, args[0])
				if err != nil {
					return err
				}
				return printInsight(ins)
			})
		},
	}
}

func insightListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <goal-id>",
		Short: "List a goal's insights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Store.RefreshInsights(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Week", "Motivation", "Summary", "Generated"})
				for _, ins := range items {
					tw.AppendRow(table.Row{ins.WeekNumber, ins.MotivationLevel, truncate(ins.Summary, 60), ins.GeneratedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func insightLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <goal-id>",
		Short: "Show the most recent insight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ins, err := a.Store.LatestInsight(ctx, args[0])
				if err != nil {
					return err
				}
				return printInsight(ins)
			})
		},
	}
}

func printInsight(ins domain.Insight) error {
	if viper.GetBool("json") {
		return printJSON(ins)
	}
	fmt.Printf("Week %d (motivation %d/100)\n", ins.WeekNumber, ins.MotivationLevel)
	fmt.Println(ins.Summary)
	for _, h := range ins.Highlights {
		fmt.Println("  +", h)
	}
	for _, b := range ins.Blockers {
		fmt.Println("  -", b)
	}
	for _, r := range ins.Recommendations {
		fmt.Println("  >", r)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func reportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "report <goal-id>",
		Short: "Download the goal's PDF report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rep, err := a.Store.FetchReport(ctx, args[0])
				if err != nil {
					return err
				}
				dest := out
				if dest == "" {
					dest = rep.Filename
				}
				if err := os.WriteFile(dest, rep.Data, 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s (%d bytes)\n", dest, len(rep.Data))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination path (default: server-supplied filename)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default aivora.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func devCmd() *cobra.Command {
	dev := &cobra.Command{Use: "dev", Short: "Development helpers"}
	dev.AddCommand(devServeCmd())
	return dev
}

func devServeCmd() *cobra.Command {
	var addr, basePath, secret string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory stub backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := stub.New(stub.Config{JWTSecret: secret, BasePath: basePath})
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving stub Aivora API on http://%s%s\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:5000", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "token signing secret (default: dev secret)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.New(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		APIURL:    viper.GetString("api-url"),
		Verbose:   viper.GetBool("verbose"),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := fn(ctx, a); err != nil {
		if errors.Is(err, session.ErrNotAuthenticated) {
			return fmt.Errorf("%w (run 'aivora login')", err)
		}
		return err
	}
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *f)
}
