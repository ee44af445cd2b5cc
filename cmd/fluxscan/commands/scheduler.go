package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/fluxscan/internal/scheduler"
	"github.com/wonny/fluxscan/internal/scheduler/jobs"
	"github.com/wonny/fluxscan/internal/service"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run or inspect the background job scheduler",
	Long: `Start the scheduler daemon or manage its jobs.

Subcommands:
  start   - start the scheduler
  list    - list registered jobs
  run     - run one job now

Example:
  go run ./cmd/fluxscan scheduler start
  go run ./cmd/fluxscan scheduler list
  go run ./cmd/fluxscan scheduler run result_cleanup`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Start the scheduler and register every job.

Registered jobs:
- scheduled_scans: every minute (runs due scan schedules)
- result_cleanup: daily at 02:00 (drops results past RESULT_RETENTION_DAYS)
- cache_cleanup: every 5 minutes (drops expired series)

Stop the scheduler with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{requireDB: true})
	if err != nil {
		return err
	}
	defer a.close()

	sched, runs, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	PrintSuccess("Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for name, st := range sched.GetJobStats() {
		PrintKeyValue(name, st.Schedule, 16)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	_ = runs.Shutdown(cmd.Context())
	fmt.Println("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	sched, _, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()
	widths := []int{18, 20}
	PrintTableHeader([]string{"JOB", "SCHEDULE"}, widths)
	for _, name := range sched.GetAllJobs() {
		PrintTableRow([]string{name, stats[name].Schedule}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	sched, _, err := initScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", args[0])
	res, err := sched.RunJob(args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !res.Success {
		PrintError(fmt.Sprintf("%s failed after %s: %s", res.JobName, res.Duration, res.Error))
		return fmt.Errorf("job %s failed", res.JobName)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s", res.JobName, res.Duration))
	return nil
}

func initScheduler(a *app) (*scheduler.Scheduler, *service.RunRegistry, error) {
	runs := a.runs(nil)
	sched := scheduler.New(a.log, scheduler.WithLocation(a.location))

	for _, job := range []scheduler.Job{
		jobs.NewScheduledScanJob(a.stores.schedules, runs, a.location, a.log),
		jobs.NewResultCleanupJob(a.stores.results, a.cfg.Schedule.ResultRetentionDays, a.log),
		jobs.NewCacheCleanupJob(a.provider, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, nil, err
		}
	}
	return sched, runs, nil
}
