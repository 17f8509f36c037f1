package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"porter/internal/api"
	"porter/internal/ipc"
	"porter/internal/textutil"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Register and inspect promotion projects",
	}

	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectRetryCommand(ctx))

	return projectCmd
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "create <manifest.json>",
		Short: "Submit a project manifest (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := readManifest(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProjectCreate(manifest)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Project %d registered: %s (%s)\n",
					resp.Project.ID, resp.Project.ProjectPath,
					textutil.DisplayTitle(resp.Project.Experience, resp.Project.Experience))
				fmt.Fprintf(out, "Processing batches: %d, copy batches: %d\n",
					resp.ProcessingBatches, resp.NonProcessingCount)
				return nil
			})
		},
	}
}

func readManifest(stdin io.Reader, arg string) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read manifest from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return data, nil
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProjectList(listStatuses)
				if err != nil {
					return err
				}
				if len(resp.Projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects found")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Path", "Experience", "Status", "Created"},
					buildProjectRows(resp.Projects),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by project status (repeatable)")
	return cmd
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its batches and journals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProjectDescribe(id)
				if err != nil {
					return err
				}
				printProjectDetail(cmd.OutOrStdout(), resp)
				return nil
			})
		},
	}
}

func newProjectRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Resume a paused project from the stage it stopped at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProjectID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ProjectRetry(id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Resumed {
					fmt.Fprintf(out, "Project %d resumed (status: %s)\n", id, textutil.StatusLabel(resp.Status))
				} else {
					fmt.Fprintf(out, "Project %d is not paused (status: %s)\n", id, textutil.StatusLabel(resp.Status))
				}
				return nil
			})
		},
	}
}

func parseProjectID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid project id %q", arg)
	}
	return id, nil
}

func buildProjectRows(projects []api.Project) [][]string {
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{
			strconv.FormatInt(p.ID, 10),
			p.ProjectPath,
			textutil.DisplayTitle(p.Experience, p.Experience),
			textutil.StatusLabel(p.Status),
			p.CreatedAt,
		})
	}
	return rows
}

func printProjectDetail(out io.Writer, resp *ipc.ProjectDescribeResponse) {
	p := resp.Project
	fmt.Fprintf(out, "Project %d: %s\n", p.ID, p.ProjectPath)
	fmt.Fprintf(out, "  Experience: %s\n", textutil.DisplayTitle(p.Experience, p.Experience))
	fmt.Fprintf(out, "  Status:     %s\n", textutil.StatusLabel(p.Status))
	if p.PausedFrom != "" {
		fmt.Fprintf(out, "  Paused from: %s\n", textutil.StatusLabel(p.PausedFrom))
	}
	if len(p.Params) > 0 {
		fmt.Fprintf(out, "  Params:\n")
		for key, value := range p.Params {
			fmt.Fprintf(out, "    %s = %s\n", key, value)
		}
	}
	fmt.Fprintln(out)

	if len(resp.Batches) > 0 {
		rows := make([][]string, 0, len(resp.Batches))
		for _, b := range resp.Batches {
			rows = append(rows, []string{
				b.Name,
				b.Group,
				textutil.StatusLabel(b.Status),
				strconv.Itoa(b.Items),
				b.ClaimedAt,
			})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Batch", "Group", "Status", "Items", "Claimed"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(resp.Tracking) > 0 {
		rows := make([][]string, 0, len(resp.Tracking))
		for _, entry := range resp.Tracking {
			rows = append(rows, []string{entry.FilePath, entry.PreviewStatus, entry.ResourcePath})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Promoted Path", "Preview", "Resource"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft},
		))
	}

	if len(resp.Retries) > 0 {
		rows := make([][]string, 0, len(resp.Retries))
		for _, entry := range resp.Retries {
			rows = append(rows, []string{
				entry.Stage,
				entry.Path,
				strconv.Itoa(entry.Attempt),
				textutil.Truncate(entry.ErrorMessage, 60),
			})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Stage", "Path", "Attempt", "Error"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(resp.Audit) > 0 {
		rows := make([][]string, 0, len(resp.Audit))
		for _, entry := range resp.Audit {
			rows = append(rows, []string{
				entry.CreatedAt,
				entry.Stage,
				entry.Level,
				textutil.Truncate(entry.Message, 72),
			})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Time", "Stage", "Level", "Message"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
		))
	}
}
