package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect and release stored attachments",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored attachments with their reference counts",
	Args:  cobra.NoArgs,
	RunE:  runFilesList,
}

var filesReleaseCmd = &cobra.Command{
	Use:   "release <id>...",
	Short: "Drop one reference from each attachment",
	Long: `Drop one reference from each attachment. An attachment whose count
reaches zero is deleted from disk.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFilesRelease,
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesReleaseCmd)
}

func runFilesList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.Files.ListAll(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)
	_, _ = fmt.Fprintln(tw, bold.Sprint("ID")+"\t"+bold.Sprint("NAME")+"\t"+bold.Sprint("TYPE")+"\t"+bold.Sprint("SIZE")+"\t"+bold.Sprint("REFS"))
	for _, f := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", f.ID[:min(12, len(f.ID))], f.Name, f.Type, humanize.Bytes(uint64(f.Size)), f.Count)
	}
	return tw.Flush()
}

func runFilesRelease(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Files.ReleaseMany(ctx, args); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "released %d attachment(s)\n", len(args))
	return nil
}
