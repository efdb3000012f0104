package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/chatcore/internal/models"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List models offered by configured providers",
	Long: `List the models each configured provider offers right now. An
unreachable provider shows no models rather than failing the command.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runModels,
}

var checkCmd = &cobra.Command{
	Use:   "check <provider>",
	Short: "Probe a provider's credentials with its first configured model",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var configs []models.ProviderConfig
	if len(args) == 1 {
		p, ok := a.Registry.Config(args[0])
		if !ok {
			return fmt.Errorf("unknown provider %q", args[0])
		}
		configs = []models.ProviderConfig{p}
	} else {
		configs = a.Registry.Configs()
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)
	dim := color.New(color.Faint)

	_, _ = fmt.Fprintln(tw, bold.Sprint("PROVIDER")+"\t"+bold.Sprint("MODEL")+"\t"+bold.Sprint("NAME"))
	for _, cfg := range configs {
		p, err := a.Registry.Get(cfg.ID)
		if err != nil {
			return err
		}
		list := p.Models(ctx)
		if len(list) == 0 {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t\n", cfg.ID, dim.Sprint("(none)"))
			continue
		}
		for _, m := range list {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", cfg.ID, m.ID, m.Name)
		}
	}
	return tw.Flush()
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Registry.Get(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	ok, err := p.Check(ctx)
	if err != nil || !ok {
		_, _ = fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed).Sprint("FAIL"), p.ID())
		if err == nil {
			err = fmt.Errorf("provider %s returned no output", p.ID())
		}
		return err
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", color.New(color.FgGreen).Sprint("OK"), p.ID())
	return nil
}
