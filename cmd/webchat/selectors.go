package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"webchat/internal/browser"
	"webchat/internal/detect"
	"webchat/internal/site"

	"github.com/spf13/cobra"
)

func selectorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selectors",
		Short: "Inspect site selector rules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known site profiles and their response rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			reg, err := site.LoadRegistry(cfg.Site.ProfilesDir, logger)
			if err != nil {
				return err
			}
			for _, name := range reg.Names() {
				prof, _ := reg.Get(name)
				fmt.Printf("%s  %s\n", name, prof.URL)
				for i, r := range prof.Rules {
					fmt.Printf("  %d. %-20s %s\n", i+1, r.Name, r.Selector)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "test [file.html]",
		Short: "Run the configured response rules against a saved page",
		Long: `Loads an HTML file saved from the chat site (e.g. "Save page as") and reports,
rule by rule, how many response elements match, the text the detector would
read from the newest one, and what the page-text fallback would return.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			prof, err := resolveProfile(cfg)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			page, err := browser.NewStaticPage(f, prof.Rules, logger)
			if err != nil {
				return err
			}
			ctx := context.Background()

			fmt.Printf("Site %s, %d rules\n\n", prof.Name, len(prof.Rules))
			for _, res := range page.Rules(ctx) {
				if res.Err != nil {
					printFail(res.Rule.Name, res.Err.Error())
					continue
				}
				if len(res.Elements) == 0 {
					printWarn(res.Rule.Name, "no matches for "+res.Rule.Selector)
					continue
				}
				printPass(res.Rule.Name, fmt.Sprintf("%d match(es) for %s", len(res.Elements), res.Rule.Selector))
			}

			snap, err := page.Snapshot(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\nSnapshot: %d element(s)\n", len(snap))
			if newest := snap.Newest(); newest != nil {
				text, err := newest.Text(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Newest response:\n%s\n", indent(text))
			}

			fb := detect.Extract(ctx, page, cfg.Detect.FallbackMinLine)
			fmt.Printf("\nFallback (%s): %s\n", fb.Kind, fb.Text)
			return nil
		},
	})

	return cmd
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
