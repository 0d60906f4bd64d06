package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lien-Gu/jjcrawler/internal/app"
	"github.com/lien-Gu/jjcrawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand: a one-shot crawl of the
// named pages (or every configured page) that prints a result summary.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl [page-id...]",
		Short: "Crawl the given pages once and print the results",
		RunE:  runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer a.Close()

	pages := cfg.Crawler.Pages
	if len(args) > 0 {
		pages = pages[:0:0]
		for _, id := range args {
			found := false
			for _, page := range cfg.Crawler.Pages {
				if page.ID == id {
					pages = append(pages, page)
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("page %q is not configured", id)
			}
		}
	}
	if len(pages) == 0 {
		return fmt.Errorf("no pages configured")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	var failed int
	for _, page := range pages {
		taskID, err := a.IDGen.NewID()
		if err != nil {
			return fmt.Errorf("generate task id: %w", err)
		}
		task := crawler.PageTask{TaskID: taskID, PageID: page.ID, Channel: page.Channel}
		result, err := a.Orchestrator.CrawlPage(cmd.Context(), task)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "page %s failed: %v\n", page.ID, err)
			continue
		}
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d page(s) failed", failed)
	}
	return nil
}
