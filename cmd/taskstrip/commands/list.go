package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List taskbar applications",
	Long: `List the applications a taskbar would show, favorites first, with
their windows.

This command connects to the X11 server, indexes the current session once
and prints the result.`,
	Example: `  # List applications in table format (default)
  taskstrip list

  # List applications in JSON format
  taskstrip list --format json

  # List only one application
  taskstrip list --app firefox

  # List applications on the current workspace
  taskstrip list --current`,
	RunE: runList,
}

var (
	listFormat  string
	listApp     string
	listCurrent bool
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().StringVarP(&listApp, "app", "a", "", "show only this application")
	listCmd.Flags().BoolVarP(&listCurrent, "current", "c", false, "show only the current workspace")
}

type listEntry struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Favorite bool     `json:"favorite"`
	Windows  []uint32 `json:"windows"`
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	loop := scheduler.New()
	desk, _, err := e.openHost(loop)
	if err != nil {
		return err
	}
	svc := taskbar.NewService(loop, desk, e.storage, e.catalog, taskbar.Options{
		FavoritesEnabled: e.cfg.FavoritesEnabled,
	})

	// nothing else drives the loop, so a flush indexes the whole session
	client := svc.Attach(host.AppID(listApp), nil)
	defer client.Detach()
	loop.Flush()

	favorites := make(map[host.AppID]bool)
	for _, app := range client.Favorites() {
		favorites[app] = true
	}
	windows := make(map[host.AppID][]uint32)
	for _, win := range client.Windows(listCurrent, false) {
		if app, ok := svc.Index().ApplicationOf(win); ok {
			windows[app] = append(windows[app], uint32(win))
		}
	}

	entries := make([]listEntry, 0)
	for _, app := range client.Applications(listCurrent) {
		entry := listEntry{
			ID:       string(app),
			Favorite: favorites[app],
			Windows:  windows[app],
		}
		if info, ok := e.catalog.Lookup(app); ok {
			entry.Name = info.Name
		}
		if entry.Windows == nil {
			entry.Windows = []uint32{}
		}
		entries = append(entries, entry)
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "table":
		return printTable(entries)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}
}

func printTable(entries []listEntry) error {
	if len(entries) == 0 {
		fmt.Println("No applications found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "APPLICATION\tNAME\tFAVORITE\tWINDOWS")
	fmt.Fprintln(w, "-----------\t----\t--------\t-------")
	for _, entry := range entries {
		fav := ""
		if entry.Favorite {
			fav = "yes"
		}
		wins := make([]string, 0, len(entry.Windows))
		for _, win := range entry.Windows {
			wins = append(wins, fmt.Sprintf("0x%x", win))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.ID, entry.Name, fav, strings.Join(wins, " "))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nTotal: %d applications\n", len(entries))
	return nil
}
