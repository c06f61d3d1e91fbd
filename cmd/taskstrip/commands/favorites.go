package commands

import (
	"fmt"
	"strconv"

	"github.com/bryanchriswhite/taskstrip/internal/favorites"
	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/spf13/cobra"
)

var favoritesCmd = &cobra.Command{
	Use:     "favorites",
	Aliases: []string{"fav"},
	Short:   "Manage pinned applications",
	Long: `List and edit the ordered list of pinned applications.

Edits are written to the configured settings backend; a running server
picks them up and notifies its clients.`,
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pinned applications in order",
	Args:  cobra.NoArgs,
	RunE:  runFavoritesList,
}

var favoritesPinCmd = &cobra.Command{
	Use:   "pin APP_ID",
	Short: "Pin an application",
	Example: `  # Pin by desktop file id
  taskstrip favorites pin firefox`,
	Args: cobra.ExactArgs(1),
	RunE: runFavoritesPin,
}

var favoritesUnpinCmd = &cobra.Command{
	Use:   "unpin APP_ID",
	Short: "Unpin an application",
	Args:  cobra.ExactArgs(1),
	RunE:  runFavoritesUnpin,
}

var favoritesMoveCmd = &cobra.Command{
	Use:   "move APP_ID POSITION",
	Short: "Move a pinned application to a position",
	Example: `  # Make firefox the first favorite
  taskstrip favorites move firefox 0`,
	Args: cobra.ExactArgs(2),
	RunE: runFavoritesMove,
}

func init() {
	rootCmd.AddCommand(favoritesCmd)
	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesPinCmd)
	favoritesCmd.AddCommand(favoritesUnpinCmd)
	favoritesCmd.AddCommand(favoritesMoveCmd)
}

// withFavorites opens the store and runs fn against it. Pins are not
// filtered by the catalog here so uninstalled ids can still be removed.
func withFavorites(fn func(*favorites.Store) error) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.Close()

	store := favorites.New(e.storage, nil, e.cfg.FavoritesEnabled, nil)
	if !store.Enabled() {
		return fmt.Errorf("favorites are disabled (set favorites_enabled to true)")
	}
	return fn(store)
}

func runFavoritesList(cmd *cobra.Command, args []string) error {
	return withFavorites(func(store *favorites.Store) error {
		list := store.List()
		if len(list) == 0 {
			fmt.Println("No favorites.")
			return nil
		}
		for i, app := range list {
			fmt.Printf("%d. %s\n", i, app)
		}
		return nil
	})
}

func runFavoritesPin(cmd *cobra.Command, args []string) error {
	return withFavorites(func(store *favorites.Store) error {
		if err := store.Pin(host.AppID(args[0])); err != nil {
			return err
		}
		fmt.Printf("✅ Pinned: %s\n", args[0])
		return nil
	})
}

func runFavoritesUnpin(cmd *cobra.Command, args []string) error {
	return withFavorites(func(store *favorites.Store) error {
		if err := store.Unpin(host.AppID(args[0])); err != nil {
			return err
		}
		fmt.Printf("✅ Unpinned: %s\n", args[0])
		return nil
	})
}

func runFavoritesMove(cmd *cobra.Command, args []string) error {
	pos, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid position: %s", args[1])
	}
	return withFavorites(func(store *favorites.Store) error {
		if err := store.Move(host.AppID(args[0]), pos); err != nil {
			return err
		}
		fmt.Printf("✅ Moved %s to position %d\n", args[0], pos)
		return nil
	})
}
