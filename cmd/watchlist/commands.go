package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/client"
	"github.com/mikahagenbeek692/MovieManager/internal/events"
	"github.com/mikahagenbeek692/MovieManager/internal/model"
)

var (
	errNotLoggedIn = errors.New("not logged in, run: watchlist login <username>")
	errUnresolved  = errors.New("unsaved changes from your last session: run 'watchlist restore' or 'watchlist discard'")
)

type command struct {
	name  string
	usage string
	help  string
	nargs int
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"register", "register <user> <email>", "create an account", 2, cmdRegister},
	{"login", "login <user>", "log in (password from prompt or MOVIEMANAGER_PASSWORD)", 1, cmdLogin},
	{"logout", "logout", "log out and clear local state", 0, cmdLogout},
	{"show", "show", "print the watchlist", 0, cmdShow},
	{"add", "add <movieID>", "add a movie", 1, cmdAdd},
	{"remove", "remove <movieID>", "remove a movie", 1, mutation((*client.Mirror).Remove)},
	{"watched", "watched <movieID>", "toggle watched", 1, mutation((*client.Mirror).ToggleWatched)},
	{"favorite", "favorite <movieID>", "toggle favorite", 1, mutation((*client.Mirror).ToggleFavorite)},
	{"undo", "undo", "revert the last change", 0, cmdUndo},
	{"save", "save", "save the watchlist to the server", 0, cmdSave},
	{"restore", "restore", "keep the unsaved changes found at login", 0, cmdRestore},
	{"discard", "discard", "drop them and load the server's watchlist", 0, cmdDiscard},
	{"recommend", "recommend", "show recommended movies", 0, cmdRecommend},
	{"listen", "listen", "follow login, logout and save events", 0, cmdListen},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// app is everything a command needs, built once per invocation.
type app struct {
	store   client.Storage
	session *client.Session
	api     *client.APIClient
	saver   *client.Saver
	stdin   *bufio.Reader
	out     io.Writer
	logger  *slog.Logger
}

func newApp(serverURL, dir string, stdin io.Reader, out io.Writer, logger *slog.Logger) (*app, error) {
	if dir == "" {
		var err error
		if dir, err = client.DefaultDir(); err != nil {
			return nil, err
		}
	}
	store, err := client.NewFileStorage(dir)
	if err != nil {
		return nil, err
	}
	session, err := client.LoadSession(store)
	if err != nil {
		return nil, err
	}
	api, err := client.NewAPIClient(serverURL, session, store)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:   store,
		session: session,
		api:     api,
		saver:   client.NewSaver(api, store),
		stdin:   bufio.NewReader(stdin),
		out:     out,
		logger:  logger,
	}
	// Recommendations are derived from the saved list.
	a.saver.OnSaved(func(username string, _ *model.SaveResult) {
		if err := a.refreshRecommendations(context.Background(), username); err != nil {
			logger.Warn("refreshing recommendations", slog.String("error", err.Error()))
		}
	})
	return a, nil
}

// reconcile loads the logged-in user's mirror. Unless allowUnresolved is
// set, a pending restore/discard choice stops the command.
func (a *app) reconcile(ctx context.Context, allowUnresolved bool) (*client.Reconciliation, error) {
	username, _ := a.session.Current()
	if username == "" {
		return nil, errNotLoggedIn
	}
	rc, err := client.NewReconciler(a.store, a.api).Begin(ctx, username)
	if err != nil {
		return nil, err
	}
	if rc.State == client.Unresolved && !allowUnresolved {
		fmt.Fprintln(a.out, "Unsaved changes detected from your last session:")
		a.printList(rc.Mirror)
		return nil, errUnresolved
	}
	return rc, nil
}

func (a *app) mirror(ctx context.Context) (*client.Mirror, error) {
	rc, err := a.reconcile(ctx, false)
	if err != nil {
		return nil, err
	}
	return rc.Mirror, nil
}

func (a *app) password() (string, error) {
	if p := os.Getenv("MOVIEMANAGER_PASSWORD"); p != "" {
		return p, nil
	}
	fmt.Fprint(a.out, "Password: ")
	line, err := a.stdin.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) refreshRecommendations(ctx context.Context, username string) error {
	ids, err := a.api.Recommendations(ctx)
	if err != nil {
		return err
	}
	m, err := client.LoadMirror(a.store, username)
	if err != nil {
		return err
	}
	return m.SetRecommendations(ids)
}

func (a *app) printList(m *client.Mirror) {
	items := m.Items()
	status := "saved"
	if m.Dirty() {
		status = "unsaved changes"
	}
	fmt.Fprintf(a.out, "%s's watchlist: %d movies, %s", m.Username(), len(items), status)
	if n := m.UndoDepth(); n > 0 {
		fmt.Fprintf(a.out, ", %d undoable", n)
	}
	fmt.Fprintln(a.out)

	for _, it := range items {
		marks := []byte("--")
		if it.Watched {
			marks[0] = 'W'
		}
		if it.Favorite {
			marks[1] = 'F'
		}
		fmt.Fprintf(a.out, "  %5d  %s  %s (%d)  %s\n", it.ID, marks, it.Title, it.ReleaseYear, it.Genre)
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid movie id %q", arg)
	}
	return id, nil
}

// =============================================================================
// Commands
// =============================================================================

func cmdRegister(ctx context.Context, a *app, args []string) error {
	pw, err := a.password()
	if err != nil {
		return err
	}
	if err := a.api.Register(ctx, args[0], pw, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "User registered successfully. Log in with: watchlist login %s\n", args[0])
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	pw, err := a.password()
	if err != nil {
		return err
	}
	if err := a.api.Login(ctx, args[0], pw); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && errors.Is(err, apperror.ErrRateLimited) {
			return fmt.Errorf("too many login attempts, try again in %d seconds",
				apperror.RetryAfterSeconds(appErr.RetryAfter))
		}
		return err
	}
	username, _ := a.session.Current()
	fmt.Fprintf(a.out, "Logged in as %s.\n", username)

	rc, err := a.reconcile(ctx, true)
	if err != nil {
		return err
	}
	if rc.State == client.Unresolved {
		fmt.Fprintln(a.out, "We found unsaved changes from your last session:")
		a.printList(rc.Mirror)
		fmt.Fprintln(a.out, "Run 'watchlist restore' to keep them or 'watchlist discard' to load from the server.")
		return nil
	}
	a.printList(rc.Mirror)
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.api.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func cmdShow(ctx context.Context, a *app, _ []string) error {
	m, err := a.mirror(ctx)
	if err != nil {
		return err
	}
	a.printList(m)
	return nil
}

func cmdAdd(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	m, err := a.mirror(ctx)
	if err != nil {
		return err
	}

	movies, err := a.api.Movies(ctx)
	if err != nil {
		return err
	}
	var movie *model.Movie
	for i := range movies {
		if movies[i].ID == id {
			movie = &movies[i]
			break
		}
	}
	if movie == nil {
		return fmt.Errorf("movie %d is not in the catalog", id)
	}

	if err := m.Add(*movie); err != nil {
		if errors.Is(err, client.ErrAlreadyInList) {
			fmt.Fprintf(a.out, "%s is already in your watchlist.\n", movie.Title)
			return nil
		}
		return err
	}
	a.printList(m)
	return nil
}

// mutation adapts a Mirror method taking a movie id into a command.
func mutation(fn func(m *client.Mirror, movieID int64) error) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		m, err := a.mirror(ctx)
		if err != nil {
			return err
		}
		if err := fn(m, id); err != nil {
			return err
		}
		a.printList(m)
		return nil
	}
}

func cmdUndo(ctx context.Context, a *app, _ []string) error {
	m, err := a.mirror(ctx)
	if err != nil {
		return err
	}
	undone, err := m.Undo()
	if err != nil {
		return err
	}
	if !undone {
		fmt.Fprintln(a.out, "Nothing to undo.")
		return nil
	}
	a.printList(m)
	return nil
}

func cmdSave(ctx context.Context, a *app, _ []string) error {
	m, err := a.mirror(ctx)
	if err != nil {
		return err
	}
	res, err := a.saver.Save(ctx, m)
	if err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return fmt.Errorf("%w\nyour changes are kept; run 'watchlist discard' after logging in again to load the newer list", err)
		}
		return err
	}
	fmt.Fprintln(a.out, "Your watchlist was successfully saved!")
	if res.FavoriteGenres != "" {
		fmt.Fprintf(a.out, "Favorite genres: %s\n", res.FavoriteGenres)
	}
	return nil
}

func cmdRestore(ctx context.Context, a *app, _ []string) error {
	rc, err := a.reconcile(ctx, true)
	if err != nil {
		return err
	}
	if err := rc.Restore(); err != nil {
		if errors.Is(err, client.ErrAlreadyResolved) {
			fmt.Fprintln(a.out, "Nothing to restore.")
			return nil
		}
		return err
	}
	a.printList(rc.Mirror)
	return nil
}

func cmdDiscard(ctx context.Context, a *app, _ []string) error {
	rc, err := a.reconcile(ctx, true)
	if err != nil {
		return err
	}
	if err := rc.Discard(ctx); err != nil {
		if errors.Is(err, client.ErrAlreadyResolved) {
			fmt.Fprintln(a.out, "Nothing to discard.")
			return nil
		}
		return err
	}
	a.printList(rc.Mirror)
	return nil
}

func cmdRecommend(ctx context.Context, a *app, _ []string) error {
	username, _ := a.session.Current()
	if username == "" {
		return errNotLoggedIn
	}
	if err := a.refreshRecommendations(ctx, username); err != nil {
		return err
	}
	m, err := client.LoadMirror(a.store, username)
	if err != nil {
		return err
	}
	movies, err := a.api.Movies(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int64]model.Movie, len(movies))
	for _, mv := range movies {
		byID[mv.ID] = mv
	}

	fmt.Fprintln(a.out, "Recommended for you:")
	for _, id := range m.Recommendations() {
		mv := byID[id]
		fmt.Fprintf(a.out, "  %5d  %s (%d)  %.1f  %s\n", id, mv.Title, mv.ReleaseYear, mv.Rating, mv.Genre)
	}
	return nil
}

func cmdListen(ctx context.Context, a *app, _ []string) error {
	l, err := client.NewListener(a.api, a.logger)
	if err != nil {
		return err
	}
	l.OnEvent = func(ctx context.Context, e events.Event) {
		username, _ := a.session.Current()
		switch e.Type {
		case events.TypeLogin, events.TypeLogout:
			if username == "" {
				fmt.Fprintf(a.out, "%s: now logged out\n", e.Type)
			} else {
				fmt.Fprintf(a.out, "%s: now logged in as %s\n", e.Type, username)
			}
		case events.TypeWatchlistSaved:
			fmt.Fprintf(a.out, "watchlist of %s saved\n", e.Username)
			if username != "" && e.Username == username {
				if err := a.refreshRecommendations(ctx, username); err != nil {
					a.logger.Warn("refreshing recommendations", slog.String("error", err.Error()))
				}
			}
		}
	}

	fmt.Fprintln(a.out, "Listening for events, Ctrl-C to stop.")
	return l.Listen(ctx)
}
