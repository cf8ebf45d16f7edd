// Command studio is a headless editor for the design service: it opens designs, renders page
// previews and pushes drafts left behind by failed saves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"design-studio/internal/canvas"
	"design-studio/internal/config"
	"design-studio/internal/dataurl"
	"design-studio/internal/designclient"
	"design-studio/internal/drafts"
	applog "design-studio/internal/log"
	"design-studio/internal/studio"

	"github.com/joho/godotenv"
)

const usage = `usage: studio <command> [flags]

commands:
  open     -id ID              load a design and print its pages
  previews -id ID -out DIR     write a JPEG preview of every page
  drafts                       list designs with an unsaved local draft
  recover  -id ID|new          restore the local draft of a design and save it
`

func main() {
	_ = godotenv.Load()
	settings, err := config.Load()
	applog.Init(applog.Options{Level: settings.Logging.Level, Format: settings.Logging.Format, File: settings.Logging.File})
	if err != nil {
		exit(err)
	}
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	id := fs.String("id", "", "design id")
	out := fs.String("out", "previews", "output directory")
	fs.Parse(args)

	switch cmd {
	case "open":
		err = openDesign(ctx, settings.Editor, *id)
	case "previews":
		err = writePreviews(ctx, settings.Editor, *id, *out)
	case "drafts":
		err = listDrafts(ctx, settings.Editor)
	case "recover":
		err = recoverDraft(ctx, settings.Editor, *id)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		exit(err)
	}
}

func exit(err error) {
	applog.L().Error("studio failed", "error", err)
	os.Exit(1)
}

func draftsPath(cfg config.EditorSettings) (string, error) {
	if cfg.DraftsPath != "" {
		return cfg.DraftsPath, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "design-studio", "drafts.db"), nil
}

// newSession builds an editor session from settings. The journal may be nil.
func newSession(cfg config.EditorSettings, journal *drafts.Store) *studio.Session {
	opts := studio.Options{
		API: designclient.New(cfg.APIBaseURL, cfg.RequestTimeout),
		Retry: studio.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		},
		Preview:          canvas.ThumbnailOptions{MaxEdge: cfg.ThumbnailMaxEdge, Quality: cfg.ThumbnailQuality},
		AutosaveDebounce: cfg.AutosaveDebounce,
		AutosaveInterval: cfg.AutosaveInterval,
	}
	if journal != nil {
		opts.Drafts = journal
	}
	return studio.NewSession(opts)
}

func requireID(id string) error {
	if id == "" {
		return errors.New("-id is required")
	}
	return nil
}

func openDesign(ctx context.Context, cfg config.EditorSettings, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	s := newSession(cfg, nil)
	defer s.Close()
	if err := s.Load(ctx, id); err != nil {
		return err
	}
	st := s.State()
	fmt.Printf("%s  %q  %dx%d\n", st.DesignID, st.Name, st.Width, st.Height)
	for i, p := range st.Pages {
		marker := " "
		if i == st.ActivePageIndex {
			marker = "*"
		}
		fmt.Printf("%s page %d  %s  %dx%d\n", marker, i+1, p.ID, p.Width, p.Height)
	}
	for _, l := range st.Layers {
		fmt.Printf("    layer %s %s\n", l.Type, l.Name)
	}
	return nil
}

func writePreviews(ctx context.Context, cfg config.EditorSettings, id, dir string) error {
	if err := requireID(id); err != nil {
		return err
	}
	s := newSession(cfg, nil)
	defer s.Close()
	if err := s.Load(ctx, id); err != nil {
		return err
	}
	pages, err := s.PagePreviews(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for i, p := range pages {
		_, data, err := dataurl.Decode(*p.ThumbnailDataURL)
		if err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		name := filepath.Join(dir, fmt.Sprintf("%s-page-%d.jpg", id, i+1))
		if err := os.WriteFile(name, data, 0644); err != nil {
			return err
		}
		fmt.Println(name)
	}
	return nil
}

func openJournal(cfg config.EditorSettings) (*drafts.Store, error) {
	path, err := draftsPath(cfg)
	if err != nil {
		return nil, err
	}
	return drafts.Open(path)
}

func listDrafts(ctx context.Context, cfg config.EditorSettings) error {
	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()
	keys, err := journal.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		d, err := journal.Get(ctx, k)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %d bytes\n", k, d.SavedAt.Format("2006-01-02 15:04:05"), len(d.Payload))
	}
	return nil
}

func recoverDraft(ctx context.Context, cfg config.EditorSettings, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer journal.Close()

	s := newSession(cfg, journal)
	defer s.Close()
	if id != drafts.NewDesignKey {
		if err := s.Load(ctx, id); err != nil {
			return err
		}
	}
	ok, err := s.RecoverDraft(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no draft for", id)
		return nil
	}
	res := s.RequestSave(ctx, studio.TriggerManual)
	if res.Outcome != studio.Saved {
		return fmt.Errorf("save: %s", res)
	}
	fmt.Println("saved", res.DesignID)
	return nil
}
