package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/metcalfc/folio/internal/content"
	"github.com/metcalfc/folio/internal/reader"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func bookArg(c *cli.Context) (string, error) {
	id := strings.TrimSpace(c.Args().First())
	if id == "" {
		return "", errors.New("missing BOOK_ID")
	}
	return id, nil
}

func readBook(c *cli.Context, a *app) error {
	id, err := bookArg(c)
	if err != nil {
		return err
	}
	if _, err := a.catalog.Book(id); err != nil {
		return err
	}
	return runUI(a, id, c.Bool("preview"), c.Bool("fresh"))
}

func listBooks(c *cli.Context, a *app) error {
	books, err := a.catalog.Books()
	if err != nil {
		return err
	}
	owned := map[string]bool{}
	if u, err := a.currentUser(); err != nil {
		return err
	} else if u != nil {
		if owned, err = a.catalog.PurchasedIDs(u.ID); err != nil {
			return err
		}
	}

	tr := a.translator()
	currency := a.settings.Get().Currency
	now := time.Now()

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("ID", "TITLE", "AUTHOR", "KIND", "PRICE", "")
	for _, b := range books {
		var status []string
		if owned[b.ID] {
			status = append(status, tr.T("purchased", nil))
		}
		if b.OnSale(now) {
			status = append(status, tr.T("on_sale", nil))
		}
		t.Row(b.ID, b.Title, b.Author, content.Kind(b.Source()),
			tr.Money(b.PriceAt(now), currency), strings.Join(status, " "))
	}
	fmt.Fprintln(c.App.Writer, t.Render())
	return nil
}

func buyBook(c *cli.Context, a *app) error {
	id, err := bookArg(c)
	if err != nil {
		return err
	}
	u, err := a.currentUser()
	if err != nil {
		return err
	}
	if u == nil {
		return errors.New("sign in first: folio login --email ADDRESS")
	}
	p, err := a.catalog.Purchase(u.ID, id)
	if err != nil {
		return err
	}
	a.log.Info().Str("user", u.ID).Str("book", id).Float64("price", p.Price).Msg("purchased")
	fmt.Fprintf(c.App.Writer, "%s %s (%s)\n", id, a.translator().T("purchased", nil),
		a.translator().Money(p.Price, a.settings.Get().Currency))
	return nil
}

func downloadBooks(c *cli.Context, a *app) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		books, err := a.catalog.Books()
		if err != nil {
			return err
		}
		for _, b := range books {
			if src, ok := b.Source().(content.TextSource); ok {
				ids = append(ids, src.BookID)
			}
		}
	}
	n, err := content.Download(c.Context, a.online, a.store, ids, c.Int("workers"))
	if err != nil {
		return err
	}
	a.log.Info().Int("books", n).Msg("downloaded")
	fmt.Fprintf(c.App.Writer, "Saved %d of %d books for offline reading\n", n, len(ids))
	return nil
}

func importBook(c *cli.Context, a *app) error {
	file := c.Args().First()
	if file == "" {
		return errors.Errorf("missing FILE (supported: %s)", strings.Join(reader.SupportedFormats(), ", "))
	}
	paragraphs, err := reader.ExtractParagraphs(file)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", file)
	}
	if len(paragraphs) == 0 {
		return errors.Errorf("no text found in %s", file)
	}
	id := c.String("id")
	if err := a.store.Put(id, paragraphs); err != nil {
		return err
	}
	a.log.Info().Str("book", id).Str("file", file).Int("paragraphs", len(paragraphs)).Msg("imported")
	fmt.Fprintf(c.App.Writer, "Imported %d paragraphs as %s\n", len(paragraphs), id)
	return nil
}

func listLibrary(c *cli.Context, a *app) error {
	ids, err := a.store.ListKeys()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if page, ok := a.progress.Page(id); ok {
			fmt.Fprintf(c.App.Writer, "%s\tpage %d\n", id, page)
			continue
		}
		fmt.Fprintln(c.App.Writer, id)
	}
	return nil
}

func removeFromLibrary(c *cli.Context, a *app) error {
	id, err := bookArg(c)
	if err != nil {
		return err
	}
	if err := a.store.Delete(id); err != nil {
		return err
	}
	return a.progress.Clear(id)
}

func register(c *cli.Context, a *app) error {
	password, err := readPassword(c, "Password: ")
	if err != nil {
		return err
	}
	u, err := a.catalog.CreateUser(c.String("email"), c.String("name"), password)
	if err != nil {
		return err
	}
	if err := a.user.Set(u.ID); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Welcome, %s\n", u.Name)
	return nil
}

func login(c *cli.Context, a *app) error {
	password, err := readPassword(c, "Password: ")
	if err != nil {
		return err
	}
	u, err := a.login(c.String("email"), password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Signed in as %s\n", u.Email)
	return nil
}

func logout(c *cli.Context, a *app) error {
	return a.user.Clear()
}

func whoami(c *cli.Context, a *app) error {
	u, err := a.currentUser()
	if err != nil {
		return err
	}
	if u == nil {
		fmt.Fprintln(c.App.Writer, "Not signed in")
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%s <%s>\n", u.Name, u.Email)
	return nil
}

func showPrefs(c *cli.Context, a *app) error {
	p := a.settings.Get()
	fmt.Fprintf(c.App.Writer, "theme: %s\nlanguage: %s\ncurrency: %s\n", p.Theme, p.Language, p.Currency)
	return nil
}

func setPref(c *cli.Context, a *app) error {
	if c.NArg() != 2 {
		return errors.New("usage: folio prefs set KEY VALUE")
	}
	return a.settings.Set(c.Args().Get(0), c.Args().Get(1))
}

// readPassword prompts on the terminal without echo, or reads one line when
// input is not a terminal.
func readPassword(c *cli.Context, prompt string) (string, error) {
	if f, ok := c.App.Reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		fmt.Fprint(c.App.ErrWriter, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(c.App.ErrWriter)
		if err != nil {
			return "", errors.Wrap(err, "failed to read password")
		}
		return string(b), nil
	}
	return readLine(c.App.Reader)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Wrap(err, "failed to read password")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
