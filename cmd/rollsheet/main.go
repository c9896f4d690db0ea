// rollsheet is the terminal client for the attendance API: register and
// log in a teacher, probe a webhook, and submit a sheet of present rolls.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"rollsheet/internal/client"
)

const usage = `Usage: rollsheet <command> [flags]

Commands:
  register   create a teacher account
  login      log in and store the session
  logout     forget the stored session
  verify     probe a webhook with its secret
  submit     submit attendance for one lecture
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, args := args[0], args[1:]

	fs := pflag.NewFlagSet("rollsheet "+cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	apiURL := fs.String("api", envOr("ROLLSHEET_API", "http://localhost:4000"), "base URL of the rollsheet API")
	sessionPath := fs.String("session", "", "session file (default: user config dir)")

	var (
		username, password, sheetURL, webAppURL, webAppSecret string
		subject, lecture, date, present                        string
		invert                                                 bool
	)
	switch cmd {
	case "register":
		fs.StringVarP(&username, "username", "u", "", "teacher username")
		fs.StringVarP(&password, "password", "p", os.Getenv("ROLLSHEET_PASSWORD"), "password")
		fs.StringVar(&sheetURL, "sheet-url", "", "spreadsheet URL (optional)")
		fs.StringVar(&webAppURL, "webapp-url", "", "webhook URL")
		fs.StringVar(&webAppSecret, "webapp-secret", "", "webhook shared secret")
	case "login":
		fs.StringVarP(&username, "username", "u", "", "teacher username")
		fs.StringVarP(&password, "password", "p", os.Getenv("ROLLSHEET_PASSWORD"), "password")
	case "verify":
		fs.StringVar(&webAppURL, "webapp-url", "", "webhook URL")
		fs.StringVar(&webAppSecret, "webapp-secret", "", "webhook shared secret")
	case "submit":
		fs.StringVar(&subject, "subject", "cn", "subject code (cn, os, bc)")
		fs.StringVar(&lecture, "lecture", "regular", "lecture type (regular, extra)")
		fs.StringVar(&date, "date", "", "lecture date YYYY-MM-DD (default: today)")
		fs.StringVar(&present, "present", "", "comma separated present rolls, ranges allowed (1,4,10-20)")
		fs.BoolVar(&invert, "invert", false, "invert the selection before submitting")
	case "logout":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	session, err := openSession(*sessionPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	c := client.New(*apiURL, session)

	var msg client.Message
	switch cmd {
	case "register":
		msg = doRegister(ctx, c, client.RegisterRequest{
			Username:     username,
			Password:     password,
			SheetURL:     sheetURL,
			WebAppURL:    webAppURL,
			WebAppSecret: webAppSecret,
		})
	case "login":
		msg = doLogin(ctx, c, username, password)
	case "logout":
		if err := c.Logout(ctx); err != nil {
			msg = client.Error(err.Error())
		} else {
			msg = client.Info("Logged out.")
		}
	case "verify":
		msg = doVerify(ctx, c, webAppURL, webAppSecret)
	case "submit":
		sheet, err := buildSheet(time.Now(), subject, lecture, date, present, invert)
		if err != nil {
			msg = client.Error(err.Error())
			break
		}
		msg = doSubmit(ctx, c, sheet)
	}
	return report(msg, stdout, stderr)
}

func report(msg client.Message, stdout, stderr io.Writer) int {
	if msg.Kind == client.KindError {
		fmt.Fprintln(stderr, msg.Text)
		return 1
	}
	fmt.Fprintln(stdout, msg.Text)
	return 0
}

func openSession(path string) (client.SessionStore, error) {
	if path == "" {
		var err error
		if path, err = client.DefaultSessionPath(); err != nil {
			return nil, fmt.Errorf("locate session file: %w", err)
		}
	}
	return client.NewFileSession(path), nil
}

func doRegister(ctx context.Context, c *client.Client, req client.RegisterRequest) client.Message {
	id, err := c.Register(ctx, req)
	if err != nil {
		return client.MessageFor(err, "Registration failed.")
	}
	return client.Success(fmt.Sprintf("Registered teacher #%d. You can now log in.", id))
}

func doLogin(ctx context.Context, c *client.Client, username, password string) client.Message {
	hook, err := c.Login(ctx, username, password)
	if err != nil {
		return client.MessageFor(err, "Login failed.")
	}
	if hook == "" {
		return client.Success("Logged in.")
	}
	return client.Success("Logged in. Submissions go to " + hook)
}

func doVerify(ctx context.Context, c *client.Client, url, secret string) client.Message {
	res, err := c.VerifyWebhook(ctx, url, secret)
	if err != nil {
		m := client.MessageFor(err, "Webhook rejected the probe.")
		if len(res.Data) > 0 {
			m.Text += " " + string(res.Data)
		}
		return m
	}
	return client.Success("Webhook verified. " + string(res.Data))
}

func doSubmit(ctx context.Context, c *client.Client, sheet *client.Sheet) client.Message {
	if _, err := c.Submit(ctx, sheet); err != nil {
		return client.MessageFor(err, "Submit failed.")
	}
	return client.Success(fmt.Sprintf("Attendance submitted successfully. %d of %d present.", sheet.PresentCount(), client.Rolls))
}

func buildSheet(now time.Time, subject, lecture, date, present string, invert bool) (*client.Sheet, error) {
	sheet := client.NewSheet(now)
	if _, ok := client.Subjects[subject]; !ok {
		return nil, fmt.Errorf("unknown subject %q", subject)
	}
	sheet.Subject = subject
	lt, err := client.ParseLectureType(lecture)
	if err != nil {
		return nil, err
	}
	sheet.SetLecture(lt)
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
		}
		sheet.Date = date
	}
	rolls, err := parseRolls(present)
	if err != nil {
		return nil, err
	}
	for _, r := range rolls {
		if err := sheet.Set(r, true); err != nil {
			return nil, err
		}
	}
	if invert {
		sheet.InvertAll()
	}
	return sheet, nil
}

// parseRolls reads "1,4,10-20".
func parseRolls(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid roll %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || last < first {
				return nil, fmt.Errorf("invalid roll range %q", part)
			}
		}
		if first < 1 || last > client.Rolls {
			return nil, fmt.Errorf("roll %q out of range 1..%d", part, client.Rolls)
		}
		for r := first; r <= last; r++ {
			out = append(out, r)
		}
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
