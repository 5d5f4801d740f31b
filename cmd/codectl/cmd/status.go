package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/balaji-balu/codeboard/pkg/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what a terminal is displaying and how its feed is doing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		st, err := fetchStatus(ctx, viper.GetString("terminal"))
		if err != nil {
			return err
		}
		printStatus(out(cmd), st, time.Now())
		return nil
	},
}

func fetchStatus(ctx context.Context, base string) (model.TerminalStatus, error) {
	var st model.TerminalStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/v1/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
		return st, fmt.Errorf("terminal returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

func connectionColor(c model.ConnectionState) *color.Color {
	switch c {
	case model.ConnectionHealthy:
		return color.New(color.FgGreen)
	case model.ConnectionStale:
		return color.New(color.FgYellow)
	case model.ConnectionError:
		return color.New(color.FgRed)
	}
	return color.New(color.FgWhite)
}

func printStatus(w io.Writer, st model.TerminalStatus, now time.Time) {
	bold := color.New(color.Bold)

	if st.Session != nil {
		remaining := fmt.Sprintf("%ds left", st.Session.RemainingSeconds)
		if st.Session.RemainingSeconds == model.Narrating {
			remaining = "narrating"
		}
		fmt.Fprintf(w, "%s %s (%s, since %s)\n",
			bold.Sprint("showing:"), color.CyanString(st.Session.Code), remaining,
			humanize.RelTime(st.Session.StartedAt, now, "ago", "from now"))
	} else {
		state := st.State
		if st.Screensaver {
			state += ", screensaver"
		}
		fmt.Fprintf(w, "%s %s\n", bold.Sprint("showing:"), state)
	}

	fmt.Fprintf(w, "%s %d", bold.Sprint("queue:"), len(st.Queue))
	if len(st.Queue) > 0 {
		fmt.Fprintf(w, " [%s]", strings.Join(st.Queue, ", "))
	}
	fmt.Fprintln(w)

	lastPoll := "never"
	if !st.Health.LastPollAt.IsZero() {
		lastPoll = humanize.RelTime(st.Health.LastPollAt, now, "ago", "from now")
	}
	fmt.Fprintf(w, "%s %s, watermark %s, last poll %s",
		bold.Sprint("feed:"),
		connectionColor(st.Health.Connection).Sprint(st.Health.Connection),
		humanize.Comma(st.Watermark), lastPoll)
	if st.Failures > 0 {
		fmt.Fprintf(w, ", %s", color.RedString("%d failed polls", st.Failures))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s %d/%d healthy\n", bold.Sprint("nodes:"), st.Health.Healthy, st.Health.Total)
	for _, r := range st.Health.Records {
		mark := color.GreenString("up")
		if r.Status != model.EndpointHealthy {
			mark = color.RedString("%s (%d failures)", r.Status, r.ConsecutiveFailures)
		}
		fmt.Fprintf(w, "  %-12s %s, checked %s\n", r.Endpoint, mark,
			humanize.RelTime(r.LastCheckedAt, now, "ago", "from now"))
	}

	if st.Advisory != nil {
		fmt.Fprintf(w, "%s %s (%s)\n", color.YellowString("advisory:"), st.Advisory.Message, st.Advisory.Reason)
	}

	s := st.Settings
	fmt.Fprintf(w, "%s %ds per code, colour %s, narration %v at %.1fx\n",
		bold.Sprint("settings:"), s.DisplaySeconds, s.Color, s.NarrationEnabled, s.SpeechRate)
}
